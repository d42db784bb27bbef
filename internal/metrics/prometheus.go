package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidmatch_analyses_total",
			Help: "Total number of analysis requests processed",
		},
		[]string{"status"},
	)

	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bidmatch_analysis_duration_seconds",
			Help:    "Analysis pipeline duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{},
	)

	DocumentsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidmatch_documents_rejected_total",
			Help: "Documents rejected by the classifier",
		},
		[]string{"document_type"},
	)

	ClassifierFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bidmatch_classifier_fallbacks_total",
			Help: "Classifications served by the keyword fallback path",
		},
	)

	OverallScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bidmatch_overall_score",
			Help:    "Distribution of overall compatibility scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	MemoryBankEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bidmatch_memory_bank_entries_total",
			Help: "Historical entries ingested into the memory bank",
		},
	)

	WeightAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidmatch_weight_adjustments_total",
			Help: "Scoring weight adjustments applied from feedback",
		},
		[]string{"dimension"},
	)

	TrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidmatch_training_runs_total",
			Help: "Training passes by outcome",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidmatch_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bidmatch_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)
)

func Init() {
	prometheus.MustRegister(AnalysesTotal)
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(DocumentsRejected)
	prometheus.MustRegister(ClassifierFallbacks)
	prometheus.MustRegister(OverallScore)
	prometheus.MustRegister(MemoryBankEntries)
	prometheus.MustRegister(WeightAdjustments)
	prometheus.MustRegister(TrainingRuns)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
