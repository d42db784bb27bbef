package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("stale model version")
)

// NormalizeIndustry produces the canonical industry key. Every store lookup
// and row keyed by industry goes through this, so "Technology" and
// "technology " address the same model and memory bank partition.
func NormalizeIndustry(industry string) string {
	return strings.ToLower(strings.TrimSpace(industry))
}

type Outcome string

const (
	OutcomeWon     Outcome = "won"
	OutcomeLost    Outcome = "lost"
	OutcomePending Outcome = "pending"
)

const (
	DimensionServiceMatch      = "serviceMatch"
	DimensionIndustryMatch     = "industryMatch"
	DimensionTimelineAlignment = "timelineAlignment"
	DimensionCertifications    = "certifications"
	DimensionValueRange        = "valueRange"
	DimensionPastWinSimilarity = "pastWinSimilarity"
)

// Dimensions lists the six scoring dimensions in canonical order.
var Dimensions = []string{
	DimensionServiceMatch,
	DimensionIndustryMatch,
	DimensionTimelineAlignment,
	DimensionCertifications,
	DimensionValueRange,
	DimensionPastWinSimilarity,
}

type ScoringWeights map[string]float64

func (w ScoringWeights) Clone() ScoringWeights {
	out := make(ScoringWeights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func (w ScoringWeights) Sum() float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum
}

type MemoryBankEntry struct {
	ID                     string
	UserID                 string
	Industry               string
	RFPText                string
	ProposalText           string
	Outcome                Outcome
	WinProbability         *float64
	KeyPhrases             []string
	RequiredCertifications []string
	ProjectValue           *float64
	TimelineWeeks          *int
	CompetitorCount        *int
	ClientSize             string
	FeedbackNotes          string
	Embedding              []float32
	CreatedAt              time.Time
}

type PerformanceMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	WinRate   float64 `json:"win_rate"`
	Samples   int     `json:"samples"`
}

type IndustryModel struct {
	ID                 string
	UserID             string
	Industry           string
	ModelVersion       int
	ScoringWeights     ScoringWeights
	TrainingDataCount  int
	LastTrainingDate   *time.Time
	PerformanceMetrics PerformanceMetrics
	IsActive           bool
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type TrainingType string

const (
	TrainingInitial     TrainingType = "initial"
	TrainingIncremental TrainingType = "incremental"
	TrainingRetrain     TrainingType = "retrain"
)

type TrainingLog struct {
	ID              string
	UserID          string
	Industry        string
	ModelID         string
	TrainingType    TrainingType
	DataPointsUsed  int
	DurationSeconds float64
	Status          string
	BeforeMetrics   PerformanceMetrics
	AfterMetrics    PerformanceMetrics
	Improvements    map[string]float64
	ErrorDetail     string
	CreatedAt       time.Time
}

type SimilarEntry struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	Outcome    Outcome `json:"outcome"`
}

type MatchResult struct {
	ID                  string
	RFPID               string
	UserID              string
	Industry            string
	ModelVersion        int
	OverallScore        int
	DimensionScores     map[string]float64
	ConfidenceLevel     float64
	SimilarEntries      []SimilarEntry
	RiskFactors         []string
	SuccessPredictors   []string
	RecommendedStrategy string
	Verdict             string
	CreatedAt           time.Time
}

type FeedbackType string

const (
	FeedbackPositive FeedbackType = "positive"
	FeedbackNeutral  FeedbackType = "neutral"
	FeedbackNegative FeedbackType = "negative"
)

type Feedback struct {
	ID            string
	UserID        string
	MatchResultID string
	Rating        int
	FeedbackType  FeedbackType
	Comments      string
	CreatedAt     time.Time
}

type LearningWeightUpdate struct {
	UserID          string  `json:"user_id"`
	IndustryModelID string  `json:"industry_model_id"`
	Dimension       string  `json:"dimension"`
	Delta           float64 `json:"delta"`
	Reason          string  `json:"reason"`
	NewWeight       float64 `json:"new_weight"`
}

type UserProfile struct {
	Industry        string   `json:"industry"`
	CompanySize     string   `json:"company_size"`
	ServicesOffered []string `json:"services_offered"`
	TonePreference  string   `json:"tone_preference"`
}
