package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/classifier"
	"github.com/bidmatch/backend/internal/features"
	"github.com/bidmatch/backend/internal/ingestion"
	"github.com/bidmatch/backend/internal/memory"
	"github.com/bidmatch/backend/internal/metrics"
	"github.com/bidmatch/backend/internal/scoring"
	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
	"github.com/bidmatch/backend/pkg/utils"
)

// InvalidDocumentError is the only failure surfaced to callers: the document
// is not a legitimate solicitation. Everything else degrades to fallbacks.
type InvalidDocumentError struct {
	DocumentType classifier.DocumentType
	Reason       string
}

func (e *InvalidDocumentError) Error() string {
	return fmt.Sprintf("document rejected as %s: %s", e.DocumentType, e.Reason)
}

type Store interface {
	InsertMatchResult(r *models.MatchResult) error
}

type ResultCache interface {
	GetMatchResult(ctx context.Context, key string) (*models.MatchResult, bool, error)
	SetMatchResult(ctx context.Context, key string, result *models.MatchResult) error
}

type AnalyzeRequest struct {
	RFPID        string
	UserID       string
	DocumentText string
	Profile      models.UserProfile
}

type Engine struct {
	classifier *classifier.Classifier
	extractor  *features.Extractor
	bank       *memory.Bank
	scorer     *scoring.Service
	store      Store
	cache      ResultCache
	topK       int
}

func New(cls *classifier.Classifier, extractor *features.Extractor, bank *memory.Bank, scorer *scoring.Service, store Store, cache ResultCache, topK int) *Engine {
	if topK <= 0 {
		topK = memory.DefaultTopK
	}
	return &Engine{
		classifier: cls,
		extractor:  extractor,
		bank:       bank,
		scorer:     scorer,
		store:      store,
		cache:      cache,
		topK:       topK,
	}
}

// Analyze runs the full pipeline: classify, extract features, retrieve
// similar history, score. The stages are strictly sequential; each depends on
// the previous stage's output.
func (e *Engine) Analyze(ctx context.Context, req AnalyzeRequest) (*models.MatchResult, error) {
	start := time.Now()

	text := ingestion.CleanDocumentText(req.DocumentText)

	cacheKey := utils.HashText(req.UserID + "|" + text)
	if e.cache != nil {
		cached, found, err := e.cache.GetMatchResult(ctx, cacheKey)
		if err == nil && found {
			metrics.CacheHits.WithLabelValues("match_result").Inc()
			return cached, nil
		}
		metrics.CacheMisses.WithLabelValues("match_result").Inc()
	}

	classification := e.classifier.Classify(ctx, text)
	if !classification.IsValidRFP {
		metrics.DocumentsRejected.WithLabelValues(string(classification.DocumentType)).Inc()
		return nil, &InvalidDocumentError{
			DocumentType: classification.DocumentType,
			Reason:       classification.RejectionReason,
		}
	}

	extracted := e.extractor.Extract(ctx, text, "")

	similar, err := e.bank.QueryNearest(ctx, req.UserID, req.Profile.Industry, text, e.topK)
	if err != nil {
		// No historical signal is a valid state; score without it.
		logger.Warn("Memory bank lookup failed, scoring without historical signal", zap.Error(err))
		similar = nil
	}

	model, err := e.scorer.GetOrCreateModel(req.UserID, req.Profile.Industry)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve industry model: %w", err)
	}

	result := e.scorer.Score(ctx, scoring.ScoreInput{
		RFPID:          req.RFPID,
		UserID:         req.UserID,
		DocumentText:   text,
		Sections:       classification.ExtractedSections,
		KeyPhrases:     extracted.KeyPhrases,
		Certifications: extracted.Certifications,
		Profile:        req.Profile,
		SimilarEntries: similar,
	}, model)

	if err := e.store.InsertMatchResult(result); err != nil {
		logger.Error("Failed to persist match result", zap.Error(err))
	}

	if e.cache != nil {
		if err := e.cache.SetMatchResult(ctx, cacheKey, result); err != nil {
			logger.Debug("Failed to cache match result", zap.Error(err))
		}
	}

	metrics.AnalysesTotal.WithLabelValues("completed").Inc()
	metrics.AnalysisDuration.WithLabelValues().Observe(time.Since(start).Seconds())
	metrics.OverallScore.Observe(float64(result.OverallScore))

	logger.Info("Analysis completed",
		zap.String("rfp_id", req.RFPID),
		zap.String("user_id", req.UserID),
		zap.Int("overall_score", result.OverallScore),
		zap.String("verdict", result.Verdict),
		zap.Int("similar_entries", len(similar)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}
