package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

const (
	WeightFloor = 0.1
	WeightCeil  = 2.0

	maxUpdateAttempts = 3
)

type Store interface {
	InsertFeedback(f *models.Feedback) error
	GetMatchResult(id string) (*models.MatchResult, error)
	GetActiveIndustryModel(userID, industry string) (*models.IndustryModel, error)
	UpdateIndustryModel(m *models.IndustryModel) error
}

type Loop struct {
	store Store
}

type FeedbackRequest struct {
	UserID        string
	MatchResultID string
	Rating        int
	FeedbackType  models.FeedbackType
	Comments      string
}

// Comment keywords that point the adjustment at a specific dimension.
var dimensionKeywords = map[string][]string{
	models.DimensionIndustryMatch:     {"industry", "sector", "vertical"},
	models.DimensionServiceMatch:      {"service", "services", "capability", "offering"},
	models.DimensionTimelineAlignment: {"timeline", "schedule", "deadline", "duration"},
	models.DimensionCertifications:    {"certification", "certifications", "compliance", "certified"},
	models.DimensionValueRange:        {"value", "budget", "price", "cost"},
	models.DimensionPastWinSimilarity: {"history", "historical", "past", "similar"},
}

func NewLoop(store Store) *Loop {
	return &Loop{store: store}
}

// SubmitFeedback records the rating and nudges the industry model's weights.
// The raw feedback is persisted first so the audit trail survives a failed
// adjustment. Weight writes are version-checked and retried on conflict.
func (l *Loop) SubmitFeedback(ctx context.Context, req FeedbackRequest) ([]models.LearningWeightUpdate, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5, got %d", req.Rating)
	}

	result, err := l.store.GetMatchResult(req.MatchResultID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match result: %w", err)
	}

	if result.UserID != req.UserID {
		return nil, fmt.Errorf("match result %s does not belong to user", req.MatchResultID)
	}

	feedback := &models.Feedback{
		ID:            uuid.New().String(),
		UserID:        req.UserID,
		MatchResultID: req.MatchResultID,
		Rating:        req.Rating,
		FeedbackType:  req.FeedbackType,
		Comments:      req.Comments,
		CreatedAt:     time.Now(),
	}

	if err := l.store.InsertFeedback(feedback); err != nil {
		return nil, fmt.Errorf("failed to persist feedback: %w", err)
	}

	delta := float64(req.Rating-3) * 0.1
	if delta == 0 {
		logger.Debug("Neutral rating, no weight adjustment",
			zap.String("match_result_id", req.MatchResultID),
		)
		return nil, nil
	}

	targets := classifyDimensions(req.Comments)

	// No dimension-specific signal: apply a smaller, diffuse adjustment
	// across all dimensions rather than guessing one.
	reason := fmt.Sprintf("rating %d on match %s", req.Rating, req.MatchResultID)
	if len(targets) == 0 {
		targets = append([]string(nil), models.Dimensions...)
		delta *= 0.5
		reason += " (diffuse)"
	} else {
		reason += " (comment: " + strings.Join(targets, ", ") + ")"
	}

	updates, err := l.adjustWeights(result.UserID, result.Industry, targets, delta, reason)
	if err != nil {
		return nil, err
	}

	return updates, nil
}

func (l *Loop) adjustWeights(userID, industry string, dimensions []string, delta float64, reason string) ([]models.LearningWeightUpdate, error) {
	var updates []models.LearningWeightUpdate

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		model, err := l.store.GetActiveIndustryModel(userID, industry)
		if err != nil {
			return nil, fmt.Errorf("failed to load industry model: %w", err)
		}

		updates = updates[:0]
		weights := model.ScoringWeights.Clone()

		for _, dimension := range dimensions {
			current := weights[dimension]
			next := clampWeight(current + delta)
			if next == current {
				continue
			}
			weights[dimension] = next
			updates = append(updates, models.LearningWeightUpdate{
				UserID:          userID,
				IndustryModelID: model.ID,
				Dimension:       dimension,
				Delta:           next - current,
				Reason:          reason,
				NewWeight:       next,
			})
		}

		if len(updates) == 0 {
			return nil, nil
		}

		model.ScoringWeights = weights

		err = l.store.UpdateIndustryModel(model)
		if err == nil {
			for _, update := range updates {
				logger.Info("Scoring weight adjusted",
					zap.String("user_id", update.UserID),
					zap.String("model_id", update.IndustryModelID),
					zap.String("dimension", update.Dimension),
					zap.Float64("delta", update.Delta),
					zap.Float64("new_weight", update.NewWeight),
					zap.String("reason", update.Reason),
				)
			}
			return updates, nil
		}

		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to update industry model: %w", err)
		}

		logger.Debug("Model version conflict, retrying weight update",
			zap.String("user_id", userID),
			zap.String("industry", industry),
			zap.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("failed to update industry model after %d attempts: %w",
		maxUpdateAttempts, models.ErrVersionConflict)
}

func classifyDimensions(comments string) []string {
	if strings.TrimSpace(comments) == "" {
		return nil
	}

	lower := strings.ToLower(comments)

	var matched []string
	for _, dimension := range models.Dimensions {
		for _, keyword := range dimensionKeywords[dimension] {
			if strings.Contains(lower, keyword) {
				matched = append(matched, dimension)
				break
			}
		}
	}

	return matched
}

func clampWeight(w float64) float64 {
	if w < WeightFloor {
		return WeightFloor
	}
	if w > WeightCeil {
		return WeightCeil
	}
	return w
}
