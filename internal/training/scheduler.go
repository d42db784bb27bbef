package training

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

type Store interface {
	CountMemoryBankEntries(userID, industry string) (int, error)
	ListMemoryBankEntries(userID, industry string) ([]models.MemoryBankEntry, error)
	GetActiveIndustryModel(userID, industry string) (*models.IndustryModel, error)
	UpdateIndustryModel(m *models.IndustryModel) error
	InsertTrainingLog(log *models.TrainingLog) error
}

// Notifier receives training-run completions, e.g. for pushing live status
// to connected clients.
type Notifier interface {
	TrainingCompleted(userID, industry string, log *models.TrainingLog)
}

type Scheduler struct {
	store      Store
	minEntries int
	newEntries int
	notifier   Notifier

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewScheduler(store Store, minEntries, newEntries int, notifier Notifier) *Scheduler {
	if minEntries <= 0 {
		minEntries = 10
	}
	if newEntries <= 0 {
		newEntries = 5
	}
	return &Scheduler{
		store:      store,
		minEntries: minEntries,
		newEntries: newEntries,
		notifier:   notifier,
		inFlight:   make(map[string]bool),
	}
}

// MaybeTrain runs an incremental training pass when enough new data has
// accumulated: at least minEntries total and at least newEntries more than
// the model was last trained on. Returns whether a pass ran. A trigger that
// overlaps an in-flight pass for the same (user, industry) is a no-op.
func (s *Scheduler) MaybeTrain(ctx context.Context, userID, industry string) (bool, error) {
	industry = models.NormalizeIndustry(industry)

	count, err := s.store.CountMemoryBankEntries(userID, industry)
	if err != nil {
		return false, fmt.Errorf("failed to count memory bank entries: %w", err)
	}

	if count < s.minEntries {
		return false, nil
	}

	model, err := s.store.GetActiveIndustryModel(userID, industry)
	if err != nil {
		return false, fmt.Errorf("failed to load industry model: %w", err)
	}

	if count < model.TrainingDataCount+s.newEntries {
		return false, nil
	}

	key := userID + "/" + industry
	s.mu.Lock()
	if s.inFlight[key] {
		s.mu.Unlock()
		logger.Debug("Training already in flight, skipping",
			zap.String("user_id", userID),
			zap.String("industry", industry),
		)
		return false, nil
	}
	s.inFlight[key] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}()

	return true, s.train(ctx, userID, industry, model, count)
}

func (s *Scheduler) train(ctx context.Context, userID, industry string, model *models.IndustryModel, count int) error {
	start := time.Now()

	trainingType := models.TrainingIncremental
	if model.TrainingDataCount == 0 {
		trainingType = models.TrainingInitial
	}

	logger.Info("Training pass started",
		zap.String("user_id", userID),
		zap.String("industry", industry),
		zap.String("training_type", string(trainingType)),
		zap.Int("data_points", count),
	)

	before := model.PerformanceMetrics

	entries, err := s.store.ListMemoryBankEntries(userID, industry)
	if err != nil {
		s.recordFailure(userID, industry, model, trainingType, before, count, start, err)
		return fmt.Errorf("failed to load training data: %w", err)
	}

	after := deriveMetrics(entries)

	now := time.Now()
	model.ModelVersion++
	model.TrainingDataCount = count
	model.LastTrainingDate = &now
	model.PerformanceMetrics = after

	// A version conflict here means a concurrent feedback write landed
	// between our read and this write; the failed pass is logged and the
	// next trigger retrains on the fresher row.
	if err := s.store.UpdateIndustryModel(model); err != nil {
		s.recordFailure(userID, industry, model, trainingType, before, count, start, err)
		return fmt.Errorf("failed to persist trained model: %w", err)
	}

	log := &models.TrainingLog{
		ID:              uuid.New().String(),
		UserID:          userID,
		Industry:        industry,
		ModelID:         model.ID,
		TrainingType:    trainingType,
		DataPointsUsed:  count,
		DurationSeconds: time.Since(start).Seconds(),
		Status:          "completed",
		BeforeMetrics:   before,
		AfterMetrics:    after,
		Improvements: map[string]float64{
			"accuracy":  round3(after.Accuracy - before.Accuracy),
			"precision": round3(after.Precision - before.Precision),
			"recall":    round3(after.Recall - before.Recall),
			"f1_score":  round3(after.F1Score - before.F1Score),
		},
		CreatedAt: time.Now(),
	}

	if err := s.store.InsertTrainingLog(log); err != nil {
		logger.Error("Failed to record training log", zap.Error(err))
	}

	if s.notifier != nil {
		s.notifier.TrainingCompleted(userID, industry, log)
	}

	logger.Info("Training pass completed",
		zap.String("user_id", userID),
		zap.String("industry", industry),
		zap.Int("model_version", model.ModelVersion),
		zap.Float64("accuracy", after.Accuracy),
		zap.Float64("win_rate", after.WinRate),
	)

	return nil
}

func (s *Scheduler) recordFailure(userID, industry string, model *models.IndustryModel, trainingType models.TrainingType, before models.PerformanceMetrics, count int, start time.Time, cause error) {
	log := &models.TrainingLog{
		ID:              uuid.New().String(),
		UserID:          userID,
		Industry:        industry,
		ModelID:         model.ID,
		TrainingType:    trainingType,
		DataPointsUsed:  count,
		DurationSeconds: time.Since(start).Seconds(),
		Status:          "failed",
		BeforeMetrics:   before,
		ErrorDetail:     cause.Error(),
		CreatedAt:       time.Now(),
	}

	if err := s.store.InsertTrainingLog(log); err != nil {
		logger.Error("Failed to record failed training log", zap.Error(err))
	}

	logger.Warn("Training pass failed",
		zap.String("user_id", userID),
		zap.String("industry", industry),
		zap.Error(cause),
	)
}

// deriveMetrics produces heuristic performance figures from historical
// win rate and data volume. This is a surrogate for a real model fit; the
// figures track how much signal the memory bank holds, not a validation run.
func deriveMetrics(entries []models.MemoryBankEntry) models.PerformanceMetrics {
	won, decided := 0, 0
	for _, entry := range entries {
		switch entry.Outcome {
		case models.OutcomeWon:
			won++
			decided++
		case models.OutcomeLost:
			decided++
		}
	}

	winRate := 0.0
	if decided > 0 {
		winRate = float64(won) / float64(decided)
	}

	volume := math.Min(1.0, float64(len(entries))/50.0)

	accuracy := clamp01((0.55 + 0.3*winRate) * (0.8 + 0.2*volume))
	precision := clamp01(0.05 + 0.9*winRate)
	recall := clamp01(0.5 + 0.4*volume)

	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return models.PerformanceMetrics{
		Accuracy:  round3(accuracy),
		Precision: round3(precision),
		Recall:    round3(recall),
		F1Score:   round3(f1),
		WinRate:   round3(winRate),
		Samples:   len(entries),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
