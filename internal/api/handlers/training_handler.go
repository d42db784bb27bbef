package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/api/events"
	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

type TrainingStore interface {
	GetActiveIndustryModel(userID, industry string) (*models.IndustryModel, error)
	ListTrainingLogs(userID, industry string, limit int) ([]models.TrainingLog, error)
	CountMemoryBankEntries(userID, industry string) (int, error)
}

type TrainingHandler struct {
	store TrainingStore
	hub   *events.Hub
}

func NewTrainingHandler(store TrainingStore, hub *events.Hub) *TrainingHandler {
	return &TrainingHandler{store: store, hub: hub}
}

func (h *TrainingHandler) HandleStatus(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	industry := models.NormalizeIndustry(c.Query("industry"))

	if userID == "" || industry == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and industry query parameters are required",
		})
	}

	model, err := h.store.GetActiveIndustryModel(userID, industry)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No model exists for this user and industry",
		})
	}
	if err != nil {
		logger.Error("Failed to load industry model", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load training status",
		})
	}

	count, err := h.store.CountMemoryBankEntries(userID, industry)
	if err != nil {
		logger.Error("Failed to count memory bank entries", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load training status",
		})
	}

	logs, err := h.store.ListTrainingLogs(userID, industry, 10)
	if err != nil {
		logger.Error("Failed to list training logs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load training status",
		})
	}

	runs := make([]fiber.Map, len(logs))
	for i, log := range logs {
		runs[i] = fiber.Map{
			"id":               log.ID,
			"training_type":    log.TrainingType,
			"data_points_used": log.DataPointsUsed,
			"duration_seconds": log.DurationSeconds,
			"status":           log.Status,
			"after_metrics":    log.AfterMetrics,
			"improvements":     log.Improvements,
			"created_at":       log.CreatedAt,
		}
	}

	return c.JSON(fiber.Map{
		"user_id":             userID,
		"industry":            industry,
		"model_version":       model.ModelVersion,
		"training_data_count": model.TrainingDataCount,
		"memory_bank_entries": count,
		"last_training_date":  model.LastTrainingDate,
		"performance_metrics": model.PerformanceMetrics,
		"scoring_weights":     model.ScoringWeights,
		"recent_runs":         runs,
	})
}

// HandleEvents streams training completions to the client over a websocket.
// The connection is held open until the client disconnects.
func (h *TrainingHandler) HandleEvents() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID := conn.Query("user_id")
		if userID == "" {
			conn.WriteJSON(fiber.Map{"error": "user_id query parameter is required"})
			conn.Close()
			return
		}

		h.hub.Subscribe(userID, conn)
		defer h.hub.Unsubscribe(userID, conn)
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	})
}

func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
