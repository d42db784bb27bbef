package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/learning"
	"github.com/bidmatch/backend/internal/metrics"
	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

type FeedbackHandler struct {
	loop *learning.Loop
}

func NewFeedbackHandler(loop *learning.Loop) *FeedbackHandler {
	return &FeedbackHandler{loop: loop}
}

func (h *FeedbackHandler) HandleFeedback(c *fiber.Ctx) error {
	var req struct {
		UserID        string `json:"user_id"`
		MatchResultID string `json:"match_result_id"`
		Rating        int    `json:"rating"`
		FeedbackType  string `json:"feedback_type"`
		Comments      string `json:"comments"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" || req.MatchResultID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and match_result_id are required",
		})
	}

	if req.Rating < 1 || req.Rating > 5 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "rating must be between 1 and 5",
		})
	}

	updates, err := h.loop.SubmitFeedback(c.Context(), learning.FeedbackRequest{
		UserID:        req.UserID,
		MatchResultID: req.MatchResultID,
		Rating:        req.Rating,
		FeedbackType:  models.FeedbackType(req.FeedbackType),
		Comments:      req.Comments,
	})
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Match result not found",
		})
	}
	if err != nil {
		logger.Error("Failed to process feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process feedback",
		})
	}

	for _, update := range updates {
		metrics.WeightAdjustments.WithLabelValues(update.Dimension).Inc()
	}

	adjustments := make([]fiber.Map, len(updates))
	for i, update := range updates {
		adjustments[i] = fiber.Map{
			"dimension":  update.Dimension,
			"delta":      update.Delta,
			"new_weight": update.NewWeight,
		}
	}

	return c.JSON(fiber.Map{
		"status":      "recorded",
		"adjustments": adjustments,
	})
}
