package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/engine"
	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

type AnalyzeHandler struct {
	engine *engine.Engine
}

func NewAnalyzeHandler(eng *engine.Engine) *AnalyzeHandler {
	return &AnalyzeHandler{engine: eng}
}

func (h *AnalyzeHandler) HandleAnalyze(c *fiber.Ctx) error {
	var req struct {
		RFPID        string             `json:"rfp_id"`
		UserID       string             `json:"user_id"`
		DocumentText string             `json:"document_text"`
		UserProfile  models.UserProfile `json:"user_profile"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" || req.DocumentText == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and document_text are required",
		})
	}

	result, err := h.engine.Analyze(c.Context(), engine.AnalyzeRequest{
		RFPID:        req.RFPID,
		UserID:       req.UserID,
		DocumentText: req.DocumentText,
		Profile:      req.UserProfile,
	})

	var invalidDoc *engine.InvalidDocumentError
	if errors.As(err, &invalidDoc) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":            "Document is not a valid RFP",
			"document_type":    invalidDoc.DocumentType,
			"rejection_reason": invalidDoc.Reason,
		})
	}
	if err != nil {
		logger.Error("Failed to analyze document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to analyze document",
		})
	}

	return c.JSON(fiber.Map{
		"match_result_id":      result.ID,
		"rfp_id":               result.RFPID,
		"user_id":              result.UserID,
		"industry":             result.Industry,
		"model_version":        result.ModelVersion,
		"overall_score":        result.OverallScore,
		"dimension_scores":     result.DimensionScores,
		"confidence_level":     result.ConfidenceLevel,
		"similar_entries":      result.SimilarEntries,
		"risk_factors":         result.RiskFactors,
		"success_predictors":   result.SuccessPredictors,
		"recommended_strategy": result.RecommendedStrategy,
		"verdict":              result.Verdict,
	})
}
