package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/features"
	"github.com/bidmatch/backend/internal/ingestion"
	"github.com/bidmatch/backend/internal/memory"
	"github.com/bidmatch/backend/internal/metrics"
	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/internal/training"
	"github.com/bidmatch/backend/pkg/logger"
)

type ModelProvider interface {
	GetOrCreateModel(userID, industry string) (*models.IndustryModel, error)
}

type HistoricalHandler struct {
	bank      *memory.Bank
	extractor *features.Extractor
	scorer    ModelProvider
	scheduler *training.Scheduler
}

func NewHistoricalHandler(bank *memory.Bank, extractor *features.Extractor, scorer ModelProvider, scheduler *training.Scheduler) *HistoricalHandler {
	return &HistoricalHandler{
		bank:      bank,
		extractor: extractor,
		scorer:    scorer,
		scheduler: scheduler,
	}
}

func (h *HistoricalHandler) HandleIngest(c *fiber.Ctx) error {
	var req struct {
		UserID          string   `json:"user_id"`
		Industry        string   `json:"industry"`
		RFPText         string   `json:"rfp_text"`
		ProposalText    string   `json:"proposal_text"`
		Outcome         string   `json:"outcome"`
		WinProbability  *float64 `json:"win_probability"`
		ProjectValue    *float64 `json:"project_value"`
		TimelineWeeks   *int     `json:"timeline_weeks"`
		CompetitorCount *int     `json:"competitor_count"`
		ClientSize      string   `json:"client_size"`
		FeedbackNotes   string   `json:"feedback_notes"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.UserID == "" || req.Industry == "" || req.RFPText == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id, industry, and rfp_text are required",
		})
	}

	req.Industry = models.NormalizeIndustry(req.Industry)

	if req.WinProbability != nil && (*req.WinProbability < 0 || *req.WinProbability > 1) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "win_probability must be between 0 and 1",
		})
	}

	outcome := models.Outcome(req.Outcome)
	switch outcome {
	case models.OutcomeWon, models.OutcomeLost, models.OutcomePending, "":
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "outcome must be won, lost, or pending",
		})
	}

	rfpText := ingestion.CleanDocumentText(req.RFPText)
	proposalText := ingestion.CleanDocumentText(req.ProposalText)

	extracted := h.extractor.Extract(c.Context(), rfpText, proposalText)

	entry := &models.MemoryBankEntry{
		UserID:                 req.UserID,
		Industry:               req.Industry,
		RFPText:                rfpText,
		ProposalText:           proposalText,
		Outcome:                outcome,
		WinProbability:         req.WinProbability,
		KeyPhrases:             extracted.KeyPhrases,
		RequiredCertifications: extracted.Certifications,
		ProjectValue:           req.ProjectValue,
		TimelineWeeks:          req.TimelineWeeks,
		CompetitorCount:        req.CompetitorCount,
		ClientSize:             req.ClientSize,
		FeedbackNotes:          req.FeedbackNotes,
		Embedding:              extracted.Embedding,
	}

	entryID, err := h.bank.Store(c.Context(), entry)
	if err != nil {
		logger.Error("Failed to store historical entry", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store historical entry",
		})
	}

	metrics.MemoryBankEntries.Inc()

	// Ensure the model row exists before the scheduler looks for it, then
	// let training proceed off the request path.
	if _, err := h.scorer.GetOrCreateModel(req.UserID, req.Industry); err != nil {
		logger.Error("Failed to resolve industry model after ingest", zap.Error(err))
	} else {
		userID, industry := req.UserID, req.Industry
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			ran, err := h.scheduler.MaybeTrain(ctx, userID, industry)
			if err != nil {
				metrics.TrainingRuns.WithLabelValues("failed").Inc()
				logger.Error("Training pass failed after ingest",
					zap.String("user_id", userID),
					zap.String("industry", industry),
					zap.Error(err),
				)
				return
			}
			if ran {
				metrics.TrainingRuns.WithLabelValues("completed").Inc()
			}
		}()
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"entry_id": entryID,
		"status":   "stored",
	})
}
