package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

type Store interface {
	GetActiveIndustryModel(userID, industry string) (*models.IndustryModel, error)
	InsertIndustryModel(m *models.IndustryModel) error
}

type Service struct {
	store    Store
	insights InsightBackend
}

type ScoreInput struct {
	RFPID          string
	UserID         string
	DocumentText   string
	Sections       map[string]string
	KeyPhrases     []string
	Certifications []string
	Profile        models.UserProfile
	SimilarEntries []models.SimilarEntry
}

func NewService(store Store, insights InsightBackend) *Service {
	return &Service{
		store:    store,
		insights: insights,
	}
}

// GetOrCreateModel returns the active model for (user, industry), seeding one
// from the built-in weight table on first use. The storage layer's unique
// active index makes creation race-safe: a losing writer re-reads the winner.
func (s *Service) GetOrCreateModel(userID, industry string) (*models.IndustryModel, error) {
	industry = normalizeIndustry(industry)

	model, err := s.store.GetActiveIndustryModel(userID, industry)
	if err == nil {
		return model, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to load industry model: %w", err)
	}

	now := time.Now()
	model = &models.IndustryModel{
		ID:             uuid.New().String(),
		UserID:         userID,
		Industry:       industry,
		ModelVersion:   1,
		ScoringWeights: WeightTableFor(industry),
		IsActive:       true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.InsertIndustryModel(model); err != nil {
		existing, readErr := s.store.GetActiveIndustryModel(userID, industry)
		if readErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create industry model: %w", err)
	}

	logger.Info("Industry model seeded",
		zap.String("user_id", userID),
		zap.String("industry", model.Industry),
	)

	return model, nil
}

// Score computes the six dimension scores, applies industry bonuses, combines
// them with the model's weights, and attaches insights. Dimension scoring is
// a deterministic function of the extracted document features.
func (s *Service) Score(ctx context.Context, input ScoreInput, model *models.IndustryModel) *models.MatchResult {
	dimensionScores := map[string]float64{
		models.DimensionServiceMatch:      s.scoreServiceMatch(input),
		models.DimensionIndustryMatch:     s.scoreIndustryMatch(input),
		models.DimensionTimelineAlignment: s.scoreTimelineAlignment(input),
		models.DimensionCertifications:    s.scoreCertifications(input, model.Industry),
		models.DimensionValueRange:        s.scoreValueRange(input),
		models.DimensionPastWinSimilarity: s.scorePastWinSimilarity(input.SimilarEntries),
	}

	for dimension, bonus := range bonusesFor(model.Industry) {
		dimensionScores[dimension] = math.Min(100, dimensionScores[dimension]+bonus)
	}

	var weighted float64
	for dimension, score := range dimensionScores {
		weighted += score * model.ScoringWeights[dimension]
	}

	overall := int(math.Round(weighted))
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	confidence := math.Min(0.9, 0.5+0.1*math.Min(float64(len(input.SimilarEntries)), 4))

	result := &models.MatchResult{
		ID:              uuid.New().String(),
		RFPID:           input.RFPID,
		UserID:          input.UserID,
		Industry:        model.Industry,
		ModelVersion:    model.ModelVersion,
		OverallScore:    overall,
		DimensionScores: dimensionScores,
		ConfidenceLevel: confidence,
		SimilarEntries:  input.SimilarEntries,
		Verdict:         VerdictFor(overall),
		CreatedAt:       time.Now(),
	}

	insights := s.generateInsights(ctx, InsightRequest{
		Industry:        model.Industry,
		OverallScore:    overall,
		DimensionScores: dimensionScores,
		Profile:         input.Profile,
		KeyPhrases:      input.KeyPhrases,
	})
	result.RiskFactors = insights.RiskFactors
	result.SuccessPredictors = insights.SuccessPredictors
	result.RecommendedStrategy = insights.RecommendedStrategy

	logger.Info("Compatibility scored",
		zap.String("rfp_id", input.RFPID),
		zap.String("user_id", input.UserID),
		zap.Int("overall_score", overall),
		zap.String("verdict", result.Verdict),
		zap.Float64("confidence", confidence),
	)

	return result
}

func (s *Service) generateInsights(ctx context.Context, req InsightRequest) *Insights {
	if s.insights != nil {
		insights, err := s.insights.GenerateInsights(ctx, req)
		if err == nil {
			return insights
		}
		logger.Warn("Insight backend failed, using static fallback", zap.Error(err))
	}
	return fallbackInsights(req)
}

func (s *Service) scoreServiceMatch(input ScoreInput) float64 {
	if len(input.Profile.ServicesOffered) == 0 {
		return 50
	}

	haystack := strings.ToLower(input.DocumentText + " " + strings.Join(input.KeyPhrases, " "))

	matched := 0
	for _, service := range input.Profile.ServicesOffered {
		if strings.Contains(haystack, strings.ToLower(strings.TrimSpace(service))) {
			matched++
		}
	}

	if matched == 0 {
		return 35
	}

	return math.Min(100, 40+float64(matched)*15)
}

func (s *Service) scoreIndustryMatch(input ScoreInput) float64 {
	score := 60.0

	industry := normalizeIndustry(input.Profile.Industry)
	if industry != "" && strings.Contains(strings.ToLower(input.DocumentText), industry) {
		score += 25
	}

	if len(input.SimilarEntries) > 0 {
		score += 5
	}

	return math.Min(100, score)
}

func (s *Service) scoreTimelineAlignment(input ScoreInput) float64 {
	if _, ok := input.Sections["timeline"]; ok {
		return 85
	}

	lower := strings.ToLower(input.DocumentText)
	for _, marker := range []string{"timeline", "schedule", "period of performance", "duration"} {
		if strings.Contains(lower, marker) {
			return 75
		}
	}

	return 55
}

func (s *Service) scoreCertifications(input ScoreInput, industry string) float64 {
	required := requiredCertificationsFor(industry)
	if len(required) == 0 {
		return 70
	}

	held := strings.ToUpper(strings.Join(input.Certifications, " "))

	matched := 0
	for _, cert := range required {
		if certMentioned(held, cert) {
			matched++
		}
	}

	if matched == 0 {
		if len(input.Certifications) > 0 {
			return 40
		}
		return 30
	}

	return math.Round(100 * float64(matched) / float64(len(required)))
}

func certMentioned(held, cert string) bool {
	normalized := strings.ToUpper(cert)
	if strings.Contains(held, normalized) {
		return true
	}
	// "PCI-DSS" vs "PCI DSS", "ISO 27001" vs "ISO-27001"
	alt := strings.NewReplacer("-", " ", "  ", " ").Replace(normalized)
	return strings.Contains(strings.NewReplacer("-", " ").Replace(held), alt)
}

var valuePattern = regexp.MustCompile(`\$\s?([\d,]+(?:\.\d+)?)\s?(k|m|million|thousand)?`)

// Comfortable contract bands by company size, in dollars.
var valueBands = map[string][2]float64{
	"small":      {10_000, 250_000},
	"medium":     {50_000, 1_000_000},
	"large":      {100_000, 10_000_000},
	"enterprise": {500_000, 100_000_000},
}

func (s *Service) scoreValueRange(input ScoreInput) float64 {
	value, found := extractProjectValue(input.DocumentText)
	if !found {
		return 65
	}

	band, ok := valueBands[strings.ToLower(strings.TrimSpace(input.Profile.CompanySize))]
	if !ok {
		return 65
	}

	switch {
	case value >= band[0] && value <= band[1]:
		return 90
	case value < band[0]:
		return 70
	default:
		return 50
	}
}

func extractProjectValue(text string) (float64, bool) {
	match := valuePattern.FindStringSubmatch(strings.ToLower(text))
	if match == nil {
		return 0, false
	}

	raw := strings.ReplaceAll(match[1], ",", "")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}

	switch match[2] {
	case "k", "thousand":
		value *= 1_000
	case "m", "million":
		value *= 1_000_000
	}

	return value, true
}

// scorePastWinSimilarity reflects the win rate among the top-k similar
// historical entries. Pending outcomes carry no signal and are excluded.
func (s *Service) scorePastWinSimilarity(entries []models.SimilarEntry) float64 {
	if len(entries) == 0 {
		return 50
	}

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

	if decided == 0 {
		return 50
	}

	return math.Round(100 * float64(won) / float64(decided))
}
