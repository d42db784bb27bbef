package scoring

import (
	"context"

	"github.com/bidmatch/backend/internal/storage/models"
)

type Insights struct {
	RiskFactors         []string `json:"risk_factors"`
	SuccessPredictors   []string `json:"success_predictors"`
	RecommendedStrategy string   `json:"recommended_strategy"`
}

type InsightRequest struct {
	Industry        string
	OverallScore    int
	DimensionScores map[string]float64
	Profile         models.UserProfile
	KeyPhrases      []string
}

// InsightBackend generates strategic guidance from the scored dimensions.
// Failures substitute the static fallback set; a match result is always
// producible once dimension scores exist.
type InsightBackend interface {
	GenerateInsights(ctx context.Context, req InsightRequest) (*Insights, error)
}

func fallbackInsights(req InsightRequest) *Insights {
	insights := &Insights{
		RiskFactors: []string{
			"Limited historical data for this opportunity profile",
			"Competitive landscape not assessed",
		},
		SuccessPredictors: []string{
			"Document matched vendor service offerings",
		},
		RecommendedStrategy: "Emphasize relevant past performance and address every stated requirement explicitly.",
	}

	if score, ok := req.DimensionScores[models.DimensionCertifications]; ok && score < 50 {
		insights.RiskFactors = append(insights.RiskFactors,
			"Required certifications may not be fully covered")
	}

	if score, ok := req.DimensionScores[models.DimensionTimelineAlignment]; ok && score < 50 {
		insights.RiskFactors = append(insights.RiskFactors,
			"Timeline expectations are unclear in the solicitation")
	}

	if score, ok := req.DimensionScores[models.DimensionPastWinSimilarity]; ok && score >= 70 {
		insights.SuccessPredictors = append(insights.SuccessPredictors,
			"Strong win rate on similar historical opportunities")
	}

	return insights
}
