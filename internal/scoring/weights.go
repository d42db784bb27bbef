package scoring

import (
	"github.com/bidmatch/backend/internal/storage/models"
)

// Built-in weight tables, one per industry, each summing to 1.0 across the
// six dimensions. Unknown industries fall back to the global default.
var industryWeightTables = map[string]models.ScoringWeights{
	"technology": {
		models.DimensionServiceMatch:      0.25,
		models.DimensionIndustryMatch:     0.15,
		models.DimensionTimelineAlignment: 0.15,
		models.DimensionCertifications:    0.10,
		models.DimensionValueRange:        0.15,
		models.DimensionPastWinSimilarity: 0.20,
	},
	"healthcare": {
		models.DimensionServiceMatch:      0.15,
		models.DimensionIndustryMatch:     0.20,
		models.DimensionTimelineAlignment: 0.10,
		models.DimensionCertifications:    0.25,
		models.DimensionValueRange:        0.10,
		models.DimensionPastWinSimilarity: 0.20,
	},
	"finance": {
		models.DimensionServiceMatch:      0.15,
		models.DimensionIndustryMatch:     0.20,
		models.DimensionTimelineAlignment: 0.10,
		models.DimensionCertifications:    0.25,
		models.DimensionValueRange:        0.15,
		models.DimensionPastWinSimilarity: 0.15,
	},
	"government": {
		models.DimensionServiceMatch:      0.15,
		models.DimensionIndustryMatch:     0.15,
		models.DimensionTimelineAlignment: 0.15,
		models.DimensionCertifications:    0.25,
		models.DimensionValueRange:        0.10,
		models.DimensionPastWinSimilarity: 0.20,
	},
	"construction": {
		models.DimensionServiceMatch:      0.20,
		models.DimensionIndustryMatch:     0.15,
		models.DimensionTimelineAlignment: 0.20,
		models.DimensionCertifications:    0.15,
		models.DimensionValueRange:        0.15,
		models.DimensionPastWinSimilarity: 0.15,
	},
	"consulting": {
		models.DimensionServiceMatch:      0.25,
		models.DimensionIndustryMatch:     0.20,
		models.DimensionTimelineAlignment: 0.15,
		models.DimensionCertifications:    0.05,
		models.DimensionValueRange:        0.15,
		models.DimensionPastWinSimilarity: 0.20,
	},
	"manufacturing": {
		models.DimensionServiceMatch:      0.20,
		models.DimensionIndustryMatch:     0.15,
		models.DimensionTimelineAlignment: 0.15,
		models.DimensionCertifications:    0.15,
		models.DimensionValueRange:        0.20,
		models.DimensionPastWinSimilarity: 0.15,
	},
}

var globalDefaultWeights = models.ScoringWeights{
	models.DimensionServiceMatch:      0.20,
	models.DimensionIndustryMatch:     0.15,
	models.DimensionTimelineAlignment: 0.15,
	models.DimensionCertifications:    0.15,
	models.DimensionValueRange:        0.15,
	models.DimensionPastWinSimilarity: 0.20,
}

// Certifications an RFP in each industry typically demands. Scored against
// the certification mentions extracted from the document.
var industryCertifications = map[string][]string{
	"healthcare":    {"HIPAA", "HITRUST", "SOC 2"},
	"finance":       {"PCI-DSS", "SOC 2", "ISO 27001"},
	"government":    {"FEDRAMP", "NIST", "CMMC"},
	"technology":    {"ISO 27001", "SOC 2"},
	"manufacturing": {"ISO 9001"},
	"construction":  {"ISO 9001"},
}

// Additive score bonuses per industry, applied after raw dimension scoring
// and capped at 100.
var industryBonuses = map[string]map[string]float64{
	"healthcare": {models.DimensionCertifications: 10},
	"finance":    {models.DimensionCertifications: 10},
	"government": {models.DimensionCertifications: 8},
	"technology": {models.DimensionServiceMatch: 5},
}

func WeightTableFor(industry string) models.ScoringWeights {
	if table, ok := industryWeightTables[normalizeIndustry(industry)]; ok {
		return table.Clone()
	}
	return globalDefaultWeights.Clone()
}

func KnownIndustries() []string {
	industries := make([]string, 0, len(industryWeightTables))
	for industry := range industryWeightTables {
		industries = append(industries, industry)
	}
	return industries
}

func requiredCertificationsFor(industry string) []string {
	return industryCertifications[normalizeIndustry(industry)]
}

func bonusesFor(industry string) map[string]float64 {
	return industryBonuses[normalizeIndustry(industry)]
}

func normalizeIndustry(industry string) string {
	return models.NormalizeIndustry(industry)
}

// VerdictFor maps an overall score to its fit band. Lower bounds are
// inclusive: 0-40 Low, 41-65 Medium, 66-80 High, 81-100 Strong.
func VerdictFor(score int) string {
	switch {
	case score > 80:
		return "Strong Fit"
	case score >= 66:
		return "High Fit"
	case score >= 41:
		return "Medium Fit"
	default:
		return "Low Fit"
	}
}
