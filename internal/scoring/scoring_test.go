package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidmatch/backend/internal/storage/models"
)

func TestWeightTablesSumToOne(t *testing.T) {
	for industry, table := range industryWeightTables {
		assert.InDelta(t, 1.0, table.Sum(), 1e-6, "industry %s", industry)
		assert.Len(t, table, len(models.Dimensions), "industry %s", industry)
	}
	assert.InDelta(t, 1.0, globalDefaultWeights.Sum(), 1e-6)
}

func TestWeightTableForUnknownIndustryUsesDefault(t *testing.T) {
	table := WeightTableFor("interpretive dance")

	assert.Equal(t, globalDefaultWeights, table)
}

func TestWeightTableForReturnsClone(t *testing.T) {
	table := WeightTableFor("technology")
	table[models.DimensionServiceMatch] = 99

	fresh := WeightTableFor("technology")
	assert.InDelta(t, 0.25, fresh[models.DimensionServiceMatch], 1e-9)
}

func TestVerdictBands(t *testing.T) {
	cases := []struct {
		score   int
		verdict string
	}{
		{0, "Low Fit"},
		{40, "Low Fit"},
		{41, "Medium Fit"},
		{65, "Medium Fit"},
		{66, "High Fit"},
		{80, "High Fit"},
		{81, "Strong Fit"},
		{100, "Strong Fit"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.verdict, VerdictFor(tc.score), "score %d", tc.score)
	}
}

type fakeStore struct {
	models      map[string]*models.IndustryModel
	insertErr   error
	insertCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{models: make(map[string]*models.IndustryModel)}
}

func (f *fakeStore) GetActiveIndustryModel(userID, industry string) (*models.IndustryModel, error) {
	m, ok := f.models[userID+"/"+industry]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) InsertIndustryModel(m *models.IndustryModel) error {
	f.insertCalls++
	if f.insertErr != nil {
		return f.insertErr
	}
	f.models[m.UserID+"/"+m.Industry] = m
	return nil
}

func TestGetOrCreateModelSeedsOnFirstUse(t *testing.T) {
	svc := NewService(newFakeStore(), nil)

	model, err := svc.GetOrCreateModel("user-1", "Healthcare")

	require.NoError(t, err)
	assert.Equal(t, "healthcare", model.Industry)
	assert.Equal(t, 1, model.ModelVersion)
	assert.True(t, model.IsActive)
	assert.InDelta(t, 1.0, model.ScoringWeights.Sum(), 1e-6)
	assert.Zero(t, model.TrainingDataCount)
}

func TestGetOrCreateModelReturnsExisting(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	first, err := svc.GetOrCreateModel("user-1", "technology")
	require.NoError(t, err)

	second, err := svc.GetOrCreateModel("user-1", "technology")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestGetOrCreateModelMixedCaseIndustry(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	first, err := svc.GetOrCreateModel("user-1", "Technology")
	require.NoError(t, err)
	assert.Equal(t, "technology", first.Industry)

	// Lookups and seeds must share the same industry key, or the second
	// call misses the existing row and tries to seed a duplicate.
	second, err := svc.GetOrCreateModel("user-1", "Technology")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, store.insertCalls)

	third, err := svc.GetOrCreateModel("user-1", " TECHNOLOGY ")
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
}

func TestGetOrCreateModelLosingRaceReReads(t *testing.T) {
	store := newFakeStore()
	winner := &models.IndustryModel{ID: "winner", UserID: "user-1", Industry: "finance"}

	store.insertErr = errors.New("unique constraint violated")
	svc := NewService(store, nil)

	// Simulate a concurrent writer landing between the read and the insert.
	store.models["user-1/finance"] = winner

	model, err := svc.GetOrCreateModel("user-1", "finance")

	require.NoError(t, err)
	assert.Equal(t, "winner", model.ID)
}

func baselineModel(industry string) *models.IndustryModel {
	return &models.IndustryModel{
		ID:             "model-1",
		UserID:         "user-1",
		Industry:       industry,
		ModelVersion:   1,
		ScoringWeights: WeightTableFor(industry),
	}
}

func TestScoreNeutralInput(t *testing.T) {
	svc := NewService(newFakeStore(), nil)

	result := svc.Score(context.Background(), ScoreInput{
		RFPID:        "rfp-1",
		UserID:       "user-1",
		DocumentText: "a short document with no recognizable signals",
	}, baselineModel("unknown"))

	assert.Equal(t, 58, result.OverallScore)
	assert.Equal(t, "Medium Fit", result.Verdict)
	assert.InDelta(t, 0.5, result.ConfidenceLevel, 1e-9)
	assert.Len(t, result.DimensionScores, len(models.Dimensions))
}

func TestScoreBoundsAndDimensionRanges(t *testing.T) {
	svc := NewService(newFakeStore(), nil)

	result := svc.Score(context.Background(), ScoreInput{
		RFPID:          "rfp-1",
		UserID:         "user-1",
		DocumentText:   "healthcare project, timeline 12 weeks, budget $500,000, HIPAA and HITRUST and SOC 2 required",
		Certifications: []string{"HIPAA", "HITRUST", "SOC 2"},
		Profile: models.UserProfile{
			Industry:        "healthcare",
			CompanySize:     "medium",
			ServicesOffered: []string{"healthcare"},
		},
		SimilarEntries: []models.SimilarEntry{
			{ID: "a", Similarity: 0.9, Outcome: models.OutcomeWon},
			{ID: "b", Similarity: 0.8, Outcome: models.OutcomeWon},
			{ID: "c", Similarity: 0.7, Outcome: models.OutcomeLost},
		},
	}, baselineModel("healthcare"))

	assert.GreaterOrEqual(t, result.OverallScore, 0)
	assert.LessOrEqual(t, result.OverallScore, 100)
	for dimension, score := range result.DimensionScores {
		assert.GreaterOrEqual(t, score, 0.0, dimension)
		assert.LessOrEqual(t, score, 100.0, dimension)
	}
}

func TestScoreConfidenceGrowsWithHistory(t *testing.T) {
	svc := NewService(newFakeStore(), nil)
	model := baselineModel("technology")

	entries := []models.SimilarEntry{}
	expected := []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.9}

	for i, want := range expected {
		result := svc.Score(context.Background(), ScoreInput{
			RFPID:          "rfp-1",
			UserID:         "user-1",
			DocumentText:   "text",
			SimilarEntries: entries,
		}, model)
		assert.InDelta(t, want, result.ConfidenceLevel, 1e-9, "with %d entries", i)
		entries = append(entries, models.SimilarEntry{ID: "e", Outcome: models.OutcomeWon})
	}
}

func TestIndustryBonusIsCappedAt100(t *testing.T) {
	svc := NewService(newFakeStore(), nil)

	result := svc.Score(context.Background(), ScoreInput{
		RFPID:          "rfp-1",
		UserID:         "user-1",
		DocumentText:   "text",
		Certifications: []string{"HIPAA", "HITRUST", "SOC 2"},
	}, baselineModel("healthcare"))

	// All three required certifications held: 100 raw, bonus must not push past the cap.
	assert.InDelta(t, 100, result.DimensionScores[models.DimensionCertifications], 1e-9)
}

func TestScorePastWinSimilarity(t *testing.T) {
	svc := NewService(newFakeStore(), nil)

	assert.InDelta(t, 50, svc.scorePastWinSimilarity(nil), 1e-9)

	allPending := []models.SimilarEntry{
		{Outcome: models.OutcomePending},
		{Outcome: models.OutcomePending},
	}
	assert.InDelta(t, 50, svc.scorePastWinSimilarity(allPending), 1e-9)

	mixed := []models.SimilarEntry{
		{Outcome: models.OutcomeWon},
		{Outcome: models.OutcomeWon},
		{Outcome: models.OutcomeWon},
		{Outcome: models.OutcomeLost},
		{Outcome: models.OutcomePending},
	}
	assert.InDelta(t, 75, svc.scorePastWinSimilarity(mixed), 1e-9)
}

func TestScoreServiceMatch(t *testing.T) {
	svc := NewService(newFakeStore(), nil)

	noServices := svc.scoreServiceMatch(ScoreInput{DocumentText: "anything"})
	assert.InDelta(t, 50, noServices, 1e-9)

	noMatches := svc.scoreServiceMatch(ScoreInput{
		DocumentText: "building a bridge",
		Profile:      models.UserProfile{ServicesOffered: []string{"cloud migration"}},
	})
	assert.InDelta(t, 35, noMatches, 1e-9)

	twoMatches := svc.scoreServiceMatch(ScoreInput{
		DocumentText: "cloud migration and devops automation",
		Profile:      models.UserProfile{ServicesOffered: []string{"cloud migration", "devops", "graphic design"}},
	})
	assert.InDelta(t, 70, twoMatches, 1e-9)
}

func TestScoreValueRange(t *testing.T) {
	svc := NewService(newFakeStore(), nil)

	inBand := svc.scoreValueRange(ScoreInput{
		DocumentText: "total budget not to exceed $500,000",
		Profile:      models.UserProfile{CompanySize: "medium"},
	})
	assert.InDelta(t, 90, inBand, 1e-9)

	belowBand := svc.scoreValueRange(ScoreInput{
		DocumentText: "estimated cost $5,000",
		Profile:      models.UserProfile{CompanySize: "enterprise"},
	})
	assert.InDelta(t, 70, belowBand, 1e-9)

	aboveBand := svc.scoreValueRange(ScoreInput{
		DocumentText: "project value $2m",
		Profile:      models.UserProfile{CompanySize: "small"},
	})
	assert.InDelta(t, 50, aboveBand, 1e-9)

	noValue := svc.scoreValueRange(ScoreInput{
		DocumentText: "no budget mentioned",
		Profile:      models.UserProfile{CompanySize: "small"},
	})
	assert.InDelta(t, 65, noValue, 1e-9)
}

func TestExtractProjectValue(t *testing.T) {
	cases := []struct {
		text  string
		value float64
		found bool
	}{
		{"budget of $250,000 total", 250_000, true},
		{"up to $1.5m available", 1_500_000, true},
		{"approximately $750k", 750_000, true},
		{"$2 million ceiling", 2_000_000, true},
		{"no dollars here", 0, false},
	}

	for _, tc := range cases {
		value, found := extractProjectValue(tc.text)
		assert.Equal(t, tc.found, found, tc.text)
		if tc.found {
			assert.InDelta(t, tc.value, value, 1e-9, tc.text)
		}
	}
}

type fakeInsightBackend struct {
	insights *Insights
	err      error
}

func (f *fakeInsightBackend) GenerateInsights(ctx context.Context, req InsightRequest) (*Insights, error) {
	return f.insights, f.err
}

func TestInsightBackendFailureUsesFallback(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeInsightBackend{err: errors.New("model unavailable")})

	result := svc.Score(context.Background(), ScoreInput{
		RFPID:        "rfp-1",
		UserID:       "user-1",
		DocumentText: "text",
	}, baselineModel("technology"))

	assert.NotEmpty(t, result.RiskFactors)
	assert.NotEmpty(t, result.RecommendedStrategy)
}

func TestInsightBackendResultAttached(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeInsightBackend{insights: &Insights{
		RiskFactors:         []string{"tight timeline"},
		SuccessPredictors:   []string{"strong past performance"},
		RecommendedStrategy: "lead with case studies",
	}})

	result := svc.Score(context.Background(), ScoreInput{
		RFPID:        "rfp-1",
		UserID:       "user-1",
		DocumentText: "text",
	}, baselineModel("technology"))

	assert.Equal(t, []string{"tight timeline"}, result.RiskFactors)
	assert.Equal(t, "lead with case studies", result.RecommendedStrategy)
}
