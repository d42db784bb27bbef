package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidmatch/backend/internal/classifier"
	"github.com/bidmatch/backend/internal/embedding"
	"github.com/bidmatch/backend/internal/features"
	"github.com/bidmatch/backend/internal/memory"
	"github.com/bidmatch/backend/internal/scoring"
	"github.com/bidmatch/backend/internal/storage/models"
)

type memoryStore struct {
	entries []models.MemoryBankEntry
	models  map[string]*models.IndustryModel
	results []*models.MatchResult
}

func newMemoryStore() *memoryStore {
	return &memoryStore{models: make(map[string]*models.IndustryModel)}
}

func (s *memoryStore) InsertMemoryBankEntry(entry *models.MemoryBankEntry) error {
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memoryStore) ListMemoryBankEntries(userID, industry string) ([]models.MemoryBankEntry, error) {
	var out []models.MemoryBankEntry
	for _, entry := range s.entries {
		if entry.UserID == userID && entry.Industry == industry {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *memoryStore) CountMemoryBankEntries(userID, industry string) (int, error) {
	entries, _ := s.ListMemoryBankEntries(userID, industry)
	return len(entries), nil
}

func (s *memoryStore) GetActiveIndustryModel(userID, industry string) (*models.IndustryModel, error) {
	m, ok := s.models[userID+"/"+industry]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m, nil
}

func (s *memoryStore) InsertIndustryModel(m *models.IndustryModel) error {
	s.models[m.UserID+"/"+m.Industry] = m
	return nil
}

func (s *memoryStore) InsertMatchResult(r *models.MatchResult) error {
	s.results = append(s.results, r)
	return nil
}

func newEngineFixture() (*Engine, *memoryStore, *memory.Bank) {
	store := newMemoryStore()
	embedder := embedding.NewService(128, nil, nil)
	bank := memory.NewBank(store, embedder, nil)
	eng := New(
		classifier.New(nil, 0),
		features.NewExtractor(nil, embedder),
		bank,
		scoring.NewService(store, nil),
		store,
		nil,
		5,
	)
	return eng, store, bank
}

const rfpText = `Request for Proposal: Cloud Migration Services.
Scope of Work: migrate legacy workloads to the cloud, timeline 16 weeks.
Budget: not to exceed $400,000.
Vendors must hold ISO 27001 and SOC 2 certification.`

func seedHistory(t *testing.T, bank *memory.Bank, won, lost int) {
	t.Helper()
	ctx := context.Background()
	// Lost entries first; ties in similarity rank newest entries ahead, so
	// the wins dominate the retrieved top-k.
	outcomes := make([]models.Outcome, 0, won+lost)
	for i := 0; i < lost; i++ {
		outcomes = append(outcomes, models.OutcomeLost)
	}
	for i := 0; i < won; i++ {
		outcomes = append(outcomes, models.OutcomeWon)
	}
	base := time.Now().Add(-24 * time.Hour)
	for i, outcome := range outcomes {
		_, err := bank.Store(ctx, &models.MemoryBankEntry{
			UserID:    "user-1",
			Industry:  "technology",
			RFPText:   rfpText,
			Outcome:   outcome,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func TestAnalyzeRejectsInvoice(t *testing.T) {
	eng, store, _ := newEngineFixture()

	_, err := eng.Analyze(context.Background(), AnalyzeRequest{
		RFPID:        "rfp-1",
		UserID:       "user-1",
		DocumentText: "Invoice Number: 555. Bill To: Acme. Amount Due: $1,000.",
	})

	var invalidDoc *InvalidDocumentError
	require.ErrorAs(t, err, &invalidDoc)
	assert.Equal(t, classifier.TypeInvoice, invalidDoc.DocumentType)
	assert.NotEmpty(t, invalidDoc.Reason)
	assert.Empty(t, store.results)
}

func TestAnalyzeColdStart(t *testing.T) {
	eng, store, _ := newEngineFixture()

	result, err := eng.Analyze(context.Background(), AnalyzeRequest{
		RFPID:        "rfp-1",
		UserID:       "user-1",
		DocumentText: rfpText,
		Profile: models.UserProfile{
			Industry:    "technology",
			CompanySize: "medium",
		},
	})

	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.ConfidenceLevel, 1e-9)
	assert.Empty(t, result.SimilarEntries)
	assert.Equal(t, "technology", result.Industry)
	assert.NotEmpty(t, result.Verdict)

	// The model was seeded and the result persisted.
	require.Len(t, store.results, 1)
	assert.Contains(t, store.models, "user-1/technology")
}

func TestAnalyzeWithWinningHistory(t *testing.T) {
	eng, _, bank := newEngineFixture()
	seedHistory(t, bank, 9, 3)

	result, err := eng.Analyze(context.Background(), AnalyzeRequest{
		RFPID:        "rfp-1",
		UserID:       "user-1",
		DocumentText: rfpText,
		Profile: models.UserProfile{
			Industry:        "technology",
			CompanySize:     "medium",
			ServicesOffered: []string{"cloud migration"},
		},
	})

	require.NoError(t, err)
	assert.Len(t, result.SimilarEntries, 5)
	assert.InDelta(t, 0.9, result.ConfidenceLevel, 1e-9)
	assert.GreaterOrEqual(t, result.OverallScore, 66, "winning history should lift the score")
	assert.GreaterOrEqual(t, result.DimensionScores[models.DimensionPastWinSimilarity], 60.0)
}

func TestAnalyzeIsDeterministicForSameInput(t *testing.T) {
	eng, _, bank := newEngineFixture()
	seedHistory(t, bank, 4, 1)

	req := AnalyzeRequest{
		RFPID:        "rfp-1",
		UserID:       "user-1",
		DocumentText: rfpText,
		Profile: models.UserProfile{
			Industry:    "technology",
			CompanySize: "medium",
		},
	}

	first, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, first.DimensionScores, second.DimensionScores)
	assert.Equal(t, first.Verdict, second.Verdict)
}

type stubCache struct {
	store map[string]*models.MatchResult
	hits  int
}

func (c *stubCache) GetMatchResult(ctx context.Context, key string) (*models.MatchResult, bool, error) {
	r, ok := c.store[key]
	if ok {
		c.hits++
	}
	return r, ok, nil
}

func (c *stubCache) SetMatchResult(ctx context.Context, key string, result *models.MatchResult) error {
	c.store[key] = result
	return nil
}

func TestAnalyzeServesFromCache(t *testing.T) {
	store := newMemoryStore()
	embedder := embedding.NewService(128, nil, nil)
	cache := &stubCache{store: make(map[string]*models.MatchResult)}
	eng := New(
		classifier.New(nil, 0),
		features.NewExtractor(nil, embedder),
		memory.NewBank(store, embedder, nil),
		scoring.NewService(store, nil),
		store,
		cache,
		5,
	)

	req := AnalyzeRequest{
		RFPID:        "rfp-1",
		UserID:       "user-1",
		DocumentText: rfpText,
		Profile:      models.UserProfile{Industry: "technology"},
	}

	first, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)

	second, err := eng.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first.ID, second.ID)
	// Only the first run writes a result row.
	assert.Len(t, store.results, 1)
}

func TestInvalidDocumentErrorMessage(t *testing.T) {
	err := &InvalidDocumentError{
		DocumentType: classifier.TypeResume,
		Reason:       "document appears to be a resume",
	}

	assert.Contains(t, err.Error(), "Resume")
	assert.Contains(t, err.Error(), "resume")
}
