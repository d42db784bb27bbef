package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/embedding"
	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

const DefaultTopK = 5

type Store interface {
	InsertMemoryBankEntry(entry *models.MemoryBankEntry) error
	ListMemoryBankEntries(userID, industry string) ([]models.MemoryBankEntry, error)
	CountMemoryBankEntries(userID, industry string) (int, error)
}

// VectorIndex is an optional ANN index over entry embeddings. When absent or
// failing, the bank scans stored entries in-process.
type VectorIndex interface {
	Insert(ctx context.Context, entry *models.MemoryBankEntry) error
	Search(ctx context.Context, userID, industry string, vector []float32, topK int) ([]models.SimilarEntry, error)
}

type Bank struct {
	store    Store
	embedder *embedding.Service
	index    VectorIndex
}

func NewBank(store Store, embedder *embedding.Service, index VectorIndex) *Bank {
	return &Bank{
		store:    store,
		embedder: embedder,
		index:    index,
	}
}

// Store appends a historical entry. Entries are never mutated or removed;
// the bank is the user's permanent record of past outcomes.
func (b *Bank) Store(ctx context.Context, entry *models.MemoryBankEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.Industry = models.NormalizeIndustry(entry.Industry)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Outcome == "" {
		entry.Outcome = models.OutcomePending
	}
	if len(entry.Embedding) == 0 {
		entry.Embedding = b.embedder.Embed(ctx, entry.RFPText+"\n"+entry.ProposalText)
	}

	if err := b.store.InsertMemoryBankEntry(entry); err != nil {
		return "", fmt.Errorf("failed to store memory bank entry: %w", err)
	}

	if b.index != nil {
		if err := b.index.Insert(ctx, entry); err != nil {
			logger.Warn("Failed to index memory bank entry, scan fallback remains available",
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
		}
	}

	logger.Info("Memory bank entry stored",
		zap.String("entry_id", entry.ID),
		zap.String("user_id", entry.UserID),
		zap.String("industry", entry.Industry),
		zap.String("outcome", string(entry.Outcome)),
	)

	return entry.ID, nil
}

func (b *Bank) Count(userID, industry string) (int, error) {
	return b.store.CountMemoryBankEntries(userID, models.NormalizeIndustry(industry))
}

// QueryNearest returns the top-k historical entries most similar to the query
// text, scoped to (user, industry). An empty result is a valid outcome, not
// an error.
func (b *Bank) QueryNearest(ctx context.Context, userID, industry, queryText string, k int) ([]models.SimilarEntry, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	industry = models.NormalizeIndustry(industry)

	queryVector := b.embedder.Embed(ctx, queryText)

	if b.index != nil {
		hits, err := b.index.Search(ctx, userID, industry, queryVector, k)
		if err == nil {
			return hits, nil
		}
		logger.Warn("Vector index search failed, scanning stored entries", zap.Error(err))
	}

	entries, err := b.store.ListMemoryBankEntries(userID, industry)
	if err != nil {
		return nil, fmt.Errorf("failed to list memory bank entries: %w", err)
	}

	if len(entries) == 0 {
		return nil, nil
	}

	type scored struct {
		entry      models.MemoryBankEntry
		similarity float64
	}

	ranked := make([]scored, 0, len(entries))
	for _, entry := range entries {
		var similarity float64
		if len(entry.Embedding) == len(queryVector) && len(entry.Embedding) > 0 {
			similarity = embedding.Cosine(queryVector, entry.Embedding)
		} else {
			similarity = embedding.Jaccard(queryText, entry.RFPText)
		}
		ranked = append(ranked, scored{entry: entry, similarity: similarity})
	}

	// Ties broken by most recent first.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].similarity != ranked[j].similarity {
			return ranked[i].similarity > ranked[j].similarity
		}
		return ranked[i].entry.CreatedAt.After(ranked[j].entry.CreatedAt)
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}

	results := make([]models.SimilarEntry, len(ranked))
	for i, r := range ranked {
		results[i] = models.SimilarEntry{
			ID:         r.entry.ID,
			Similarity: r.similarity,
			Outcome:    r.entry.Outcome,
		}
	}

	logger.Debug("Nearest entries retrieved",
		zap.String("user_id", userID),
		zap.String("industry", industry),
		zap.Int("results", len(results)),
	)

	return results, nil
}
