package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

// Index keeps memory-bank embeddings in Milvus for ANN retrieval. Entries are
// L2-normalized, so inner-product scores are cosine similarities.
type Index struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewIndex(endpoint, collectionName string, vectorDim int) (*Index, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus index initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Index{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (x *Index) Close() error {
	return x.client.Close()
}

func (x *Index) EnsureCollection(ctx context.Context) error {
	has, err := x.client.HasCollection(ctx, x.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", x.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: x.collectionName,
		Description:    "Memory bank entry embeddings",
		Fields: []*entity.Field{
			{
				Name:       "entry_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "user_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "industry",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "outcome",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "16",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", x.vectorDim),
				},
			},
			{
				Name:     "created_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = x.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}

	err = x.client.CreateIndex(ctx, x.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = x.client.LoadCollection(ctx, x.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", x.collectionName))

	return nil
}

func (x *Index) Insert(ctx context.Context, e *models.MemoryBankEntry) error {
	_, err := x.client.Insert(
		ctx,
		x.collectionName,
		"",
		entity.NewColumnVarChar("entry_id", []string{e.ID}),
		entity.NewColumnVarChar("user_id", []string{e.UserID}),
		entity.NewColumnVarChar("industry", []string{e.Industry}),
		entity.NewColumnVarChar("outcome", []string{string(e.Outcome)}),
		entity.NewColumnFloatVector("embedding", x.vectorDim, [][]float32{e.Embedding}),
		entity.NewColumnInt64("created_at", []int64{e.CreatedAt.Unix()}),
	)

	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	err = x.client.Flush(ctx, x.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Entry indexed", zap.String("entry_id", e.ID))

	return nil
}

func (x *Index) Search(ctx context.Context, userID, industry string, vector []float32, topK int) ([]models.SimilarEntry, error) {
	expr := fmt.Sprintf(`user_id == "%s" && industry == "%s"`, userID, industry)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := x.client.Search(
		ctx,
		x.collectionName,
		[]string{},
		expr,
		[]string{"entry_id", "outcome"},
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]models.SimilarEntry, 0)
	for _, sr := range searchResult {
		entryIDCol := sr.Fields.GetColumn("entry_id")
		outcomeCol := sr.Fields.GetColumn("outcome")

		for i := 0; i < sr.ResultCount; i++ {
			entryID, _ := entryIDCol.Get(i)
			outcome, _ := outcomeCol.Get(i)

			similarity := float64(sr.Scores[i])
			if similarity < 0 {
				similarity = 0
			}
			if similarity > 1 {
				similarity = 1
			}

			results = append(results, models.SimilarEntry{
				ID:         entryID.(string),
				Similarity: similarity,
				Outcome:    models.Outcome(outcome.(string)),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}
