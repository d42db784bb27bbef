package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/storage/models"
	"github.com/bidmatch/backend/pkg/logger"
)

type Client struct {
	client       *redis.Client
	resultTTL    time.Duration
	embeddingTTL time.Duration
}

func NewClient(host string, port int, password string, db int, resultTTL, embeddingTTL time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{
		client:       client,
		resultTTL:    resultTTL,
		embeddingTTL: embeddingTTL,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) SetMatchResult(ctx context.Context, key string, result *models.MatchResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal match result: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("match:%s", key), data, c.resultTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set match result cache: %w", err)
	}

	logger.Debug("Match result cached", zap.String("key", key))
	return nil
}

func (c *Client) GetMatchResult(ctx context.Context, key string) (*models.MatchResult, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("match:%s", key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get match result cache: %w", err)
	}

	var result models.MatchResult
	err = json.Unmarshal(data, &result)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal match result: %w", err)
	}

	logger.Debug("Match result cache hit", zap.String("key", key))
	return &result, true, nil
}

func (c *Client) SetEmbedding(ctx context.Context, key string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}

	err = c.client.Set(ctx, fmt.Sprintf("embedding:%s", key), data, c.embeddingTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set embedding cache: %w", err)
	}

	return nil
}

func (c *Client) GetEmbedding(ctx context.Context, key string) ([]float32, bool, error) {
	data, err := c.client.Get(ctx, fmt.Sprintf("embedding:%s", key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get embedding cache: %w", err)
	}

	var embedding []float32
	err = json.Unmarshal(data, &embedding)
	if err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}

	return embedding, true, nil
}
