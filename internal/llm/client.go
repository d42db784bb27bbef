package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/classifier"
	"github.com/bidmatch/backend/internal/scoring"
	"github.com/bidmatch/backend/pkg/circuitbreaker"
	"github.com/bidmatch/backend/pkg/logger"
	"github.com/bidmatch/backend/pkg/retry"
)

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	embeddingDim   int
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewClient(apiKey, model, embeddingModel string, embeddingDim int, temperature float32, maxTokens, timeoutSec int) *Client {
	client := openai.NewClient(apiKey)

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		HalfOpenRequests: 3,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		Attempts:       3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Permanent:      []error{ErrMalformedResponse},
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(timeoutSec) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		embeddingDim:   embeddingDim,
		temperature:    temperature,
		maxTokens:      maxTokens,
		timeout:        timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: userPrompt,
		},
	}

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: c.temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})

	if err != nil {
		return "", err
	}

	return content, nil
}

// ClassifyDocument implements classifier.Backend.
func (c *Client) ClassifyDocument(ctx context.Context, text string) (*classifier.Result, error) {
	systemPrompt := `You are a procurement document classifier. Decide whether the given text is a
legitimate solicitation document (RFP/RFQ) a vendor could bid on.

Document types: RFP, Invoice, Resume, BusinessDocument.

Return ONLY JSON:
{"is_valid_rfp": true, "document_type": "RFP", "confidence": 0.9, "fit_score": 85,
 "extracted_sections": {"scope": "...", "timeline": "...", "budget": "...", "requirements": "...", "evaluation": "..."},
 "rejection_reason": ""}

fit_score is 0-100. Omit sections that are not present. Populate rejection_reason
only when is_valid_rfp is false.`

	userPrompt := fmt.Sprintf("Classify this document:\n\n%s\n\nReturn JSON only.", text)

	content, err := c.complete(ctx, systemPrompt, userPrompt, 600)
	if err != nil {
		return nil, err
	}

	result, err := parseClassification(content)
	if err != nil {
		return nil, err
	}

	logger.Info("Document classified by backend",
		zap.String("document_type", string(result.DocumentType)),
		zap.Float64("confidence", result.Confidence),
	)

	return result, nil
}

// ExtractFeatures implements features.Backend.
func (c *Client) ExtractFeatures(ctx context.Context, rfpText, proposalText string) ([]string, []string, error) {
	systemPrompt := `You analyze procurement documents. Extract up to 20 key service phrases and
any certification or compliance mentions (ISO, SOC, HIPAA, PCI-DSS, FedRAMP, CMMI, ...).

Return ONLY JSON:
{"key_phrases": ["cloud migration", "data analysis"], "certifications": ["ISO 27001", "SOC 2"]}`

	combined := rfpText
	if proposalText != "" {
		combined = fmt.Sprintf("RFP:\n%s\n\nProposal:\n%s", rfpText, proposalText)
	}
	userPrompt := fmt.Sprintf("Extract features from:\n\n%s\n\nReturn JSON only.", combined)

	content, err := c.complete(ctx, systemPrompt, userPrompt, 500)
	if err != nil {
		return nil, nil, err
	}

	keyPhrases, certifications, err := parseFeatures(content)
	if err != nil {
		return nil, nil, err
	}

	logger.Debug("Features extracted by backend",
		zap.Int("key_phrases", len(keyPhrases)),
		zap.Int("certifications", len(certifications)),
	)

	return keyPhrases, certifications, nil
}

// GenerateInsights implements scoring.InsightBackend.
func (c *Client) GenerateInsights(ctx context.Context, req scoring.InsightRequest) (*scoring.Insights, error) {
	systemPrompt := `You are a proposal strategist. Given compatibility scores for an RFP, produce
risk factors, success predictors, and a recommended bidding strategy.

Return ONLY JSON:
{"risk_factors": ["..."], "success_predictors": ["..."], "recommended_strategy": "..."}`

	var scores strings.Builder
	for dimension, score := range req.DimensionScores {
		fmt.Fprintf(&scores, "- %s: %.0f\n", dimension, score)
	}

	userPrompt := fmt.Sprintf(`Industry: %s
Overall score: %d
Dimension scores:
%s
Services offered: %s
Key phrases: %s

Return JSON only.`,
		req.Industry,
		req.OverallScore,
		scores.String(),
		strings.Join(req.Profile.ServicesOffered, ", "),
		strings.Join(req.KeyPhrases, ", "),
	)

	content, err := c.complete(ctx, systemPrompt, userPrompt, 600)
	if err != nil {
		return nil, err
	}

	return parseInsights(content)
}

// Embed implements embedding.Backend.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var vector []float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(
				ctx,
				openai.EmbeddingRequest{
					Input:      []string{text},
					Model:      openai.EmbeddingModel(c.embeddingModel),
					Dimensions: c.embeddingDim,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to generate embedding: %w", err)
			}

			if len(resp.Data) == 0 {
				return fmt.Errorf("embedding response contained no data")
			}

			vector = make([]float32, len(resp.Data[0].Embedding))
			copy(vector, resp.Data[0].Embedding)

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return vector, nil
}
