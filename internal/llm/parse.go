package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bidmatch/backend/internal/classifier"
	"github.com/bidmatch/backend/internal/scoring"
)

// ErrMalformedResponse marks backend output that failed schema validation.
// Callers treat it like any other backend failure and take the fallback path;
// no string-level JSON repair is attempted.
var ErrMalformedResponse = errors.New("malformed backend response")

type classificationPayload struct {
	IsValidRFP        bool              `json:"is_valid_rfp"`
	DocumentType      string            `json:"document_type"`
	Confidence        float64           `json:"confidence"`
	FitScore          int               `json:"fit_score"`
	ExtractedSections map[string]string `json:"extracted_sections"`
	RejectionReason   string            `json:"rejection_reason"`
}

type featuresPayload struct {
	KeyPhrases     []string `json:"key_phrases"`
	Certifications []string `json:"certifications"`
}

type insightsPayload struct {
	RiskFactors         []string `json:"risk_factors"`
	SuccessPredictors   []string `json:"success_predictors"`
	RecommendedStrategy string   `json:"recommended_strategy"`
}

func parseClassification(content string) (*classifier.Result, error) {
	var payload classificationPayload
	if err := decodeStrict(content, &payload); err != nil {
		return nil, err
	}

	docType := classifier.DocumentType(payload.DocumentType)
	switch docType {
	case classifier.TypeRFP, classifier.TypeInvoice, classifier.TypeResume, classifier.TypeBusinessDocument:
	default:
		return nil, fmt.Errorf("%w: unknown document type %q", ErrMalformedResponse, payload.DocumentType)
	}

	if payload.Confidence < 0 || payload.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %f out of range", ErrMalformedResponse, payload.Confidence)
	}

	if payload.FitScore < 0 || payload.FitScore > 100 {
		return nil, fmt.Errorf("%w: fit score %d out of range", ErrMalformedResponse, payload.FitScore)
	}

	if !payload.IsValidRFP && payload.RejectionReason == "" {
		payload.RejectionReason = "document is not a solicitation"
	}

	return &classifier.Result{
		IsValidRFP:        payload.IsValidRFP,
		DocumentType:      docType,
		Confidence:        payload.Confidence,
		FitScore:          payload.FitScore,
		ExtractedSections: payload.ExtractedSections,
		RejectionReason:   payload.RejectionReason,
	}, nil
}

func parseFeatures(content string) ([]string, []string, error) {
	var payload featuresPayload
	if err := decodeStrict(content, &payload); err != nil {
		return nil, nil, err
	}
	return payload.KeyPhrases, payload.Certifications, nil
}

func parseInsights(content string) (*scoring.Insights, error) {
	var payload insightsPayload
	if err := decodeStrict(content, &payload); err != nil {
		return nil, err
	}

	if len(payload.RiskFactors) == 0 && len(payload.SuccessPredictors) == 0 && payload.RecommendedStrategy == "" {
		return nil, fmt.Errorf("%w: empty insights", ErrMalformedResponse)
	}

	return &scoring.Insights{
		RiskFactors:         payload.RiskFactors,
		SuccessPredictors:   payload.SuccessPredictors,
		RecommendedStrategy: payload.RecommendedStrategy,
	}, nil
}

func decodeStrict(content string, out interface{}) error {
	trimmed := stripCodeFence(content)

	decoder := json.NewDecoder(strings.NewReader(trimmed))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	// Trailing non-whitespace after the JSON object is a schema violation too.
	if decoder.More() {
		return fmt.Errorf("%w: trailing content after JSON object", ErrMalformedResponse)
	}

	return nil
}

// stripCodeFence removes markdown fencing around the payload. That is the only
// framing tolerated; the JSON inside must parse as-is.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
