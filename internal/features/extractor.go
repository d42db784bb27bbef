package features

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/embedding"
	"github.com/bidmatch/backend/pkg/logger"
)

const maxKeyPhrases = 20

type Extracted struct {
	KeyPhrases     []string  `json:"key_phrases"`
	Certifications []string  `json:"certifications"`
	Embedding      []float32 `json:"-"`
}

// Backend asks the AI model for key phrases and certification mentions.
// Failures fall back to vocabulary and regex scanning.
type Backend interface {
	ExtractFeatures(ctx context.Context, rfpText, proposalText string) (keyPhrases, certifications []string, err error)
}

type Extractor struct {
	backend  Backend
	embedder *embedding.Service
}

// Common service terms scanned on the fallback path.
var serviceVocabulary = []string{
	"cloud migration",
	"data analysis",
	"data analytics",
	"software development",
	"web development",
	"mobile development",
	"system integration",
	"network security",
	"cybersecurity",
	"penetration testing",
	"machine learning",
	"artificial intelligence",
	"business intelligence",
	"project management",
	"quality assurance",
	"technical support",
	"infrastructure management",
	"devops",
	"database administration",
	"api development",
	"user experience design",
	"digital transformation",
	"managed services",
	"disaster recovery",
	"compliance audit",
	"staff augmentation",
	"training services",
	"consulting services",
}

var certificationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bISO[ -]?\d{4,5}(?:-\d)?\b`),
	regexp.MustCompile(`(?i)\bSOC[ -]?[12](?:\s?Type\s?(?:I{1,2}|[12]))?\b`),
	regexp.MustCompile(`(?i)\bHIPAA\b`),
	regexp.MustCompile(`(?i)\bPCI[ -]?DSS\b`),
	regexp.MustCompile(`(?i)\bFedRAMP\b`),
	regexp.MustCompile(`(?i)\bCMMI(?:\s?Level\s?\d)?\b`),
	regexp.MustCompile(`(?i)\bGDPR\b`),
	regexp.MustCompile(`(?i)\bNIST\s?(?:800-\d+|CSF)?\b`),
	regexp.MustCompile(`(?i)\bCMMC(?:\s?Level\s?\d)?\b`),
	regexp.MustCompile(`(?i)\bITIL\b`),
	regexp.MustCompile(`(?i)\bPMP\b`),
	regexp.MustCompile(`(?i)\bHITRUST\b`),
}

func NewExtractor(backend Backend, embedder *embedding.Service) *Extractor {
	return &Extractor{
		backend:  backend,
		embedder: embedder,
	}
}

// Extract pulls key phrases, certification mentions, and an embedding out of
// a document/proposal pair. The embedding is always derived from the combined
// text, so identical input yields an identical vector.
func (e *Extractor) Extract(ctx context.Context, rfpText, proposalText string) *Extracted {
	combined := rfpText
	if proposalText != "" {
		combined = rfpText + "\n" + proposalText
	}

	result := &Extracted{
		Embedding: e.embedder.Embed(ctx, combined),
	}

	if e.backend != nil {
		keyPhrases, certifications, err := e.backend.ExtractFeatures(ctx, rfpText, proposalText)
		if err == nil {
			result.KeyPhrases = truncatePhrases(keyPhrases)
			result.Certifications = dedupe(certifications)
			return result
		}
		logger.Warn("Feature backend failed, using lexical fallback", zap.Error(err))
	}

	result.KeyPhrases = ScanKeyPhrases(combined)
	result.Certifications = ScanCertifications(combined)

	return result
}

// ScanKeyPhrases intersects the text with the fixed service vocabulary.
func ScanKeyPhrases(text string) []string {
	lower := strings.ToLower(text)

	var phrases []string
	for _, term := range serviceVocabulary {
		if strings.Contains(lower, term) {
			phrases = append(phrases, term)
		}
		if len(phrases) >= maxKeyPhrases {
			break
		}
	}

	return phrases
}

// ScanCertifications matches well-known certification patterns in the text.
func ScanCertifications(text string) []string {
	var found []string
	for _, pattern := range certificationPatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			found = append(found, normalizeCertification(match))
		}
	}
	return dedupe(found)
}

func normalizeCertification(raw string) string {
	cert := strings.ToUpper(strings.TrimSpace(raw))
	cert = strings.ReplaceAll(cert, "  ", " ")
	return cert
}

func truncatePhrases(phrases []string) []string {
	cleaned := dedupe(phrases)
	if len(cleaned) > maxKeyPhrases {
		cleaned = cleaned[:maxKeyPhrases]
	}
	return cleaned
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
