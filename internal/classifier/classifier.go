package classifier

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/bidmatch/backend/internal/metrics"
	"github.com/bidmatch/backend/pkg/logger"
)

type DocumentType string

const (
	TypeRFP              DocumentType = "RFP"
	TypeInvoice          DocumentType = "Invoice"
	TypeResume           DocumentType = "Resume"
	TypeBusinessDocument DocumentType = "BusinessDocument"
)

type Result struct {
	IsValidRFP        bool              `json:"is_valid_rfp"`
	DocumentType      DocumentType      `json:"document_type"`
	Confidence        float64           `json:"confidence"`
	FitScore          int               `json:"fit_score"`
	ExtractedSections map[string]string `json:"extracted_sections,omitempty"`
	RejectionReason   string            `json:"rejection_reason,omitempty"`
}

// Backend is the generative classification path. Any error routes to the
// deterministic keyword fallback; it is never surfaced to the caller.
type Backend interface {
	ClassifyDocument(ctx context.Context, text string) (*Result, error)
}

type Classifier struct {
	backend  Backend
	maxChars int
}

var invoiceTerms = []string{
	"invoice number",
	"invoice #",
	"bill to",
	"payment due",
	"amount due",
	"total due",
	"remit payment",
}

var resumeTerms = []string{
	"work experience",
	"professional summary",
	"career objective",
	"references available",
	"curriculum vitae",
	"employment history",
}

var rfpTerms = []string{
	"request for proposal",
	"request for quotation",
	"rfp",
	"scope of work",
	"statement of work",
	"deliverables",
	"proposal submission",
	"evaluation criteria",
	"vendor requirements",
}

func New(backend Backend, maxChars int) *Classifier {
	if maxChars <= 0 {
		maxChars = 8000
	}
	return &Classifier{
		backend:  backend,
		maxChars: maxChars,
	}
}

// Classify never returns an error: a failed or malformed backend call falls
// back to keyword classification, and invoice terms override any positive
// backend verdict.
func (c *Classifier) Classify(ctx context.Context, text string) *Result {
	bounded := text
	if len(bounded) > c.maxChars {
		cut := c.maxChars
		// Back up to a rune boundary so the truncated text stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(bounded[cut]) {
			cut--
		}
		bounded = bounded[:cut]
	}

	lower := strings.ToLower(bounded)

	var result *Result
	if c.backend != nil {
		backendResult, err := c.backend.ClassifyDocument(ctx, bounded)
		if err != nil {
			logger.Warn("Classifier backend failed, using keyword fallback", zap.Error(err))
		} else {
			result = backendResult
		}
	}

	if result == nil {
		metrics.ClassifierFallbacks.Inc()
		result = c.classifyByKeywords(lower)
	}

	// Invoice terms override any positive classification, including the
	// backend's.
	if term := firstMatch(lower, invoiceTerms); term != "" && result.DocumentType != TypeInvoice {
		logger.Debug("Invoice term override applied", zap.String("term", term))
		result = invoiceResult(term)
	}

	logger.Info("Document classified",
		zap.String("document_type", string(result.DocumentType)),
		zap.Bool("is_valid_rfp", result.IsValidRFP),
		zap.Int("fit_score", result.FitScore),
	)

	return result
}

func (c *Classifier) classifyByKeywords(lower string) *Result {
	if term := firstMatch(lower, invoiceTerms); term != "" {
		return invoiceResult(term)
	}

	if term := firstMatch(lower, resumeTerms); term != "" {
		return &Result{
			IsValidRFP:      false,
			DocumentType:    TypeResume,
			Confidence:      0.85,
			FitScore:        0,
			RejectionReason: "document appears to be a resume (matched: " + term + ")",
		}
	}

	if firstMatch(lower, rfpTerms) != "" {
		return &Result{
			IsValidRFP:        true,
			DocumentType:      TypeRFP,
			Confidence:        0.85,
			FitScore:          85,
			ExtractedSections: extractSections(lower),
		}
	}

	// Accept atypically-worded documents with a moderate score instead of
	// hard-rejecting; false negatives block legitimate RFPs.
	return &Result{
		IsValidRFP:        true,
		DocumentType:      TypeBusinessDocument,
		Confidence:        0.6,
		FitScore:          75,
		ExtractedSections: extractSections(lower),
	}
}

func invoiceResult(term string) *Result {
	return &Result{
		IsValidRFP:      false,
		DocumentType:    TypeInvoice,
		Confidence:      0.95,
		FitScore:        0,
		RejectionReason: "document appears to be an invoice (matched: " + term + ")",
	}
}

func firstMatch(lower string, terms []string) string {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return term
		}
	}
	return ""
}

var sectionMarkers = map[string][]string{
	"scope":        {"scope of work", "statement of work", "project scope"},
	"timeline":     {"timeline", "schedule", "project duration", "period of performance"},
	"budget":       {"budget", "project value", "estimated cost", "not to exceed"},
	"requirements": {"requirements", "qualifications", "vendor requirements"},
	"evaluation":   {"evaluation criteria", "selection criteria", "scoring criteria"},
}

func extractSections(lower string) map[string]string {
	sections := make(map[string]string)
	for name, markers := range sectionMarkers {
		for _, marker := range markers {
			idx := strings.Index(lower, marker)
			if idx < 0 {
				continue
			}
			end := idx + 400
			if end > len(lower) {
				end = len(lower)
			}
			sections[name] = strings.TrimSpace(lower[idx:end])
			break
		}
	}
	return sections
}
