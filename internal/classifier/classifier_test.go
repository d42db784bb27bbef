package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	result *Result
	err    error
	calls  int
}

func (f *fakeBackend) ClassifyDocument(ctx context.Context, text string) (*Result, error) {
	f.calls++
	return f.result, f.err
}

const rfpText = `Request for Proposal: Cloud Migration Services.
Scope of Work: migrate on-premise workloads to the cloud.
Deliverables: migration plan, executed cutover, documentation.
Evaluation Criteria: technical approach, past performance, price.`

const invoiceText = `INVOICE
Invoice Number: 10042
Bill To: Acme Corporation
Amount Due: $12,500.00
Payment Due: within 30 days`

const resumeText = `Jane Doe
Professional Summary: seasoned engineer with 10 years of experience.
Work Experience: Senior Developer at Example Corp.
References available upon request.`

func TestKeywordFallbackAcceptsRFP(t *testing.T) {
	c := New(nil, 0)

	result := c.Classify(context.Background(), rfpText)

	assert.True(t, result.IsValidRFP)
	assert.Equal(t, TypeRFP, result.DocumentType)
	assert.GreaterOrEqual(t, result.FitScore, 75)
	assert.InDelta(t, 0.85, result.Confidence, 1e-9)
}

func TestKeywordFallbackRejectsInvoice(t *testing.T) {
	c := New(nil, 0)

	result := c.Classify(context.Background(), invoiceText)

	assert.False(t, result.IsValidRFP)
	assert.Equal(t, TypeInvoice, result.DocumentType)
	assert.Zero(t, result.FitScore)
	assert.NotEmpty(t, result.RejectionReason)
}

func TestKeywordFallbackRejectsResume(t *testing.T) {
	c := New(nil, 0)

	result := c.Classify(context.Background(), resumeText)

	assert.False(t, result.IsValidRFP)
	assert.Equal(t, TypeResume, result.DocumentType)
	assert.Zero(t, result.FitScore)
}

func TestAtypicalDocumentAcceptedWithModerateScore(t *testing.T) {
	c := New(nil, 0)

	result := c.Classify(context.Background(), "We are looking for a partner to modernize our logistics platform.")

	assert.True(t, result.IsValidRFP)
	assert.Equal(t, TypeBusinessDocument, result.DocumentType)
	assert.Equal(t, 75, result.FitScore)
	assert.InDelta(t, 0.6, result.Confidence, 1e-9)
}

func TestClassifyIsIdempotent(t *testing.T) {
	c := New(nil, 0)

	first := c.Classify(context.Background(), rfpText)
	second := c.Classify(context.Background(), rfpText)

	assert.Equal(t, first, second)
}

func TestBackendFailureRoutesToFallback(t *testing.T) {
	backend := &fakeBackend{err: errors.New("model unavailable")}
	c := New(backend, 0)

	result := c.Classify(context.Background(), rfpText)

	assert.Equal(t, 1, backend.calls)
	assert.True(t, result.IsValidRFP)
	assert.Equal(t, TypeRFP, result.DocumentType)
}

func TestBackendResultUsedWhenHealthy(t *testing.T) {
	backend := &fakeBackend{result: &Result{
		IsValidRFP:   true,
		DocumentType: TypeRFP,
		Confidence:   0.92,
		FitScore:     88,
	}}
	c := New(backend, 0)

	result := c.Classify(context.Background(), rfpText)

	assert.Equal(t, 88, result.FitScore)
	assert.InDelta(t, 0.92, result.Confidence, 1e-9)
}

func TestInvoiceTermsOverridePositiveBackendVerdict(t *testing.T) {
	backend := &fakeBackend{result: &Result{
		IsValidRFP:   true,
		DocumentType: TypeRFP,
		Confidence:   0.9,
		FitScore:     80,
	}}
	c := New(backend, 0)

	result := c.Classify(context.Background(), invoiceText)

	assert.False(t, result.IsValidRFP)
	assert.Equal(t, TypeInvoice, result.DocumentType)
	assert.Zero(t, result.FitScore)
}

func TestClassifyTruncatesLongDocuments(t *testing.T) {
	var recorded string
	backend := &fakeBackend{err: errors.New("force fallback")}
	c := New(backendFunc(func(ctx context.Context, text string) (*Result, error) {
		recorded = text
		return backend.ClassifyDocument(ctx, text)
	}), 100)

	c.Classify(context.Background(), strings.Repeat("scope of work ", 50))

	require.NotEmpty(t, recorded)
	assert.LessOrEqual(t, len(recorded), 100)
}

func TestClassifyTruncationKeepsValidUTF8(t *testing.T) {
	var recorded string
	c := New(backendFunc(func(ctx context.Context, text string) (*Result, error) {
		recorded = text
		return nil, errors.New("force fallback")
	}), 100)

	// 98 ASCII bytes followed by a 3-byte rune straddling the 100-byte bound.
	text := strings.Repeat("a", 98) + strings.Repeat("日本語", 20)
	c.Classify(context.Background(), text)

	require.NotEmpty(t, recorded)
	assert.LessOrEqual(t, len(recorded), 100)
	assert.True(t, utf8.ValidString(recorded))
}

type backendFunc func(ctx context.Context, text string) (*Result, error)

func (f backendFunc) ClassifyDocument(ctx context.Context, text string) (*Result, error) {
	return f(ctx, text)
}

func TestExtractSections(t *testing.T) {
	sections := extractSections(strings.ToLower(rfpText))

	assert.Contains(t, sections, "scope")
	assert.Contains(t, sections, "evaluation")
	for _, body := range sections {
		assert.LessOrEqual(t, len(body), 400)
	}
}
