package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/bidmatch/backend/pkg/logger"
	"github.com/bidmatch/backend/pkg/utils"
)

const DefaultDim = 768

// Backend produces embeddings from a real model endpoint. The service works
// without one: the deterministic term-frequency embedder covers the fallback
// path and keeps tests reproducible.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Cache interface {
	GetEmbedding(ctx context.Context, key string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, key string, embedding []float32) error
}

type Service struct {
	dim     int
	backend Backend
	cache   Cache
}

func NewService(dim int, backend Backend, cache Cache) *Service {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Service{
		dim:     dim,
		backend: backend,
		cache:   cache,
	}
}

func (s *Service) Dim() int {
	return s.dim
}

// Embed returns a fixed-length vector for the text. Backend failures degrade
// to the deterministic embedder rather than surfacing an error.
func (s *Service) Embed(ctx context.Context, text string) []float32 {
	if s.backend == nil {
		return s.EmbedDeterministic(text)
	}

	key := utils.HashText(text)
	if s.cache != nil {
		cached, found, err := s.cache.GetEmbedding(ctx, key)
		if err == nil && found && len(cached) == s.dim {
			return cached
		}
	}

	vector, err := s.backend.Embed(ctx, text)
	if err != nil || len(vector) != s.dim {
		if err != nil {
			logger.Warn("Embedding backend failed, using deterministic fallback", zap.Error(err))
		}
		return s.EmbedDeterministic(text)
	}

	if s.cache != nil {
		if err := s.cache.SetEmbedding(ctx, key, vector); err != nil {
			logger.Debug("Failed to cache embedding", zap.Error(err))
		}
	}

	return vector
}

// EmbedDeterministic hashes each token into one of dim buckets, accumulates
// term frequency, and L2-normalizes. Identical input always yields an
// identical vector.
func (s *Service) EmbedDeterministic(text string) []float32 {
	vector := make([]float32, s.dim)

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return vector
	}

	for _, token := range tokens {
		h := fnv.New32a()
		h.Write([]byte(token))
		vector[h.Sum32()%uint32(s.dim)]++
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vector
	}

	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}

	return vector
}

// Cosine returns similarity in [0,1], 0 when either vector has zero magnitude.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// Jaccard computes word-set overlap between two texts, the lexical fallback
// when no embedding is available for a stored entry.
func Jaccard(textA, textB string) float64 {
	setA := tokenSet(textA)
	setB := tokenSet(textB)

	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range Tokenize(text) {
		set[token] = struct{}{}
	}
	return set
}

// Tokenize lowercases and splits text into word tokens. Prose handles the
// segmentation; plain field splitting covers texts it cannot parse.
func Tokenize(text string) []string {
	doc, err := prose.NewDocument(
		text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return fieldsTokenize(text)
	}

	var tokens []string
	for _, token := range doc.Tokens() {
		cleaned := cleanToken(token.Text)
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}

	return tokens
}

func fieldsTokenize(text string) []string {
	var tokens []string
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		cleaned := cleanToken(field)
		if cleaned != "" {
			tokens = append(tokens, cleaned)
		}
	}
	return tokens
}

func cleanToken(raw string) string {
	token := strings.ToLower(strings.TrimFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
	if len(token) < 2 {
		return ""
	}
	return token
}
