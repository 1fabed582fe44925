package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/ishitachakravarthy/vector-db/internal/vectormath"
)

// StaticDimensions is the embedding dimension of the static embedder.
const StaticDimensions = 64

// Feature weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches alphanumeric sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// StaticEmbedder generates embeddings by hashing tokens and character
// n-grams into a fixed-size vector. No network, no model: deterministic
// output for the same text, with reduced semantic quality. Used by tests
// and offline runs.
type StaticEmbedder struct {
	dims int
}

// Verify interface implementation at compile time
var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder with the default dimension.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{dims: StaticDimensions}
}

// NewStaticEmbedderWithDims creates a static embedder with a custom
// dimension, useful for tests exercising dimension pinning.
func NewStaticEmbedderWithDims(dims int) *StaticEmbedder {
	return &StaticEmbedder{dims: dims}
}

// Embed generates an embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string, input InputType) ([]float64, error) {
	vector := make([]float64, e.dims)

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		// A stable non-zero direction: zero vectors are rejected by
		// the normalizing index variants.
		vector[0] = 1
		return vector, nil
	}

	for _, token := range tokenize(trimmed) {
		vector[hashToIndex(token, e.dims)] += tokenWeight
	}
	for _, ngram := range extractNgrams(strings.ToLower(trimmed), ngramSize) {
		vector[hashToIndex(ngram, e.dims)] += ngramWeight
	}

	normalized, err := vectormath.Normalize(vector)
	if err != nil {
		// Input shorter than one n-gram with no alphanumeric token hashes
		// nowhere; fall back like empty text.
		vector[0] = 1
		return vector, nil
	}
	return normalized, nil
}

// EmbedBatch generates embeddings for multiple texts in order.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string, input InputType) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text, input)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static-hash"
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	return nil
}

// tokenize splits text into lowercase alphanumeric tokens.
func tokenize(text string) []string {
	words := tokenRegex.FindAllString(text, -1)
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, strings.ToLower(w))
	}
	return tokens
}

// extractNgrams returns the character n-grams of text.
func extractNgrams(text string, n int) []string {
	runes := []rune(text)
	if len(runes) < n {
		return nil
	}
	out := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		out = append(out, string(runes[i:i+n]))
	}
	return out
}

// hashToIndex maps a feature to a vector slot.
func hashToIndex(s string, dims int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dims))
}
