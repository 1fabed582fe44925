// Package embed generates vector embeddings for chunk text. The remote
// backend talks to Cohere's embed API; wrappers add retries, caching, and
// a circuit breaker. A deterministic hash-based embedder serves tests and
// offline runs.
package embed

import (
	"context"
	"time"
)

// Common embedding constants
const (
	// MaxBatchSize is the largest batch accepted per request (Cohere's
	// documented limit is 96 texts).
	MaxBatchSize = 96

	// DefaultTimeout is the per-request timeout for embedding calls.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3
)

// InputType tells the provider how the text will be used; documents and
// queries are embedded asymmetrically.
type InputType string

const (
	InputDocument InputType = "search_document"
	InputQuery    InputType = "search_query"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string, input InputType) ([]float64, error)

	// EmbedBatch generates embeddings for multiple texts in order.
	EmbedBatch(ctx context.Context, texts []string, input InputType) ([][]float64, error)

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
