package embed

import (
	"context"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

// RetryingEmbedder wraps an Embedder with exponential-backoff retries on
// retryable failures (timeouts, 5xx, rate limits). Client-side errors
// such as a bad model name surface immediately.
type RetryingEmbedder struct {
	inner Embedder
	cfg   vecerr.RetryConfig
}

// Verify interface implementation at compile time
var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder creates a retrying embedder with the given config.
// A zero MaxRetries takes the package default.
func NewRetryingEmbedder(inner Embedder, cfg vecerr.RetryConfig) *RetryingEmbedder {
	if cfg.MaxRetries <= 0 {
		cfg = vecerr.DefaultRetryConfig()
	}
	return &RetryingEmbedder{inner: inner, cfg: cfg}
}

// Embed generates an embedding with retries.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string, input InputType) ([]float64, error) {
	var out []float64
	err := vecerr.Retry(ctx, r.cfg, func() error {
		var embedErr error
		out, embedErr = r.inner.Embed(ctx, text, input)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedBatch generates embeddings with retries.
func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string, input InputType) ([][]float64, error) {
	var out [][]float64
	err := vecerr.Retry(ctx, r.cfg, func() error {
		var embedErr error
		out, embedErr = r.inner.EmbedBatch(ctx, texts, input)
		return embedErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ModelName returns the wrapped model identifier.
func (r *RetryingEmbedder) ModelName() string {
	return r.inner.ModelName()
}

// Close closes the wrapped embedder.
func (r *RetryingEmbedder) Close() error {
	return r.inner.Close()
}
