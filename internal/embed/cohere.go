package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

// Cohere API defaults.
const (
	DefaultCohereHost  = "https://api.cohere.com"
	DefaultCohereModel = "embed-english-v3.0"

	// coherePoolSize bounds idle connections to the API host.
	coherePoolSize = 4
)

// CohereConfig configures the Cohere embedder.
type CohereConfig struct {
	// Host is the API base URL (default: https://api.cohere.com).
	Host string

	// APIKey authenticates requests. Required.
	APIKey string

	// Model is the embedding model name (default: embed-english-v3.0).
	Model string

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration
}

// CohereEmbedder generates embeddings using Cohere's HTTP API.
// A circuit breaker makes a down provider fail fast instead of holding
// every queued task on a full timeout.
type CohereEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    CohereConfig
	breaker   *vecerr.Breaker
}

// Verify interface implementation at compile time
var _ Embedder = (*CohereEmbedder)(nil)

// NewCohereEmbedder creates a new Cohere embedder.
func NewCohereEmbedder(cfg CohereConfig) (*CohereEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, vecerr.New(vecerr.ErrCodeConfigMissing, "cohere api key is required", nil)
	}
	if cfg.Host == "" {
		cfg.Host = DefaultCohereHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultCohereModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        coherePoolSize,
		MaxIdleConnsPerHost: coherePoolSize,
		IdleConnTimeout:     90 * time.Second,
	}

	// No client-level timeout: each request carries its own context
	// deadline so callers can tighten it per operation.
	return &CohereEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		breaker:   vecerr.NewBreaker("cohere", 0, 0),
	}, nil
}

// embedRequest is the Cohere v2 embed request body.
type embedRequest struct {
	Model          string   `json:"model"`
	Texts          []string `json:"texts"`
	InputType      string   `json:"input_type"`
	EmbeddingTypes []string `json:"embedding_types"`
}

// embedResponse is the subset of the Cohere v2 embed response we read.
type embedResponse struct {
	Embeddings struct {
		Float [][]float64 `json:"float"`
	} `json:"embeddings"`
	Message string `json:"message"`
}

// Embed generates an embedding for a single text.
func (e *CohereEmbedder) Embed(ctx context.Context, text string, input InputType) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text}, input)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in order, splitting
// into API-sized batches as needed.
func (e *CohereEmbedder) EmbedBatch(ctx context.Context, texts []string, input InputType) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := vecerr.Do(e.breaker, func() ([][]float64, error) {
			return e.doEmbed(ctx, texts[start:end], input)
		})
		if err == vecerr.ErrCircuitOpen {
			return nil, vecerr.New(vecerr.ErrCodeEmbedderUnavailable, "embedder circuit open", err)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// doEmbed issues one embed request.
func (e *CohereEmbedder) doEmbed(ctx context.Context, texts []string, input InputType) ([][]float64, error) {
	body, err := json.Marshal(embedRequest{
		Model:          e.config.Model,
		Texts:          texts,
		InputType:      string(input),
		EmbeddingTypes: []string{"float"},
	})
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeEmbedderRequest, "encode embed request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/v2/embed", bytes.NewReader(body))
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeEmbedderRequest, "build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeEmbedderUnavailable, "embed request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeEmbedderUnavailable, "read embed response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var decoded embedResponse
		_ = json.Unmarshal(payload, &decoded)
		msg := decoded.Message
		if msg == "" {
			msg = string(payload)
		}
		code := vecerr.ErrCodeEmbedderRequest
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			code = vecerr.ErrCodeEmbedderUnavailable
		}
		return nil, vecerr.New(code, fmt.Sprintf("embed API status %d: %s", resp.StatusCode, msg), nil)
	}

	var decoded embedResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, vecerr.New(vecerr.ErrCodeEmbedderRequest, "decode embed response", err)
	}
	if len(decoded.Embeddings.Float) != len(texts) {
		return nil, vecerr.New(vecerr.ErrCodeEmbedderRequest,
			fmt.Sprintf("embed API returned %d embeddings for %d texts", len(decoded.Embeddings.Float), len(texts)), nil)
	}
	return decoded.Embeddings.Float, nil
}

// ModelName returns the model identifier.
func (e *CohereEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases idle connections.
func (e *CohereEmbedder) Close() error {
	e.transport.CloseIdleConnections()
	return nil
}
