// Package service contains the policy layer: the index service applies
// load-mutate-store over per-library index blobs, and the coordinators
// enforce parent-child invariants while routing every mutation through
// the operation scheduler.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ishitachakravarthy/vector-db/internal/embed"
	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/index"
	"github.com/ishitachakravarthy/vector-db/internal/store"
)

// IndexService materializes, mutates, and persists per-library indexes.
// It is stateless over libraries: every call loads the blob, operates,
// and writes back. Correctness relies on the scheduler serializing calls
// per library; there is no in-process cache to invalidate.
type IndexService struct {
	store    store.Store
	embedder embed.Embedder
	params   index.Params
	logger   *slog.Logger
}

// NewIndexService creates an index service.
func NewIndexService(st store.Store, embedder embed.Embedder, params index.Params, logger *slog.Logger) *IndexService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexService{store: st, embedder: embedder, params: params, logger: logger}
}

// loadIndex materializes the library's index from its blob, or
// constructs an empty one of the declared type.
func (s *IndexService) loadIndex(lib *store.Library) (index.VectorIndex, error) {
	if len(lib.IndexData) > 0 {
		return index.UnmarshalBlob(lib.IndexData)
	}
	typ, err := index.ParseType(lib.IndexType)
	if err != nil {
		return nil, err
	}
	return index.New(typ, s.params)
}

// persistIndex serializes the index back into the library record, with
// one retry on transient store failure.
func (s *IndexService) persistIndex(ctx context.Context, libraryID uuid.UUID, ix index.VectorIndex) error {
	blob, err := ix.MarshalBlob()
	if err != nil {
		return err
	}
	return vecerr.Retry(ctx, vecerr.SingleRetryConfig(), func() error {
		return s.store.UpdateIndex(ctx, libraryID, string(ix.Type()), blob)
	})
}

// AddVector inserts or replaces a chunk's vector in its library index.
func (s *IndexService) AddVector(ctx context.Context, libraryID, chunkID uuid.UUID, vec []float64) error {
	lib, err := s.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return err
	}
	ix, err := s.loadIndex(lib)
	if err != nil {
		return err
	}
	if err := ix.Add(chunkID, vec); err != nil {
		return err
	}
	return s.persistIndex(ctx, libraryID, ix)
}

// DeleteVector removes a chunk's vector from its library index.
// Deleting an absent id is a no-op that still rewrites the blob.
func (s *IndexService) DeleteVector(ctx context.Context, libraryID, chunkID uuid.UUID) error {
	lib, err := s.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return err
	}
	ix, err := s.loadIndex(lib)
	if err != nil {
		return err
	}
	ix.Delete(chunkID)
	return s.persistIndex(ctx, libraryID, ix)
}

// Search embeds the query text, runs the index search, and resolves the
// ranked chunk ids to chunk records.
func (s *IndexService) Search(ctx context.Context, libraryID uuid.UUID, query string, k int) ([]*store.Chunk, error) {
	lib, err := s.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	ix, err := s.loadIndex(lib)
	if err != nil {
		return nil, err
	}
	if ix.Len() == 0 {
		return []*store.Chunk{}, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query, embed.InputQuery)
	if err != nil {
		return nil, vecerr.EmbedderError("embed query", err)
	}

	ids, err := ix.Search(queryVec, k)
	if err != nil {
		return nil, err
	}

	chunks := make([]*store.Chunk, 0, len(ids))
	for _, id := range ids {
		chunk, err := s.store.GetChunk(ctx, id)
		if vecerr.KindOf(err) == vecerr.KindNotFound {
			// The index knows an id the store does not: a dangling
			// reference, never recovered locally.
			return nil, vecerr.New(vecerr.ErrCodeIntegrityViolation,
				"index references missing chunk "+id.String(), err)
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// Rebuild constructs a fresh index of newType from every chunk embedding
// in the library and persists it.
func (s *IndexService) Rebuild(ctx context.Context, libraryID uuid.UUID, newType index.Type) error {
	if _, err := s.store.GetLibrary(ctx, libraryID); err != nil {
		return err
	}

	chunks, err := s.store.ListChunksByLibrary(ctx, libraryID)
	if err != nil {
		return err
	}

	ix, err := index.New(newType, s.params)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := ix.Add(chunk.ID, chunk.Embedding); err != nil {
			return err
		}
	}

	s.logger.Info("rebuilt index",
		slog.String("library_id", libraryID.String()),
		slog.String("index_type", string(newType)),
		slog.Int("vectors", ix.Len()))

	return s.persistIndex(ctx, libraryID, ix)
}

// Stats loads the library index and returns its summary.
func (s *IndexService) Stats(ctx context.Context, libraryID uuid.UUID) (index.Stats, error) {
	lib, err := s.store.GetLibrary(ctx, libraryID)
	if err != nil {
		return index.Stats{}, err
	}
	ix, err := s.loadIndex(lib)
	if err != nil {
		return index.Stats{}, err
	}
	return ix.Stats(), nil
}
