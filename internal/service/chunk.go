package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ishitachakravarthy/vector-db/internal/embed"
	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/scheduler"
	"github.com/ishitachakravarthy/vector-db/internal/store"
)

// ChunkCreate carries the inputs for a new chunk.
type ChunkCreate struct {
	DocumentID uuid.UUID
	Text       string
	Section    string
	Position   int
}

// ChunkUpdate carries optional field changes for a chunk. A non-nil Text
// regenerates the embedding and replaces the vector under the same id.
type ChunkUpdate struct {
	Text     *string
	Section  *string
	Position *int
}

// ChunkService coordinates chunk lifecycle: embedding on write, index
// updates on every mutation, parent checks before creation.
type ChunkService struct {
	store    store.Store
	sched    *scheduler.Scheduler
	indexes  *IndexService
	embedder embed.Embedder
	logger   *slog.Logger
}

// NewChunkService creates a chunk coordinator.
func NewChunkService(st store.Store, sched *scheduler.Scheduler, indexes *IndexService, embedder embed.Embedder, logger *slog.Logger) *ChunkService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkService{store: st, sched: sched, indexes: indexes, embedder: embedder, logger: logger}
}

// CreateChunk verifies the parent document, embeds the text, then
// persists the chunk and its vector under the owning library key.
func (s *ChunkService) CreateChunk(ctx context.Context, create ChunkCreate) (*store.Chunk, error) {
	if create.Text == "" {
		return nil, vecerr.ValidationError("chunk text must not be empty", nil)
	}

	// Parent check under the document key, so a concurrent document
	// delete cannot slip between check and insert unobserved.
	docResult, err := s.sched.Run(ctx, scheduler.DocumentKey(create.DocumentID), func(taskCtx context.Context) (any, error) {
		doc, err := s.store.GetDocument(taskCtx, create.DocumentID)
		if vecerr.KindOf(err) == vecerr.KindNotFound {
			return nil, vecerr.ParentNotFound("document", create.DocumentID.String())
		}
		return doc, err
	})
	if err != nil {
		return nil, err
	}
	doc := docResult.(*store.Document)

	// Embedding happens before enqueueing: an embedder failure leaves
	// no state to unwind.
	embedding, err := s.embedder.Embed(ctx, create.Text, embed.InputDocument)
	if err != nil {
		return nil, vecerr.EmbedderError("embed chunk text", err)
	}

	chunk := &store.Chunk{
		ID:         uuid.New(),
		DocumentID: create.DocumentID,
		Text:       create.Text,
		Embedding:  embedding,
		Section:    create.Section,
		Position:   create.Position,
	}

	_, err = s.sched.Run(ctx, scheduler.LibraryKey(doc.LibraryID), func(taskCtx context.Context) (any, error) {
		// Re-check the parent inside the library queue: a cascade
		// delete serialized ahead of us may have removed it while the
		// embedder call was in flight.
		if _, err := s.store.GetDocument(taskCtx, create.DocumentID); err != nil {
			if vecerr.KindOf(err) == vecerr.KindNotFound {
				return nil, vecerr.ParentNotFound("document", create.DocumentID.String())
			}
			return nil, err
		}
		if err := vecerr.Retry(taskCtx, vecerr.SingleRetryConfig(), func() error {
			return s.store.SaveChunk(taskCtx, chunk)
		}); err != nil {
			return nil, err
		}
		return nil, s.indexes.AddVector(taskCtx, doc.LibraryID, chunk.ID, chunk.Embedding)
	})
	if err != nil {
		return nil, err
	}

	// The document's chunk list is derived from chunk rows; touching
	// the parent under its own key records the membership change.
	_, err = s.sched.Run(ctx, scheduler.DocumentKey(create.DocumentID), func(taskCtx context.Context) (any, error) {
		doc, err := s.store.GetDocument(taskCtx, create.DocumentID)
		if err != nil {
			return nil, err
		}
		return nil, s.store.SaveDocument(taskCtx, doc)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created chunk",
		slog.String("chunk_id", chunk.ID.String()),
		slog.String("document_id", create.DocumentID.String()))
	return chunk, nil
}

// GetChunk reads a chunk record directly from the store.
func (s *ChunkService) GetChunk(ctx context.Context, id uuid.UUID) (*store.Chunk, error) {
	return s.store.GetChunk(ctx, id)
}

// ListChunks returns a document's chunks in position order.
func (s *ChunkService) ListChunks(ctx context.Context, documentID uuid.UUID) ([]*store.Chunk, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.ListChunksByDocument(ctx, documentID)
}

// UpdateChunk applies field changes. A text change regenerates the
// embedding and replaces the old vector in the index under the same id.
func (s *ChunkService) UpdateChunk(ctx context.Context, id uuid.UUID, update ChunkUpdate) (*store.Chunk, error) {
	chunk, err := s.store.GetChunk(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.GetDocument(ctx, chunk.DocumentID)
	if err != nil {
		return nil, err
	}

	textChanged := update.Text != nil && *update.Text != chunk.Text
	if textChanged {
		if *update.Text == "" {
			return nil, vecerr.ValidationError("chunk text must not be empty", nil)
		}
		embedding, err := s.embedder.Embed(ctx, *update.Text, embed.InputDocument)
		if err != nil {
			return nil, vecerr.EmbedderError("embed chunk text", err)
		}
		chunk.Text = *update.Text
		chunk.Embedding = embedding
	}
	if update.Section != nil {
		chunk.Section = *update.Section
	}
	if update.Position != nil {
		chunk.Position = *update.Position
	}

	_, err = s.sched.Run(ctx, scheduler.LibraryKey(doc.LibraryID), func(taskCtx context.Context) (any, error) {
		if err := vecerr.Retry(taskCtx, vecerr.SingleRetryConfig(), func() error {
			return s.store.SaveChunk(taskCtx, chunk)
		}); err != nil {
			return nil, err
		}
		if textChanged {
			return nil, s.indexes.AddVector(taskCtx, doc.LibraryID, chunk.ID, chunk.Embedding)
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// DeleteChunk removes the vector from the library index, deletes the
// chunk record, and records the membership change on the parent.
func (s *ChunkService) DeleteChunk(ctx context.Context, id uuid.UUID) error {
	chunk, err := s.store.GetChunk(ctx, id)
	if err != nil {
		return err
	}
	doc, err := s.store.GetDocument(ctx, chunk.DocumentID)
	if err != nil {
		return err
	}

	_, err = s.sched.Run(ctx, scheduler.LibraryKey(doc.LibraryID), func(taskCtx context.Context) (any, error) {
		if err := s.indexes.DeleteVector(taskCtx, doc.LibraryID, id); err != nil {
			return nil, err
		}
		return nil, vecerr.Retry(taskCtx, vecerr.SingleRetryConfig(), func() error {
			return s.store.DeleteChunk(taskCtx, id)
		})
	})
	if err != nil {
		return err
	}

	_, err = s.sched.Run(ctx, scheduler.DocumentKey(chunk.DocumentID), func(taskCtx context.Context) (any, error) {
		doc, err := s.store.GetDocument(taskCtx, chunk.DocumentID)
		if err != nil {
			return nil, err
		}
		return nil, s.store.SaveDocument(taskCtx, doc)
	})
	if err == nil {
		s.logger.Info("deleted chunk", slog.String("chunk_id", id.String()))
	}
	return err
}
