package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/index"
	"github.com/ishitachakravarthy/vector-db/internal/scheduler"
	"github.com/ishitachakravarthy/vector-db/internal/store"
)

// LibraryUpdate carries optional field changes for a library. Nil fields
// are left untouched.
type LibraryUpdate struct {
	Title       *string
	Description *string
	IndexType   *string
}

// LibraryService coordinates library lifecycle. All mutations run under
// the library's scheduler key; plain reads go straight to the store.
type LibraryService struct {
	store   store.Store
	sched   *scheduler.Scheduler
	indexes *IndexService
	logger  *slog.Logger
}

// NewLibraryService creates a library coordinator.
func NewLibraryService(st store.Store, sched *scheduler.Scheduler, indexes *IndexService, logger *slog.Logger) *LibraryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LibraryService{store: st, sched: sched, indexes: indexes, logger: logger}
}

// CreateLibrary validates the index type and persists a new library.
func (s *LibraryService) CreateLibrary(ctx context.Context, title, description, indexType string) (*store.Library, error) {
	if title == "" {
		return nil, vecerr.ValidationError("library title must not be empty", nil)
	}
	if indexType == "" {
		indexType = string(index.TypeFlat)
	}
	if _, err := index.ParseType(indexType); err != nil {
		return nil, err
	}

	lib := &store.Library{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		IndexType:   indexType,
	}

	_, err := s.sched.Run(ctx, scheduler.LibraryKey(lib.ID), func(taskCtx context.Context) (any, error) {
		return nil, vecerr.Retry(taskCtx, vecerr.SingleRetryConfig(), func() error {
			return s.store.SaveLibrary(taskCtx, lib)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created library",
		slog.String("library_id", lib.ID.String()),
		slog.String("index_type", indexType))
	return lib, nil
}

// GetLibrary reads a library record directly from the store.
func (s *LibraryService) GetLibrary(ctx context.Context, id uuid.UUID) (*store.Library, error) {
	return s.store.GetLibrary(ctx, id)
}

// ListLibraries reads all library records.
func (s *LibraryService) ListLibraries(ctx context.Context) ([]*store.Library, error) {
	return s.store.ListLibraries(ctx)
}

// UpdateLibrary applies field changes under the library key. Changing
// the index type triggers a full rebuild from stored chunk embeddings.
func (s *LibraryService) UpdateLibrary(ctx context.Context, id uuid.UUID, update LibraryUpdate) (*store.Library, error) {
	if update.IndexType != nil {
		if _, err := index.ParseType(*update.IndexType); err != nil {
			return nil, err
		}
	}

	result, err := s.sched.Run(ctx, scheduler.LibraryKey(id), func(taskCtx context.Context) (any, error) {
		lib, err := s.store.GetLibrary(taskCtx, id)
		if err != nil {
			return nil, err
		}

		if update.Title != nil {
			lib.Title = *update.Title
		}
		if update.Description != nil {
			lib.Description = *update.Description
		}
		if err := s.store.SaveLibrary(taskCtx, lib); err != nil {
			return nil, err
		}

		if update.IndexType != nil && *update.IndexType != lib.IndexType {
			newType := index.Type(*update.IndexType)
			if err := s.indexes.Rebuild(taskCtx, id, newType); err != nil {
				return nil, err
			}
		}

		return s.store.GetLibrary(taskCtx, id)
	})
	if err != nil {
		return nil, err
	}
	return result.(*store.Library), nil
}

// DeleteLibrary cascades first, parent last: chunks, documents, then the
// library record with its index blob. A failure mid-cascade leaves a
// partially-emptied but still-referenceable library.
func (s *LibraryService) DeleteLibrary(ctx context.Context, id uuid.UUID) error {
	_, err := s.sched.Run(ctx, scheduler.LibraryKey(id), func(taskCtx context.Context) (any, error) {
		if _, err := s.store.GetLibrary(taskCtx, id); err != nil {
			return nil, err
		}

		docs, err := s.store.ListDocumentsByLibrary(taskCtx, id)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			chunks, err := s.store.ListChunksByDocument(taskCtx, doc.ID)
			if err != nil {
				return nil, err
			}
			for _, chunk := range chunks {
				if err := s.store.DeleteChunk(taskCtx, chunk.ID); err != nil {
					return nil, err
				}
			}
			if err := s.store.DeleteDocument(taskCtx, doc.ID); err != nil {
				return nil, err
			}
		}

		// The index blob dies with the library row.
		return nil, vecerr.Retry(taskCtx, vecerr.SingleRetryConfig(), func() error {
			return s.store.DeleteLibrary(taskCtx, id)
		})
	})
	if err == nil {
		s.logger.Info("deleted library", slog.String("library_id", id.String()))
	}
	return err
}

// Search runs a strong read through the library queue: it observes every
// write enqueued before it.
func (s *LibraryService) Search(ctx context.Context, libraryID uuid.UUID, query string, k int) ([]*store.Chunk, error) {
	if query == "" {
		return nil, vecerr.ValidationError("query must not be empty", nil)
	}
	if k <= 0 {
		return nil, vecerr.ValidationError("k must be positive", nil)
	}

	result, err := s.sched.Run(ctx, scheduler.LibraryKey(libraryID), func(taskCtx context.Context) (any, error) {
		return s.indexes.Search(taskCtx, libraryID, query, k)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*store.Chunk), nil
}

// IndexStats reports the library's index summary through the queue, so
// the numbers reflect all completed writes.
func (s *LibraryService) IndexStats(ctx context.Context, libraryID uuid.UUID) (index.Stats, error) {
	result, err := s.sched.Run(ctx, scheduler.LibraryKey(libraryID), func(taskCtx context.Context) (any, error) {
		return s.indexes.Stats(taskCtx, libraryID)
	})
	if err != nil {
		return index.Stats{}, err
	}
	return result.(index.Stats), nil
}
