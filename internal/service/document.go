package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/scheduler"
	"github.com/ishitachakravarthy/vector-db/internal/store"
)

// DocumentService coordinates document lifecycle beneath libraries.
type DocumentService struct {
	store   store.Store
	sched   *scheduler.Scheduler
	indexes *IndexService
	logger  *slog.Logger
}

// NewDocumentService creates a document coordinator.
func NewDocumentService(st store.Store, sched *scheduler.Scheduler, indexes *IndexService, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{store: st, sched: sched, indexes: indexes, logger: logger}
}

// CreateDocument verifies the parent library and persists a new
// document. Running under the library key serializes creation against a
// concurrent library delete.
func (s *DocumentService) CreateDocument(ctx context.Context, libraryID uuid.UUID, title string) (*store.Document, error) {
	if title == "" {
		return nil, vecerr.ValidationError("document title must not be empty", nil)
	}

	doc := &store.Document{
		ID:        uuid.New(),
		LibraryID: libraryID,
		Title:     title,
	}

	_, err := s.sched.Run(ctx, scheduler.LibraryKey(libraryID), func(taskCtx context.Context) (any, error) {
		if _, err := s.store.GetLibrary(taskCtx, libraryID); err != nil {
			if vecerr.KindOf(err) == vecerr.KindNotFound {
				return nil, vecerr.ParentNotFound("library", libraryID.String())
			}
			return nil, err
		}
		return nil, vecerr.Retry(taskCtx, vecerr.SingleRetryConfig(), func() error {
			return s.store.SaveDocument(taskCtx, doc)
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("created document",
		slog.String("document_id", doc.ID.String()),
		slog.String("library_id", libraryID.String()))
	return doc, nil
}

// GetDocument reads a document record directly from the store.
func (s *DocumentService) GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// ListDocuments returns a library's documents.
func (s *DocumentService) ListDocuments(ctx context.Context, libraryID uuid.UUID) ([]*store.Document, error) {
	if _, err := s.store.GetLibrary(ctx, libraryID); err != nil {
		return nil, err
	}
	return s.store.ListDocumentsByLibrary(ctx, libraryID)
}

// UpdateDocument changes document-scoped fields under the document key.
func (s *DocumentService) UpdateDocument(ctx context.Context, id uuid.UUID, title string) (*store.Document, error) {
	if title == "" {
		return nil, vecerr.ValidationError("document title must not be empty", nil)
	}

	result, err := s.sched.Run(ctx, scheduler.DocumentKey(id), func(taskCtx context.Context) (any, error) {
		doc, err := s.store.GetDocument(taskCtx, id)
		if err != nil {
			return nil, err
		}
		doc.Title = title
		if err := s.store.SaveDocument(taskCtx, doc); err != nil {
			return nil, err
		}
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*store.Document), nil
}

// DeleteDocument cascades chunk-by-chunk under the library key (each
// chunk's vector leaves the index before its record goes), then removes
// the document record. Cascade first, parent last.
func (s *DocumentService) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.sched.Run(ctx, scheduler.LibraryKey(doc.LibraryID), func(taskCtx context.Context) (any, error) {
		chunks, err := s.store.ListChunksByDocument(taskCtx, id)
		if err != nil {
			return nil, err
		}
		for _, chunk := range chunks {
			if err := s.indexes.DeleteVector(taskCtx, doc.LibraryID, chunk.ID); err != nil {
				return nil, err
			}
			if err := s.store.DeleteChunk(taskCtx, chunk.ID); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	_, err = s.sched.Run(ctx, scheduler.DocumentKey(id), func(taskCtx context.Context) (any, error) {
		return nil, vecerr.Retry(taskCtx, vecerr.SingleRetryConfig(), func() error {
			return s.store.DeleteDocument(taskCtx, id)
		})
	})
	if err == nil {
		s.logger.Info("deleted document", slog.String("document_id", id.String()))
	}
	return err
}
