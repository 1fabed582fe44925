// Package store persists libraries, documents, and chunks in SQLite.
// It is the single shared mutable collaborator of the system: index blobs
// live inside library records and are rewritten on every successful
// mutating index operation.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Library is the root entity. It owns its documents by reference and
// carries the serialized vector index for all chunks beneath it.
type Library struct {
	ID          uuid.UUID
	Title       string
	Description string

	// IndexType is one of "flat", "ivf", "hnsw".
	IndexType string

	// IndexData is the opaque index blob exactly as produced by the
	// index serializer. Empty until the first vector is added.
	IndexData []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document belongs to exactly one library.
type Document struct {
	ID        uuid.UUID
	LibraryID uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is a retrievable unit of text with its embedding.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Text       string

	// Embedding is generated from Text on create and regenerated on
	// every text change; its length equals the library dimension.
	Embedding []float64

	// Section and Position are user-facing placement metadata.
	Section  string
	Position int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the persistence adapter. Implementations are safe for
// concurrent use; ordering guarantees come from the scheduler, not from
// here.
type Store interface {
	// Library operations
	SaveLibrary(ctx context.Context, lib *Library) error
	GetLibrary(ctx context.Context, id uuid.UUID) (*Library, error)
	ListLibraries(ctx context.Context) ([]*Library, error)
	DeleteLibrary(ctx context.Context, id uuid.UUID) error

	// UpdateIndex rewrites a library's index type and blob in place.
	UpdateIndex(ctx context.Context, libraryID uuid.UUID, indexType string, indexData []byte) error

	// Document operations
	SaveDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	ListDocumentsByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// Chunk operations
	SaveChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, id uuid.UUID) (*Chunk, error)
	ListChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error)
	ListChunksByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*Chunk, error)
	DeleteChunk(ctx context.Context, id uuid.UUID) error

	// Lifecycle
	Close() error
}
