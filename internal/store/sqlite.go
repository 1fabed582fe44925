package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

// SQLiteStore implements Store on a single SQLite database file.
// WAL mode allows concurrent readers alongside the serialized writers;
// a file lock keeps a second process from opening the same database.
type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Verify interface implementation at compile time
var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS libraries (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    index_type  TEXT NOT NULL,
    index_data  BLOB,
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
    id         TEXT PRIMARY KEY,
    library_id TEXT NOT NULL REFERENCES libraries(id),
    title      TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_library ON documents(library_id);

CREATE TABLE IF NOT EXISTS chunks (
    id          TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES documents(id),
    text        TEXT NOT NULL,
    embedding   TEXT NOT NULL,
    section     TEXT NOT NULL DEFAULT '',
    position    INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
`

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreWrite, "create data directory", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreLocked, "acquire database lock", err)
	}
	if !locked {
		return nil, vecerr.New(vecerr.ErrCodeStoreLocked,
			fmt.Sprintf("database %s is in use by another process", path), nil)
	}

	// busy_timeout and foreign_keys are per-connection settings, so they
	// ride in the DSN and apply to every pooled connection.
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		_ = lock.Unlock()
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "open database", err)
	}

	// WAL for concurrent reads, busy timeout to ride out writer overlap.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, vecerr.New(vecerr.ErrCodeStoreWrite, "apply pragma", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, vecerr.New(vecerr.ErrCodeStoreWrite, "apply schema", err)
	}

	return &SQLiteStore{db: db, lock: lock, path: path}, nil
}

// Close closes the database and releases the process lock.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "close database", err)
	}
	return nil
}

// SaveLibrary inserts or replaces a library record.
func (s *SQLiteStore) SaveLibrary(ctx context.Context, lib *Library) error {
	now := time.Now().UTC()
	if lib.CreatedAt.IsZero() {
		lib.CreatedAt = now
	}
	lib.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO libraries (id, title, description, index_type, index_data, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            description = excluded.description,
            index_type = excluded.index_type,
            index_data = excluded.index_data,
            updated_at = excluded.updated_at`,
		lib.ID.String(), lib.Title, lib.Description, lib.IndexType, lib.IndexData,
		lib.CreatedAt, lib.UpdatedAt)
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "save library", err)
	}
	return nil
}

// GetLibrary loads a library by id.
func (s *SQLiteStore) GetLibrary(ctx context.Context, id uuid.UUID) (*Library, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, title, description, index_type, index_data, created_at, updated_at
        FROM libraries WHERE id = ?`, id.String())
	lib, err := scanLibrary(row)
	if err == sql.ErrNoRows {
		return nil, vecerr.NotFound("library", id.String())
	}
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "get library", err)
	}
	return lib, nil
}

// ListLibraries returns all libraries in creation order.
func (s *SQLiteStore) ListLibraries(ctx context.Context) ([]*Library, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, title, description, index_type, index_data, created_at, updated_at
        FROM libraries ORDER BY created_at, id`)
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "list libraries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, vecerr.New(vecerr.ErrCodeStoreRead, "scan library", err)
		}
		out = append(out, lib)
	}
	if err := rows.Err(); err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "list libraries", err)
	}
	return out, nil
}

// DeleteLibrary removes a library record. Children are expected to be
// gone already: coordinators cascade first, parent last.
func (s *SQLiteStore) DeleteLibrary(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id.String())
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "delete library", err)
	}
	return requireAffected(res, "library", id)
}

// UpdateIndex rewrites a library's index type and blob.
func (s *SQLiteStore) UpdateIndex(ctx context.Context, libraryID uuid.UUID, indexType string, indexData []byte) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE libraries SET index_type = ?, index_data = ?, updated_at = ?
        WHERE id = ?`,
		indexType, indexData, time.Now().UTC(), libraryID.String())
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "update index data", err)
	}
	return requireAffected(res, "library", libraryID)
}

// SaveDocument inserts or replaces a document record.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *Document) error {
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO documents (id, library_id, title, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            updated_at = excluded.updated_at`,
		doc.ID.String(), doc.LibraryID.String(), doc.Title, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "save document", err)
	}
	return nil
}

// GetDocument loads a document by id.
func (s *SQLiteStore) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, library_id, title, created_at, updated_at
        FROM documents WHERE id = ?`, id.String())
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, vecerr.NotFound("document", id.String())
	}
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "get document", err)
	}
	return doc, nil
}

// ListDocumentsByLibrary returns a library's documents in creation order.
func (s *SQLiteStore) ListDocumentsByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, library_id, title, created_at, updated_at
        FROM documents WHERE library_id = ? ORDER BY created_at, id`, libraryID.String())
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "list documents", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, vecerr.New(vecerr.ErrCodeStoreRead, "scan document", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "list documents", err)
	}
	return out, nil
}

// DeleteDocument removes a document record.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "delete document", err)
	}
	return requireAffected(res, "document", id)
}

// SaveChunk inserts or replaces a chunk record. The embedding is stored
// as a JSON array of doubles.
func (s *SQLiteStore) SaveChunk(ctx context.Context, chunk *Chunk) error {
	now := time.Now().UTC()
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = now
	}
	chunk.UpdatedAt = now

	embedding, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "encode embedding", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO chunks (id, document_id, text, embedding, section, position, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            text = excluded.text,
            embedding = excluded.embedding,
            section = excluded.section,
            position = excluded.position,
            updated_at = excluded.updated_at`,
		chunk.ID.String(), chunk.DocumentID.String(), chunk.Text, string(embedding),
		chunk.Section, chunk.Position, chunk.CreatedAt, chunk.UpdatedAt)
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "save chunk", err)
	}
	return nil
}

// GetChunk loads a chunk by id.
func (s *SQLiteStore) GetChunk(ctx context.Context, id uuid.UUID) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, document_id, text, embedding, section, position, created_at, updated_at
        FROM chunks WHERE id = ?`, id.String())
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, vecerr.NotFound("chunk", id.String())
	}
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "get chunk", err)
	}
	return chunk, nil
}

// ListChunksByDocument returns a document's chunks ordered by position,
// then creation time.
func (s *SQLiteStore) ListChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]*Chunk, error) {
	return s.listChunks(ctx, `
        SELECT id, document_id, text, embedding, section, position, created_at, updated_at
        FROM chunks WHERE document_id = ? ORDER BY position, created_at, id`, documentID.String())
}

// ListChunksByLibrary returns every chunk under a library, used by index
// rebuilds. Ordered by creation time so reinsertions are reproducible.
func (s *SQLiteStore) ListChunksByLibrary(ctx context.Context, libraryID uuid.UUID) ([]*Chunk, error) {
	return s.listChunks(ctx, `
        SELECT c.id, c.document_id, c.text, c.embedding, c.section, c.position, c.created_at, c.updated_at
        FROM chunks c JOIN documents d ON c.document_id = d.id
        WHERE d.library_id = ? ORDER BY c.created_at, c.id`, libraryID.String())
}

func (s *SQLiteStore) listChunks(ctx context.Context, query string, arg string) ([]*Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "list chunks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, vecerr.New(vecerr.ErrCodeStoreRead, "scan chunk", err)
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, vecerr.New(vecerr.ErrCodeStoreRead, "list chunks", err)
	}
	return out, nil
}

// DeleteChunk removes a chunk record.
func (s *SQLiteStore) DeleteChunk(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id.String())
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "delete chunk", err)
	}
	return requireAffected(res, "chunk", id)
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLibrary(row scanner) (*Library, error) {
	var lib Library
	var id string
	if err := row.Scan(&id, &lib.Title, &lib.Description, &lib.IndexType,
		&lib.IndexData, &lib.CreatedAt, &lib.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	lib.ID = parsed
	return &lib, nil
}

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var id, libraryID string
	if err := row.Scan(&id, &libraryID, &doc.Title, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if doc.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if doc.LibraryID, err = uuid.Parse(libraryID); err != nil {
		return nil, err
	}
	return &doc, nil
}

func scanChunk(row scanner) (*Chunk, error) {
	var chunk Chunk
	var id, documentID, embedding string
	if err := row.Scan(&id, &documentID, &chunk.Text, &embedding,
		&chunk.Section, &chunk.Position, &chunk.CreatedAt, &chunk.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if chunk.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if chunk.DocumentID, err = uuid.Parse(documentID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(embedding), &chunk.Embedding); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// requireAffected turns a zero-row write into NotFound so deletes of
// absent entities surface consistently.
func requireAffected(res sql.Result, entity string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return vecerr.New(vecerr.ErrCodeStoreWrite, "rows affected", err)
	}
	if n == 0 {
		return vecerr.NotFound(entity, id.String())
	}
	return nil
}
