package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/service"
	"github.com/ishitachakravarthy/vector-db/internal/store"
)

// libraryResponse is the wire form of a library; the index blob stays
// internal.
type libraryResponse struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IndexType   string    `json:"index_type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toLibraryResponse(lib *store.Library) libraryResponse {
	return libraryResponse{
		ID:          lib.ID,
		Title:       lib.Title,
		Description: lib.Description,
		IndexType:   lib.IndexType,
		CreatedAt:   lib.CreatedAt,
		UpdatedAt:   lib.UpdatedAt,
	}
}

// documentResponse is the wire form of a document.
type documentResponse struct {
	ID        uuid.UUID `json:"id"`
	LibraryID uuid.UUID `json:"library_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDocumentResponse(doc *store.Document) documentResponse {
	return documentResponse{
		ID:        doc.ID,
		LibraryID: doc.LibraryID,
		Title:     doc.Title,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// chunkResponse is the wire form of a chunk; embeddings are omitted.
type chunkResponse struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Text       string    `json:"text"`
	Section    string    `json:"section,omitempty"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toChunkResponse(chunk *store.Chunk) chunkResponse {
	return chunkResponse{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		Text:       chunk.Text,
		Section:    chunk.Section,
		Position:   chunk.Position,
		CreatedAt:  chunk.CreatedAt,
		UpdatedAt:  chunk.UpdatedAt,
	}
}

// urlID parses the {id} route parameter.
func urlID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, vecerr.ValidationError("invalid id in path", err)
	}
	return id, nil
}

func (s *Server) handleCreateLibrary(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		IndexType   string `json:"index_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, r, vecerr.ValidationError("decode request body", err))
		return
	}

	lib, err := s.libraries.CreateLibrary(r.Context(), payload.Title, payload.Description, payload.IndexType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLibraryResponse(lib))
}

func (s *Server) handleListLibraries(w http.ResponseWriter, r *http.Request) {
	libs, err := s.libraries.ListLibraries(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]libraryResponse, 0, len(libs))
	for _, lib := range libs {
		out = append(out, toLibraryResponse(lib))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lib, err := s.libraries.GetLibrary(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLibraryResponse(lib))
}

func (s *Server) handleUpdateLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var payload struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		IndexType   *string `json:"index_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, r, vecerr.ValidationError("decode request body", err))
		return
	}

	lib, err := s.libraries.UpdateLibrary(r.Context(), id, service.LibraryUpdate{
		Title:       payload.Title,
		Description: payload.Description,
		IndexType:   payload.IndexType,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLibraryResponse(lib))
}

func (s *Server) handleDeleteLibrary(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.libraries.DeleteLibrary(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleLibraryStats(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.libraries.IndexStats(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	libraryID, err := uuid.Parse(r.URL.Query().Get("library_id"))
	if err != nil {
		s.writeError(w, r, vecerr.ValidationError("invalid library_id", err))
		return
	}
	title := r.URL.Query().Get("title")

	doc, err := s.documents.CreateDocument(r.Context(), libraryID, title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	docs, err := s.documents.ListDocuments(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toDocumentResponse(doc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.documents.GetDocument(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, r, vecerr.ValidationError("decode request body", err))
		return
	}

	doc, err := s.documents.UpdateDocument(r.Context(), id, payload.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.documents.DeleteDocument(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	chunks, err := s.chunks.ListChunks(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]chunkResponse, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, toChunkResponse(chunk))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateChunk(w http.ResponseWriter, r *http.Request) {
	documentID, err := uuid.Parse(r.URL.Query().Get("document_id"))
	if err != nil {
		s.writeError(w, r, vecerr.ValidationError("invalid document_id", err))
		return
	}

	position := 0
	if raw := r.URL.Query().Get("order"); raw != "" {
		position, err = strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, vecerr.ValidationError("invalid order", err))
			return
		}
	}

	chunk, err := s.chunks.CreateChunk(r.Context(), service.ChunkCreate{
		DocumentID: documentID,
		Text:       r.URL.Query().Get("text"),
		Section:    r.URL.Query().Get("section"),
		Position:   position,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toChunkResponse(chunk))
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	chunk, err := s.chunks.GetChunk(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChunkResponse(chunk))
}

func (s *Server) handleUpdateChunk(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var payload struct {
		Text     *string `json:"text"`
		Section  *string `json:"section"`
		Position *int    `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, r, vecerr.ValidationError("decode request body", err))
		return
	}

	chunk, err := s.chunks.UpdateChunk(r.Context(), id, service.ChunkUpdate{
		Text:     payload.Text,
		Section:  payload.Section,
		Position: payload.Position,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChunkResponse(chunk))
}

func (s *Server) handleDeleteChunk(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.chunks.DeleteChunk(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		LibraryID uuid.UUID `json:"library_id"`
		Query     string    `json:"query"`
		K         int       `json:"k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, r, vecerr.ValidationError("decode request body", err))
		return
	}
	if payload.K == 0 {
		payload.K = 5
	}

	chunks, err := s.libraries.Search(r.Context(), payload.LibraryID, payload.Query, payload.K)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]chunkResponse, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, toChunkResponse(chunk))
	}
	writeJSON(w, http.StatusOK, out)
}
