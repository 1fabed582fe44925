// Package server exposes the HTTP/JSON boundary: library, document, and
// chunk CRUD, vector search, index stats, and queue introspection.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/scheduler"
	"github.com/ishitachakravarthy/vector-db/internal/service"
	"github.com/ishitachakravarthy/vector-db/pkg/version"
)

// Server wires HTTP handlers to the coordinators.
type Server struct {
	router    http.Handler
	libraries *service.LibraryService
	documents *service.DocumentService
	chunks    *service.ChunkService
	sched     *scheduler.Scheduler
	logger    *slog.Logger
}

// New constructs a Server with the provided dependencies.
func New(libraries *service.LibraryService, documents *service.DocumentService,
	chunks *service.ChunkService, sched *scheduler.Scheduler, logger *slog.Logger) *Server {

	if logger == nil {
		logger = slog.Default()
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s := &Server{
		router:    mux,
		libraries: libraries,
		documents: documents,
		chunks:    chunks,
		sched:     sched,
		logger:    logger,
	}

	mux.Get("/health", s.handleHealth)

	mux.Route("/library", func(r chi.Router) {
		r.Post("/", s.handleCreateLibrary)
		r.Get("/", s.handleListLibraries)
		r.Get("/{id}", s.handleGetLibrary)
		r.Put("/{id}", s.handleUpdateLibrary)
		r.Delete("/{id}", s.handleDeleteLibrary)
		r.Get("/{id}/stats", s.handleLibraryStats)
		r.Get("/{id}/documents", s.handleListDocuments)
	})

	mux.Route("/document", func(r chi.Router) {
		r.Post("/", s.handleCreateDocument)
		r.Get("/{id}", s.handleGetDocument)
		r.Put("/{id}", s.handleUpdateDocument)
		r.Delete("/{id}", s.handleDeleteDocument)
		r.Get("/{id}/chunks", s.handleListChunks)
	})

	mux.Route("/chunks", func(r chi.Router) {
		r.Post("/", s.handleCreateChunk)
		r.Get("/{id}", s.handleGetChunk)
		r.Put("/{id}", s.handleUpdateChunk)
		r.Delete("/{id}", s.handleDeleteChunk)
	})

	mux.Post("/search", s.handleSearch)
	mux.Get("/admin/queues", s.handleQueueStats)

	return s
}

// ServeHTTP exposes the router so Server satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Number,
	})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats := s.sched.Stats()
	payload := make([]map[string]any, 0, len(stats))
	for _, st := range stats {
		payload = append(payload, map[string]any{
			"key":            st.Key.String(),
			"depth":          st.Depth,
			"running":        st.Running,
			"last_processed": st.LastProcessed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"queues": payload})
}

// writeJSON renders v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError maps an error kind to its HTTP status and renders the
// structured body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromKind(vecerr.KindOf(err))
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}

	var body errorBody
	body.Error.Code = vecerr.GetCode(err)
	if body.Error.Code == "" {
		body.Error.Code = vecerr.ErrCodeInternal
	}
	body.Error.Message = err.Error()
	writeJSON(w, status, body)
}

// statusFromKind is the error taxonomy to HTTP status mapping.
func statusFromKind(kind vecerr.Kind) int {
	switch kind {
	case vecerr.KindNotFound:
		return http.StatusNotFound
	case vecerr.KindParentNotFound, vecerr.KindIntegrityViolation:
		return http.StatusConflict
	case vecerr.KindDimensionMismatch, vecerr.KindZeroVector,
		vecerr.KindUnknownIndexType, vecerr.KindValidation, vecerr.KindConfig:
		return http.StatusBadRequest
	case vecerr.KindEmbedderError:
		return http.StatusBadGateway
	case vecerr.KindCancelled:
		return 499 // client closed request
	case vecerr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
