// Package api exposes the staging store and synchronization engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/factgraph/factgraph/internal/graph"
)

// RemoteDialer opens a remote graph connection for one synchronization run.
// The connection is released unconditionally when the run finishes,
// successfully or not.
type RemoteDialer func(ctx context.Context) (graph.RemoteStore, error)

// Server holds the HTTP server dependencies.
type Server struct {
	store *graph.StagingStore
	dial  RemoteDialer
	log   *slog.Logger
}

// New creates a new API server.
func New(store *graph.StagingStore, dial RemoteDialer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{store: store, dial: dial, log: logger}
}

// Router builds the chi router with all routes and standard middleware.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/payloads", s.IngestPayloads)
		r.Get("/export", s.Export)
		r.Get("/subgraph", s.Subgraph)
		r.Get("/stats", s.GetStats)
		r.Post("/sync", s.Sync)
	})

	return r
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IngestResponse is the response for ingesting a payload batch.
type IngestResponse struct {
	Staged int `json:"staged"`
}

// IngestPayloads handles POST /api/payloads.
func (s *Server) IngestPayloads(w http.ResponseWriter, r *http.Request) {
	var list graph.NodePayloadList
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(list.Payloads) == 0 {
		http.Error(w, "empty payload list", http.StatusBadRequest)
		return
	}

	if err := s.store.UpsertPayloads(r.Context(), list.Payloads); err != nil {
		s.errorResponse(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, IngestResponse{Staged: len(list.Payloads)})
}

// Export handles GET /api/export.
func (s *Server) Export(w http.ResponseWriter, r *http.Request) {
	export, err := s.store.ExportAll(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, export)
}

// Subgraph handles GET /api/subgraph?node_type=...&lookup_key=...
func (s *Server) Subgraph(w http.ResponseWriter, r *http.Request) {
	nodeType := r.URL.Query().Get("node_type")
	lookupKey := r.URL.Query().Get("lookup_key")
	if nodeType == "" || lookupKey == "" {
		http.Error(w, "node_type and lookup_key are required", http.StatusBadRequest)
		return
	}

	export, err := s.store.ExportSubgraph(r.Context(), nodeType, lookupKey)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, export)
}

// GetStats handles GET /api/stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// SyncRequest identifies the root of the subgraph to synchronize.
type SyncRequest struct {
	NodeType  string `json:"node_type"`
	LookupKey string `json:"lookup_key"`
}

// Sync handles POST /api/sync. It opens a remote connection for the duration
// of one run and closes it on every exit path.
func (s *Server) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.NodeType == "" || req.LookupKey == "" {
		http.Error(w, "node_type and lookup_key are required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	remote, err := s.dial(ctx)
	if err != nil {
		s.log.Error("remote dial failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	syncer := graph.NewSyncer(s.store, remote, s.log)
	defer syncer.Close(ctx)

	handle, err := syncer.StoreSubgraph(ctx, req.NodeType, req.LookupKey)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, handle)
}

// errorResponse maps the error taxonomy onto HTTP statuses.
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	var verr *graph.ValidationError
	var terr *graph.TransientError
	var rerr *graph.RemoteError

	switch {
	case errors.Is(err, graph.ErrNodeNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &verr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &terr):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.As(err, &rerr):
		s.log.Error("synchronization failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		s.log.Error("request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encoding response", "error", err)
	}
}
