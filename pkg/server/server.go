// Package server provides the Kartograph HTTP API.
//
// Endpoints:
//
//	POST   /v1/mutations/apply          - apply a batch (one atomic transaction)
//	POST   /v1/mutations/lint           - validate a batch without applying
//	POST   /v1/sessions/{id}/preview    - submit editing-session text for live preview
//	GET    /v1/sessions/{id}/preview    - latest honored preview result
//	DELETE /v1/sessions/{id}            - close an editing session
//	GET    /v1/schema/types             - browse declared type definitions
//	GET    /v1/nodes/{id}               - node point lookup
//	GET    /v1/edges/{id}               - edge point lookup
//	GET    /v1/stats                    - store counts
//	GET    /health                      - liveness
//	GET    /metrics                     - prometheus
//
// Request bodies for apply/lint/preview are raw batch text: newline-delimited
// JSON operations.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/config"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/metrics"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/mutation"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/schema"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/storage"
)

// Server hosts the mutation API over one store, registry, and applier.
type Server struct {
	cfg      *config.Config
	store    storage.Engine
	registry *schema.Registry
	applier  *mutation.Applier
	metrics  *metrics.Metrics

	httpServer *http.Server
	listener   net.Listener

	sessionsMu sync.Mutex
	sessions   map[string]*previewSession
}

// New creates a server. The registry must already be hydrated from the store.
func New(cfg *config.Config, store storage.Engine, registry *schema.Registry, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		applier:  mutation.NewApplier(store, registry),
		metrics:  m,
		sessions: make(map[string]*previewSession),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/mutations/apply", s.handleApply)
	mux.HandleFunc("/v1/mutations/lint", s.handleLint)
	mux.HandleFunc("/v1/sessions/", s.handleSessions)
	mux.HandleFunc("/v1/schema/types", s.handleSchemaTypes)
	mux.HandleFunc("/v1/nodes/", s.handleNode)
	mux.HandleFunc("/v1/edges/", s.handleEdge)
	mux.HandleFunc("/v1/stats", s.handleStats)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", m.Handler())

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Non-blocking; errors after startup are logged.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr, err)
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server: %v", err)
		}
	}()
	log.Printf("kartograph listening on %s", listener.Addr())
	return nil
}

// Addr returns the bound address. Valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.ListenAddr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully and closes all preview sessions.
func (s *Server) Stop(ctx context.Context) error {
	s.sessionsMu.Lock()
	for id, session := range s.sessions {
		session.dispatcher.Close()
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

// Middleware and response helpers
// ============================================================================

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Microsecond))
		}
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, format string, args ...any) {
	s.writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// readBatchText reads a request body up to the configured batch size limit.
func (s *Server) readBatchText(w http.ResponseWriter, r *http.Request) (string, bool) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.MaxBatchBytes)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "batch exceeds %d bytes", s.cfg.MaxBatchBytes)
			return "", false
		}
		s.writeError(w, http.StatusBadRequest, "reading request body: %v", err)
		return "", false
	}
	return string(data), true
}

// Basic endpoints
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.store.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "reading stats: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSchemaTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"types": s.registry.All()})
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/nodes/")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "node id required")
		return
	}
	node, err := s.store.GetNode(storage.NodeID(id))
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "node %s not found", id)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "reading node: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleEdge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/edges/")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "edge id required")
		return
	}
	edge, err := s.store.GetEdge(storage.EdgeID(id))
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "edge %s not found", id)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "reading edge: %v", err)
		return
	}
	s.writeJSON(w, http.StatusOK, edge)
}
