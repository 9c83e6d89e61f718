package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/mutation"
)

// previewSession is one editing session's live-preview state: a dispatcher
// plus the latest honored result. Superseded results never land here.
type previewSession struct {
	dispatcher *mutation.Dispatcher

	mu     sync.Mutex
	latest *mutation.ParseResult
}

func (p *previewSession) store(result *mutation.ParseResult) {
	p.mu.Lock()
	p.latest = result
	p.mu.Unlock()
}

func (p *previewSession) snapshot() *mutation.ParseResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// previewResponse renders a parse result (or the in-flight state) to JSON.
type previewResponse struct {
	State      string                `json:"state"`
	Mode       string                `json:"mode,omitempty"`
	Seq        uint64                `json:"seq,omitempty"`
	Operations int                   `json:"operations,omitempty"`
	Errors     []mutation.BatchError `json:"errors,omitempty"`
	Warnings   int                   `json:"warnings,omitempty"`
	Applyable  bool                  `json:"applyable"`
	Summary    *mutation.Summary     `json:"summary,omitempty"`
	ElapsedMS  float64               `json:"elapsed_ms,omitempty"`
}

// handleSessions routes /v1/sessions/{id}[/preview].
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) < 1 || parts[0] == "" {
		s.writeError(w, http.StatusBadRequest, "session id required")
		return
	}
	id := parts[0]
	remaining := parts[1:]

	switch {
	case len(remaining) == 0 && r.Method == http.MethodDelete:
		s.closeSession(id)
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})

	case len(remaining) == 1 && remaining[0] == "preview" && r.Method == http.MethodPost:
		s.handlePreviewSubmit(w, r, id)

	case len(remaining) == 1 && remaining[0] == "preview" && r.Method == http.MethodGet:
		s.handlePreviewGet(w, id)

	default:
		s.writeError(w, http.StatusNotFound, "unknown session endpoint")
	}
}

// handlePreviewSubmit feeds the session's dispatcher. Small texts come back
// with inline diagnostics; larger ones return 202 and the result is fetched
// (or superseded) later.
func (s *Server) handlePreviewSubmit(w http.ResponseWriter, r *http.Request, id string) {
	text, ok := s.readBatchText(w, r)
	if !ok {
		return
	}

	session := s.session(id)
	result := session.dispatcher.Submit(text)
	if result != nil {
		s.writeJSON(w, http.StatusOK, renderPreview(result))
		return
	}
	s.writeJSON(w, http.StatusAccepted, previewResponse{State: mutation.StateParsing.String()})
}

func (s *Server) handlePreviewGet(w http.ResponseWriter, id string) {
	s.sessionsMu.Lock()
	session := s.sessions[id]
	s.sessionsMu.Unlock()
	if session == nil {
		s.writeError(w, http.StatusNotFound, "session %s not found", id)
		return
	}

	result := session.snapshot()
	if result == nil {
		s.writeJSON(w, http.StatusOK, previewResponse{State: session.dispatcher.State().String()})
		return
	}
	s.writeJSON(w, http.StatusOK, renderPreview(result))
}

// session returns the editing session, creating it on first use.
func (s *Server) session(id string) *previewSession {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if existing, ok := s.sessions[id]; ok {
		return existing
	}

	session := &previewSession{}
	session.dispatcher = mutation.NewDispatcher(
		mutation.NewValidator(s.registry),
		&mutation.DispatcherConfig{
			SyncThreshold:    s.cfg.SyncThresholdBytes,
			SummaryThreshold: s.cfg.SummaryThresholdBytes,
			DebounceInterval: s.cfg.ParseDebounce,
			MaxSummaryErrors: s.cfg.MaxSummaryErrors,
			OnSuperseded:     s.metrics.SupersededTotal.Inc,
		},
		func(result *mutation.ParseResult) {
			session.store(result)
			s.metrics.ParsesTotal.WithLabelValues(string(result.Mode)).Inc()
			s.metrics.ParseDuration.Observe(result.Elapsed.Seconds())
			if result.Batch != nil {
				s.metrics.BatchWarningsTotal.Add(float64(result.Batch.WarningCount()))
			}
		},
	)
	s.sessions[id] = session
	return session
}

func (s *Server) closeSession(id string) {
	s.sessionsMu.Lock()
	session := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
	if session != nil {
		session.dispatcher.Close()
	}
}

func renderPreview(result *mutation.ParseResult) previewResponse {
	resp := previewResponse{
		State:     mutation.StateReady.String(),
		Mode:      string(result.Mode),
		Seq:       result.Seq,
		ElapsedMS: float64(result.Elapsed) / float64(time.Millisecond),
	}
	switch {
	case result.Summary != nil:
		resp.Summary = result.Summary
		resp.Operations = result.Summary.Operations()
		resp.Applyable = result.Summary.ParseErrors == 0
	case result.Batch != nil:
		resp.Operations = len(result.Batch.Ops)
		resp.Errors = result.Batch.Errors()
		resp.Warnings = result.Batch.WarningCount()
		resp.Applyable = !result.Batch.HasFatalErrors()
	}
	return resp
}
