package server

import (
	"net/http"
	"time"

	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/metrics"
	"github.com/openshift-hyperfleet/kartograph-sub000/pkg/mutation"
)

// lintResponse is the diagnostics payload for /v1/mutations/lint. The same
// validator runs here and inside the applier, so lint can never accept a
// batch that apply refuses.
type lintResponse struct {
	Operations int                    `json:"operations"`
	Errors     []mutation.BatchError  `json:"errors,omitempty"`
	Warnings   []operationDiagnostics `json:"warnings,omitempty"`
	Summary    *mutation.Summary      `json:"summary,omitempty"`
	Applyable  bool                   `json:"applyable"`
}

type operationDiagnostics struct {
	Index    int      `json:"index"`
	Line     int      `json:"line"`
	Op       string   `json:"op"`
	Messages []string `json:"messages"`
}

// handleApply applies a batch as one atomic transaction.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	text, ok := s.readBatchText(w, r)
	if !ok {
		return
	}

	start := time.Now()
	batch := mutation.Parse(text)
	result := s.applier.Apply(r.Context(), batch)
	s.metrics.ApplyDuration.Observe(time.Since(start).Seconds())
	s.metrics.BatchWarningsTotal.Add(float64(batch.WarningCount()))

	switch {
	case result.Success:
		s.metrics.AppliesTotal.WithLabelValues(metrics.OutcomeCommitted).Inc()
		s.metrics.OperationsApplied.Add(float64(result.OperationsApplied))
	case batch.HasFatalErrors():
		s.metrics.AppliesTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
	default:
		s.metrics.AppliesTotal.WithLabelValues(metrics.OutcomeAborted).Inc()
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, result)
}

// handleLint validates a batch without touching the store. Bodies above the
// summary threshold get the read-only breakdown instead of full diagnostics,
// mirroring the interactive dispatcher's behavior.
func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	text, ok := s.readBatchText(w, r)
	if !ok {
		return
	}

	start := time.Now()
	if len(text) > s.cfg.SummaryThresholdBytes {
		summary := mutation.Summarize(text, s.cfg.MaxSummaryErrors)
		s.metrics.ParsesTotal.WithLabelValues(string(mutation.ParseModeSummary)).Inc()
		s.metrics.ParseDuration.Observe(time.Since(start).Seconds())
		s.writeJSON(w, http.StatusOK, lintResponse{
			Operations: summary.Operations(),
			Summary:    summary,
			Applyable:  summary.ParseErrors == 0,
		})
		return
	}

	batch := mutation.Parse(text)
	mutation.NewValidator(s.registry).Validate(batch)
	s.metrics.ParsesTotal.WithLabelValues(string(mutation.ParseModeSync)).Inc()
	s.metrics.ParseDuration.Observe(time.Since(start).Seconds())
	s.metrics.BatchWarningsTotal.Add(float64(batch.WarningCount()))

	s.writeJSON(w, http.StatusOK, batchToLintResponse(batch))
}

func batchToLintResponse(batch *mutation.Batch) lintResponse {
	resp := lintResponse{
		Operations: len(batch.Ops),
		Errors:     batch.Errors(),
		Applyable:  !batch.HasFatalErrors(),
	}
	for _, parsed := range batch.Ops {
		if len(parsed.Warnings) == 0 {
			continue
		}
		pos := parsed.Op.Pos()
		resp.Warnings = append(resp.Warnings, operationDiagnostics{
			Index:    pos.Index,
			Line:     pos.Line,
			Op:       string(parsed.Op.Kind()),
			Messages: parsed.Warnings,
		})
	}
	return resp
}
