package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/serval-mesh/agent/pkg/blob"
	"github.com/serval-mesh/agent/pkg/types"
)

// handleJobRun executes the named manifest's current version directly on
// this node, with the request body as stdin.
func (s *Server) handleJobRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stdin, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := s.Runner.RunManifest(r.Context(), name, stdin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeExecutionResult(w, result)
}

// handleJobRunStored executes a previously-stored blob directly, bypassing
// manifest lookup.
func (s *Server) handleJobRunStored(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	if !blob.IsValidAddress(addr) {
		http.Error(w, "malformed blob address", http.StatusBadRequest)
		return
	}
	stdin, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := s.Runner.RunStored(r.Context(), addr, stdin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeExecutionResult(w, result)
}

// handleJobHistory reports this runner's running totals and in-flight jobs.
func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Runner.History())
}

// writeExecutionResult writes the guest's raw stdout on a zero exit code,
// or its stderr otherwise. The request succeeded either way — a non-zero
// exit is the job's own outcome, not an API failure — so both cases
// answer 200 OK, matching the body a caller would get running the
// executable directly.
func writeExecutionResult(w http.ResponseWriter, result types.WasmResult) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	if result.Success() {
		_, _ = w.Write(result.Stdout)
		return
	}
	_, _ = w.Write(result.Stderr)
}
