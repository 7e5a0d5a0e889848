package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/serval-mesh/agent/pkg/scheduler"
)

type enqueueRequest struct {
	ManifestKey string   `json:"manifest_key"`
	InputKey    *string  `json:"input_key,omitempty"`
	Extensions  []string `json:"required_extensions,omitempty"`
	RequireProc bool     `json:"require_proc,omitempty"`
	Priority    string   `json:"priority,omitempty"`
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
}

var priorityByName = map[string]scheduler.Priority{
	"emergency":    scheduler.PriorityEmergency,
	"high":         scheduler.PriorityHighPriority,
	"highpriority": scheduler.PriorityHighPriority,
	"normal":       scheduler.PriorityNormal,
	"low":          scheduler.PriorityLowPriority,
	"lowpriority":  scheduler.PriorityLowPriority,
}

// handleSchedulerEnqueue admits a new job, defaulting to Normal priority
// and a one-off run across whichever capable runner claims it first.
func (s *Server) handleSchedulerEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.ManifestKey == "" {
		http.Error(w, "manifest_key is required", http.StatusBadRequest)
		return
	}

	priority := scheduler.PriorityNormal
	if req.Priority != "" {
		p, ok := priorityByName[req.Priority]
		if !ok {
			http.Error(w, "unrecognized priority", http.StatusBadRequest)
			return
		}
		priority = p
	}

	var requirements []scheduler.Requirement
	for _, ext := range req.Extensions {
		requirements = append(requirements, scheduler.RequireExtension(ext))
	}
	if req.RequireProc {
		requirements = append(requirements, scheduler.RequireProc())
	}

	id, err := s.Scheduler.EnqueueJob(req.ManifestKey, req.InputKey, requirements, scheduler.OneOff(), priority)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: id})
}

type claimRequest struct {
	RunnerID    string   `json:"runner_id"`
	Extensions  []string `json:"capabilities,omitempty"`
	RequireProc bool     `json:"proc,omitempty"`
}

// handleSchedulerClaim announces a runner's availability and returns the
// job it was assigned by the resulting tick, if any.
func (s *Server) handleSchedulerClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.RunnerID == "" {
		http.Error(w, "runner_id is required", http.StatusBadRequest)
		return
	}

	var capabilities []scheduler.Requirement
	for _, ext := range req.Extensions {
		capabilities = append(capabilities, scheduler.RequireExtension(ext))
	}
	if req.RequireProc {
		capabilities = append(capabilities, scheduler.RequireProc())
	}

	job, ok := s.Scheduler.Claim(req.RunnerID, capabilities)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleSchedulerTickle extends an in-progress job's deadline, the
// runner's heartbeat against having its lease reclaimed.
func (s *Server) handleSchedulerTickle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	if err := s.Scheduler.ExtendJobDeadline(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
