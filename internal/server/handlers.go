package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"holoport-stats/internal/agent"
	"holoport-stats/internal/system"
)

type healthResponse struct {
	Status string               `json:"status"`
	Agent  agent.StatusSnapshot `json:"agent"`
	Host   *system.Resources    `json:"host,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.status.Snapshot(time.Now())
	// Drop the embedded last result; /api/report serves it.
	snap.Last = nil

	resp := healthResponse{Status: "OK", Agent: snap}
	if snap.Health == "warn" {
		resp.Status = "WARN"
	}
	if res, err := system.ReadResources(s.procRoot); err == nil {
		resp.Host = &res
	} else {
		s.logger.Printf("health: host resources unavailable: %v", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	res, ok := s.status.LastResult()
	if !ok {
		writeError(w, http.StatusNotFound, "no successful run yet")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "run archive not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	entries, err := s.history.Recent(ctx, limit)
	if err != nil {
		s.logger.Printf("runs: %v", err)
		writeError(w, http.StatusInternalServerError, "run archive error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": entries})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	if !s.trigger.Trigger() {
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
}
