package agent

import (
	"strings"
	"sync"
	"time"
)

// StatusSnapshot is the JSON view of the latest runs.
type StatusSnapshot struct {
	// Status is "running" while a run is in flight and Health otherwise.
	Status string `json:"status"`
	// Health judges finished runs only: "idle", "ok" or "warn".
	Health              string     `json:"health"`
	LastRunID           string     `json:"last_run_id,omitempty"`
	LastAttemptAt       string     `json:"last_attempt_at,omitempty"`
	LastOkAt            string     `json:"last_ok_at,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	LastErrorAt         string     `json:"last_error_at,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures,omitempty"`
	InFlight            bool       `json:"in_flight"`
	Last                *RunResult `json:"last,omitempty"`
}

// Status tracks run outcomes across passes. A nil *Status ignores
// updates.
type Status struct {
	// Interval is the expected time between runs; a success older than
	// twice the interval reports "warn".
	Interval time.Duration

	mu                  sync.Mutex
	inFlight            bool
	lastRunID           string
	lastAttempt         time.Time
	lastOK              time.Time
	lastError           string
	lastErrorAt         time.Time
	consecutiveFailures int
	last                *RunResult
}

func (s *Status) begin(runID string, at time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = true
	s.lastRunID = runID
	s.lastAttempt = at
}

func (s *Status) finish(res RunResult, err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.inFlight = false
	if err != nil {
		msg := strings.TrimSpace(err.Error())
		if msg == "" {
			msg = "run failed"
		}
		s.lastError = msg
		s.lastErrorAt = res.FinishedAt
		s.consecutiveFailures++
		return
	}
	s.lastOK = res.FinishedAt
	s.lastError = ""
	s.lastErrorAt = time.Time{}
	s.consecutiveFailures = 0
	s.last = &res
}

func (s *Status) Snapshot(now time.Time) StatusSnapshot {
	if s == nil {
		return StatusSnapshot{Status: "idle", Health: "idle"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	health := "idle"
	if s.lastError != "" {
		health = "warn"
	}
	if !s.lastOK.IsZero() {
		health = "ok"
		if s.lastError != "" && s.lastErrorAt.After(s.lastOK) {
			health = "warn"
		}
		if s.Interval > 0 && now.Sub(s.lastOK) > s.Interval*2 {
			health = "warn"
		}
	}
	status := health
	if s.inFlight {
		status = "running"
	}

	snap := StatusSnapshot{
		Status:              status,
		Health:              health,
		LastRunID:           s.lastRunID,
		LastError:           s.lastError,
		ConsecutiveFailures: s.consecutiveFailures,
		InFlight:            s.inFlight,
		Last:                s.last,
	}
	if !s.lastAttempt.IsZero() {
		snap.LastAttemptAt = s.lastAttempt.UTC().Format(time.RFC3339)
	}
	if !s.lastOK.IsZero() {
		snap.LastOkAt = s.lastOK.UTC().Format(time.RFC3339)
	}
	if !s.lastErrorAt.IsZero() {
		snap.LastErrorAt = s.lastErrorAt.UTC().Format(time.RFC3339)
	}
	return snap
}

// LastResult is the most recent successful run, if any.
func (s *Status) LastResult() (RunResult, bool) {
	if s == nil {
		return RunResult{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunResult{}, false
	}
	return *s.last, true
}
