// Package health serves a liveness endpoint reporting whether the
// player currently has a live SlimProto connection and what state its
// decode pipeline is in, the same "not ready until something concrete
// happened" shape as plexTuner's /healthz (200 once channels are
// loaded, 503 "loading" before).
package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status is the liveness snapshot reported by Handler.
type Status struct {
	Connected     bool
	PipelineState string
	LastStatAt    time.Time
}

// Reporter supplies the current Status; Tracker implements it.
type Reporter interface {
	HealthStatus() Status
}

// Handler serves GET /healthz. Before any connection state has been
// recorded it returns 503 {"status":"starting"}, mirroring the provider
// pack's "loading" convention; after that it returns the status body
// with 200 while connected and 503 while disconnected.
func Handler(r Reporter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		status := r.HealthStatus()
		w.Header().Set("Content-Type", "application/json")

		if status.LastStatAt.IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"starting"}`))
			return
		}

		code := http.StatusOK
		if !status.Connected {
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		body, _ := json.Marshal(map[string]any{
			"status":         connectedLabel(status.Connected),
			"pipeline_state": status.PipelineState,
			"last_stat_at":   status.LastStatAt.UTC().Format(time.RFC3339),
		})
		_, _ = w.Write(body)
	})
}

func connectedLabel(connected bool) string {
	if connected {
		return "ok"
	}
	return "disconnected"
}

// Tracker is a concurrency-safe Reporter a Coordinator can update as
// connection state and pipeline state change, without the HTTP handler
// needing to reach back into pipeline/coordinator locks directly.
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

func NewTracker() *Tracker { return &Tracker{} }

func (t *Tracker) SetConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Connected = connected
	t.status.LastStatAt = time.Now()
}

func (t *Tracker) SetPipelineState(state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.PipelineState = state
}

func (t *Tracker) HealthStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}
