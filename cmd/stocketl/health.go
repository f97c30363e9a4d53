package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rickgao/stock-data/internal/report"
)

// pinger is the part of store.Gateway the health check uses.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthState tracks scheduled runs for the health endpoint.
type healthState struct {
	mu      sync.Mutex
	running bool
	runs    int
	last    *report.Report
}

func (h *healthState) started() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()
}

func (h *healthState) finished(rep *report.Report) {
	h.mu.Lock()
	h.running = false
	h.runs++
	if rep != nil {
		h.last = rep
	}
	h.mu.Unlock()
}

type runSummary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Rows       int       `json:"rows"`
}

// newHealthHandler serves /health: storage reachability plus the last run.
func newHealthHandler(db pinger, state *healthState) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["storage"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["storage"] = "connected"
		}

		state.mu.Lock()
		runs := map[string]any{
			"running":   state.running,
			"completed": state.runs,
		}
		if last := state.last; last != nil {
			runs["last"] = runSummary{
				RunID:      last.RunID.String(),
				StartedAt:  last.StartedAt,
				FinishedAt: last.FinishedAt,
				Succeeded:  last.Succeeded(),
				Failed:     last.Failed(),
				Rows:       last.RowsWritten(),
			}
			if last.Failed() > 0 && health.Status == "healthy" {
				health.Status = "degraded"
			}
		}
		state.mu.Unlock()
		health.Components["runs"] = runs

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
