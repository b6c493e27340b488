package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/safelift-feed/internal/connection"
	"github.com/rickgao/safelift-feed/internal/version"
	"github.com/rickgao/safelift-feed/internal/writer"
)

// statsSource is satisfied by *connection.Manager.
type statsSource interface {
	Stats() connection.ManagerStats
}

// newHealthHandler serves /health, /debug/state and Prometheus metrics.
// archive may be nil.
func newHealthHandler(conn statsSource, archive *writer.EventWriter, gatherer prometheus.Gatherer, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := conn.Stats()

		health := struct {
			Status     string         `json:"status"`
			Version    version.Info   `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.Get(),
			Components: make(map[string]any),
		}

		connStatus := map[string]any{"state": stats.State}
		switch stats.State {
		case connection.Connected:
		case connection.Disconnected:
			if stats.ReconnectPending {
				health.Status = "degraded"
				connStatus["reconnect_attempts"] = stats.ReconnectAttempts
			} else {
				health.Status = "unhealthy"
			}
		default:
			health.Status = "degraded"
		}
		health.Components["websocket"] = connStatus

		if archive != nil {
			as := archive.Stats()
			health.Components["archive"] = map[string]any{
				"inserts": as.Inserts,
				"errors":  as.Errors,
				"queued":  as.Buffer.Count,
				"dropped": as.Buffer.Dropped,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conn.Stats())
	})

	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}
