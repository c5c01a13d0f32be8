// Package health exposes the operator-facing /healthz and /metrics
// surface served alongside the ingest pipeline.
package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueueDepther reports the current depth of the outbound delivery queue.
type QueueDepther interface {
	Depth() int
}

// Response is the /healthz body: {status, queue_depth, version}.
type Response struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
	Version    string `json:"version"`
}

// NewRouter builds the health/metrics HTTP surface. registry may be nil,
// in which case /metrics responds 503; that only happens when metrics
// collection is disabled.
func NewRouter(q QueueDepther, version string, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Response{
			Status:     "ok",
			QueueDepth: q.Depth(),
			Version:    version,
		})
	})

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	} else {
		r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
			http.Error(w, "metrics collection disabled", http.StatusServiceUnavailable)
		})
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
