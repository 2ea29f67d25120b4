package api

import (
	"net/http"

	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/registry"
	"github.com/navikt/liveroom/internal/repository"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers the API routes on mux
func SetupRoutes(mux *http.ServeMux, repo repository.Repository, client *registry.Client, m *metrics.Metrics) {
	// Health check endpoints for Kubernetes
	mux.HandleFunc("GET /health/live", HealthLiveHandler)
	mux.HandleFunc("GET /health/ready", HealthReadyHandler(repo))

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("GET /api/conferences/{conferenceID}/access", NewAccessHandler(client, m))
}
