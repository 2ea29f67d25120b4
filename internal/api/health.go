// Package api provides the JSON endpoints of liveroom: health probes,
// metrics and a bearer-authenticated access check
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// HealthResponse represents the response for health check endpoints
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthLiveHandler handles Kubernetes liveness probe requests
func HealthLiveHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "UP"})
}

// HealthReadyHandler reports ready once the credential store answers
func HealthReadyHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			log.Printf("Readiness check failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "DOWN", Error: "credential store unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: "UP"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
