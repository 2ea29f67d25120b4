package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/navikt/liveroom/internal/api"
	"github.com/navikt/liveroom/internal/gate"
	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/registry"
	"github.com/navikt/liveroom/internal/repository/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccessServer(t *testing.T, backend http.HandlerFunc) *http.ServeMux {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	mux := http.NewServeMux()
	api.SetupRoutes(mux, memory.NewRepository(), registry.NewClient(server.URL, time.Second), metrics.New(prometheus.NewRegistry()))
	return mux
}

func TestAccessHandler(t *testing.T) {
	mux := newAccessServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conferences/42/live-sessions/can-join", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail": "Could not validate credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"can_join": true, "session": {"id": 7, "session_title": "Keynote", "status": "ACTIVE"}}`))
	})

	t.Run("granted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conferences/42/access", nil)
		req.Header.Set("Authorization", "Bearer good")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp api.AccessResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.CanJoin)
		assert.Equal(t, 42, resp.ConferenceID)
		require.NotNil(t, resp.Session)
		assert.Equal(t, 7, resp.Session.ID)
	})

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/conferences/42/access", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
	})

	t.Run("rejected token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conferences/42/access", nil)
		req.Header.Set("Authorization", "Bearer expired")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid conference", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/conferences/abc/access", nil)
		req.Header.Set("Authorization", "Bearer good")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAccessHandlerBackendFailure(t *testing.T) {
	mux := newAccessServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/conferences/42/access", nil)
	req.Header.Set("Authorization", "Bearer good")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp api.AccessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.CanJoin)
	assert.Equal(t, gate.CheckFailedMessage, resp.Error)
}

func TestMetricsEndpoint(t *testing.T) {
	mux := newAccessServer(t, func(w http.ResponseWriter, r *http.Request) {})

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
