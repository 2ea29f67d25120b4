package registry_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	mu          sync.Mutex
	token       string
	invalidated []string
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) Invalidate(_ context.Context, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.invalidated = append(f.invalidated, reason)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*registry.Client, *fakeTokens) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tokens := &fakeTokens{token: "secret-token"}
	return registry.NewClient(server.URL+"/", 5*time.Second).As(tokens), tokens
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestCanJoin(t *testing.T) {
	t.Run("active session", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/conferences/42/live-sessions/can-join", r.URL.Path)
			assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
			assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
			writeJSON(w, http.StatusOK, map[string]any{
				"can_join": true,
				"session": map[string]any{
					"id":            7,
					"session_title": "Keynote",
					"started_at":    "2024-05-01T09:00:00",
				},
			})
		})

		resp, err := client.CanJoin(context.Background(), 42)
		require.NoError(t, err)
		assert.True(t, resp.CanJoin)
		require.NotNil(t, resp.Session)
		assert.Equal(t, 7, resp.Session.ID)
		assert.Equal(t, 42, resp.Session.ConferenceID)
		assert.Equal(t, "Keynote", resp.Session.Title)
		require.NotNil(t, resp.Session.StartedAt)
		assert.Equal(t, 9, resp.Session.StartedAt.Hour())
	})

	t.Run("no active session", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"can_join": false,
				"reason":   "Aucune session live active",
			})
		})

		resp, err := client.CanJoin(context.Background(), 42)
		require.NoError(t, err)
		assert.False(t, resp.CanJoin)
		assert.Equal(t, "Aucune session live active", resp.Reason)
		assert.Nil(t, resp.Session)
	})
}

func TestUnauthorizedInvalidatesTokens(t *testing.T) {
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Could not validate credentials"})
	})

	_, err := client.ListSessions(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, registry.ErrUnauthorized))
	assert.Equal(t, "Could not validate credentials", registry.Detail(err))

	assert.Empty(t, tokens.Token())
	require.Len(t, tokens.invalidated, 1)
	assert.Contains(t, tokens.invalidated[0], "401")
}

func TestAnonymousClientSendsNoAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"sessions": []any{}})
	}))
	defer server.Close()

	sessions, err := registry.NewClient(server.URL, time.Second).ListPublicSessions(context.Background(), 3)
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestListSessions(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conferences/42/live-sessions", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"sessions": []map[string]any{
				{"id": 1, "session_title": "Ouverture", "session_time": "2024-05-01T09:00:00", "status": "ENDED"},
				{"id": 2, "session_title": "Atelier", "session_time": "2024-05-01T14:30:00", "status": "PENDING"},
			},
		})
	})

	sessions, err := client.ListSessions(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, models.SessionStatusEnded, sessions[0].Status)
	assert.Equal(t, models.SessionStatusPending, sessions[1].Status)
	assert.Equal(t, 42, sessions[1].ConferenceID)
	assert.Equal(t, 14, sessions[1].SessionTime.Hour())
}

func TestCreateSession(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/conferences/42/live-sessions", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<16))
		assert.Equal(t, "Keynote", r.FormValue("session_title"))
		assert.Equal(t, "2024-05-01T09:30:00", r.FormValue("session_time"))
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 11, "session_title": "Keynote", "session_time": "2024-05-01T09:30:00", "status": "PENDING",
		})
	})

	when := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	session, err := client.CreateSession(context.Background(), 42, "Keynote", when)
	require.NoError(t, err)
	assert.Equal(t, 11, session.ID)
	assert.Equal(t, models.SessionStatusPending, session.Status)
}

func TestStartAndStopSession(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		status := "ACTIVE"
		if r.URL.Path == "/conferences/42/live-sessions/7/stop" {
			status = "ENDED"
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": 7, "session_title": "Keynote", "status": status})
	})

	started, err := client.StartSession(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, started.Status)

	stopped, err := client.StopSession(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, stopped.Status)

	assert.Equal(t, []string{
		"POST /conferences/42/live-sessions/7/start",
		"POST /conferences/42/live-sessions/7/stop",
	}, paths)
}

func TestStartSessionConflict(t *testing.T) {
	client, tokens := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "Une session est déjà active"})
	})

	_, err := client.StartSession(context.Background(), 42, 8)
	require.Error(t, err)

	var apiErr *registry.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Une session est déjà active", apiErr.Detail)
	assert.False(t, errors.Is(err, registry.ErrUnauthorized))
	assert.Empty(t, tokens.invalidated)
}

func TestDeleteSession(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/conferences/42/live-sessions/7", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteSession(context.Background(), 42, 7))
}

func TestLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "orga@example.org", r.PostForm.Get("email"))
		assert.Equal(t, "hunter2", r.PostForm.Get("password"))
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "abc.def.ghi",
			"token_type":   "bearer",
			"user":         map[string]any{"id": 5, "email": "orga@example.org", "fullname": "Orga"},
		})
	}))
	defer server.Close()

	resp, err := registry.NewClient(server.URL, time.Second).Login(context.Background(), "orga@example.org", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", resp.AccessToken)
	assert.Equal(t, 5, resp.User.ID)
}

func TestValidationErrorDetail(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{
				{"loc": []string{"body", "session_time"}, "msg": "field required"},
			},
		})
	})

	_, err := client.CreateSession(context.Background(), 42, "x", time.Now())
	require.Error(t, err)
	assert.Equal(t, "field required", registry.Detail(err))
}

func TestNonJSONErrorBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	err := client.DeleteSession(context.Background(), 42, 7)
	require.Error(t, err)
	assert.Empty(t, registry.Detail(err))
	assert.Contains(t, err.Error(), "502")
}

func TestSaveSubscription(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/save-subscription", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://push.example/abc", body["endpoint"])
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok"})
	})

	err := client.SaveSubscription(context.Background(), map[string]any{"endpoint": "https://push.example/abc"})
	require.NoError(t, err)
}

func TestClientRecordsBackendLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"active_session": nil})
	})
	client.SetMetrics(m)

	session, err := client.ActiveSession(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, 1, testutil.CollectAndCount(m.BackendRequests))
}
