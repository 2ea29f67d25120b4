package web

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/navikt/liveroom/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) sessionID(t *testing.T, client *http.Client) string {
	t.Helper()
	u, err := url.Parse(e.server.URL)
	require.NoError(t, err)
	for _, cookie := range client.Jar.Cookies(u) {
		if cookie.Name == SessionCookieName {
			return cookie.Value
		}
	}
	t.Fatal("browser has no session cookie")
	return ""
}

func TestAnonymousVisitsAreNotCached(t *testing.T) {
	env := newTestEnv(t, "")

	for i := 0; i < 200; i++ {
		resp, _ := env.get(t, env.browser(t), "/login")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp, _ = env.get(t, env.browser(t), "/conferences/42/schedule")
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.Equal(t, 0, env.handler.sessions.size())

	client := env.signedIn(t)
	resp, _ := env.get(t, client, "/organizer/conferences/42/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.handler.sessions.size())
}

func TestCredentialsRemovedFromRepositorySignOut(t *testing.T) {
	env := newTestEnv(t, "")
	client := env.signedIn(t)

	resp, _ := env.get(t, client, "/organizer/conferences/42/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, env.handler.panels.count())

	// TTL expiry or a logout handled by another replica
	require.NoError(t, env.repo.DeleteCredentials(context.Background(), env.sessionID(t, client)))

	resp, _ = env.get(t, client, "/organizer/conferences/42/sessions")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?redirect=%2Forganizer%2Fconferences%2F42%2Fsessions", resp.Header.Get("Location"))
	assert.Equal(t, 0, env.handler.sessions.size())
	assert.Equal(t, 0, env.handler.panels.count())
}

func TestEvictIdleSessionsKeepsLiveViews(t *testing.T) {
	env := newTestEnv(t, "")
	env.backend.addSession(42, models.LiveSession{ID: 7, Title: "Keynote", Status: models.SessionStatusActive})

	organizer := env.signedIn(t)
	resp, _ := env.get(t, organizer, "/organizer/conferences/42/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	viewer := env.signedIn(t)
	_, body := env.get(t, viewer, "/live/42")
	viewID(t, body)

	require.Equal(t, 2, env.handler.sessions.size())

	// a negative idle time makes every entry idle
	env.handler.evictIdleSessions(-time.Minute)

	assert.Equal(t, 1, env.handler.sessions.size())
	assert.Equal(t, 0, env.handler.panels.count())

	// an evicted session is reloaded from the repository on its next request
	resp, _ = env.get(t, organizer, "/organizer/conferences/42/sessions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, env.handler.sessions.size())
}
