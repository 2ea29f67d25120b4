package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/repository/memory"
	"github.com/navikt/liveroom/internal/repository/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("123456789"))
	require.NoError(t, err)
	return signed
}

func TestSessionSignInAndLoad(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()

	session := auth.NewSession("sid-1", repo)
	assert.False(t, session.Authenticated())

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	login := &models.LoginResponse{
		AccessToken: signedToken(t, "12", exp),
		TokenType:   "bearer",
		User:        models.UserProfile{ID: 12, Email: "jane@example.com", Fullname: "Jane Doe"},
	}
	require.NoError(t, session.SignIn(ctx, login))

	assert.True(t, session.Authenticated())
	profile, ok := session.Profile()
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", profile.Fullname)

	// A second request for the same browser session sees the stored credentials
	restored, err := auth.LoadSession(ctx, "sid-1", repo)
	require.NoError(t, err)
	assert.Equal(t, login.AccessToken, restored.Token())

	stored, err := repo.GetCredentials(ctx, "sid-1")
	require.NoError(t, err)
	assert.True(t, exp.Equal(stored.ExpiresAt))
}

func TestSessionSignInWithOpaqueToken(t *testing.T) {
	repo := memory.NewRepository()
	session := auth.NewSession("sid", repo)

	err := session.SignIn(context.Background(), &models.LoginResponse{AccessToken: "opaque"})
	require.NoError(t, err)

	stored, err := repo.GetCredentials(context.Background(), "sid")
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.IsZero())
}

func TestSessionSignInRejectsEmptyToken(t *testing.T) {
	session := auth.NewSession("sid", memory.NewRepository())
	assert.Error(t, session.SignIn(context.Background(), &models.LoginResponse{}))
	assert.False(t, session.Authenticated())
}

func TestLoadAnonymousSession(t *testing.T) {
	session, err := auth.LoadSession(context.Background(), "unknown", memory.NewRepository())
	require.NoError(t, err)
	assert.False(t, session.Authenticated())
	_, ok := session.Profile()
	assert.False(t, ok)
}

func TestSessionInvalidate(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()

	session := auth.NewSession("sid-1", repo)
	require.NoError(t, session.SignIn(ctx, &models.LoginResponse{AccessToken: "opaque-token"}))

	var invalidated []string
	session.OnInvalidate(func(sessionID, reason string) {
		invalidated = append(invalidated, sessionID+":"+reason)
	})

	session.Invalidate(ctx, "401 from backend")

	assert.False(t, session.Authenticated())
	assert.Equal(t, []string{"sid-1:401 from backend"}, invalidated)

	_, err := repo.GetCredentials(ctx, "sid-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	// Invalidating again is harmless
	session.Invalidate(ctx, "again")
	assert.Len(t, invalidated, 2)
}

func TestLoginRedirect(t *testing.T) {
	assert.Equal(t, "/login?redirect=%2Flive%2F42", auth.LoginRedirect("/live/42"))
	assert.Equal(t, "/login", auth.LoginRedirect(""))
	assert.Equal(t, "/login", auth.LoginRedirect("/login"))
}

func TestSafeRedirectTarget(t *testing.T) {
	assert.Equal(t, "/live/42", auth.SafeRedirectTarget("/live/42"))
	assert.Equal(t, "/", auth.SafeRedirectTarget(""))
	assert.Equal(t, "/", auth.SafeRedirectTarget("https://evil.example.com"))
	assert.Equal(t, "/", auth.SafeRedirectTarget("//evil.example.com"))
	assert.Equal(t, "/", auth.SafeRedirectTarget("/\\evil.example.com"))
}

func TestParseTokenClaims(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	claims, err := auth.ParseTokenClaims(signedToken(t, "7", exp))
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.True(t, exp.Equal(claims.ExpiresAt))

	_, err = auth.ParseTokenClaims("not-a-jwt")
	assert.Error(t, err)
}

func TestSessionExpired(t *testing.T) {
	repo := memory.NewRepository()
	session := auth.NewSession("sid-exp", repo)
	now := time.Now()

	assert.False(t, session.Expired(now), "an anonymous session has nothing to expire")

	login := &models.LoginResponse{AccessToken: signedToken(t, "3", now.Add(time.Minute))}
	require.NoError(t, session.SignIn(context.Background(), login))

	assert.False(t, session.Expired(now))
	assert.True(t, session.Expired(now.Add(2*time.Minute)))
}

func TestRevalidateAfterCredentialTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	repo, err := redis.NewRepository(config.RedisConfig{
		Enabled:       true,
		Host:          mr.Host(),
		Port:          mr.Port(),
		KeyPrefix:     "test:",
		CredentialTTL: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	ctx := context.Background()

	session := auth.NewSession("sid-ttl", repo)
	var reasons []string
	session.OnInvalidate(func(_ string, reason string) { reasons = append(reasons, reason) })
	require.NoError(t, session.SignIn(ctx, &models.LoginResponse{AccessToken: "opaque-token"}))

	require.NoError(t, session.Revalidate(ctx))
	assert.True(t, session.Authenticated())
	assert.Empty(t, reasons)

	mr.FastForward(2 * time.Minute)

	require.NoError(t, session.Revalidate(ctx))
	assert.False(t, session.Authenticated())
	assert.Equal(t, "", session.Token())
	assert.Len(t, reasons, 1)
}

func TestRevalidateSeesRemovalElsewhere(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()

	session := auth.NewSession("sid-2", repo)
	require.NoError(t, session.SignIn(ctx, &models.LoginResponse{AccessToken: "opaque-token"}))

	// another replica logs the browser out
	require.NoError(t, repo.DeleteCredentials(ctx, "sid-2"))

	require.NoError(t, session.Revalidate(ctx))
	assert.False(t, session.Authenticated())
}

func TestRevalidateAdoptsStoredCredentials(t *testing.T) {
	repo := memory.NewRepository()
	ctx := context.Background()

	session := auth.NewSession("sid-3", repo)
	require.NoError(t, repo.SaveCredentials(ctx, "sid-3", &models.Credentials{
		Token: "signed-in-elsewhere",
		User:  models.UserProfile{ID: 4, Email: "grace@example.com"},
	}))

	require.NoError(t, session.Revalidate(ctx))
	assert.Equal(t, "signed-in-elsewhere", session.Token())
	profile, ok := session.Profile()
	require.True(t, ok)
	assert.Equal(t, 4, profile.ID)
}
