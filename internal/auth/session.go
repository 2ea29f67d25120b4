// Package auth holds the signed-in identity that every backend call is made
// with. A Session is injected into the components that need it instead of
// being read from shared storage, and is the single place credentials are
// invalidated when the backend answers 401.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/repository"
	"github.com/navikt/liveroom/internal/utils"
)

// ErrNotAuthenticated is returned when an operation needs a signed-in user
var ErrNotAuthenticated = errors.New("not authenticated")

// InvalidateCallback is called after a session lost its credentials
type InvalidateCallback func(sessionID string, reason string)

// Session is the identity of one browser session (or one CLI invocation)
type Session struct {
	id   string
	repo repository.Repository

	mu        sync.RWMutex
	creds     *models.Credentials
	callbacks []InvalidateCallback
}

// NewSessionID returns a fresh opaque browser session identifier
func NewSessionID() string {
	return uuid.NewString()
}

// NewSession creates an anonymous session backed by repo
func NewSession(id string, repo repository.Repository) *Session {
	return &Session{id: id, repo: repo}
}

// LoadSession restores a session from repo. A session without stored
// credentials is returned anonymous, not as an error.
func LoadSession(ctx context.Context, id string, repo repository.Repository) (*Session, error) {
	s := NewSession(id, repo)

	creds, err := repo.GetCredentials(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	s.creds = creds
	return s, nil
}

// ID returns the browser session identifier
func (s *Session) ID() string {
	return s.id
}

// Token returns the bearer token, or "" for an anonymous session
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.creds == nil {
		return ""
	}
	return s.creds.Token
}

// Profile returns the cached user profile
func (s *Session) Profile() (models.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.creds == nil {
		return models.UserProfile{}, false
	}
	return s.creds.User, true
}

// Authenticated reports whether the session holds a token
func (s *Session) Authenticated() bool {
	return s.Token() != ""
}

// Expired reports whether the held token is past its expiry
func (s *Session) Expired(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds != nil && s.creds.Expired(now)
}

// SignIn stores the credentials returned by a successful login
func (s *Session) SignIn(ctx context.Context, login *models.LoginResponse) error {
	token := strings.TrimSpace(login.AccessToken)
	if token == "" {
		return errors.New("login response carries no access token")
	}

	creds := &models.Credentials{
		Token: token,
		User:  login.User,
	}

	// Expiry is advisory; an opaque token simply never expires client-side
	if claims, err := ParseTokenClaims(token); err == nil {
		creds.ExpiresAt = claims.ExpiresAt
	} else {
		log.Printf("Could not read token claims for session %s: %v", s.id, err)
	}

	if err := s.repo.SaveCredentials(ctx, s.id, creds); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()

	log.Printf("Session %s signed in as user %d", s.id, creds.User.ID)
	return nil
}

// Revalidate reloads the credentials from the repository. A session whose
// credentials expired or were removed there is invalidated.
func (s *Session) Revalidate(ctx context.Context) error {
	token := s.Token()

	creds, err := s.repo.GetCredentials(ctx, s.id)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to load credentials: %w", err)
		}
		// Skip when a concurrent SignIn stored a new token after the lookup
		if token != "" && s.Token() == token {
			s.Invalidate(ctx, "credentials no longer stored")
		}
		return nil
	}

	s.mu.Lock()
	s.creds = creds
	s.mu.Unlock()
	return nil
}

// OnInvalidate registers a callback run after the session is invalidated
func (s *Session) OnInvalidate(callback InvalidateCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, callback)
}

// Invalidate clears the stored credentials and notifies observers.
// It is safe to call on an already anonymous session.
func (s *Session) Invalidate(ctx context.Context, reason string) {
	s.mu.Lock()
	hadCreds := s.creds != nil
	s.creds = nil
	callbacks := append([]InvalidateCallback(nil), s.callbacks...)
	s.mu.Unlock()

	if err := s.repo.DeleteCredentials(ctx, s.id); err != nil && !errors.Is(err, models.ErrNotFound) {
		log.Printf("Error deleting credentials for session %s: %v", s.id, err)
	}

	if hadCreds {
		log.Printf("Session %s invalidated: %s", s.id, utils.SanitizeLogString(reason))
	}

	for _, callback := range callbacks {
		callback(s.id, reason)
	}
}

// LoginRedirect returns the login URL that brings the user back to path
func LoginRedirect(path string) string {
	if path == "" || path == "/login" {
		return "/login"
	}
	return "/login?redirect=" + url.QueryEscape(path)
}

// SafeRedirectTarget returns target when it is a local absolute path,
// otherwise "/". It keeps the post-login redirect from leaving the site.
func SafeRedirectTarget(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return "/"
	}
	return target
}
