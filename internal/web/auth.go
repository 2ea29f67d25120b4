package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/registry"
	"github.com/navikt/liveroom/internal/repository"
	"github.com/navikt/liveroom/internal/utils"
)

// SessionCookieName is the cookie carrying the browser session id
const SessionCookieName = "liveroom_sid"

const loginFailedMessage = "Email ou mot de passe incorrect"

type contextKey int

const sessionContextKey contextKey = iota

// sessionFromContext returns the browser session attached by the middleware
func sessionFromContext(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(sessionContextKey).(*auth.Session)
	return session
}

// sessionIdleTimeout is how long an unused signed-in session stays cached
const sessionIdleTimeout = 30 * time.Minute

type cachedSession struct {
	session  *auth.Session
	lastSeen time.Time
}

// sessionStore keeps one auth.Session per signed-in browser session so that
// every view and panel of a browser shares the same identity and
// invalidation. Anonymous sessions are never cached.
type sessionStore struct {
	repo         repository.Repository
	onInvalidate auth.InvalidateCallback
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*cachedSession
}

func newSessionStore(repo repository.Repository, onInvalidate auth.InvalidateCallback) *sessionStore {
	return &sessionStore{
		repo:         repo,
		onInvalidate: onInvalidate,
		now:          time.Now,
		sessions:     make(map[string]*cachedSession),
	}
}

// get returns the session for sid. A cached session is checked against the
// repository on every call, so credential TTLs and logouts done by other
// replicas take effect.
func (s *sessionStore) get(ctx context.Context, sid string) (*auth.Session, error) {
	s.mu.Lock()
	entry, ok := s.sessions[sid]
	if ok {
		entry.lastSeen = s.now()
	}
	s.mu.Unlock()

	var session *auth.Session
	if ok {
		session = entry.session
		if err := session.Revalidate(ctx); err != nil {
			log.Printf("Error revalidating session %s: %v", sid, err)
		}
	} else {
		loaded, err := auth.LoadSession(ctx, sid, s.repo)
		if err != nil {
			return nil, err
		}
		session = s.remember(loaded)
	}

	if session.Expired(s.now()) {
		session.Invalidate(ctx, "token expired")
	}
	return session, nil
}

// remember caches a signed-in session and returns the cached instance
func (s *sessionStore) remember(session *auth.Session) *auth.Session {
	if !session.Authenticated() {
		return session
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, raced := s.sessions[session.ID()]; raced {
		existing.lastSeen = s.now()
		return existing.session
	}
	session.OnInvalidate(s.handleInvalidate)
	s.sessions[session.ID()] = &cachedSession{session: session, lastSeen: s.now()}
	return session
}

func (s *sessionStore) handleInvalidate(sid, reason string) {
	s.forget(sid)
	if s.onInvalidate != nil {
		s.onInvalidate(sid, reason)
	}
}

// forget drops the in-memory session for sid
func (s *sessionStore) forget(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sid)
}

// evictIdle drops sessions unused since idle ago, except those keep reports
// as still in use, and returns their ids
func (s *sessionStore) evictIdle(idle time.Duration, keep func(sid string) bool) []string {
	threshold := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for sid, entry := range s.sessions {
		if entry.lastSeen.Before(threshold) && (keep == nil || !keep(sid)) {
			delete(s.sessions, sid)
			evicted = append(evicted, sid)
		}
	}
	return evicted
}

func (s *sessionStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// withSession attaches the browser session to the request, issuing a
// session cookie on first visit
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := ""
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			sid = strings.TrimSpace(cookie.Value)
		}
		if sid == "" || len(sid) > 64 {
			sid = auth.NewSessionID()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    sid,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.opts.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		session, err := h.sessions.get(r.Context(), sid)
		if err != nil {
			log.Printf("Error loading session: %v", err)
			http.Error(w, "Session unavailable", http.StatusServiceUnavailable)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth sends anonymous users to the login page
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := sessionFromContext(r.Context())
		if session == nil || !session.Authenticated() {
			h.redirectToLogin(w, r)
			return
		}
		next(w, r)
	}
}

// redirectToLogin sends the user to the login page and back afterwards.
// htmx requests get an HX-Redirect header instead of a 303.
func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path
	if r.Method != http.MethodGet {
		target = pageForAction(r.URL.Path)
	}
	location := auth.LoginRedirect(target)

	if isHTMX(r) {
		w.Header().Set("HX-Redirect", location)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// pageForAction maps an action URL to the page it belongs to
func pageForAction(path string) string {
	for _, suffix := range []string{"/refresh", "/leave", "/rejoin", "/widget-events", "/start", "/stop", "/delete"} {
		if strings.HasSuffix(path, suffix) {
			path = strings.TrimSuffix(path, suffix)
			break
		}
	}
	// /organizer/conferences/{id}/sessions/{sid} -> the panel
	if i := strings.Index(path, "/sessions/"); i >= 0 {
		path = path[:i+len("/sessions")]
	}
	return path
}

// handleUnauthorized reports whether err was a rejected token and, if so,
// redirects to the login page
func (h *Handler) handleUnauthorized(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, registry.ErrUnauthorized) {
		return false
	}
	h.redirectToLogin(w, r)
	return true
}

// handleLoginPage renders the login form
func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	redirect := auth.SafeRedirectTarget(r.URL.Query().Get("redirect"))
	session := sessionFromContext(r.Context())
	if session != nil && session.Authenticated() && r.URL.Query().Get("redirect") != "" {
		http.Redirect(w, r, redirect, http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, "", redirect)
}

// handleLogin exchanges the submitted credentials for a token
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	redirect := auth.SafeRedirectTarget(r.PostForm.Get("redirect"))

	if email == "" || password == "" {
		h.renderLogin(w, r, http.StatusBadRequest, "Veuillez remplir tous les champs", redirect)
		return
	}

	ctx, cancel := h.callContext(r.Context())
	defer cancel()

	resp, err := h.opts.Client.Login(ctx, email, password)
	if err != nil {
		log.Printf("Login failed for %s: %v", utils.SanitizeLogString(email), err)
		message := registry.Detail(err)
		if message == "" {
			message = loginFailedMessage
		}
		h.renderLogin(w, r, http.StatusUnauthorized, message, redirect)
		return
	}

	session := sessionFromContext(r.Context())
	if err := session.SignIn(ctx, resp); err != nil {
		log.Printf("Error signing in session: %v", err)
		h.renderLogin(w, r, http.StatusInternalServerError, loginFailedMessage, redirect)
		return
	}

	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// handleLogout clears the stored credentials
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	if session != nil {
		session.Invalidate(r.Context(), "logout")
		h.sessions.forget(session.ID())
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, status int, message, redirect string) {
	data := struct {
		pageData
		Error    string
		Redirect string
	}{
		pageData: h.newPageData(r, "Connexion"),
		Error:    message,
		Redirect: redirect,
	}
	h.render(w, status, "login.html", data)
}
