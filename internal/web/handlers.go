// Package web serves the live-session pages: the live room, the organizer's
// session panel, the public schedule and login. Pages are server-rendered
// and kept current over server-sent events.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/push"
	"github.com/navikt/liveroom/internal/registry"
	"github.com/navikt/liveroom/internal/repository"
	"github.com/navikt/liveroom/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Options holds the dependencies of the web layer
type Options struct {
	Client       *registry.Client
	Repo         repository.Repository
	Jitsi        config.JitsiConfig
	Push         *push.Service
	Metrics      *metrics.Metrics
	CookieSecure bool
	// CallTimeout bounds backend calls not tied to a request
	CallTimeout time.Duration
}

// Handler manages web UI requests
type Handler struct {
	opts       Options
	templates  *template.Template
	sseManager *SSEManager
	sessions   *sessionStore
	flashes    *flashStore
	views      *viewRegistry
	panels     *panelRegistry
	schedule   *service.Schedule

	done      chan struct{}
	closeOnce sync.Once
}

// NewHandler creates a new web UI handler
func NewHandler(opts Options) (*Handler, error) {
	if opts.Client == nil || opts.Repo == nil {
		return nil, fmt.Errorf("web handler needs a backend client and a repository")
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Push == nil {
		opts.Push, _ = push.NewService("")
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"formatTime":     formatTime,
		"formatDateTime": formatDateTime,
		"statusClass":    statusClass,
		"statusText":     statusText,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	h := &Handler{
		opts:       opts,
		templates:  tmpl,
		sseManager: NewSSEManager(),
		flashes:    newFlashStore(),
		views:      newViewRegistry(),
		panels:     newPanelRegistry(),
		schedule:   service.NewSchedule(opts.Client),
		done:       make(chan struct{}),
	}
	h.sessions = newSessionStore(opts.Repo, h.onSessionInvalidated)
	go h.cleanupIdleSessions(time.Minute)
	return h, nil
}

// SetupRoutes registers web UI routes on the given mux
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	page := func(fn http.HandlerFunc) http.Handler {
		return h.withSession(fn)
	}
	protected := func(fn http.HandlerFunc) http.Handler {
		return h.withSession(h.requireAuth(fn))
	}

	mux.Handle("GET /events", page(h.handleEvents))

	mux.Handle("GET /login", page(h.handleLoginPage))
	mux.Handle("POST /login", page(h.handleLogin))
	mux.Handle("POST /logout", page(h.handleLogout))

	mux.Handle("GET /live/{conferenceID}", protected(h.handleLivePage))
	mux.Handle("GET /live/{conferenceID}/partial", protected(h.handleLivePartial))
	mux.Handle("POST /live/{conferenceID}/refresh", protected(h.handleLiveRefresh))
	mux.Handle("POST /live/{conferenceID}/leave", protected(h.handleLiveLeave))
	mux.Handle("POST /live/{conferenceID}/rejoin", protected(h.handleLiveRejoin))
	mux.Handle("POST /live/{conferenceID}/widget-events", protected(h.handleWidgetEvent))

	mux.Handle("GET /organizer/conferences/{conferenceID}/sessions", protected(h.handlePanelPage))
	mux.Handle("POST /organizer/conferences/{conferenceID}/sessions", protected(h.handlePanelCreate))
	mux.Handle("POST /organizer/conferences/{conferenceID}/sessions/{sessionID}/start", protected(h.handlePanelStart))
	mux.Handle("POST /organizer/conferences/{conferenceID}/sessions/{sessionID}/stop", protected(h.handlePanelStop))
	mux.Handle("POST /organizer/conferences/{conferenceID}/sessions/{sessionID}/delete", protected(h.handlePanelDelete))

	mux.Handle("GET /conferences/{conferenceID}/schedule", page(h.handleSchedule))

	mux.Handle("GET /push/public-key", page(h.handlePushKey))
	mux.Handle("POST /push/subscription", protected(h.handlePushSubscription))

	mux.Handle("GET /{$}", page(h.handleIndex))
}

// pageData is embedded in every page's view model
type pageData struct {
	Title       string
	User        *models.UserProfile
	Flashes     []models.Notification
	CurrentYear int
}

func (h *Handler) newPageData(r *http.Request, title string) pageData {
	data := pageData{Title: title, CurrentYear: time.Now().Year()}
	if session := sessionFromContext(r.Context()); session != nil {
		if profile, ok := session.Profile(); ok {
			data.User = &profile
		}
		data.Flashes = h.flashes.pop(session.ID())
	}
	return data
}

// render executes a template, buffering errors before headers are sent
func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

// handleIndex points to the login page or greets the signed-in user
func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "index.html", h.newPageData(r, "liveroom"))
}

// handleEvents serves a view's event stream to the browser that owns it
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	session := sessionFromContext(r.Context())
	lv := h.views.get(r.URL.Query().Get("stream"))
	if lv == nil || session == nil || lv.sessionID != session.ID() {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}
	h.sseManager.ServeHTTP(w, r)
}

// onSessionInvalidated runs when a browser session loses its credentials:
// every view of that browser is told to go to the login page and torn down
func (h *Handler) onSessionInvalidated(sid, reason string) {
	for _, lv := range h.views.forSession(sid) {
		location := auth.LoginRedirect(fmt.Sprintf("/live/%d", lv.conferenceID))
		payload := []byte(fmt.Sprintf("{%q:%q}", "location", location))
		if err := h.sseManager.Publish(lv.id, "unauthorized", payload); err != nil {
			log.Printf("Error notifying view %s of invalidation: %v", lv.id, err)
		}
		h.closeView(lv.id)
	}
	h.panels.dropSession(sid)
}

// callContext bounds a backend call made on behalf of a request
func (h *Handler) callContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, h.opts.CallTimeout)
}

// cleanupIdleSessions periodically drops signed-in sessions nobody used for a while
func (h *Handler) cleanupIdleSessions(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.evictIdleSessions(sessionIdleTimeout)
		}
	}
}

// evictIdleSessions forgets idle sessions along with their panels and
// queued flashes. Sessions with a mounted live view are kept.
func (h *Handler) evictIdleSessions(idle time.Duration) {
	evicted := h.sessions.evictIdle(idle, func(sid string) bool {
		return len(h.views.forSession(sid)) > 0
	})
	for _, sid := range evicted {
		h.panels.dropSession(sid)
		h.flashes.pop(sid)
	}
	if len(evicted) > 0 {
		log.Printf("Evicted %d idle sessions", len(evicted))
	}
}

// Shutdown tears down every mounted view and closes SSE connections
func (h *Handler) Shutdown() {
	h.closeOnce.Do(func() { close(h.done) })
	log.Printf("Closing %d live views", h.views.count())
	h.sseManager.Shutdown()
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func pathInt(r *http.Request, name string) (int, bool) {
	value, err := strconv.Atoi(r.PathValue(name))
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// formatDateTime renders "01 mai 2024 à 09:30"
func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%02d %s %d à %02d:%02d", t.Day(), frenchMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// formatTime is a template helper accepting optional timestamps
func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatDateTime(*t)
}

func statusClass(status models.SessionStatus) string {
	switch status {
	case models.SessionStatusPending:
		return "badge-pending"
	case models.SessionStatusActive:
		return "badge-active"
	case models.SessionStatusEnded:
		return "badge-ended"
	default:
		return "badge-unknown"
	}
}

func statusText(status models.SessionStatus) string {
	return status.Label()
}
