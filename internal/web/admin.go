package web

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/service"
)

type panelKey struct {
	sessionID    string
	conferenceID int
}

// panelRegistry keeps one organizer panel per browser session and conference,
// so an in-flight create is seen by the next request
type panelRegistry struct {
	mu     sync.Mutex
	panels map[panelKey]*service.Panel
}

func newPanelRegistry() *panelRegistry {
	return &panelRegistry{panels: make(map[panelKey]*service.Panel)}
}

func (pr *panelRegistry) get(sid string, conferenceID int, create func() *service.Panel) *service.Panel {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	key := panelKey{sessionID: sid, conferenceID: conferenceID}
	if panel, ok := pr.panels[key]; ok {
		return panel
	}
	panel := create()
	pr.panels[key] = panel
	return panel
}

func (pr *panelRegistry) dropSession(sid string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	for key := range pr.panels {
		if key.sessionID == sid {
			delete(pr.panels, key)
		}
	}
}

// panelModel is rendered by the session panel page and partial
type panelModel struct {
	pageData
	ConferenceID int
	Sessions     []models.LiveSession
	Loaded       bool
	Creating     bool
	// Confirm is the session awaiting delete confirmation, if any
	Confirm *models.LiveSession
	Form    createForm
}

type createForm struct {
	Title string
	Time  string
}

// panelFor returns the caller's panel for the conference in the path
func (h *Handler) panelFor(w http.ResponseWriter, r *http.Request) (*service.Panel, bool) {
	conferenceID, ok := pathInt(r, "conferenceID")
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}

	session := sessionFromContext(r.Context())
	panel := h.panels.get(session.ID(), conferenceID, func() *service.Panel {
		return service.NewPanel(h.opts.Client.As(session), conferenceID, h.flashes.notifier(session.ID()), h.opts.Metrics)
	})
	return panel, true
}

// handlePanelPage lists a conference's sessions for its organizer
func (h *Handler) handlePanelPage(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.panelFor(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r.Context())
	defer cancel()
	if err := panel.Refresh(ctx); err != nil && h.handleUnauthorized(w, r, err) {
		return
	}

	h.renderPanel(w, r, panel, "panel.html", nil, createForm{})
}

// handlePanelCreate schedules a session from the create form
func (h *Handler) handlePanelCreate(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.panelFor(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	form := createForm{
		Title: strings.TrimSpace(r.PostForm.Get("session_title")),
		Time:  strings.TrimSpace(r.PostForm.Get("session_time")),
	}

	var sessionTime time.Time
	if form.Time != "" {
		parsed, err := models.ParseTimestamp(form.Time)
		if err != nil {
			log.Printf("Invalid session time for conference %d: %v", panel.ConferenceID(), err)
		} else {
			sessionTime = parsed
		}
	}

	ctx, cancel := h.callContext(r.Context())
	defer cancel()
	err := panel.Create(ctx, form.Title, sessionTime)
	switch {
	case err == nil:
		form = createForm{}
	case errors.Is(err, service.ErrCreateInFlight):
		log.Printf("Ignored duplicate create for conference %d", panel.ConferenceID())
	case h.handleUnauthorized(w, r, err):
		return
	}

	h.respondPanel(w, r, panel, nil, form)
}

// handlePanelStart moves a pending session to active
func (h *Handler) handlePanelStart(w http.ResponseWriter, r *http.Request) {
	h.panelMutation(w, r, func(panel *service.Panel, sessionID int, r *http.Request) error {
		ctx, cancel := h.callContext(r.Context())
		defer cancel()
		return panel.Start(ctx, sessionID)
	})
}

// handlePanelStop ends an active session
func (h *Handler) handlePanelStop(w http.ResponseWriter, r *http.Request) {
	h.panelMutation(w, r, func(panel *service.Panel, sessionID int, r *http.Request) error {
		ctx, cancel := h.callContext(r.Context())
		defer cancel()
		return panel.Stop(ctx, sessionID)
	})
}

// handlePanelDelete deletes a session, asking for confirmation first
func (h *Handler) handlePanelDelete(w http.ResponseWriter, r *http.Request) {
	panel, ok := h.panelFor(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathInt(r, "sessionID")
	if !ok {
		http.NotFound(w, r)
		return
	}

	ctx, cancel := h.callContext(r.Context())
	defer cancel()
	err := panel.Delete(ctx, sessionID, r.FormValue("confirm") == "true")
	if errors.Is(err, service.ErrConfirmationRequired) {
		confirm := findSession(panel.Sessions(), sessionID)
		if confirm == nil {
			confirm = &models.LiveSession{ID: sessionID, ConferenceID: panel.ConferenceID()}
		}
		if isHTMX(r) {
			h.renderPanel(w, r, panel, "session_panel", confirm, createForm{})
		} else {
			h.renderPanel(w, r, panel, "panel.html", confirm, createForm{})
		}
		return
	}
	if h.handleUnauthorized(w, r, err) {
		return
	}
	h.respondPanel(w, r, panel, nil, createForm{})
}

func (h *Handler) panelMutation(w http.ResponseWriter, r *http.Request, mutate func(*service.Panel, int, *http.Request) error) {
	panel, ok := h.panelFor(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathInt(r, "sessionID")
	if !ok {
		http.NotFound(w, r)
		return
	}

	if err := mutate(panel, sessionID, r); err != nil && h.handleUnauthorized(w, r, err) {
		return
	}
	h.respondPanel(w, r, panel, nil, createForm{})
}

// respondPanel answers a mutation: htmx gets the refreshed panel, plain
// form posts are redirected back to the page
func (h *Handler) respondPanel(w http.ResponseWriter, r *http.Request, panel *service.Panel, confirm *models.LiveSession, form createForm) {
	if isHTMX(r) {
		h.renderPanel(w, r, panel, "session_panel", confirm, form)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/organizer/conferences/%d/sessions", panel.ConferenceID()), http.StatusSeeOther)
}

func (h *Handler) renderPanel(w http.ResponseWriter, r *http.Request, panel *service.Panel, name string, confirm *models.LiveSession, form createForm) {
	data := panelModel{
		pageData:     h.newPageData(r, "Sessions live"),
		ConferenceID: panel.ConferenceID(),
		Sessions:     panel.Sessions(),
		Loaded:       panel.Loaded(),
		Creating:     panel.Creating(),
		Confirm:      confirm,
		Form:         form,
	}
	h.render(w, http.StatusOK, name, data)
}

func findSession(sessions []models.LiveSession, id int) *models.LiveSession {
	for i := range sessions {
		if sessions[i].ID == id {
			return &sessions[i]
		}
	}
	return nil
}

func (pr *panelRegistry) count() int {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return len(pr.panels)
}
