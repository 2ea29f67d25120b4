package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/navikt/liveroom/internal/gate"
	"github.com/navikt/liveroom/internal/room"
	"github.com/navikt/liveroom/internal/room/jitsi"
	"github.com/navikt/liveroom/internal/utils"
)

// liveView is one open live room page
type liveView struct {
	id           string
	sessionID    string
	conferenceID int
	view         *room.View
	provider     *jitsi.Provider
}

type viewRegistry struct {
	mu    sync.RWMutex
	views map[string]*liveView
}

func newViewRegistry() *viewRegistry {
	return &viewRegistry{views: make(map[string]*liveView)}
}

func (vr *viewRegistry) add(lv *liveView) {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	vr.views[lv.id] = lv
}

func (vr *viewRegistry) get(id string) *liveView {
	vr.mu.RLock()
	defer vr.mu.RUnlock()
	return vr.views[id]
}

func (vr *viewRegistry) remove(id string) *liveView {
	vr.mu.Lock()
	defer vr.mu.Unlock()
	lv := vr.views[id]
	delete(vr.views, id)
	return lv
}

func (vr *viewRegistry) forSession(sid string) []*liveView {
	vr.mu.RLock()
	defer vr.mu.RUnlock()
	var views []*liveView
	for _, lv := range vr.views {
		if lv.sessionID == sid {
			views = append(views, lv)
		}
	}
	return views
}

func (vr *viewRegistry) count() int {
	vr.mu.RLock()
	defer vr.mu.RUnlock()
	return len(vr.views)
}

// liveModel is rendered by the live page and its room status partial
type liveModel struct {
	ViewID string
	State  room.ViewState
}

// handleLivePage opens a new view of a conference's live room. The room
// itself is only created once the page attaches to its event stream.
func (h *Handler) handleLivePage(w http.ResponseWriter, r *http.Request) {
	conferenceID, ok := pathInt(r, "conferenceID")
	if !ok {
		http.NotFound(w, r)
		return
	}

	session := sessionFromContext(r.Context())
	profile, _ := session.Profile()
	client := h.opts.Client.As(session)

	lv := &liveView{
		id:           uuid.NewString(),
		sessionID:    session.ID(),
		conferenceID: conferenceID,
	}
	lv.provider = jitsi.NewProvider(h.opts.Jitsi, h.sseManager, lv.id)
	tracker := gate.NewTracker(gate.New(client, h.opts.Metrics), conferenceID)
	controller := room.NewController(lv.provider, room.Options{
		RoomPrefix: h.opts.Jitsi.RoomPrefix,
		User:       profile,
		Metrics:    h.opts.Metrics,
	})
	lv.view = room.NewView(tracker, controller)
	lv.view.OnChange(func(state room.ViewState) {
		h.publishState(lv.id, state)
	})

	h.views.add(lv)
	h.sseManager.OpenStream(lv.id, StreamHooks{
		OnAttach: func(string) { h.mountView(lv) },
		OnDetach: func(string) { h.unmountView(lv.id) },
	})

	ctx, cancel := h.callContext(r.Context())
	defer cancel()
	lv.view.Check(ctx)
	if !session.Authenticated() {
		// The check was rejected and the view already closed
		h.redirectToLogin(w, r)
		return
	}

	data := struct {
		pageData
		liveModel
	}{
		pageData:  h.newPageData(r, fmt.Sprintf("Conférence %d", conferenceID)),
		liveModel: liveModel{ViewID: lv.id, State: lv.view.State()},
	}
	h.render(w, http.StatusOK, "live.html", data)
}

// mountView runs once the page is listening for widget commands
func (h *Handler) mountView(lv *liveView) {
	ctx, cancel := context.WithTimeout(context.Background(), h.opts.CallTimeout)
	defer cancel()
	if err := lv.view.Mount(ctx); err != nil && !errors.Is(err, room.ErrUnmounted) {
		log.Printf("Error mounting room for conference %d: %v", lv.conferenceID, err)
	}
}

// unmountView tears down a view whose page went away
func (h *Handler) unmountView(id string) {
	if lv := h.views.remove(id); lv != nil {
		lv.view.Unmount()
		log.Printf("Live view %s for conference %d unmounted", id, lv.conferenceID)
	}
}

// closeView tears down a view and disconnects its page
func (h *Handler) closeView(id string) {
	h.unmountView(id)
	h.sseManager.CloseStream(id)
}

// publishState pushes the rendered room status to the page
func (h *Handler) publishState(id string, state room.ViewState) {
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "room_status", liveModel{ViewID: id, State: state}); err != nil {
		log.Printf("Error rendering room status: %v", err)
		return
	}
	if err := h.sseManager.Publish(id, "state", buf.Bytes()); err != nil && !errors.Is(err, ErrStreamNotFound) {
		log.Printf("Error publishing room status on %s: %v", id, err)
	}
}

// viewForRequest finds the caller's view named by the "view" parameter
func (h *Handler) viewForRequest(w http.ResponseWriter, r *http.Request) (*liveView, bool) {
	conferenceID, ok := pathInt(r, "conferenceID")
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}

	lv := h.views.get(r.FormValue("view"))
	session := sessionFromContext(r.Context())
	if lv == nil || lv.conferenceID != conferenceID || lv.sessionID != session.ID() {
		if isHTMX(r) {
			// The view expired; reload the whole page for a fresh one
			w.Header().Set("HX-Redirect", fmt.Sprintf("/live/%d", conferenceID))
			w.WriteHeader(http.StatusNoContent)
			return nil, false
		}
		http.Redirect(w, r, fmt.Sprintf("/live/%d", conferenceID), http.StatusSeeOther)
		return nil, false
	}
	return lv, true
}

func (h *Handler) renderRoomStatus(w http.ResponseWriter, r *http.Request, lv *liveView) {
	if !isHTMX(r) {
		http.Redirect(w, r, fmt.Sprintf("/live/%d", lv.conferenceID), http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "room_status", liveModel{ViewID: lv.id, State: lv.view.State()})
}

// handleLivePartial renders the room status of a view
func (h *Handler) handleLivePartial(w http.ResponseWriter, r *http.Request) {
	lv, ok := h.viewForRequest(w, r)
	if !ok {
		return
	}
	h.render(w, http.StatusOK, "room_status", liveModel{ViewID: lv.id, State: lv.view.State()})
}

// handleLiveRefresh re-checks access for a view
func (h *Handler) handleLiveRefresh(w http.ResponseWriter, r *http.Request) {
	lv, ok := h.viewForRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r.Context())
	defer cancel()
	if err := lv.view.Refresh(ctx); err != nil {
		log.Printf("Error refreshing room for conference %d: %v", lv.conferenceID, err)
	}
	if !sessionFromContext(r.Context()).Authenticated() {
		h.redirectToLogin(w, r)
		return
	}
	h.renderRoomStatus(w, r, lv)
}

// handleLiveLeave hangs up and shows the rejoin panel
func (h *Handler) handleLiveLeave(w http.ResponseWriter, r *http.Request) {
	lv, ok := h.viewForRequest(w, r)
	if !ok {
		return
	}
	if err := lv.view.Leave(); err != nil && !errors.Is(err, room.ErrNotInRoom) {
		log.Printf("Error leaving room for conference %d: %v", lv.conferenceID, err)
	}
	h.renderRoomStatus(w, r, lv)
}

// handleLiveRejoin mounts a fresh room after a leave
func (h *Handler) handleLiveRejoin(w http.ResponseWriter, r *http.Request) {
	lv, ok := h.viewForRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := h.callContext(r.Context())
	defer cancel()
	if err := lv.view.Rejoin(ctx); err != nil && !errors.Is(err, room.ErrNotLeft) {
		log.Printf("Error rejoining room for conference %d: %v", lv.conferenceID, err)
	}
	h.renderRoomStatus(w, r, lv)
}

// widgetEvent is posted by the page when the widget emits an event
type widgetEvent struct {
	View        string `json:"view"`
	Instance    string `json:"instance"`
	Type        string `json:"type"`
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// handleWidgetEvent routes a widget event to the view's room controller
func (h *Handler) handleWidgetEvent(w http.ResponseWriter, r *http.Request) {
	conferenceID, ok := pathInt(r, "conferenceID")
	if !ok {
		http.NotFound(w, r)
		return
	}

	var payload widgetEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&payload); err != nil {
		http.Error(w, "Invalid event", http.StatusBadRequest)
		return
	}

	event := room.Event{
		Type:          room.EventType(payload.Type),
		ParticipantID: payload.ID,
		DisplayName:   payload.DisplayName,
	}
	if !event.Type.Valid() {
		http.Error(w, "Unknown event type", http.StatusBadRequest)
		return
	}

	lv := h.views.get(payload.View)
	session := sessionFromContext(r.Context())
	if lv == nil || lv.conferenceID != conferenceID || lv.sessionID != session.ID() {
		http.Error(w, "Unknown view", http.StatusNotFound)
		return
	}

	if err := lv.provider.Deliver(payload.Instance, event); err != nil {
		// Events of a widget torn down meanwhile are expected
		log.Printf("Dropped widget event %s: %v", utils.SanitizeLogString(payload.Type), err)
		w.WriteHeader(http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
