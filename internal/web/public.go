package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/push"
)

// handleSchedule renders a conference's public session schedule
func (h *Handler) handleSchedule(w http.ResponseWriter, r *http.Request) {
	conferenceID, ok := pathInt(r, "conferenceID")
	if !ok {
		http.NotFound(w, r)
		return
	}

	ctx, cancel := h.callContext(r.Context())
	defer cancel()

	data := struct {
		pageData
		ConferenceID int
		Sessions     []models.LiveSession
	}{
		pageData:     h.newPageData(r, "Emploi du temps des sessions live"),
		ConferenceID: conferenceID,
		Sessions:     h.schedule.Sessions(ctx, conferenceID),
	}
	h.render(w, http.StatusOK, "schedule.html", data)
}

// handlePushKey returns the VAPID public key for the browser's subscribe call
func (h *Handler) handlePushKey(w http.ResponseWriter, r *http.Request) {
	if !h.opts.Push.Enabled() {
		http.Error(w, push.ErrDisabled.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.opts.Push.PublicKey()})
}

// handlePushSubscription forwards the browser's push subscription
func (h *Handler) handlePushSubscription(w http.ResponseWriter, r *http.Request) {
	var sub push.Subscription
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&sub); err != nil {
		http.Error(w, "Invalid subscription", http.StatusBadRequest)
		return
	}

	session := sessionFromContext(r.Context())
	ctx, cancel := h.callContext(r.Context())
	defer cancel()

	err := h.opts.Push.Subscribe(ctx, h.opts.Client.As(session), sub)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusCreated)
	case errors.Is(err, push.ErrDisabled):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, push.ErrInvalidSubscription):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case h.handleUnauthorized(w, r, err):
	default:
		log.Printf("Error saving push subscription: %v", err)
		http.Error(w, fmt.Sprintf("Failed to save subscription: %v", err), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
