package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/navikt/liveroom/internal/gate"
	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/registry"
	"github.com/navikt/liveroom/internal/utils"
)

// AccessResponse is the JSON form of an access check
type AccessResponse struct {
	ConferenceID int                 `json:"conference_id"`
	CanJoin      bool                `json:"can_join"`
	Reason       string              `json:"reason,omitempty"`
	Session      *models.LiveSession `json:"session,omitempty"`
	Error        string              `json:"error,omitempty"`
	CheckedAt    time.Time           `json:"checked_at"`
}

// AccessHandler answers whether the caller may join a conference's live
// session, using the caller's own bearer token against the backend
type AccessHandler struct {
	client  *registry.Client
	metrics *metrics.Metrics
}

// NewAccessHandler creates an access handler backed by client
func NewAccessHandler(client *registry.Client, m *metrics.Metrics) *AccessHandler {
	return &AccessHandler{client: client, metrics: m}
}

// bearerToken is a TokenSource for a token the caller presented
type bearerToken struct {
	token       string
	invalidated bool
}

func (b *bearerToken) Token() string {
	return b.token
}

func (b *bearerToken) Invalidate(_ context.Context, reason string) {
	b.invalidated = true
	log.Printf("Presented token rejected: %s", utils.SanitizeLogString(reason))
}

// ServeHTTP handles GET /api/conferences/{conferenceID}/access
func (h *AccessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
		return
	}

	conferenceID, err := strconv.Atoi(r.PathValue("conferenceID"))
	if err != nil || conferenceID <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": gate.ErrInvalidConference.Error()})
		return
	}

	tokens := &bearerToken{token: token}
	result := gate.New(h.client.As(tokens), h.metrics).Check(r.Context(), conferenceID)
	if tokens.invalidated {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
		return
	}

	resp := AccessResponse{
		ConferenceID: conferenceID,
		CanJoin:      result.CanJoin,
		Reason:       result.Reason,
		Session:      result.Session,
		CheckedAt:    result.CheckedAt,
	}
	if result.Err != nil {
		resp.Error = gate.CheckFailedMessage
	}
	writeJSON(w, http.StatusOK, resp)
}
