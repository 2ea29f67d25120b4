package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/registry"
	"github.com/navikt/liveroom/internal/utils"
)

var (
	// ErrValidation is returned when a create request misses a field
	ErrValidation = errors.New("missing session title or time")
	// ErrCreateInFlight is returned while another create is pending
	ErrCreateInFlight = errors.New("a session creation is already in progress")
	// ErrConfirmationRequired is returned by an unconfirmed delete
	ErrConfirmationRequired = errors.New("deletion must be confirmed")
)

// User-visible notification texts
const (
	TitleError   = "Erreur"
	TitleSuccess = "Succès"

	MsgMissingFields = "Veuillez remplir tous les champs"
	MsgLoadFailed    = "Impossible de charger les sessions live"

	MsgCreated      = "Session créée avec succès"
	MsgStarted      = "Session lancée avec succès"
	MsgStopped      = "Session arrêtée avec succès"
	TitleDeleted    = "Session supprimée"
	MsgDeleted      = "La session a été supprimée avec succès."
	MsgCreateFailed = "Erreur lors de la création de la session"
	MsgStartFailed  = "Erreur lors du lancement de la session"
	MsgStopFailed   = "Erreur lors de l'arrêt de la session"
	MsgDeleteFailed = "Erreur lors de la suppression de la session"
)

// Panel operations, used as metric labels
const (
	OpCreate = "create"
	OpStart  = "start"
	OpStop   = "stop"
	OpDelete = "delete"
)

// SessionBackend is the part of the registry client the panel needs
type SessionBackend interface {
	ListSessions(ctx context.Context, conferenceID int) ([]models.LiveSession, error)
	CreateSession(ctx context.Context, conferenceID int, title string, sessionTime time.Time) (*models.LiveSession, error)
	StartSession(ctx context.Context, conferenceID, sessionID int) (*models.LiveSession, error)
	StopSession(ctx context.Context, conferenceID, sessionID int) (*models.LiveSession, error)
	DeleteSession(ctx context.Context, conferenceID, sessionID int) error
}

// Notifier shows a notification to the user
type Notifier interface {
	Notify(n models.Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n models.Notification)

// Notify implements Notifier
func (f NotifierFunc) Notify(n models.Notification) {
	f(n)
}

// PanelUpdateCallback is called with the session list after each refresh
type PanelUpdateCallback func(conferenceID int, sessions []models.LiveSession)

// Panel is the organizer's session management view of one conference.
// The list is never edited locally: every mutation is followed by a refetch.
type Panel struct {
	backend      SessionBackend
	conferenceID int
	notifier     Notifier
	metrics      *metrics.Metrics

	mu              sync.Mutex
	sessions        []models.LiveSession
	loading         bool
	loaded          bool
	creating        bool
	updateCallbacks []PanelUpdateCallback
}

// NewPanel creates a panel for conferenceID
func NewPanel(backend SessionBackend, conferenceID int, notifier Notifier, m *metrics.Metrics) *Panel {
	return &Panel{
		backend:      backend,
		conferenceID: conferenceID,
		notifier:     notifier,
		metrics:      m,
		sessions:     []models.LiveSession{},
	}
}

// ConferenceID returns the managed conference
func (p *Panel) ConferenceID() int {
	return p.conferenceID
}

// RegisterUpdateCallback registers a callback run after each applied refresh
func (p *Panel) RegisterUpdateCallback(callback PanelUpdateCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateCallbacks = append(p.updateCallbacks, callback)
}

// Sessions returns a copy of the cached session list
func (p *Panel) Sessions() []models.LiveSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.LiveSession(nil), p.sessions...)
}

// Loading reports whether a refresh is in progress
func (p *Panel) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Loaded reports whether at least one refresh succeeded
func (p *Panel) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Creating reports whether a create request is pending
func (p *Panel) Creating() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creating
}

// Refresh fetches the conference's sessions. On failure the cached list is kept.
func (p *Panel) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.loading = true
	p.mu.Unlock()

	sessions, err := p.backend.ListSessions(ctx, p.conferenceID)

	p.mu.Lock()
	p.loading = false
	if err != nil {
		p.mu.Unlock()
		log.Printf("Error loading sessions for conference %d: %v", p.conferenceID, err)
		p.notifier.Notify(models.Failure(TitleError, MsgLoadFailed))
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	p.sessions = sessions
	p.loaded = true
	callbacks := append([]PanelUpdateCallback(nil), p.updateCallbacks...)
	p.mu.Unlock()

	for _, callback := range callbacks {
		callback(p.conferenceID, append([]models.LiveSession(nil), sessions...))
	}
	return nil
}

// Create schedules a new session. Title and time are required.
func (p *Panel) Create(ctx context.Context, title string, sessionTime time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" || sessionTime.IsZero() {
		p.notifier.Notify(models.Failure(TitleError, MsgMissingFields))
		return ErrValidation
	}

	p.mu.Lock()
	if p.creating {
		p.mu.Unlock()
		return ErrCreateInFlight
	}
	p.creating = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.creating = false
		p.mu.Unlock()
	}()

	_, err := p.backend.CreateSession(ctx, p.conferenceID, title, sessionTime)
	if err == nil {
		log.Printf("Session %q created for conference %d", utils.SanitizeLogString(title), p.conferenceID)
	}
	return p.finish(ctx, OpCreate, err, models.Success(TitleSuccess, MsgCreated), MsgCreateFailed)
}

// Start asks the backend to move a PENDING session to ACTIVE
func (p *Panel) Start(ctx context.Context, sessionID int) error {
	_, err := p.backend.StartSession(ctx, p.conferenceID, sessionID)
	return p.finish(ctx, OpStart, err, models.Success(TitleSuccess, MsgStarted), MsgStartFailed)
}

// Stop asks the backend to move an ACTIVE session to ENDED
func (p *Panel) Stop(ctx context.Context, sessionID int) error {
	_, err := p.backend.StopSession(ctx, p.conferenceID, sessionID)
	return p.finish(ctx, OpStop, err, models.Success(TitleSuccess, MsgStopped), MsgStopFailed)
}

// Delete removes a session once the organizer confirmed it
func (p *Panel) Delete(ctx context.Context, sessionID int, confirmed bool) error {
	if !confirmed {
		return ErrConfirmationRequired
	}
	err := p.backend.DeleteSession(ctx, p.conferenceID, sessionID)
	return p.finish(ctx, OpDelete, err, models.Success(TitleDeleted, MsgDeleted), MsgDeleteFailed)
}

// finish notifies the outcome of a mutation and refetches the list
func (p *Panel) finish(ctx context.Context, op string, err error, success models.Notification, fallback string) error {
	p.metrics.RecordPanelMutation(op, err)

	if err != nil {
		log.Printf("Session %s failed for conference %d: %v", op, p.conferenceID, err)
		message := registry.Detail(err)
		if message == "" {
			message = fallback
		}
		p.notifier.Notify(models.Failure(TitleError, message))
	} else {
		p.notifier.Notify(success)
	}

	// A 401 already invalidated the session; refetching would only fail again
	if errors.Is(err, registry.ErrUnauthorized) {
		return fmt.Errorf("session %s: %w", op, err)
	}

	_ = p.Refresh(ctx)

	if err != nil {
		return fmt.Errorf("session %s: %w", op, err)
	}
	return nil
}
