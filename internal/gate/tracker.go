package gate

import (
	"context"
	"sync"

	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
)

// StateCallback is called with a snapshot each time a tracker's state changes
type StateCallback func(state models.RoomAccessState)

// Tracker holds the access state of one live room view. Each Refresh gets a
// sequence number; a response is applied only if no newer Refresh was
// issued meanwhile and the tracker is still open.
type Tracker struct {
	gate         *Gate
	conferenceID int
	metrics      *metrics.Metrics

	mu        sync.Mutex
	state     models.RoomAccessState
	seq       uint64
	closed    bool
	callbacks []StateCallback
}

// NewTracker creates a tracker for conferenceID in the loading state
func NewTracker(g *Gate, conferenceID int) *Tracker {
	return &Tracker{
		gate:         g,
		conferenceID: conferenceID,
		metrics:      g.metrics,
		state:        models.RoomAccessState{Loading: true},
	}
}

// ConferenceID returns the tracked conference
func (t *Tracker) ConferenceID() int {
	return t.conferenceID
}

// OnChange registers a callback for state changes
func (t *Tracker) OnChange(callback StateCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, callback)
}

// State returns a snapshot of the current state
func (t *Tracker) State() models.RoomAccessState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Refresh runs a new access check and applies its result. It returns the
// state after the call and whether this call's result was applied.
func (t *Tracker) Refresh(ctx context.Context) (models.RoomAccessState, bool) {
	t.mu.Lock()
	if t.closed {
		state := t.state
		t.mu.Unlock()
		return state, false
	}
	t.seq++
	seq := t.seq
	t.state.Loading = true
	notify := t.snapshotLocked()
	t.mu.Unlock()
	notify()

	result := t.gate.Check(ctx, t.conferenceID)

	t.mu.Lock()
	if t.closed || seq != t.seq {
		state := t.state
		t.mu.Unlock()
		t.metrics.RecordStaleAccessResponse()
		return state, false
	}

	t.state.Loading = false
	t.state.CanJoin = result.CanJoin
	t.state.SessionInfo = result.Session
	t.state.Reason = result.Reason
	t.state.CheckedAt = result.CheckedAt
	t.state.Err = ""
	if result.Err != nil {
		t.state.Err = CheckFailedMessage
	}
	state := t.state
	notify = t.snapshotLocked()
	t.mu.Unlock()

	notify()
	return state, true
}

// SetHasLeft records whether the user left the room voluntarily
func (t *Tracker) SetHasLeft(hasLeft bool) {
	t.mu.Lock()
	if t.closed || t.state.HasLeft == hasLeft {
		t.mu.Unlock()
		return
	}
	t.state.HasLeft = hasLeft
	notify := t.snapshotLocked()
	t.mu.Unlock()

	notify()
}

// Close discards every in-flight and future check result
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.callbacks = nil
}

// snapshotLocked captures the state and callbacks so they can be run
// after the lock is released
func (t *Tracker) snapshotLocked() func() {
	state := t.state
	callbacks := append([]StateCallback(nil), t.callbacks...)
	return func() {
		for _, callback := range callbacks {
			callback(state)
		}
	}
}
