package room

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/navikt/liveroom/internal/gate"
	"github.com/navikt/liveroom/internal/models"
)

// ViewState is what the live room page renders
type ViewState struct {
	ConferenceID int
	Access       models.RoomAccessState
	Room         State
	Participants []string
	// RoomError is set when the last attempt to create the room failed
	RoomError string
}

// ShowRoom reports whether the video container is rendered
func (s ViewState) ShowRoom() bool {
	return s.Access.CanJoin && !s.Access.HasLeft
}

// Unavailable reports whether the "session not available" panel is rendered
func (s ViewState) Unavailable() bool {
	return !s.Access.Loading && !s.Access.CanJoin
}

// View is one mounted live room page: an access tracker plus the room
// controller it gates
type View struct {
	tracker    *gate.Tracker
	controller *Controller

	mu        sync.Mutex
	attached  bool
	unmounted bool
	callbacks []func(ViewState)
}

// NewView wires tracker and controller together
func NewView(tracker *gate.Tracker, controller *Controller) *View {
	v := &View{tracker: tracker, controller: controller}

	tracker.OnChange(func(models.RoomAccessState) { v.notify() })
	controller.OnStateChange(func(state State) {
		if state == Left {
			tracker.SetHasLeft(true)
			return
		}
		v.notify()
	})
	return v
}

// OnChange registers a callback run whenever the rendered state may differ
func (v *View) OnChange(callback func(ViewState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.callbacks = append(v.callbacks, callback)
}

func (v *View) notify() {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return
	}
	callbacks := slices.Clone(v.callbacks)
	v.mu.Unlock()

	state := v.State()
	for _, callback := range callbacks {
		callback(state)
	}
}

// State returns a snapshot for rendering
func (v *View) State() ViewState {
	return ViewState{
		ConferenceID: v.tracker.ConferenceID(),
		Access:       v.tracker.State(),
		Room:         v.controller.State(),
		Participants: v.controller.Participants(),
		RoomError:    v.controller.Failure(),
	}
}

// Controller exposes the room controller, for widget event delivery
func (v *View) Controller() *Controller {
	return v.controller
}

// Check runs an access check without touching the room. It serves the
// first render, before anything can host the widget.
func (v *View) Check(ctx context.Context) models.RoomAccessState {
	state, _ := v.tracker.Refresh(ctx)
	return state
}

// Mount attaches the view to its widget host and creates the room when the
// last verdict allows it. A check is run first if none completed yet.
func (v *View) Mount(ctx context.Context) error {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return ErrUnmounted
	}
	v.attached = true
	v.mu.Unlock()

	if v.tracker.State().Loading {
		return v.Refresh(ctx)
	}
	return v.reconcile(ctx, v.tracker.State())
}

// Refresh re-checks access. Once mounted, a granted check creates the room
// if none is live and a denied one tears a live room down.
func (v *View) Refresh(ctx context.Context) error {
	access, applied := v.tracker.Refresh(ctx)
	if !applied {
		return nil
	}
	return v.reconcile(ctx, access)
}

func (v *View) reconcile(ctx context.Context, access models.RoomAccessState) error {
	v.mu.Lock()
	attached := v.attached && !v.unmounted
	v.mu.Unlock()
	if !attached {
		return nil
	}

	switch {
	case access.CanJoin && !access.HasLeft && v.controller.State() == Uninitialized:
		err := v.controller.Mount(ctx, accessResult(v.tracker.ConferenceID(), access))
		if errors.Is(err, ErrAlreadyMounted) {
			return nil
		}
		return err
	case !access.CanJoin && v.controller.State() != Uninitialized:
		v.controller.Unmount()
	}
	return nil
}

// Leave exits the room and shows the rejoin panel
func (v *View) Leave() error {
	return v.controller.Leave()
}

// Rejoin mounts a fresh room after a leave, using the last access verdict
func (v *View) Rejoin(ctx context.Context) error {
	if v.controller.State() != Left {
		return ErrNotLeft
	}
	v.tracker.SetHasLeft(false)

	access := v.tracker.State()
	return v.controller.Rejoin(ctx, accessResult(v.tracker.ConferenceID(), access))
}

// Unmount discards pending access checks and tears the room down
func (v *View) Unmount() {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return
	}
	v.unmounted = true
	v.callbacks = nil
	v.mu.Unlock()

	v.tracker.Close()
	v.controller.Unmount()
}

func accessResult(conferenceID int, state models.RoomAccessState) models.AccessResult {
	return models.AccessResult{
		ConferenceID: conferenceID,
		CanJoin:      state.CanJoin,
		Reason:       state.Reason,
		Session:      state.SessionInfo,
		CheckedAt:    state.CheckedAt,
	}
}
