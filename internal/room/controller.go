// Package room drives the lifecycle of the embedded video room widget for
// one mounted live room view.
package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sort"
	"sync"

	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
)

var (
	// ErrAccessDenied is returned when mounting without a granted access result
	ErrAccessDenied = errors.New("access to the live session denied")
	// ErrAlreadyMounted is returned when Mount is called outside Uninitialized
	ErrAlreadyMounted = errors.New("room already mounted")
	// ErrNotInRoom is returned by Leave when there is no room to leave
	ErrNotInRoom = errors.New("not in a room")
	// ErrNotLeft is returned by Rejoin unless the user left the room
	ErrNotLeft = errors.New("room was not left")
	// ErrUnmounted is returned when the view was unmounted during Mount
	ErrUnmounted = errors.New("room unmounted during initialization")
)

// MountFailedMessage is shown when the widget could not be initialized
const MountFailedMessage = "Impossible de charger la salle vidéo"

// Failure stages reported to metrics
const (
	StageScript = "script"
	StageCreate = "create"
)

// State is the controller's lifecycle state
type State int

const (
	Uninitialized State = iota
	Initializing
	InRoom
	Left
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case InRoom:
		return "in_room"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Controller
type Options struct {
	RoomPrefix string
	User       models.UserProfile
	Metrics    *metrics.Metrics
}

// Controller owns at most one widget handle and one loaded script
type Controller struct {
	provider Provider
	opts     Options

	mu           sync.Mutex
	state        State
	mounting     bool
	generation   uint64
	script       Script
	handle       Handle
	live         bool
	participants map[string]string
	failure      string
	callbacks    []func(State)
}

// NewController creates a controller in the Uninitialized state
func NewController(provider Provider, opts Options) *Controller {
	return &Controller{
		provider:     provider,
		opts:         opts,
		participants: make(map[string]string),
	}
}

// OnStateChange registers a callback run after every state transition
func (c *Controller) OnStateChange(callback func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Participants returns the display names of the remote participants
func (c *Controller) Participants() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.participants))
	for _, name := range c.participants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failure returns the message of the last failed mount, "" once a mount
// succeeds or the room is torn down
func (c *Controller) Failure() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// setStateLocked changes state and returns the notification to run unlocked
func (c *Controller) setStateLocked(state State) func() {
	if c.state == state {
		return func() {}
	}
	c.state = state
	return c.notifyLocked()
}

// notifyLocked snapshots the callbacks for the current state
func (c *Controller) notifyLocked() func() {
	state := c.state
	callbacks := slices.Clone(c.callbacks)
	return func() {
		for _, callback := range callbacks {
			callback(state)
		}
	}
}

// Mount loads the widget script and creates the room. Nothing is touched
// unless access was granted. On failure everything acquired is released and
// the controller returns to Uninitialized; there is no retry.
func (c *Controller) Mount(ctx context.Context, access models.AccessResult) error {
	if !access.CanJoin || access.Session == nil {
		return ErrAccessDenied
	}

	c.mu.Lock()
	if c.state != Uninitialized || c.mounting {
		c.mu.Unlock()
		return ErrAlreadyMounted
	}
	c.mounting = true
	c.failure = ""
	gen := c.generation
	c.mu.Unlock()

	script, err := c.provider.LoadScript(ctx)
	if err != nil {
		c.failMount(StageScript, access.ConferenceID, err)
		return fmt.Errorf("failed to load room script: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mounting = false
		c.mu.Unlock()
		script.Release()
		return ErrUnmounted
	}
	c.script = script
	notify := c.setStateLocked(Initializing)
	c.mu.Unlock()
	notify()

	cfg := Config{
		ConferenceID: access.ConferenceID,
		RoomName:     RoomName(c.opts.RoomPrefix, access.ConferenceID),
		DisplayName:  c.opts.User.DisplayName(),
		Email:        c.opts.User.Email,
	}

	handle, err := c.provider.Create(ctx, cfg)
	if err != nil {
		c.failMount(StageCreate, access.ConferenceID, err)
		return fmt.Errorf("failed to create room: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mounting = false
		c.mu.Unlock()
		if err := handle.Dispose(); err != nil {
			log.Printf("Error disposing room handle for conference %d: %v", access.ConferenceID, err)
		}
		return ErrUnmounted
	}
	c.handle = handle
	c.live = true
	c.mounting = false
	c.mu.Unlock()

	c.opts.Metrics.RoomMounted()
	log.Printf("Room %s created for conference %d", cfg.RoomName, access.ConferenceID)

	handle.Subscribe(func(event Event) {
		c.handleEvent(gen, event)
	})
	return nil
}

// failMount releases what Mount acquired and resets to Uninitialized
func (c *Controller) failMount(stage string, conferenceID int, err error) {
	log.Printf("Room initialization failed for conference %d at %s: %v", conferenceID, stage, err)
	c.opts.Metrics.RecordRoomFailure(stage)

	c.mu.Lock()
	script := c.script
	c.script = nil
	c.mounting = false
	c.failure = MountFailedMessage
	c.state = Uninitialized
	notify := c.notifyLocked()
	c.mu.Unlock()

	if script != nil {
		script.Release()
	}
	notify()
}

// HandleEvent applies a widget event to the current handle
func (c *Controller) HandleEvent(event Event) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.handleEvent(gen, event)
}

func (c *Controller) handleEvent(gen uint64, event Event) {
	c.mu.Lock()
	if gen != c.generation || c.handle == nil {
		c.mu.Unlock()
		return
	}

	switch event.Type {
	case EventConferenceJoined:
		notify := c.setStateLocked(InRoom)
		c.mu.Unlock()
		notify()
	case EventParticipantJoined:
		if event.ParticipantID != "" {
			c.participants[event.ParticipantID] = event.DisplayName
		}
		c.mu.Unlock()
	case EventParticipantLeft:
		delete(c.participants, event.ParticipantID)
		c.mu.Unlock()
	case EventConferenceLeft, EventReadyToClose:
		// The widget already left the call, no hangup
		c.live = false
		c.mu.Unlock()
		c.teardown(Left)
	default:
		c.mu.Unlock()
	}
}

// Leave hangs up and tears the room down
func (c *Controller) Leave() error {
	c.mu.Lock()
	if c.handle == nil || (c.state != Initializing && c.state != InRoom) {
		c.mu.Unlock()
		return ErrNotInRoom
	}
	c.mu.Unlock()

	c.teardown(Left)
	return nil
}

// Rejoin mounts a new room after the user left the previous one
func (c *Controller) Rejoin(ctx context.Context, access models.AccessResult) error {
	c.mu.Lock()
	if c.state != Left {
		c.mu.Unlock()
		return ErrNotLeft
	}
	notify := c.setStateLocked(Uninitialized)
	c.mu.Unlock()
	notify()

	return c.Mount(ctx, access)
}

// Unmount releases the handle and the script. It is safe to call repeatedly.
func (c *Controller) Unmount() {
	c.teardown(Uninitialized)
}

// teardown hangs up a live handle, disposes it, releases the script and
// moves to next. Events from the disposed handle are ignored from here on.
func (c *Controller) teardown(next State) {
	c.mu.Lock()
	c.generation++
	handle, script, live := c.handle, c.script, c.live
	c.handle, c.script, c.live = nil, nil, false
	c.participants = make(map[string]string)
	c.failure = ""
	notify := c.setStateLocked(next)
	c.mu.Unlock()

	if handle != nil {
		if live {
			if err := handle.ExecuteCommand(CommandHangup); err != nil {
				log.Printf("Error hanging up room: %v", err)
			}
		}
		if err := handle.Dispose(); err != nil {
			log.Printf("Error disposing room handle: %v", err)
		}
		c.opts.Metrics.RoomTornDown()
	}
	if script != nil {
		script.Release()
	}
	notify()
}
