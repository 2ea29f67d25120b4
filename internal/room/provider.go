package room

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoContainer is returned by a provider when there is nowhere to render the widget
var ErrNoContainer = errors.New("no container to render the room in")

// EventType names a widget lifecycle event
type EventType string

const (
	EventConferenceJoined  EventType = "videoConferenceJoined"
	EventConferenceLeft    EventType = "videoConferenceLeft"
	EventParticipantJoined EventType = "participantJoined"
	EventParticipantLeft   EventType = "participantLeft"
	EventReadyToClose      EventType = "readyToClose"
)

// Valid reports whether the event type is one the controller handles
func (t EventType) Valid() bool {
	switch t {
	case EventConferenceJoined, EventConferenceLeft, EventParticipantJoined, EventParticipantLeft, EventReadyToClose:
		return true
	}
	return false
}

// Event is emitted by a widget handle
type Event struct {
	Type          EventType `json:"type"`
	ParticipantID string    `json:"id,omitempty"`
	DisplayName   string    `json:"displayName,omitempty"`
}

// CommandHangup asks the widget to leave the call
const CommandHangup = "hangup"

// Config describes the widget instance to create
type Config struct {
	ConferenceID int
	RoomName     string
	DisplayName  string
	Email        string
}

// Script is the loaded widget library. Release unloads it.
type Script interface {
	Release()
}

// Handle is one live widget instance
type Handle interface {
	// Subscribe registers the single event listener of the handle
	Subscribe(listener func(Event))
	ExecuteCommand(name string) error
	Dispose() error
}

// Provider loads the widget library and creates widget instances
type Provider interface {
	LoadScript(ctx context.Context) (Script, error)
	Create(ctx context.Context, cfg Config) (Handle, error)
}

// RoomName returns the deterministic room name of a conference
func RoomName(prefix string, conferenceID int) string {
	return fmt.Sprintf("%s-%d", prefix, conferenceID)
}
