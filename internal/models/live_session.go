package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the backend-owned lifecycle status of a live session
type SessionStatus string

const (
	SessionStatusPending SessionStatus = "PENDING"
	SessionStatusActive  SessionStatus = "ACTIVE"
	SessionStatusEnded   SessionStatus = "ENDED"
)

// Valid reports whether the status is one the backend is known to emit
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusPending, SessionStatusActive, SessionStatusEnded:
		return true
	}
	return false
}

// CanStart reports whether the organizer is offered the start action
func (s SessionStatus) CanStart() bool {
	return s == SessionStatusPending
}

// CanStop reports whether the organizer is offered the stop action
func (s SessionStatus) CanStop() bool {
	return s == SessionStatusActive
}

// Label returns the badge text shown next to a session
func (s SessionStatus) Label() string {
	switch s {
	case SessionStatusPending:
		return "En attente"
	case SessionStatusActive:
		return "Active"
	case SessionStatusEnded:
		return "Terminée"
	default:
		return string(s)
	}
}

// LiveSession is the client-side copy of a session record owned by the backend.
// Status is authoritative and never computed locally.
type LiveSession struct {
	ID           int           `json:"id"`
	ConferenceID int           `json:"conference_id,omitempty"`
	Title        string        `json:"session_title"`
	SessionTime  time.Time     `json:"session_time"`
	Status       SessionStatus `json:"status"`
	IsActive     bool          `json:"is_active"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	OrganizerID  int           `json:"organizer_id,omitempty"`
}

// backend timestamps are naive ISO-8601 (no zone) most of the time
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseTimestamp parses a timestamp in any of the formats the backend emits.
// Values without a zone are taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func parseOptionalTimestamp(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(*value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UnmarshalJSON accepts the backend's naive timestamps as well as RFC 3339
func (s *LiveSession) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           int           `json:"id"`
		ConferenceID int           `json:"conference_id"`
		Title        string        `json:"session_title"`
		SessionTime  *string       `json:"session_time"`
		Status       SessionStatus `json:"status"`
		IsActive     bool          `json:"is_active"`
		StartedAt    *string       `json:"started_at"`
		EndedAt      *string       `json:"ended_at"`
		OrganizerID  int           `json:"organizer_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = LiveSession{
		ID:           raw.ID,
		ConferenceID: raw.ConferenceID,
		Title:        raw.Title,
		Status:       raw.Status,
		IsActive:     raw.IsActive,
		OrganizerID:  raw.OrganizerID,
	}

	if raw.SessionTime != nil && *raw.SessionTime != "" {
		t, err := ParseTimestamp(*raw.SessionTime)
		if err != nil {
			return fmt.Errorf("session_time: %w", err)
		}
		s.SessionTime = t
	}

	var err error
	if s.StartedAt, err = parseOptionalTimestamp(raw.StartedAt); err != nil {
		return fmt.Errorf("started_at: %w", err)
	}
	if s.EndedAt, err = parseOptionalTimestamp(raw.EndedAt); err != nil {
		return fmt.Errorf("ended_at: %w", err)
	}
	return nil
}

// SessionList is the envelope of the session listing endpoints
type SessionList struct {
	Sessions []LiveSession `json:"sessions"`
}

// ActiveSessionResponse is returned by the active-session probe
type ActiveSessionResponse struct {
	ActiveSession *LiveSession `json:"active_session"`
	Message       string       `json:"message,omitempty"`
}
