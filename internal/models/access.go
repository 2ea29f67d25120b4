package models

import "time"

// CanJoinResponse is the backend's answer to a join-eligibility probe
type CanJoinResponse struct {
	CanJoin bool         `json:"can_join"`
	Reason  string       `json:"reason,omitempty"`
	Session *LiveSession `json:"session,omitempty"`
}

// AccessResult is the outcome of an access gate check. Err is set when the
// check itself failed; CanJoin is always false in that case.
type AccessResult struct {
	ConferenceID int
	CanJoin      bool
	Reason       string
	Session      *LiveSession
	Err          error
	CheckedAt    time.Time
}

// RoomAccessState is the ephemeral state of one mounted live room view
type RoomAccessState struct {
	CanJoin     bool
	SessionInfo *LiveSession
	HasLeft     bool
	Loading     bool
	Reason      string
	// Err is the user-visible error message of the last failed check
	Err       string
	CheckedAt time.Time
}
