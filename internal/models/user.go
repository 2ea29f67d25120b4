package models

import "time"

// UserProfile is the cached profile of the signed-in user
type UserProfile struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
}

// DisplayName returns the name shown to other room participants
func (u UserProfile) DisplayName() string {
	if u.Fullname != "" {
		return u.Fullname
	}
	return u.Email
}

// Credentials is what the client keeps about a signed-in user: the bearer
// token and the profile returned at login
type Credentials struct {
	Token     string      `json:"token"`
	User      UserProfile `json:"user"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
}

// Expired reports whether the token is past its expiry. A zero expiry never expires.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// LoginResponse is the backend's answer to a successful login
type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        UserProfile `json:"user"`
}
