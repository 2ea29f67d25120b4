// Package repository defines interfaces for data storage
package repository

import (
	"context"

	"github.com/navikt/liveroom/internal/models"
)

// Repository stores the credentials of signed-in browser sessions.
// Keys are opaque browser session IDs; only the token, expiry and the
// cached profile are kept.
type Repository interface {
	SaveCredentials(ctx context.Context, sessionID string, creds *models.Credentials) error
	GetCredentials(ctx context.Context, sessionID string) (*models.Credentials, error)
	DeleteCredentials(ctx context.Context, sessionID string) error
	CountCredentials(ctx context.Context) (int, error)

	// Ping reports whether the backing store is reachable
	Ping(ctx context.Context) error
}
