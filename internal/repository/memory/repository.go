// Package memory provides an in-memory implementation of the repository interface
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/navikt/liveroom/internal/models"
)

// ErrNotFound is returned when a requested entity is not found
var ErrNotFound = models.ErrNotFound

// Repository implements the repository interface with in-memory storage
type Repository struct {
	credentials map[string]models.Credentials
	mu          sync.RWMutex
	now         func() time.Time
}

// NewRepository creates a new in-memory repository
func NewRepository() *Repository {
	return &Repository{
		credentials: make(map[string]models.Credentials),
		now:         time.Now,
	}
}

// SaveCredentials stores a copy of creds under sessionID, replacing any previous value
func (r *Repository) SaveCredentials(ctx context.Context, sessionID string, creds *models.Credentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.credentials[sessionID] = *creds
	return nil
}

// GetCredentials retrieves the credentials of a browser session.
// Expired credentials are dropped and reported as not found.
func (r *Repository) GetCredentials(ctx context.Context, sessionID string) (*models.Credentials, error) {
	r.mu.RLock()
	creds, ok := r.credentials[sessionID]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	if creds.Expired(r.now()) {
		r.mu.Lock()
		delete(r.credentials, sessionID)
		r.mu.Unlock()
		return nil, ErrNotFound
	}

	return &creds, nil
}

// DeleteCredentials removes a browser session's credentials
func (r *Repository) DeleteCredentials(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.credentials[sessionID]; !ok {
		return ErrNotFound
	}
	delete(r.credentials, sessionID)
	return nil
}

// CountCredentials returns the number of stored, unexpired credentials
func (r *Repository) CountCredentials(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	count := 0
	for _, creds := range r.credentials {
		if !creds.Expired(now) {
			count++
		}
	}
	return count, nil
}

// Ping always succeeds for the in-memory store
func (r *Repository) Ping(ctx context.Context) error {
	return nil
}
