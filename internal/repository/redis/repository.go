// Package redis provides a Redis/Valkey implementation of the repository interface
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/models"
	"github.com/redis/go-redis/v9"
)

// Common errors
var (
	ErrNotFound = models.ErrNotFound
)

// Repository implements the repository interface with Redis storage
type Repository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	now       func() time.Time
}

// NewRepository creates a new Redis repository
func NewRepository(cfg config.RedisConfig) (*Repository, error) {
	var client *redis.Client

	// Use URI if provided, otherwise build connection from individual parameters
	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}

		// Use DB from config if not specified in the URI
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}

		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}

		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       cfg.CredentialTTL,
		now:       time.Now,
	}, nil
}

// Close closes the Redis connection
func (r *Repository) Close() error {
	return r.client.Close()
}

// credentialsKey returns the Redis key for a browser session's credentials
func (r *Repository) credentialsKey(sessionID string) string {
	return fmt.Sprintf("%scredentials:%s", r.keyPrefix, sessionID)
}

// expiration is the configured TTL, shortened to the token's own expiry
func (r *Repository) expiration(creds *models.Credentials) time.Duration {
	ttl := r.ttl
	if creds.ExpiresAt.IsZero() {
		return ttl
	}

	remaining := creds.ExpiresAt.Sub(r.now())
	if remaining <= 0 {
		// Let the key vanish almost immediately; 0 would mean "keep forever"
		return time.Millisecond
	}
	if ttl == 0 || remaining < ttl {
		return remaining
	}
	return ttl
}

// SaveCredentials stores creds as JSON under the browser session key
func (r *Repository) SaveCredentials(ctx context.Context, sessionID string, creds *models.Credentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := r.client.Set(ctx, r.credentialsKey(sessionID), data, r.expiration(creds)).Err(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// GetCredentials retrieves the credentials of a browser session
func (r *Repository) GetCredentials(ctx context.Context, sessionID string) (*models.Credentials, error) {
	data, err := r.client.Get(ctx, r.credentialsKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	var creds models.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}

	if creds.Expired(r.now()) {
		return nil, ErrNotFound
	}
	return &creds, nil
}

// DeleteCredentials removes a browser session's credentials
func (r *Repository) DeleteCredentials(ctx context.Context, sessionID string) error {
	deleted, err := r.client.Del(ctx, r.credentialsKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// CountCredentials counts stored credentials using SCAN over the key prefix
func (r *Repository) CountCredentials(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, r.credentialsKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count credentials: %w", err)
	}
	return count, nil
}

// Ping checks the Redis connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
