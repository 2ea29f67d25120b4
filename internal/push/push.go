// Package push handles browser web-push subscriptions: it exposes the VAPID
// application server key and forwards validated subscriptions to the backend.
package push

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/navikt/liveroom/internal/utils"
)

var (
	// ErrDisabled is returned when no VAPID key is configured
	ErrDisabled = errors.New("push notifications are not configured")
	// ErrInvalidKey is returned for a malformed VAPID public key
	ErrInvalidKey = errors.New("invalid VAPID public key")
	// ErrInvalidSubscription is returned for an incomplete subscription
	ErrInvalidSubscription = errors.New("invalid push subscription")
)

// uncompressed P-256 point: 0x04 || X || Y
const applicationServerKeyLength = 65

// Subscription is the PushSubscription JSON produced by the browser
type Subscription struct {
	Endpoint       string `json:"endpoint"`
	ExpirationTime *int64 `json:"expirationTime"`
	Keys           Keys   `json:"keys"`
}

// Keys holds the subscription's encryption keys
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Validate checks that the subscription can be used to deliver messages
func (s Subscription) Validate() error {
	endpoint, err := url.Parse(s.Endpoint)
	if err != nil || endpoint.Scheme != "https" || endpoint.Host == "" {
		return fmt.Errorf("%w: endpoint must be an https URL", ErrInvalidSubscription)
	}
	if _, err := DecodeURLBase64(s.Keys.P256dh); err != nil || s.Keys.P256dh == "" {
		return fmt.Errorf("%w: missing or malformed p256dh key", ErrInvalidSubscription)
	}
	if _, err := DecodeURLBase64(s.Keys.Auth); err != nil || s.Keys.Auth == "" {
		return fmt.Errorf("%w: missing or malformed auth secret", ErrInvalidSubscription)
	}
	return nil
}

// DecodeURLBase64 decodes URL-safe base64 with or without padding
func DecodeURLBase64(value string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(value), "="))
}

// DecodeApplicationServerKey returns the raw bytes of a VAPID public key
func DecodeApplicationServerKey(key string) ([]byte, error) {
	raw, err := DecodeURLBase64(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != applicationServerKeyLength || raw[0] != 0x04 {
		return nil, fmt.Errorf("%w: expected %d byte uncompressed point", ErrInvalidKey, applicationServerKeyLength)
	}
	return raw, nil
}

// Forwarder stores subscriptions on the backend
type Forwarder interface {
	SaveSubscription(ctx context.Context, subscription any) error
}

// Service validates and forwards subscriptions
type Service struct {
	publicKey string
	keyBytes  []byte
}

// NewService creates a push service. An empty key yields a disabled service.
func NewService(vapidPublicKey string) (*Service, error) {
	vapidPublicKey = strings.TrimSpace(vapidPublicKey)
	if vapidPublicKey == "" {
		return &Service{}, nil
	}
	raw, err := DecodeApplicationServerKey(vapidPublicKey)
	if err != nil {
		return nil, err
	}
	return &Service{publicKey: vapidPublicKey, keyBytes: raw}, nil
}

// Enabled reports whether a VAPID key is configured
func (s *Service) Enabled() bool {
	return len(s.keyBytes) > 0
}

// PublicKey returns the configured key as given
func (s *Service) PublicKey() string {
	return s.publicKey
}

// ApplicationServerKey returns the decoded key bytes
func (s *Service) ApplicationServerKey() []byte {
	return append([]byte(nil), s.keyBytes...)
}

// Subscribe validates sub and forwards it through f
func (s *Service) Subscribe(ctx context.Context, f Forwarder, sub Subscription) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if err := sub.Validate(); err != nil {
		return err
	}
	if err := f.SaveSubscription(ctx, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	log.Printf("Push subscription saved for endpoint host %s", utils.SanitizeLogString(endpointHost(sub.Endpoint)))
	return nil
}

func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Host
}
