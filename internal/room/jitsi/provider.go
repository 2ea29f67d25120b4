// Package jitsi implements room.Provider for the Jitsi Meet external API.
// The widget itself runs in the browser: commands are pushed to the page
// over a server-sent event stream and widget events come back over HTTP.
package jitsi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/room"
)

// Event names published on the view's stream
const (
	EventLoadScript    = "load-script"
	EventCreate        = "create"
	EventCommand       = "command"
	EventDispose       = "dispose"
	EventReleaseScript = "release-script"
)

// ErrUnknownInstance is returned when an event names no live widget
var ErrUnknownInstance = errors.New("unknown widget instance")

// Bridge delivers commands to the page that hosts the widget
type Bridge interface {
	// Publish sends a named event with a JSON payload on a stream
	Publish(streamID, event string, payload []byte) error
	// Connected reports whether a page is listening on the stream
	Connected(streamID string) bool
}

// Provider creates widgets on the page listening on one stream
type Provider struct {
	cfg      config.JitsiConfig
	bridge   Bridge
	streamID string

	mu      sync.Mutex
	handles map[string]*handle
}

// NewProvider creates a provider publishing on streamID
func NewProvider(cfg config.JitsiConfig, bridge Bridge, streamID string) *Provider {
	return &Provider{
		cfg:      cfg,
		bridge:   bridge,
		streamID: streamID,
		handles:  make(map[string]*handle),
	}
}

func (p *Provider) publish(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	if err := p.bridge.Publish(p.streamID, event, data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event, err)
	}
	return nil
}

type scriptPayload struct {
	URL string `json:"url"`
}

// LoadScript asks the page to load the external API script
func (p *Provider) LoadScript(ctx context.Context) (room.Script, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.bridge.Connected(p.streamID) {
		return nil, room.ErrNoContainer
	}
	if err := p.publish(EventLoadScript, scriptPayload{URL: p.cfg.ScriptURL}); err != nil {
		return nil, err
	}
	return &script{provider: p}, nil
}

type createPayload struct {
	Instance string  `json:"instance"`
	Domain   string  `json:"domain"`
	Options  Options `json:"options"`
}

// Create asks the page to construct a widget
func (p *Provider) Create(ctx context.Context, cfg room.Config) (room.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.bridge.Connected(p.streamID) {
		return nil, room.ErrNoContainer
	}

	h := &handle{provider: p, instance: uuid.NewString()}
	payload := createPayload{
		Instance: h.instance,
		Domain:   p.cfg.Domain,
		Options:  BuildOptions(p.cfg, cfg),
	}

	// Registered first: the page may answer before publish returns
	p.mu.Lock()
	p.handles[h.instance] = h
	p.mu.Unlock()

	if err := p.publish(EventCreate, payload); err != nil {
		p.mu.Lock()
		delete(p.handles, h.instance)
		p.mu.Unlock()
		return nil, err
	}
	return h, nil
}

// Deliver routes an event posted by the page to the widget that emitted it
func (p *Provider) Deliver(instance string, event room.Event) error {
	p.mu.Lock()
	h, ok := p.handles[instance]
	p.mu.Unlock()
	if !ok {
		return ErrUnknownInstance
	}

	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return ErrUnknownInstance
	}
	listener := h.listener
	if listener == nil {
		h.pending = append(h.pending, event)
	}
	h.mu.Unlock()
	if listener != nil {
		listener(event)
	}
	return nil
}

type script struct {
	provider *Provider
	once     sync.Once
}

func (s *script) Release() {
	s.once.Do(func() {
		if err := s.provider.publish(EventReleaseScript, scriptPayload{URL: s.provider.cfg.ScriptURL}); err != nil {
			log.Printf("Error releasing widget script on stream %s: %v", s.provider.streamID, err)
		}
	})
}

type commandPayload struct {
	Instance string `json:"instance"`
	Name     string `json:"name,omitempty"`
}

type handle struct {
	provider *Provider
	instance string

	mu       sync.Mutex
	listener func(room.Event)
	// events that arrived before Subscribe
	pending  []room.Event
	disposed bool
}

func (h *handle) Subscribe(listener func(room.Event)) {
	h.mu.Lock()
	h.listener = listener
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, event := range pending {
		listener(event)
	}
}

func (h *handle) ExecuteCommand(name string) error {
	h.mu.Lock()
	disposed := h.disposed
	h.mu.Unlock()
	if disposed {
		return fmt.Errorf("command %s on disposed widget %s", name, h.instance)
	}
	return h.provider.publish(EventCommand, commandPayload{Instance: h.instance, Name: name})
}

func (h *handle) Dispose() error {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return nil
	}
	h.disposed = true
	h.listener = nil
	h.pending = nil
	h.mu.Unlock()

	h.provider.mu.Lock()
	delete(h.provider.handles, h.instance)
	h.provider.mu.Unlock()

	return h.provider.publish(EventDispose, commandPayload{Instance: h.instance})
}
