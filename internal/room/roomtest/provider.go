// Package roomtest provides an in-memory room.Provider that records every
// call made to it.
package roomtest

import (
	"context"
	"sync"

	"github.com/navikt/liveroom/internal/room"
)

// Provider is a fake room.Provider
type Provider struct {
	mu sync.Mutex

	// ScriptErr and CreateErr make the corresponding step fail
	ScriptErr error
	CreateErr error

	ScriptLoads    int
	ScriptReleases int
	Configs        []room.Config
	Handles        []*Handle
}

// LoadScript implements room.Provider
func (p *Provider) LoadScript(context.Context) (room.Script, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScriptErr != nil {
		return nil, p.ScriptErr
	}
	p.ScriptLoads++
	return &script{provider: p}, nil
}

// Create implements room.Provider
func (p *Provider) Create(_ context.Context, cfg room.Config) (room.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	h := &Handle{}
	p.Handles = append(p.Handles, h)
	return h, nil
}

// Created returns the number of handles constructed
func (p *Provider) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Handles)
}

// Releases returns how many times a script was released
func (p *Provider) Releases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ScriptReleases
}

// Last returns the most recently created handle, or nil
func (p *Provider) Last() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Handles) == 0 {
		return nil
	}
	return p.Handles[len(p.Handles)-1]
}

type script struct {
	provider *Provider
}

func (s *script) Release() {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	s.provider.ScriptReleases++
}

// Handle is a fake room.Handle
type Handle struct {
	mu       sync.Mutex
	listener func(room.Event)
	commands []string
	disposed bool
}

// Subscribe implements room.Handle
func (h *Handle) Subscribe(listener func(room.Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = listener
}

// ExecuteCommand implements room.Handle
func (h *Handle) ExecuteCommand(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, name)
	return nil
}

// Dispose implements room.Handle
func (h *Handle) Dispose() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposed = true
	return nil
}

// Emit delivers an event to the subscribed listener
func (h *Handle) Emit(event room.Event) {
	h.mu.Lock()
	listener := h.listener
	h.mu.Unlock()
	if listener != nil {
		listener(event)
	}
}

// Commands returns the commands executed so far
func (h *Handle) Commands() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commands...)
}

// Disposed reports whether Dispose was called
func (h *Handle) Disposed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposed
}
