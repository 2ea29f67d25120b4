package web

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/r3labs/sse/v2"
)

// ErrStreamNotFound is returned when publishing on a closed stream
var ErrStreamNotFound = errors.New("stream not found")

// StreamHooks are run when the first page attaches to a stream and when
// the last one goes away
type StreamHooks struct {
	OnAttach func(streamID string)
	OnDetach func(streamID string)
}

type streamEntry struct {
	hooks       StreamHooks
	subscribers int
	attached    bool
	createdAt   time.Time
}

// SSEManager owns one server-sent event stream per mounted view
type SSEManager struct {
	server *sse.Server

	streams      map[string]*streamEntry
	streamsMutex sync.RWMutex

	staleAfter time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

// NewSSEManager creates a manager and starts its heartbeat and cleanup loops
func NewSSEManager() *SSEManager {
	sm := newSSEManager(2 * time.Minute)
	go sm.heartbeat(15 * time.Second)
	go sm.cleanupStaleStreams(30 * time.Second)
	return sm
}

func newSSEManager(staleAfter time.Duration) *SSEManager {
	sm := &SSEManager{
		streams:    make(map[string]*streamEntry),
		staleAfter: staleAfter,
		done:       make(chan struct{}),
	}

	server := sse.New()
	// Commands are only meaningful to the page that was live when they were sent
	server.AutoReplay = false
	server.SplitData = true
	server.Headers = map[string]string{
		"X-Accel-Buffering": "no",
		"Cache-Control":     "no-cache, no-transform",
	}
	server.OnSubscribe = sm.handleSubscribe
	server.OnUnsubscribe = sm.handleUnsubscribe
	sm.server = server

	return sm
}

// OpenStream registers a stream for a view
func (sm *SSEManager) OpenStream(streamID string, hooks StreamHooks) {
	sm.streamsMutex.Lock()
	sm.streams[streamID] = &streamEntry{hooks: hooks, createdAt: time.Now()}
	sm.streamsMutex.Unlock()

	sm.server.CreateStream(streamID)
}

// CloseStream removes a stream and disconnects its subscribers
func (sm *SSEManager) CloseStream(streamID string) {
	sm.streamsMutex.Lock()
	delete(sm.streams, streamID)
	sm.streamsMutex.Unlock()

	sm.server.RemoveStream(streamID)
}

// StreamCount returns the number of open streams
func (sm *SSEManager) StreamCount() int {
	sm.streamsMutex.RLock()
	defer sm.streamsMutex.RUnlock()
	return len(sm.streams)
}

func (sm *SSEManager) handleSubscribe(streamID string, _ *sse.Subscriber) {
	sm.streamsMutex.Lock()
	entry, ok := sm.streams[streamID]
	if !ok {
		sm.streamsMutex.Unlock()
		return
	}
	entry.subscribers++
	first := !entry.attached
	entry.attached = true
	hook := entry.hooks.OnAttach
	sm.streamsMutex.Unlock()

	log.Printf("SSE client attached to stream %s", streamID)
	if first && hook != nil {
		hook(streamID)
	}
}

func (sm *SSEManager) handleUnsubscribe(streamID string, _ *sse.Subscriber) {
	sm.streamsMutex.Lock()
	entry, ok := sm.streams[streamID]
	if !ok {
		sm.streamsMutex.Unlock()
		return
	}
	entry.subscribers--
	if entry.subscribers > 0 {
		sm.streamsMutex.Unlock()
		return
	}
	delete(sm.streams, streamID)
	hook := entry.hooks.OnDetach
	sm.streamsMutex.Unlock()

	log.Printf("SSE client detached from stream %s", streamID)
	if hook != nil {
		hook(streamID)
	}
	sm.server.RemoveStream(streamID)
}

// Connected reports whether a page is listening on the stream
func (sm *SSEManager) Connected(streamID string) bool {
	sm.streamsMutex.RLock()
	defer sm.streamsMutex.RUnlock()
	entry, ok := sm.streams[streamID]
	return ok && entry.subscribers > 0
}

// Publish sends a named event on a stream
func (sm *SSEManager) Publish(streamID, event string, payload []byte) error {
	if len(payload) == 0 {
		// An empty data field ends the client's stream
		payload = []byte("{}")
	}
	if !sm.server.StreamExists(streamID) {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, streamID)
	}
	if !sm.server.TryPublish(streamID, &sse.Event{Event: []byte(event), Data: payload}) {
		return fmt.Errorf("stream %s is not accepting events", streamID)
	}
	return nil
}

// ServeHTTP implements the http.Handler interface for SSE connections
func (sm *SSEManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isEventStreamSupported(r) {
		http.Error(w, "This endpoint requires EventStream support", http.StatusNotAcceptable)
		return
	}

	streamID := r.URL.Query().Get("stream")
	if streamID == "" || !sm.server.StreamExists(streamID) {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}

	sm.server.ServeHTTP(w, r)
}

// heartbeat keeps idle connections open through proxies
func (sm *SSEManager) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case now := <-ticker.C:
			comment := []byte("heartbeat " + now.Format(time.RFC3339))
			sm.streamsMutex.RLock()
			ids := make([]string, 0, len(sm.streams))
			for id := range sm.streams {
				ids = append(ids, id)
			}
			sm.streamsMutex.RUnlock()

			for _, id := range ids {
				sm.server.TryPublish(id, &sse.Event{Comment: comment})
			}
		}
	}
}

// cleanupStaleStreams periodically closes streams no page ever attached to
func (sm *SSEManager) cleanupStaleStreams(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case now := <-ticker.C:
			sm.removeStale(now)
		}
	}
}

func (sm *SSEManager) removeStale(now time.Time) {
	threshold := now.Add(-sm.staleAfter)

	var stale []string
	var hooks []func(string)
	sm.streamsMutex.Lock()
	for id, entry := range sm.streams {
		if !entry.attached && entry.createdAt.Before(threshold) {
			stale = append(stale, id)
			hooks = append(hooks, entry.hooks.OnDetach)
			delete(sm.streams, id)
		}
	}
	sm.streamsMutex.Unlock()

	for i, id := range stale {
		log.Printf("Removed stale SSE stream: %s", id)
		if hooks[i] != nil {
			hooks[i](id)
		}
		sm.server.RemoveStream(id)
	}
}

// Shutdown detaches every stream and closes all connections
func (sm *SSEManager) Shutdown() {
	sm.closeOnce.Do(func() {
		close(sm.done)

		sm.streamsMutex.Lock()
		streams := sm.streams
		sm.streams = make(map[string]*streamEntry)
		sm.streamsMutex.Unlock()

		for id, entry := range streams {
			if entry.hooks.OnDetach != nil {
				entry.hooks.OnDetach(id)
			}
		}
		sm.server.Close()
	})
}

// isEventStreamSupported checks whether the client accepts event streams
func isEventStreamSupported(r *http.Request) bool {
	accepts := r.Header.Get("Accept")
	return accepts == "" ||
		strings.Contains(accepts, "*/*") ||
		strings.Contains(accepts, "text/event-stream")
}
