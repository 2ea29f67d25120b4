package web

import (
	"sync"

	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/service"
)

// maxFlashes bounds the queue of a browser session that never renders
const maxFlashes = 20

// flashStore queues notifications per browser session until the next render
type flashStore struct {
	mu      sync.Mutex
	pending map[string][]models.Notification
}

func newFlashStore() *flashStore {
	return &flashStore{pending: make(map[string][]models.Notification)}
}

// add queues n for the browser session sid
func (f *flashStore) add(sid string, n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	queue := append(f.pending[sid], n)
	if len(queue) > maxFlashes {
		queue = queue[len(queue)-maxFlashes:]
	}
	f.pending[sid] = queue
}

// pop returns and clears the queued notifications of sid
func (f *flashStore) pop(sid string) []models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	queue := f.pending[sid]
	delete(f.pending, sid)
	return queue
}

// notifier returns a service.Notifier that queues for sid
func (f *flashStore) notifier(sid string) service.Notifier {
	return service.NotifierFunc(func(n models.Notification) {
		f.add(sid, n)
	})
}
