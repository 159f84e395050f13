package rediscache

import (
	"context"
	"sync"

	"github.com/bobmcallan/signum/internal/interfaces"
	"github.com/bobmcallan/signum/internal/models"
)

// MemoryBroadcaster is the in-process fallback used when no Redis
// endpoint is configured. Events fan out to all current subscribers.
type MemoryBroadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan models.TaskProgressEvent
	nextID int
	closed bool
}

// NewMemoryBroadcaster creates an in-process progress broadcaster
func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{subs: make(map[int]chan models.TaskProgressEvent)}
}

func (b *MemoryBroadcaster) Publish(_ context.Context, event models.TaskProgressEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than block publishers
		}
	}
	return nil
}

func (b *MemoryBroadcaster) Subscribe(_ context.Context) (<-chan models.TaskProgressEvent, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan models.TaskProgressEvent, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

func (b *MemoryBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	return nil
}

// Compile-time check
var _ interfaces.ProgressBroadcaster = (*MemoryBroadcaster)(nil)
