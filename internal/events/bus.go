package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/fastprodman/creditsettle/internal/metrics"
)

// Bus fans events out to in-process subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Settlement
	nextID int
	buffer int
	closed bool
	log    *slog.Logger
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: map[int]chan Settlement{}, buffer: buffer, log: logging.Component("events")}
}

// Subscribe returns a channel of future events and a func that detaches it.
func (b *Bus) Subscribe() (<-chan Settlement, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Settlement, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *Bus) Publish(_ context.Context, ev Settlement) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
			metrics.SettlementEvents.WithLabelValues("bus", "delivered").Inc()
		default:
			metrics.SettlementEvents.WithLabelValues("bus", "dropped").Inc()
			b.log.Warn("subscriber buffer full, event dropped", "kind", ev.Kind, "user_id", ev.UserID)
		}
	}

	return nil
}

// Close detaches and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
