package event

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/wellspringlabs/wellspring/pool/pkg/metrics"
)

// BusConfig configures a Bus.
type BusConfig struct {
	Logger *slog.Logger

	// BufferSize is the capacity of each subscriber channel. Defaults to 256.
	BufferSize int
}

func (c *BusConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 256
	}
	return nil
}

// Bus fans ledger events out to in-process subscribers. Publishing never
// blocks: a subscriber that falls behind its buffer loses events rather than
// stalling the ledger.
type Bus struct {
	log        *slog.Logger
	bufferSize int

	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
}

func NewBus(cfg BusConfig) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bus{
		log:        cfg.Logger,
		bufferSize: cfg.BufferSize,
		subs:       make(map[chan Event]struct{}),
	}, nil
}

// Publish fans the event out to all subscribers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(ev.Type)).Inc()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; drop to avoid blocking the ledger
			metrics.EventsDroppedTotal.Inc()
			b.log.Debug("pool/event: dropped event for slow subscriber", "type", ev.Type, "period", ev.Period)
		}
	}
}

// Subscribe returns a buffered channel that receives all events published
// after the call. The channel is closed by Unsubscribe or Close.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, b.bufferSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
}

// Close closes all subscriber channels. Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
