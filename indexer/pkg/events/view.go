package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wellspringlabs/wellspring/indexer/pkg/clickhouse"
	"github.com/wellspringlabs/wellspring/indexer/pkg/metrics"
	"github.com/wellspringlabs/wellspring/pool/pkg/event"
	"github.com/wellspringlabs/wellspring/utils/pkg/retry"
)

type ViewConfig struct {
	Logger        *slog.Logger
	Clock         clockwork.Clock
	Bus           *event.Bus
	ClickHouse    clickhouse.Client
	FlushInterval time.Duration

	// MaxBatch flushes early once this many events are buffered.
	// Defaults to 100.
	MaxBatch int
}

func (cfg *ViewConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Bus == nil {
		return errors.New("event bus is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse connection is required")
	}
	if cfg.FlushInterval <= 0 {
		return errors.New("flush interval must be greater than 0")
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 100
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// View consumes the ledger event bus and batches events into ClickHouse.
// Events survive a failed flush by returning to the buffer; the buffer is
// bounded, so a ClickHouse outage long enough to fill it drops the oldest
// events rather than growing without limit.
type View struct {
	log   *slog.Logger
	cfg   ViewConfig
	store *Store

	mu      sync.Mutex
	pending []Row

	readyOnce sync.Once
	readyCh   chan struct{}
}

func NewView(cfg ViewConfig) (*View, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := NewStore(StoreConfig{
		Logger:     cfg.Logger,
		ClickHouse: cfg.ClickHouse,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	return &View{
		log:     cfg.Logger,
		cfg:     cfg,
		store:   store,
		readyCh: make(chan struct{}),
	}, nil
}

func (v *View) Ready() bool {
	select {
	case <-v.readyCh:
		return true
	default:
		return false
	}
}

func (v *View) WaitReady(ctx context.Context) error {
	select {
	case <-v.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for event view: %w", ctx.Err())
	}
}

// Start subscribes to the bus and runs the flush loop until ctx is done.
func (v *View) Start(ctx context.Context) {
	go func() {
		v.log.Info("events: starting flush loop", "interval", v.cfg.FlushInterval, "max_batch", v.cfg.MaxBatch)

		ch := v.cfg.Bus.Subscribe()
		defer v.cfg.Bus.Unsubscribe(ch)

		// Ready after the first flush attempt: the loop is subscribed and
		// flushing, and readiness must not wait for traffic to arrive.
		v.safeFlush(ctx)

		ticker := v.cfg.Clock.NewTicker(v.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				v.drain(ch)
				v.finalFlush()
				return
			case ev, ok := <-ch:
				if !ok {
					v.finalFlush()
					return
				}
				if v.enqueue(ev) >= v.cfg.MaxBatch {
					v.safeFlush(ctx)
				}
			case <-ticker.Chan():
				v.safeFlush(ctx)
			}
		}
	}()
}

// enqueue buffers one event and returns the new buffer length.
func (v *View) enqueue(ev event.Event) int {
	row := Row{
		ID:     ev.ID,
		Time:   ev.At.UTC(),
		Type:   string(ev.Type),
		Owner:  ev.Owner.String(),
		Actor:  ev.Actor.String(),
		Period: ev.Period,
		Amount: ev.Amount,
		Asset:  string(ev.Asset),
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = append(v.pending, row)
	v.trimLocked()
	metrics.EventsPending.Set(float64(len(v.pending)))
	return len(v.pending)
}

// trimLocked drops the oldest buffered events once the buffer exceeds ten
// batches. Callers must hold v.mu.
func (v *View) trimLocked() {
	limit := v.cfg.MaxBatch * 10
	if excess := len(v.pending) - limit; excess > 0 {
		v.log.Warn("events: flush buffer overflow, dropping oldest events", "dropped", excess)
		metrics.EventsDroppedTotal.Add(float64(excess))
		v.pending = append(v.pending[:0], v.pending[excess:]...)
	}
}

func (v *View) drain(ch chan event.Event) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			v.enqueue(ev)
		default:
			return
		}
	}
}

// finalFlush writes whatever is still buffered during shutdown. It uses a
// fresh context because the loop's context is already cancelled.
func (v *View) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	v.safeFlush(ctx)
}

func (v *View) safeFlush(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("events: flush panicked", "panic", r)
			metrics.ViewFlushTotal.WithLabelValues("panic").Inc()
		}
	}()

	if err := v.Flush(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		v.log.Error("events: flush failed", "error", err)
	}
}

// Flush writes all buffered events to ClickHouse. On failure the rows return
// to the front of the buffer for the next attempt.
func (v *View) Flush(ctx context.Context) error {
	v.mu.Lock()
	rows := v.pending
	v.pending = nil
	v.mu.Unlock()

	flushStart := time.Now()
	defer func() {
		metrics.ViewFlushDuration.Observe(time.Since(flushStart).Seconds())
	}()

	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
		return v.store.AppendEvents(ctx, rows)
	})
	if err != nil {
		v.mu.Lock()
		v.pending = append(rows, v.pending...)
		v.trimLocked()
		metrics.EventsPending.Set(float64(len(v.pending)))
		v.mu.Unlock()
		metrics.ViewFlushTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to append %d events: %w", len(rows), err)
	}

	if len(rows) > 0 {
		v.log.Debug("events: flushed", "count", len(rows), "duration", time.Since(flushStart).String())
	}

	v.mu.Lock()
	metrics.EventsPending.Set(float64(len(v.pending)))
	v.mu.Unlock()

	v.readyOnce.Do(func() {
		close(v.readyCh)
		v.log.Info("events: view is now ready")
	})

	metrics.ViewFlushTotal.WithLabelValues("success").Inc()
	return nil
}
