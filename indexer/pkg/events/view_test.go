package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/wellspringlabs/wellspring/indexer/pkg/clickhouse"
	"github.com/wellspringlabs/wellspring/pool/pkg/event"
	wstesting "github.com/wellspringlabs/wellspring/utils/pkg/testing"
)

func testBus(t *testing.T) *event.Bus {
	t.Helper()
	bus, err := event.NewBus(event.BusConfig{Logger: wstesting.NewLogger()})
	require.NoError(t, err)
	return bus
}

func testEvent(typ event.Type, period, amount uint64) event.Event {
	return event.Event{
		ID:     uuid.New(),
		Type:   typ,
		At:     time.Unix(1700000000, 0).UTC(),
		Owner:  "7YcxWqGeHK3yQ2mVTp8uJbNnR5sDvF4aE6gZkLwXjPdM",
		Actor:  "9XseRqGeHK3yQ2mVTp8uJbNnR5sDvF4aE6gZkLwXjPdM",
		Period: period,
		Amount: amount,
		Asset:  "So11111111111111111111111111111111111111112",
	}
}

// tryCountRows is a non-failing count for use inside require.Eventually.
func tryCountRows(db clickhouse.Client) uint64 {
	conn, err := db.Conn(context.Background())
	if err != nil {
		return 0
	}
	defer conn.Close()
	rows, err := conn.Query(context.Background(), "SELECT count() FROM pool_events")
	if err != nil {
		return 0
	}
	defer rows.Close()
	if !rows.Next() {
		return 0
	}
	var count uint64
	if err := rows.Scan(&count); err != nil {
		return 0
	}
	return count
}

// flakyClient fails Conn a fixed number of times before delegating to the
// embedded client.
type flakyClient struct {
	clickhouse.Client
	failures int
	calls    int
}

func (c *flakyClient) Conn(ctx context.Context) (clickhouse.Connection, error) {
	c.calls++
	if c.calls <= c.failures {
		return nil, errors.New("no such database")
	}
	return c.Client.Conn(ctx)
}

func TestWellspring_Indexer_Events_View_NewView(t *testing.T) {
	t.Parallel()

	t.Run("returns error when logger is missing", func(t *testing.T) {
		t.Parallel()
		view, err := NewView(ViewConfig{})
		require.Error(t, err)
		require.Nil(t, view)
		require.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when bus is missing", func(t *testing.T) {
		t.Parallel()
		view, err := NewView(ViewConfig{
			Logger: wstesting.NewLogger(),
		})
		require.Error(t, err)
		require.Nil(t, view)
		require.Contains(t, err.Error(), "event bus is required")
	})

	t.Run("returns error when clickhouse is missing", func(t *testing.T) {
		t.Parallel()
		view, err := NewView(ViewConfig{
			Logger: wstesting.NewLogger(),
			Bus:    testBus(t),
		})
		require.Error(t, err)
		require.Nil(t, view)
		require.Contains(t, err.Error(), "clickhouse connection is required")
	})

	t.Run("returns error when flush interval is zero", func(t *testing.T) {
		t.Parallel()
		view, err := NewView(ViewConfig{
			Logger:     wstesting.NewLogger(),
			Bus:        testBus(t),
			ClickHouse: testClient(t),
		})
		require.Error(t, err)
		require.Nil(t, view)
		require.Contains(t, err.Error(), "flush interval must be greater than 0")
	})

	t.Run("defaults max batch", func(t *testing.T) {
		t.Parallel()
		view, err := NewView(ViewConfig{
			Logger:        wstesting.NewLogger(),
			Bus:           testBus(t),
			ClickHouse:    testClient(t),
			FlushInterval: time.Second,
		})
		require.NoError(t, err)
		require.Equal(t, 100, view.cfg.MaxBatch)
	})
}

func TestWellspring_Indexer_Events_View_Ready(t *testing.T) {
	t.Parallel()

	t.Run("returns false before first flush", func(t *testing.T) {
		t.Parallel()

		view, err := NewView(ViewConfig{
			Logger:        wstesting.NewLogger(),
			Clock:         clockwork.NewFakeClock(),
			Bus:           testBus(t),
			ClickHouse:    testClient(t),
			FlushInterval: time.Second,
		})
		require.NoError(t, err)

		require.False(t, view.Ready(), "view should not be ready before first flush")
	})

	t.Run("returns true after successful flush", func(t *testing.T) {
		t.Parallel()

		view, err := NewView(ViewConfig{
			Logger:        wstesting.NewLogger(),
			Clock:         clockwork.NewFakeClock(),
			Bus:           testBus(t),
			ClickHouse:    testClient(t),
			FlushInterval: time.Second,
		})
		require.NoError(t, err)

		require.NoError(t, view.Flush(context.Background()))
		require.True(t, view.Ready())

		require.NoError(t, view.WaitReady(context.Background()))
	})

	t.Run("wait ready honors context cancellation", func(t *testing.T) {
		t.Parallel()

		view, err := NewView(ViewConfig{
			Logger:        wstesting.NewLogger(),
			Clock:         clockwork.NewFakeClock(),
			Bus:           testBus(t),
			ClickHouse:    testClient(t),
			FlushInterval: time.Second,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.Error(t, view.WaitReady(ctx))
	})
}

func TestWellspring_Indexer_Events_View_Flush(t *testing.T) {
	t.Parallel()

	t.Run("writes buffered events", func(t *testing.T) {
		t.Parallel()

		db := testClient(t)
		view, err := NewView(ViewConfig{
			Logger:        wstesting.NewLogger(),
			Clock:         clockwork.NewFakeClock(),
			Bus:           testBus(t),
			ClickHouse:    db,
			FlushInterval: time.Second,
		})
		require.NoError(t, err)

		view.enqueue(testEvent(event.TypeContributed, 1, 500))
		view.enqueue(testEvent(event.TypeTapped, 1, 200))

		require.NoError(t, view.Flush(context.Background()))
		require.Equal(t, uint64(2), tryCountRows(db))

		// The buffer is empty after a successful flush.
		require.NoError(t, view.Flush(context.Background()))
		require.Equal(t, uint64(2), tryCountRows(db))
	})

	t.Run("returns rows to buffer on failure and retries", func(t *testing.T) {
		t.Parallel()

		db := testClient(t)
		flaky := &flakyClient{Client: db, failures: 1}
		view, err := NewView(ViewConfig{
			Logger:        wstesting.NewLogger(),
			Clock:         clockwork.NewFakeClock(),
			Bus:           testBus(t),
			ClickHouse:    flaky,
			FlushInterval: time.Second,
		})
		require.NoError(t, err)

		view.enqueue(testEvent(event.TypeClaimed, 3, 42))

		require.Error(t, view.Flush(context.Background()))
		require.False(t, view.Ready(), "a failed flush must not mark the view ready")

		view.mu.Lock()
		pending := len(view.pending)
		view.mu.Unlock()
		require.Equal(t, 1, pending, "failed rows should return to the buffer")

		require.NoError(t, view.Flush(context.Background()))
		require.True(t, view.Ready())
		require.Equal(t, uint64(1), tryCountRows(db))
	})
}

func TestWellspring_Indexer_Events_View_Start(t *testing.T) {
	t.Parallel()

	t.Run("flushes once the batch size is reached", func(t *testing.T) {
		t.Parallel()

		db := testClient(t)
		bus := testBus(t)
		view, err := NewView(ViewConfig{
			Logger:        wstesting.NewLogger(),
			Clock:         clockwork.NewFakeClock(),
			Bus:           bus,
			ClickHouse:    db,
			FlushInterval: time.Hour,
			MaxBatch:      2,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		view.Start(ctx)
		require.NoError(t, view.WaitReady(t.Context()))

		bus.Publish(testEvent(event.TypeContributed, 1, 100))
		bus.Publish(testEvent(event.TypeContributed, 1, 150))

		require.Eventually(t, func() bool {
			return tryCountRows(db) == 2
		}, 10*time.Second, 50*time.Millisecond, "batch-size flush should write both events")
	})

	t.Run("flushes on the ticker", func(t *testing.T) {
		t.Parallel()

		db := testClient(t)
		bus := testBus(t)
		clock := clockwork.NewFakeClock()
		view, err := NewView(ViewConfig{
			Logger:        wstesting.NewLogger(),
			Clock:         clock,
			Bus:           bus,
			ClickHouse:    db,
			FlushInterval: time.Second,
		})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		view.Start(ctx)
		require.NoError(t, view.WaitReady(t.Context()))

		bus.Publish(testEvent(event.TypeTapped, 2, 75))

		require.Eventually(t, func() bool {
			clock.Advance(time.Second)
			return tryCountRows(db) == 1
		}, 10*time.Second, 100*time.Millisecond, "ticker flush should write the event")
	})
}
