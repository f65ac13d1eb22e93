package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wellspringlabs/wellspring/indexer/pkg/clickhouse"
	"github.com/wellspringlabs/wellspring/indexer/pkg/events"
	"github.com/wellspringlabs/wellspring/pool/pkg/event"
)

type Config struct {
	Logger     *slog.Logger
	Clock      clockwork.Clock
	Bus        *event.Bus
	ClickHouse clickhouse.Client

	// FlushInterval controls how often buffered ledger events are written
	// to ClickHouse. Defaults to 5 seconds.
	FlushInterval time.Duration

	// MaxBatch flushes early once this many events are buffered.
	MaxBatch int

	// MigrationsEnable runs ClickHouse migrations before the views start.
	MigrationsEnable bool
	MigrationsConfig clickhouse.MigrationConfig
}

func (cfg *Config) Validate() error {
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
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Indexer owns the ClickHouse views fed by the ledger event bus.
type Indexer struct {
	log *slog.Logger
	cfg Config

	events *events.View

	startedAt time.Time
}

func New(ctx context.Context, cfg Config) (*Indexer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.MigrationsEnable {
		// Run ClickHouse migrations to ensure tables exist
		if err := clickhouse.RunMigrations(ctx, cfg.Logger, cfg.MigrationsConfig); err != nil {
			return nil, fmt.Errorf("failed to run ClickHouse migrations: %w", err)
		}
		cfg.Logger.Info("ClickHouse migrations completed")
	}

	eventsView, err := events.NewView(events.ViewConfig{
		Logger:        cfg.Logger,
		Clock:         cfg.Clock,
		Bus:           cfg.Bus,
		ClickHouse:    cfg.ClickHouse,
		FlushInterval: cfg.FlushInterval,
		MaxBatch:      cfg.MaxBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create events view: %w", err)
	}

	i := &Indexer{
		log: cfg.Logger,
		cfg: cfg,

		events: eventsView,
	}

	return i, nil
}

func (i *Indexer) Ready() bool {
	return i.events.Ready()
}

// WaitReady blocks until the events view is subscribed and flushing.
func (i *Indexer) WaitReady(ctx context.Context) error {
	return i.events.WaitReady(ctx)
}

func (i *Indexer) Start(ctx context.Context) {
	i.startedAt = i.cfg.Clock.Now()
	i.events.Start(ctx)
}

// Flush forces a synchronous flush of buffered events.
func (i *Indexer) Flush(ctx context.Context) error {
	return i.events.Flush(ctx)
}

func (i *Indexer) Close() error {
	return nil
}
