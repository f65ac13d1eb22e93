// Package events indexes ledger events into ClickHouse for history and
// analytics queries. The view consumes the in-process event bus and the
// store batches rows into the pool_events table.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wellspringlabs/wellspring/indexer/pkg/clickhouse"
	"github.com/wellspringlabs/wellspring/indexer/pkg/metrics"
)

type StoreConfig struct {
	Logger     *slog.Logger
	ClickHouse clickhouse.Client
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ClickHouse == nil {
		return errors.New("clickhouse connection is required")
	}
	return nil
}

type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// Row is one ledger event as written to the pool_events table. The
// ingested_at column is filled by the server default.
type Row struct {
	ID     uuid.UUID
	Time   time.Time
	Type   string
	Owner  string
	Actor  string
	Period uint64
	Amount uint64
	Asset  string
}

func (s *Store) AppendEvents(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	s.log.Debug("events/store: appending events", "count", len(rows))

	conn, err := s.cfg.ClickHouse.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ClickHouse connection: %w", err)
	}
	defer conn.Close()

	batch, err := conn.PrepareBatch(ctx, "INSERT INTO pool_events (id, time, type, owner, actor, period, amount, asset)")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, r := range rows {
		if err := batch.Append(
			r.ID,
			r.Time,
			r.Type,
			r.Owner,
			r.Actor,
			r.Period,
			r.Amount,
			r.Asset,
		); err != nil {
			return fmt.Errorf("failed to append event to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send event batch: %w", err)
	}

	for _, r := range rows {
		metrics.EventsIndexedTotal.WithLabelValues(r.Type).Inc()
	}

	return nil
}
