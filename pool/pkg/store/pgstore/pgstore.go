// Package pgstore persists the pool ledger in PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
)

// querier is the slice of pgx shared by a connection pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Config configures a Postgres store.
type Config struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Pool == nil {
		return errors.New("pool is required")
	}
	return nil
}

// Postgres implements pool.Store on a pgx connection pool. Amounts live in
// BIGINT columns, so they must stay below 2^63.
type Postgres struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	db   querier
}

func New(cfg Config) (*Postgres, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Postgres{log: cfg.Logger, pool: cfg.Pool, db: cfg.Pool}, nil
}

// WithTx runs fn inside one database transaction. Called on a store that is
// already transactional, fn simply joins the open transaction.
func (p *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context, tx pool.Store) error) error {
	if p.pool == nil {
		return fn(ctx, p)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Postgres{log: p.log, db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (p *Postgres) AllocateNumber(ctx context.Context) (uint64, error) {
	var number int64
	if err := p.db.QueryRow(ctx, `SELECT nextval('pool_period_numbers')`).Scan(&number); err != nil {
		return 0, fmt.Errorf("failed to allocate period number: %w", err)
	}
	return uint64(number), nil
}

func (p *Postgres) Period(ctx context.Context, number uint64) (*pool.Period, error) {
	var (
		period                                     pool.Period
		num, target, total, secs, tapped, previous int64
		owner, asset                               string
	)
	err := p.db.QueryRow(ctx, `
		SELECT number, owner, want_asset, target, total, start_at, duration_secs, tapped, previous
		FROM pool_periods
		WHERE number = $1
	`, int64(number)).Scan(&num, &owner, &asset, &target, &total, &period.Start, &secs, &tapped, &previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, pool.ErrNoPeriod
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load period %d: %w", number, err)
	}

	period.Number = uint64(num)
	period.Owner = identity.Account(owner)
	period.WantAsset = identity.Asset(asset)
	period.Target = uint64(target)
	period.Total = uint64(total)
	period.Duration = time.Duration(secs) * time.Second
	period.Tapped = uint64(tapped)
	period.Previous = uint64(previous)
	return &period, nil
}

func (p *Postgres) InsertPeriod(ctx context.Context, period *pool.Period) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO pool_periods (number, owner, want_asset, target, total, start_at, duration_secs, tapped, previous)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		int64(period.Number), string(period.Owner), string(period.WantAsset),
		int64(period.Target), int64(period.Total), period.Start,
		int64(period.Duration/time.Second), int64(period.Tapped), int64(period.Previous),
	)
	if err != nil {
		return fmt.Errorf("failed to insert period %d: %w", period.Number, err)
	}
	return nil
}

func (p *Postgres) SetConfiguration(ctx context.Context, number uint64, target uint64, duration time.Duration, asset identity.Asset) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE pool_periods
		SET target = $2, duration_secs = $3, want_asset = $4
		WHERE number = $1
	`, int64(number), int64(target), int64(duration/time.Second), string(asset))
	if err != nil {
		return fmt.Errorf("failed to configure period %d: %w", number, err)
	}
	if tag.RowsAffected() == 0 {
		return pool.ErrNoPeriod
	}
	return nil
}

func (p *Postgres) AddContribution(ctx context.Context, number uint64, account identity.Account, amount uint64) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO pool_contributions (period_number, account, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (period_number, account)
		DO UPDATE SET amount = pool_contributions.amount + EXCLUDED.amount
	`, int64(number), string(account), int64(amount))
	if err != nil {
		return fmt.Errorf("failed to record contribution: %w", err)
	}

	tag, err := p.db.Exec(ctx, `
		UPDATE pool_periods SET total = total + $2 WHERE number = $1
	`, int64(number), int64(amount))
	if err != nil {
		return fmt.Errorf("failed to update period total: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pool.ErrNoPeriod
	}
	return nil
}

func (p *Postgres) SetTapped(ctx context.Context, number uint64, tapped uint64) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE pool_periods SET tapped = $2 WHERE number = $1
	`, int64(number), int64(tapped))
	if err != nil {
		return fmt.Errorf("failed to update tapped amount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pool.ErrNoPeriod
	}
	return nil
}

func (p *Postgres) Contribution(ctx context.Context, number uint64, account identity.Account) (uint64, error) {
	var amount int64
	err := p.db.QueryRow(ctx, `
		SELECT amount FROM pool_contributions WHERE period_number = $1 AND account = $2
	`, int64(number), string(account)).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load contribution: %w", err)
	}
	return uint64(amount), nil
}

func (p *Postgres) SumContributions(ctx context.Context, number uint64) (uint64, error) {
	var sum int64
	err := p.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM pool_contributions WHERE period_number = $1
	`, int64(number)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum contributions: %w", err)
	}
	return uint64(sum), nil
}

func (p *Postgres) HasClaimed(ctx context.Context, number uint64, account identity.Account) (bool, error) {
	var claimed bool
	err := p.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM pool_claims WHERE period_number = $1 AND account = $2)
	`, int64(number), string(account)).Scan(&claimed)
	if err != nil {
		return false, fmt.Errorf("failed to load claim mark: %w", err)
	}
	return claimed, nil
}

func (p *Postgres) SetClaimed(ctx context.Context, number uint64, account identity.Account, claimed bool) error {
	var err error
	if claimed {
		_, err = p.db.Exec(ctx, `
			INSERT INTO pool_claims (period_number, account)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, int64(number), string(account))
	} else {
		_, err = p.db.Exec(ctx, `
			DELETE FROM pool_claims WHERE period_number = $1 AND account = $2
		`, int64(number), string(account))
	}
	if err != nil {
		return fmt.Errorf("failed to update claim mark: %w", err)
	}
	return nil
}

func (p *Postgres) LatestNumber(ctx context.Context, owner identity.Account) (uint64, error) {
	var number int64
	err := p.db.QueryRow(ctx, `
		SELECT latest_number FROM pool_chain_heads WHERE owner = $1
	`, string(owner)).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load chain head: %w", err)
	}
	return uint64(number), nil
}

func (p *Postgres) SetLatestNumber(ctx context.Context, owner identity.Account, number uint64) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO pool_chain_heads (owner, latest_number)
		VALUES ($1, $2)
		ON CONFLICT (owner) DO UPDATE SET latest_number = EXCLUDED.latest_number
	`, string(owner), int64(number))
	if err != nil {
		return fmt.Errorf("failed to update chain head: %w", err)
	}
	return nil
}

func (p *Postgres) SustainedOwners(ctx context.Context, account identity.Account) ([]identity.Account, error) {
	rows, err := p.db.Query(ctx, `
		SELECT owner FROM pool_sustained_owners WHERE account = $1 ORDER BY ordinal
	`, string(account))
	if err != nil {
		return nil, fmt.Errorf("failed to load sustained owners: %w", err)
	}
	defer rows.Close()

	var owners []identity.Account
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan sustained owner: %w", err)
		}
		owners = append(owners, identity.Account(owner))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sustained owners: %w", err)
	}
	return owners, nil
}

func (p *Postgres) AddSustainedOwner(ctx context.Context, account identity.Account, owner identity.Account) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO pool_sustained_owners (account, owner)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, string(account), string(owner))
	if err != nil {
		return fmt.Errorf("failed to record sustained owner: %w", err)
	}
	return nil
}
