package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/wellspringlabs/wellspring/pool/pkg/event"
	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/metrics"
	"github.com/wellspringlabs/wellspring/pool/pkg/treasury"
)

// Config configures a Ledger.
type Config struct {
	Logger   *slog.Logger
	Store    Store
	Treasury treasury.Treasury

	// Clock drives period-window math. Defaults to the real clock.
	Clock clockwork.Clock

	// Bus receives events after successful commits. Optional.
	Bus *event.Bus
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	if c.Store == nil {
		return errors.New("store is required")
	}
	if c.Treasury == nil {
		return errors.New("treasury is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Ledger is the money-pool engine. It grows each owner's period chain
// lazily, records contributions against the open period, pays out owner
// taps from the reserved share, and settles contributor redistribution
// claims across chain history.
//
// All mutating operations serialize on one lock held across the external
// asset transfer, so the read-then-create resolution steps never
// interleave. Queries share a read lock.
type Ledger struct {
	log      *slog.Logger
	clock    clockwork.Clock
	store    Store
	treasury treasury.Treasury
	bus      *event.Bus

	mu sync.RWMutex
}

func New(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		log:      cfg.Logger,
		clock:    cfg.Clock,
		store:    cfg.Store,
		treasury: cfg.Treasury,
		bus:      cfg.Bus,
	}, nil
}

// ConfigureParams is the funding configuration an owner applies to a period.
type ConfigureParams struct {
	Target   uint64
	Duration time.Duration
	Asset    identity.Asset
}

// Configure applies the owner's funding target, window length, and accepted
// asset to the owner's configurable period, creating one when the chain has
// none eligible. A period that already holds funds is never modified; the
// configuration lands on the upcoming period instead. Returns the
// configured period's number.
func (l *Ledger) Configure(ctx context.Context, owner identity.Account, params ConfigureParams) (uint64, error) {
	start := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	number, err := l.configure(ctx, owner, params)
	metrics.ObserveOperation("configure", l.clock.Since(start), err)
	return number, err
}

func (l *Ledger) configure(ctx context.Context, owner identity.Account, params ConfigureParams) (uint64, error) {
	if params.Target == 0 {
		return 0, fmt.Errorf("target must be positive: %w", ErrInvalidAmount)
	}
	if params.Duration < time.Second {
		return 0, fmt.Errorf("duration must be at least one second: %w", ErrInvalidAmount)
	}
	if err := params.Asset.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	now := l.clock.Now()
	res, err := l.periodToConfigure(ctx, owner, now)
	if err != nil {
		return 0, err
	}

	err = l.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := commitNew(ctx, tx, res); err != nil {
			return err
		}
		if err := tx.SetConfiguration(ctx, res.period.Number, params.Target, params.Duration, params.Asset); err != nil {
			return fmt.Errorf("failed to store configuration: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	l.log.Debug("pool/ledger: configured period",
		"owner", owner, "period", res.period.Number, "target", params.Target,
		"duration", params.Duration, "asset", params.Asset, "created", res.created)

	if res.created {
		metrics.PeriodsCreatedTotal.Inc()
		l.publish(event.TypePeriodCreated, owner, owner, res.period.Number, 0, params.Asset)
	}
	l.publish(event.TypePeriodConfigured, owner, owner, res.period.Number, params.Target, params.Asset)
	return res.period.Number, nil
}

// Contribute moves amount of the open period's asset from the caller into
// custody and credits it to the beneficiary (the caller itself when
// beneficiary is empty). The receiving period is the owner's active one,
// the queued upcoming one, or a freshly rolled-forward successor when the
// chain lay dormant. Returns the number of the period that received the
// contribution.
func (l *Ledger) Contribute(ctx context.Context, caller identity.Account, owner identity.Account, amount uint64, beneficiary identity.Account) (uint64, error) {
	start := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	number, err := l.contribute(ctx, caller, owner, amount, beneficiary)
	metrics.ObserveOperation("contribute", l.clock.Since(start), err)
	return number, err
}

func (l *Ledger) contribute(ctx context.Context, caller identity.Account, owner identity.Account, amount uint64, beneficiary identity.Account) (uint64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("contribution must be positive: %w", ErrInvalidAmount)
	}
	if beneficiary == "" {
		beneficiary = caller
	}

	now := l.clock.Now()
	res, err := l.periodToContribute(ctx, owner, now)
	if err != nil {
		return 0, err
	}
	period := res.period
	firstFunding := period.Total == 0

	// Funds first, then state: a failed transfer aborts before anything,
	// including a rolled-forward period, is persisted.
	if err := l.treasury.TransferIn(ctx, period.WantAsset, caller, amount); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	err = l.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := commitNew(ctx, tx, res); err != nil {
			return err
		}
		if err := tx.AddContribution(ctx, period.Number, beneficiary, amount); err != nil {
			return fmt.Errorf("failed to record contribution: %w", err)
		}
		if err := tx.AddSustainedOwner(ctx, beneficiary, owner); err != nil {
			return fmt.Errorf("failed to record sustained owner: %w", err)
		}
		return nil
	})
	if err != nil {
		// The transfer went through but the ledger did not; send the funds
		// back so the failure has no net effect.
		if rerr := l.treasury.TransferOut(ctx, period.WantAsset, caller, amount); rerr != nil {
			l.log.Error("pool/ledger: failed to refund contribution after commit failure",
				"caller", caller, "period", period.Number, "amount", amount, "error", rerr)
			return 0, errors.Join(err, fmt.Errorf("failed to refund contribution: %w", rerr))
		}
		return 0, err
	}

	l.log.Debug("pool/ledger: recorded contribution",
		"owner", owner, "period", period.Number, "beneficiary", beneficiary,
		"amount", amount, "created", res.created, "firstFunding", firstFunding)
	metrics.RecordAmount("contribute", string(period.WantAsset), amount)

	if res.created {
		metrics.PeriodsCreatedTotal.Inc()
		l.publish(event.TypePeriodCreated, owner, beneficiary, period.Number, 0, period.WantAsset)
	}
	if firstFunding {
		l.publish(event.TypePeriodFunded, owner, beneficiary, period.Number, amount, period.WantAsset)
	}
	l.publish(event.TypeContributed, owner, beneficiary, period.Number, amount, period.WantAsset)
	return period.Number, nil
}

// Tap withdraws amount from the period's reserved share and transfers it
// out to the owner. Only the period's owner may tap, and the withdrawal is
// capped by the tappable amount: min(target, total) minus what was already
// tapped.
func (l *Ledger) Tap(ctx context.Context, caller identity.Account, number uint64, amount uint64) error {
	start := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.tap(ctx, caller, number, amount)
	metrics.ObserveOperation("tap", l.clock.Since(start), err)
	return err
}

func (l *Ledger) tap(ctx context.Context, caller identity.Account, number uint64, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("tap must be positive: %w", ErrInvalidAmount)
	}

	period, err := l.store.Period(ctx, number)
	if err != nil {
		return err
	}
	if period.Owner != caller {
		return fmt.Errorf("only the period owner may tap: %w", ErrUnauthorized)
	}
	if tappable := period.TappableAmount(); amount > tappable {
		return fmt.Errorf("tap of %d exceeds tappable %d: %w", amount, tappable, ErrInsufficientFunds)
	}

	tapped := period.Tapped + amount
	err = l.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.SetTapped(ctx, number, tapped)
	})
	if err != nil {
		return fmt.Errorf("failed to record tap: %w", err)
	}

	if err := l.treasury.TransferOut(ctx, period.WantAsset, period.Owner, amount); err != nil {
		rerr := l.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
			return tx.SetTapped(ctx, number, period.Tapped)
		})
		if rerr != nil {
			l.log.Error("pool/ledger: failed to roll back tap after transfer failure",
				"period", number, "amount", amount, "error", rerr)
			return errors.Join(fmt.Errorf("%w: %v", ErrTransferFailed, err), fmt.Errorf("failed to roll back tap: %w", rerr))
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	l.log.Debug("pool/ledger: tapped period", "owner", caller, "period", number, "amount", amount, "tapped", tapped)
	metrics.RecordAmount("tap", string(period.WantAsset), amount)
	l.publish(event.TypeTapped, period.Owner, caller, number, amount, period.WantAsset)
	return nil
}

func (l *Ledger) publish(typ event.Type, owner, actor identity.Account, period uint64, amount uint64, asset identity.Asset) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(event.Event{
		ID:     uuid.New(),
		Type:   typ,
		At:     l.clock.Now(),
		Owner:  owner,
		Actor:  actor,
		Period: period,
		Amount: amount,
		Asset:  asset,
	})
}
