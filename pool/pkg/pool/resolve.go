package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
)

// resolution is the outcome of resolving which period an operation targets.
// A created period exists only in memory until commitNew persists it; the
// ledger orders commits after any external transfer so a failed operation
// materializes nothing.
type resolution struct {
	period  *Period
	created bool
}

// chainHead loads the owner's latest period and classifies the head of the
// chain. At most the latest period and its direct predecessor matter: a
// configure against a funded active period queues an upcoming successor, so
// an upcoming head can sit directly on top of a still-active period.
func (l *Ledger) chainHead(ctx context.Context, owner identity.Account, now time.Time) (active, upcoming, latest *Period, err error) {
	latestNumber, err := l.store.LatestNumber(ctx, owner)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load latest period number: %w", err)
	}
	if latestNumber == 0 {
		return nil, nil, nil, nil
	}

	latest, err = l.store.Period(ctx, latestNumber)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load period %d: %w", latestNumber, err)
	}

	switch latest.StateAt(now) {
	case StateActive:
		active = latest
	case StateUpcoming:
		upcoming = latest
		if latest.Previous != 0 {
			previous, err := l.store.Period(ctx, latest.Previous)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("failed to load period %d: %w", latest.Previous, err)
			}
			if previous.StateAt(now) == StateActive {
				active = previous
			}
		}
	}
	return active, upcoming, latest, nil
}

// periodToConfigure resolves the period a configure call may write to: the
// active period while it holds no funds, else the queued upcoming period,
// else a new successor. A funded active period is immutable, so its
// reconfiguration queues an upcoming successor starting at its end; a
// dormant chain restarts on a fresh phase at now. An owner with no chain
// gets a fresh, unconfigured period.
func (l *Ledger) periodToConfigure(ctx context.Context, owner identity.Account, now time.Time) (*resolution, error) {
	active, upcoming, latest, err := l.chainHead(ctx, owner, now)
	if err != nil {
		return nil, err
	}
	if active != nil && active.Total == 0 {
		return &resolution{period: active}, nil
	}
	if upcoming != nil {
		return &resolution{period: upcoming}, nil
	}

	number, err := l.store.AllocateNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate period number: %w", err)
	}
	if latest == nil {
		return &resolution{
			period:  &Period{Number: number, Owner: owner, Start: now},
			created: true,
		}, nil
	}
	start := now
	if active != nil {
		start = active.End()
	}
	return &resolution{period: successor(latest, number, start), created: true}, nil
}

// periodToContribute resolves the period an incoming contribution lands in:
// the active period, else the queued upcoming one, else a successor of the
// expired latest with its start aligned to the chain's phase. Returns
// ErrNoPeriod when the owner has never configured a chain.
func (l *Ledger) periodToContribute(ctx context.Context, owner identity.Account, now time.Time) (*resolution, error) {
	active, upcoming, latest, err := l.chainHead(ctx, owner, now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return &resolution{period: active}, nil
	}
	if upcoming != nil {
		return &resolution{period: upcoming}, nil
	}
	if latest == nil {
		return nil, fmt.Errorf("owner %s: %w", owner, ErrNoPeriod)
	}

	number, err := l.store.AllocateNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate period number: %w", err)
	}
	return &resolution{
		period:  successor(latest, number, latest.NextAlignedStart(now)),
		created: true,
	}, nil
}

// commitNew persists a resolved period when resolution created one.
func commitNew(ctx context.Context, tx Store, res *resolution) error {
	if !res.created {
		return nil
	}
	if err := tx.InsertPeriod(ctx, res.period); err != nil {
		return fmt.Errorf("failed to insert period %d: %w", res.period.Number, err)
	}
	if err := tx.SetLatestNumber(ctx, res.period.Owner, res.period.Number); err != nil {
		return fmt.Errorf("failed to update chain head for %s: %w", res.period.Owner, err)
	}
	return nil
}
