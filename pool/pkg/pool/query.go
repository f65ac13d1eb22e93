package pool

import (
	"context"
	"fmt"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
)

// PeriodByNumber returns a copy of the period record.
func (l *Ledger) PeriodByNumber(ctx context.Context, number uint64) (*Period, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.Period(ctx, number)
}

// LatestPeriod returns the newest period on the owner's chain.
func (l *Ledger) LatestPeriod(ctx context.Context, owner identity.Account) (*Period, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	number, err := l.store.LatestNumber(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest period number: %w", err)
	}
	if number == 0 {
		return nil, ErrNoPeriod
	}
	return l.store.Period(ctx, number)
}

// ActivePeriod returns the period on the owner's chain that is active right
// now, or ErrNoPeriod when the chain is empty or between active windows.
func (l *Ledger) ActivePeriod(ctx context.Context, owner identity.Account) (*Period, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	active, _, _, err := l.chainHead(ctx, owner, l.clock.Now())
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, ErrNoPeriod
	}
	return active, nil
}

// UpcomingPeriod returns the period on the owner's chain that has not opened
// yet, or ErrNoPeriod when none is staged.
func (l *Ledger) UpcomingPeriod(ctx context.Context, owner identity.Account) (*Period, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, upcoming, _, err := l.chainHead(ctx, owner, l.clock.Now())
	if err != nil {
		return nil, err
	}
	if upcoming == nil {
		return nil, ErrNoPeriod
	}
	return upcoming, nil
}

// ContributionOf returns how much the account put into the period.
func (l *Ledger) ContributionOf(ctx context.Context, number uint64, account identity.Account) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, err := l.store.Period(ctx, number); err != nil {
		return 0, err
	}
	return l.store.Contribution(ctx, number, account)
}

// TappableOf returns how much of the period's reserved funds the owner can
// still withdraw.
func (l *Ledger) TappableOf(ctx context.Context, number uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	period, err := l.store.Period(ctx, number)
	if err != nil {
		return 0, err
	}
	return period.TappableAmount(), nil
}

// UnclaimedShare returns the surplus share the account could claim from the
// period right now. Zero when the period is not redistributing yet, when the
// account already claimed, or when its share truncates to nothing.
func (l *Ledger) UnclaimedShare(ctx context.Context, number uint64, account identity.Account) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	period, err := l.store.Period(ctx, number)
	if err != nil {
		return 0, err
	}
	if period.StateAt(l.clock.Now()) != StateRedistributing {
		return 0, nil
	}
	claimed, err := l.store.HasClaimed(ctx, number, account)
	if err != nil {
		return 0, fmt.Errorf("failed to load claim mark: %w", err)
	}
	if claimed {
		return 0, nil
	}
	contributed, err := l.store.Contribution(ctx, number, account)
	if err != nil {
		return 0, err
	}
	return period.ProportionalShare(contributed), nil
}

// SustainedOwnersOf returns every owner whose chain the account has funded.
func (l *Ledger) SustainedOwnersOf(ctx context.Context, account identity.Account) ([]identity.Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.store.SustainedOwners(ctx, account)
}
