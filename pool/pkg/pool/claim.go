package pool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wellspringlabs/wellspring/pool/pkg/event"
	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/metrics"
)

// pendingClaim is one redistributing period the walk found unclaimed for
// the contributor. Zero shares are kept: marking them claimed keeps the
// walk's short-circuit exhaustive, so settled history is never rescanned.
type pendingClaim struct {
	owner  identity.Account
	number uint64
	share  uint64
	asset  identity.Asset
}

// Claim settles the contributor's unclaimed surplus shares across the given
// owners' chains and pays the total out of custody, one transfer per asset.
// Each chain is walked newest to oldest and the walk stops at the first
// period the contributor already claimed — everything older was settled by
// an earlier claim. Periods still upcoming or active are skipped without
// stopping the walk, since older periods behind them may still be
// outstanding. Returns the total paid out; ErrNothingToClaim when the walk
// finds no surplus.
func (l *Ledger) Claim(ctx context.Context, contributor identity.Account, owners []identity.Account) (uint64, error) {
	start := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	total, err := l.claim(ctx, contributor, owners)
	metrics.ObserveOperation("claim", l.clock.Since(start), err)
	return total, err
}

// ClaimAll is Claim across every owner the contributor has ever funded.
func (l *Ledger) ClaimAll(ctx context.Context, contributor identity.Account) (uint64, error) {
	start := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	owners, err := l.store.SustainedOwners(ctx, contributor)
	if err != nil {
		metrics.ObserveOperation("claim", l.clock.Since(start), err)
		return 0, fmt.Errorf("failed to load sustained owners: %w", err)
	}
	total, err := l.claim(ctx, contributor, owners)
	metrics.ObserveOperation("claim", l.clock.Since(start), err)
	return total, err
}

func (l *Ledger) claim(ctx context.Context, contributor identity.Account, owners []identity.Account) (uint64, error) {
	now := l.clock.Now()

	var (
		pending []pendingClaim
		total   uint64
		walked  = make(map[identity.Account]bool, len(owners))
	)
	for _, owner := range owners {
		if walked[owner] {
			continue
		}
		walked[owner] = true

		number, err := l.store.LatestNumber(ctx, owner)
		if err != nil {
			return 0, fmt.Errorf("failed to load latest period number: %w", err)
		}
		for number != 0 {
			period, err := l.store.Period(ctx, number)
			if err != nil {
				return 0, fmt.Errorf("failed to load period %d: %w", number, err)
			}
			claimed, err := l.store.HasClaimed(ctx, number, contributor)
			if err != nil {
				return 0, fmt.Errorf("failed to load claim mark for period %d: %w", number, err)
			}
			if claimed {
				// Everything older was settled by an earlier claim.
				break
			}
			if period.StateAt(now) == StateRedistributing {
				contributed, err := l.store.Contribution(ctx, number, contributor)
				if err != nil {
					return 0, fmt.Errorf("failed to load contribution for period %d: %w", number, err)
				}
				share := period.ProportionalShare(contributed)
				pending = append(pending, pendingClaim{
					owner:  owner,
					number: number,
					share:  share,
					asset:  period.WantAsset,
				})
				total += share
			}
			number = period.Previous
		}
	}

	if total == 0 {
		return 0, ErrNothingToClaim
	}

	err := l.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		for _, pc := range pending {
			if err := tx.SetClaimed(ctx, pc.number, contributor, true); err != nil {
				return fmt.Errorf("failed to mark period %d claimed: %w", pc.number, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Pay out of custody, one transfer per asset. Chains normally share one
	// asset; per-asset grouping keeps mixed chains correct.
	byAsset := make(map[identity.Asset]uint64)
	for _, pc := range pending {
		byAsset[pc.asset] += pc.share
	}
	assets := make([]identity.Asset, 0, len(byAsset))
	for asset := range byAsset {
		assets = append(assets, asset)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i] < assets[j] })

	paid := make(map[identity.Asset]bool, len(assets))
	for _, asset := range assets {
		amount := byAsset[asset]
		if amount == 0 {
			continue
		}
		if err := l.treasury.TransferOut(ctx, asset, contributor, amount); err != nil {
			rerr := l.unwindClaims(ctx, contributor, pending, paid)
			err = fmt.Errorf("%w: %v", ErrTransferFailed, err)
			if rerr != nil {
				return 0, errors.Join(err, rerr)
			}
			return 0, err
		}
		paid[asset] = true
		metrics.RecordAmount("claim", string(asset), amount)
	}

	l.log.Debug("pool/ledger: settled redistribution claim",
		"contributor", contributor, "owners", len(walked), "periods", len(pending), "total", total)
	for _, pc := range pending {
		if pc.share > 0 {
			l.publish(event.TypeClaimed, pc.owner, contributor, pc.number, pc.share, pc.asset)
		}
	}
	return total, nil
}

// unwindClaims clears the claim marks whose asset payout did not happen. A
// zero-share period carries no asset amount, so its mark belongs to
// whichever group actually holds its asset; unpaid groups roll back fully.
func (l *Ledger) unwindClaims(ctx context.Context, contributor identity.Account, pending []pendingClaim, paid map[identity.Asset]bool) error {
	err := l.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		for _, pc := range pending {
			if paid[pc.asset] {
				continue
			}
			if err := tx.SetClaimed(ctx, pc.number, contributor, false); err != nil {
				return fmt.Errorf("failed to unmark period %d: %w", pc.number, err)
			}
		}
		return nil
	})
	if err != nil {
		l.log.Error("pool/ledger: failed to unwind claim marks after transfer failure",
			"contributor", contributor, "error", err)
		return fmt.Errorf("failed to unwind claim marks: %w", err)
	}
	return nil
}
