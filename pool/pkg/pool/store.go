package pool

import (
	"context"
	"time"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
)

// Store persists period records, per-period accounting, and the chain
// indices. Writes issued inside WithTx commit atomically; reads inside the
// transaction observe its own writes. Stores do not enforce domain
// invariants — the Ledger serializes mutations and orders its writes so a
// failed operation leaves nothing behind.
type Store interface {
	// WithTx runs fn against a transactional view of the store and commits
	// its writes when fn returns nil.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// AllocateNumber returns the next period number. Numbers are unique
	// across all owners and monotonically increasing; numbers allocated for
	// operations that later fail stay burned.
	AllocateNumber(ctx context.Context) (uint64, error)

	// Period returns the period with the given number, or ErrNoPeriod.
	Period(ctx context.Context, number uint64) (*Period, error)

	// InsertPeriod stores a newly created period record.
	InsertPeriod(ctx context.Context, p *Period) error

	// SetConfiguration overwrites the period's target, duration, and asset.
	SetConfiguration(ctx context.Context, number uint64, target uint64, duration time.Duration, asset identity.Asset) error

	// AddContribution adds amount to the account's contribution and to the
	// period's total.
	AddContribution(ctx context.Context, number uint64, account identity.Account, amount uint64) error

	// SetTapped overwrites the period's tapped counter.
	SetTapped(ctx context.Context, number uint64, tapped uint64) error

	// Contribution returns the amount the account has contributed to the
	// period, 0 if none.
	Contribution(ctx context.Context, number uint64, account identity.Account) (uint64, error)

	// SumContributions returns the sum of all contributions recorded for
	// the period.
	SumContributions(ctx context.Context, number uint64) (uint64, error)

	// HasClaimed reports whether the account's surplus share for the period
	// has been paid out.
	HasClaimed(ctx context.Context, number uint64, account identity.Account) (bool, error)

	// SetClaimed marks or unmarks the account's share for the period as
	// paid. Unmarking exists only so a failed payout can be unwound.
	SetClaimed(ctx context.Context, number uint64, account identity.Account, claimed bool) error

	// LatestNumber returns the newest period number in the owner's chain,
	// 0 if the owner has none.
	LatestNumber(ctx context.Context, owner identity.Account) (uint64, error)

	// SetLatestNumber points the owner's chain head at the given period.
	SetLatestNumber(ctx context.Context, owner identity.Account, number uint64) error

	// SustainedOwners returns, in stable order, the owners the contributor
	// has ever contributed to.
	SustainedOwners(ctx context.Context, contributor identity.Account) ([]identity.Account, error)

	// AddSustainedOwner records that the contributor has funded the owner.
	// Recording an existing pair is a no-op.
	AddSustainedOwner(ctx context.Context, contributor, owner identity.Account) error
}
