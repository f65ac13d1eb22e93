package pool

import "errors"

var (
	// ErrInvalidAmount rejects a non-positive amount or malformed
	// configuration before any state is touched.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNoPeriod means no period resolves for the owner or number.
	ErrNoPeriod = errors.New("no such period")

	// ErrUnauthorized rejects a tap by anyone but the period's owner.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInsufficientFunds rejects a tap beyond the period's tappable
	// amount.
	ErrInsufficientFunds = errors.New("insufficient tappable funds")

	// ErrTransferFailed wraps a failure of the external asset transfer. The
	// operation that hit it left no ledger mutation behind.
	ErrTransferFailed = errors.New("asset transfer failed")

	// ErrNothingToClaim means the redistribution walk found no unclaimed
	// surplus.
	ErrNothingToClaim = errors.New("nothing to claim")
)
