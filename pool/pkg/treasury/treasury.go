package treasury

import (
	"context"
	"errors"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
)

// ErrInsufficientBalance is returned when a transfer exceeds the source
// balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Treasury moves asset value between external accounts and pool custody.
// The ledger calls it synchronously while holding its operation lock; a
// returned error aborts the ledger operation with no partial effect.
type Treasury interface {
	// TransferIn moves amount of asset from the account into pool custody.
	TransferIn(ctx context.Context, asset identity.Asset, from identity.Account, amount uint64) error

	// TransferOut moves amount of asset from pool custody to the account.
	TransferOut(ctx context.Context, asset identity.Asset, to identity.Account, amount uint64) error
}
