package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
)

// Type names a ledger event.
type Type string

const (
	// TypePeriodCreated fires when a new period is appended to a chain,
	// whether by an explicit configure or by contribution rollover.
	TypePeriodCreated Type = "period.created"

	// TypePeriodConfigured fires when a period's target, duration, or asset
	// is applied.
	TypePeriodConfigured Type = "period.configured"

	// TypePeriodFunded fires once per period, when its total first crosses
	// from zero to positive.
	TypePeriodFunded Type = "period.funded"

	// TypeContributed fires for every recorded contribution.
	TypeContributed Type = "contribution.recorded"

	// TypeTapped fires when an owner withdraws from a period's reserved
	// share.
	TypeTapped Type = "funds.tapped"

	// TypeClaimed fires for each period whose surplus share was paid out to
	// a contributor.
	TypeClaimed Type = "redistribution.claimed"
)

// Event is one ledger occurrence, published after the state change it
// describes has committed.
type Event struct {
	ID     uuid.UUID        `json:"id"`
	Type   Type             `json:"type"`
	At     time.Time        `json:"at"`
	Owner  identity.Account `json:"owner"`
	Actor  identity.Account `json:"actor"`
	Period uint64           `json:"period"`
	Amount uint64           `json:"amount,omitempty"`
	Asset  identity.Asset   `json:"asset,omitempty"`
}
