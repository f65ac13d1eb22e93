package pool

import (
	"math/bits"
	"time"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
)

// State classifies a period's window against a point in time.
type State int

const (
	// StateUpcoming means the window has not opened yet.
	StateUpcoming State = iota
	// StateActive means the window is open for contributions and taps.
	StateActive
	// StateRedistributing means the window has closed and the period's
	// surplus is claimable.
	StateRedistributing
)

func (s State) String() string {
	switch s {
	case StateUpcoming:
		return "upcoming"
	case StateActive:
		return "active"
	case StateRedistributing:
		return "redistributing"
	default:
		return "unknown"
	}
}

// Period is one funding window in an owner's chain. Numbers are unique
// across all owners and never reused. Target, Duration, and WantAsset are
// immutable once the period holds funds; reconfiguration lands on a
// successor period instead.
type Period struct {
	Number    uint64           `json:"number"`
	Owner     identity.Account `json:"owner"`
	WantAsset identity.Asset   `json:"wantAsset"`
	Target    uint64           `json:"target"`
	Total     uint64           `json:"total"`
	Start     time.Time        `json:"start"`
	Duration  time.Duration    `json:"duration"`
	Tapped    uint64           `json:"tapped"`

	// Previous is the number of the period that precedes this one in the
	// owner's chain, 0 for the first.
	Previous uint64 `json:"previous"`
}

// End returns the instant the period's active window closes.
func (p *Period) End() time.Time {
	return p.Start.Add(p.Duration)
}

// StateAt classifies the period at the given instant.
func (p *Period) StateAt(now time.Time) State {
	switch {
	case now.Before(p.Start):
		return StateUpcoming
	case now.After(p.End()):
		return StateRedistributing
	default:
		return StateActive
	}
}

// TappableAmount is the portion of the total, capped at the target, that the
// owner has not yet withdrawn.
func (p *Period) TappableAmount() uint64 {
	reserved := min(p.Target, p.Total)
	if p.Tapped >= reserved {
		return 0
	}
	return reserved - p.Tapped
}

// Surplus is the portion of the total beyond the target, owed to
// contributors in proportion to what each paid in.
func (p *Period) Surplus() uint64 {
	if p.Total <= p.Target {
		return 0
	}
	return p.Total - p.Target
}

// ProportionalShare is the cut of the period's surplus owed for the given
// contributed amount: surplus * contributed / total, truncating toward zero.
// The intermediate product is taken at 128 bits so large totals cannot
// overflow.
func (p *Period) ProportionalShare(contributed uint64) uint64 {
	if p.Total == 0 {
		return 0
	}
	// A contribution is part of the total, so it never exceeds it; the cap
	// also keeps the 128-bit quotient below 64 bits.
	if contributed > p.Total {
		contributed = p.Total
	}
	hi, lo := bits.Mul64(p.Surplus(), contributed)
	quotient, _ := bits.Div64(hi, lo, p.Total)
	return quotient
}

// NextAlignedStart computes the start of the period that would follow p had
// the chain ticked continuously through now. Within one duration of p's end
// the next window starts exactly at the end, keeping the chain contiguous.
// Beyond that, the start snaps to the phase continuous ticking would have
// reached: now minus (now - end) mod duration. Resuming a dormant chain is
// O(1) no matter how many windows elapsed unused.
func (p *Period) NextAlignedStart(now time.Time) time.Time {
	end := p.End()
	if end.Add(p.Duration).After(now) {
		return end
	}
	offset := now.Sub(end) % p.Duration
	return now.Add(-offset)
}

// successor clones p into a fresh period: configuration carries forward,
// counters and accounting start at zero.
func successor(p *Period, number uint64, start time.Time) *Period {
	return &Period{
		Number:    number,
		Owner:     p.Owner,
		WantAsset: p.WantAsset,
		Target:    p.Target,
		Duration:  p.Duration,
		Start:     start,
		Previous:  p.Number,
	}
}
