package pool

import (
	"testing"
	"time"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
)

func secs(v int64) time.Time { return time.Unix(v, 0) }

func TestWellspring_Pool_Period_StateAt(t *testing.T) {
	t.Parallel()

	period := Period{Start: secs(1000), Duration: 100 * time.Second}

	tests := []struct {
		name string
		now  time.Time
		want State
	}{
		{"before start", secs(999), StateUpcoming},
		{"at start", secs(1000), StateActive},
		{"mid window", secs(1050), StateActive},
		{"at end", secs(1100), StateActive},
		{"after end", secs(1101), StateRedistributing},
		{"long after end", secs(99999), StateRedistributing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := period.StateAt(tt.now); got != tt.want {
				t.Errorf("StateAt(%d) = %v, want %v", tt.now.Unix(), got, tt.want)
			}
		})
	}
}

func TestWellspring_Pool_Period_TappableAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target uint64
		total  uint64
		tapped uint64
		want   uint64
	}{
		{"under target nothing tapped", 1000, 600, 0, 600},
		{"over target caps at target", 1000, 1500, 0, 1000},
		{"partially tapped", 1000, 1500, 400, 600},
		{"fully tapped", 1000, 1500, 1000, 0},
		{"unfunded", 1000, 0, 0, 0},
		{"exact target", 1000, 1000, 250, 750},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Period{Target: tt.target, Total: tt.total, Tapped: tt.tapped}
			if got := p.TappableAmount(); got != tt.want {
				t.Errorf("TappableAmount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWellspring_Pool_Period_Surplus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target uint64
		total  uint64
		want   uint64
	}{
		{"under target", 1000, 600, 0},
		{"exact target", 1000, 1000, 0},
		{"over target", 1000, 1500, 500},
		{"zero target", 0, 300, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Period{Target: tt.target, Total: tt.total}
			if got := p.Surplus(); got != tt.want {
				t.Errorf("Surplus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWellspring_Pool_Period_ProportionalShare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		target      uint64
		total       uint64
		contributed uint64
		want        uint64
	}{
		{"no surplus no share", 1000, 1000, 400, 0},
		{"whole surplus to sole contributor", 1000, 1500, 1500, 500},
		{"even split", 1000, 2000, 1000, 500},
		{"truncates toward zero", 1, 3, 1, 0},
		{"zero total", 1000, 0, 0, 0},
		{"zero contribution", 1000, 1500, 0, 0},
		{"large values use full precision", 1 << 40, 1 << 41, 1 << 40, 1 << 39},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Period{Target: tt.target, Total: tt.total}
			if got := p.ProportionalShare(tt.contributed); got != tt.want {
				t.Errorf("ProportionalShare(%d) = %d, want %d", tt.contributed, got, tt.want)
			}
		})
	}
}

func TestWellspring_Pool_Period_ProportionalShare_SumsWithinSurplus(t *testing.T) {
	t.Parallel()

	p := Period{Target: 100, Total: 301}
	contributions := []uint64{100, 100, 101}

	var sum uint64
	for _, c := range contributions {
		sum += p.ProportionalShare(c)
	}
	if surplus := p.Surplus(); sum > surplus {
		t.Fatalf("shares sum to %d, exceeding surplus %d", sum, surplus)
	}
}

func TestWellspring_Pool_Period_NextAlignedStart(t *testing.T) {
	t.Parallel()

	period := Period{Start: secs(1000), Duration: 100 * time.Second}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"shortly after end starts at end", secs(1150), secs(1100)},
		{"exactly one period after end", secs(1200), secs(1200)},
		{"long dormancy aligns to grid", secs(5050), secs(5000)},
		{"dormancy landing on a boundary", secs(5100), secs(5100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := period.NextAlignedStart(tt.now); !got.Equal(tt.want) {
				t.Errorf("NextAlignedStart(%d) = %d, want %d", tt.now.Unix(), got.Unix(), tt.want.Unix())
			}
		})
	}
}

func TestWellspring_Pool_Period_Successor(t *testing.T) {
	t.Parallel()

	prev := &Period{
		Number:    7,
		Owner:     identity.Account("ownerownerownerownerownerownerownerownerowne"),
		WantAsset: identity.Asset("So11111111111111111111111111111111111111112"),
		Target:    1000,
		Total:     1600,
		Start:     secs(1000),
		Duration:  100 * time.Second,
		Tapped:    900,
		Previous:  3,
	}

	next := successor(prev, 8, secs(1100))

	if next.Number != 8 || next.Previous != 7 {
		t.Fatalf("chain links wrong: number=%d previous=%d", next.Number, next.Previous)
	}
	if next.Owner != prev.Owner || next.WantAsset != prev.WantAsset {
		t.Fatal("successor must keep owner and asset")
	}
	if next.Target != prev.Target || next.Duration != prev.Duration {
		t.Fatal("successor must inherit configuration")
	}
	if !next.Start.Equal(secs(1100)) {
		t.Fatalf("start = %d, want 1100", next.Start.Unix())
	}
	if next.Total != 0 || next.Tapped != 0 {
		t.Fatalf("counters must reset, got total=%d tapped=%d", next.Total, next.Tapped)
	}
}
