package pool_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/wellspringlabs/wellspring/pool/pkg/event"
	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
	"github.com/wellspringlabs/wellspring/pool/pkg/store/memstore"
	"github.com/wellspringlabs/wellspring/pool/pkg/treasury"
	wstesting "github.com/wellspringlabs/wellspring/utils/pkg/testing"
)

const ownerC = identity.Account("2JmpWqGeHK3yQ2mVTp8uJbNnR5sDvF4aE6gZkLwXjPdM")

func (f *fixture) configureAsset(t *testing.T, owner identity.Account, target uint64, window time.Duration, asset identity.Asset) uint64 {
	t.Helper()
	number, err := f.ledger.Configure(context.Background(), owner, pool.ConfigureParams{
		Target:   target,
		Duration: window,
		Asset:    asset,
	})
	require.NoError(t, err)
	return number
}

// countingTreasury tallies outbound transfers and can refuse one asset.
type countingTreasury struct {
	treasury.Treasury
	outCalls  int
	failAsset identity.Asset
}

func (c *countingTreasury) TransferOut(ctx context.Context, asset identity.Asset, to identity.Account, amount uint64) error {
	c.outCalls++
	if c.failAsset != "" && asset == c.failAsset {
		return errors.New("rpc unavailable")
	}
	return c.Treasury.TransferOut(ctx, asset, to, amount)
}

func newClaimFixture(t *testing.T) (*fixture, *countingTreasury) {
	t.Helper()
	log := wstesting.NewLogger()

	clock := clockwork.NewFakeClockAt(time.Unix(1000, 0))
	store := memstore.New()

	vault, err := treasury.NewVault(treasury.VaultConfig{Logger: log})
	require.NoError(t, err)
	counting := &countingTreasury{Treasury: vault}

	bus, err := event.NewBus(event.BusConfig{Logger: log})
	require.NoError(t, err)
	t.Cleanup(bus.Close)

	ledger, err := pool.New(pool.Config{
		Logger:   log,
		Store:    store,
		Treasury: counting,
		Clock:    clock,
		Bus:      bus,
	})
	require.NoError(t, err)

	return &fixture{clock: clock, store: store, vault: vault, bus: bus, ledger: ledger}, counting
}

func TestWellspring_Pool_Ledger_Claim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("settles an expired period's surplus exactly once", func(t *testing.T) {
		f := newFixture(t)
		f.configure(t, ownerA, 100, 30*time.Second)
		f.vault.Mint(assetSOL, userX, 1_000)
		f.contribute(t, userX, ownerA, 150)

		// Still active, nothing to settle yet.
		_, err := f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.ErrorIs(t, err, pool.ErrNothingToClaim)

		f.clock.Advance(31 * time.Second)

		total, err := f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.NoError(t, err)
		require.Equal(t, uint64(50), total)
		require.Equal(t, uint64(900), f.vault.BalanceOf(assetSOL, userX))
		require.Equal(t, uint64(100), f.vault.CustodyBalance(assetSOL))

		share, err := f.ledger.UnclaimedShare(ctx, 1, userX)
		require.NoError(t, err)
		require.Zero(t, share)

		total, err = f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.ErrorIs(t, err, pool.ErrNothingToClaim)
		require.Zero(t, total)
	})

	t.Run("sweeps every unclaimed period in the chain", func(t *testing.T) {
		f := newFixture(t)
		f.configure(t, ownerA, 100, 100*time.Second)
		f.vault.Mint(assetSOL, userX, 1_000)

		f.contribute(t, userX, ownerA, 150)
		f.clock.Advance(150 * time.Second)
		f.contribute(t, userX, ownerA, 150)
		f.clock.Advance(200 * time.Second)

		total, err := f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.NoError(t, err)
		require.Equal(t, uint64(100), total)
	})

	t.Run("continues past a still-active period to older unclaimed ones", func(t *testing.T) {
		f := newFixture(t)
		f.configure(t, ownerA, 100, 100*time.Second)
		f.vault.Mint(assetSOL, userX, 1_000)

		f.contribute(t, userX, ownerA, 150)
		f.clock.Advance(150 * time.Second)
		// Rolls the chain into a second, now-active period.
		f.contribute(t, userX, ownerA, 150)

		total, err := f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.NoError(t, err)
		require.Equal(t, uint64(50), total)

		f.clock.Advance(100 * time.Second)

		total, err = f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.NoError(t, err)
		require.Equal(t, uint64(50), total)

		_, err = f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.ErrorIs(t, err, pool.ErrNothingToClaim)
	})

	t.Run("stops at the first claimed period", func(t *testing.T) {
		f := newFixture(t)
		f.configure(t, ownerA, 100, 100*time.Second)
		f.vault.Mint(assetSOL, userX, 1_000)

		f.contribute(t, userX, ownerA, 150)
		f.clock.Advance(150 * time.Second)
		f.contribute(t, userX, ownerA, 150)
		f.clock.Advance(200 * time.Second)

		// A claimed period certifies everything older as settled, so a
		// mark planted on the newest period hides the older surplus.
		require.NoError(t, f.store.SetClaimed(ctx, 2, userX, true))

		_, err := f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.ErrorIs(t, err, pool.ErrNothingToClaim)
	})

	t.Run("marks a zero-share period settled when the claim pays elsewhere", func(t *testing.T) {
		f := newFixture(t)
		f.configure(t, ownerA, 1, 100*time.Second)
		f.vault.Mint(assetSOL, userX, 100)
		f.vault.Mint(assetSOL, userY, 100)

		// Period 1: X holds 2 of 3, share of surplus 2 is 1.
		f.contribute(t, userX, ownerA, 2)
		f.contribute(t, userY, ownerA, 1)
		f.clock.Advance(150 * time.Second)
		// Period 2: X holds 1 of 3, share truncates to 0.
		f.contribute(t, userX, ownerA, 1)
		f.contribute(t, userY, ownerA, 2)
		f.clock.Advance(100 * time.Second)

		total, err := f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.NoError(t, err)
		require.Equal(t, uint64(1), total)

		claimed, err := f.store.HasClaimed(ctx, 2, userX)
		require.NoError(t, err)
		require.True(t, claimed)
	})

	t.Run("an all-zero claim returns nothing and marks nothing", func(t *testing.T) {
		f := newFixture(t)
		f.configure(t, ownerA, 1, 100*time.Second)
		f.vault.Mint(assetSOL, userX, 100)
		f.vault.Mint(assetSOL, userY, 100)

		f.contribute(t, userX, ownerA, 2)
		f.contribute(t, userY, ownerA, 1)
		f.clock.Advance(150 * time.Second)
		f.contribute(t, userX, ownerA, 2)
		f.contribute(t, userY, ownerA, 1)
		f.clock.Advance(100 * time.Second)

		for range 2 {
			_, err := f.ledger.Claim(ctx, userY, []identity.Account{ownerA})
			require.ErrorIs(t, err, pool.ErrNothingToClaim)
		}
		for _, number := range []uint64{1, 2} {
			claimed, err := f.store.HasClaimed(ctx, number, userY)
			require.NoError(t, err)
			require.False(t, claimed)
		}
	})

	t.Run("emits one claimed event per settled period", func(t *testing.T) {
		f := newFixture(t)
		f.configure(t, ownerA, 100, 100*time.Second)
		f.vault.Mint(assetSOL, userX, 1_000)

		f.contribute(t, userX, ownerA, 150)
		f.clock.Advance(150 * time.Second)
		f.contribute(t, userX, ownerA, 150)
		f.clock.Advance(200 * time.Second)

		events := f.bus.Subscribe()
		_, err := f.ledger.Claim(ctx, userX, []identity.Account{ownerA})
		require.NoError(t, err)

		var periods []uint64
		for range 2 {
			ev := <-events
			require.Equal(t, event.TypeClaimed, ev.Type)
			require.Equal(t, uint64(50), ev.Amount)
			periods = append(periods, ev.Period)
		}
		require.Equal(t, []uint64{2, 1}, periods)
	})
}

func TestWellspring_Pool_Ledger_ClaimAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("sweeps every sustained owner", func(t *testing.T) {
		f := newFixture(t)
		f.configure(t, ownerA, 100, 30*time.Second)
		f.configure(t, ownerB, 100, 30*time.Second)
		f.vault.Mint(assetSOL, userX, 1_000)

		f.contribute(t, userX, ownerA, 150)
		f.contribute(t, userX, ownerB, 150)
		f.clock.Advance(31 * time.Second)

		total, err := f.ledger.ClaimAll(ctx, userX)
		require.NoError(t, err)
		require.Equal(t, uint64(100), total)

		_, err = f.ledger.ClaimAll(ctx, userX)
		require.ErrorIs(t, err, pool.ErrNothingToClaim)
	})

	t.Run("fails for an account that never contributed", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.ClaimAll(ctx, userY)
		require.ErrorIs(t, err, pool.ErrNothingToClaim)
	})

	t.Run("aggregates one payout per asset", func(t *testing.T) {
		f, counting := newClaimFixture(t)
		f.configureAsset(t, ownerA, 100, 30*time.Second, assetSOL)
		f.configureAsset(t, ownerB, 100, 30*time.Second, assetUSDC)
		f.configureAsset(t, ownerC, 100, 30*time.Second, assetSOL)
		f.vault.Mint(assetSOL, userX, 1_000)
		f.vault.Mint(assetUSDC, userX, 1_000)

		f.contribute(t, userX, ownerA, 150)
		_, err := f.ledger.Contribute(ctx, userX, ownerB, 150, "")
		require.NoError(t, err)
		f.contribute(t, userX, ownerC, 150)
		f.clock.Advance(31 * time.Second)

		counting.outCalls = 0
		total, err := f.ledger.ClaimAll(ctx, userX)
		require.NoError(t, err)
		require.Equal(t, uint64(150), total)
		require.Equal(t, 2, counting.outCalls)
		require.Equal(t, uint64(800), f.vault.BalanceOf(assetSOL, userX))
		require.Equal(t, uint64(900), f.vault.BalanceOf(assetUSDC, userX))
	})

	t.Run("payout failure keeps unpaid assets claimable", func(t *testing.T) {
		f, counting := newClaimFixture(t)
		f.configureAsset(t, ownerA, 100, 30*time.Second, assetSOL)
		f.configureAsset(t, ownerB, 100, 30*time.Second, assetUSDC)
		f.vault.Mint(assetSOL, userX, 1_000)
		f.vault.Mint(assetUSDC, userX, 1_000)

		f.contribute(t, userX, ownerA, 150)
		_, err := f.ledger.Contribute(ctx, userX, ownerB, 150, "")
		require.NoError(t, err)
		f.clock.Advance(31 * time.Second)

		// Assets pay out in sorted order, so failing the later one leaves
		// the first paid and settled while the unpaid one reopens.
		counting.failAsset = assetSOL
		_, err = f.ledger.ClaimAll(ctx, userX)
		require.ErrorIs(t, err, pool.ErrTransferFailed)

		require.Equal(t, uint64(900), f.vault.BalanceOf(assetUSDC, userX))
		require.Equal(t, uint64(850), f.vault.BalanceOf(assetSOL, userX))

		claimedUSDC, err := f.store.HasClaimed(ctx, 2, userX)
		require.NoError(t, err)
		require.True(t, claimedUSDC)
		claimedSOL, err := f.store.HasClaimed(ctx, 1, userX)
		require.NoError(t, err)
		require.False(t, claimedSOL)

		counting.failAsset = ""
		total, err := f.ledger.ClaimAll(ctx, userX)
		require.NoError(t, err)
		require.Equal(t, uint64(50), total)
		require.Equal(t, uint64(900), f.vault.BalanceOf(assetSOL, userX))
	})
}
