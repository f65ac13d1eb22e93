package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
	"github.com/wellspringlabs/wellspring/pool/pkg/store/memstore"
)

const (
	owner = identity.Account("J4owNerXu9v7GdPLKpHgq3bVf5M2cTxWjN8sE4mUkQab")
	alice = identity.Account("A1iceYRzu9v7GdPLKpHgq3bVf5M2cTxWjN8sE4mUkQab")
	asset = identity.Asset("So11111111111111111111111111111111111111112")
)

func TestWellspring_Pool_Memstore_Periods(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()

	t.Run("missing period returns ErrNoPeriod", func(t *testing.T) {
		_, err := store.Period(ctx, 42)
		require.ErrorIs(t, err, pool.ErrNoPeriod)
	})

	t.Run("insert then read returns a copy", func(t *testing.T) {
		number, err := store.AllocateNumber(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(1), number)

		period := &pool.Period{Number: number, Owner: owner, Start: time.Unix(1000, 0)}
		require.NoError(t, store.InsertPeriod(ctx, period))

		got, err := store.Period(ctx, number)
		require.NoError(t, err)
		require.Equal(t, owner, got.Owner)

		got.Target = 999
		again, err := store.Period(ctx, number)
		require.NoError(t, err)
		require.Zero(t, again.Target)
	})

	t.Run("configuration updates fields in place", func(t *testing.T) {
		require.NoError(t, store.SetConfiguration(ctx, 1, 500, time.Hour, asset))
		got, err := store.Period(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, uint64(500), got.Target)
		require.Equal(t, time.Hour, got.Duration)
		require.Equal(t, asset, got.WantAsset)
	})

	t.Run("contributions accumulate per account and in the total", func(t *testing.T) {
		require.NoError(t, store.AddContribution(ctx, 1, alice, 100))
		require.NoError(t, store.AddContribution(ctx, 1, alice, 50))

		amount, err := store.Contribution(ctx, 1, alice)
		require.NoError(t, err)
		require.Equal(t, uint64(150), amount)

		sum, err := store.SumContributions(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, uint64(150), sum)

		got, err := store.Period(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, uint64(150), got.Total)
	})
}

func TestWellspring_Pool_Memstore_WithTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()

	number, err := store.AllocateNumber(ctx)
	require.NoError(t, err)
	require.NoError(t, store.InsertPeriod(ctx, &pool.Period{Number: number, Owner: owner, Start: time.Unix(0, 0)}))

	t.Run("failed transaction leaves nothing behind", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
			require.NoError(t, tx.AddContribution(ctx, number, alice, 75))
			require.NoError(t, tx.SetClaimed(ctx, number, alice, true))
			return boom
		})
		require.ErrorIs(t, err, boom)

		amount, err := store.Contribution(ctx, number, alice)
		require.NoError(t, err)
		require.Zero(t, amount)

		claimed, err := store.HasClaimed(ctx, number, alice)
		require.NoError(t, err)
		require.False(t, claimed)
	})

	t.Run("successful transaction lands atomically", func(t *testing.T) {
		err := store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
			if err := tx.AddContribution(ctx, number, alice, 75); err != nil {
				return err
			}
			return tx.SetLatestNumber(ctx, owner, number)
		})
		require.NoError(t, err)

		amount, err := store.Contribution(ctx, number, alice)
		require.NoError(t, err)
		require.Equal(t, uint64(75), amount)

		latest, err := store.LatestNumber(ctx, owner)
		require.NoError(t, err)
		require.Equal(t, number, latest)
	})
}

func TestWellspring_Pool_Memstore_SustainedOwners(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memstore.New()

	other := identity.Account("B0bWxYRzu9v7GdPLKpHgq3bVf5M2cTxWjN8sE4mUkQab")

	require.NoError(t, store.AddSustainedOwner(ctx, alice, owner))
	require.NoError(t, store.AddSustainedOwner(ctx, alice, other))
	require.NoError(t, store.AddSustainedOwner(ctx, alice, owner))

	owners, err := store.SustainedOwners(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, []identity.Account{owner, other}, owners)
}
