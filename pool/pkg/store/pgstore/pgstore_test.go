package pgstore_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
	"github.com/wellspringlabs/wellspring/pool/pkg/store/pgstore"
	wstesting "github.com/wellspringlabs/wellspring/utils/pkg/testing"
)

var testDB *wstesting.PostgresDB

func TestMain(m *testing.M) {
	ctx := context.Background()
	log := slog.Default()

	var err error
	testDB, err = wstesting.NewPostgresDB(ctx, log, nil)
	if err != nil {
		slog.Error("failed to start PostgreSQL container", "error", err)
		os.Exit(1)
	}

	if err := pgstore.Migrate(log, testDB.ConnStr()); err != nil {
		slog.Error("failed to run migrations", "error", err)
		testDB.Close()
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	os.Exit(code)
}

func newStore(t *testing.T) *pgstore.Postgres {
	t.Helper()
	dbPool := wstesting.NewMigratedPool(t, testDB)
	store, err := pgstore.New(pgstore.Config{Logger: wstesting.NewLogger(), Pool: dbPool})
	require.NoError(t, err)
	return store
}

func insertPeriod(t *testing.T, store *pgstore.Postgres, owner identity.Account, start time.Time) *pool.Period {
	t.Helper()
	ctx := context.Background()

	number, err := store.AllocateNumber(ctx)
	require.NoError(t, err)

	period := &pool.Period{
		Number:    number,
		Owner:     owner,
		WantAsset: identity.Asset("So11111111111111111111111111111111111111112"),
		Target:    1_000,
		Start:     start,
		Duration:  time.Hour,
	}
	require.NoError(t, store.InsertPeriod(ctx, period))
	return period
}

func TestWellspring_Pool_Pgstore_Periods(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	owner := identity.Account("pg-periods-owner")

	t.Run("missing period returns ErrNoPeriod", func(t *testing.T) {
		_, err := store.Period(ctx, 999_999)
		require.ErrorIs(t, err, pool.ErrNoPeriod)
	})

	t.Run("insert and read back", func(t *testing.T) {
		start := time.Unix(1_700_000_000, 0).UTC()
		period := insertPeriod(t, store, owner, start)

		got, err := store.Period(ctx, period.Number)
		require.NoError(t, err)
		require.Equal(t, period.Number, got.Number)
		require.Equal(t, owner, got.Owner)
		require.Equal(t, period.WantAsset, got.WantAsset)
		require.Equal(t, uint64(1_000), got.Target)
		require.Zero(t, got.Total)
		require.True(t, got.Start.Equal(start))
		require.Equal(t, time.Hour, got.Duration)
	})

	t.Run("configuration updates in place", func(t *testing.T) {
		period := insertPeriod(t, store, owner, time.Now().UTC())

		asset := identity.Asset("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
		require.NoError(t, store.SetConfiguration(ctx, period.Number, 2_500, 30*time.Minute, asset))

		got, err := store.Period(ctx, period.Number)
		require.NoError(t, err)
		require.Equal(t, uint64(2_500), got.Target)
		require.Equal(t, 30*time.Minute, got.Duration)
		require.Equal(t, asset, got.WantAsset)

		require.ErrorIs(t, store.SetConfiguration(ctx, 999_999, 1, time.Hour, asset), pool.ErrNoPeriod)
	})

	t.Run("tapped updates in place", func(t *testing.T) {
		period := insertPeriod(t, store, owner, time.Now().UTC())

		require.NoError(t, store.SetTapped(ctx, period.Number, 42))
		got, err := store.Period(ctx, period.Number)
		require.NoError(t, err)
		require.Equal(t, uint64(42), got.Tapped)

		require.ErrorIs(t, store.SetTapped(ctx, 999_999, 1), pool.ErrNoPeriod)
	})
}

func TestWellspring_Pool_Pgstore_Contributions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	owner := identity.Account("pg-contrib-owner")
	alice := identity.Account("pg-contrib-alice")
	bob := identity.Account("pg-contrib-bob")

	period := insertPeriod(t, store, owner, time.Now().UTC())

	t.Run("accumulates per account and in the total", func(t *testing.T) {
		require.NoError(t, store.AddContribution(ctx, period.Number, alice, 100))
		require.NoError(t, store.AddContribution(ctx, period.Number, alice, 50))
		require.NoError(t, store.AddContribution(ctx, period.Number, bob, 25))

		amount, err := store.Contribution(ctx, period.Number, alice)
		require.NoError(t, err)
		require.Equal(t, uint64(150), amount)

		sum, err := store.SumContributions(ctx, period.Number)
		require.NoError(t, err)
		require.Equal(t, uint64(175), sum)

		got, err := store.Period(ctx, period.Number)
		require.NoError(t, err)
		require.Equal(t, uint64(175), got.Total)
	})

	t.Run("unknown account reads as zero", func(t *testing.T) {
		amount, err := store.Contribution(ctx, period.Number, "pg-contrib-nobody")
		require.NoError(t, err)
		require.Zero(t, amount)
	})

	t.Run("missing period is rejected", func(t *testing.T) {
		require.Error(t, store.AddContribution(ctx, 999_999, alice, 1))
	})
}

func TestWellspring_Pool_Pgstore_Claims(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	owner := identity.Account("pg-claims-owner")
	alice := identity.Account("pg-claims-alice")

	period := insertPeriod(t, store, owner, time.Now().UTC())

	claimed, err := store.HasClaimed(ctx, period.Number, alice)
	require.NoError(t, err)
	require.False(t, claimed)

	require.NoError(t, store.SetClaimed(ctx, period.Number, alice, true))
	require.NoError(t, store.SetClaimed(ctx, period.Number, alice, true))

	claimed, err = store.HasClaimed(ctx, period.Number, alice)
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, store.SetClaimed(ctx, period.Number, alice, false))
	claimed, err = store.HasClaimed(ctx, period.Number, alice)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestWellspring_Pool_Pgstore_ChainHeads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	owner := identity.Account("pg-heads-owner")

	number, err := store.LatestNumber(ctx, owner)
	require.NoError(t, err)
	require.Zero(t, number)

	require.NoError(t, store.SetLatestNumber(ctx, owner, 7))
	require.NoError(t, store.SetLatestNumber(ctx, owner, 9))

	number, err = store.LatestNumber(ctx, owner)
	require.NoError(t, err)
	require.Equal(t, uint64(9), number)
}

func TestWellspring_Pool_Pgstore_SustainedOwners(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	alice := identity.Account("pg-sustained-alice")
	ownerA := identity.Account("pg-sustained-owner-a")
	ownerB := identity.Account("pg-sustained-owner-b")

	owners, err := store.SustainedOwners(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, owners)

	require.NoError(t, store.AddSustainedOwner(ctx, alice, ownerA))
	require.NoError(t, store.AddSustainedOwner(ctx, alice, ownerB))
	require.NoError(t, store.AddSustainedOwner(ctx, alice, ownerA))

	owners, err = store.SustainedOwners(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, []identity.Account{ownerA, ownerB}, owners)
}

func TestWellspring_Pool_Pgstore_WithTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newStore(t)
	owner := identity.Account("pg-tx-owner")
	alice := identity.Account("pg-tx-alice")

	period := insertPeriod(t, store, owner, time.Now().UTC())

	t.Run("failed transaction rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		err := store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
			require.NoError(t, tx.AddContribution(ctx, period.Number, alice, 75))
			return boom
		})
		require.ErrorIs(t, err, boom)

		amount, err := store.Contribution(ctx, period.Number, alice)
		require.NoError(t, err)
		require.Zero(t, amount)
	})

	t.Run("successful transaction commits atomically", func(t *testing.T) {
		err := store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
			if err := tx.AddContribution(ctx, period.Number, alice, 75); err != nil {
				return err
			}
			return tx.SetLatestNumber(ctx, owner, period.Number)
		})
		require.NoError(t, err)

		amount, err := store.Contribution(ctx, period.Number, alice)
		require.NoError(t, err)
		require.Equal(t, uint64(75), amount)

		latest, err := store.LatestNumber(ctx, owner)
		require.NoError(t, err)
		require.Equal(t, period.Number, latest)
	})

	t.Run("nested WithTx joins the open transaction", func(t *testing.T) {
		err := store.WithTx(ctx, func(ctx context.Context, tx pool.Store) error {
			return tx.WithTx(ctx, func(ctx context.Context, inner pool.Store) error {
				return inner.SetClaimed(ctx, period.Number, alice, true)
			})
		})
		require.NoError(t, err)

		claimed, err := store.HasClaimed(ctx, period.Number, alice)
		require.NoError(t, err)
		require.True(t, claimed)
	})
}
