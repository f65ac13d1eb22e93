// Package memstore holds the full pool ledger in process memory. It backs
// tests and the single-node dev deployment; postgres is the durable option.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
	"github.com/wellspringlabs/wellspring/pool/pkg/pool"
)

// state is the complete ledger dataset. All mutation goes through a clone,
// so a failed transaction leaves the live state untouched.
type state struct {
	periods       map[uint64]pool.Period
	contributions map[uint64]map[identity.Account]uint64
	claims        map[uint64]map[identity.Account]bool
	latest        map[identity.Account]uint64
	sustained     map[identity.Account][]identity.Account
	nextNumber    uint64
}

func newState() *state {
	return &state{
		periods:       make(map[uint64]pool.Period),
		contributions: make(map[uint64]map[identity.Account]uint64),
		claims:        make(map[uint64]map[identity.Account]bool),
		latest:        make(map[identity.Account]uint64),
		sustained:     make(map[identity.Account][]identity.Account),
	}
}

func (s *state) clone() *state {
	next := &state{
		periods:       make(map[uint64]pool.Period, len(s.periods)),
		contributions: make(map[uint64]map[identity.Account]uint64, len(s.contributions)),
		claims:        make(map[uint64]map[identity.Account]bool, len(s.claims)),
		latest:        make(map[identity.Account]uint64, len(s.latest)),
		sustained:     make(map[identity.Account][]identity.Account, len(s.sustained)),
		nextNumber:    s.nextNumber,
	}
	for number, period := range s.periods {
		next.periods[number] = period
	}
	for number, byAccount := range s.contributions {
		m := make(map[identity.Account]uint64, len(byAccount))
		for account, amount := range byAccount {
			m[account] = amount
		}
		next.contributions[number] = m
	}
	for number, byAccount := range s.claims {
		m := make(map[identity.Account]bool, len(byAccount))
		for account, claimed := range byAccount {
			m[account] = claimed
		}
		next.claims[number] = m
	}
	for account, number := range s.latest {
		next.latest[account] = number
	}
	for account, owners := range s.sustained {
		next.sustained[account] = append([]identity.Account(nil), owners...)
	}
	return next
}

// Memory implements pool.Store over an in-process dataset.
type Memory struct {
	mu sync.Mutex
	st *state
}

func New() *Memory {
	return &Memory{st: newState()}
}

// WithTx applies fn to a clone of the dataset and swaps the clone in only
// when fn succeeds, so every transaction is all-or-nothing.
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx pool.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.st.clone()
	if err := fn(ctx, &txStore{st: next}); err != nil {
		return err
	}
	m.st = next
	return nil
}

func (m *Memory) AllocateNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).AllocateNumber(ctx)
}

func (m *Memory) Period(ctx context.Context, number uint64) (*pool.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).Period(ctx, number)
}

func (m *Memory) InsertPeriod(ctx context.Context, period *pool.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).InsertPeriod(ctx, period)
}

func (m *Memory) SetConfiguration(ctx context.Context, number uint64, target uint64, duration time.Duration, asset identity.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).SetConfiguration(ctx, number, target, duration, asset)
}

func (m *Memory) AddContribution(ctx context.Context, number uint64, account identity.Account, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).AddContribution(ctx, number, account, amount)
}

func (m *Memory) SetTapped(ctx context.Context, number uint64, tapped uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).SetTapped(ctx, number, tapped)
}

func (m *Memory) Contribution(ctx context.Context, number uint64, account identity.Account) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).Contribution(ctx, number, account)
}

func (m *Memory) SumContributions(ctx context.Context, number uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).SumContributions(ctx, number)
}

func (m *Memory) HasClaimed(ctx context.Context, number uint64, account identity.Account) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).HasClaimed(ctx, number, account)
}

func (m *Memory) SetClaimed(ctx context.Context, number uint64, account identity.Account, claimed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).SetClaimed(ctx, number, account, claimed)
}

func (m *Memory) LatestNumber(ctx context.Context, owner identity.Account) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).LatestNumber(ctx, owner)
}

func (m *Memory) SetLatestNumber(ctx context.Context, owner identity.Account, number uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).SetLatestNumber(ctx, owner, number)
}

func (m *Memory) SustainedOwners(ctx context.Context, account identity.Account) ([]identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).SustainedOwners(ctx, account)
}

func (m *Memory) AddSustainedOwner(ctx context.Context, account identity.Account, owner identity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&txStore{st: m.st}).AddSustainedOwner(ctx, account, owner)
}

// txStore operates on a single state without locking. Inside WithTx that
// state is a private clone; the Memory wrappers hand it the live state while
// holding the store mutex.
type txStore struct {
	st *state
}

// WithTx on a transaction handle just runs fn in the same transaction.
func (t *txStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx pool.Store) error) error {
	return fn(ctx, t)
}

func (t *txStore) AllocateNumber(context.Context) (uint64, error) {
	t.st.nextNumber++
	return t.st.nextNumber, nil
}

func (t *txStore) Period(_ context.Context, number uint64) (*pool.Period, error) {
	period, ok := t.st.periods[number]
	if !ok {
		return nil, pool.ErrNoPeriod
	}
	return &period, nil
}

func (t *txStore) InsertPeriod(_ context.Context, period *pool.Period) error {
	t.st.periods[period.Number] = *period
	return nil
}

func (t *txStore) SetConfiguration(_ context.Context, number uint64, target uint64, duration time.Duration, asset identity.Asset) error {
	period, ok := t.st.periods[number]
	if !ok {
		return pool.ErrNoPeriod
	}
	period.Target = target
	period.Duration = duration
	period.WantAsset = asset
	t.st.periods[number] = period
	return nil
}

func (t *txStore) AddContribution(_ context.Context, number uint64, account identity.Account, amount uint64) error {
	period, ok := t.st.periods[number]
	if !ok {
		return pool.ErrNoPeriod
	}
	byAccount, ok := t.st.contributions[number]
	if !ok {
		byAccount = make(map[identity.Account]uint64)
		t.st.contributions[number] = byAccount
	}
	byAccount[account] += amount
	period.Total += amount
	t.st.periods[number] = period
	return nil
}

func (t *txStore) SetTapped(_ context.Context, number uint64, tapped uint64) error {
	period, ok := t.st.periods[number]
	if !ok {
		return pool.ErrNoPeriod
	}
	period.Tapped = tapped
	t.st.periods[number] = period
	return nil
}

func (t *txStore) Contribution(_ context.Context, number uint64, account identity.Account) (uint64, error) {
	return t.st.contributions[number][account], nil
}

func (t *txStore) SumContributions(_ context.Context, number uint64) (uint64, error) {
	var sum uint64
	for _, amount := range t.st.contributions[number] {
		sum += amount
	}
	return sum, nil
}

func (t *txStore) HasClaimed(_ context.Context, number uint64, account identity.Account) (bool, error) {
	return t.st.claims[number][account], nil
}

func (t *txStore) SetClaimed(_ context.Context, number uint64, account identity.Account, claimed bool) error {
	byAccount, ok := t.st.claims[number]
	if !ok {
		byAccount = make(map[identity.Account]bool)
		t.st.claims[number] = byAccount
	}
	if claimed {
		byAccount[account] = true
	} else {
		delete(byAccount, account)
	}
	return nil
}

func (t *txStore) LatestNumber(_ context.Context, owner identity.Account) (uint64, error) {
	return t.st.latest[owner], nil
}

func (t *txStore) SetLatestNumber(_ context.Context, owner identity.Account, number uint64) error {
	t.st.latest[owner] = number
	return nil
}

func (t *txStore) SustainedOwners(_ context.Context, account identity.Account) ([]identity.Account, error) {
	return append([]identity.Account(nil), t.st.sustained[account]...), nil
}

func (t *txStore) AddSustainedOwner(_ context.Context, account identity.Account, owner identity.Account) error {
	for _, existing := range t.st.sustained[account] {
		if existing == owner {
			return nil
		}
	}
	t.st.sustained[account] = append(t.st.sustained[account], owner)
	return nil
}
