package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wellspringlabs/wellspring/pool/pkg/identity"
)

// VaultConfig configures a Vault.
type VaultConfig struct {
	Logger *slog.Logger
}

func (c *VaultConfig) Validate() error {
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Vault is an in-memory Treasury: per-asset account balances plus a custody
// balance per asset. It backs local runs and tests; a deployment wires a
// real custody service behind the same interface.
type Vault struct {
	log *slog.Logger

	mu       sync.Mutex
	balances map[identity.Asset]map[identity.Account]uint64
	custody  map[identity.Asset]uint64
}

func NewVault(cfg VaultConfig) (*Vault, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Vault{
		log:      cfg.Logger,
		balances: make(map[identity.Asset]map[identity.Account]uint64),
		custody:  make(map[identity.Asset]uint64),
	}, nil
}

// Mint credits amount of asset to the account out of thin air.
func (v *Vault) Mint(asset identity.Asset, account identity.Account, amount uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(asset, account, amount)
}

// BalanceOf returns the account's balance of the asset.
func (v *Vault) BalanceOf(asset identity.Asset, account identity.Account) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[asset][account]
}

// CustodyBalance returns the amount of the asset held in pool custody.
func (v *Vault) CustodyBalance(asset identity.Asset) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.custody[asset]
}

func (v *Vault) TransferIn(ctx context.Context, asset identity.Asset, from identity.Account, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	balance := v.balances[asset][from]
	if balance < amount {
		return fmt.Errorf("account %s holds %d of %s, need %d: %w", from, balance, asset, amount, ErrInsufficientBalance)
	}
	v.balances[asset][from] = balance - amount
	v.custody[asset] += amount
	v.log.Debug("treasury/vault: transfer in", "asset", asset, "from", from, "amount", amount)
	return nil
}

func (v *Vault) TransferOut(ctx context.Context, asset identity.Asset, to identity.Account, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	held := v.custody[asset]
	if held < amount {
		return fmt.Errorf("custody holds %d of %s, need %d: %w", held, asset, amount, ErrInsufficientBalance)
	}
	v.custody[asset] = held - amount
	v.credit(asset, to, amount)
	v.log.Debug("treasury/vault: transfer out", "asset", asset, "to", to, "amount", amount)
	return nil
}

func (v *Vault) credit(asset identity.Asset, account identity.Account, amount uint64) {
	accounts, ok := v.balances[asset]
	if !ok {
		accounts = make(map[identity.Account]uint64)
		v.balances[asset] = accounts
	}
	accounts[account] += amount
}
