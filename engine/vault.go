package engine

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/openlot-io/auctionengine/core"
)

// balanceKey addresses one (payment token, principal) balance entry.
type balanceKey struct {
	Token     core.PaymentToken
	Principal core.Principal
}

// Vault custodies fungible funds. It tracks free balances per (token,
// principal) plus one escrow pool per token holding every leading bid and
// every not-yet-withdrawn credit, so total value is conserved and checkable.
type Vault struct {
	mu       sync.Mutex
	balances map[balanceKey]decimal.Decimal
	escrow   map[core.PaymentToken]decimal.Decimal
}

// NewVault creates an empty vault.
func NewVault() *Vault {
	return &Vault{
		balances: make(map[balanceKey]decimal.Decimal),
		escrow:   make(map[core.PaymentToken]decimal.Decimal),
	}
}

// Deposit funds a principal's free balance. This is the engine's boundary
// with whatever moves value in from the outside world.
func (v *Vault) Deposit(token core.PaymentToken, principal core.Principal, amount decimal.Decimal) error {
	if token == "" || principal == "" {
		return fmt.Errorf("deposit: empty token or principal: %w", core.ErrInvalidParameters)
	}
	if !amount.IsPositive() || !amount.IsInteger() {
		return fmt.Errorf("deposit %s: amount must be a positive integral base-unit value: %w", amount, core.ErrInvalidParameters)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	key := balanceKey{Token: token, Principal: principal}
	v.balances[key] = v.balances[key].Add(amount)
	return nil
}

// BalanceOf returns a principal's free balance in the given token.
func (v *Vault) BalanceOf(token core.PaymentToken, principal core.Principal) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[balanceKey{Token: token, Principal: principal}]
}

// EscrowBalance returns the total value held in escrow for the given token.
func (v *Vault) EscrowBalance(token core.PaymentToken) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.escrow[token]
}

// escrowFrom moves amount from a principal's free balance into the escrow pool.
func (v *Vault) escrowFrom(token core.PaymentToken, from core.Principal, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := balanceKey{Token: token, Principal: from}
	balance := v.balances[key]
	if balance.LessThan(amount) {
		return fmt.Errorf("escrow %s %s from %s (balance %s): %w", amount, token, from, balance, core.ErrInsufficientFunds)
	}
	v.balances[key] = balance.Sub(amount)
	v.escrow[token] = v.escrow[token].Add(amount)
	return nil
}

// releaseTo moves amount from the escrow pool to a principal's free balance.
// An underflow here means escrow accounting was corrupted upstream.
func (v *Vault) releaseTo(token core.PaymentToken, to core.Principal, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	pool := v.escrow[token]
	if pool.LessThan(amount) {
		return fmt.Errorf("release %s %s to %s exceeds escrow pool %s: %w", amount, token, to, pool, core.ErrSettlementFailed)
	}
	v.escrow[token] = pool.Sub(amount)
	key := balanceKey{Token: token, Principal: to}
	v.balances[key] = v.balances[key].Add(amount)
	return nil
}

// snapshotState copies the vault's full state for migration.
func (v *Vault) snapshotState() (balances []BalanceEntry, escrow []TokenAmountEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for key, amount := range v.balances {
		if amount.IsZero() {
			continue
		}
		balances = append(balances, BalanceEntry{Token: key.Token, Principal: key.Principal, Amount: amount.String()})
	}
	for token, amount := range v.escrow {
		if amount.IsZero() {
			continue
		}
		escrow = append(escrow, TokenAmountEntry{Token: token, Amount: amount.String()})
	}
	return balances, escrow
}
