package engine

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/openlot-io/auctionengine/core"
)

// Ledger exclusively owns withdrawable balances: funds credited to a
// principal from superseded bids, settlement proceeds, or platform fees.
// Balances are strictly additive until withdrawn, then zeroed in one
// indivisible step, so a double-withdraw is impossible even under
// concurrent calls from the same principal.
type Ledger struct {
	mu   sync.Mutex
	owed map[balanceKey]decimal.Decimal
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{owed: make(map[balanceKey]decimal.Decimal)}
}

// Credit adds amount to the (token, principal) withdrawable balance.
func (l *Ledger) Credit(token core.PaymentToken, principal core.Principal, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{Token: token, Principal: principal}
	l.owed[key] = l.owed[key].Add(amount)
}

// Withdrawable returns the current withdrawable balance.
func (l *Ledger) Withdrawable(token core.PaymentToken, principal core.Principal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owed[balanceKey{Token: token, Principal: principal}]
}

// takeAll atomically reads and zeroes the balance. This is the only way a
// withdrawable balance ever decreases.
func (l *Ledger) takeAll(token core.PaymentToken, principal core.Principal) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{Token: token, Principal: principal}
	amount := l.owed[key]
	delete(l.owed, key)
	return amount
}

// snapshotState copies all non-zero withdrawable balances for migration.
func (l *Ledger) snapshotState() []BalanceEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]BalanceEntry, 0, len(l.owed))
	for key, amount := range l.owed {
		if amount.IsZero() {
			continue
		}
		entries = append(entries, BalanceEntry{Token: key.Token, Principal: key.Principal, Amount: amount.String()})
	}
	return entries
}
