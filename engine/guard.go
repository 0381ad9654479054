package engine

import (
	"fmt"
	"sync"

	"github.com/openlot-io/auctionengine/core"
)

// Guard authorizes governance actions: fee changes, pause, ownership
// transfer, and migration issuance. It never touches auction funds; fee
// changes only affect auctions created afterwards because every auction
// snapshots the fee at creation.
type Guard struct {
	mu         sync.RWMutex
	owner      core.Principal
	feePercent int64
	paused     bool
}

// NewGuard creates a guard with the initial governance owner and fee rate.
func NewGuard(owner core.Principal, feePercent int64) (*Guard, error) {
	if owner == "" {
		return nil, fmt.Errorf("guard: empty owner: %w", core.ErrInvalidParameters)
	}
	if feePercent < 0 || feePercent > 100 {
		return nil, fmt.Errorf("guard: fee percent %d out of range [0,100]: %w", feePercent, core.ErrInvalidParameters)
	}
	return &Guard{owner: owner, feePercent: feePercent}, nil
}

// IsGovernance reports whether caller is the governance principal.
func (g *Guard) IsGovernance(caller core.Principal) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return caller != "" && caller == g.owner
}

// Owner returns the current governance principal.
func (g *Guard) Owner() core.Principal {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

// FeePercent returns the rate snapshotted into newly created auctions.
func (g *Guard) FeePercent() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.feePercent
}

// Paused reports whether the engine rejects new bids and settlements.
func (g *Guard) Paused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// SetFeeRate changes the fee rate for future auctions only.
func (g *Guard) SetFeeRate(caller core.Principal, newRate int64) error {
	if newRate < 0 || newRate > 100 {
		return fmt.Errorf("set fee rate %d out of range [0,100]: %w", newRate, core.ErrInvalidParameters)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if caller == "" || caller != g.owner {
		return fmt.Errorf("set fee rate by %s: %w", caller, core.ErrUnauthorized)
	}
	g.feePercent = newRate
	return nil
}

// Pause stops auction creation, bidding, cancellation and settlement.
// Withdrawals stay open so custody recovery is never gated on governance.
func (g *Guard) Pause(caller core.Principal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if caller == "" || caller != g.owner {
		return fmt.Errorf("pause by %s: %w", caller, core.ErrUnauthorized)
	}
	g.paused = true
	return nil
}

// Resume lifts a pause.
func (g *Guard) Resume(caller core.Principal) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if caller == "" || caller != g.owner {
		return fmt.Errorf("resume by %s: %w", caller, core.ErrUnauthorized)
	}
	g.paused = false
	return nil
}

// TransferOwnership hands governance to next.
func (g *Guard) TransferOwnership(caller, next core.Principal) error {
	if next == "" {
		return fmt.Errorf("transfer ownership: empty successor: %w", core.ErrInvalidParameters)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if caller == "" || caller != g.owner {
		return fmt.Errorf("transfer ownership by %s: %w", caller, core.ErrUnauthorized)
	}
	g.owner = next
	return nil
}

// snapshotState copies the guard state for migration.
func (g *Guard) snapshotState() (owner core.Principal, feePercent int64, paused bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner, g.feePercent, g.paused
}
