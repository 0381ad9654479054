package engine

import (
	"fmt"
	"sync"

	"github.com/openlot-io/auctionengine/core"
)

// Custodian holds non-fungible assets and exclusively owns the
// transfer-in/transfer-out mechanics. While an auction is open its asset is
// owned by the custodian's operator principal and bound to that auction;
// an asset with an open binding can never enter a second auction.
type Custodian struct {
	mu        sync.Mutex
	operator  core.Principal
	owners    map[core.AssetRef]core.Principal
	approvals map[core.AssetRef]core.Principal
	bindings  map[core.AssetRef]uint64
}

// NewCustodian creates a custodian whose escrow holdings are attributed to
// the given operator principal.
func NewCustodian(operator core.Principal) *Custodian {
	return &Custodian{
		operator:  operator,
		owners:    make(map[core.AssetRef]core.Principal),
		approvals: make(map[core.AssetRef]core.Principal),
		bindings:  make(map[core.AssetRef]uint64),
	}
}

// Mint registers a new asset unit owned by owner. It fails if the asset
// already exists.
func (c *Custodian) Mint(owner core.Principal, ref core.AssetRef) error {
	if owner == "" {
		return fmt.Errorf("mint %s: empty owner: %w", ref, core.ErrInvalidParameters)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.owners[ref]; exists {
		return fmt.Errorf("mint %s: asset already exists: %w", ref, core.ErrInvalidParameters)
	}
	c.owners[ref] = owner
	return nil
}

// Approve lets the current owner authorize operator to take the asset into
// escrow. Approval is cleared on every transfer.
func (c *Custodian) Approve(owner, operator core.Principal, ref core.AssetRef) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, exists := c.owners[ref]
	if !exists {
		return fmt.Errorf("approve %s: %w", ref, core.ErrNotFound)
	}
	if current != owner {
		return fmt.Errorf("approve %s: caller %s is not the owner: %w", ref, owner, core.ErrUnauthorized)
	}
	c.approvals[ref] = operator
	return nil
}

// OwnerOf returns the current owner of the asset.
func (c *Custodian) OwnerOf(ref core.AssetRef) (core.Principal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, exists := c.owners[ref]
	if !exists {
		return "", fmt.Errorf("owner of %s: %w", ref, core.ErrNotFound)
	}
	return owner, nil
}

// EscrowedBy returns the auction the asset is currently bound to, if any.
func (c *Custodian) EscrowedBy(ref core.AssetRef) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, bound := c.bindings[ref]
	return id, bound
}

// TransferIn moves the asset from seller into engine custody and binds it to
// auctionID. The seller must own the asset and must have approved the
// custodian's operator beforehand.
func (c *Custodian) TransferIn(seller core.Principal, ref core.AssetRef, auctionID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, exists := c.owners[ref]
	if !exists {
		return fmt.Errorf("transfer in %s: unknown asset: %w", ref, core.ErrInsufficientCustody)
	}
	if owner != seller {
		return fmt.Errorf("transfer in %s: seller %s is not the owner: %w", ref, seller, core.ErrInsufficientCustody)
	}
	if c.approvals[ref] != c.operator {
		return fmt.Errorf("transfer in %s: custodian not approved: %w", ref, core.ErrInsufficientCustody)
	}
	if bound, open := c.bindings[ref]; open {
		return fmt.Errorf("transfer in %s: already escrowed for auction %d: %w", ref, bound, core.ErrInsufficientCustody)
	}

	c.owners[ref] = c.operator
	delete(c.approvals, ref)
	c.bindings[ref] = auctionID
	return nil
}

// TransferOut releases the asset from engine custody to the recipient and
// clears the auction binding. The binding must match auctionID exactly.
func (c *Custodian) TransferOut(ref core.AssetRef, to core.Principal, auctionID uint64) error {
	if to == "" {
		return fmt.Errorf("transfer out %s: empty recipient: %w", ref, core.ErrInsufficientCustody)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bound, open := c.bindings[ref]
	if !open || bound != auctionID {
		return fmt.Errorf("transfer out %s: not escrowed for auction %d: %w", ref, auctionID, core.ErrInsufficientCustody)
	}
	if c.owners[ref] != c.operator {
		return fmt.Errorf("transfer out %s: custody record inconsistent: %w", ref, core.ErrInsufficientCustody)
	}

	c.owners[ref] = to
	delete(c.bindings, ref)
	delete(c.approvals, ref)
	return nil
}

// snapshotState copies the custodian's full state for migration.
func (c *Custodian) snapshotState() (owners, approvals []AssetOwnerEntry, bindings []AssetBindingEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for ref, owner := range c.owners {
		owners = append(owners, AssetOwnerEntry{Asset: ref, Principal: owner})
	}
	for ref, operator := range c.approvals {
		approvals = append(approvals, AssetOwnerEntry{Asset: ref, Principal: operator})
	}
	for ref, id := range c.bindings {
		bindings = append(bindings, AssetBindingEntry{Asset: ref, AuctionID: id})
	}
	return owners, approvals, bindings
}
