package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/openlot-io/auctionengine/core"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// snapshotEnc keeps nanosecond precision on auction timestamps; the default
// CBOR time mode truncates to whole seconds.
var snapshotEnc = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// BalanceEntry is one (token, principal) amount in a snapshot.
// Amounts are decimal strings so the wire format is exact and readable.
type BalanceEntry struct {
	Token     core.PaymentToken `cbor:"token" json:"token"`
	Principal core.Principal    `cbor:"principal" json:"principal"`
	Amount    string            `cbor:"amount" json:"amount"`
}

// TokenAmountEntry is one per-token total in a snapshot.
type TokenAmountEntry struct {
	Token  core.PaymentToken `cbor:"token" json:"token"`
	Amount string            `cbor:"amount" json:"amount"`
}

// AssetOwnerEntry binds an asset to a principal (owner or approved operator).
type AssetOwnerEntry struct {
	Asset     core.AssetRef  `cbor:"asset" json:"asset"`
	Principal core.Principal `cbor:"principal" json:"principal"`
}

// AssetBindingEntry binds an escrowed asset to its open auction.
type AssetBindingEntry struct {
	Asset     core.AssetRef `cbor:"asset" json:"asset"`
	AuctionID uint64        `cbor:"auction_id" json:"auction_id"`
}

// SnapshotBody is the complete engine state captured for migration.
type SnapshotBody struct {
	NextID          uint64              `cbor:"next_id" json:"next_id"`
	Auctions        []*core.Auction     `cbor:"auctions" json:"auctions"`
	Withdrawable    []BalanceEntry      `cbor:"withdrawable" json:"withdrawable"`
	VaultBalances   []BalanceEntry      `cbor:"vault_balances" json:"vault_balances"`
	VaultEscrow     []TokenAmountEntry  `cbor:"vault_escrow" json:"vault_escrow"`
	AssetOwners     []AssetOwnerEntry   `cbor:"asset_owners" json:"asset_owners"`
	AssetApprovals  []AssetOwnerEntry   `cbor:"asset_approvals" json:"asset_approvals"`
	CustodyBindings []AssetBindingEntry `cbor:"custody_bindings" json:"custody_bindings"`
	Owner           core.Principal      `cbor:"owner" json:"owner"`
	FeePercent      int64               `cbor:"fee_percent" json:"fee_percent"`
	Paused          bool                `cbor:"paused" json:"paused"`
	PlatformAccount core.Principal      `cbor:"platform_account" json:"platform_account"`
}

// SnapshotPayload wraps the CBOR-encoded body with its version and canonical
// hash. Migration authorizations sign the hash, never the raw body.
type SnapshotPayload struct {
	Version   int       `cbor:"version" json:"version"`
	CreatedAt time.Time `cbor:"created_at" json:"created_at"`
	Hash      string    `cbor:"hash" json:"hash"`
	Body      []byte    `cbor:"body" json:"body"`
}

// DecodeBody decodes the CBOR body without verifying it.
func (p *SnapshotPayload) DecodeBody() (*SnapshotBody, error) {
	var body SnapshotBody
	if err := cbor.Unmarshal(p.Body, &body); err != nil {
		return nil, fmt.Errorf("decode snapshot body: %v: %w", err, core.ErrInvalidSnapshot)
	}
	return &body, nil
}

// Snapshot captures the full engine state for logic-version migration. Only
// governance may issue snapshots. The engine quiesces while the state is
// copied: creation, every per-auction lock and the withdrawal path are all
// held for the duration.
func (e *Engine) Snapshot(caller core.Principal) (*SnapshotPayload, error) {
	if !e.guard.IsGovernance(caller) {
		return nil, fmt.Errorf("snapshot by %s: %w", caller, core.ErrUnauthorized)
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()

	// Lock auctions in ascending id order so concurrent snapshots cannot
	// deadlock against each other.
	for _, id := range e.registry.sortedIDs() {
		lock, err := e.registry.lockFor(id)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		lock.Lock()
		defer lock.Unlock()
	}

	auctions := make([]*core.Auction, 0, e.registry.Count())
	for _, id := range e.registry.sortedIDs() {
		a, err := e.registry.get(id)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		auctions = append(auctions, a.Clone())
	}

	// Withdrawals debit the ledger and credit the vault as two steps;
	// withdrawMu keeps one from landing between the two captures below.
	e.withdrawMu.Lock()
	owners, approvals, bindings := e.custodian.snapshotState()
	balances, escrow := e.vault.snapshotState()
	owed := e.ledger.snapshotState()
	owner, feePercent, paused := e.guard.snapshotState()
	e.withdrawMu.Unlock()

	sortBalanceEntries(owed)
	sortBalanceEntries(balances)
	sort.Slice(escrow, func(i, j int) bool { return escrow[i].Token < escrow[j].Token })
	sortAssetEntries(owners)
	sortAssetEntries(approvals)
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].AuctionID < bindings[j].AuctionID })

	body := SnapshotBody{
		NextID:          e.registry.peekNextID(),
		Auctions:        auctions,
		Withdrawable:    owed,
		VaultBalances:   balances,
		VaultEscrow:     escrow,
		AssetOwners:     owners,
		AssetApprovals:  approvals,
		CustodyBindings: bindings,
		Owner:           owner,
		FeePercent:      feePercent,
		Paused:          paused,
		PlatformAccount: e.cfg.PlatformAccount,
	}

	encoded, err := snapshotEnc.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode body: %w", err)
	}

	return &SnapshotPayload{
		Version:   SnapshotVersion,
		CreatedAt: e.clock.Now(),
		Hash:      core.ComputeSnapshotHash(encoded),
		Body:      encoded,
	}, nil
}

// VerifySnapshot checks the payload hash and every state invariant without
// constructing an engine. NewFromSnapshot runs the same checks.
func VerifySnapshot(payload *SnapshotPayload) error {
	if payload == nil {
		return fmt.Errorf("nil payload: %w", core.ErrInvalidSnapshot)
	}
	if payload.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d: %w", payload.Version, core.ErrInvalidSnapshot)
	}
	if got := core.ComputeSnapshotHash(payload.Body); got != payload.Hash {
		return fmt.Errorf("snapshot hash mismatch (have %s, computed %s): %w", payload.Hash, got, core.ErrInvalidSnapshot)
	}
	body, err := payload.DecodeBody()
	if err != nil {
		return err
	}
	return verifySnapshotBody(body)
}

// NewFromSnapshot builds an engine whose auctions, balances, custody
// bindings and governance state are restored verbatim from the snapshot.
// The config contributes operational settings only (MaxDuration); owner,
// fee rate, pause flag and platform account come from the snapshot.
// Nothing is restored from a snapshot that fails verification.
func NewFromSnapshot(cfg Config, payload *SnapshotPayload, opts ...Option) (*Engine, error) {
	if err := VerifySnapshot(payload); err != nil {
		return nil, err
	}
	body, err := payload.DecodeBody()
	if err != nil {
		return nil, err
	}

	cfg.Owner = body.Owner
	cfg.FeePercent = body.FeePercent
	cfg.PlatformAccount = body.PlatformAccount

	e, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if body.Paused {
		e.guard.paused = true
	}

	for _, a := range body.Auctions {
		e.registry.restore(a.Clone())
	}
	e.registry.setNextID(body.NextID)

	if err := e.custodian.restoreState(body.AssetOwners, body.AssetApprovals, body.CustodyBindings); err != nil {
		return nil, err
	}
	if err := e.vault.restoreState(body.VaultBalances, body.VaultEscrow); err != nil {
		return nil, err
	}
	if err := e.ledger.restoreState(body.Withdrawable); err != nil {
		return nil, err
	}
	return e, nil
}

func sortBalanceEntries(entries []BalanceEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Token != entries[j].Token {
			return entries[i].Token < entries[j].Token
		}
		return entries[i].Principal < entries[j].Principal
	})
}

func sortAssetEntries(entries []AssetOwnerEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Asset.Collection != entries[j].Asset.Collection {
			return entries[i].Asset.Collection < entries[j].Asset.Collection
		}
		return entries[i].Asset.TokenID < entries[j].Asset.TokenID
	})
}

func parseAmount(context, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: bad amount %q: %w", context, raw, core.ErrInvalidSnapshot)
	}
	if amount.IsNegative() || !amount.IsInteger() {
		return decimal.Zero, fmt.Errorf("%s: amount %s must be a non-negative integral value: %w", context, raw, core.ErrInvalidSnapshot)
	}
	return amount, nil
}

// verifySnapshotBody checks every invariant the engine guarantees at run
// time: a snapshot that loses or duplicates value must never restore.
func verifySnapshotBody(body *SnapshotBody) error {
	if body.Owner == "" || body.PlatformAccount == "" {
		return fmt.Errorf("empty owner or platform account: %w", core.ErrInvalidSnapshot)
	}
	if body.FeePercent < 0 || body.FeePercent > 100 {
		return fmt.Errorf("fee percent %d out of range: %w", body.FeePercent, core.ErrInvalidSnapshot)
	}

	seen := make(map[uint64]*core.Auction, len(body.Auctions))
	activeBids := make(map[core.PaymentToken]decimal.Decimal)
	for _, a := range body.Auctions {
		if a.ID == 0 || a.ID >= body.NextID {
			return fmt.Errorf("auction id %d out of range (next id %d): %w", a.ID, body.NextID, core.ErrInvalidSnapshot)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("duplicate auction id %d: %w", a.ID, core.ErrInvalidSnapshot)
		}
		seen[a.ID] = a
		if a.Seller == "" {
			return fmt.Errorf("auction %d: empty seller: %w", a.ID, core.ErrInvalidSnapshot)
		}
		if !a.EndTime.After(a.StartTime) {
			return fmt.Errorf("auction %d: end time not after start time: %w", a.ID, core.ErrInvalidSnapshot)
		}
		if a.FeePercent < 0 || a.FeePercent > 100 {
			return fmt.Errorf("auction %d: fee snapshot %d out of range: %w", a.ID, a.FeePercent, core.ErrInvalidSnapshot)
		}
		if !a.ReservePrice.IsPositive() || !a.ReservePrice.IsInteger() || !a.CurrentBid.IsInteger() {
			return fmt.Errorf("auction %d: malformed amounts: %w", a.ID, core.ErrInvalidSnapshot)
		}
		if a.CurrentBid.LessThan(a.ReservePrice) {
			return fmt.Errorf("auction %d: current bid below reserve: %w", a.ID, core.ErrInvalidSnapshot)
		}
		if !a.HasBid() && !a.CurrentBid.Equal(a.ReservePrice) {
			return fmt.Errorf("auction %d: no bidder but current bid moved: %w", a.ID, core.ErrInvalidSnapshot)
		}
		if a.Status == core.StatusActive && a.HasBid() {
			activeBids[a.PaymentToken] = activeBids[a.PaymentToken].Add(a.CurrentBid)
		}
	}

	owners := make(map[core.AssetRef]core.Principal, len(body.AssetOwners))
	for _, entry := range body.AssetOwners {
		if _, dup := owners[entry.Asset]; dup {
			return fmt.Errorf("duplicate owner record for %s: %w", entry.Asset, core.ErrInvalidSnapshot)
		}
		owners[entry.Asset] = entry.Principal
	}

	bound := make(map[core.AssetRef]uint64, len(body.CustodyBindings))
	boundAuctions := make(map[uint64]bool, len(body.CustodyBindings))
	for _, binding := range body.CustodyBindings {
		if _, dup := bound[binding.Asset]; dup {
			return fmt.Errorf("asset %s bound twice: %w", binding.Asset, core.ErrInvalidSnapshot)
		}
		bound[binding.Asset] = binding.AuctionID
		a, exists := seen[binding.AuctionID]
		if !exists {
			return fmt.Errorf("binding for unknown auction %d: %w", binding.AuctionID, core.ErrInvalidSnapshot)
		}
		if a.Status != core.StatusActive {
			return fmt.Errorf("binding for terminal auction %d: %w", binding.AuctionID, core.ErrInvalidSnapshot)
		}
		if a.Asset != binding.Asset {
			return fmt.Errorf("binding asset %s does not match auction %d asset %s: %w", binding.Asset, a.ID, a.Asset, core.ErrInvalidSnapshot)
		}
		if owners[binding.Asset] != CustodyAccount {
			return fmt.Errorf("escrowed asset %s not owned by custody account: %w", binding.Asset, core.ErrInvalidSnapshot)
		}
		boundAuctions[binding.AuctionID] = true
	}
	for _, a := range body.Auctions {
		if a.Status == core.StatusActive && !boundAuctions[a.ID] {
			return fmt.Errorf("active auction %d has no custody binding: %w", a.ID, core.ErrInvalidSnapshot)
		}
	}

	// Balance entries must be unique per (token, principal): restore installs
	// them under one map key, so a duplicate that passed verification would
	// silently collapse and lose value.
	owed := make(map[core.PaymentToken]decimal.Decimal)
	owedKeys := make(map[balanceKey]bool, len(body.Withdrawable))
	for _, entry := range body.Withdrawable {
		key := balanceKey{Token: entry.Token, Principal: entry.Principal}
		if owedKeys[key] {
			return fmt.Errorf("duplicate withdrawable entry for %s/%s: %w", entry.Token, entry.Principal, core.ErrInvalidSnapshot)
		}
		owedKeys[key] = true
		amount, err := parseAmount("withdrawable", entry.Amount)
		if err != nil {
			return err
		}
		owed[entry.Token] = owed[entry.Token].Add(amount)
	}
	balanceKeys := make(map[balanceKey]bool, len(body.VaultBalances))
	for _, entry := range body.VaultBalances {
		key := balanceKey{Token: entry.Token, Principal: entry.Principal}
		if balanceKeys[key] {
			return fmt.Errorf("duplicate vault balance entry for %s/%s: %w", entry.Token, entry.Principal, core.ErrInvalidSnapshot)
		}
		balanceKeys[key] = true
		if _, err := parseAmount("vault balance", entry.Amount); err != nil {
			return err
		}
	}

	// Escrow conservation: per token, the pool must hold exactly every
	// withdrawable credit plus every active leading bid.
	escrow := make(map[core.PaymentToken]decimal.Decimal)
	for _, entry := range body.VaultEscrow {
		if _, dup := escrow[entry.Token]; dup {
			return fmt.Errorf("duplicate escrow entry for %s: %w", entry.Token, core.ErrInvalidSnapshot)
		}
		amount, err := parseAmount("vault escrow", entry.Amount)
		if err != nil {
			return err
		}
		escrow[entry.Token] = amount
	}
	tokens := make(map[core.PaymentToken]bool)
	for token := range escrow {
		tokens[token] = true
	}
	for token := range owed {
		tokens[token] = true
	}
	for token := range activeBids {
		tokens[token] = true
	}
	for token := range tokens {
		expected := owed[token].Add(activeBids[token])
		if !escrow[token].Equal(expected) {
			return fmt.Errorf("escrow pool for %s is %s, expected %s: %w", token, escrow[token], expected, core.ErrInvalidSnapshot)
		}
	}
	return nil
}

// restoreState installs custodian state verbatim during migration.
func (c *Custodian) restoreState(owners, approvals []AssetOwnerEntry, bindings []AssetBindingEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range owners {
		c.owners[entry.Asset] = entry.Principal
	}
	for _, entry := range approvals {
		c.approvals[entry.Asset] = entry.Principal
	}
	for _, binding := range bindings {
		c.bindings[binding.Asset] = binding.AuctionID
	}
	return nil
}

// restoreState installs vault state verbatim during migration.
func (v *Vault) restoreState(balances []BalanceEntry, escrow []TokenAmountEntry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, entry := range balances {
		amount, err := parseAmount("vault balance", entry.Amount)
		if err != nil {
			return err
		}
		v.balances[balanceKey{Token: entry.Token, Principal: entry.Principal}] = amount
	}
	for _, entry := range escrow {
		amount, err := parseAmount("vault escrow", entry.Amount)
		if err != nil {
			return err
		}
		v.escrow[entry.Token] = amount
	}
	return nil
}

// restoreState installs withdrawable balances verbatim during migration.
func (l *Ledger) restoreState(entries []BalanceEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, entry := range entries {
		amount, err := parseAmount("withdrawable", entry.Amount)
		if err != nil {
			return err
		}
		l.owed[balanceKey{Token: entry.Token, Principal: entry.Principal}] = amount
	}
	return nil
}
