package engine

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openlot-io/auctionengine/core"
)

// CustodyAccount is the principal the custodian attributes escrowed assets to.
const CustodyAccount core.Principal = "engine:custody"

// Engine is the auction lifecycle and escrow settlement engine. It composes
// the registry, ledger, vault, custodian and guard; all cross-component
// effects run through its operations, never component-to-component.
type Engine struct {
	cfg       Config
	clock     Clock
	sink      EventSink
	guard     *Guard
	registry  *Registry
	custodian *Custodian
	vault     *Vault
	ledger    *Ledger

	// createMu serializes auction creation so the custody check and the id
	// assignment stay consistent; it is never held during bids or settlement.
	createMu sync.Mutex

	// withdrawMu keeps the ledger debit and the escrow release of a withdrawal
	// indivisible as seen by Snapshot, which captures both components.
	withdrawMu sync.Mutex
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithClock injects the time source. Production uses the system clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithEventSink injects the observer for emitted events.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// New creates an engine from the configuration.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	guard, err := NewGuard(cfg.Owner, cfg.FeePercent)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		clock:     defaultClock,
		guard:     guard,
		registry:  NewRegistry(),
		custodian: NewCustodian(CustodyAccount),
		vault:     NewVault(),
		ledger:    NewLedger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Custodian exposes the asset custodian for minting and approvals.
func (e *Engine) Custodian() *Custodian { return e.custodian }

// Vault exposes the fund vault for deposits and balance queries.
func (e *Engine) Vault() *Vault { return e.vault }

// Guard exposes the governance guard.
func (e *Engine) Guard() *Guard { return e.guard }

// Ledger exposes read access to withdrawable balances.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// CreateAuction lists an asset for sale and takes it into escrow. The whole
// operation is atomic: if custody transfer fails no auction record is kept.
func (e *Engine) CreateAuction(seller core.Principal, ref core.AssetRef, token core.PaymentToken, reservePrice decimal.Decimal, duration time.Duration) (uint64, error) {
	if e.guard.Paused() {
		return 0, fmt.Errorf("create auction: %w", core.ErrEnginePaused)
	}
	if seller == "" || token == "" {
		return 0, fmt.Errorf("create auction: empty seller or payment token: %w", core.ErrInvalidParameters)
	}
	if !reservePrice.IsPositive() || !reservePrice.IsInteger() {
		return 0, fmt.Errorf("create auction: reserve price %s must be a positive integral base-unit value: %w", reservePrice, core.ErrInvalidParameters)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("create auction: duration must be positive: %w", core.ErrInvalidParameters)
	}
	if duration > e.cfg.MaxDuration {
		return 0, fmt.Errorf("create auction: duration %s exceeds maximum %s: %w", duration, e.cfg.MaxDuration, core.ErrInvalidParameters)
	}

	e.createMu.Lock()
	defer e.createMu.Unlock()

	id := e.registry.peekNextID()
	if err := e.custodian.TransferIn(seller, ref, id); err != nil {
		return 0, fmt.Errorf("create auction: %w", err)
	}

	now := e.clock.Now()
	auction := &core.Auction{
		Seller:       seller,
		Asset:        ref,
		PaymentToken: token,
		ReservePrice: reservePrice,
		CurrentBid:   reservePrice,
		StartTime:    now,
		EndTime:      now.Add(duration),
		FeePercent:   e.guard.FeePercent(),
		Status:       core.StatusActive,
	}
	e.registry.insert(auction)

	e.emit(Event{
		Type:      EventAuctionCreated,
		AuctionID: auction.ID,
		Actor:     seller,
		Asset:     &ref,
		Token:     token,
		Amount:    reservePrice,
	})
	return auction.ID, nil
}

// GetAuction returns a read-only snapshot of the auction.
func (e *Engine) GetAuction(id uint64) (*core.Auction, error) {
	return e.registry.Snapshot(id)
}

// AuctionCount returns the number of auctions ever created.
func (e *Engine) AuctionCount() int {
	return e.registry.Count()
}

// ListAuctions returns snapshots of all auctions ordered by id.
func (e *Engine) ListAuctions() []*core.Auction {
	return e.registry.List()
}

// PlaceBid escrows the bidder's funds and makes them the auction leader.
// The superseded leader's stake is credited to their withdrawable balance;
// it is never pushed back synchronously.
func (e *Engine) PlaceBid(id uint64, bidder core.Principal, amount decimal.Decimal) error {
	if e.guard.Paused() {
		return fmt.Errorf("place bid: %w", core.ErrEnginePaused)
	}
	if bidder == "" {
		return fmt.Errorf("place bid: empty bidder: %w", core.ErrInvalidParameters)
	}
	if !amount.IsPositive() || !amount.IsInteger() {
		return fmt.Errorf("place bid: amount %s must be a positive integral base-unit value: %w", amount, core.ErrInvalidParameters)
	}

	lock, err := e.registry.lockFor(id)
	if err != nil {
		return fmt.Errorf("place bid: %w", err)
	}
	lock.Lock()
	defer lock.Unlock()

	auction, err := e.registry.get(id)
	if err != nil {
		return fmt.Errorf("place bid: %w", err)
	}
	if auction.Status != core.StatusActive {
		return fmt.Errorf("place bid on auction %d (%s): %w", id, auction.Status, core.ErrAuctionNotActive)
	}
	if !e.clock.Now().Before(auction.EndTime) {
		return fmt.Errorf("place bid on auction %d: %w", id, core.ErrAuctionExpired)
	}
	if bidder == auction.Seller {
		return fmt.Errorf("place bid on auction %d: seller cannot bid on own auction: %w", id, core.ErrInvalidParameters)
	}
	if !amount.GreaterThan(auction.CurrentBid) {
		return fmt.Errorf("place bid on auction %d: %s does not exceed %s: %w", id, amount, auction.CurrentBid, core.ErrBidTooLow)
	}

	// Escrow the new stake before touching any auction state so a funding
	// failure leaves everything untouched.
	if err := e.vault.escrowFrom(auction.PaymentToken, bidder, amount); err != nil {
		return fmt.Errorf("place bid on auction %d: %w", id, err)
	}

	if auction.HasBid() {
		e.ledger.Credit(auction.PaymentToken, auction.CurrentBidder, auction.CurrentBid)
	}
	auction.CurrentBid = amount
	auction.CurrentBidder = bidder

	e.emit(Event{
		Type:      EventBidPlaced,
		AuctionID: id,
		Actor:     bidder,
		Token:     auction.PaymentToken,
		Amount:    amount,
	})
	return nil
}

// CancelAuction returns the asset to the seller before any bid was placed.
// Only the seller or governance may cancel.
func (e *Engine) CancelAuction(id uint64, caller core.Principal) error {
	if e.guard.Paused() {
		return fmt.Errorf("cancel auction: %w", core.ErrEnginePaused)
	}
	lock, err := e.registry.lockFor(id)
	if err != nil {
		return fmt.Errorf("cancel auction: %w", err)
	}
	lock.Lock()
	defer lock.Unlock()

	auction, err := e.registry.get(id)
	if err != nil {
		return fmt.Errorf("cancel auction: %w", err)
	}
	if auction.Status != core.StatusActive {
		return fmt.Errorf("cancel auction %d (%s): %w", id, auction.Status, core.ErrAuctionNotActive)
	}
	if caller != auction.Seller && !e.guard.IsGovernance(caller) {
		return fmt.Errorf("cancel auction %d by %s: %w", id, caller, core.ErrUnauthorized)
	}
	if auction.HasBid() {
		return fmt.Errorf("cancel auction %d: %w", id, core.ErrAlreadyBid)
	}

	if err := e.custodian.TransferOut(auction.Asset, auction.Seller, id); err != nil {
		return fmt.Errorf("cancel auction %d: %w", id, err)
	}
	auction.Status = core.StatusCancelled

	e.emit(Event{
		Type:      EventAuctionCancelled,
		AuctionID: id,
		Actor:     caller,
		Asset:     &auction.Asset,
	})
	return nil
}

// EndAuction settles an auction exactly once. After the end time anyone may
// trigger it; before the end time only the seller or governance may force an
// early close, which settles to the current leader if one exists.
//
// Settlement is atomic: the only fallible step is the custody transfer, which
// runs first, so a failure leaves the auction Active and untouched for retry.
// The ledger credits and the status flip that follow cannot fail.
func (e *Engine) EndAuction(id uint64, caller core.Principal) error {
	if e.guard.Paused() {
		return fmt.Errorf("end auction: %w", core.ErrEnginePaused)
	}
	lock, err := e.registry.lockFor(id)
	if err != nil {
		return fmt.Errorf("end auction: %w", err)
	}
	lock.Lock()
	defer lock.Unlock()

	auction, err := e.registry.get(id)
	if err != nil {
		return fmt.Errorf("end auction: %w", err)
	}
	if auction.Status != core.StatusActive {
		return fmt.Errorf("end auction %d (%s): %w", id, auction.Status, core.ErrAuctionNotActive)
	}
	if e.clock.Now().Before(auction.EndTime) {
		if caller != auction.Seller && !e.guard.IsGovernance(caller) {
			return fmt.Errorf("end auction %d by %s before end time: %w", id, caller, core.ErrTooEarly)
		}
	}

	if !auction.HasBid() {
		// No-bid close: the asset goes back to the seller, no funds move.
		if err := e.custodian.TransferOut(auction.Asset, auction.Seller, id); err != nil {
			return fmt.Errorf("end auction %d: return asset: %v: %w", id, err, core.ErrSettlementFailed)
		}
		auction.Status = core.StatusCancelled

		e.emit(Event{
			Type:      EventAuctionCancelled,
			AuctionID: id,
			Actor:     caller,
			Asset:     &auction.Asset,
		})
		return nil
	}

	fee, sellerAmount, err := core.SplitProceeds(auction.CurrentBid, auction.FeePercent)
	if err != nil {
		return fmt.Errorf("end auction %d: %v: %w", id, err, core.ErrSettlementFailed)
	}

	if err := e.custodian.TransferOut(auction.Asset, auction.CurrentBidder, id); err != nil {
		return fmt.Errorf("end auction %d: transfer asset: %v: %w", id, err, core.ErrSettlementFailed)
	}

	// Proceeds and fee use the same pull mechanism as superseded bids; a
	// misbehaving seller or platform account can never block settlement.
	e.ledger.Credit(auction.PaymentToken, auction.Seller, sellerAmount)
	e.ledger.Credit(auction.PaymentToken, e.cfg.PlatformAccount, fee)
	auction.Status = core.StatusEnded

	e.emit(Event{
		Type:      EventAuctionEnded,
		AuctionID: id,
		Actor:     auction.CurrentBidder,
		Asset:     &auction.Asset,
		Token:     auction.PaymentToken,
		Amount:    auction.CurrentBid,
	})
	return nil
}

// Withdraw pays out the caller's full withdrawable balance for the token and
// zeroes it. A zero balance is a no-op, not an error, and withdrawal works
// regardless of any auction's status or an engine pause.
func (e *Engine) Withdraw(caller core.Principal, token core.PaymentToken) (decimal.Decimal, error) {
	if caller == "" || token == "" {
		return decimal.Zero, fmt.Errorf("withdraw: empty caller or token: %w", core.ErrInvalidParameters)
	}

	e.withdrawMu.Lock()
	defer e.withdrawMu.Unlock()

	amount := e.ledger.takeAll(token, caller)
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	if err := e.vault.releaseTo(token, caller, amount); err != nil {
		// The escrow pool should always cover ledger credits. Re-credit so
		// the caller keeps their claim and surface the invariant breach.
		e.ledger.Credit(token, caller, amount)
		log.Printf("ERROR: withdraw %s %s for %s hit escrow underflow: %v", amount, token, caller, err)
		return decimal.Zero, fmt.Errorf("withdraw: %w", err)
	}

	e.emit(Event{
		Type:   EventFundsWithdrawn,
		Actor:  caller,
		Token:  token,
		Amount: amount,
	})
	return amount, nil
}
