package core

import "errors"

// Error taxonomy for the engine. Call sites wrap these with fmt.Errorf and %w
// so callers branch with errors.Is while keeping call-site context.
var (
	// ErrInvalidParameters reports malformed creation or bid input.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrNotFound reports an unknown auction or asset identifier.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized reports a caller lacking the required role.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAuctionNotActive reports an operation against a terminal auction.
	ErrAuctionNotActive = errors.New("auction not active")

	// ErrAuctionExpired reports a bid placed at or after the close time.
	ErrAuctionExpired = errors.New("auction expired")

	// ErrTooEarly reports a close attempt before the end time by a caller
	// that is neither the seller nor governance.
	ErrTooEarly = errors.New("too early to end auction")

	// ErrBidTooLow reports a bid that does not strictly exceed the current bid.
	ErrBidTooLow = errors.New("bid amount must be higher than current bid")

	// ErrAlreadyBid reports a cancellation attempted after a bid was accepted.
	ErrAlreadyBid = errors.New("auction already has a bid")

	// ErrSettlementFailed reports an atomic settlement that could not complete.
	// The auction remains Active and the call is safe to retry.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrInsufficientCustody reports an asset transfer rejected by the custodian.
	ErrInsufficientCustody = errors.New("insufficient custody")

	// ErrInsufficientFunds reports a bidder without enough balance to escrow.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrEnginePaused reports a state-changing call against a paused engine.
	// Withdrawals are never gated on pause.
	ErrEnginePaused = errors.New("engine paused")

	// ErrInvalidSnapshot reports a migration snapshot that failed hash or
	// invariant verification. Nothing is restored from such a snapshot.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)
