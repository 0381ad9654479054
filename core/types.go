package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Principal identifies an account that can own assets, hold funds, and call
// engine operations. The empty principal is invalid everywhere.
type Principal string

// PaymentToken identifies the fungible medium an auction is denominated in.
type PaymentToken string

// NativeToken is the sentinel for the platform's native currency.
const NativeToken PaymentToken = "native"

// AssetRef identifies exactly one non-fungible asset unit.
type AssetRef struct {
	Collection string `json:"collection"`
	TokenID    uint64 `json:"token_id"`
}

func (r AssetRef) String() string {
	return fmt.Sprintf("%s/%d", r.Collection, r.TokenID)
}

// AuctionStatus is the lifecycle state of an auction.
// Active is the only non-terminal state; no transition leaves Ended or Cancelled.
type AuctionStatus int

const (
	StatusActive AuctionStatus = iota
	StatusEnded
	StatusCancelled
)

func (s AuctionStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Auction is one time-bounded sale of a custodied asset.
//
// CurrentBid starts at ReservePrice with no bidder; every accepted bid must
// strictly exceed it. FeePercent is the platform fee captured at creation and
// immutable afterwards, so governance fee changes never affect open auctions.
// All amounts are denominated in integral base units of PaymentToken.
type Auction struct {
	ID            uint64          `json:"id"`
	Seller        Principal       `json:"seller"`
	Asset         AssetRef        `json:"asset"`
	PaymentToken  PaymentToken    `json:"payment_token"`
	ReservePrice  decimal.Decimal `json:"reserve_price"`
	CurrentBid    decimal.Decimal `json:"current_bid"`
	CurrentBidder Principal       `json:"current_bidder,omitempty"`
	StartTime     time.Time       `json:"start_time"`
	EndTime       time.Time       `json:"end_time"`
	FeePercent    int64           `json:"fee_percent"`
	Status        AuctionStatus   `json:"status"`
}

// HasBid reports whether at least one valid bid has been accepted.
func (a *Auction) HasBid() bool {
	return a.CurrentBidder != ""
}

// Clone returns an independent copy safe to hand to callers.
func (a *Auction) Clone() *Auction {
	c := *a
	return &c
}
