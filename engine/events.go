package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/openlot-io/auctionengine/core"
)

// EventType classifies an observable engine event.
type EventType string

const (
	EventAuctionCreated   EventType = "auction_created"
	EventBidPlaced        EventType = "bid_placed"
	EventAuctionEnded     EventType = "auction_ended"
	EventAuctionCancelled EventType = "auction_cancelled"
	EventFundsWithdrawn   EventType = "funds_withdrawn"
)

// Event is an observable record of a completed state change, emitted for
// external indexing. Events never drive engine control flow.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	AuctionID uint64            `json:"auction_id,omitempty"`
	Actor     core.Principal    `json:"actor,omitempty"`
	Asset     *core.AssetRef    `json:"asset,omitempty"`
	Token     core.PaymentToken `json:"token,omitempty"`
	Amount    decimal.Decimal   `json:"amount"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventSink receives emitted events. A nil sink drops them.
//
// The sink runs on the calling goroutine while the engine still holds the
// originating auction's lock: it must not call back into the engine. Sinks
// that need engine access should hand the event off to another goroutine.
type EventSink func(Event)

func (e *Engine) emit(ev Event) {
	if e.sink == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.Timestamp = e.clock.Now()
	e.sink(ev)
}
