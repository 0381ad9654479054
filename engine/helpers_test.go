package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/openlot-io/auctionengine/core"
)

// fakeClock is a manually advanced Clock for deterministic timing tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func testConfig() Config {
	return Config{
		Owner:           "governance",
		PlatformAccount: "platform",
		FeePercent:      10,
		MaxDuration:     30 * 24 * time.Hour,
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	e, err := New(testConfig(), append([]Option{WithClock(clock)}, opts...)...)
	check.Nil(t, err)
	check.NotNil(t, e)
	return e, clock
}

// listAsset mints the asset to the seller and approves the engine custodian.
func listAsset(t *testing.T, e *Engine, seller core.Principal, ref core.AssetRef) {
	t.Helper()
	check.Nil(t, e.Custodian().Mint(seller, ref))
	check.Nil(t, e.Custodian().Approve(seller, CustodyAccount, ref))
}

// fund gives the principal a free vault balance to bid with.
func fund(t *testing.T, e *Engine, principal core.Principal, amount int64) {
	t.Helper()
	check.Nil(t, e.Vault().Deposit(core.NativeToken, principal, dec(amount)))
}

// createStandardAuction lists art/1 for "seller" at reserve 100 for one hour.
func createStandardAuction(t *testing.T, e *Engine) uint64 {
	t.Helper()
	ref := core.AssetRef{Collection: "art", TokenID: 1}
	listAsset(t, e, "seller", ref)
	id, err := e.CreateAuction("seller", ref, core.NativeToken, dec(100), time.Hour)
	check.Nil(t, err)
	return id
}
