package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/check"

	"github.com/openlot-io/auctionengine/core"
)

// buildBusyEngine stages an engine mid-lifecycle: one auction with a
// superseded bid, one without bids, and an unrelated minted asset.
func buildBusyEngine(t *testing.T) (*Engine, *fakeClock, uint64, uint64) {
	t.Helper()
	e, clock := newTestEngine(t)

	first := createStandardAuction(t, e)
	fund(t, e, "bidder_a", 1000)
	fund(t, e, "bidder_b", 1000)
	check.Nil(t, e.PlaceBid(first, "bidder_a", dec(150)))
	check.Nil(t, e.PlaceBid(first, "bidder_b", dec(300)))

	ref := core.AssetRef{Collection: "art", TokenID: 2}
	listAsset(t, e, "seller", ref)
	second, err := e.CreateAuction("seller", ref, core.NativeToken, dec(500), 2*time.Hour)
	check.Nil(t, err)

	check.Nil(t, e.Custodian().Mint("collector", core.AssetRef{Collection: "art", TokenID: 3}))

	return e, clock, first, second
}

func TestSnapshot_RequiresGovernance(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Snapshot("random_caller")
	check.True(t, errors.Is(err, core.ErrUnauthorized))

	payload, err := e.Snapshot("governance")
	check.Nil(t, err)
	check.NotNil(t, payload)
	check.Equal(t, SnapshotVersion, payload.Version)
	check.Equal(t, core.ComputeSnapshotHash(payload.Body), payload.Hash)
}

func TestSnapshot_RestorePreservesEverything(t *testing.T) {
	e, clock, first, second := buildBusyEngine(t)

	payload, err := e.Snapshot("governance")
	check.Nil(t, err)
	check.Nil(t, VerifySnapshot(payload))

	restored, err := NewFromSnapshot(testConfig(), payload, WithClock(clock))
	check.Nil(t, err)

	// Auction records restored verbatim
	check.Equal(t, e.AuctionCount(), restored.AuctionCount())
	for _, id := range []uint64{first, second} {
		want, err := e.GetAuction(id)
		check.Nil(t, err)
		got, err := restored.GetAuction(id)
		check.Nil(t, err)
		check.Equal(t, want, got)
	}

	// Withdrawable balances and vault state survive exactly
	check.True(t, restored.Ledger().Withdrawable(core.NativeToken, "bidder_a").Equal(dec(150)))
	check.True(t, restored.Vault().EscrowBalance(core.NativeToken).Equal(dec(950)))
	check.True(t, restored.Vault().BalanceOf(core.NativeToken, "bidder_a").Equal(dec(850)))
	check.True(t, restored.Vault().BalanceOf(core.NativeToken, "bidder_b").Equal(dec(700)))

	// Custody bindings survive: both listed assets still escrowed
	for id, tokenID := range map[uint64]uint64{first: 1, second: 2} {
		bound, open := restored.Custodian().EscrowedBy(core.AssetRef{Collection: "art", TokenID: tokenID})
		check.True(t, open)
		check.Equal(t, id, bound)
	}
	owner, err := restored.Custodian().OwnerOf(core.AssetRef{Collection: "art", TokenID: 3})
	check.Nil(t, err)
	check.Equal(t, core.Principal("collector"), owner)

	// Governance state carried over
	check.Equal(t, core.Principal("governance"), restored.Guard().Owner())
	check.Equal(t, int64(10), restored.Guard().FeePercent())
	check.False(t, restored.Guard().Paused())

	// The restored engine keeps operating: ids continue, auctions settle
	ref := core.AssetRef{Collection: "art", TokenID: 4}
	listAsset(t, restored, "seller", ref)
	next, err := restored.CreateAuction("seller", ref, core.NativeToken, dec(100), time.Hour)
	check.Nil(t, err)
	check.Equal(t, second+1, next)

	clock.Advance(3 * time.Hour)
	check.Nil(t, restored.EndAuction(first, "anyone"))
	check.True(t, restored.Ledger().Withdrawable(core.NativeToken, "seller").Equal(dec(270)))
	check.True(t, restored.Ledger().Withdrawable(core.NativeToken, "platform").Equal(dec(30)))

	got, err := restored.Withdraw("bidder_a", core.NativeToken)
	check.Nil(t, err)
	check.True(t, got.Equal(dec(150)))
}

func TestSnapshot_PauseStateSurvivesMigration(t *testing.T) {
	e, clock := newTestEngine(t)
	createStandardAuction(t, e)
	check.Nil(t, e.Guard().Pause("governance"))

	payload, err := e.Snapshot("governance")
	check.Nil(t, err)

	restored, err := NewFromSnapshot(testConfig(), payload, WithClock(clock))
	check.Nil(t, err)
	check.True(t, restored.Guard().Paused())

	fund(t, restored, "bidder_a", 1000)
	err = restored.PlaceBid(1, "bidder_a", dec(150))
	check.True(t, errors.Is(err, core.ErrEnginePaused))
}

func TestSnapshot_TamperedBodyRejected(t *testing.T) {
	e, _, _, _ := buildBusyEngine(t)

	payload, err := e.Snapshot("governance")
	check.Nil(t, err)

	tampered := *payload
	tampered.Body = append([]byte(nil), payload.Body...)
	tampered.Body[0] ^= 0xff

	err = VerifySnapshot(&tampered)
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))

	_, err = NewFromSnapshot(testConfig(), &tampered)
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))
}

func TestSnapshot_WrongVersionRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	payload, err := e.Snapshot("governance")
	check.Nil(t, err)

	payload.Version = 99
	err = VerifySnapshot(payload)
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))
}

// encodeBody wraps a hand-built body in a correctly hashed payload so the
// invariant checks, not the hash check, decide the outcome.
func encodeBody(t *testing.T, body SnapshotBody) *SnapshotPayload {
	t.Helper()
	encoded, err := cbor.Marshal(&body)
	check.Nil(t, err)
	return &SnapshotPayload{
		Version: SnapshotVersion,
		Hash:    core.ComputeSnapshotHash(encoded),
		Body:    encoded,
	}
}

func TestSnapshot_ConservationViolationRejected(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	auction := &core.Auction{
		ID:            1,
		Seller:        "seller",
		Asset:         core.AssetRef{Collection: "art", TokenID: 1},
		PaymentToken:  core.NativeToken,
		ReservePrice:  dec(100),
		CurrentBid:    dec(300),
		CurrentBidder: "bidder_b",
		StartTime:     start,
		EndTime:       start.Add(time.Hour),
		FeePercent:    10,
		Status:        core.StatusActive,
	}

	body := SnapshotBody{
		NextID:   2,
		Auctions: []*core.Auction{auction},
		Withdrawable: []BalanceEntry{
			{Token: core.NativeToken, Principal: "bidder_a", Amount: "150"},
		},
		// Escrow pool short by the withdrawable credit: value was lost
		VaultEscrow: []TokenAmountEntry{
			{Token: core.NativeToken, Amount: "300"},
		},
		AssetOwners: []AssetOwnerEntry{
			{Asset: auction.Asset, Principal: CustodyAccount},
		},
		CustodyBindings: []AssetBindingEntry{
			{Asset: auction.Asset, AuctionID: 1},
		},
		Owner:           "governance",
		FeePercent:      10,
		PlatformAccount: "platform",
	}

	err := VerifySnapshot(encodeBody(t, body))
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))

	// Restoring the missing credit makes the same snapshot valid
	body.VaultEscrow[0].Amount = "450"
	check.Nil(t, VerifySnapshot(encodeBody(t, body)))
}

func TestSnapshot_DuplicateBalanceEntriesRejected(t *testing.T) {
	// Restore installs each (token, principal) balance under one map key, so
	// a body carrying the same key twice would collapse on restore and strand
	// escrowed value with no claimant. Verification must reject it outright.
	body := SnapshotBody{
		NextID: 1,
		Withdrawable: []BalanceEntry{
			{Token: core.NativeToken, Principal: "bidder_a", Amount: "100"},
			{Token: core.NativeToken, Principal: "bidder_a", Amount: "50"},
		},
		VaultEscrow: []TokenAmountEntry{
			{Token: core.NativeToken, Amount: "150"},
		},
		Owner:           "governance",
		FeePercent:      10,
		PlatformAccount: "platform",
	}

	err := VerifySnapshot(encodeBody(t, body))
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))

	_, err = NewFromSnapshot(testConfig(), encodeBody(t, body))
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))

	// Collapsed into a single entry the same claim verifies and restores
	body.Withdrawable = []BalanceEntry{
		{Token: core.NativeToken, Principal: "bidder_a", Amount: "150"},
	}
	restored, err := NewFromSnapshot(testConfig(), encodeBody(t, body))
	check.Nil(t, err)
	check.True(t, restored.Ledger().Withdrawable(core.NativeToken, "bidder_a").Equal(dec(150)))

	got, err := restored.Withdraw("bidder_a", core.NativeToken)
	check.Nil(t, err)
	check.True(t, got.Equal(dec(150)))
	check.True(t, restored.Vault().EscrowBalance(core.NativeToken).IsZero())
}

func TestSnapshot_DuplicateVaultEntriesRejected(t *testing.T) {
	body := SnapshotBody{
		NextID: 1,
		VaultBalances: []BalanceEntry{
			{Token: core.NativeToken, Principal: "bidder_a", Amount: "100"},
			{Token: core.NativeToken, Principal: "bidder_a", Amount: "100"},
		},
		Owner:           "governance",
		FeePercent:      10,
		PlatformAccount: "platform",
	}
	err := VerifySnapshot(encodeBody(t, body))
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))

	body.VaultBalances = nil
	body.VaultEscrow = []TokenAmountEntry{
		{Token: core.NativeToken, Amount: "0"},
		{Token: core.NativeToken, Amount: "0"},
	}
	err = VerifySnapshot(encodeBody(t, body))
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))
}

func TestSnapshot_ConsistentUnderConcurrentWithdrawals(t *testing.T) {
	e, _ := newTestEngine(t)
	id := createStandardAuction(t, e)

	// Ten superseded leaders, each with a withdrawable credit
	const bidders = 10
	for i := 0; i < bidders; i++ {
		bidder := core.Principal(string(rune('a'+i)) + "_bidder")
		fund(t, e, bidder, 10_000)
		check.Nil(t, e.PlaceBid(id, bidder, dec(int64(200+10*i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < bidders-1; i++ {
		bidder := core.Principal(string(rune('a'+i)) + "_bidder")
		wg.Add(1)
		go func(who core.Principal) {
			defer wg.Done()
			_, err := e.Withdraw(who, core.NativeToken)
			check.Nil(t, err)
		}(bidder)
	}

	// Every snapshot taken while withdrawals race must verify: the escrow
	// pool and the claims against it are captured as one consistent cut.
	for i := 0; i < 50; i++ {
		payload, err := e.Snapshot("governance")
		check.Nil(t, err)
		check.Nil(t, VerifySnapshot(payload))
	}
	wg.Wait()

	payload, err := e.Snapshot("governance")
	check.Nil(t, err)
	check.Nil(t, VerifySnapshot(payload))
}

func TestSnapshot_MissingCustodyBindingRejected(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	auction := &core.Auction{
		ID:           1,
		Seller:       "seller",
		Asset:        core.AssetRef{Collection: "art", TokenID: 1},
		PaymentToken: core.NativeToken,
		ReservePrice: dec(100),
		CurrentBid:   dec(100),
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		FeePercent:   10,
		Status:       core.StatusActive,
	}

	body := SnapshotBody{
		NextID:   2,
		Auctions: []*core.Auction{auction},
		AssetOwners: []AssetOwnerEntry{
			{Asset: auction.Asset, Principal: CustodyAccount},
		},
		// No custody binding for the active auction's asset
		Owner:           "governance",
		FeePercent:      10,
		PlatformAccount: "platform",
	}

	err := VerifySnapshot(encodeBody(t, body))
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))
}

func TestSnapshot_DuplicateAuctionRejected(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	auction := &core.Auction{
		ID:           1,
		Seller:       "seller",
		Asset:        core.AssetRef{Collection: "art", TokenID: 1},
		PaymentToken: core.NativeToken,
		ReservePrice: dec(100),
		CurrentBid:   dec(100),
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		FeePercent:   10,
		Status:       core.StatusCancelled,
	}

	body := SnapshotBody{
		NextID:          2,
		Auctions:        []*core.Auction{auction, auction.Clone()},
		Owner:           "governance",
		FeePercent:      10,
		PlatformAccount: "platform",
	}

	err := VerifySnapshot(encodeBody(t, body))
	check.True(t, errors.Is(err, core.ErrInvalidSnapshot))
}
