package bidding

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/audit"
	"github.com/lothammer/auction-backend/internal/domain/auction"
	"github.com/lothammer/auction-backend/internal/domain/bid"
	"github.com/lothammer/auction-backend/internal/domain/clock"
	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/values"
	"github.com/lothammer/auction-backend/internal/testutil/fixtures"
	"github.com/lothammer/auction-backend/internal/testutil/memstore"
)

// recorder captures published events for assertions.
type recorder struct {
	mu         sync.Mutex
	bids       []lot.Snapshot
	softCloses []lot.Snapshot
	closes     []lot.Snapshot
}

func (r *recorder) PublishBid(_ uuid.UUID, s lot.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bids = append(r.bids, s)
}

func (r *recorder) PublishSoftClose(_ uuid.UUID, s lot.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.softCloses = append(r.softCloses, s)
}

func (r *recorder) PublishLotClosed(_ uuid.UUID, s lot.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, s)
}

type engineFixture struct {
	svc     *Service
	store   *memstore.Store
	clock   *clock.Fixed
	auction *auction.Auction
	lot     *lot.Lot
	events  *recorder
}

// newEngine wires the service against memstore with a flat $10 increment so
// expected amounts stay easy to follow.
func newEngine(t *testing.T, mutate func(a *auction.Auction, l *lot.Lot)) *engineFixture {
	t.Helper()
	st := memstore.New()
	a := fixtures.ActiveAuction()
	a.IncrementRules = values.TierTable{values.NewTier("0", "", "10")}
	l := fixtures.ActiveLot(a, 1)
	if mutate != nil {
		mutate(a, l)
	}
	st.SeedAuction(a)
	st.SeedLot(l)
	clk := clock.NewFixed(fixtures.BaseTime)
	events := &recorder{}
	svc := NewService(st, clk, events, nil, zap.NewNop())
	return &engineFixture{svc: svc, store: st, clock: clk, auction: a, lot: l, events: events}
}

func (f *engineFixture) placeBid(t *testing.T, bidder, amount string, maxBid string) *PlaceBidResult {
	t.Helper()
	req := PlaceBidRequest{
		LotID:    f.lot.ID,
		BidderID: fixtures.Bidder(bidder),
		Amount:   fixtures.Money(amount),
	}
	if maxBid != "" {
		req.MaxBid = fixtures.MoneyPtr(maxBid)
	}
	res, err := f.svc.PlaceBid(context.Background(), req)
	require.NoError(t, err)
	return res
}

func (f *engineFixture) currentLot(t *testing.T) *lot.Lot {
	t.Helper()
	l, err := f.store.Lot(context.Background(), f.lot.ID)
	require.NoError(t, err)
	return l
}

func (f *engineFixture) auditKinds(t *testing.T) []audit.Kind {
	t.Helper()
	var kinds []audit.Kind
	for _, e := range f.store.AuditEvents(f.lot.ID) {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func TestPlaceBidFirstBidAccepted(t *testing.T) {
	f := newEngine(t, nil)

	res := f.placeBid(t, "alice", "10", "")

	assert.Equal(t, "ACCEPTED", res.ResultCode)
	assert.True(t, res.Accepted)
	assert.False(t, res.ProxyTriggered)

	l := f.currentLot(t)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("10")))
	require.NotNil(t, l.CurrentBidderID)
	assert.Equal(t, fixtures.Bidder("alice"), *l.CurrentBidderID)
	assert.Equal(t, 1, l.BidCount)

	assert.Equal(t, []audit.Kind{audit.KindBidPlaced}, f.auditKinds(t))
	assert.Len(t, f.events.bids, 1)
}

func TestPlaceBidBelowMinimumRejected(t *testing.T) {
	f := newEngine(t, nil)

	res := f.placeBid(t, "alice", "5", "")

	assert.Equal(t, "BID_TOO_LOW", res.ResultCode)
	assert.False(t, res.Accepted)
	assert.True(t, res.MinNextBid.Equal(fixtures.Money("10")), "floor on an unbid lot is the starting bid")

	l := f.currentLot(t)
	assert.True(t, l.CurrentBid.IsZero())
	assert.Equal(t, 0, l.BidCount)

	// Rejection is audited but nothing is published.
	assert.Equal(t, []audit.Kind{audit.KindBidRejected}, f.auditKinds(t))
	assert.Empty(t, f.events.bids)
}

func TestPlaceBidIncrementEnforced(t *testing.T) {
	f := newEngine(t, nil)
	f.placeBid(t, "alice", "50", "")

	res := f.placeBid(t, "bob", "55", "")

	assert.Equal(t, "BID_TOO_LOW", res.ResultCode)
	assert.True(t, res.MinNextBid.Equal(fixtures.Money("60")))

	res = f.placeBid(t, "bob", "60", "")
	assert.Equal(t, "ACCEPTED", res.ResultCode)
}

func TestPlaceBidSelfOutbidRejected(t *testing.T) {
	f := newEngine(t, nil)
	f.placeBid(t, "alice", "50", "")

	res := f.placeBid(t, "alice", "60", "")

	assert.Equal(t, "SELF_OUTBID", res.ResultCode)
	l := f.currentLot(t)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("50")))
	assert.Equal(t, 1, l.BidCount)
}

func TestPlaceBidInvalidMaxBid(t *testing.T) {
	f := newEngine(t, nil)

	res := f.placeBid(t, "alice", "60", "50")

	assert.Equal(t, "INVALID_MAX_BID", res.ResultCode)
	assert.Equal(t, 0, f.currentLot(t).BidCount)
}

func TestPlaceBidProxyDefendsStandingMax(t *testing.T) {
	f := newEngine(t, nil)
	f.placeBid(t, "alice", "50", "200")

	res := f.placeBid(t, "bob", "60", "")

	assert.Equal(t, "OUTBID_BY_PROXY", res.ResultCode)
	assert.False(t, res.Accepted)
	assert.True(t, res.ProxyTriggered)

	l := f.currentLot(t)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("70")), "defended at challenge + step")
	assert.Equal(t, fixtures.Bidder("alice"), *l.CurrentBidderID)
	assert.Equal(t, 3, l.BidCount, "challenge and defense both count")

	bids, err := f.store.BidsForLot(context.Background(), f.lot.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)

	challenge, defense := bids[1], bids[2]
	assert.Equal(t, fixtures.Bidder("bob"), challenge.BidderID)
	assert.True(t, challenge.Amount.Equal(fixtures.Money("60")))
	assert.False(t, challenge.IsWinning)

	assert.Equal(t, fixtures.Bidder("alice"), defense.BidderID)
	assert.Equal(t, bid.TypeProxy, defense.Type)
	assert.True(t, defense.Amount.Equal(fixtures.Money("70")))
	assert.True(t, defense.IsWinning)
	assert.True(t, defense.MaxBidActive, "the cap keeps defending")
	require.NotNil(t, defense.MaxBid)
	assert.True(t, defense.MaxBid.Equal(fixtures.Money("200")))

	assert.Equal(t,
		[]audit.Kind{audit.KindBidPlaced, audit.KindBidPlaced, audit.KindProxyTriggered},
		f.auditKinds(t))
}

func TestPlaceBidProxyDefenseCappedAtMax(t *testing.T) {
	f := newEngine(t, nil)
	f.placeBid(t, "alice", "50", "200")

	// Challenge just under the cap: the defense lands exactly on the cap, not
	// cap + step.
	res := f.placeBid(t, "bob", "195", "")

	assert.Equal(t, "OUTBID_BY_PROXY", res.ResultCode)
	l := f.currentLot(t)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("200")))
	assert.Equal(t, fixtures.Bidder("alice"), *l.CurrentBidderID)
}

func TestPlaceBidOvertakesStandingMax(t *testing.T) {
	f := newEngine(t, nil)
	f.placeBid(t, "alice", "50", "200")

	res := f.placeBid(t, "bob", "60", "300")

	assert.Equal(t, "ACCEPTED", res.ResultCode)
	assert.True(t, res.Accepted)
	assert.True(t, res.ProxyTriggered)
	assert.True(t, res.OutbidOccurred)

	l := f.currentLot(t)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("210")), "old cap + step")
	assert.Equal(t, fixtures.Bidder("bob"), *l.CurrentBidderID)
	assert.Equal(t, 3, l.BidCount)

	bids, err := f.store.BidsForLot(context.Background(), f.lot.ID)
	require.NoError(t, err)
	require.Len(t, bids, 3)

	exhausted, winner := bids[1], bids[2]
	assert.Equal(t, fixtures.Bidder("alice"), exhausted.BidderID)
	assert.Equal(t, bid.TypeProxy, exhausted.Type)
	assert.True(t, exhausted.Amount.Equal(fixtures.Money("200")))
	assert.False(t, exhausted.IsWinning)
	assert.False(t, exhausted.MaxBidActive)

	assert.Equal(t, fixtures.Bidder("bob"), winner.BidderID)
	assert.True(t, winner.IsWinning)
	assert.True(t, winner.MaxBidActive)
}

func TestPlaceBidOvertakeCappedByNewMax(t *testing.T) {
	f := newEngine(t, nil)
	f.placeBid(t, "alice", "50", "200")

	// New cap below old cap + step: the winner lands on their own max, not
	// on 210.
	res := f.placeBid(t, "bob", "60", "205")

	assert.Equal(t, "ACCEPTED", res.ResultCode)
	l := f.currentLot(t)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("205")))
	assert.Equal(t, fixtures.Bidder("bob"), *l.CurrentBidderID)
}

func TestPlaceBidMaxBidTie(t *testing.T) {
	f := newEngine(t, nil)
	f.placeBid(t, "alice", "50", "200")

	res := f.placeBid(t, "bob", "60", "200")

	assert.Equal(t, "MAX_BID_TIED", res.ResultCode)
	l := f.currentLot(t)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("50")), "first cap holds, nothing moves")
	assert.Equal(t, fixtures.Bidder("alice"), *l.CurrentBidderID)
	assert.Equal(t, 1, l.BidCount)
	assert.Contains(t, f.auditKinds(t), audit.KindBidRejected)
}

// A bid without a max is its own effective max, so landing exactly on the
// standing cap ties rather than triggering a defense at the cap.
func TestPlaceBidNoMaxChallengeAtCapTies(t *testing.T) {
	f := newEngine(t, nil)
	f.placeBid(t, "alice", "50", "200")

	res := f.placeBid(t, "bob", "200", "")

	assert.Equal(t, "MAX_BID_TIED", res.ResultCode)
	l := f.currentLot(t)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("50")))
	assert.Equal(t, fixtures.Bidder("alice"), *l.CurrentBidderID)
	assert.Equal(t, 1, l.BidCount)
}

func TestPlaceBidSoftCloseExtends(t *testing.T) {
	f := newEngine(t, nil)
	closeAt := f.lot.CurrentCloseAt

	// One minute before close, inside the two minute trigger window.
	f.clock.Set(closeAt.Add(-time.Minute))
	res := f.placeBid(t, "alice", "10", "")

	assert.True(t, res.SoftClosed)
	l := f.currentLot(t)
	wantClose := closeAt.Add(-time.Minute).Add(2 * time.Minute)
	assert.True(t, l.CurrentCloseAt.Equal(wantClose))
	assert.Equal(t, 1, l.ExtensionCount)
	assert.Len(t, f.events.softCloses, 1)

	// Extensions compound: another qualifying bid extends again.
	f.clock.Advance(90 * time.Second)
	res = f.placeBid(t, "bob", "20", "")
	assert.True(t, res.SoftClosed)
	assert.Equal(t, 2, f.currentLot(t).ExtensionCount)
}

func TestPlaceBidSoftCloseOnProxyDefense(t *testing.T) {
	f := newEngine(t, nil)
	f.placeBid(t, "alice", "50", "200")

	// A losing challenge still changes state, so it still extends.
	f.clock.Set(f.lot.CurrentCloseAt.Add(-time.Minute))
	res := f.placeBid(t, "bob", "60", "")

	assert.Equal(t, "OUTBID_BY_PROXY", res.ResultCode)
	assert.True(t, res.SoftClosed)
	assert.Equal(t, 1, f.currentLot(t).ExtensionCount)
}

func TestPlaceBidSoftCloseDisabled(t *testing.T) {
	f := newEngine(t, func(a *auction.Auction, l *lot.Lot) {
		a.SoftCloseEnabled = false
	})
	closeAt := f.lot.CurrentCloseAt

	f.clock.Set(closeAt.Add(-time.Minute))
	res := f.placeBid(t, "alice", "10", "")

	assert.True(t, res.Accepted)
	assert.False(t, res.SoftClosed)
	assert.True(t, f.currentLot(t).CurrentCloseAt.Equal(closeAt))
}

func TestPlaceBidCloseBoundaryExclusive(t *testing.T) {
	f := newEngine(t, func(a *auction.Auction, l *lot.Lot) {
		a.SoftCloseEnabled = false
	})

	f.clock.Set(f.lot.CurrentCloseAt)
	res := f.placeBid(t, "alice", "10", "")

	assert.Equal(t, "AUCTION_CLOSED", res.ResultCode, "a bid at exactly the close instant is late")
}

func TestPlaceBidReserveMetLatches(t *testing.T) {
	f := newEngine(t, func(a *auction.Auction, l *lot.Lot) {
		l.ReservePrice = fixtures.MoneyPtr("100")
	})

	f.placeBid(t, "alice", "50", "")
	assert.False(t, f.currentLot(t).ReserveMet)

	f.placeBid(t, "bob", "100", "")
	assert.True(t, f.currentLot(t).ReserveMet)

	// The reserve_met event fires exactly once.
	f.placeBid(t, "alice", "110", "")
	count := 0
	for _, k := range f.auditKinds(t) {
		if k == audit.KindReserveMet {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.True(t, f.currentLot(t).ReserveMet)
}

func TestPlaceBidLotNotFound(t *testing.T) {
	f := newEngine(t, nil)

	_, err := f.svc.PlaceBid(context.Background(), PlaceBidRequest{
		LotID:    uuid.New(),
		BidderID: fixtures.Bidder("alice"),
		Amount:   fixtures.Money("10"),
	})

	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", domainerrors.Code(err))
}

func TestPlaceBidLotNotActive(t *testing.T) {
	f := newEngine(t, func(a *auction.Auction, l *lot.Lot) {
		l.Status = lot.StatusClosed
	})

	res := f.placeBid(t, "alice", "10", "")

	assert.Equal(t, "LOT_NOT_ACTIVE", res.ResultCode)
}

func TestPlaceBidAuctionNotBiddable(t *testing.T) {
	f := newEngine(t, func(a *auction.Auction, l *lot.Lot) {
		a.Status = auction.StatusClosed
	})

	res := f.placeBid(t, "alice", "10", "")

	assert.Equal(t, "AUCTION_CLOSED", res.ResultCode)
	assert.Equal(t, 0, f.currentLot(t).BidCount)
}

func TestBuyNowSellsAndCloses(t *testing.T) {
	f := newEngine(t, func(a *auction.Auction, l *lot.Lot) {
		l.BuyNowPrice = fixtures.MoneyPtr("500")
	})
	f.placeBid(t, "alice", "50", "")

	res, err := f.svc.BuyNow(context.Background(), f.lot.ID, fixtures.Bidder("bob"))
	require.NoError(t, err)

	assert.Equal(t, "BUY_NOW", res.ResultCode)
	l := f.currentLot(t)
	assert.Equal(t, lot.StatusSold, l.Status)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("500")))
	assert.Equal(t, fixtures.Bidder("bob"), *l.CurrentBidderID)
	require.NotNil(t, l.ClosedAt)

	bids, err := f.store.BidsForLot(context.Background(), f.lot.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, bid.StatusLost, bids[0].Status)
	assert.Equal(t, bid.StatusWon, bids[1].Status)
	assert.True(t, bids[1].IsBuyNow)

	kinds := f.auditKinds(t)
	assert.Contains(t, kinds, audit.KindBuyNowExecuted)
	assert.Contains(t, kinds, audit.KindLotClosed)
	assert.Len(t, f.events.closes, 1)
}

func TestBuyNowWithoutPrice(t *testing.T) {
	f := newEngine(t, nil)

	res, err := f.svc.BuyNow(context.Background(), f.lot.ID, fixtures.Bidder("bob"))
	require.NoError(t, err)

	assert.Equal(t, "NO_BUY_NOW", res.ResultCode)
	assert.Equal(t, lot.StatusActive, f.currentLot(t).Status)
}

func TestBuyNowOnClosedLot(t *testing.T) {
	f := newEngine(t, func(a *auction.Auction, l *lot.Lot) {
		l.BuyNowPrice = fixtures.MoneyPtr("500")
		l.Status = lot.StatusSold
	})

	res, err := f.svc.BuyNow(context.Background(), f.lot.ID, fixtures.Bidder("bob"))
	require.NoError(t, err)
	assert.Equal(t, "LOT_NOT_ACTIVE", res.ResultCode)
}

// Concurrent identical bids: exactly one wins, the rest fail the floor check
// after serialization, and the bid count matches the single accepted bid.
func TestPlaceBidConcurrentSingleWinner(t *testing.T) {
	f := newEngine(t, nil)

	const bidders = 20
	results := make([]string, bidders)
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.PlaceBid(context.Background(), PlaceBidRequest{
				LotID:    f.lot.ID,
				BidderID: uuid.New(),
				Amount:   fixtures.Money("10"),
			})
			require.NoError(t, err)
			results[i] = res.ResultCode
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, code := range results {
		if code == "ACCEPTED" {
			accepted++
		} else {
			assert.Equal(t, "BID_TOO_LOW", code)
		}
	}
	assert.Equal(t, 1, accepted)

	l := f.currentLot(t)
	assert.Equal(t, 1, l.BidCount)
	assert.True(t, l.CurrentBid.Equal(fixtures.Money("10")))

	bids, err := f.store.BidsForLot(context.Background(), f.lot.ID)
	require.NoError(t, err)
	winning := 0
	for _, b := range bids {
		if b.IsWinning {
			winning++
		}
	}
	assert.Equal(t, 1, winning)
}
