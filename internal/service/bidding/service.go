// Package bidding implements the auction engine: bid validation, proxy
// max-bid resolution, soft close, and buy now. All state changes for one lot
// happen inside a single per-lot store transaction; the subscription hub is
// notified only after commit.
package bidding

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/audit"
	"github.com/lothammer/auction-backend/internal/domain/bid"
	"github.com/lothammer/auction-backend/internal/domain/clock"
	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/rules"
	"github.com/lothammer/auction-backend/internal/domain/values"
	"github.com/lothammer/auction-backend/internal/store"
)

// Retry schedule for serialization conflicts: under concurrent bids on one
// lot the loser aborts, retries, observes the new current_bid, and usually
// fails fast as BID_TOO_LOW. That is the correct outcome.
var abortBackoff = []time.Duration{time.Millisecond, 5 * time.Millisecond, 25 * time.Millisecond}

// Service is the bidding engine.
type Service struct {
	store    store.Store
	clock    clock.Clock
	notifier Notifier
	metrics  Metrics
	logger   *zap.Logger
}

// NewService creates the bidding engine.
func NewService(st store.Store, clk clock.Clock, notifier Notifier, metrics Metrics, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Service{store: st, clock: clk, notifier: notifier, metrics: metrics, logger: logger}
}

// SetNotifier swaps the live-update sink. The hub needs the engine for
// subscribe-time snapshots, so wiring happens in two steps at startup; call
// before serving traffic.
func (s *Service) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// pendingEvent defers hub publication until after commit.
type pendingEvent struct {
	kind string // "bid", "soft_close", "lot_closed"
	snap lot.Snapshot
}

// PlaceBid validates and applies one bid attempt. Policy rejections are
// reported in the result (with their bid_rejected audit committed); errors
// are reserved for missing lots, transient conflicts, and store failures.
func (s *Service) PlaceBid(ctx context.Context, req PlaceBidRequest) (*PlaceBidResult, error) {
	var result *PlaceBidResult
	var events []pendingEvent

	var lastErr error
	for attempt := 0; ; attempt++ {
		result = nil
		events = nil
		err := s.store.WithLotTx(ctx, req.LotID, func(ctx context.Context, tx store.Tx, l *lot.Lot) error {
			r, evs, err := s.placeBidTx(ctx, tx, l, req)
			result = r
			events = evs
			return err
		})
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrLotNotFound
		}
		if errors.Is(err, store.ErrAborted) && attempt < len(abortBackoff) {
			s.logger.Debug("place bid aborted, retrying",
				zap.String("lot_id", req.LotID.String()),
				zap.Int("attempt", attempt+1))
			time.Sleep(abortBackoff[attempt])
			lastErr = err
			continue
		}
		if errors.Is(err, store.ErrAborted) {
			s.metrics.RecordBid("TRANSIENT_CONFLICT")
			return nil, domainerrors.ErrTransientConflict.WithCause(lastErr)
		}
		return nil, err
	}

	s.metrics.RecordBid(result.ResultCode)
	if result.ProxyTriggered {
		s.metrics.RecordProxyTriggered()
	}
	if result.SoftClosed {
		s.metrics.RecordSoftClose()
	}
	s.publish(req.LotID, events)
	return result, nil
}

// placeBidTx runs the full engine decision inside the lot transaction.
func (s *Service) placeBidTx(ctx context.Context, tx store.Tx, l *lot.Lot, req PlaceBidRequest) (*PlaceBidResult, []pendingEvent, error) {
	now := s.clock.Now()

	a, err := tx.Auction(ctx, l.AuctionID)
	if err != nil {
		return nil, nil, err
	}
	tiers := a.EffectiveIncrementRules(l.IncrementRulesOverride)
	floor := rules.MinNextBid(l.CurrentBid, l.StartingBid, tiers)

	reject := func(appErr *domainerrors.AppError) (*PlaceBidResult, []pendingEvent, error) {
		ev := audit.New(audit.KindBidRejected, l.ID, l.AuctionID, now).
			WithBidder(req.BidderID).
			WithAmounts(l.CurrentBid, req.Amount).
			WithResult(appErr.Code, appErr.Message).
			WithSnapshot(l.Snapshot())
		if err := tx.AppendAudit(ctx, ev); err != nil {
			return nil, nil, err
		}
		return &PlaceBidResult{
			ResultCode: appErr.Code,
			Lot:        l.Snapshot(),
			MinNextBid: floor,
		}, nil, nil
	}

	// Preconditions, in order; the first failure short-circuits with a
	// bid_rejected audit event.
	if !req.Amount.IsPositive() {
		return reject(domainerrors.ErrInvalidAmount)
	}
	if req.MaxBid != nil && req.MaxBid.LessThan(req.Amount) {
		return reject(domainerrors.ErrInvalidMaxBid)
	}
	if l.Status != lot.StatusActive {
		return reject(domainerrors.ErrLotNotActive)
	}
	if !a.IsBiddable() {
		return reject(domainerrors.ErrAuctionClosed)
	}
	if !now.Before(l.CurrentCloseAt) {
		return reject(domainerrors.ErrAuctionClosed)
	}
	if req.Amount.LessThan(floor) {
		return reject(domainerrors.ErrBidTooLow.WithDetails(map[string]interface{}{
			"min_next_bid": floor.String(),
		}))
	}
	if l.CurrentBidderID != nil && *l.CurrentBidderID == req.BidderID {
		return reject(domainerrors.ErrSelfOutbid)
	}

	// Proxy resolution against the current high bidder's active max.
	incumbent, err := tx.WinningBid(ctx, l.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	var incumbentMax *values.Money
	if incumbent != nil && incumbent.MaxBidActive && incumbent.MaxBid != nil {
		incumbentMax = incumbent.MaxBid
	}
	step := rules.Increment(l.CurrentBid, tiers)
	reserveWasMet := l.ReserveMet

	var result *PlaceBidResult
	switch {
	case incumbentMax == nil:
		result, err = s.acceptBid(ctx, tx, l, incumbent, req, now)
	default:
		effectiveMax := req.Amount
		if req.MaxBid != nil {
			effectiveMax = *req.MaxBid
		}
		switch effectiveMax.Compare(*incumbentMax) {
		case 1:
			result, err = s.overtakeProxy(ctx, tx, l, incumbent, *incumbentMax, step, req, now)
		case -1:
			result, err = s.defendByProxy(ctx, tx, l, incumbent, *incumbentMax, effectiveMax, step, req, now)
		default:
			// Tie on effective max: first-in wins, the challenger is rejected.
			// A no-max bid landing exactly on the standing cap ties the same
			// way, since its amount is its effective max.
			return reject(domainerrors.ErrMaxBidTied)
		}
	}
	if err != nil {
		return nil, nil, err
	}

	if !reserveWasMet && l.ReserveMet {
		ev := audit.New(audit.KindReserveMet, l.ID, l.AuctionID, now).
			WithAmounts(values.Zero(values.USD), l.CurrentBid).
			WithSnapshot(l.Snapshot())
		if err := tx.AppendAudit(ctx, ev); err != nil {
			return nil, nil, err
		}
	}

	events := []pendingEvent{{kind: "bid", snap: l.Snapshot()}}

	// Soft close: any state-changing bid near close pushes the close out.
	// Extensions compound; each qualifying bid extends again.
	if a.SoftCloseEnabled && l.CurrentCloseAt.Sub(now) <= a.TriggerWindow {
		if l.Extend(now.Add(a.Extension), now) {
			result.SoftClosed = true
			ev := audit.New(audit.KindSoftCloseTriggered, l.ID, l.AuctionID, now).
				WithBidder(req.BidderID).
				WithSnapshot(l.Snapshot())
			if err := tx.AppendAudit(ctx, ev); err != nil {
				return nil, nil, err
			}
			events = append(events, pendingEvent{kind: "soft_close", snap: l.Snapshot()})
		}
	}

	if err := tx.UpdateLot(ctx, l); err != nil {
		return nil, nil, err
	}
	result.Lot = l.Snapshot()
	events[0].snap = l.Snapshot()
	return result, events, nil
}

// acceptBid handles the no-active-max case: the bid lands at face value.
func (s *Service) acceptBid(ctx context.Context, tx store.Tx, l *lot.Lot, incumbent *bid.Bid, req PlaceBidRequest, now time.Time) (*PlaceBidResult, error) {
	outbid := false
	if incumbent != nil {
		if err := tx.SetBidOutbid(ctx, incumbent.ID, now); err != nil {
			return nil, err
		}
		if incumbent.MaxBidActive {
			if err := tx.DeactivateMaxBids(ctx, l.ID, incumbent.BidderID); err != nil {
				return nil, err
			}
		}
		outbid = true
	}

	prevAmount, prevBidder := l.CurrentBid, l.CurrentBidderID
	newBid := bid.New(l.ID, l.AuctionID, req.BidderID, req.Amount, bid.TypeManual, prevAmount, prevBidder, now)
	newBid.IsWinning = true
	newBid.SourceIP, newBid.UserAgent = req.SourceIP, req.UserAgent
	if req.MaxBid != nil {
		newBid.MaxBid = req.MaxBid
		newBid.MaxBidActive = true
	}
	if err := tx.InsertBid(ctx, newBid); err != nil {
		return nil, err
	}

	l.ApplyWinningBid(req.BidderID, req.Amount, now)
	l.BidCount++

	placed := audit.New(audit.KindBidPlaced, l.ID, l.AuctionID, now).
		WithBidder(req.BidderID).
		WithBid(newBid.ID).
		WithAmounts(prevAmount, req.Amount).
		WithResult("ACCEPTED", "bid accepted").
		WithSnapshot(l.Snapshot())
	if err := tx.AppendAudit(ctx, placed); err != nil {
		return nil, err
	}
	if outbid {
		ev := audit.New(audit.KindOutbidOccurred, l.ID, l.AuctionID, now).
			WithBidder(incumbent.BidderID).
			WithBid(incumbent.ID).
			WithAmounts(prevAmount, req.Amount)
		if err := tx.AppendAudit(ctx, ev); err != nil {
			return nil, err
		}
	}

	return &PlaceBidResult{
		ResultCode:     "ACCEPTED",
		Accepted:       true,
		OutbidOccurred: outbid,
	}, nil
}

// overtakeProxy handles a new max strictly above the incumbent's: the new
// bidder wins at min(newMax, incumbentMax + step), and the incumbent's cap is
// exhausted with a final proxy bid at its max.
func (s *Service) overtakeProxy(ctx context.Context, tx store.Tx, l *lot.Lot, incumbent *bid.Bid, incumbentMax values.Money, step values.Money, req PlaceBidRequest, now time.Time) (*PlaceBidResult, error) {
	prevAmount, prevBidder := l.CurrentBid, l.CurrentBidderID

	if err := tx.SetBidOutbid(ctx, incumbent.ID, now); err != nil {
		return nil, err
	}
	if err := tx.DeactivateMaxBids(ctx, l.ID, incumbent.BidderID); err != nil {
		return nil, err
	}

	// Final defensive bid at the exhausted cap.
	proxyBid := bid.New(l.ID, l.AuctionID, incumbent.BidderID, incumbentMax, bid.TypeProxy, prevAmount, prevBidder, now)
	if err := tx.InsertBid(ctx, proxyBid); err != nil {
		return nil, err
	}

	newCurrent := incumbentMax.MustAdd(step)
	if req.MaxBid != nil {
		newCurrent = req.MaxBid.Min(newCurrent)
	} else {
		newCurrent = req.Amount.Min(newCurrent)
	}

	winBid := bid.New(l.ID, l.AuctionID, req.BidderID, newCurrent, bid.TypeManual, incumbentMax, &incumbent.BidderID, now)
	winBid.IsWinning = true
	winBid.SourceIP, winBid.UserAgent = req.SourceIP, req.UserAgent
	if req.MaxBid != nil {
		winBid.MaxBid = req.MaxBid
		winBid.MaxBidActive = true
	}
	if err := tx.InsertBid(ctx, winBid); err != nil {
		return nil, err
	}

	l.ApplyWinningBid(req.BidderID, newCurrent, now)
	l.BidCount += 2

	proxyEv := audit.New(audit.KindProxyTriggered, l.ID, l.AuctionID, now).
		WithBidder(incumbent.BidderID).
		WithBid(proxyBid.ID).
		WithAmounts(prevAmount, incumbentMax).
		WithResult("PROXY_EXHAUSTED", "proxy cap reached").
		WithSnapshot(l.Snapshot())
	if err := tx.AppendAudit(ctx, proxyEv); err != nil {
		return nil, err
	}
	placedEv := audit.New(audit.KindBidPlaced, l.ID, l.AuctionID, now).
		WithBidder(req.BidderID).
		WithBid(winBid.ID).
		WithAmounts(incumbentMax, newCurrent).
		WithResult("ACCEPTED", "bid accepted over proxy").
		WithSnapshot(l.Snapshot())
	if err := tx.AppendAudit(ctx, placedEv); err != nil {
		return nil, err
	}

	return &PlaceBidResult{
		ResultCode:     "ACCEPTED",
		Accepted:       true,
		ProxyTriggered: true,
		OutbidOccurred: true,
	}, nil
}

// defendByProxy handles a challenge below the incumbent's cap: the challenger
// is recorded losing at their effective max, and the incumbent's proxy
// answers at min(cap, challenge + step).
func (s *Service) defendByProxy(ctx context.Context, tx store.Tx, l *lot.Lot, incumbent *bid.Bid, incumbentMax, effectiveMax, step values.Money, req PlaceBidRequest, now time.Time) (*PlaceBidResult, error) {
	prevAmount, prevBidder := l.CurrentBid, l.CurrentBidderID

	// Challenger's bid lands at their effective max, not winning. Their cap,
	// if any, is spent immediately.
	challenge := bid.New(l.ID, l.AuctionID, req.BidderID, effectiveMax, bid.TypeManual, prevAmount, prevBidder, now)
	challenge.SourceIP, challenge.UserAgent = req.SourceIP, req.UserAgent
	challenge.MaxBid = req.MaxBid
	if err := tx.InsertBid(ctx, challenge); err != nil {
		return nil, err
	}

	defended := incumbentMax.Min(effectiveMax.MustAdd(step))

	// The defending proxy row replaces the incumbent's previous winning row;
	// the cap stays active on the new row.
	if err := tx.SetBidOutbid(ctx, incumbent.ID, now); err != nil {
		return nil, err
	}
	if err := tx.DeactivateMaxBids(ctx, l.ID, incumbent.BidderID); err != nil {
		return nil, err
	}
	defense := bid.New(l.ID, l.AuctionID, incumbent.BidderID, defended, bid.TypeProxy, effectiveMax, &req.BidderID, now)
	defense.IsWinning = true
	defense.MaxBid = &incumbentMax
	defense.MaxBidActive = true
	if err := tx.InsertBid(ctx, defense); err != nil {
		return nil, err
	}

	l.ApplyWinningBid(incumbent.BidderID, defended, now)
	l.BidCount += 2

	placedEv := audit.New(audit.KindBidPlaced, l.ID, l.AuctionID, now).
		WithBidder(req.BidderID).
		WithBid(challenge.ID).
		WithAmounts(prevAmount, effectiveMax).
		WithResult("OUTBID_BY_PROXY", "bid outbid by standing proxy").
		WithSnapshot(l.Snapshot())
	if err := tx.AppendAudit(ctx, placedEv); err != nil {
		return nil, err
	}
	proxyEv := audit.New(audit.KindProxyTriggered, l.ID, l.AuctionID, now).
		WithBidder(incumbent.BidderID).
		WithBid(defense.ID).
		WithAmounts(effectiveMax, defended).
		WithResult("PROXY_DEFENDED", "proxy defended high bid").
		WithSnapshot(l.Snapshot())
	if err := tx.AppendAudit(ctx, proxyEv); err != nil {
		return nil, err
	}

	return &PlaceBidResult{
		ResultCode:     "OUTBID_BY_PROXY",
		ProxyTriggered: true,
		OutbidOccurred: true,
	}, nil
}

// BuyNow executes an immediate purchase at the lot's buy-now price and closes
// the lot as sold.
func (s *Service) BuyNow(ctx context.Context, lotID, bidderID uuid.UUID) (*BuyNowResult, error) {
	var result *BuyNowResult
	var events []pendingEvent

	err := s.store.WithLotTx(ctx, lotID, func(ctx context.Context, tx store.Tx, l *lot.Lot) error {
		now := s.clock.Now()

		rejected := func(appErr *domainerrors.AppError) error {
			ev := audit.New(audit.KindBidRejected, l.ID, l.AuctionID, now).
				WithBidder(bidderID).
				WithResult(appErr.Code, appErr.Message).
				WithSnapshot(l.Snapshot())
			if err := tx.AppendAudit(ctx, ev); err != nil {
				return err
			}
			result = &BuyNowResult{ResultCode: appErr.Code, Lot: l.Snapshot()}
			return nil
		}

		if l.Status != lot.StatusActive {
			return rejected(domainerrors.ErrLotNotActive)
		}
		if !now.Before(l.CurrentCloseAt) {
			return rejected(domainerrors.ErrAuctionClosed)
		}
		if l.BuyNowPrice == nil {
			return rejected(domainerrors.ErrNoBuyNow)
		}
		if l.CurrentBidderID != nil && *l.CurrentBidderID == bidderID {
			return rejected(domainerrors.ErrSelfOutbid)
		}

		incumbent, err := tx.WinningBid(ctx, l.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if incumbent != nil {
			if err := tx.SetBidOutbid(ctx, incumbent.ID, now); err != nil {
				return err
			}
			if err := tx.DeactivateMaxBids(ctx, l.ID, incumbent.BidderID); err != nil {
				return err
			}
			if err := tx.SetBidStatus(ctx, incumbent.ID, bid.StatusLost); err != nil {
				return err
			}
		}

		prevAmount, prevBidder := l.CurrentBid, l.CurrentBidderID
		price := *l.BuyNowPrice
		b := bid.New(l.ID, l.AuctionID, bidderID, price, bid.TypeManual, prevAmount, prevBidder, now)
		b.IsWinning = true
		b.IsBuyNow = true
		b.Status = bid.StatusWon
		if err := tx.InsertBid(ctx, b); err != nil {
			return err
		}

		l.ApplyWinningBid(bidderID, price, now)
		l.BidCount++
		l.Status = lot.StatusSold
		l.ClosedAt = &now

		// Losing bids settle immediately since the lot closes here.
		others, err := tx.BidsForLot(ctx, l.ID)
		if err != nil {
			return err
		}
		for _, ob := range others {
			if ob.ID != b.ID && ob.Status == bid.StatusPlaced {
				if err := tx.SetBidStatus(ctx, ob.ID, bid.StatusLost); err != nil {
					return err
				}
			}
		}

		if err := tx.UpdateLot(ctx, l); err != nil {
			return err
		}

		executed := audit.New(audit.KindBuyNowExecuted, l.ID, l.AuctionID, now).
			WithBidder(bidderID).
			WithBid(b.ID).
			WithAmounts(prevAmount, price).
			WithResult("BUY_NOW", "buy now executed").
			WithSnapshot(l.Snapshot())
		if err := tx.AppendAudit(ctx, executed); err != nil {
			return err
		}
		closed := audit.New(audit.KindLotClosed, l.ID, l.AuctionID, now).
			WithAmounts(prevAmount, price).
			WithResult("SOLD", "lot sold via buy now").
			WithSnapshot(l.Snapshot())
		if err := tx.AppendAudit(ctx, closed); err != nil {
			return err
		}

		result = &BuyNowResult{ResultCode: "BUY_NOW", Lot: l.Snapshot()}
		events = []pendingEvent{
			{kind: "bid", snap: l.Snapshot()},
			{kind: "lot_closed", snap: l.Snapshot()},
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrLotNotFound
		}
		if errors.Is(err, store.ErrAborted) {
			return nil, domainerrors.ErrTransientConflict.WithCause(err)
		}
		return nil, err
	}

	if result.ResultCode == "BUY_NOW" {
		s.metrics.RecordBuyNow()
	}
	s.publish(lotID, events)
	return result, nil
}

// BidHistory returns the lot's bid rows in placement order.
func (s *Service) BidHistory(ctx context.Context, lotID uuid.UUID) ([]*bid.Bid, error) {
	if _, err := s.store.Lot(ctx, lotID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrLotNotFound
		}
		return nil, err
	}
	bids, err := s.store.BidsForLot(ctx, lotID)
	if err != nil {
		return nil, err
	}
	return bids, nil
}

// LotSnapshot returns the live state of a lot.
func (s *Service) LotSnapshot(ctx context.Context, lotID uuid.UUID) (*lot.Snapshot, error) {
	l, err := s.store.Lot(ctx, lotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrLotNotFound
		}
		return nil, err
	}
	snap := l.Snapshot()
	return &snap, nil
}

func (s *Service) publish(lotID uuid.UUID, events []pendingEvent) {
	for _, ev := range events {
		switch ev.kind {
		case "bid":
			s.notifier.PublishBid(lotID, ev.snap)
		case "soft_close":
			s.notifier.PublishSoftClose(lotID, ev.snap)
		case "lot_closed":
			s.notifier.PublishLotClosed(lotID, ev.snap)
		}
	}
}
