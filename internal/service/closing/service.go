// Package closing settles lots whose close time has passed: it marks the lot
// sold or unsold, finalizes bid statuses, and closes the auction once its
// last lot settles.
package closing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/audit"
	"github.com/lothammer/auction-backend/internal/domain/auction"
	"github.com/lothammer/auction-backend/internal/domain/bid"
	"github.com/lothammer/auction-backend/internal/domain/clock"
	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/values"
	"github.com/lothammer/auction-backend/internal/store"
)

// Notifier publishes close events after commit.
type Notifier interface {
	PublishLotClosed(lotID uuid.UUID, snap lot.Snapshot)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) PublishLotClosed(uuid.UUID, lot.Snapshot) {}

// Invoicer is called once when an auction fully closes.
type Invoicer interface {
	GenerateForAuction(ctx context.Context, auctionID uuid.UUID) error
}

// Metrics collects close counters.
type Metrics interface {
	RecordLotClosed(outcome string)
}

// NopMetrics discards counters.
type NopMetrics struct{}

func (NopMetrics) RecordLotClosed(string) {}

// CloseOutcome is the settlement result for one lot.
type CloseOutcome struct {
	LotID      uuid.UUID    `json:"lot_id"`
	ResultCode string       `json:"result_code"`
	Lot        lot.Snapshot `json:"lot"`
}

// Service is the lot closer.
type Service struct {
	store    store.Store
	clock    clock.Clock
	notifier Notifier
	invoicer Invoicer
	metrics  Metrics
	logger   *zap.Logger
}

// NewService creates the closer. invoicer may be nil when invoice generation
// stays manual.
func NewService(st store.Store, clk clock.Clock, notifier Notifier, invoicer Invoicer, metrics Metrics, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Service{store: st, clock: clk, notifier: notifier, invoicer: invoicer, metrics: metrics, logger: logger}
}

// CloseLot settles one lot. Idempotent: closing an already closed lot returns
// its existing outcome without touching state. With force, staff can close a
// lot before its scheduled time.
func (s *Service) CloseLot(ctx context.Context, lotID uuid.UUID, force bool) (*CloseOutcome, error) {
	var outcome *CloseOutcome
	var publish *lot.Snapshot
	var auctionID uuid.UUID
	var auctionDone bool

	err := s.store.WithLotTx(ctx, lotID, func(ctx context.Context, tx store.Tx, l *lot.Lot) error {
		now := s.clock.Now()
		auctionID = l.AuctionID

		if l.Status.IsClosed() {
			outcome = &CloseOutcome{LotID: l.ID, ResultCode: closeCode(l), Lot: l.Snapshot()}
			return nil
		}
		if l.Status != lot.StatusActive {
			return domainerrors.ErrNotActive
		}
		if !force && now.Before(l.CurrentCloseAt) {
			return domainerrors.NewPolicyError("NOT_DUE", "lot close time has not passed")
		}

		sold := l.CurrentBidderID != nil && (l.ReservePrice == nil || l.ReserveMet)
		if sold {
			l.Status = lot.StatusSold
		} else {
			l.Status = lot.StatusUnsold
		}
		l.ClosedAt = &now
		l.UpdatedAt = now

		// Final standing for every bid row.
		bids, err := tx.BidsForLot(ctx, l.ID)
		if err != nil {
			return err
		}
		for _, b := range bids {
			final := bid.StatusLost
			if sold && b.IsWinning {
				final = bid.StatusWon
			}
			if b.Status != final {
				if err := tx.SetBidStatus(ctx, b.ID, final); err != nil {
					return err
				}
			}
		}

		if err := tx.UpdateLot(ctx, l); err != nil {
			return err
		}

		code := closeCode(l)
		// Exactly one close event per lot, whichever settlement path wrote it.
		logged, err := tx.HasAudit(ctx, l.ID, audit.KindLotClosed)
		if err != nil {
			return err
		}
		if !logged {
			ev := audit.New(audit.KindLotClosed, l.ID, l.AuctionID, now).
				WithAmounts(values.Zero(values.USD), l.CurrentBid).
				WithResult(code, closeMessage(code)).
				WithSnapshot(l.Snapshot())
			if l.CurrentBidderID != nil {
				ev = ev.WithBidder(*l.CurrentBidderID)
			}
			if err := tx.AppendAudit(ctx, ev); err != nil {
				return err
			}
		}

		open, err := tx.CountOpenLots(ctx, l.AuctionID)
		if err != nil {
			return err
		}
		if open == 0 {
			a, err := tx.Auction(ctx, l.AuctionID)
			if err != nil {
				return err
			}
			if a.Status != auction.StatusClosed {
				a.Status = auction.StatusClosed
				a.ClosedAt = &now
				a.UpdatedAt = now
				if err := tx.UpdateAuction(ctx, a); err != nil {
					return err
				}
				auctionDone = true
			}
		}

		snap := l.Snapshot()
		publish = &snap
		outcome = &CloseOutcome{LotID: l.ID, ResultCode: code, Lot: snap}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrLotNotFound
		}
		return nil, err
	}

	if publish != nil {
		s.metrics.RecordLotClosed(outcome.ResultCode)
		s.notifier.PublishLotClosed(lotID, *publish)
	}
	if auctionDone {
		s.logger.Info("auction fully closed", zap.String("auction_id", auctionID.String()))
		if s.invoicer != nil {
			if err := s.invoicer.GenerateForAuction(ctx, auctionID); err != nil {
				// Close already committed; invoices can be regenerated by hand.
				s.logger.Error("invoice generation after close failed",
					zap.String("auction_id", auctionID.String()),
					zap.Error(err))
			}
		}
	}
	return outcome, nil
}

// CloseAuction force-closes every remaining open lot of an auction, which in
// turn closes the auction itself and triggers invoicing.
func (s *Service) CloseAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	lots, err := s.store.LotsByAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrAuctionNotFound
		}
		return nil, err
	}
	for _, l := range lots {
		if l.Status.IsClosed() {
			continue
		}
		if _, err := s.CloseLot(ctx, l.ID, true); err != nil {
			return nil, err
		}
	}
	// An auction with no open lots left (or none at all) still needs its own
	// status flipped.
	err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.Auction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status == auction.StatusClosed {
			return nil
		}
		now := s.clock.Now()
		a.Status = auction.StatusClosed
		a.ClosedAt = &now
		a.UpdatedAt = now
		return tx.UpdateAuction(ctx, a)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrAuctionNotFound
		}
		return nil, err
	}
	a, err := s.store.Auction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrAuctionNotFound
		}
		return nil, err
	}
	return a, nil
}

// CloseDue settles every lot whose close time has passed, up to limit per
// sweep. Returns the number of lots settled.
func (s *Service) CloseDue(ctx context.Context, limit int) (int, error) {
	due, err := s.store.DueLots(ctx, s.clock.Now(), limit)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, id := range due {
		if _, err := s.CloseLot(ctx, id, false); err != nil {
			// One stuck lot must not block the sweep.
			s.logger.Error("lot close failed", zap.String("lot_id", id.String()), zap.Error(err))
			continue
		}
		closed++
	}
	return closed, nil
}

// Scheduler polls for due lots on a fixed interval.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

// NewScheduler creates a close scheduler.
func NewScheduler(svc *Service, interval time.Duration, batch int, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Scheduler{svc: svc, interval: interval, batch: batch, logger: logger}
}

// Run blocks until ctx is done, sweeping once per interval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.svc.CloseDue(ctx, s.batch)
			if err != nil {
				s.logger.Error("close sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("close sweep settled lots", zap.Int("count", n))
			}
		}
	}
}

func closeCode(l *lot.Lot) string {
	switch l.Status {
	case lot.StatusSold:
		return "SOLD"
	case lot.StatusUnsold:
		if l.CurrentBidderID != nil {
			return "UNSOLD_RESERVE_NOT_MET"
		}
		return "UNSOLD_NO_BIDS"
	default:
		return l.Status.String()
	}
}

func closeMessage(code string) string {
	switch code {
	case "SOLD":
		return "lot sold to high bidder"
	case "UNSOLD_RESERVE_NOT_MET":
		return "reserve not met"
	case "UNSOLD_NO_BIDS":
		return "no bids received"
	default:
		return "lot closed"
	}
}
