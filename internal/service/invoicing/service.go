// Package invoicing generates invoices for closed auctions: one invoice per
// winning bidder, with buyer's premium, tax, and shipping per sold lot.
package invoicing

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/auction"
	"github.com/lothammer/auction-backend/internal/domain/clock"
	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/invoice"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/rules"
	"github.com/lothammer/auction-backend/internal/domain/values"
	"github.com/lothammer/auction-backend/internal/store"
)

// Service generates and serves invoices.
type Service struct {
	store  store.Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewService creates the invoicer.
func NewService(st store.Store, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{store: st, clock: clk, logger: logger}
}

// GenerateForAuction runs Generate and discards the ids. It satisfies the
// closer's Invoicer collaborator.
func (s *Service) GenerateForAuction(ctx context.Context, auctionID uuid.UUID) error {
	_, err := s.Generate(ctx, auctionID)
	return err
}

// Generate creates all invoices for a closed auction in one transaction and
// returns their ids. Exactly-once: a second call fails with ALREADY_GENERATED
// and writes nothing.
func (s *Service) Generate(ctx context.Context, auctionID uuid.UUID) ([]uuid.UUID, error) {
	now := s.clock.Now()
	var ids []uuid.UUID

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.Auction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != auction.StatusClosed {
			return domainerrors.ErrNotClosed
		}
		exists, err := tx.InvoicesExist(ctx, auctionID)
		if err != nil {
			return err
		}
		if exists {
			return domainerrors.ErrAlreadyGenerated
		}

		lots, err := tx.LotsByAuction(ctx, auctionID)
		if err != nil {
			return err
		}

		byBidder := make(map[uuid.UUID][]*lot.Lot)
		for _, l := range lots {
			if l.Status != lot.StatusSold || l.CurrentBidderID == nil {
				continue
			}
			byBidder[*l.CurrentBidderID] = append(byBidder[*l.CurrentBidderID], l)
		}

		// Deterministic invoice numbering: bidders in id order, lots already
		// ordered by lot number.
		bidders := make([]uuid.UUID, 0, len(byBidder))
		for id := range byBidder {
			bidders = append(bidders, id)
		}
		sort.Slice(bidders, func(i, j int) bool { return bidders[i].String() < bidders[j].String() })

		for _, bidderID := range bidders {
			inv, err := s.buildInvoice(ctx, tx, a, bidderID, byBidder[bidderID], now)
			if err != nil {
				return err
			}
			if err := tx.InsertInvoice(ctx, inv); err != nil {
				return err
			}
			ids = append(ids, inv.ID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrAuctionNotFound
		}
		return nil, err
	}

	s.logger.Info("invoices generated",
		zap.String("auction_id", auctionID.String()),
		zap.Int("count", len(ids)))
	return ids, nil
}

func (s *Service) buildInvoice(ctx context.Context, tx store.Tx, a *auction.Auction, bidderID uuid.UUID, lots []*lot.Lot, now time.Time) (*invoice.Invoice, error) {
	seq, err := tx.NextInvoiceSequence(ctx)
	if err != nil {
		return nil, err
	}

	inv := &invoice.Invoice{
		ID:            uuid.New(),
		InvoiceNumber: invoice.FormatNumber(now, seq),
		AuctionID:     a.ID,
		BidderID:      bidderID,
		Subtotal:      values.Zero(values.USD),
		Premium:       values.Zero(values.USD),
		Tax:           values.Zero(values.USD),
		Shipping:      values.Zero(values.USD),
		Total:         values.Zero(values.USD),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, l := range lots {
		item := buildItem(inv.ID, a, l)
		inv.Items = append(inv.Items, item)
		inv.Subtotal = inv.Subtotal.MustAdd(item.WinningBid)
		inv.Premium = inv.Premium.MustAdd(item.PremiumAmount)
		inv.Tax = inv.Tax.MustAdd(item.TaxAmount)
		inv.Shipping = inv.Shipping.MustAdd(item.ShippingAmount)
		inv.Total = inv.Total.MustAdd(item.LineTotal)
	}
	return inv, nil
}

// buildItem computes one lot's line. Premium and tax round half up to cents
// per line, not on the invoice totals, so line sums always equal the totals.
func buildItem(invoiceID uuid.UUID, a *auction.Auction, l *lot.Lot) invoice.Item {
	hammer := l.CurrentBid
	premium := rules.Premium(hammer, a.PremiumRules)
	premiumRate := rules.PremiumRate(hammer, a.PremiumRules)

	tax := values.Zero(hammer.Currency())
	if a.TaxEnabled {
		taxable := hammer.MustAdd(premium)
		tax = taxable.Mul(a.TaxRate).RoundHalfUpCents()
	}

	shipping := values.Zero(hammer.Currency())
	if l.ShippingAvailable && l.ShippingAmount != nil {
		shipping = *l.ShippingAmount
	}

	return invoice.Item{
		ID:             uuid.New(),
		InvoiceID:      invoiceID,
		LotID:          l.ID,
		LotNumber:      l.LotNumber,
		LotTitle:       l.Title,
		WinningBid:     hammer,
		PremiumRate:    premiumRate.Amount(),
		PremiumAmount:  premium,
		TaxRate:        a.TaxRate,
		TaxAmount:      tax,
		ShippingAmount: shipping,
		LineTotal:      hammer.MustAdd(premium).MustAdd(tax).MustAdd(shipping),
	}
}

// InvoicesByAuction lists generated invoices.
func (s *Service) InvoicesByAuction(ctx context.Context, auctionID uuid.UUID) ([]*invoice.Invoice, error) {
	if _, err := s.store.Auction(ctx, auctionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrAuctionNotFound
		}
		return nil, err
	}
	return s.store.InvoicesByAuction(ctx, auctionID)
}
