package invoicing

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/auction"
	"github.com/lothammer/auction-backend/internal/domain/clock"
	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/testutil/fixtures"
	"github.com/lothammer/auction-backend/internal/testutil/memstore"
)

func soldLot(a *auction.Auction, number int, amount string, bidder uuid.UUID) *lot.Lot {
	l := fixtures.ActiveLot(a, number)
	l.Status = lot.StatusSold
	l.CurrentBid = fixtures.Money(amount)
	l.CurrentBidderID = &bidder
	return l
}

func newInvoicer(t *testing.T) (*Service, *memstore.Store, *auction.Auction) {
	t.Helper()
	st := memstore.New()
	a := fixtures.ActiveAuction()
	a.Status = auction.StatusClosed
	st.SeedAuction(a)
	svc := NewService(st, clock.NewFixed(fixtures.BaseTime), zap.NewNop())
	return svc, st, a
}

func TestGenerateGroupsByBidder(t *testing.T) {
	svc, st, a := newInvoicer(t)
	alice, bob := fixtures.Bidder("alice"), fixtures.Bidder("bob")
	st.SeedLot(soldLot(a, 1, "100", alice))
	st.SeedLot(soldLot(a, 2, "200", alice))
	st.SeedLot(soldLot(a, 3, "50", bob))

	unsold := fixtures.ActiveLot(a, 4)
	unsold.Status = lot.StatusUnsold
	st.SeedLot(unsold)

	require.NoError(t, svc.GenerateForAuction(context.Background(), a.ID))

	invoices, err := st.InvoicesByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 2, "one invoice per winning bidder")

	var aliceInv, bobInv = invoices[0], invoices[1]
	if aliceInv.BidderID != alice {
		aliceInv, bobInv = bobInv, aliceInv
	}
	assert.Len(t, aliceInv.Items, 2)
	assert.Len(t, bobInv.Items, 1)

	// 15% premium, 8% tax on hammer + premium.
	assert.True(t, aliceInv.Subtotal.Equal(fixtures.Money("300")))
	assert.True(t, aliceInv.Premium.Equal(fixtures.Money("45")))
	assert.True(t, aliceInv.Tax.Equal(fixtures.Money("27.60")))
	assert.True(t, aliceInv.Total.Equal(fixtures.Money("372.60")))
}

func TestGenerateInvoiceNumbers(t *testing.T) {
	svc, st, a := newInvoicer(t)
	st.SeedLot(soldLot(a, 1, "100", fixtures.Bidder("alice")))
	st.SeedLot(soldLot(a, 2, "100", fixtures.Bidder("bob")))

	require.NoError(t, svc.GenerateForAuction(context.Background(), a.ID))

	invoices, err := st.InvoicesByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "INV-20260314-00001", invoices[0].InvoiceNumber)
	assert.Equal(t, "INV-20260314-00002", invoices[1].InvoiceNumber)
	for _, inv := range invoices {
		assert.True(t, strings.HasPrefix(inv.InvoiceNumber, "INV-20260314-"))
	}
}

func TestGenerateRoundsPerLine(t *testing.T) {
	svc, st, a := newInvoicer(t)
	st.SeedLot(soldLot(a, 1, "33.33", fixtures.Bidder("alice")))

	require.NoError(t, svc.GenerateForAuction(context.Background(), a.ID))

	invoices, err := st.InvoicesByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	item := invoices[0].Items[0]

	// 33.33 x 0.15 = 4.9995, rounds half up to 5.00.
	assert.True(t, item.PremiumAmount.Equal(fixtures.Money("5.00")))
	// (33.33 + 5.00) x 0.08 = 3.0664, rounds to 3.07.
	assert.True(t, item.TaxAmount.Equal(fixtures.Money("3.07")))
	assert.True(t, item.LineTotal.Equal(fixtures.Money("41.40")))
	assert.True(t, invoices[0].Total.Equal(fixtures.Money("41.40")))
}

func TestGenerateIncludesShipping(t *testing.T) {
	svc, st, a := newInvoicer(t)
	l := soldLot(a, 1, "100", fixtures.Bidder("alice"))
	l.ShippingAvailable = true
	l.ShippingAmount = fixtures.MoneyPtr("12.50")
	st.SeedLot(l)

	require.NoError(t, svc.GenerateForAuction(context.Background(), a.ID))

	invoices, err := st.InvoicesByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	inv := invoices[0]
	assert.True(t, inv.Shipping.Equal(fixtures.Money("12.50")))
	// 100 + 15 premium + 9.20 tax + 12.50 shipping.
	assert.True(t, inv.Total.Equal(fixtures.Money("136.70")))
}

func TestGenerateExactlyOnce(t *testing.T) {
	svc, st, a := newInvoicer(t)
	st.SeedLot(soldLot(a, 1, "100", fixtures.Bidder("alice")))

	require.NoError(t, svc.GenerateForAuction(context.Background(), a.ID))
	err := svc.GenerateForAuction(context.Background(), a.ID)

	require.Error(t, err)
	assert.Equal(t, "ALREADY_GENERATED", domainerrors.Code(err))

	invoices, err := st.InvoicesByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestGenerateRequiresClosedAuction(t *testing.T) {
	st := memstore.New()
	a := fixtures.ActiveAuction()
	st.SeedAuction(a)
	svc := NewService(st, clock.NewFixed(fixtures.BaseTime), zap.NewNop())

	err := svc.GenerateForAuction(context.Background(), a.ID)
	require.Error(t, err)
	assert.Equal(t, "NOT_CLOSED", domainerrors.Code(err))
}

func TestGenerateUnknownAuction(t *testing.T) {
	svc, _, _ := newInvoicer(t)

	err := svc.GenerateForAuction(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", domainerrors.Code(err))
}

func TestGenerateNoTaxWhenDisabled(t *testing.T) {
	svc, st, a := newInvoicer(t)
	a.TaxEnabled = false
	st.SeedAuction(a)
	st.SeedLot(soldLot(a, 1, "100", fixtures.Bidder("alice")))

	require.NoError(t, svc.GenerateForAuction(context.Background(), a.ID))

	invoices, err := st.InvoicesByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, invoices[0].Tax.IsZero())
	assert.True(t, invoices[0].Total.Equal(fixtures.Money("115")))
}
