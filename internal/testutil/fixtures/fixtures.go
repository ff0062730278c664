// Package fixtures builds domain objects for tests.
package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lothammer/auction-backend/internal/domain/auction"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/rules"
	"github.com/lothammer/auction-backend/internal/domain/values"
)

// BaseTime is the pinned test instant.
var BaseTime = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// Money parses a USD amount and panics on error.
func Money(amount string) values.Money {
	return values.MustMoneyFromString(amount)
}

// MoneyPtr parses a USD amount to a pointer.
func MoneyPtr(amount string) *values.Money {
	m := Money(amount)
	return &m
}

// ActiveAuction returns an active auction with the default increment tiers,
// 15% buyer's premium on everything, and a 2 minute soft close window.
func ActiveAuction() *auction.Auction {
	a := auction.New("Estate Sale 44", BaseTime.Add(-24*time.Hour), BaseTime.Add(24*time.Hour))
	a.Status = auction.StatusActive
	a.SoftCloseEnabled = true
	a.TriggerWindow = 2 * time.Minute
	a.Extension = 2 * time.Minute
	a.IncrementRules = rules.DefaultIncrementTiers()
	a.PremiumRules = values.TierTable{values.RateTier("0", "", "0.15")}
	a.TaxEnabled = true
	a.TaxRate = decimal.RequireFromString("0.08")
	return a
}

// ActiveLot returns an active lot in a, starting at $10, closing one hour
// after BaseTime.
func ActiveLot(a *auction.Auction, lotNumber int) *lot.Lot {
	l := lot.New(a.ID, lotNumber, "Walnut sideboard", Money("10"), BaseTime.Add(time.Hour))
	l.Status = lot.StatusActive
	return l
}

// Bidder returns a deterministic bidder id for a label.
func Bidder(label string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("bidder:"+label))
}
