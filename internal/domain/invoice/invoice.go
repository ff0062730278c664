package invoice

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lothammer/auction-backend/internal/domain/values"
	"github.com/shopspring/decimal"
)

// Invoice is the bill for one (auction, winning bidder) pair. Monetary fields
// never change after generation; only payment and fulfillment statuses move.
type Invoice struct {
	ID            uuid.UUID `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	AuctionID     uuid.UUID `json:"auction_id"`
	BidderID      uuid.UUID `json:"bidder_id"`

	Subtotal values.Money `json:"subtotal"`
	Premium  values.Money `json:"premium"`
	Tax      values.Money `json:"tax"`
	Shipping values.Money `json:"shipping"`
	Total    values.Money `json:"total"`

	PaymentStatus     PaymentStatus     `json:"payment_status"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`

	Items []Item `json:"items"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item captures one winning lot's line computation.
type Item struct {
	ID         uuid.UUID `json:"id"`
	InvoiceID  uuid.UUID `json:"invoice_id"`
	LotID      uuid.UUID `json:"lot_id"`
	LotNumber  int       `json:"lot_number"`
	LotTitle   string    `json:"lot_title"`

	WinningBid     values.Money    `json:"winning_bid"`
	PremiumRate    decimal.Decimal `json:"premium_rate"`
	PremiumAmount  values.Money    `json:"premium_amount"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      values.Money    `json:"tax_amount"`
	ShippingAmount values.Money    `json:"shipping_amount"`
	LineTotal      values.Money    `json:"line_total"`
}

type PaymentStatus int

const (
	PaymentUnpaid PaymentStatus = iota
	PaymentPaid
	PaymentRefunded
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentPaid:
		return "paid"
	case PaymentRefunded:
		return "refunded"
	default:
		return "unpaid"
	}
}

// ParsePaymentStatus converts a storage string to a PaymentStatus.
func ParsePaymentStatus(s string) PaymentStatus {
	switch s {
	case "paid":
		return PaymentPaid
	case "refunded":
		return PaymentRefunded
	default:
		return PaymentUnpaid
	}
}

type FulfillmentStatus int

const (
	FulfillmentPending FulfillmentStatus = iota
	FulfillmentShipped
	FulfillmentDelivered
	FulfillmentPickedUp
)

func (s FulfillmentStatus) String() string {
	switch s {
	case FulfillmentShipped:
		return "shipped"
	case FulfillmentDelivered:
		return "delivered"
	case FulfillmentPickedUp:
		return "picked_up"
	default:
		return "pending"
	}
}

// ParseFulfillmentStatus converts a storage string to a FulfillmentStatus.
func ParseFulfillmentStatus(s string) FulfillmentStatus {
	switch s {
	case "shipped":
		return FulfillmentShipped
	case "delivered":
		return FulfillmentDelivered
	case "picked_up":
		return FulfillmentPickedUp
	default:
		return FulfillmentPending
	}
}

// FormatNumber renders the invoice number: INV-YYYYMMDD-NNNNN with a
// zero-padded global sequence, unique across the system (not per day).
func FormatNumber(at time.Time, sequence int64) string {
	return fmt.Sprintf("INV-%s-%05d", at.Format("20060102"), sequence)
}
