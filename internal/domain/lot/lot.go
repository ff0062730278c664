package lot

import (
	"time"

	"github.com/google/uuid"
	"github.com/lothammer/auction-backend/internal/domain/values"
)

// Lot is one item under the hammer. The live bidding snapshot fields
// (CurrentBid, CurrentBidderID, BidCount, ReserveMet) are mutated only inside
// the per-lot store transaction.
type Lot struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auction_id"`
	LotNumber int       `json:"lot_number"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Condition   string `json:"condition,omitempty"`
	Quantity    int    `json:"quantity"`
	Location    string `json:"location,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	StartingBid  values.Money  `json:"starting_bid"`
	ReservePrice *values.Money `json:"reserve_price,omitempty"`
	BuyNowPrice  *values.Money `json:"buy_now_price,omitempty"`

	// Optional per-lot override of the auction increment table.
	IncrementRulesOverride values.TierTable `json:"increment_rules_override,omitempty"`

	OriginalCloseAt time.Time `json:"original_close_at"`
	CurrentCloseAt  time.Time `json:"current_close_at"`
	ExtensionCount  int       `json:"extension_count"`

	Status Status `json:"status"`

	CurrentBid      values.Money `json:"current_bid"`
	CurrentBidderID *uuid.UUID   `json:"current_bidder_id,omitempty"`
	BidCount        int          `json:"bid_count"`
	ReserveMet      bool         `json:"reserve_met"`

	ShippingAvailable bool          `json:"shipping_available"`
	ShippingAmount    *values.Money `json:"shipping_amount,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type Status int

const (
	StatusPending Status = iota
	StatusActive
	StatusClosed
	StatusSold
	StatusUnsold
	StatusWithdrawn
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	case StatusSold:
		return "sold"
	case StatusUnsold:
		return "unsold"
	case StatusWithdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

// ParseStatus converts a storage string to a Status.
func ParseStatus(s string) Status {
	switch s {
	case "active":
		return StatusActive
	case "closed":
		return StatusClosed
	case "sold":
		return StatusSold
	case "unsold":
		return StatusUnsold
	case "withdrawn":
		return StatusWithdrawn
	default:
		return StatusPending
	}
}

// IsClosed reports whether the lot has reached a terminal status.
func (s Status) IsClosed() bool {
	return s == StatusClosed || s == StatusSold || s == StatusUnsold || s == StatusWithdrawn
}

// New creates a pending lot.
func New(auctionID uuid.UUID, lotNumber int, title string, startingBid values.Money, closeAt time.Time) *Lot {
	now := time.Now()
	return &Lot{
		ID:              uuid.New(),
		AuctionID:       auctionID,
		LotNumber:       lotNumber,
		Title:           title,
		Quantity:        1,
		StartingBid:     startingBid,
		OriginalCloseAt: closeAt,
		CurrentCloseAt:  closeAt,
		Status:          StatusPending,
		CurrentBid:      values.Zero(values.USD),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// AcceptsBidsAt reports whether a bid arriving at now can be considered.
// The close boundary is exclusive: a bid at exactly CurrentCloseAt is late.
func (l *Lot) AcceptsBidsAt(now time.Time) bool {
	return l.Status == StatusActive && now.Before(l.CurrentCloseAt)
}

// ApplyWinningBid updates the live snapshot for a new winning amount.
// ReserveMet latches: once true it never reverts.
func (l *Lot) ApplyWinningBid(bidderID uuid.UUID, amount values.Money, now time.Time) {
	l.CurrentBid = amount
	l.CurrentBidderID = &bidderID
	if l.ReservePrice != nil && amount.GreaterOrEqual(*l.ReservePrice) {
		l.ReserveMet = true
	}
	l.UpdatedAt = now
}

// Extend pushes the close time out under soft close. CurrentCloseAt only
// grows; a shorter candidate is ignored.
func (l *Lot) Extend(newCloseAt, now time.Time) bool {
	if !newCloseAt.After(l.CurrentCloseAt) {
		return false
	}
	l.CurrentCloseAt = newCloseAt
	l.ExtensionCount++
	l.UpdatedAt = now
	return true
}

// Snapshot is the wire shape of the live lot state sent to clients and
// embedded in subscription events. Times are epoch seconds.
type Snapshot struct {
	LotID           uuid.UUID    `json:"lot_id"`
	AuctionID       uuid.UUID    `json:"auction_id"`
	LotNumber       int          `json:"lot_number"`
	Status          string       `json:"status"`
	CurrentBid      values.Money `json:"current_bid"`
	CurrentBidderID *uuid.UUID   `json:"current_bidder_id,omitempty"`
	BidCount        int          `json:"bid_count"`
	ReserveMet      bool         `json:"reserve_met"`
	HasReserve      bool         `json:"has_reserve"`
	StartingBid     values.Money `json:"starting_bid"`
	BuyNowPrice     *values.Money `json:"buy_now_price,omitempty"`
	CurrentCloseAt  int64        `json:"current_close_at"`
	ExtensionCount  int          `json:"extension_count"`
}

// Snapshot renders the current live state.
func (l *Lot) Snapshot() Snapshot {
	return Snapshot{
		LotID:           l.ID,
		AuctionID:       l.AuctionID,
		LotNumber:       l.LotNumber,
		Status:          l.Status.String(),
		CurrentBid:      l.CurrentBid,
		CurrentBidderID: l.CurrentBidderID,
		BidCount:        l.BidCount,
		ReserveMet:      l.ReserveMet,
		HasReserve:      l.ReservePrice != nil,
		StartingBid:     l.StartingBid,
		BuyNowPrice:     l.BuyNowPrice,
		CurrentCloseAt:  l.CurrentCloseAt.Unix(),
		ExtensionCount:  l.ExtensionCount,
	}
}
