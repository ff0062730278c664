package bid

import (
	"time"

	"github.com/google/uuid"
	"github.com/lothammer/auction-backend/internal/domain/values"
)

// Bid is an append-only record of an amount that was, at some point, set as
// the live bid on a lot. Amount, bidder, and times never change after insert;
// only IsWinning, MaxBidActive, Status, and OutbidAt transition.
type Bid struct {
	ID        uuid.UUID `json:"id"`
	LotID     uuid.UUID `json:"lot_id"`
	AuctionID uuid.UUID `json:"auction_id"`
	BidderID  uuid.UUID `json:"bidder_id"`

	Amount values.Money `json:"amount"`
	Type   Type         `json:"type"`

	// MaxBid is set only when the placing user provided a proxy cap;
	// MaxBidActive is true while that cap is still defending the user.
	MaxBid       *values.Money `json:"max_bid,omitempty"`
	MaxBidActive bool          `json:"max_bid_active"`

	IsWinning bool   `json:"is_winning"`
	IsBuyNow  bool   `json:"is_buy_now"`
	Status    Status `json:"status"`

	// Lot snapshot immediately before this bid.
	PreviousAmount   values.Money `json:"previous_amount"`
	PreviousBidderID *uuid.UUID   `json:"previous_bidder_id,omitempty"`

	// Placement metadata.
	SourceIP  string `json:"source_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	OutbidAt  *time.Time `json:"outbid_at,omitempty"`
}

// Type distinguishes hand-placed bids from proxy auto-bids.
type Type int

const (
	TypeManual Type = iota
	TypeProxy
)

func (t Type) String() string {
	if t == TypeProxy {
		return "proxy"
	}
	return "manual"
}

// ParseType converts a storage string to a Type.
func ParseType(s string) Type {
	if s == "proxy" {
		return TypeProxy
	}
	return TypeManual
}

// Status labels a bid's final standing once the lot closes.
type Status int

const (
	StatusPlaced Status = iota
	StatusWon
	StatusLost
)

func (s Status) String() string {
	switch s {
	case StatusWon:
		return "won"
	case StatusLost:
		return "lost"
	default:
		return "placed"
	}
}

// ParseStatus converts a storage string to a Status.
func ParseStatus(s string) Status {
	switch s {
	case "won":
		return StatusWon
	case "lost":
		return StatusLost
	default:
		return StatusPlaced
	}
}

// New creates a bid row carrying the prior lot snapshot.
func New(lotID, auctionID, bidderID uuid.UUID, amount values.Money, bidType Type, prevAmount values.Money, prevBidder *uuid.UUID, at time.Time) *Bid {
	return &Bid{
		ID:               uuid.New(),
		LotID:            lotID,
		AuctionID:        auctionID,
		BidderID:         bidderID,
		Amount:           amount,
		Type:             bidType,
		Status:           StatusPlaced,
		PreviousAmount:   prevAmount,
		PreviousBidderID: prevBidder,
		CreatedAt:        at,
	}
}

// MarkOutbid clears the winning flag and stamps the outbid time.
func (b *Bid) MarkOutbid(at time.Time) {
	b.IsWinning = false
	b.OutbidAt = &at
}
