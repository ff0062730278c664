package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/lothammer/auction-backend/internal/domain/values"
	"github.com/shopspring/decimal"
)

// Auction groups lots under shared timing, increment, and premium rules.
type Auction struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`

	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`

	// Soft close: a bid arriving within TriggerWindow of a lot's close pushes
	// the close out by Extension. Extensions compound without bound.
	SoftCloseEnabled bool          `json:"soft_close_enabled"`
	TriggerWindow    time.Duration `json:"trigger_window"`
	Extension        time.Duration `json:"extension"`

	IncrementRules values.TierTable `json:"increment_rules"`
	PremiumRules   values.TierTable `json:"premium_rules"`

	TaxEnabled bool            `json:"tax_enabled"`
	TaxRate    decimal.Decimal `json:"tax_rate"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type Status int

const (
	StatusDraft Status = iota
	StatusPublished
	StatusActive
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusPublished:
		return "published"
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseStatus converts a storage string to a Status.
func ParseStatus(s string) Status {
	switch s {
	case "published":
		return StatusPublished
	case "active":
		return StatusActive
	case "closed":
		return StatusClosed
	default:
		return StatusDraft
	}
}

// New creates a draft auction with default tier tables.
func New(title string, startAt, endAt time.Time) *Auction {
	now := time.Now()
	return &Auction{
		ID:               uuid.New(),
		Title:            title,
		Status:           StatusDraft,
		StartAt:          startAt,
		EndAt:            endAt,
		SoftCloseEnabled: true,
		TriggerWindow:    5 * time.Minute,
		Extension:        5 * time.Minute,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// EffectiveIncrementRules resolves the tier table for a lot: the lot override
// when present, the auction table otherwise.
func (a *Auction) EffectiveIncrementRules(override values.TierTable) values.TierTable {
	if len(override) > 0 {
		return override
	}
	return a.IncrementRules
}

// IsBiddable reports whether the auction accepts bids at all.
func (a *Auction) IsBiddable() bool {
	return a.Status == StatusActive
}
