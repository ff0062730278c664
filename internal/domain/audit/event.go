package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lothammer/auction-backend/internal/domain/values"
)

// Kind enumerates the auditable engine decisions.
type Kind string

const (
	KindBidPlaced         Kind = "bid_placed"
	KindBidRejected       Kind = "bid_rejected"
	KindProxyTriggered    Kind = "proxy_triggered"
	KindOutbidOccurred    Kind = "outbid_occurred"
	KindSoftCloseTriggered Kind = "soft_close_triggered"
	KindLotClosed         Kind = "lot_closed"
	KindReserveMet        Kind = "reserve_met"
	KindBuyNowExecuted    Kind = "buy_now_executed"
)

// Event is one append-only audit record. Events are never updated or deleted;
// they are the primary source of truth for disputes.
type Event struct {
	ID        uuid.UUID  `json:"id"`
	Kind      Kind       `json:"kind"`
	LotID     uuid.UUID  `json:"lot_id"`
	AuctionID uuid.UUID  `json:"auction_id"`
	BidderID  *uuid.UUID `json:"bidder_id,omitempty"`
	BidID     *uuid.UUID `json:"bid_id,omitempty"`

	PreviousAmount values.Money `json:"previous_amount"`
	NewAmount      values.Money `json:"new_amount"`

	ResultCode    string `json:"result_code,omitempty"`
	ResultMessage string `json:"result_message,omitempty"`

	// Snapshot is the JSON lot/bid state at decision time.
	Snapshot json.RawMessage `json:"snapshot,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// New creates an audit event for a lot-scoped decision.
func New(kind Kind, lotID, auctionID uuid.UUID, at time.Time) *Event {
	return &Event{
		ID:             uuid.New(),
		Kind:           kind,
		LotID:          lotID,
		AuctionID:      auctionID,
		PreviousAmount: values.Zero(values.USD),
		NewAmount:      values.Zero(values.USD),
		CreatedAt:      at,
	}
}

func (e *Event) WithBidder(bidderID uuid.UUID) *Event {
	e.BidderID = &bidderID
	return e
}

func (e *Event) WithBid(bidID uuid.UUID) *Event {
	e.BidID = &bidID
	return e
}

func (e *Event) WithAmounts(previous, next values.Money) *Event {
	e.PreviousAmount = previous
	e.NewAmount = next
	return e
}

func (e *Event) WithResult(code, message string) *Event {
	e.ResultCode = code
	e.ResultMessage = message
	return e
}

// WithSnapshot attaches the serialized decision-time state. Marshal failures
// are swallowed; the snapshot is diagnostic, the typed columns are canonical.
func (e *Event) WithSnapshot(v interface{}) *Event {
	if raw, err := json.Marshal(v); err == nil {
		e.Snapshot = raw
	}
	return e
}
