package bidding

import (
	"github.com/google/uuid"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/values"
)

// PlaceBidRequest carries one bid attempt into the engine. Amount and MaxBid
// are already parsed; identity comes from the auth collaborator.
type PlaceBidRequest struct {
	LotID    uuid.UUID
	BidderID uuid.UUID
	Amount   values.Money
	MaxBid   *values.Money

	// Placement metadata, recorded on the bid row.
	SourceIP  string
	UserAgent string
}

// PlaceBidResult is the structured outcome of a bid attempt. ResultCode is a
// stable string; Accepted is false both for rejections and for
// OUTBID_BY_PROXY, where state changed but the caller lost.
type PlaceBidResult struct {
	ResultCode     string       `json:"result_code"`
	Accepted       bool         `json:"accepted"`
	ProxyTriggered bool         `json:"proxy_triggered"`
	OutbidOccurred bool         `json:"outbid_occurred"`
	SoftClosed     bool         `json:"soft_closed"`
	Lot            lot.Snapshot `json:"lot"`

	// MinNextBid reports the floor that applied, so a BID_TOO_LOW caller can
	// resubmit without another round trip.
	MinNextBid values.Money `json:"min_next_bid"`
}

// BuyNowResult is the outcome of a buy-now execution.
type BuyNowResult struct {
	ResultCode string       `json:"result_code"`
	Lot        lot.Snapshot `json:"lot"`
}
