package imports

import (
	"time"

	"github.com/google/uuid"
)

// BatchKind distinguishes lot CSV batches from image filename batches.
type BatchKind string

const (
	BatchKindLotCSV BatchKind = "lot_csv"
	BatchKindImages BatchKind = "images"
)

// Batch records one bulk ingest attempt with its per-row outcomes.
type Batch struct {
	ID        uuid.UUID `json:"id"`
	AuctionID uuid.UUID `json:"auction_id"`
	Kind      BatchKind `json:"kind"`
	CreatedBy uuid.UUID `json:"created_by"`

	TotalRows    int `json:"total_rows"`
	AcceptedRows int `json:"accepted_rows"`
	RejectedRows int `json:"rejected_rows"`

	Accepted bool       `json:"accepted"`
	Errors   []RowError `json:"errors,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RowError is one validation failure inside a batch. Row is 1-based and
// counts data rows, not the header.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// MappingStatus is the outcome of matching one uploaded image filename.
type MappingStatus string

const (
	MappingMatched   MappingStatus = "matched"
	MappingUnmatched MappingStatus = "unmatched"
	MappingConflict  MappingStatus = "conflict"
	MappingManual    MappingStatus = "manual"
)

// ImageMapping links an uploaded image to a lot at a photo order. Unmatched
// and conflict mappings keep the parse result for later manual assignment.
type ImageMapping struct {
	ID        uuid.UUID `json:"id"`
	BatchID   uuid.UUID `json:"batch_id"`
	AuctionID uuid.UUID `json:"auction_id"`

	Filename  string `json:"filename"`
	StoredURL string `json:"stored_url"`

	LotID      *uuid.UUID    `json:"lot_id,omitempty"`
	LotNumber  *int          `json:"lot_number,omitempty"`
	PhotoOrder *int          `json:"photo_order,omitempty"`
	Status     MappingStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBatch creates an empty batch shell.
func NewBatch(auctionID, createdBy uuid.UUID, kind BatchKind, at time.Time) *Batch {
	return &Batch{
		ID:        uuid.New(),
		AuctionID: auctionID,
		Kind:      kind,
		CreatedBy: createdBy,
		CreatedAt: at,
	}
}
