// Package store defines the transactional persistence contract the services
// run against. The PostgreSQL implementation lives in
// internal/infrastructure/repository; tests use internal/testutil/memstore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lothammer/auction-backend/internal/domain/audit"
	"github.com/lothammer/auction-backend/internal/domain/auction"
	"github.com/lothammer/auction-backend/internal/domain/bid"
	"github.com/lothammer/auction-backend/internal/domain/imports"
	"github.com/lothammer/auction-backend/internal/domain/invoice"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/watchlist"
)

// Sentinel errors surfaced by every implementation.
var (
	// ErrNotFound reports a missing row.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict reports a uniqueness or foreign key violation.
	ErrConflict = errors.New("store: constraint conflict")
	// ErrAborted reports a serialization failure; the caller may retry the
	// whole transaction.
	ErrAborted = errors.New("store: serialization conflict")
)

// Tx is the per-transaction surface. Writes issued through a Tx are atomic:
// all commit or none. Reads after writes within one Tx observe the writes.
type Tx interface {
	// Auctions
	Auction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	UpdateAuction(ctx context.Context, a *auction.Auction) error
	LotsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*lot.Lot, error)
	CountOpenLots(ctx context.Context, auctionID uuid.UUID) (int, error)

	// Lots
	Lot(ctx context.Context, id uuid.UUID) (*lot.Lot, error)
	LotByNumber(ctx context.Context, auctionID uuid.UUID, lotNumber int) (*lot.Lot, error)
	InsertLot(ctx context.Context, l *lot.Lot) error
	UpdateLot(ctx context.Context, l *lot.Lot) error

	// Bids. Bid rows are immutable apart from the winning flag, the max-bid
	// active flag, the status label, and the outbid timestamp.
	InsertBid(ctx context.Context, b *bid.Bid) error
	WinningBid(ctx context.Context, lotID uuid.UUID) (*bid.Bid, error)
	BidsForLot(ctx context.Context, lotID uuid.UUID) ([]*bid.Bid, error)
	SetBidOutbid(ctx context.Context, bidID uuid.UUID, at time.Time) error
	SetBidStatus(ctx context.Context, bidID uuid.UUID, status bid.Status) error
	DeactivateMaxBids(ctx context.Context, lotID, bidderID uuid.UUID) error

	// Audit. Append-only; a failed audit write aborts the transaction.
	AppendAudit(ctx context.Context, e *audit.Event) error
	HasAudit(ctx context.Context, lotID uuid.UUID, kind audit.Kind) (bool, error)

	// Invoices
	InvoicesExist(ctx context.Context, auctionID uuid.UUID) (bool, error)
	NextInvoiceSequence(ctx context.Context) (int64, error)
	InsertInvoice(ctx context.Context, inv *invoice.Invoice) error

	// Imports
	InsertBatch(ctx context.Context, b *imports.Batch) error
	UpdateBatch(ctx context.Context, b *imports.Batch) error
	InsertImageMapping(ctx context.Context, m *imports.ImageMapping) error
	ImageMapping(ctx context.Context, id uuid.UUID) (*imports.ImageMapping, error)
	UpdateImageMapping(ctx context.Context, m *imports.ImageMapping) error
	MappingTaken(ctx context.Context, lotID uuid.UUID, photoOrder int) (bool, error)
}

// Store is the entry point services depend on.
type Store interface {
	// WithLotTx runs fn inside a transaction holding exclusive logical access
	// to the lot row. Concurrent callers targeting the same lot observe
	// serial execution. The locked, current lot row is passed to fn; fn's
	// mutations to it are persisted via Tx.UpdateLot.
	WithLotTx(ctx context.Context, lotID uuid.UUID, fn func(ctx context.Context, tx Tx, l *lot.Lot) error) error

	// WithTx runs fn inside a plain transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Read-only accessors outside any transaction.
	Lot(ctx context.Context, id uuid.UUID) (*lot.Lot, error)
	Auction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
	LotsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*lot.Lot, error)
	BidsForLot(ctx context.Context, lotID uuid.UUID) ([]*bid.Bid, error)
	InvoicesByAuction(ctx context.Context, auctionID uuid.UUID) ([]*invoice.Invoice, error)
	Batch(ctx context.Context, id uuid.UUID) (*imports.Batch, error)
	MappingsByBatch(ctx context.Context, batchID uuid.UUID) ([]*imports.ImageMapping, error)

	// DueLots returns ids of active lots whose close time has passed.
	DueLots(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// Watchlist. Idempotent add and remove.
	AddWatch(ctx context.Context, userID, lotID uuid.UUID) error
	RemoveWatch(ctx context.Context, userID, lotID uuid.UUID) error
	WatchesByUser(ctx context.Context, userID uuid.UUID) ([]*watchlist.Entry, error)
}
