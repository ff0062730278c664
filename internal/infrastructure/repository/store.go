// Package repository implements the store contract on PostgreSQL with pgx.
// Per-lot serialization uses SELECT ... FOR UPDATE on the lot row, so
// concurrent engine calls on one lot queue on the row lock.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/auction"
	"github.com/lothammer/auction-backend/internal/domain/bid"
	"github.com/lothammer/auction-backend/internal/domain/imports"
	"github.com/lothammer/auction-backend/internal/domain/invoice"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/watchlist"
	"github.com/lothammer/auction-backend/internal/store"
)

// PG is the PostgreSQL store.
type PG struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a PostgreSQL store over a connection pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *PG {
	return &PG{pool: pool, logger: logger}
}

var _ store.Store = (*PG)(nil)

// querier abstracts pool vs transaction so the scan helpers serve both.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// pgTx implements store.Tx over an open transaction.
type pgTx struct {
	q querier
}

var _ store.Tx = (*pgTx)(nil)

// mapError converts driver errors to the store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization failure, deadlock
			return fmt.Errorf("%s: %w", pgErr.Message, store.ErrAborted)
		case "23505", "23503": // unique, foreign key
			return fmt.Errorf("%s: %w", pgErr.Message, store.ErrConflict)
		}
	}
	return err
}

// WithLotTx locks the lot row for the duration of fn.
func (p *PG) WithLotTx(ctx context.Context, lotID uuid.UUID, fn func(ctx context.Context, tx store.Tx, l *lot.Lot) error) error {
	return p.inTx(ctx, func(ctx context.Context, t *pgTx) error {
		l, err := t.lockLot(ctx, lotID)
		if err != nil {
			return err
		}
		return fn(ctx, t, l)
	})
}

// WithTx runs fn in a plain transaction.
func (p *PG) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return p.inTx(ctx, func(ctx context.Context, t *pgTx) error {
		return fn(ctx, t)
	})
}

func (p *PG) inTx(ctx context.Context, fn func(ctx context.Context, t *pgTx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

// Read accessors outside any transaction.

func (p *PG) Lot(ctx context.Context, id uuid.UUID) (*lot.Lot, error) {
	return (&pgTx{q: p.pool}).Lot(ctx, id)
}

func (p *PG) Auction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	return (&pgTx{q: p.pool}).Auction(ctx, id)
}

func (p *PG) LotsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*lot.Lot, error) {
	return (&pgTx{q: p.pool}).LotsByAuction(ctx, auctionID)
}

func (p *PG) BidsForLot(ctx context.Context, lotID uuid.UUID) ([]*bid.Bid, error) {
	return (&pgTx{q: p.pool}).BidsForLot(ctx, lotID)
}

func (p *PG) InvoicesByAuction(ctx context.Context, auctionID uuid.UUID) ([]*invoice.Invoice, error) {
	return (&pgTx{q: p.pool}).invoicesByAuction(ctx, auctionID)
}

func (p *PG) Batch(ctx context.Context, id uuid.UUID) (*imports.Batch, error) {
	return (&pgTx{q: p.pool}).batch(ctx, id)
}

func (p *PG) MappingsByBatch(ctx context.Context, batchID uuid.UUID) ([]*imports.ImageMapping, error) {
	return (&pgTx{q: p.pool}).mappingsByBatch(ctx, batchID)
}

// DueLots returns active lots whose close time has passed, soonest first.
func (p *PG) DueLots(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id FROM lots
		WHERE status = 'active' AND current_close_at <= $1
		ORDER BY current_close_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		ids = append(ids, id)
	}
	return ids, mapError(rows.Err())
}

func (p *PG) AddWatch(ctx context.Context, userID, lotID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO watchlist (user_id, lot_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id, lot_id) DO NOTHING`, userID, lotID)
	return mapError(err)
}

func (p *PG) RemoveWatch(ctx context.Context, userID, lotID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM watchlist WHERE user_id = $1 AND lot_id = $2`, userID, lotID)
	return mapError(err)
}

func (p *PG) WatchesByUser(ctx context.Context, userID uuid.UUID) ([]*watchlist.Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT user_id, lot_id, created_at
		FROM watchlist
		WHERE user_id = $1
		ORDER BY created_at`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*watchlist.Entry
	for rows.Next() {
		var e watchlist.Entry
		if err := rows.Scan(&e.UserID, &e.LotID, &e.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, &e)
	}
	return out, mapError(rows.Err())
}
