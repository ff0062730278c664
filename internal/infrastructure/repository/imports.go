package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lothammer/auction-backend/internal/domain/imports"
)

func (t *pgTx) InsertBatch(ctx context.Context, b *imports.Batch) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO import_batches (
			id, auction_id, kind, created_by,
			total_rows, accepted_rows, rejected_rows, accepted,
			errors, created_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9::jsonb, $10
		)`,
		b.ID, b.AuctionID, string(b.Kind), b.CreatedBy,
		b.TotalRows, b.AcceptedRows, b.RejectedRows, b.Accepted,
		jsonParam(b.Errors), b.CreatedAt)
	return mapError(err)
}

// UpdateBatch persists the outcome fields filled in after row processing.
func (t *pgTx) UpdateBatch(ctx context.Context, b *imports.Batch) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE import_batches SET
			total_rows = $2, accepted_rows = $3, rejected_rows = $4,
			accepted = $5, errors = $6::jsonb
		WHERE id = $1`,
		b.ID, b.TotalRows, b.AcceptedRows, b.RejectedRows,
		b.Accepted, jsonParam(b.Errors))
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func (t *pgTx) batch(ctx context.Context, id uuid.UUID) (*imports.Batch, error) {
	var b imports.Batch
	var kind string
	var errsJSON *string
	err := t.q.QueryRow(ctx, `
		SELECT id, auction_id, kind, created_by,
			total_rows, accepted_rows, rejected_rows, accepted,
			errors::text, created_at
		FROM import_batches WHERE id = $1`, id).Scan(
		&b.ID, &b.AuctionID, &kind, &b.CreatedBy,
		&b.TotalRows, &b.AcceptedRows, &b.RejectedRows, &b.Accepted,
		&errsJSON, &b.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	b.Kind = imports.BatchKind(kind)
	if errsJSON != nil && *errsJSON != "" {
		if err := json.Unmarshal([]byte(*errsJSON), &b.Errors); err != nil {
			return nil, fmt.Errorf("parsing batch errors: %w", err)
		}
	}
	return &b, nil
}

const mappingColumns = `
	id, batch_id, auction_id, filename, stored_url,
	lot_id, lot_number, photo_order, status, reason,
	created_at, updated_at`

func scanMapping(row pgx.Row) (*imports.ImageMapping, error) {
	var m imports.ImageMapping
	var status string
	if err := row.Scan(
		&m.ID, &m.BatchID, &m.AuctionID, &m.Filename, &m.StoredURL,
		&m.LotID, &m.LotNumber, &m.PhotoOrder, &status, &m.Reason,
		&m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	m.Status = imports.MappingStatus(status)
	return &m, nil
}

func (t *pgTx) InsertImageMapping(ctx context.Context, m *imports.ImageMapping) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO image_mappings (
			id, batch_id, auction_id, filename, stored_url,
			lot_id, lot_number, photo_order, status, reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.BatchID, m.AuctionID, m.Filename, m.StoredURL,
		m.LotID, m.LotNumber, m.PhotoOrder, string(m.Status), m.Reason,
		m.CreatedAt, m.UpdatedAt)
	return mapError(err)
}

func (t *pgTx) ImageMapping(ctx context.Context, id uuid.UUID) (*imports.ImageMapping, error) {
	row := t.q.QueryRow(ctx, `SELECT `+mappingColumns+` FROM image_mappings WHERE id = $1`, id)
	return scanMapping(row)
}

func (t *pgTx) UpdateImageMapping(ctx context.Context, m *imports.ImageMapping) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE image_mappings SET
			lot_id = $2, lot_number = $3, photo_order = $4,
			status = $5, reason = $6, updated_at = $7
		WHERE id = $1`,
		m.ID, m.LotID, m.LotNumber, m.PhotoOrder,
		string(m.Status), m.Reason, m.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

// MappingTaken reports whether a (lot, order) slot is already claimed by a
// matched or manual mapping.
func (t *pgTx) MappingTaken(ctx context.Context, lotID uuid.UUID, photoOrder int) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM image_mappings
			WHERE lot_id = $1 AND photo_order = $2 AND status IN ('matched', 'manual')
		)`, lotID, photoOrder).Scan(&exists)
	return exists, mapError(err)
}

func (t *pgTx) mappingsByBatch(ctx context.Context, batchID uuid.UUID) ([]*imports.ImageMapping, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+mappingColumns+` FROM image_mappings
		WHERE batch_id = $1
		ORDER BY filename, id`, batchID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*imports.ImageMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, mapError(rows.Err())
}
