package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lothammer/auction-backend/internal/domain/auction"
)

const auctionColumns = `
	id, title, description, status, start_at, end_at,
	soft_close_enabled, trigger_window_secs, extension_secs,
	increment_rules::text, premium_rules::text,
	tax_enabled, tax_rate::text,
	created_at, updated_at, closed_at`

func scanAuction(row pgx.Row) (*auction.Auction, error) {
	var a auction.Auction
	var status string
	var triggerSecs, extensionSecs int64
	var incRules, premRules, taxRate *string
	if err := row.Scan(
		&a.ID, &a.Title, &a.Description, &status, &a.StartAt, &a.EndAt,
		&a.SoftCloseEnabled, &triggerSecs, &extensionSecs,
		&incRules, &premRules,
		&a.TaxEnabled, &taxRate,
		&a.CreatedAt, &a.UpdatedAt, &a.ClosedAt,
	); err != nil {
		return nil, mapError(err)
	}
	a.Status = auction.ParseStatus(status)
	a.TriggerWindow = time.Duration(triggerSecs) * time.Second
	a.Extension = time.Duration(extensionSecs) * time.Second

	var err error
	if a.IncrementRules, err = parseTiers(incRules); err != nil {
		return nil, err
	}
	if a.PremiumRules, err = parseTiers(premRules); err != nil {
		return nil, err
	}
	if a.TaxRate, err = parseDecimal(taxRate); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertAuction creates an auction row. Auctions are set up by back office
// tooling; the service Tx surface covers only what the engine mutates.
func (s *PG) InsertAuction(ctx context.Context, a *auction.Auction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auctions (
			id, title, description, status, start_at, end_at,
			soft_close_enabled, trigger_window_secs, extension_secs,
			increment_rules, premium_rules,
			tax_enabled, tax_rate,
			created_at, updated_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10::jsonb, $11::jsonb,
			$12, $13::numeric,
			$14, $15, $16
		)`,
		a.ID, a.Title, a.Description, a.Status.String(), a.StartAt, a.EndAt,
		a.SoftCloseEnabled, int64(a.TriggerWindow/time.Second), int64(a.Extension/time.Second),
		tiersParam(a.IncrementRules), tiersParam(a.PremiumRules),
		a.TaxEnabled, decimalParam(a.TaxRate),
		a.CreatedAt, a.UpdatedAt, a.ClosedAt)
	return mapError(err)
}

func (t *pgTx) Auction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	row := t.q.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	return scanAuction(row)
}

func (t *pgTx) UpdateAuction(ctx context.Context, a *auction.Auction) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE auctions SET
			title = $2, description = $3, status = $4,
			start_at = $5, end_at = $6,
			soft_close_enabled = $7, trigger_window_secs = $8, extension_secs = $9,
			increment_rules = $10::jsonb, premium_rules = $11::jsonb,
			tax_enabled = $12, tax_rate = $13::numeric,
			updated_at = $14, closed_at = $15
		WHERE id = $1`,
		a.ID, a.Title, a.Description, a.Status.String(),
		a.StartAt, a.EndAt,
		a.SoftCloseEnabled, int64(a.TriggerWindow/time.Second), int64(a.Extension/time.Second),
		tiersParam(a.IncrementRules), tiersParam(a.PremiumRules),
		a.TaxEnabled, decimalParam(a.TaxRate),
		a.UpdatedAt, a.ClosedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func (t *pgTx) CountOpenLots(ctx context.Context, auctionID uuid.UUID) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT count(*) FROM lots
		WHERE auction_id = $1 AND status IN ('pending', 'active')`, auctionID).Scan(&n)
	return n, mapError(err)
}
