package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/lothammer/auction-backend/internal/domain/audit"
)

// AppendAudit inserts one event. The table allows INSERT only; updates and
// deletes are blocked by a trigger in the schema.
func (t *pgTx) AppendAudit(ctx context.Context, e *audit.Event) error {
	var snapshot any
	if len(e.Snapshot) > 0 {
		snapshot = string(e.Snapshot)
	}
	_, err := t.q.Exec(ctx, `
		INSERT INTO audit_events (
			id, kind, lot_id, auction_id, bidder_id, bid_id,
			previous_amount, new_amount, result_code, result_message,
			snapshot, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::numeric, $8::numeric, $9, $10,
			$11::jsonb, $12
		)`,
		e.ID, string(e.Kind), e.LotID, e.AuctionID, e.BidderID, e.BidID,
		moneyParam(e.PreviousAmount), moneyParam(e.NewAmount), e.ResultCode, e.ResultMessage,
		snapshot, e.CreatedAt)
	return mapError(err)
}

func (t *pgTx) HasAudit(ctx context.Context, lotID uuid.UUID, kind audit.Kind) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM audit_events WHERE lot_id = $1 AND kind = $2
		)`, lotID, string(kind)).Scan(&exists)
	return exists, mapError(err)
}
