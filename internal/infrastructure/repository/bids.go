package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lothammer/auction-backend/internal/domain/bid"
)

const bidColumns = `
	id, lot_id, auction_id, bidder_id,
	amount::text, type, max_bid::text, max_bid_active,
	is_winning, is_buy_now, status,
	previous_amount::text, previous_bidder_id,
	source_ip, user_agent, created_at, outbid_at`

func scanBid(row pgx.Row) (*bid.Bid, error) {
	var b bid.Bid
	var bidType, status string
	var amount, prevAmount string
	var maxBid *string
	if err := row.Scan(
		&b.ID, &b.LotID, &b.AuctionID, &b.BidderID,
		&amount, &bidType, &maxBid, &b.MaxBidActive,
		&b.IsWinning, &b.IsBuyNow, &status,
		&prevAmount, &b.PreviousBidderID,
		&b.SourceIP, &b.UserAgent, &b.CreatedAt, &b.OutbidAt,
	); err != nil {
		return nil, mapError(err)
	}
	b.Type = bid.ParseType(bidType)
	b.Status = bid.ParseStatus(status)

	var err error
	if b.Amount, err = parseMoney(amount); err != nil {
		return nil, err
	}
	if b.PreviousAmount, err = parseMoney(prevAmount); err != nil {
		return nil, err
	}
	if b.MaxBid, err = parseNullMoney(maxBid); err != nil {
		return nil, err
	}
	return &b, nil
}

func (t *pgTx) InsertBid(ctx context.Context, b *bid.Bid) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO bids (
			id, lot_id, auction_id, bidder_id,
			amount, type, max_bid, max_bid_active,
			is_winning, is_buy_now, status,
			previous_amount, previous_bidder_id,
			source_ip, user_agent, created_at, outbid_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6, $7::numeric, $8,
			$9, $10, $11,
			$12::numeric, $13,
			$14, $15, $16, $17
		)`,
		b.ID, b.LotID, b.AuctionID, b.BidderID,
		moneyParam(b.Amount), b.Type.String(), nullMoneyParam(b.MaxBid), b.MaxBidActive,
		b.IsWinning, b.IsBuyNow, b.Status.String(),
		moneyParam(b.PreviousAmount), b.PreviousBidderID,
		b.SourceIP, b.UserAgent, b.CreatedAt, b.OutbidAt)
	return mapError(err)
}

// WinningBid uses the partial index on (lot_id) WHERE is_winning.
func (t *pgTx) WinningBid(ctx context.Context, lotID uuid.UUID) (*bid.Bid, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE lot_id = $1 AND is_winning`, lotID)
	return scanBid(row)
}

func (t *pgTx) BidsForLot(ctx context.Context, lotID uuid.UUID) ([]*bid.Bid, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE lot_id = $1
		ORDER BY created_at, id`, lotID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, mapError(rows.Err())
}

func (t *pgTx) SetBidOutbid(ctx context.Context, bidID uuid.UUID, at time.Time) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE bids SET is_winning = false, outbid_at = $2 WHERE id = $1`, bidID, at)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func (t *pgTx) SetBidStatus(ctx context.Context, bidID uuid.UUID, status bid.Status) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE bids SET status = $2 WHERE id = $1`, bidID, status.String())
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}

func (t *pgTx) DeactivateMaxBids(ctx context.Context, lotID, bidderID uuid.UUID) error {
	_, err := t.q.Exec(ctx, `
		UPDATE bids SET max_bid_active = false
		WHERE lot_id = $1 AND bidder_id = $2 AND max_bid_active`, lotID, bidderID)
	return mapError(err)
}
