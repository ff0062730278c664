package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lothammer/auction-backend/internal/domain/lot"
)

const lotColumns = `
	id, auction_id, lot_number, title, description, category, condition,
	quantity, location, tags,
	starting_bid::text, reserve_price::text, buy_now_price::text,
	increment_rules_override::text,
	original_close_at, current_close_at, extension_count, status,
	current_bid::text, current_bidder_id, bid_count, reserve_met,
	shipping_available, shipping_amount::text,
	created_at, updated_at, closed_at`

func scanLot(row pgx.Row) (*lot.Lot, error) {
	var l lot.Lot
	var status string
	var startingBid, currentBid string
	var reserve, buyNow, shipping, override *string
	if err := row.Scan(
		&l.ID, &l.AuctionID, &l.LotNumber, &l.Title, &l.Description, &l.Category, &l.Condition,
		&l.Quantity, &l.Location, &l.Tags,
		&startingBid, &reserve, &buyNow,
		&override,
		&l.OriginalCloseAt, &l.CurrentCloseAt, &l.ExtensionCount, &status,
		&currentBid, &l.CurrentBidderID, &l.BidCount, &l.ReserveMet,
		&l.ShippingAvailable, &shipping,
		&l.CreatedAt, &l.UpdatedAt, &l.ClosedAt,
	); err != nil {
		return nil, mapError(err)
	}
	l.Status = lot.ParseStatus(status)

	var err error
	if l.StartingBid, err = parseMoney(startingBid); err != nil {
		return nil, err
	}
	if l.CurrentBid, err = parseMoney(currentBid); err != nil {
		return nil, err
	}
	if l.ReservePrice, err = parseNullMoney(reserve); err != nil {
		return nil, err
	}
	if l.BuyNowPrice, err = parseNullMoney(buyNow); err != nil {
		return nil, err
	}
	if l.ShippingAmount, err = parseNullMoney(shipping); err != nil {
		return nil, err
	}
	if l.IncrementRulesOverride, err = parseTiers(override); err != nil {
		return nil, err
	}
	return &l, nil
}

// lockLot loads the lot under FOR UPDATE; every mutating engine call for this
// lot queues here.
func (t *pgTx) lockLot(ctx context.Context, id uuid.UUID) (*lot.Lot, error) {
	row := t.q.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1 FOR UPDATE`, id)
	return scanLot(row)
}

func (t *pgTx) Lot(ctx context.Context, id uuid.UUID) (*lot.Lot, error) {
	row := t.q.QueryRow(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = $1`, id)
	return scanLot(row)
}

func (t *pgTx) LotByNumber(ctx context.Context, auctionID uuid.UUID, lotNumber int) (*lot.Lot, error) {
	row := t.q.QueryRow(ctx, `
		SELECT `+lotColumns+` FROM lots
		WHERE auction_id = $1 AND lot_number = $2`, auctionID, lotNumber)
	return scanLot(row)
}

func (t *pgTx) LotsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*lot.Lot, error) {
	rows, err := t.q.Query(ctx, `
		SELECT `+lotColumns+` FROM lots
		WHERE auction_id = $1
		ORDER BY lot_number`, auctionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*lot.Lot
	for rows.Next() {
		l, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, mapError(rows.Err())
}

func (t *pgTx) InsertLot(ctx context.Context, l *lot.Lot) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO lots (
			id, auction_id, lot_number, title, description, category, condition,
			quantity, location, tags,
			starting_bid, reserve_price, buy_now_price,
			increment_rules_override,
			original_close_at, current_close_at, extension_count, status,
			current_bid, current_bidder_id, bid_count, reserve_met,
			shipping_available, shipping_amount,
			created_at, updated_at, closed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11::numeric, $12::numeric, $13::numeric,
			$14::jsonb,
			$15, $16, $17, $18,
			$19::numeric, $20, $21, $22,
			$23, $24::numeric,
			$25, $26, $27
		)`,
		l.ID, l.AuctionID, l.LotNumber, l.Title, l.Description, l.Category, l.Condition,
		l.Quantity, l.Location, l.Tags,
		moneyParam(l.StartingBid), nullMoneyParam(l.ReservePrice), nullMoneyParam(l.BuyNowPrice),
		tiersParam(l.IncrementRulesOverride),
		l.OriginalCloseAt, l.CurrentCloseAt, l.ExtensionCount, l.Status.String(),
		moneyParam(l.CurrentBid), l.CurrentBidderID, l.BidCount, l.ReserveMet,
		l.ShippingAvailable, nullMoneyParam(l.ShippingAmount),
		l.CreatedAt, l.UpdatedAt, l.ClosedAt)
	return mapError(err)
}

func (t *pgTx) UpdateLot(ctx context.Context, l *lot.Lot) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE lots SET
			title = $2, description = $3, category = $4, condition = $5,
			quantity = $6, location = $7, tags = $8,
			starting_bid = $9::numeric, reserve_price = $10::numeric, buy_now_price = $11::numeric,
			increment_rules_override = $12::jsonb,
			current_close_at = $13, extension_count = $14, status = $15,
			current_bid = $16::numeric, current_bidder_id = $17, bid_count = $18, reserve_met = $19,
			shipping_available = $20, shipping_amount = $21::numeric,
			updated_at = $22, closed_at = $23
		WHERE id = $1`,
		l.ID,
		l.Title, l.Description, l.Category, l.Condition,
		l.Quantity, l.Location, l.Tags,
		moneyParam(l.StartingBid), nullMoneyParam(l.ReservePrice), nullMoneyParam(l.BuyNowPrice),
		tiersParam(l.IncrementRulesOverride),
		l.CurrentCloseAt, l.ExtensionCount, l.Status.String(),
		moneyParam(l.CurrentBid), l.CurrentBidderID, l.BidCount, l.ReserveMet,
		l.ShippingAvailable, nullMoneyParam(l.ShippingAmount),
		l.UpdatedAt, l.ClosedAt)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows)
	}
	return nil
}
