package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lothammer/auction-backend/internal/domain/invoice"
)

func (t *pgTx) InvoicesExist(ctx context.Context, auctionID uuid.UUID) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM invoices WHERE auction_id = $1)`, auctionID).Scan(&exists)
	return exists, mapError(err)
}

func (t *pgTx) NextInvoiceSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := t.q.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq)
	return seq, mapError(err)
}

func (t *pgTx) InsertInvoice(ctx context.Context, inv *invoice.Invoice) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO invoices (
			id, invoice_number, auction_id, bidder_id,
			subtotal, premium, tax, shipping, total,
			payment_status, fulfillment_status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10, $11,
			$12, $13
		)`,
		inv.ID, inv.InvoiceNumber, inv.AuctionID, inv.BidderID,
		moneyParam(inv.Subtotal), moneyParam(inv.Premium), moneyParam(inv.Tax),
		moneyParam(inv.Shipping), moneyParam(inv.Total),
		inv.PaymentStatus.String(), inv.FulfillmentStatus.String(),
		inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return mapError(err)
	}

	for _, item := range inv.Items {
		_, err := t.q.Exec(ctx, `
			INSERT INTO invoice_items (
				id, invoice_id, lot_id, lot_number, lot_title,
				winning_bid, premium_rate, premium_amount,
				tax_rate, tax_amount, shipping_amount, line_total
			) VALUES (
				$1, $2, $3, $4, $5,
				$6::numeric, $7::numeric, $8::numeric,
				$9::numeric, $10::numeric, $11::numeric, $12::numeric
			)`,
			item.ID, inv.ID, item.LotID, item.LotNumber, item.LotTitle,
			moneyParam(item.WinningBid), decimalParam(item.PremiumRate), moneyParam(item.PremiumAmount),
			decimalParam(item.TaxRate), moneyParam(item.TaxAmount), moneyParam(item.ShippingAmount),
			moneyParam(item.LineTotal))
		if err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (t *pgTx) invoicesByAuction(ctx context.Context, auctionID uuid.UUID) ([]*invoice.Invoice, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, invoice_number, auction_id, bidder_id,
			subtotal::text, premium::text, tax::text, shipping::text, total::text,
			payment_status, fulfillment_status, created_at, updated_at
		FROM invoices
		WHERE auction_id = $1
		ORDER BY invoice_number`, auctionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	for _, inv := range out {
		items, err := t.invoiceItems(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		inv.Items = items
	}
	return out, nil
}

func scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	var subtotal, premium, tax, shipping, total string
	var payment, fulfillment string
	if err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.AuctionID, &inv.BidderID,
		&subtotal, &premium, &tax, &shipping, &total,
		&payment, &fulfillment, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	inv.PaymentStatus = invoice.ParsePaymentStatus(payment)
	inv.FulfillmentStatus = invoice.ParseFulfillmentStatus(fulfillment)

	var err error
	if inv.Subtotal, err = parseMoney(subtotal); err != nil {
		return nil, err
	}
	if inv.Premium, err = parseMoney(premium); err != nil {
		return nil, err
	}
	if inv.Tax, err = parseMoney(tax); err != nil {
		return nil, err
	}
	if inv.Shipping, err = parseMoney(shipping); err != nil {
		return nil, err
	}
	if inv.Total, err = parseMoney(total); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *pgTx) invoiceItems(ctx context.Context, invoiceID uuid.UUID) ([]invoice.Item, error) {
	rows, err := t.q.Query(ctx, `
		SELECT id, invoice_id, lot_id, lot_number, lot_title,
			winning_bid::text, premium_rate::text, premium_amount::text,
			tax_rate::text, tax_amount::text, shipping_amount::text, line_total::text
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY lot_number`, invoiceID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []invoice.Item
	for rows.Next() {
		var item invoice.Item
		var winning, premiumRate, premiumAmount, taxRate, taxAmount, shipping, lineTotal string
		if err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.LotID, &item.LotNumber, &item.LotTitle,
			&winning, &premiumRate, &premiumAmount,
			&taxRate, &taxAmount, &shipping, &lineTotal,
		); err != nil {
			return nil, mapError(err)
		}
		pr := premiumRate
		tr := taxRate
		if item.WinningBid, err = parseMoney(winning); err != nil {
			return nil, err
		}
		if item.PremiumRate, err = parseDecimal(&pr); err != nil {
			return nil, err
		}
		if item.PremiumAmount, err = parseMoney(premiumAmount); err != nil {
			return nil, err
		}
		if item.TaxRate, err = parseDecimal(&tr); err != nil {
			return nil, err
		}
		if item.TaxAmount, err = parseMoney(taxAmount); err != nil {
			return nil, err
		}
		if item.ShippingAmount, err = parseMoney(shipping); err != nil {
			return nil, err
		}
		if item.LineTotal, err = parseMoney(lineTotal); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, mapError(rows.Err())
}
