// Package importing ingests lot CSV files and matches uploaded image
// filenames to lots.
package importing

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/clock"
	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/imports"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/rules"
	"github.com/lothammer/auction-backend/internal/domain/values"
	"github.com/lothammer/auction-backend/internal/store"
)

// FileRef is one uploaded image.
type FileRef struct {
	Filename  string `json:"filename"`
	StoredURL string `json:"stored_url"`
}

// Service runs imports.
type Service struct {
	store  store.Store
	clock  clock.Clock
	logger *zap.Logger
}

// NewService creates the importer.
func NewService(st store.Store, clk clock.Clock, logger *zap.Logger) *Service {
	return &Service{store: st, clock: clk, logger: logger}
}

var requiredColumns = []string{"lot_number", "title", "starting_bid"}

// ImportLotsCSV validates and inserts lots from a CSV payload. All-or-nothing:
// any row error, duplicate lot number inside the file, or collision with an
// existing lot rejects the whole batch. The batch record is stored either way.
func (s *Service) ImportLotsCSV(ctx context.Context, auctionID, createdBy uuid.UUID, payload []byte) (*imports.Batch, error) {
	now := s.clock.Now()
	batch := imports.NewBatch(auctionID, createdBy, imports.BatchKindLotCSV, now)

	rows, total, rowErrs := parseCSV(payload)
	batch.TotalRows = total
	batch.Errors = rowErrs

	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.Auction(ctx, auctionID)
		if err != nil {
			return err
		}

		// Collisions, inside the file and against existing lots.
		seen := make(map[int]int)
		for i, r := range rows {
			if prev, dup := seen[r.lotNumber]; dup {
				batch.Errors = append(batch.Errors, imports.RowError{
					Row:     i + 1,
					Field:   "lot_number",
					Message: fmt.Sprintf("duplicate of row %d", prev),
				})
				continue
			}
			seen[r.lotNumber] = i + 1
			if _, err := tx.LotByNumber(ctx, auctionID, r.lotNumber); err == nil {
				batch.Errors = append(batch.Errors, imports.RowError{
					Row:     i + 1,
					Field:   "lot_number",
					Message: "lot number already exists in auction",
				})
			} else if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}

		if len(batch.Errors) > 0 {
			batch.Accepted = false
			batch.RejectedRows = batch.TotalRows
			return tx.InsertBatch(ctx, batch)
		}

		for _, r := range rows {
			l := r.toLot(a.ID, a.EndAt)
			l.CreatedAt = now
			l.UpdatedAt = now
			if err := tx.InsertLot(ctx, l); err != nil {
				return err
			}
		}
		batch.Accepted = true
		batch.AcceptedRows = batch.TotalRows
		return tx.InsertBatch(ctx, batch)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.ErrAuctionNotFound
		}
		return nil, err
	}

	s.logger.Info("lot csv import",
		zap.String("auction_id", auctionID.String()),
		zap.String("batch_id", batch.ID.String()),
		zap.Bool("accepted", batch.Accepted),
		zap.Int("rows", batch.TotalRows),
		zap.Int("errors", len(batch.Errors)))
	return batch, nil
}

// MatchImages parses each uploaded filename and maps it onto a lot. First
// match wins a (lot, order) slot; later claims become conflicts.
func (s *Service) MatchImages(ctx context.Context, auctionID, createdBy uuid.UUID, files []FileRef) (*imports.Batch, []*imports.ImageMapping, error) {
	now := s.clock.Now()
	batch := imports.NewBatch(auctionID, createdBy, imports.BatchKindImages, now)
	batch.TotalRows = len(files)

	var mappings []*imports.ImageMapping
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Auction(ctx, auctionID); err != nil {
			return err
		}
		if err := tx.InsertBatch(ctx, batch); err != nil {
			return err
		}

		for _, f := range files {
			m := &imports.ImageMapping{
				ID:        uuid.New(),
				BatchID:   batch.ID,
				AuctionID: auctionID,
				Filename:  f.Filename,
				StoredURL: f.StoredURL,
				CreatedAt: now,
				UpdatedAt: now,
			}

			lotNumber, order, ok := rules.ParseImageFilename(f.Filename)
			if !ok {
				m.Status = imports.MappingUnmatched
				m.Reason = "unparseable"
			} else {
				m.LotNumber = &lotNumber
				m.PhotoOrder = &order
				l, err := tx.LotByNumber(ctx, auctionID, lotNumber)
				switch {
				case errors.Is(err, store.ErrNotFound):
					m.Status = imports.MappingUnmatched
					m.Reason = "no lot"
				case err != nil:
					return err
				default:
					taken, err := tx.MappingTaken(ctx, l.ID, order)
					if err != nil {
						return err
					}
					if taken {
						m.Status = imports.MappingConflict
						m.Reason = fmt.Sprintf("lot %d order %d already assigned", lotNumber, order)
					} else {
						m.Status = imports.MappingMatched
						m.LotID = &l.ID
					}
				}
			}

			if m.Status == imports.MappingMatched {
				batch.AcceptedRows++
			} else {
				batch.RejectedRows++
			}
			if err := tx.InsertImageMapping(ctx, m); err != nil {
				return err
			}
			mappings = append(mappings, m)
		}
		// The batch row goes in before its mappings for the foreign key; the
		// counts land here so the stored row matches what the caller sees.
		batch.Accepted = true
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, domainerrors.ErrAuctionNotFound
		}
		return nil, nil, err
	}
	return batch, mappings, nil
}

// ManualAssign pins a mapping to a lot and photo order by staff decision.
func (s *Service) ManualAssign(ctx context.Context, mappingID, lotID uuid.UUID, photoOrder int) (*imports.ImageMapping, error) {
	var out *imports.ImageMapping
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.ImageMapping(ctx, mappingID)
		if err != nil {
			return err
		}
		l, err := tx.Lot(ctx, lotID)
		if err != nil {
			return err
		}
		taken, err := tx.MappingTaken(ctx, l.ID, photoOrder)
		if err != nil {
			return err
		}
		if taken {
			return domainerrors.NewConflictError("ORDER_TAKEN",
				fmt.Sprintf("lot %d order %d already assigned", l.LotNumber, photoOrder))
		}
		m.LotID = &l.ID
		m.LotNumber = &l.LotNumber
		m.PhotoOrder = &photoOrder
		m.Status = imports.MappingManual
		m.Reason = ""
		m.UpdatedAt = s.clock.Now()
		if err := tx.UpdateImageMapping(ctx, m); err != nil {
			return err
		}
		cp := *m
		out = &cp
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainerrors.NewNotFoundError("mapping or lot")
		}
		return nil, err
	}
	return out, nil
}

// csvRow is one parsed data row.
type csvRow struct {
	lotNumber         int
	title             string
	startingBid       values.Money
	description       string
	category          string
	condition         string
	reservePrice      *values.Money
	buyNowPrice       *values.Money
	quantity          int
	location          string
	shippingAvailable bool
	tags              []string
}

func (r csvRow) toLot(auctionID uuid.UUID, closeAt time.Time) *lot.Lot {
	l := lot.New(auctionID, r.lotNumber, r.title, r.startingBid, closeAt)
	l.Description = r.description
	l.Category = r.category
	l.Condition = r.condition
	l.ReservePrice = r.reservePrice
	l.BuyNowPrice = r.buyNowPrice
	if r.quantity > 0 {
		l.Quantity = r.quantity
	}
	l.Location = r.location
	l.ShippingAvailable = r.shippingAvailable
	l.Tags = r.tags
	return l
}

// parseCSV reads header and rows, collecting per-row field errors. Row numbers
// are 1-based over data rows.
func parseCSV(payload []byte) ([]csvRow, int, []imports.RowError) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, []imports.RowError{{Row: 0, Message: "missing or unreadable header"}}
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var errs []imports.RowError
	for _, required := range requiredColumns {
		if _, ok := cols[required]; !ok {
			errs = append(errs, imports.RowError{Row: 0, Field: required, Message: "required column missing"})
		}
	}
	if len(errs) > 0 {
		return nil, 0, errs
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []csvRow
	rowNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			errs = append(errs, imports.RowError{Row: rowNum, Message: "malformed row"})
			continue
		}

		var r csvRow
		rowOK := true
		fail := func(fieldName, message string) {
			errs = append(errs, imports.RowError{Row: rowNum, Field: fieldName, Message: message})
			rowOK = false
		}

		if v := field(record, "lot_number"); v == "" {
			fail("lot_number", "missing")
		} else if n, err := strconv.Atoi(v); err != nil {
			fail("lot_number", "must be an integer")
		} else {
			r.lotNumber = n
		}

		if r.title = field(record, "title"); r.title == "" {
			fail("title", "missing")
		}

		if v := field(record, "starting_bid"); v == "" {
			fail("starting_bid", "missing")
		} else if m, err := values.NewMoneyFromString(v, values.USD); err != nil {
			fail("starting_bid", "must be a decimal amount")
		} else if m.IsNegative() {
			fail("starting_bid", "must not be negative")
		} else {
			r.startingBid = m
		}

		r.description = field(record, "description")
		r.category = field(record, "category")
		r.condition = field(record, "condition")
		r.location = field(record, "location")

		if v := field(record, "reserve_price"); v != "" {
			if m, err := values.NewMoneyFromString(v, values.USD); err != nil || m.IsNegative() {
				fail("reserve_price", "must be a non-negative decimal amount")
			} else {
				r.reservePrice = &m
			}
		}
		if v := field(record, "buy_now_price"); v != "" {
			if m, err := values.NewMoneyFromString(v, values.USD); err != nil || m.IsNegative() {
				fail("buy_now_price", "must be a non-negative decimal amount")
			} else {
				r.buyNowPrice = &m
			}
		}
		if v := field(record, "quantity"); v != "" {
			if n, err := strconv.Atoi(v); err != nil || n < 1 {
				fail("quantity", "must be a positive integer")
			} else {
				r.quantity = n
			}
		}
		if v := field(record, "shipping_available"); v != "" {
			switch strings.ToLower(v) {
			case "true", "1":
				r.shippingAvailable = true
			case "false", "0":
			default:
				fail("shipping_available", "must be true/false/1/0")
			}
		}
		if v := field(record, "tags"); v != "" {
			for _, tag := range strings.Split(v, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					r.tags = append(r.tags, tag)
				}
			}
		}

		if rowOK {
			rows = append(rows, r)
		}
	}
	return rows, rowNum, errs
}
