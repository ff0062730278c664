// Package memstore provides an in-memory store.Store for unit and property
// tests. Transactions run under a single mutex against a cloned state and are
// swapped in atomically on commit, so fn failures roll back completely and
// concurrent callers observe serial execution.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lothammer/auction-backend/internal/domain/audit"
	"github.com/lothammer/auction-backend/internal/domain/auction"
	"github.com/lothammer/auction-backend/internal/domain/bid"
	"github.com/lothammer/auction-backend/internal/domain/imports"
	"github.com/lothammer/auction-backend/internal/domain/invoice"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/domain/watchlist"
	"github.com/lothammer/auction-backend/internal/store"
)

type watchKey struct {
	userID uuid.UUID
	lotID  uuid.UUID
}

type state struct {
	auctions map[uuid.UUID]*auction.Auction
	lots     map[uuid.UUID]*lot.Lot
	bids     map[uuid.UUID]*bid.Bid
	bidSeq   []uuid.UUID
	audits   []*audit.Event
	invoices map[uuid.UUID]*invoice.Invoice
	batches  map[uuid.UUID]*imports.Batch
	mappings map[uuid.UUID]*imports.ImageMapping
	watches  map[watchKey]*watchlist.Entry
	invSeq   int64
}

func newState() *state {
	return &state{
		auctions: make(map[uuid.UUID]*auction.Auction),
		lots:     make(map[uuid.UUID]*lot.Lot),
		bids:     make(map[uuid.UUID]*bid.Bid),
		invoices: make(map[uuid.UUID]*invoice.Invoice),
		batches:  make(map[uuid.UUID]*imports.Batch),
		mappings: make(map[uuid.UUID]*imports.ImageMapping),
		watches:  make(map[watchKey]*watchlist.Entry),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, a := range s.auctions {
		cp := *a
		c.auctions[id] = &cp
	}
	for id, l := range s.lots {
		cp := *l
		c.lots[id] = &cp
	}
	for id, b := range s.bids {
		cp := *b
		c.bids[id] = &cp
	}
	c.bidSeq = append([]uuid.UUID(nil), s.bidSeq...)
	c.audits = append([]*audit.Event(nil), s.audits...)
	for id, inv := range s.invoices {
		cp := *inv
		c.invoices[id] = &cp
	}
	for id, b := range s.batches {
		cp := *b
		c.batches[id] = &cp
	}
	for id, m := range s.mappings {
		cp := *m
		c.mappings[id] = &cp
	}
	for k, w := range s.watches {
		cp := *w
		c.watches[k] = &cp
	}
	c.invSeq = s.invSeq
	return c
}

// Store is the in-memory implementation.
type Store struct {
	mu sync.Mutex
	st *state
}

// New creates an empty Store.
func New() *Store {
	return &Store{st: newState()}
}

var _ store.Store = (*Store)(nil)

// Seed helpers install fixtures outside any transaction.

func (s *Store) SeedAuction(a *auction.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.st.auctions[a.ID] = &cp
}

func (s *Store) SeedLot(l *lot.Lot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.st.lots[l.ID] = &cp
}

// AuditEvents returns a copy of the audit trail, oldest first.
func (s *Store) AuditEvents(lotID uuid.UUID) []*audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Event
	for _, e := range s.st.audits {
		if e.LotID == lotID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// WithLotTx locks the store, loads the lot, and runs fn against a cloned
// state. The clone replaces the live state only when fn returns nil.
func (s *Store) WithLotTx(ctx context.Context, lotID uuid.UUID, fn func(ctx context.Context, tx store.Tx, l *lot.Lot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	l, ok := work.lots[lotID]
	if !ok {
		return fmt.Errorf("lot %s: %w", lotID, store.ErrNotFound)
	}
	if err := fn(ctx, &tx{st: work}, l); err != nil {
		return err
	}
	s.st = work
	return nil
}

// WithTx runs fn in a plain transaction with the same commit semantics.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Lot(ctx context.Context, id uuid.UUID) (*lot.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).Lot(ctx, id)
}

func (s *Store) Auction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).Auction(ctx, id)
}

func (s *Store) LotsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*lot.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).LotsByAuction(ctx, auctionID)
}

func (s *Store) BidsForLot(ctx context.Context, lotID uuid.UUID) ([]*bid.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{st: s.st}).BidsForLot(ctx, lotID)
}

func (s *Store) InvoicesByAuction(ctx context.Context, auctionID uuid.UUID) ([]*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*invoice.Invoice
	for _, inv := range s.st.invoices {
		if inv.AuctionID == auctionID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvoiceNumber < out[j].InvoiceNumber })
	return out, nil
}

func (s *Store) Batch(ctx context.Context, id uuid.UUID) (*imports.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, store.ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (s *Store) MappingsByBatch(ctx context.Context, batchID uuid.UUID) ([]*imports.ImageMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*imports.ImageMapping
	for _, m := range s.st.mappings {
		if m.BatchID == batchID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}

func (s *Store) DueLots(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*lot.Lot
	for _, l := range s.st.lots {
		if l.Status == lot.StatusActive && !now.Before(l.CurrentCloseAt) {
			due = append(due, l)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CurrentCloseAt.Before(due[j].CurrentCloseAt) })
	var ids []uuid.UUID
	for _, l := range due {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, l.ID)
	}
	return ids, nil
}

func (s *Store) AddWatch(ctx context.Context, userID, lotID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := watchKey{userID, lotID}
	if _, ok := s.st.watches[k]; ok {
		return nil
	}
	s.st.watches[k] = &watchlist.Entry{UserID: userID, LotID: lotID, CreatedAt: time.Now()}
	return nil
}

func (s *Store) RemoveWatch(ctx context.Context, userID, lotID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.watches, watchKey{userID, lotID})
	return nil
}

func (s *Store) WatchesByUser(ctx context.Context, userID uuid.UUID) ([]*watchlist.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*watchlist.Entry
	for _, w := range s.st.watches {
		if w.UserID == userID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// tx operates directly on a working state clone.
type tx struct {
	st *state
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Auction(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	a, ok := t.st.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %s: %w", id, store.ErrNotFound)
	}
	return a, nil
}

func (t *tx) UpdateAuction(ctx context.Context, a *auction.Auction) error {
	if _, ok := t.st.auctions[a.ID]; !ok {
		return fmt.Errorf("auction %s: %w", a.ID, store.ErrNotFound)
	}
	cp := *a
	t.st.auctions[a.ID] = &cp
	return nil
}

func (t *tx) LotsByAuction(ctx context.Context, auctionID uuid.UUID) ([]*lot.Lot, error) {
	var out []*lot.Lot
	for _, l := range t.st.lots {
		if l.AuctionID == auctionID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LotNumber < out[j].LotNumber })
	return out, nil
}

func (t *tx) CountOpenLots(ctx context.Context, auctionID uuid.UUID) (int, error) {
	n := 0
	for _, l := range t.st.lots {
		if l.AuctionID == auctionID && !l.Status.IsClosed() {
			n++
		}
	}
	return n, nil
}

func (t *tx) Lot(ctx context.Context, id uuid.UUID) (*lot.Lot, error) {
	l, ok := t.st.lots[id]
	if !ok {
		return nil, fmt.Errorf("lot %s: %w", id, store.ErrNotFound)
	}
	return l, nil
}

func (t *tx) LotByNumber(ctx context.Context, auctionID uuid.UUID, lotNumber int) (*lot.Lot, error) {
	for _, l := range t.st.lots {
		if l.AuctionID == auctionID && l.LotNumber == lotNumber {
			return l, nil
		}
	}
	return nil, fmt.Errorf("lot %d: %w", lotNumber, store.ErrNotFound)
}

func (t *tx) InsertLot(ctx context.Context, l *lot.Lot) error {
	for _, existing := range t.st.lots {
		if existing.AuctionID == l.AuctionID && existing.LotNumber == l.LotNumber {
			return fmt.Errorf("lot number %d: %w", l.LotNumber, store.ErrConflict)
		}
	}
	cp := *l
	t.st.lots[l.ID] = &cp
	return nil
}

func (t *tx) UpdateLot(ctx context.Context, l *lot.Lot) error {
	if _, ok := t.st.lots[l.ID]; !ok {
		return fmt.Errorf("lot %s: %w", l.ID, store.ErrNotFound)
	}
	cp := *l
	t.st.lots[l.ID] = &cp
	return nil
}

func (t *tx) InsertBid(ctx context.Context, b *bid.Bid) error {
	if _, ok := t.st.bids[b.ID]; ok {
		return fmt.Errorf("bid %s: %w", b.ID, store.ErrConflict)
	}
	cp := *b
	t.st.bids[b.ID] = &cp
	t.st.bidSeq = append(t.st.bidSeq, b.ID)
	return nil
}

func (t *tx) WinningBid(ctx context.Context, lotID uuid.UUID) (*bid.Bid, error) {
	// Newest first, matching the partial index lookup in Postgres.
	for i := len(t.st.bidSeq) - 1; i >= 0; i-- {
		b := t.st.bids[t.st.bidSeq[i]]
		if b.LotID == lotID && b.IsWinning {
			return b, nil
		}
	}
	return nil, fmt.Errorf("winning bid for lot %s: %w", lotID, store.ErrNotFound)
}

func (t *tx) BidsForLot(ctx context.Context, lotID uuid.UUID) ([]*bid.Bid, error) {
	var out []*bid.Bid
	for _, id := range t.st.bidSeq {
		b := t.st.bids[id]
		if b.LotID == lotID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *tx) SetBidOutbid(ctx context.Context, bidID uuid.UUID, at time.Time) error {
	b, ok := t.st.bids[bidID]
	if !ok {
		return fmt.Errorf("bid %s: %w", bidID, store.ErrNotFound)
	}
	b.MarkOutbid(at)
	return nil
}

func (t *tx) SetBidStatus(ctx context.Context, bidID uuid.UUID, status bid.Status) error {
	b, ok := t.st.bids[bidID]
	if !ok {
		return fmt.Errorf("bid %s: %w", bidID, store.ErrNotFound)
	}
	b.Status = status
	return nil
}

func (t *tx) DeactivateMaxBids(ctx context.Context, lotID, bidderID uuid.UUID) error {
	for _, b := range t.st.bids {
		if b.LotID == lotID && b.BidderID == bidderID {
			b.MaxBidActive = false
		}
	}
	return nil
}

func (t *tx) AppendAudit(ctx context.Context, e *audit.Event) error {
	cp := *e
	t.st.audits = append(t.st.audits, &cp)
	return nil
}

func (t *tx) HasAudit(ctx context.Context, lotID uuid.UUID, kind audit.Kind) (bool, error) {
	for _, e := range t.st.audits {
		if e.LotID == lotID && e.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InvoicesExist(ctx context.Context, auctionID uuid.UUID) (bool, error) {
	for _, inv := range t.st.invoices {
		if inv.AuctionID == auctionID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) NextInvoiceSequence(ctx context.Context) (int64, error) {
	t.st.invSeq++
	return t.st.invSeq, nil
}

func (t *tx) InsertInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if _, ok := t.st.invoices[inv.ID]; ok {
		return fmt.Errorf("invoice %s: %w", inv.ID, store.ErrConflict)
	}
	cp := *inv
	t.st.invoices[inv.ID] = &cp
	return nil
}

func (t *tx) InsertBatch(ctx context.Context, b *imports.Batch) error {
	if _, ok := t.st.batches[b.ID]; ok {
		return fmt.Errorf("batch %s: %w", b.ID, store.ErrConflict)
	}
	cp := *b
	t.st.batches[b.ID] = &cp
	return nil
}

func (t *tx) UpdateBatch(ctx context.Context, b *imports.Batch) error {
	if _, ok := t.st.batches[b.ID]; !ok {
		return fmt.Errorf("batch %s: %w", b.ID, store.ErrNotFound)
	}
	cp := *b
	t.st.batches[b.ID] = &cp
	return nil
}

func (t *tx) InsertImageMapping(ctx context.Context, m *imports.ImageMapping) error {
	if _, ok := t.st.mappings[m.ID]; ok {
		return fmt.Errorf("mapping %s: %w", m.ID, store.ErrConflict)
	}
	cp := *m
	t.st.mappings[m.ID] = &cp
	return nil
}

func (t *tx) ImageMapping(ctx context.Context, id uuid.UUID) (*imports.ImageMapping, error) {
	m, ok := t.st.mappings[id]
	if !ok {
		return nil, fmt.Errorf("mapping %s: %w", id, store.ErrNotFound)
	}
	return m, nil
}

func (t *tx) UpdateImageMapping(ctx context.Context, m *imports.ImageMapping) error {
	if _, ok := t.st.mappings[m.ID]; !ok {
		return fmt.Errorf("mapping %s: %w", m.ID, store.ErrNotFound)
	}
	cp := *m
	t.st.mappings[m.ID] = &cp
	return nil
}

func (t *tx) MappingTaken(ctx context.Context, lotID uuid.UUID, photoOrder int) (bool, error) {
	for _, m := range t.st.mappings {
		if m.LotID != nil && *m.LotID == lotID && m.PhotoOrder != nil && *m.PhotoOrder == photoOrder &&
			(m.Status == imports.MappingMatched || m.Status == imports.MappingManual) {
			return true, nil
		}
	}
	return false, nil
}
