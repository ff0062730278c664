// Package rest exposes the HTTP surface: bidding, reads, watchlist, and the
// staff operations for closing, invoicing, and catalog imports.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/bid"
	domainerrors "github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/user"
	"github.com/lothammer/auction-backend/internal/domain/values"
	"github.com/lothammer/auction-backend/internal/service/bidding"
	"github.com/lothammer/auction-backend/internal/service/closing"
	"github.com/lothammer/auction-backend/internal/service/importing"
	"github.com/lothammer/auction-backend/internal/service/invoicing"
	"github.com/lothammer/auction-backend/internal/service/watchlist"
	"github.com/lothammer/auction-backend/internal/store"
)

const maxBodyBytes = 10 << 20 // CSV imports are the largest accepted payload

// Handler wires the services behind the HTTP routes.
type Handler struct {
	bidding   *bidding.Service
	closing   *closing.Service
	invoicing *invoicing.Service
	importing *importing.Service
	watchlist *watchlist.Service
	store     store.Store

	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(
	biddingSvc *bidding.Service,
	closingSvc *closing.Service,
	invoicingSvc *invoicing.Service,
	importingSvc *importing.Service,
	watchlistSvc *watchlist.Service,
	st store.Store,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		bidding:   biddingSvc,
		closing:   closingSvc,
		invoicing: invoicingSvc,
		importing: importingSvc,
		watchlist: watchlistSvc,
		store:     st,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// Register mounts all routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	// Public reads
	mux.HandleFunc("GET /api/v1/lots/{id}", h.getLot)
	mux.HandleFunc("GET /api/v1/lots/{id}/bids", h.getBidHistory)
	mux.HandleFunc("GET /api/v1/auctions/{id}", h.getAuction)
	mux.HandleFunc("GET /api/v1/auctions/{id}/lots", h.getAuctionLots)

	// Bidding
	mux.HandleFunc("POST /api/v1/lots/{id}/bids", h.placeBid)
	mux.HandleFunc("POST /api/v1/lots/{id}/buy-now", h.buyNow)

	// Watchlist
	mux.HandleFunc("GET /api/v1/watchlist", h.listWatchlist)
	mux.HandleFunc("PUT /api/v1/watchlist/{lotID}", h.addWatch)
	mux.HandleFunc("DELETE /api/v1/watchlist/{lotID}", h.removeWatch)

	// Staff operations
	mux.HandleFunc("POST /api/v1/admin/lots/{id}/close", h.closeLot)
	mux.HandleFunc("POST /api/v1/admin/auctions/{id}/close", h.closeAuction)
	mux.HandleFunc("POST /api/v1/admin/auctions/{id}/invoices", h.generateInvoices)
	mux.HandleFunc("GET /api/v1/admin/auctions/{id}/invoices", h.listInvoices)
	mux.HandleFunc("POST /api/v1/admin/auctions/{id}/imports/lots", h.importLots)
	mux.HandleFunc("POST /api/v1/admin/auctions/{id}/imports/images", h.matchImages)
	mux.HandleFunc("GET /api/v1/admin/batches/{id}", h.getBatch)
	mux.HandleFunc("POST /api/v1/admin/mappings/{id}/assign", h.assignImage)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domainerrors.NewValidationError("INVALID_ID", fmt.Sprintf("%s must be a UUID", name))
	}
	return id, nil
}

func (h *Handler) decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return domainerrors.NewValidationError("INVALID_BODY", "could not read request body")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return domainerrors.NewValidationError("INVALID_BODY", "request body must be valid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return domainerrors.NewValidationError("INVALID_BODY", err.Error())
	}
	return nil
}

// Reads

func (h *Handler) getLot(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	snap, err := h.bidding.LotSnapshot(r.Context(), lotID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, snap)
}

// bidView is the public projection of a bid row. Bidder identity is replaced
// with a per-lot alias unless the viewer is staff or placed the bid.
type bidView struct {
	ID          uuid.UUID    `json:"id"`
	Amount      values.Money `json:"amount"`
	Type        string       `json:"type"`
	Status      string       `json:"status"`
	IsWinning   bool         `json:"is_winning"`
	IsBuyNow    bool         `json:"is_buy_now,omitempty"`
	BidderAlias string       `json:"bidder_alias"`
	BidderID    *uuid.UUID   `json:"bidder_id,omitempty"`
	Mine        bool         `json:"mine,omitempty"`
	CreatedAt   int64        `json:"created_at"`
}

func (h *Handler) getBidHistory(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	history, err := h.bidding.BidHistory(r.Context(), lotID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	viewer, _ := identityFrom(r.Context())
	writeData(w, http.StatusOK, renderBidHistory(history, viewer))
}

func renderBidHistory(history []*bid.Bid, viewer user.Identity) []bidView {
	aliases := make(map[uuid.UUID]string)
	views := make([]bidView, 0, len(history))
	for _, b := range history {
		alias, ok := aliases[b.BidderID]
		if !ok {
			alias = fmt.Sprintf("bidder_%d", len(aliases)+1)
			aliases[b.BidderID] = alias
		}
		v := bidView{
			ID:          b.ID,
			Amount:      b.Amount,
			Type:        b.Type.String(),
			Status:      b.Status.String(),
			IsWinning:   b.IsWinning,
			IsBuyNow:    b.IsBuyNow,
			BidderAlias: alias,
			CreatedAt:   b.CreatedAt.Unix(),
		}
		if viewer.Role.IsStaff() || viewer.UserID == b.BidderID {
			bidderID := b.BidderID
			v.BidderID = &bidderID
		}
		if viewer.UserID == b.BidderID {
			v.Mine = true
		}
		views = append(views, v)
	}
	return views
}

func (h *Handler) getAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	a, err := h.store.Auction(r.Context(), auctionID)
	if err != nil {
		writeError(w, h.logger, notFoundAs(err, domainerrors.ErrAuctionNotFound))
		return
	}
	writeData(w, http.StatusOK, a)
}

func (h *Handler) getAuctionLots(w http.ResponseWriter, r *http.Request) {
	auctionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if _, err := h.store.Auction(r.Context(), auctionID); err != nil {
		writeError(w, h.logger, notFoundAs(err, domainerrors.ErrAuctionNotFound))
		return
	}
	lots, err := h.store.LotsByAuction(r.Context(), auctionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, lots)
}

// Bidding

type placeBidRequest struct {
	Amount string  `json:"amount" validate:"required"`
	MaxBid *string `json:"max_bid,omitempty"`
}

func (h *Handler) placeBid(w http.ResponseWriter, r *http.Request) {
	id, err := requireBidder(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	lotID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var body placeBidRequest
	if err := h.decode(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	amount, err := values.NewMoneyFromString(body.Amount, values.USD)
	if err != nil {
		writeError(w, h.logger, domainerrors.NewValidationError("INVALID_AMOUNT", "amount must be a decimal number"))
		return
	}
	var maxBid *values.Money
	if body.MaxBid != nil {
		m, err := values.NewMoneyFromString(*body.MaxBid, values.USD)
		if err != nil {
			writeError(w, h.logger, domainerrors.NewValidationError("INVALID_MAX_BID", "max_bid must be a decimal number"))
			return
		}
		maxBid = &m
	}

	result, err := h.bidding.PlaceBid(r.Context(), bidding.PlaceBidRequest{
		LotID:     lotID,
		BidderID:  id.UserID,
		Amount:    amount,
		MaxBid:    maxBid,
		SourceIP:  clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	// Rejections are 400 with the result in the body. OUTBID_BY_PROXY stays
	// 200: the bid was recorded, the caller just lost immediately.
	status := http.StatusOK
	if !result.Accepted && result.ResultCode != "OUTBID_BY_PROXY" {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, envelope{Success: result.Accepted, Data: result})
}

func (h *Handler) buyNow(w http.ResponseWriter, r *http.Request) {
	id, err := requireBidder(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	lotID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	result, err := h.bidding.BuyNow(r.Context(), lotID, id.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := http.StatusOK
	if result.ResultCode != "BUY_NOW" {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, envelope{Success: result.ResultCode == "BUY_NOW", Data: result})
}

// Watchlist

func (h *Handler) listWatchlist(w http.ResponseWriter, r *http.Request) {
	id, err := requireBidder(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	entries, err := h.watchlist.List(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

func (h *Handler) addWatch(w http.ResponseWriter, r *http.Request) {
	id, err := requireBidder(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	lotID, err := pathUUID(r, "lotID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.watchlist.Add(r.Context(), id.UserID, lotID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeWatch(w http.ResponseWriter, r *http.Request) {
	id, err := requireBidder(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	lotID, err := pathUUID(r, "lotID")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.watchlist.Remove(r.Context(), id.UserID, lotID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Staff operations

func (h *Handler) closeLot(w http.ResponseWriter, r *http.Request) {
	if _, err := requireStaff(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	lotID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	force := r.URL.Query().Get("force") == "true"
	outcome, err := h.closing.CloseLot(r.Context(), lotID, force)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, outcome)
}

func (h *Handler) closeAuction(w http.ResponseWriter, r *http.Request) {
	if _, err := requireStaff(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	auctionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	a, err := h.closing.CloseAuction(r.Context(), auctionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, a)
}

func (h *Handler) generateInvoices(w http.ResponseWriter, r *http.Request) {
	if _, err := requireStaff(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	auctionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ids, err := h.invoicing.Generate(r.Context(), auctionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"invoice_ids": ids})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	if _, err := requireStaff(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	auctionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	invoices, err := h.invoicing.InvoicesByAuction(r.Context(), auctionID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, invoices)
}

func (h *Handler) importLots(w http.ResponseWriter, r *http.Request) {
	id, err := requireStaff(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	auctionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(payload) == 0 {
		writeError(w, h.logger, domainerrors.NewValidationError("INVALID_BODY", "request body must be the CSV payload"))
		return
	}
	batch, err := h.importing.ImportLotsCSV(r.Context(), auctionID, id.UserID, payload)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: batch.Accepted, Data: batch})
}

type matchImagesRequest struct {
	Files []fileRef `json:"files" validate:"required,min=1,dive"`
}

type fileRef struct {
	Filename  string `json:"filename" validate:"required"`
	StoredURL string `json:"stored_url"`
}

func (h *Handler) matchImages(w http.ResponseWriter, r *http.Request) {
	id, err := requireStaff(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	auctionID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var body matchImagesRequest
	if err := h.decode(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}

	files := make([]importing.FileRef, len(body.Files))
	for i, f := range body.Files {
		files[i] = importing.FileRef{Filename: f.Filename, StoredURL: f.StoredURL}
	}
	batch, mappings, err := h.importing.MatchImages(r.Context(), auctionID, id.UserID, files)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"batch": batch, "mappings": mappings})
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	if _, err := requireStaff(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	batchID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	batch, err := h.store.Batch(r.Context(), batchID)
	if err != nil {
		writeError(w, h.logger, notFoundAs(err, domainerrors.NewNotFoundError("batch")))
		return
	}
	mappings, err := h.store.MappingsByBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"batch": batch, "mappings": mappings})
}

type assignImageRequest struct {
	LotID      uuid.UUID `json:"lot_id" validate:"required"`
	PhotoOrder int       `json:"photo_order" validate:"required,min=1"`
}

func (h *Handler) assignImage(w http.ResponseWriter, r *http.Request) {
	if _, err := requireStaff(r.Context()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	mappingID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var body assignImageRequest
	if err := h.decode(r, &body); err != nil {
		writeError(w, h.logger, err)
		return
	}
	mapping, err := h.importing.ManualAssign(r.Context(), mappingID, body.LotID, body.PhotoOrder)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, mapping)
}

// notFoundAs converts the store's missing-row sentinel into the given domain
// error, passing other errors through.
func notFoundAs(err error, notFound *domainerrors.AppError) error {
	if err == nil {
		return nil
	}
	if isStoreNotFound(err) {
		return notFound
	}
	return err
}

func isStoreNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
