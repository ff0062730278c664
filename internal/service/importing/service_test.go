package importing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/auction"
	"github.com/lothammer/auction-backend/internal/domain/clock"
	"github.com/lothammer/auction-backend/internal/domain/imports"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/testutil/fixtures"
	"github.com/lothammer/auction-backend/internal/testutil/memstore"
)

func newImporter(t *testing.T) (*Service, *memstore.Store, *auction.Auction) {
	t.Helper()
	st := memstore.New()
	a := fixtures.ActiveAuction()
	st.SeedAuction(a)
	return NewService(st, clock.NewFixed(fixtures.BaseTime), zap.NewNop()), st, a
}

func TestImportLotsCSVAccepted(t *testing.T) {
	svc, st, a := newImporter(t)
	payload := []byte("lot_number,title,starting_bid,reserve_price,shipping_available,tags\r\n" +
		"1,Walnut sideboard,100,250,true,\"furniture, walnut\"\r\n" +
		"2,\"Clock, mantel\",50,,0,\r\n")

	batch, err := svc.ImportLotsCSV(context.Background(), a.ID, fixtures.Bidder("staff"), payload)
	require.NoError(t, err)

	assert.True(t, batch.Accepted)
	assert.Equal(t, 2, batch.TotalRows)
	assert.Equal(t, 2, batch.AcceptedRows)
	assert.Empty(t, batch.Errors)

	lots, err := st.LotsByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, lots, 2)

	first := lots[0]
	assert.Equal(t, 1, first.LotNumber)
	assert.Equal(t, "Walnut sideboard", first.Title)
	assert.Equal(t, lot.StatusPending, first.Status)
	assert.True(t, first.StartingBid.Equal(fixtures.Money("100")))
	require.NotNil(t, first.ReservePrice)
	assert.True(t, first.ReservePrice.Equal(fixtures.Money("250")))
	assert.True(t, first.ShippingAvailable)
	assert.Equal(t, []string{"furniture", "walnut"}, first.Tags)

	second := lots[1]
	assert.Equal(t, "Clock, mantel", second.Title, "quoted comma preserved")
	assert.False(t, second.ShippingAvailable)
}

func TestImportLotsCSVRowErrorsRejectWholeBatch(t *testing.T) {
	svc, st, a := newImporter(t)
	payload := []byte("lot_number,title,starting_bid\n" +
		"1,Good lot,100\n" +
		"x,Bad number,50\n" +
		"3,,-20\n")

	batch, err := svc.ImportLotsCSV(context.Background(), a.ID, fixtures.Bidder("staff"), payload)
	require.NoError(t, err)

	assert.False(t, batch.Accepted)
	assert.Equal(t, 0, batch.AcceptedRows)
	require.NotEmpty(t, batch.Errors)

	fields := make(map[string]bool)
	for _, e := range batch.Errors {
		fields[e.Field] = true
	}
	assert.True(t, fields["lot_number"])
	assert.True(t, fields["title"])
	assert.True(t, fields["starting_bid"])

	// Nothing inserted, including the good row.
	lots, err := st.LotsByAuction(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, lots)
}

func TestImportLotsCSVDuplicateNumbers(t *testing.T) {
	svc, st, a := newImporter(t)
	st.SeedLot(fixtures.ActiveLot(a, 7))
	payload := []byte("lot_number,title,starting_bid\n" +
		"5,First,10\n" +
		"5,Second,10\n" +
		"7,Existing,10\n")

	batch, err := svc.ImportLotsCSV(context.Background(), a.ID, fixtures.Bidder("staff"), payload)
	require.NoError(t, err)

	assert.False(t, batch.Accepted)
	require.Len(t, batch.Errors, 2)
	assert.Equal(t, 2, batch.Errors[0].Row)
	assert.Contains(t, batch.Errors[0].Message, "duplicate")
	assert.Equal(t, 3, batch.Errors[1].Row)
	assert.Contains(t, batch.Errors[1].Message, "already exists")
}

func TestImportLotsCSVMissingColumns(t *testing.T) {
	svc, _, a := newImporter(t)
	payload := []byte("number,name\n1,thing\n")

	batch, err := svc.ImportLotsCSV(context.Background(), a.ID, fixtures.Bidder("staff"), payload)
	require.NoError(t, err)

	assert.False(t, batch.Accepted)
	require.Len(t, batch.Errors, 3)
	for _, e := range batch.Errors {
		assert.Equal(t, 0, e.Row)
		assert.Equal(t, "required column missing", e.Message)
	}
}

// The literal matching scenario: three parseable names land on lot 12 at
// orders 1..3, one unparseable, and a repeated name conflicts.
func TestMatchImages(t *testing.T) {
	svc, st, a := newImporter(t)
	l := fixtures.ActiveLot(a, 12)
	st.SeedLot(l)

	files := []FileRef{
		{Filename: "12-1.jpg", StoredURL: "u1"},
		{Filename: "lot_12_2.PNG", StoredURL: "u2"},
		{Filename: "12.3.webp", StoredURL: "u3"},
		{Filename: "foo.jpg", StoredURL: "u4"},
		{Filename: "12-1.jpg", StoredURL: "u5"},
	}
	batch, mappings, err := svc.MatchImages(context.Background(), a.ID, fixtures.Bidder("staff"), files)
	require.NoError(t, err)
	require.Len(t, mappings, 5)

	assert.Equal(t, imports.MappingMatched, mappings[0].Status)
	assert.Equal(t, imports.MappingMatched, mappings[1].Status)
	assert.Equal(t, imports.MappingMatched, mappings[2].Status)
	for i, want := range []int{1, 2, 3} {
		require.NotNil(t, mappings[i].PhotoOrder)
		assert.Equal(t, want, *mappings[i].PhotoOrder)
		require.NotNil(t, mappings[i].LotID)
		assert.Equal(t, l.ID, *mappings[i].LotID)
	}

	assert.Equal(t, imports.MappingUnmatched, mappings[3].Status)
	assert.Equal(t, "unparseable", mappings[3].Reason)

	assert.Equal(t, imports.MappingConflict, mappings[4].Status, "first claim wins the slot")

	assert.Equal(t, 3, batch.AcceptedRows)
	assert.Equal(t, 2, batch.RejectedRows)
}

// The stored batch row must carry the same counts the caller gets back, or a
// later batch lookup reports the wrong outcome.
func TestMatchImagesPersistsBatchCounts(t *testing.T) {
	svc, st, a := newImporter(t)
	st.SeedLot(fixtures.ActiveLot(a, 12))

	batch, _, err := svc.MatchImages(context.Background(), a.ID, fixtures.Bidder("staff"), []FileRef{
		{Filename: "12-1.jpg", StoredURL: "u1"},
		{Filename: "nope.jpg", StoredURL: "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, batch.AcceptedRows)
	assert.Equal(t, 1, batch.RejectedRows)

	stored, err := st.Batch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.True(t, stored.Accepted)
	assert.Equal(t, batch.TotalRows, stored.TotalRows)
	assert.Equal(t, batch.AcceptedRows, stored.AcceptedRows)
	assert.Equal(t, batch.RejectedRows, stored.RejectedRows)
}

func TestMatchImagesNoSuchLot(t *testing.T) {
	svc, _, a := newImporter(t)

	_, mappings, err := svc.MatchImages(context.Background(), a.ID, fixtures.Bidder("staff"), []FileRef{
		{Filename: "99-1.jpg", StoredURL: "u"},
	})
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, imports.MappingUnmatched, mappings[0].Status)
	assert.Equal(t, "no lot", mappings[0].Reason)
}

func TestManualAssign(t *testing.T) {
	svc, st, a := newImporter(t)
	l := fixtures.ActiveLot(a, 12)
	st.SeedLot(l)

	_, mappings, err := svc.MatchImages(context.Background(), a.ID, fixtures.Bidder("staff"), []FileRef{
		{Filename: "foo.jpg", StoredURL: "u"},
	})
	require.NoError(t, err)
	require.Len(t, mappings, 1)

	m, err := svc.ManualAssign(context.Background(), mappings[0].ID, l.ID, 4)
	require.NoError(t, err)

	assert.Equal(t, imports.MappingManual, m.Status)
	require.NotNil(t, m.LotID)
	assert.Equal(t, l.ID, *m.LotID)
	require.NotNil(t, m.PhotoOrder)
	assert.Equal(t, 4, *m.PhotoOrder)
}

func TestManualAssignConflicts(t *testing.T) {
	svc, st, a := newImporter(t)
	l := fixtures.ActiveLot(a, 12)
	st.SeedLot(l)

	_, mappings, err := svc.MatchImages(context.Background(), a.ID, fixtures.Bidder("staff"), []FileRef{
		{Filename: "12-1.jpg", StoredURL: "u1"},
		{Filename: "bar.jpg", StoredURL: "u2"},
	})
	require.NoError(t, err)

	_, err = svc.ManualAssign(context.Background(), mappings[1].ID, l.ID, 1)
	require.Error(t, err, "order 1 already matched")
}
