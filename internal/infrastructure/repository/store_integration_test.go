package repository_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/bid"
	"github.com/lothammer/auction-backend/internal/domain/clock"
	"github.com/lothammer/auction-backend/internal/infrastructure/repository"
	"github.com/lothammer/auction-backend/internal/service/bidding"
	"github.com/lothammer/auction-backend/internal/store"
	"github.com/lothammer/auction-backend/internal/testutil/containers"
	"github.com/lothammer/auction-backend/internal/testutil/fixtures"
)

func newPGStore(t *testing.T) (*repository.PG, *pgxpool.Pool) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	dsn := containers.StartPostgres(t)
	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return repository.New(pool, zap.NewNop()), pool
}

func TestPGRoundTripLotAndAuction(t *testing.T) {
	pg, _ := newPGStore(t)
	ctx := context.Background()

	a := fixtures.ActiveAuction()
	l := fixtures.ActiveLot(a, 1)
	require.NoError(t, pg.InsertAuction(ctx, a))
	require.NoError(t, pg.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertLot(ctx, l)
	}))

	got, err := pg.Lot(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.LotNumber, got.LotNumber)
	assert.True(t, got.StartingBid.Equal(l.StartingBid))
	assert.True(t, got.CurrentCloseAt.Equal(l.CurrentCloseAt))

	gotA, err := pg.Auction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.TriggerWindow, gotA.TriggerWindow)
	assert.Equal(t, a.Extension, gotA.Extension)
	assert.Len(t, gotA.IncrementRules, len(a.IncrementRules))
	assert.Equal(t, a.Status, gotA.Status)
}

func TestPGDuplicateLotNumberConflicts(t *testing.T) {
	pg, _ := newPGStore(t)
	ctx := context.Background()

	a := fixtures.ActiveAuction()
	require.NoError(t, pg.InsertAuction(ctx, a))
	require.NoError(t, pg.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertLot(ctx, fixtures.ActiveLot(a, 7))
	}))

	err := pg.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertLot(ctx, fixtures.ActiveLot(a, 7))
	})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestPGBiddingEngineAgainstPostgres(t *testing.T) {
	pg, _ := newPGStore(t)
	ctx := context.Background()

	a := fixtures.ActiveAuction()
	l := fixtures.ActiveLot(a, 1)
	require.NoError(t, pg.InsertAuction(ctx, a))
	require.NoError(t, pg.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertLot(ctx, l)
	}))

	clk := clock.NewFixed(fixtures.BaseTime)
	svc := bidding.NewService(pg, clk, bidding.NopNotifier{}, bidding.NopMetrics{}, zap.NewNop())

	alice := fixtures.Bidder("alice")
	res, err := svc.PlaceBid(ctx, bidding.PlaceBidRequest{
		LotID: l.ID, BidderID: alice, Amount: fixtures.Money("50"), MaxBid: fixtures.MoneyPtr("200"),
	})
	require.NoError(t, err)
	require.Equal(t, "ACCEPTED", res.ResultCode)

	bob := fixtures.Bidder("bob")
	res, err = svc.PlaceBid(ctx, bidding.PlaceBidRequest{
		LotID: l.ID, BidderID: bob, Amount: fixtures.Money("60"),
	})
	require.NoError(t, err)
	assert.Equal(t, "OUTBID_BY_PROXY", res.ResultCode)
	assert.True(t, res.Lot.CurrentBid.Equal(fixtures.Money("70")))

	history, err := svc.BidHistory(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	winning := 0
	for _, b := range history {
		if b.IsWinning {
			winning++
			assert.Equal(t, alice, b.BidderID)
			assert.Equal(t, bid.TypeProxy, b.Type)
		}
	}
	assert.Equal(t, 1, winning)
}

func TestPGAuditRowsAreImmutable(t *testing.T) {
	pg, pool := newPGStore(t)
	ctx := context.Background()

	a := fixtures.ActiveAuction()
	l := fixtures.ActiveLot(a, 1)
	require.NoError(t, pg.InsertAuction(ctx, a))
	require.NoError(t, pg.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertLot(ctx, l)
	}))

	clk := clock.NewFixed(fixtures.BaseTime)
	svc := bidding.NewService(pg, clk, bidding.NopNotifier{}, bidding.NopMetrics{}, zap.NewNop())
	_, err := svc.PlaceBid(ctx, bidding.PlaceBidRequest{
		LotID: l.ID, BidderID: fixtures.Bidder("alice"), Amount: fixtures.Money("50"),
	})
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `UPDATE audit_events SET result_code = 'tampered' WHERE lot_id = $1`, l.ID)
	assert.Error(t, err, "schema trigger must reject audit updates")

	_, err = pool.Exec(ctx, `DELETE FROM audit_events WHERE lot_id = $1`, l.ID)
	assert.Error(t, err, "schema trigger must reject audit deletes")
}
