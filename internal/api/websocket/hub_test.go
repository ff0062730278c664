package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/errors"
	"github.com/lothammer/auction-backend/internal/domain/lot"
	"github.com/lothammer/auction-backend/internal/testutil/fixtures"
)

type fakeSnapshots struct {
	snaps map[uuid.UUID]lot.Snapshot
}

func (f *fakeSnapshots) LotSnapshot(_ context.Context, lotID uuid.UUID) (*lot.Snapshot, error) {
	snap, ok := f.snaps[lotID]
	if !ok {
		return nil, errors.ErrLotNotFound
	}
	return &snap, nil
}

func newTestHub(t *testing.T, buffer int) (*Hub, uuid.UUID) {
	t.Helper()
	lotID := uuid.New()
	src := &fakeSnapshots{snaps: map[uuid.UUID]lot.Snapshot{
		lotID: {LotID: lotID, Status: "active", CurrentBid: fixtures.Money("50"), BidCount: 3},
	}}
	return NewHub(zap.NewNop(), src, buffer), lotID
}

func attach(hub *Hub) *Client {
	c := newClient(hub, nil, uuid.New(), 30*time.Second, zap.NewNop())
	hub.register(c)
	return c
}

func drain(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	default:
		t.Fatal("expected a queued event")
		return Event{}
	}
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	hub, lotID := newTestHub(t, 8)
	c := attach(hub)

	require.NoError(t, hub.Subscribe(context.Background(), c, lotID))
	hub.PublishBid(lotID, lot.Snapshot{LotID: lotID, BidCount: 4})

	first := drain(t, c)
	assert.Equal(t, EventSnapshot, first.Kind)
	assert.Equal(t, 3, first.Lot.BidCount)

	second := drain(t, c)
	assert.Equal(t, EventBid, second.Kind)
	assert.Equal(t, 4, second.Lot.BidCount)
}

func TestSubscribeUnknownLot(t *testing.T) {
	hub, _ := newTestHub(t, 8)
	c := attach(hub)

	err := hub.Subscribe(context.Background(), c, uuid.New())
	assert.ErrorIs(t, err, errors.ErrLotNotFound)
	assert.Empty(t, c.send)
}

func TestBroadcastPreservesOrder(t *testing.T) {
	hub, lotID := newTestHub(t, 8)
	c := attach(hub)
	require.NoError(t, hub.Subscribe(context.Background(), c, lotID))
	drain(t, c)

	for i := 4; i <= 7; i++ {
		hub.PublishBid(lotID, lot.Snapshot{LotID: lotID, BidCount: i})
	}
	hub.PublishSoftClose(lotID, lot.Snapshot{LotID: lotID, BidCount: 7, ExtensionCount: 1})

	for i := 4; i <= 7; i++ {
		ev := drain(t, c)
		assert.Equal(t, EventBid, ev.Kind)
		assert.Equal(t, i, ev.Lot.BidCount)
	}
	assert.Equal(t, EventSoftClose, drain(t, c).Kind)
}

func TestBroadcastOnlyReachesSubscribers(t *testing.T) {
	hub, lotID := newTestHub(t, 8)
	subscribed := attach(hub)
	bystander := attach(hub)
	require.NoError(t, hub.Subscribe(context.Background(), subscribed, lotID))
	drain(t, subscribed)

	hub.PublishBid(lotID, lot.Snapshot{LotID: lotID})

	assert.Len(t, subscribed.send, 1)
	assert.Empty(t, bystander.send)
}

func TestSlowClientDropped(t *testing.T) {
	hub, lotID := newTestHub(t, 1)
	slow := attach(hub)
	require.NoError(t, hub.Subscribe(context.Background(), slow, lotID))
	// Snapshot fills the single-slot buffer; the next publish overflows it.
	require.Len(t, slow.send, 1)

	hub.PublishBid(lotID, lot.Snapshot{LotID: lotID})

	assert.Equal(t, 0, hub.ClientCount())
	hub.PublishBid(lotID, lot.Snapshot{LotID: lotID})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub, lotID := newTestHub(t, 8)
	c := attach(hub)
	require.NoError(t, hub.Subscribe(context.Background(), c, lotID))
	drain(t, c)

	hub.Unsubscribe(c, lotID)
	hub.PublishBid(lotID, lot.Snapshot{LotID: lotID})

	assert.Empty(t, c.send)
}

// Wire shape: lot events serialize as {kind, lot_id, lot, at} with at in
// epoch milliseconds; heartbeats carry only {kind, at}.
func TestEventWireShape(t *testing.T) {
	lotID := uuid.New()
	ev := newEvent(EventBid, lotID, lot.Snapshot{LotID: lotID, BidCount: 4})
	assert.Positive(t, ev.At)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "bid", decoded["kind"])
	assert.Equal(t, lotID.String(), decoded["lot_id"])
	assert.Contains(t, decoded, "lot")
	assert.Contains(t, decoded, "at")

	raw, err = json.Marshal(Event{Kind: EventHeartbeat, At: time.Now().UnixMilli()})
	require.NoError(t, err)
	decoded = map[string]any{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "heartbeat", decoded["kind"])
	assert.NotContains(t, decoded, "lot")
	assert.NotContains(t, decoded, "lot_id")
}

func TestDetachRemovesSubscriptions(t *testing.T) {
	hub, lotID := newTestHub(t, 8)
	c := attach(hub)
	require.NoError(t, hub.Subscribe(context.Background(), c, lotID))

	hub.detach(c)
	hub.detach(c)

	assert.Equal(t, 0, hub.ClientCount())
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	assert.Empty(t, hub.subs)
}
