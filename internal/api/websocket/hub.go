// Package websocket streams live lot updates to subscribed clients. The hub
// fans events out per lot after the engine commits; it never feeds back into
// bid processing.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lothammer/auction-backend/internal/domain/lot"
)

// Event kinds pushed to clients. A fresh subscription always receives a
// snapshot event first, so every later delta applies to known state.
const (
	EventSnapshot  = "snapshot"
	EventBid       = "bid"
	EventSoftClose = "soft_close"
	EventLotClosed = "lot_closed"
	EventHeartbeat = "heartbeat"
)

// Event is the wire envelope for one lot update. At is stamped in epoch
// milliseconds when the event is published. Heartbeat frames carry no lot.
type Event struct {
	Kind  string        `json:"kind"`
	LotID uuid.UUID     `json:"lot_id,omitzero"`
	Lot   *lot.Snapshot `json:"lot,omitempty"`
	At    int64         `json:"at"`
}

func newEvent(kind string, lotID uuid.UUID, snap lot.Snapshot) Event {
	return Event{Kind: kind, LotID: lotID, Lot: &snap, At: time.Now().UnixMilli()}
}

// SnapshotSource resolves the current state of a lot for the subscribe-time
// snapshot event.
type SnapshotSource interface {
	LotSnapshot(ctx context.Context, lotID uuid.UUID) (*lot.Snapshot, error)
}

// ClientGauge tracks the connected-client count. The Prometheus collector
// satisfies it.
type ClientGauge interface {
	ClientConnected()
	ClientDisconnected()
}

type nopGauge struct{}

func (nopGauge) ClientConnected()    {}
func (nopGauge) ClientDisconnected() {}

// Hub routes lot events to subscribers. Publication is non-blocking: a
// client whose send buffer is full is dropped rather than allowed to stall
// the engine's post-commit path.
type Hub struct {
	logger     *zap.Logger
	snapshots  SnapshotSource
	gauge      ClientGauge
	sendBuffer int

	mu      sync.RWMutex
	clients map[*Client]struct{}
	subs    map[uuid.UUID]map[*Client]struct{}
}

func NewHub(logger *zap.Logger, snapshots SnapshotSource, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Hub{
		logger:     logger,
		snapshots:  snapshots,
		gauge:      nopGauge{},
		sendBuffer: sendBuffer,
		clients:    make(map[*Client]struct{}),
		subs:       make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// SetGauge attaches a connection-count gauge. Call before serving traffic.
func (h *Hub) SetGauge(g ClientGauge) {
	if g != nil {
		h.gauge = g
	}
}

// PublishBid implements the bidding notifier.
func (h *Hub) PublishBid(lotID uuid.UUID, snap lot.Snapshot) {
	h.broadcast(newEvent(EventBid, lotID, snap))
}

// PublishSoftClose implements the bidding notifier.
func (h *Hub) PublishSoftClose(lotID uuid.UUID, snap lot.Snapshot) {
	h.broadcast(newEvent(EventSoftClose, lotID, snap))
}

// PublishLotClosed implements both the bidding and closing notifiers.
func (h *Hub) PublishLotClosed(lotID uuid.UUID, snap lot.Snapshot) {
	h.broadcast(newEvent(EventLotClosed, lotID, snap))
}

func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.subs[ev.LotID]))
	for c := range h.subs[ev.LotID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(ev) {
			h.logger.Warn("dropping slow live-update client",
				zap.String("lot_id", ev.LotID.String()))
			h.detach(c)
			c.closeSend()
		}
	}
}

// Subscribe registers a client for a lot and queues the current snapshot as
// the first event on that subscription.
func (h *Hub) Subscribe(ctx context.Context, c *Client, lotID uuid.UUID) error {
	snap, err := h.snapshots.LotSnapshot(ctx, lotID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return nil
	}
	if h.subs[lotID] == nil {
		h.subs[lotID] = make(map[*Client]struct{})
	}
	h.subs[lotID][c] = struct{}{}
	c.lots[lotID] = struct{}{}
	h.mu.Unlock()

	if !c.enqueue(newEvent(EventSnapshot, lotID, *snap)) {
		h.detach(c)
		c.closeSend()
	}
	return nil
}

// Unsubscribe removes one lot subscription.
func (h *Hub) Unsubscribe(c *Client, lotID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[lotID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, lotID)
		}
	}
	delete(c.lots, lotID)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.gauge.ClientConnected()
}

// detach removes the client and all of its subscriptions. Safe to call more
// than once per client.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	for lotID := range c.lots {
		if set, ok := h.subs[lotID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, lotID)
			}
		}
	}
	h.mu.Unlock()
	h.gauge.ClientDisconnected()
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
