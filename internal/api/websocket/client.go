package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1024
)

// clientCommand is the only message clients send: subscribe to or leave a
// lot's event stream.
type clientCommand struct {
	Action string    `json:"action"`
	LotID  uuid.UUID `json:"lot_id"`
}

// Client is one websocket connection. The hub writes into send; the write
// pump drains it. lots is guarded by the hub's mutex.
type Client struct {
	ID     uuid.UUID
	UserID uuid.UUID

	hub  *Hub
	conn *websocket.Conn
	send chan Event
	lots map[uuid.UUID]struct{}

	heartbeat time.Duration
	logger    *zap.Logger
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, heartbeat time.Duration, logger *zap.Logger) *Client {
	return &Client{
		ID:        uuid.New(),
		UserID:    userID,
		hub:       hub,
		conn:      conn,
		send:      make(chan Event, hub.sendBuffer),
		lots:      make(map[uuid.UUID]struct{}),
		heartbeat: heartbeat,
		logger:    logger,
	}
}

// enqueue offers an event without blocking. A false return means the buffer
// is full and the client should be dropped.
func (c *Client) enqueue(ev Event) bool {
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.detach(c)
		c.closeSend()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	readWait := c.heartbeat * 2
	_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		var cmd clientCommand
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		switch cmd.Action {
		case "subscribe":
			if err := c.hub.Subscribe(ctx, c, cmd.LotID); err != nil {
				c.logger.Debug("subscribe rejected",
					zap.String("lot_id", cmd.LotID.String()), zap.Error(err))
			}
		case "unsubscribe":
			c.hub.Unsubscribe(c, cmd.LotID)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			// A JSON heartbeat for application clients, plus a ping control
			// frame for transport liveness.
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(Event{Kind: EventHeartbeat, At: time.Now().UnixMilli()}); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
