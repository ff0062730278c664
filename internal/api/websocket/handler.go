package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browsers send Origin; tokens gate access, not the origin list.
		return true
	},
}

// Handler upgrades HTTP requests onto the hub.
type Handler struct {
	hub       *Hub
	heartbeat time.Duration
	logger    *zap.Logger
}

func NewHandler(hub *Hub, heartbeat time.Duration, logger *zap.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Handler{hub: hub, heartbeat: heartbeat, logger: logger}
}

// ServeLive upgrades the connection and starts the client pumps. The caller
// places the authenticated user id in the request context; anonymous viewers
// are allowed, the stream carries only public lot state.
func (h *Handler) ServeLive(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(userIDContextKey{}).(uuid.UUID)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		return
	}

	c := newClient(h.hub, conn, userID, h.heartbeat, h.logger)
	h.hub.register(c)

	go c.writePump()
	go c.readPump(r.Context())

	h.logger.Info("live client connected",
		zap.String("client_id", c.ID.String()),
		zap.String("remote_addr", r.RemoteAddr))
}

// userIDContextKey matches the key the REST auth middleware uses.
type userIDContextKey struct{}

// WithUserID stores the authenticated user on the request context for
// ServeLive.
func WithUserID(r *http.Request, userID uuid.UUID) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDContextKey{}, userID))
}
