package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-learn/backend/internal/models"
	"github.com/aura-learn/backend/internal/policy"
	"github.com/aura-learn/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced at the edge
	},
}

// Message is the WebSocket message envelope.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one WebSocket connection watching a live class.
type Client struct {
	ID          string
	LiveClassID uuid.UUID
	UserID      uuid.UUID
	hub         *Hub
	conn        *websocket.Conn
	send        chan Message
	logger      *zap.Logger
}

// TokenValidator turns a bearer token into the caller it identifies.
type TokenValidator func(token string) (policy.Caller, error)

// RoomGuard reports whether caller may watch the live class.
type RoomGuard func(ctx context.Context, caller policy.Caller, liveClassID uuid.UUID) error

// ServeWs handles GET /ws?live_class_id=&token= and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, validate TokenValidator, guard RoomGuard) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		classIDStr := c.Query("live_class_id")
		token := c.Query("token")
		if classIDStr == "" || token == "" {
			response.BadRequest(c, "live_class_id and token required")
			return
		}
		classID, err := uuid.Parse(classIDStr)
		if err != nil {
			response.BadRequest(c, "invalid live_class_id")
			return
		}
		caller, err := validate(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		if guard != nil {
			if err := guard(c.Request.Context(), caller, classID); err != nil {
				switch {
				case errors.Is(err, models.ErrNotFound):
					response.NotFound(c, err.Error())
				case errors.Is(err, models.ErrPermissionDenied):
					response.Forbidden(c, err.Error())
				default:
					logger.Error("room access check failed", zap.Error(err))
					response.Internal(c, "failed to open live class room")
				}
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			ID:          uuid.NewString(),
			LiveClassID: classID,
			UserID:      caller.ID,
			hub:         hub,
			conn:        conn,
			send:        make(chan Message, sendBuffer),
			logger:      logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// readPump drains the connection until it closes. Clients only ask for the
// current viewer count; everything else is ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.Error(err), zap.String("client_id", c.ID))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))

		if msg.Event == EventViewerCount {
			c.hub.sendTo(c, EventViewerCount, ViewerCount{LiveClassID: c.LiveClassID, Count: c.hub.ViewerCount(c.LiveClassID)})
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
