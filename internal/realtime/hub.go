package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second

	sendBuffer = 64
)

// Broker carries room events between instances.
type Broker interface {
	PublishRoomEvent(liveClassID uuid.UUID, event string, payload []byte) error
	SubscribeRoom(liveClassID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub keeps live_class_id -> connected clients and fans events out to them.
// With a broker, events go through Redis so every instance delivers them once.
type Hub struct {
	rooms   map[uuid.UUID]map[string]*Client
	subs    map[uuid.UUID]func()
	pending map[uuid.UUID]bool
	mu      sync.RWMutex
	logger  *zap.Logger
	broker  Broker
}

// NewHub creates a hub. broker may be nil for a single instance.
func NewHub(logger *zap.Logger, broker Broker) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:   make(map[uuid.UUID]map[string]*Client),
		subs:    make(map[uuid.UUID]func()),
		pending: make(map[uuid.UUID]bool),
		logger:  logger,
		broker:  broker,
	}
}

// Register adds a client to its class room. The room channel is subscribed
// whenever the room has no live subscription, so a failed attempt is retried
// by the next client.
func (h *Hub) Register(c *Client) {
	roomID := c.LiveClassID
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.ID] = c
	count := len(h.rooms[roomID])
	subscribe := h.broker != nil && h.subs[roomID] == nil && !h.pending[roomID]
	if subscribe {
		h.pending[roomID] = true
	}
	h.mu.Unlock()

	if subscribe {
		h.subscribe(roomID)
	}
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("live_class_id", roomID.String()))
	h.Broadcast(roomID, EventViewerCount, ViewerCount{LiveClassID: roomID, Count: count})
}

// subscribe runs outside the hub lock; the room may have emptied meanwhile.
func (h *Hub) subscribe(roomID uuid.UUID) {
	cancel, err := h.broker.SubscribeRoom(roomID, func(event string, payload []byte) {
		h.Broadcast(roomID, event, json.RawMessage(payload))
	})

	h.mu.Lock()
	delete(h.pending, roomID)
	if err != nil {
		h.mu.Unlock()
		h.logger.Warn("room subscribe failed", zap.Error(err), zap.String("live_class_id", roomID.String()))
		return
	}
	if len(h.rooms[roomID]) == 0 {
		h.mu.Unlock()
		cancel()
		return
	}
	h.subs[roomID] = cancel
	h.mu.Unlock()
}

// subscribed reports whether room events reach this instance through the broker.
func (h *Hub) subscribed(roomID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.subs[roomID] != nil || h.pending[roomID]
}

// Unregister removes a client and drops the room subscription with the last one.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	count := 0
	if room, ok := h.rooms[c.LiveClassID]; ok {
		if _, ok := room[c.ID]; ok {
			delete(room, c.ID)
			close(c.send)
		}
		count = len(room)
		if count == 0 {
			delete(h.rooms, c.LiveClassID)
			if cancel, ok := h.subs[c.LiveClassID]; ok {
				cancel()
				delete(h.subs, c.LiveClassID)
			}
		}
	}
	h.mu.Unlock()

	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("live_class_id", c.LiveClassID.String()))
	if count > 0 {
		h.Broadcast(c.LiveClassID, EventViewerCount, ViewerCount{LiveClassID: c.LiveClassID, Count: count})
	}
}

// Publish implements Publisher. With a broker the event is published to Redis
// and the subscription delivers it locally. Local clients of a room without a
// subscription get it directly.
func (h *Hub) Publish(liveClassID uuid.UUID, event string, payload interface{}) {
	if h.broker == nil {
		h.Broadcast(liveClassID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("encode room event failed", zap.Error(err), zap.String("event", event))
		return
	}
	if err := h.broker.PublishRoomEvent(liveClassID, event, data); err != nil {
		h.logger.Warn("publish room event failed", zap.Error(err), zap.String("event", event))
		h.Broadcast(liveClassID, event, json.RawMessage(data))
		return
	}
	if !h.subscribed(liveClassID) {
		h.Broadcast(liveClassID, event, json.RawMessage(data))
	}
}

// Broadcast sends an event to the clients of a room on this instance.
func (h *Hub) Broadcast(liveClassID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("encode room event failed", zap.Error(err), zap.String("event", event))
			return
		}
	}
	msg := Message{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[liveClassID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client send buffer full, event dropped", zap.String("client_id", c.ID))
		}
	}
}

// ViewerCount returns the number of clients connected to a room on this instance.
func (h *Hub) ViewerCount(liveClassID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[liveClassID])
}

// sendTo delivers an event to one client.
func (h *Hub) sendTo(c *Client, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.rooms[c.LiveClassID][c.ID]; !ok {
		return
	}
	select {
	case c.send <- Message{Event: event, Data: data}:
	default:
	}
}
