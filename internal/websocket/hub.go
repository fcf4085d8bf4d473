package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"crewtalk-be/internal/engine"
	"crewtalk-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisChannel carries session events between instances so a subscriber can
// be connected to any node.
const redisChannel = "crewtalk:events"

// Hub fans session stream events out to the websocket subscribers of each
// session. There is no replay buffer: a client that connects after an event
// was published resynchronizes via the session snapshot read.
type Hub struct {
	// Registered clients map: SessionID -> subscribers of that session.
	clients map[uuid.UUID][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance fan-out; nil disables the bridge.
	rdb *redis.Client

	logger logger.ILogger
}

// bridgePayload is the cross-instance envelope on the Redis channel.
type bridgePayload struct {
	SessionID string          `json:"session_id"`
	Close     bool            `json:"close,omitempty"`
	Message   json.RawMessage `json:"message,omitempty"`
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uuid.UUID][]*Client),
		rdb:        rdb,
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.SessionID] = append(h.clients[client.SessionID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"session_id": client.SessionID})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.SessionID]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.SessionID] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.SessionID]) == 0 {
					delete(h.clients, client.SessionID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish delivers an event to every current subscriber of the session.
// Zero subscribers is a no-op. A subscriber whose buffer is full is dropped
// rather than stalling the session's engine.
func (h *Hub) Publish(sessionId uuid.UUID, event engine.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Hub", "Event marshal failed", map[string]interface{}{"error": err.Error()})
		return
	}

	h.deliverLocal(sessionId, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(bridgePayload{
			SessionID: sessionId.String(),
			Message:   data,
		})
		h.rdb.Publish(context.Background(), redisChannel, payload)
	}
}

// CloseSession disconnects every subscriber of the session, locally and on
// other instances.
func (h *Hub) CloseSession(sessionId uuid.UUID) {
	h.closeLocal(sessionId)

	if h.rdb != nil {
		payload, _ := json.Marshal(bridgePayload{
			SessionID: sessionId.String(),
			Close:     true,
		})
		h.rdb.Publish(context.Background(), redisChannel, payload)
	}
}

func (h *Hub) deliverLocal(sessionId uuid.UUID, data []byte) {
	var dropped []*Client

	h.mu.RLock()
	for _, client := range h.clients[sessionId] {
		select {
		case client.Send <- data:
		default:
			dropped = append(dropped, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range dropped {
		h.logger.Warn("Hub", "Slow subscriber dropped", map[string]interface{}{"session_id": sessionId})
		h.unregister <- client
	}
}

func (h *Hub) closeLocal(sessionId uuid.UUID) {
	h.mu.RLock()
	clients := make([]*Client, len(h.clients[sessionId]))
	copy(clients, h.clients[sessionId])
	h.mu.RUnlock()

	for _, client := range clients {
		h.unregister <- client
	}
}

func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload bridgePayload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Bridge payload parse error", map[string]interface{}{"error": err.Error()})
			continue
		}

		sessionId, err := uuid.Parse(payload.SessionID)
		if err != nil {
			continue
		}

		if payload.Close {
			h.closeLocal(sessionId)
			continue
		}
		h.deliverLocal(sessionId, payload.Message)
	}
}
