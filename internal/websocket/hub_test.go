package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crewtalk-be/internal/engine"
)

type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

func newTestHub() *Hub {
	hub := NewHub(nil, nopLogger{})
	go hub.Run()
	return hub
}

func subscribe(hub *Hub, sessionId uuid.UUID, buffer int) *Client {
	client := &Client{Hub: hub, SessionID: sessionId, Send: make(chan []byte, buffer)}
	hub.register <- client
	return client
}

func (h *Hub) subscriberCount(sessionId uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionId])
}

func TestHubPublishReachesSessionSubscribers(t *testing.T) {
	hub := newTestHub()
	sessionId := uuid.New()
	client := subscribe(hub, sessionId, 8)
	other := subscribe(hub, uuid.New(), 8)

	require.Eventually(t, func() bool {
		return hub.subscriberCount(sessionId) == 1
	}, time.Second, 5*time.Millisecond)

	event := engine.StreamEvent{
		SessionId: sessionId,
		Event:     engine.EventSessionStatus,
		Ts:        time.Now(),
	}
	hub.Publish(sessionId, event)

	select {
	case raw := <-client.Send:
		var got engine.StreamEvent
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, sessionId, got.SessionId)
		assert.Equal(t, engine.EventSessionStatus, got.Event)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}

	// The other session's subscriber sees nothing.
	select {
	case <-other.Send:
		t.Fatal("event leaked across sessions")
	default:
	}
}

func TestHubPublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := newTestHub()
	hub.Publish(uuid.New(), engine.StreamEvent{Event: engine.EventTokenDelta})
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := newTestHub()
	sessionId := uuid.New()
	slow := subscribe(hub, sessionId, 1)

	require.Eventually(t, func() bool {
		return hub.subscriberCount(sessionId) == 1
	}, time.Second, 5*time.Millisecond)

	// First event fills the buffer, second finds it full.
	hub.Publish(sessionId, engine.StreamEvent{Event: engine.EventTokenDelta})
	hub.Publish(sessionId, engine.StreamEvent{Event: engine.EventTokenDelta})

	require.Eventually(t, func() bool {
		return hub.subscriberCount(sessionId) == 0
	}, time.Second, 5*time.Millisecond)

	// The hub closed the dropped client's channel after draining.
	<-slow.Send
	_, open := <-slow.Send
	assert.False(t, open)
}

func TestHubCloseSessionDisconnectsAll(t *testing.T) {
	hub := newTestHub()
	sessionId := uuid.New()
	first := subscribe(hub, sessionId, 8)
	second := subscribe(hub, sessionId, 8)

	require.Eventually(t, func() bool {
		return hub.subscriberCount(sessionId) == 2
	}, time.Second, 5*time.Millisecond)

	hub.CloseSession(sessionId)

	require.Eventually(t, func() bool {
		return hub.subscriberCount(sessionId) == 0
	}, time.Second, 5*time.Millisecond)

	_, open := <-first.Send
	assert.False(t, open)
	_, open = <-second.Send
	assert.False(t, open)
}
