package engine

import (
	"time"

	"github.com/google/uuid"
)

// Live stream event kinds. The set is closed: every event a subscriber can
// receive is one of these, with the payload type listed next to it.
const (
	EventSessionStatus  = "session.status"  // StatusPayload
	EventPhaseChanged   = "phase.changed"   // PhaseChangedPayload
	EventTokenDelta     = "token.delta"     // TokenDeltaPayload
	EventMessageCreated = "message.created" // MessageCreatedPayload
	EventNotepadUpdated = "notepad.updated" // NotepadUpdatedPayload
	EventError          = "error"           // ErrorPayload
)

// StreamEvent is the transient envelope pushed to live subscribers. It is
// never persisted; its effects are persisted via turns, notepad snapshots
// and session updates.
type StreamEvent struct {
	SessionId uuid.UUID   `json:"session_id"`
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Ts        time.Time   `json:"ts"`
}

type StatusPayload struct {
	Status    string     `json:"status"`
	Phase     string     `json:"phase"`
	TurnIndex int        `json:"turn_index"`
	Deadline  *time.Time `json:"deadline"`
}

type PhaseChangedPayload struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Deadline time.Time `json:"deadline"`
}

type TokenDeltaPayload struct {
	AgentId   uuid.UUID `json:"agent_id"`
	TextDelta string    `json:"text_delta"`
}

type MessageCreatedPayload struct {
	Id         uuid.UUID  `json:"id"`
	AgentId    *uuid.UUID `json:"agent_id"`
	Phase      string     `json:"phase"`
	TurnIndex  int        `json:"turn_index"`
	Text       string     `json:"text"`
	Sentiment  float64    `json:"sentiment"`
	Confidence float64    `json:"confidence"`
	CreatedAt  time.Time  `json:"created_at"`
}

type NotepadUpdatedPayload struct {
	Content   string `json:"content"`
	UpdatedBy string `json:"updated_by"`
}

type ErrorPayload struct {
	Scope   string `json:"scope"`
	Message string `json:"message"`
}

func newEvent(sessionId uuid.UUID, kind string, payload interface{}) StreamEvent {
	return StreamEvent{
		SessionId: sessionId,
		Event:     kind,
		Payload:   payload,
		Ts:        time.Now(),
	}
}

// Broadcaster fans a session's events out to its current subscribers.
// Implemented by the websocket hub; tests substitute a recorder.
type Broadcaster interface {
	Publish(sessionId uuid.UUID, event StreamEvent)
	// CloseSession disconnects every subscriber of the session.
	CloseSession(sessionId uuid.UUID)
}
