package events

import "time"

// Audit event codes published to the NATS bus. These mirror session
// lifecycle milestones, not the per-token live stream.
const (
	TypeSessionCreated   = "SESSION_CREATED"
	TypeSessionStarted   = "SESSION_STARTED"
	TypeSessionStopped   = "SESSION_STOPPED"
	TypeSessionCompleted = "SESSION_COMPLETED"
	TypePhaseAdvanced    = "PHASE_ADVANCED"
	TypeTurnCreated      = "TURN_CREATED"
	TypeAgentAdded       = "AGENT_ADDED"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "TURN_CREATED").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the generic Event implementation used by publishers.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func NewBaseEvent(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}
