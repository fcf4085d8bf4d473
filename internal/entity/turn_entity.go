package entity

import (
	"time"

	"github.com/google/uuid"
)

// Turn is one completed, scored agent contribution. Immutable once created.
// AgentId is nil for system-authored turns.
type Turn struct {
	Id         uuid.UUID
	SessionId  uuid.UUID
	AgentId    *uuid.UUID
	Phase      string
	TurnIndex  int
	Text       string
	Sentiment  float64
	Confidence float64
	CreatedAt  time.Time
}
