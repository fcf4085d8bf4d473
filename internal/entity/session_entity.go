package entity

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	StatusIdle      SessionStatus = "idle"
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusStopped   SessionStatus = "stopped"
	StatusCompleted SessionStatus = "completed"
)

// Terminal reports whether no further lifecycle command can move the
// session out of this status.
func (s SessionStatus) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted
}

type Session struct {
	Id               uuid.UUID
	Title            string
	ProblemStatement string
	Strategy         string
	TimeLimitSec     int
	// PhaseWeights optionally overrides the even time split per phase,
	// keyed by phase name. Empty map means an even split.
	PhaseWeights map[string]float64
	Phase        string
	Status       SessionStatus
	Deadline     *time.Time
	TurnIndex    int
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
}
