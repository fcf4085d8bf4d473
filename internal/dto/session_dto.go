package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	Title            string             `json:"title" validate:"required,max=200"`
	ProblemStatement string             `json:"problem_statement" validate:"required"`
	TimeLimitSec     int                `json:"time_limit_sec" validate:"omitempty,min=60,max=14400"`
	Strategy         string             `json:"strategy" validate:"omitempty,oneof=double_diamond"`
	PhaseWeights     map[string]float64 `json:"phase_weights" validate:"omitempty"`
}

type CreateSessionResponse struct {
	Id     uuid.UUID `json:"id"`
	Phase  string    `json:"phase"`
	Status string    `json:"status"`
}

type AddAgentRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Role      string `json:"role" validate:"required,oneof=moderator participant notetaker"`
	Trait     string `json:"trait" validate:"omitempty,max=500"`
	ModelHint string `json:"model_hint" validate:"omitempty,max=100"`
}

type AddAgentResponse struct {
	Id    uuid.UUID `json:"id"`
	Probe string    `json:"probe"`
}

type SetAgentActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type UpdateNotepadRequest struct {
	Content   string `json:"content" validate:"required"`
	UpdatedBy string `json:"updated_by" validate:"omitempty,max=100"`
}

type LifecycleResponse struct {
	Status   string     `json:"status"`
	Phase    string     `json:"phase"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type AgentResponse struct {
	Id        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Trait     string    `json:"trait,omitempty"`
	ModelHint string    `json:"model_hint,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type TurnResponse struct {
	Id         uuid.UUID  `json:"id"`
	AgentId    *uuid.UUID `json:"agent_id"`
	Phase      string     `json:"phase"`
	TurnIndex  int        `json:"turn_index"`
	Text       string     `json:"text"`
	Sentiment  float64    `json:"sentiment"`
	Confidence float64    `json:"confidence"`
	CreatedAt  time.Time  `json:"created_at"`
}

type NotepadSnapshotResponse struct {
	Id        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionSnapshotResponse is the resynchronization read: roster, recent
// transcript tail, live notepad and current lifecycle position.
type SessionSnapshotResponse struct {
	Id               uuid.UUID       `json:"id"`
	Title            string          `json:"title"`
	ProblemStatement string          `json:"problem_statement"`
	Strategy         string          `json:"strategy"`
	TimeLimitSec     int             `json:"time_limit_sec"`
	Phase            string          `json:"phase"`
	Status           string          `json:"status"`
	Deadline         *time.Time      `json:"deadline,omitempty"`
	TurnIndex        int             `json:"turn_index"`
	Agents           []AgentResponse `json:"agents"`
	Turns            []TurnResponse  `json:"turns"`
	Notepad          string          `json:"notepad"`
}

type SessionExportResponse struct {
	Session          SessionSnapshotResponse   `json:"session"`
	Turns            []TurnResponse            `json:"turns"`
	NotepadSnapshots []NotepadSnapshotResponse `json:"notepad_snapshots"`
}

// NotepadCheckpointMessage is the watermill payload carrying a notepad
// mutation to the checkpoint consumer.
type NotepadCheckpointMessage struct {
	SessionId uuid.UUID `json:"session_id"`
	Content   string    `json:"content"`
	UpdatedBy string    `json:"updated_by"`
}
