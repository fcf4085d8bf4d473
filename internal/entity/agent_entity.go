package entity

import (
	"time"

	"github.com/google/uuid"
)

type AgentRole string

const (
	RoleModerator   AgentRole = "moderator"
	RoleParticipant AgentRole = "participant"
	RoleNotetaker   AgentRole = "notetaker"
)

type Agent struct {
	Id        uuid.UUID
	SessionId uuid.UUID
	Name      string
	Role      AgentRole
	Trait     string
	ModelHint string
	IsActive  bool
	CreatedAt time.Time
}
