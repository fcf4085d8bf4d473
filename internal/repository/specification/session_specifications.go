package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BySession scopes any session-owned table (agents, turns, notepad_snapshots).
type BySession struct {
	SessionID uuid.UUID
}

func (s BySession) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

// ByAgent filters turns by authoring agent.
type ByAgent struct {
	AgentID uuid.UUID
}

func (s ByAgent) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("agent_id = ?", s.AgentID)
}

// ActiveOnly filters out deactivated agents.
type ActiveOnly struct{}

func (s ActiveOnly) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_active = ?", true)
}
