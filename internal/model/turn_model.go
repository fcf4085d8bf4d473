package model

import (
	"time"

	"github.com/google/uuid"
)

type Turn struct {
	Id        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_turns_session_turn"`
	AgentId   *uuid.UUID `gorm:"type:uuid;index"`
	Phase     string     `gorm:"type:varchar(32);not null"`
	// Unique per session so a duplicate write of the same index fails loudly
	// instead of corrupting the transcript order.
	TurnIndex  int       `gorm:"not null;uniqueIndex:idx_turns_session_turn"`
	Text       string    `gorm:"type:text;not null"`
	Sentiment  float64   `gorm:"not null;default:0"`
	Confidence float64   `gorm:"not null;default:0.5"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (Turn) TableName() string {
	return "turns"
}
