package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Session struct {
	Id               uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Title            string    `gorm:"type:text;not null"`
	ProblemStatement string    `gorm:"type:text;not null"`
	Strategy         string    `gorm:"type:varchar(64);not null;default:'double_diamond'"`
	TimeLimitSec     int       `gorm:"not null;default:900"`
	PhaseWeights     datatypes.JSONMap
	Phase            string `gorm:"type:varchar(32);not null;default:'discover'"`
	Status           string `gorm:"type:varchar(16);not null;default:'idle';index"`
	Deadline         *time.Time
	TurnIndex        int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	StartedAt        *time.Time
	EndedAt          *time.Time
}

func (Session) TableName() string {
	return "sessions"
}
