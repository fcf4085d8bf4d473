package model

import (
	"time"

	"github.com/google/uuid"
)

type Agent struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId uuid.UUID `gorm:"type:uuid;not null;index"`
	Name      string    `gorm:"type:text;not null"`
	Role      string    `gorm:"type:varchar(16);not null"`
	Trait     string    `gorm:"type:text"`
	ModelHint string    `gorm:"type:text"`
	IsActive  bool      `gorm:"not null;default:true"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Agent) TableName() string {
	return "agents"
}
