package model

import (
	"time"

	"github.com/google/uuid"
)

type NotepadSnapshot struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId uuid.UUID `gorm:"type:uuid;not null;index"`
	Content   string    `gorm:"type:text;not null"`
	UpdatedBy string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (NotepadSnapshot) TableName() string {
	return "notepad_snapshots"
}
