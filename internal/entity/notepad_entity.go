package entity

import (
	"time"

	"github.com/google/uuid"
)

// NotepadSnapshot is a durable checkpoint of the session notepad. The live
// copy is owned by the session engine; snapshots only record history.
type NotepadSnapshot struct {
	Id        uuid.UUID
	SessionId uuid.UUID
	Content   string
	UpdatedBy string
	CreatedAt time.Time
}
