package contract

import (
	"context"

	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/repository/specification"

	"github.com/google/uuid"
)

type NotepadRepository interface {
	CreateSnapshot(ctx context.Context, snapshot *entity.NotepadSnapshot) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.NotepadSnapshot, error)
	LatestBySession(ctx context.Context, sessionId uuid.UUID) (*entity.NotepadSnapshot, error)
}
