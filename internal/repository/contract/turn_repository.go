package contract

import (
	"context"

	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/repository/specification"

	"github.com/google/uuid"
)

type TurnRepository interface {
	Create(ctx context.Context, turn *entity.Turn) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Turn, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
	// RecentBySession returns the newest `limit` turns in ascending
	// turn-index order, the shape the snapshot read wants.
	RecentBySession(ctx context.Context, sessionId uuid.UUID, limit int) ([]*entity.Turn, error)
	// RecentByAgent feeds short-term memory rehydration.
	RecentByAgent(ctx context.Context, sessionId, agentId uuid.UUID, limit int) ([]*entity.Turn, error)
}
