package contract

import (
	"context"

	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/repository/specification"
)

type AgentRepository interface {
	Create(ctx context.Context, agent *entity.Agent) error
	Update(ctx context.Context, agent *entity.Agent) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Agent, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Agent, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
