package implementation

import (
	"context"
	"errors"

	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/mapper"
	"crewtalk-be/internal/model"
	"crewtalk-be/internal/repository/contract"
	"crewtalk-be/internal/repository/scope"
	"crewtalk-be/internal/repository/specification"

	"gorm.io/gorm"
)

type AgentRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SessionMapper
}

func NewAgentRepository(db *gorm.DB) contract.AgentRepository {
	return &AgentRepositoryImpl{
		db:     db,
		mapper: mapper.NewSessionMapper(),
	}
}

func (r *AgentRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *AgentRepositoryImpl) Create(ctx context.Context, agent *entity.Agent) error {
	m := r.mapper.AgentToModel(agent)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*agent = *r.mapper.AgentToEntity(m)
	return nil
}

func (r *AgentRepositoryImpl) Update(ctx context.Context, agent *entity.Agent) error {
	m := r.mapper.AgentToModel(agent)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*agent = *r.mapper.AgentToEntity(m)
	return nil
}

func (r *AgentRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Agent, error) {
	var m model.Agent
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.AgentToEntity(&m), nil
}

func (r *AgentRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Agent, error) {
	var models []*model.Agent
	// Creation order is the rotation tie-break, so it is the default order.
	query := r.applySpecifications(r.db.WithContext(ctx).Scopes(scope.OrderByCreatedAsc), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Agent, len(models))
	for i, m := range models {
		entities[i] = r.mapper.AgentToEntity(m)
	}
	return entities, nil
}

func (r *AgentRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Agent{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
