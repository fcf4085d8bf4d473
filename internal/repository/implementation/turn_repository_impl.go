package implementation

import (
	"context"

	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/mapper"
	"crewtalk-be/internal/model"
	"crewtalk-be/internal/repository/contract"
	"crewtalk-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TurnRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SessionMapper
}

func NewTurnRepository(db *gorm.DB) contract.TurnRepository {
	return &TurnRepositoryImpl{
		db:     db,
		mapper: mapper.NewSessionMapper(),
	}
}

func (r *TurnRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *TurnRepositoryImpl) Create(ctx context.Context, turn *entity.Turn) error {
	m := r.mapper.TurnToModel(turn)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*turn = *r.mapper.TurnToEntity(m)
	return nil
}

func (r *TurnRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Turn, error) {
	var models []*model.Turn
	query := r.applySpecifications(r.db.WithContext(ctx).Order("turn_index ASC"), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.Turn, len(models))
	for i, m := range models {
		entities[i] = r.mapper.TurnToEntity(m)
	}
	return entities, nil
}

func (r *TurnRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx).Model(&model.Turn{}), specs...)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *TurnRepositoryImpl) RecentBySession(ctx context.Context, sessionId uuid.UUID, limit int) ([]*entity.Turn, error) {
	var models []*model.Turn
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.BySession{SessionID: sessionId},
		specification.OrderBy{Field: "turn_index", Desc: true},
		specification.Pagination{Limit: limit},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	// Newest-first from the query, reversed to transcript order.
	entities := make([]*entity.Turn, len(models))
	for i, m := range models {
		entities[len(models)-1-i] = r.mapper.TurnToEntity(m)
	}
	return entities, nil
}

func (r *TurnRepositoryImpl) RecentByAgent(ctx context.Context, sessionId, agentId uuid.UUID, limit int) ([]*entity.Turn, error) {
	var models []*model.Turn
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.BySession{SessionID: sessionId},
		specification.ByAgent{AgentID: agentId},
		specification.OrderBy{Field: "turn_index", Desc: true},
		specification.Pagination{Limit: limit},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	entities := make([]*entity.Turn, len(models))
	for i, m := range models {
		entities[len(models)-1-i] = r.mapper.TurnToEntity(m)
	}
	return entities, nil
}
