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

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotepadRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SessionMapper
}

func NewNotepadRepository(db *gorm.DB) contract.NotepadRepository {
	return &NotepadRepositoryImpl{
		db:     db,
		mapper: mapper.NewSessionMapper(),
	}
}

func (r *NotepadRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *NotepadRepositoryImpl) CreateSnapshot(ctx context.Context, snapshot *entity.NotepadSnapshot) error {
	m := r.mapper.NotepadSnapshotToModel(snapshot)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*snapshot = *r.mapper.NotepadSnapshotToEntity(m)
	return nil
}

func (r *NotepadRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.NotepadSnapshot, error) {
	var models []*model.NotepadSnapshot
	query := r.applySpecifications(r.db.WithContext(ctx).Scopes(scope.OrderByCreatedAsc), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.NotepadSnapshot, len(models))
	for i, m := range models {
		entities[i] = r.mapper.NotepadSnapshotToEntity(m)
	}
	return entities, nil
}

func (r *NotepadRepositoryImpl) LatestBySession(ctx context.Context, sessionId uuid.UUID) (*entity.NotepadSnapshot, error) {
	var m model.NotepadSnapshot
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionId).
		Scopes(scope.OrderByCreatedDesc).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.NotepadSnapshotToEntity(&m), nil
}
