package implementation

import (
	"context"

	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/mapper"
	"github.com/meownm/ai-rag-sub000/internal/model"
	"github.com/meownm/ai-rag-sub000/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TraceRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.TraceMapper
}

func NewTraceRepository(db *gorm.DB) contract.TraceRepository {
	return &TraceRepositoryImpl{
		db:     db,
		mapper: mapper.NewTraceMapper(),
	}
}

func (r *TraceRepositoryImpl) Create(ctx context.Context, trace *entity.RetrievalTrace) error {
	m := r.mapper.ToModel(trace)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*trace = *r.mapper.ToEntity(m)
	return nil
}

func (r *TraceRepositoryImpl) FindRecent(ctx context.Context, tenantId, conversationId uuid.UUID, limit int) ([]*entity.RetrievalTrace, error) {
	if limit <= 0 {
		limit = 3
	}

	var models []*model.RetrievalTrace
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND conversation_id = ?", tenantId, conversationId).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}
