package implementation

import (
	"context"
	"errors"
	"time"

	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/mapper"
	"github.com/meownm/ai-rag-sub000/internal/model"
	"github.com/meownm/ai-rag-sub000/internal/repository/contract"
	"github.com/meownm/ai-rag-sub000/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConversationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ConversationMapper
}

func NewConversationRepository(db *gorm.DB) contract.ConversationRepository {
	return &ConversationRepositoryImpl{
		db:     db,
		mapper: mapper.NewConversationMapper(),
	}
}

func (r *ConversationRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ConversationRepositoryImpl) Create(ctx context.Context, conversation *entity.Conversation) error {
	m := r.mapper.ToModel(conversation)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*conversation = *r.mapper.ToEntity(m)
	return nil
}

func (r *ConversationRepositoryImpl) Update(ctx context.Context, conversation *entity.Conversation) error {
	m := r.mapper.ToModel(conversation)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*conversation = *r.mapper.ToEntity(m)
	return nil
}

func (r *ConversationRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Conversation, error) {
	var m model.Conversation
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ConversationRepositoryImpl) ArchiveIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("archived_at IS NULL").
		Where("updated_at < ?", cutoff).
		Update("archived_at", now)
	return result.RowsAffected, result.Error
}

func (r *ConversationRepositoryImpl) AppendTurn(ctx context.Context, turn *entity.ConversationTurn) error {
	m := r.mapper.TurnToModel(turn)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*turn = *r.mapper.TurnToEntity(m)
	return nil
}

func (r *ConversationRepositoryImpl) FindTurns(ctx context.Context, conversationId uuid.UUID, specs ...specification.Specification) ([]*entity.ConversationTurn, error) {
	var models []*model.ConversationTurn
	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId)
	query = r.applySpecifications(query, specs...)
	if err := query.Order("turn_index ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	turns := make([]*entity.ConversationTurn, len(models))
	for i, m := range models {
		turns[i] = r.mapper.TurnToEntity(m)
	}
	return turns, nil
}

func (r *ConversationRepositoryImpl) CountTurns(ctx context.Context, conversationId uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ConversationTurn{}).
		Where("conversation_id = ?", conversationId).
		Count(&count).Error
	return count, err
}

func (r *ConversationRepositoryImpl) CreateSummary(ctx context.Context, summary *entity.ConversationSummary) error {
	m := r.mapper.SummaryToModel(summary)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*summary = *r.mapper.SummaryToEntity(m)
	return nil
}

func (r *ConversationRepositoryImpl) LatestSummary(ctx context.Context, conversationId uuid.UUID) (*entity.ConversationSummary, error) {
	var m model.ConversationSummary
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND mode = ?", conversationId, "narrative").
		Order("version DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.SummaryToEntity(&m), nil
}
