package mapper

import (
	"time"

	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/model"
	"github.com/meownm/ai-rag-sub000/pkg/store"

	"github.com/pgvector/pgvector-go"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

func (m *ConversationMapper) ToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	var updatedAt *time.Time
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		updatedAt = &t
	}

	return &entity.Conversation{
		Id:                   c.Id,
		TenantId:             c.TenantId,
		Title:                c.Title,
		ClarificationDepth:   c.ClarificationDepth,
		ClarificationPending: c.ClarificationPending,
		LastClarification:    c.LastClarification,
		LastQueryEmbedding:   c.LastQueryEmbedding.Slice(),
		ArchivedAt:           c.ArchivedAt,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            updatedAt,
	}
}

func (m *ConversationMapper) ToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	return &model.Conversation{
		Id:                   c.Id,
		TenantId:             c.TenantId,
		Title:                c.Title,
		ClarificationDepth:   c.ClarificationDepth,
		ClarificationPending: c.ClarificationPending,
		LastClarification:    c.LastClarification,
		LastQueryEmbedding:   pgvector.NewVector(c.LastQueryEmbedding),
		ArchivedAt:           c.ArchivedAt,
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            updatedAt,
	}
}

func (m *ConversationMapper) TurnToEntity(t *model.ConversationTurn) *entity.ConversationTurn {
	if t == nil {
		return nil
	}
	return &entity.ConversationTurn{
		Id:             t.Id,
		ConversationId: t.ConversationId,
		Role:           t.Role,
		Text:           t.Text,
		TurnIndex:      t.TurnIndex,
		CreatedAt:      t.CreatedAt,
	}
}

func (m *ConversationMapper) TurnToModel(t *entity.ConversationTurn) *model.ConversationTurn {
	if t == nil {
		return nil
	}
	return &model.ConversationTurn{
		Id:             t.Id,
		ConversationId: t.ConversationId,
		Role:           t.Role,
		Text:           t.Text,
		TurnIndex:      t.TurnIndex,
		CreatedAt:      t.CreatedAt,
	}
}

func (m *ConversationMapper) SummaryToEntity(s *model.ConversationSummary) *entity.ConversationSummary {
	if s == nil {
		return nil
	}
	return &entity.ConversationSummary{
		Id:              s.Id,
		ConversationId:  s.ConversationId,
		Version:         s.Version,
		CoversTurnIndex: s.CoversTurnIndex,
		Mode:            s.Mode,
		Text:            s.Text,
		CreatedAt:       s.CreatedAt,
	}
}

func (m *ConversationMapper) SummaryToModel(s *entity.ConversationSummary) *model.ConversationSummary {
	if s == nil {
		return nil
	}
	return &model.ConversationSummary{
		Id:              s.Id,
		ConversationId:  s.ConversationId,
		Version:         s.Version,
		CoversTurnIndex: s.CoversTurnIndex,
		Mode:            s.Mode,
		Text:            s.Text,
		CreatedAt:       s.CreatedAt,
	}
}

// TurnsToStore converts persisted turns into the pipeline's turn type.
func (m *ConversationMapper) TurnsToStore(turns []*entity.ConversationTurn) []store.Turn {
	out := make([]store.Turn, len(turns))
	for i, t := range turns {
		out[i] = store.Turn{
			Role:      t.Role,
			Text:      t.Text,
			TurnIndex: t.TurnIndex,
			CreatedAt: t.CreatedAt,
		}
	}
	return out
}
