package mapper

import (
	"encoding/json"

	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/model"

	"gorm.io/datatypes"
)

type TraceMapper struct{}

func NewTraceMapper() *TraceMapper {
	return &TraceMapper{}
}

func (m *TraceMapper) ToEntity(t *model.RetrievalTrace) *entity.RetrievalTrace {
	if t == nil {
		return nil
	}

	var usedChunkIds []string
	if len(t.UsedChunkIds) > 0 {
		// Malformed rows degrade to an empty list rather than failing the read.
		_ = json.Unmarshal(t.UsedChunkIds, &usedChunkIds)
	}

	return &entity.RetrievalTrace{
		Id:             t.Id,
		TenantId:       t.TenantId,
		ConversationId: t.ConversationId,
		Query:          t.Query,
		Verdict:        t.Verdict,
		Confidence:     t.Confidence,
		UsedChunkIds:   usedChunkIds,
		Payload:        json.RawMessage(t.Payload),
		CreatedAt:      t.CreatedAt,
	}
}

func (m *TraceMapper) ToModel(t *entity.RetrievalTrace) *model.RetrievalTrace {
	if t == nil {
		return nil
	}

	usedChunkIds, _ := json.Marshal(t.UsedChunkIds)

	return &model.RetrievalTrace{
		Id:             t.Id,
		TenantId:       t.TenantId,
		ConversationId: t.ConversationId,
		Query:          t.Query,
		Verdict:        t.Verdict,
		Confidence:     t.Confidence,
		UsedChunkIds:   datatypes.JSON(usedChunkIds),
		Payload:        datatypes.JSON(t.Payload),
		CreatedAt:      t.CreatedAt,
	}
}

func (m *TraceMapper) ToEntities(traces []*model.RetrievalTrace) []*entity.RetrievalTrace {
	entities := make([]*entity.RetrievalTrace, len(traces))
	for i, t := range traces {
		entities[i] = m.ToEntity(t)
	}
	return entities
}
