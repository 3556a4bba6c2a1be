package mapper

import (
	"time"

	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/model"
	"github.com/meownm/ai-rag-sub000/pkg/store"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type ChunkMapper struct{}

func NewChunkMapper() *ChunkMapper {
	return &ChunkMapper{}
}

func (m *ChunkMapper) ToEntity(c *model.ChunkEmbedding) *entity.Chunk {
	if c == nil {
		return nil
	}

	var deletedAt *time.Time
	if c.DeletedAt.Valid {
		t := c.DeletedAt.Time
		deletedAt = &t
	}

	var updatedAt *time.Time
	if !c.UpdatedAt.IsZero() {
		t := c.UpdatedAt
		updatedAt = &t
	}

	return &entity.Chunk{
		Id:          c.Id,
		DocumentId:  c.DocumentId,
		TenantId:    c.TenantId,
		Text:        c.Text,
		Ordinal:     c.Ordinal,
		HeadingPath: c.HeadingPath,
		Embedding:   c.EmbeddingValue.Slice(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   updatedAt,
		DeletedAt:   deletedAt,
		IsDeleted:   c.DeletedAt.Valid,
	}
}

func (m *ChunkMapper) ToModel(c *entity.Chunk) *model.ChunkEmbedding {
	if c == nil {
		return nil
	}

	var deletedAt gorm.DeletedAt
	if c.DeletedAt != nil {
		deletedAt = gorm.DeletedAt{Time: *c.DeletedAt, Valid: true}
	}

	var updatedAt time.Time
	if c.UpdatedAt != nil {
		updatedAt = *c.UpdatedAt
	}

	return &model.ChunkEmbedding{
		Id:             c.Id,
		DocumentId:     c.DocumentId,
		TenantId:       c.TenantId,
		Text:           c.Text,
		Ordinal:        c.Ordinal,
		HeadingPath:    c.HeadingPath,
		EmbeddingValue: pgvector.NewVector(c.Embedding),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      updatedAt,
		DeletedAt:      deletedAt,
	}
}

func (m *ChunkMapper) ToEntities(chunks []*model.ChunkEmbedding) []*entity.Chunk {
	entities := make([]*entity.Chunk, len(chunks))
	for i, c := range chunks {
		entities[i] = m.ToEntity(c)
	}
	return entities
}

// ToCandidate converts a chunk entity into the scoring candidate the
// retrieval pipeline works with.
func (m *ChunkMapper) ToCandidate(c *entity.Chunk, vectorScore float64) store.Candidate {
	return store.Candidate{
		ChunkID:     c.Id.String(),
		DocumentID:  c.DocumentId.String(),
		TenantID:    c.TenantId.String(),
		Text:        c.Text,
		Ordinal:     c.Ordinal,
		HeadingPath: c.HeadingPath,
		Embedding:   c.Embedding,
		VectorScore: vectorScore,
	}
}
