package implementation

import (
	"context"
	"errors"

	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/mapper"
	"github.com/meownm/ai-rag-sub000/internal/model"
	"github.com/meownm/ai-rag-sub000/internal/repository/contract"
	"github.com/meownm/ai-rag-sub000/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type ChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChunkMapper
}

func NewChunkRepository(db *gorm.DB) contract.ChunkRepository {
	return &ChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewChunkMapper(),
	}
}

func (r *ChunkRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChunkRepositoryImpl) Create(ctx context.Context, chunk *entity.Chunk) error {
	m := r.mapper.ToModel(chunk)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*chunk = *r.mapper.ToEntity(m)
	return nil
}

func (r *ChunkRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.Chunk) error {
	models := make([]*model.ChunkEmbedding, len(chunks))
	for i, c := range chunks {
		models[i] = r.mapper.ToModel(c)
	}

	if err := r.db.WithContext(ctx).Create(models).Error; err != nil {
		return err
	}

	for i, m := range models {
		*chunks[i] = *r.mapper.ToEntity(m)
	}
	return nil
}

func (r *ChunkRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.ChunkEmbedding{}, id).Error
}

func (r *ChunkRepositoryImpl) DeleteByDocumentId(ctx context.Context, tenantId, documentId uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantId, documentId).
		Delete(&model.ChunkEmbedding{}).Error
}

func (r *ChunkRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Chunk, error) {
	var m model.ChunkEmbedding
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *ChunkRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Chunk, error) {
	var models []*model.ChunkEmbedding
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ChunkRepositoryImpl) Count(ctx context.Context, specs ...specification.Specification) (int64, error) {
	var count int64
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	err := query.Model(&model.ChunkEmbedding{}).Count(&count).Error
	return count, err
}

// SearchSimilarWithScore returns chunks with similarity scores above the
// threshold. Cosine distance in pgvector is 1 - cosine_similarity.
func (r *ChunkRepositoryImpl) SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, tenantId uuid.UUID, threshold float64) ([]*contract.ScoredChunk, error) {
	if limit <= 0 {
		limit = 10
	}

	type result struct {
		model.ChunkEmbedding
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("chunk_embeddings").
		Select("chunk_embeddings.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Where("tenant_id = ?", tenantId).
		Where("deleted_at IS NULL").
		Where("1 - (embedding_value <=> ?) >= ?", queryVector, threshold).
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error

	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredChunk, len(results))
	for i, res := range results {
		scored[i] = &contract.ScoredChunk{
			Chunk:      r.mapper.ToEntity(&res.ChunkEmbedding),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}

// SearchLexical runs postgres full-text search over the chunk text.
func (r *ChunkRepositoryImpl) SearchLexical(ctx context.Context, tenantId uuid.UUID, query string, limit int) ([]contract.LexicalHit, error) {
	if limit <= 0 {
		limit = 10
	}

	type result struct {
		Id    uuid.UUID
		Score float64
	}
	var results []result

	err := r.db.WithContext(ctx).
		Table("chunk_embeddings").
		Select("id, ts_rank_cd(to_tsvector('english', text), plainto_tsquery('english', ?)) as score", query).
		Where("tenant_id = ?", tenantId).
		Where("deleted_at IS NULL").
		Where("to_tsvector('english', text) @@ plainto_tsquery('english', ?)", query).
		Order("score DESC").
		Limit(limit).
		Scan(&results).Error

	if err != nil {
		return nil, err
	}

	hits := make([]contract.LexicalHit, len(results))
	for i, res := range results {
		hits[i] = contract.LexicalHit{ChunkId: res.Id, Score: res.Score}
	}
	return hits, nil
}

func (r *ChunkRepositoryImpl) Neighbors(ctx context.Context, tenantId, documentId uuid.UUID, anchorOrdinal, window int) ([]*entity.Chunk, error) {
	var models []*model.ChunkEmbedding

	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantId, documentId).
		Where("ordinal BETWEEN ? AND ?", anchorOrdinal-window, anchorOrdinal+window).
		Where("ordinal <> ?", anchorOrdinal).
		Order("ordinal ASC").
		Find(&models).Error

	if err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *ChunkRepositoryImpl) LinkedDocuments(ctx context.Context, tenantId uuid.UUID, documentIds []uuid.UUID, max int) ([]uuid.UUID, error) {
	if max <= 0 || len(documentIds) == 0 {
		return nil, nil
	}

	var targets []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&model.DocumentLink{}).
		Distinct("target_document_id").
		Where("tenant_id = ?", tenantId).
		Where("source_document_id IN ?", documentIds).
		Where("target_document_id NOT IN ?", documentIds).
		Order("target_document_id ASC").
		Limit(max).
		Pluck("target_document_id", &targets).Error

	if err != nil {
		return nil, err
	}
	return targets, nil
}

func (r *ChunkRepositoryImpl) TopChunksByDocument(ctx context.Context, tenantId, documentId uuid.UUID, embedding []float32, limit int) ([]*contract.ScoredChunk, error) {
	if limit <= 0 {
		limit = 2
	}

	type result struct {
		model.ChunkEmbedding
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(embedding)

	err := r.db.WithContext(ctx).
		Table("chunk_embeddings").
		Select("chunk_embeddings.*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Where("tenant_id = ? AND document_id = ?", tenantId, documentId).
		Where("deleted_at IS NULL").
		Order("similarity DESC").
		Limit(limit).
		Scan(&results).Error

	if err != nil {
		return nil, err
	}

	scored := make([]*contract.ScoredChunk, len(results))
	for i, res := range results {
		scored[i] = &contract.ScoredChunk{
			Chunk:      r.mapper.ToEntity(&res.ChunkEmbedding),
			Similarity: res.Similarity,
		}
	}
	return scored, nil
}

func (r *ChunkRepositoryImpl) CreateLink(ctx context.Context, link *entity.DocumentLink) error {
	m := &model.DocumentLink{
		Id:               link.Id,
		TenantId:         link.TenantId,
		SourceDocumentId: link.SourceDocumentId,
		TargetDocumentId: link.TargetDocumentId,
		CreatedAt:        link.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	link.Id = m.Id
	link.CreatedAt = m.CreatedAt
	return nil
}
