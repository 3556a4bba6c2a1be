package contract

import (
	"context"

	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/repository/specification"

	"github.com/google/uuid"
)

// ScoredChunk wraps a chunk with its cosine similarity to the query.
type ScoredChunk struct {
	Chunk      *entity.Chunk
	Similarity float64 // 0.0 to 1.0 (1.0 = identical)
}

// LexicalHit is one keyword-search result.
type LexicalHit struct {
	ChunkId uuid.UUID
	Score   float64
}

type ChunkRepository interface {
	Create(ctx context.Context, chunk *entity.Chunk) error
	CreateBulk(ctx context.Context, chunks []*entity.Chunk) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByDocumentId(ctx context.Context, tenantId, documentId uuid.UUID) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Chunk, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Chunk, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)

	// SearchSimilarWithScore runs tenant-scoped vector search, returning
	// chunks with cosine similarity at or above the threshold.
	SearchSimilarWithScore(ctx context.Context, embedding []float32, limit int, tenantId uuid.UUID, threshold float64) ([]*ScoredChunk, error)
	// SearchLexical runs tenant-scoped full-text search.
	SearchLexical(ctx context.Context, tenantId uuid.UUID, query string, limit int) ([]LexicalHit, error)
	// Neighbors returns same-document chunks within the ordinal window
	// around the anchor, excluding the anchor itself.
	Neighbors(ctx context.Context, tenantId, documentId uuid.UUID, anchorOrdinal, window int) ([]*entity.Chunk, error)
	// LinkedDocuments returns documents the given documents link to.
	LinkedDocuments(ctx context.Context, tenantId uuid.UUID, documentIds []uuid.UUID, max int) ([]uuid.UUID, error)
	// TopChunksByDocument returns the document's chunks most similar to
	// the query embedding.
	TopChunksByDocument(ctx context.Context, tenantId, documentId uuid.UUID, embedding []float32, limit int) ([]*ScoredChunk, error)

	CreateLink(ctx context.Context, link *entity.DocumentLink) error
}
