package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meownm/ai-rag-sub000/internal/mapper"
	"github.com/meownm/ai-rag-sub000/internal/repository/contract"
	"github.com/meownm/ai-rag-sub000/internal/repository/specification"
	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// RetrievalSource adapts the chunk repository to the contracts the
// retrieval agent and the expansion engine consume. All lookups stay
// tenant-scoped at the SQL layer; ids cross the boundary as strings.
type RetrievalSource struct {
	chunks contract.ChunkRepository
	mapper *mapper.ChunkMapper
}

func NewRetrievalSource(chunks contract.ChunkRepository) *RetrievalSource {
	return &RetrievalSource{
		chunks: chunks,
		mapper: mapper.NewChunkMapper(),
	}
}

func (s *RetrievalSource) FetchVector(ctx context.Context, tenantID string, queryEmbedding []float32, limit int) ([]store.Candidate, error) {
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}

	scored, err := s.chunks.SearchSimilarWithScore(ctx, queryEmbedding, limit, tid, 0.0)
	if err != nil {
		return nil, err
	}

	candidates := make([]store.Candidate, len(scored))
	for i, sc := range scored {
		candidates[i] = s.mapper.ToCandidate(sc.Chunk, sc.Similarity)
	}
	return candidates, nil
}

func (s *RetrievalSource) FetchLexical(ctx context.Context, tenantID, query string, limit int) (map[string]float64, error) {
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}

	hits, err := s.chunks.SearchLexical(ctx, tid, query, limit)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]float64, len(hits))
	for _, hit := range hits {
		scores[hit.ChunkId.String()] = hit.Score
	}
	return scores, nil
}

func (s *RetrievalSource) FetchByIDs(ctx context.Context, tenantID string, chunkIDs []string) ([]store.Candidate, error) {
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(chunkIDs))
	for _, raw := range chunkIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	chunks, err := s.chunks.FindAll(ctx, specification.ByTenant{TenantId: tid}, specification.ByIDs{IDs: ids})
	if err != nil {
		return nil, err
	}

	candidates := make([]store.Candidate, len(chunks))
	for i, c := range chunks {
		candidates[i] = s.mapper.ToCandidate(c, 0.0)
	}
	return candidates, nil
}

func (s *RetrievalSource) Neighbors(ctx context.Context, tenantID, documentID string, anchorOrdinal, window int) ([]store.Candidate, error) {
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	did, err := uuid.Parse(documentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}

	chunks, err := s.chunks.Neighbors(ctx, tid, did, anchorOrdinal, window)
	if err != nil {
		return nil, err
	}

	candidates := make([]store.Candidate, len(chunks))
	for i, c := range chunks {
		candidates[i] = s.mapper.ToCandidate(c, 0.0)
	}
	return candidates, nil
}

func (s *RetrievalSource) LinkedDocuments(ctx context.Context, tenantID string, documentIDs []string, max int) ([]string, error) {
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(documentIDs))
	for _, raw := range documentIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}

	linked, err := s.chunks.LinkedDocuments(ctx, tid, ids, max)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(linked))
	for i, id := range linked {
		out[i] = id.String()
	}
	return out, nil
}

func (s *RetrievalSource) TopChunks(ctx context.Context, tenantID, documentID string, queryEmbedding []float32, limit int) ([]store.Candidate, error) {
	tid, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	did, err := uuid.Parse(documentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}

	scored, err := s.chunks.TopChunksByDocument(ctx, tid, did, queryEmbedding, limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]store.Candidate, len(scored))
	for i, sc := range scored {
		candidates[i] = s.mapper.ToCandidate(sc.Chunk, sc.Similarity)
	}
	return candidates, nil
}
