package agent

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/meownm/ai-rag-sub000/pkg/embedding"
	"github.com/meownm/ai-rag-sub000/pkg/rag/fusion"
	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// RetrievalAgent fetches lexical and vector candidates, fuses them, and
// optionally reranks. The reranker is best effort: a failure or timeout
// keeps the fused order.
type RetrievalAgent struct {
	source     Source
	embedder   embedding.EmbeddingProvider
	reranker   Reranker
	fuser      *fusion.Fuser
	topK       int
	rerankWait time.Duration
	boostMax   float64
	logger     *log.Logger
}

// NewRetrievalAgent creates a retrieval agent. reranker may be nil.
func NewRetrievalAgent(source Source, embedder embedding.EmbeddingProvider, reranker Reranker, fuser *fusion.Fuser, topK int, rerankWait time.Duration, boostMax float64, logger *log.Logger) *RetrievalAgent {
	return &RetrievalAgent{
		source:     source,
		embedder:   embedder,
		reranker:   reranker,
		fuser:      fuser,
		topK:       topK,
		rerankWait: rerankWait,
		boostMax:   boostMax,
		logger:     logger,
	}
}

// RetrievalOutcome carries the ranked candidates plus the query
// embedding, which later stages reuse for expansion and topic tracking.
type RetrievalOutcome struct {
	Candidates     []store.Candidate
	QueryEmbedding []float32
	Reranked       bool
	RerankLatency  int64
}

// Run retrieves, fuses, reranks and applies memory boosts. A positive
// topK overrides the configured retrieval depth for this call.
func (a *RetrievalAgent) Run(ctx context.Context, tenantID, query string, topK int, memoryBoosts map[string]float64) (*RetrievalOutcome, error) {
	limit := a.topK
	if topK > 0 {
		limit = topK
	}

	embResp, err := a.embedder.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}
	queryEmbedding := embResp.Embedding.Values

	vectorHits, err := a.source.FetchVector(ctx, tenantID, queryEmbedding, limit)
	if err != nil {
		return nil, fmt.Errorf("vector fetch: %w", err)
	}

	lexicalScores, err := a.source.FetchLexical(ctx, tenantID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical fetch: %w", err)
	}

	merged, err := a.merge(ctx, tenantID, vectorHits, lexicalScores)
	if err != nil {
		return nil, err
	}

	fused := a.fuser.Fuse(merged)
	a.logger.Printf("[RETRIEVAL] %d vector + %d lexical hits fused into %d candidates",
		len(vectorHits), len(lexicalScores), len(fused))

	outcome := &RetrievalOutcome{Candidates: fused, QueryEmbedding: queryEmbedding}

	if a.reranker != nil && len(fused) > 0 {
		outcome.Candidates, outcome.Reranked, outcome.RerankLatency = a.rerank(ctx, query, fused)
	}

	if len(memoryBoosts) > 0 {
		outcome.Candidates = fusion.ApplyAdditiveBoost(outcome.Candidates, "memory_reuse", "chunk used in recent answer", memoryBoosts, a.boostMax)
	}

	return outcome, nil
}

// merge overlays lexical scores on the vector hits and hydrates
// lexical-only ids into full candidates.
func (a *RetrievalAgent) merge(ctx context.Context, tenantID string, vectorHits []store.Candidate, lexicalScores map[string]float64) ([]store.Candidate, error) {
	merged := make([]store.Candidate, len(vectorHits))
	copy(merged, vectorHits)

	seen := make(map[string]bool, len(merged))
	for i := range merged {
		seen[merged[i].ChunkID] = true
		if score, ok := lexicalScores[merged[i].ChunkID]; ok {
			merged[i].LexicalScore = score
		}
	}

	var missing []string
	for chunkID := range lexicalScores {
		if !seen[chunkID] {
			missing = append(missing, chunkID)
		}
	}
	sort.Strings(missing)

	if len(missing) > 0 {
		hydrated, err := a.source.FetchByIDs(ctx, tenantID, missing)
		if err != nil {
			return nil, fmt.Errorf("lexical hydrate: %w", err)
		}
		for _, c := range hydrated {
			c.LexicalScore = lexicalScores[c.ChunkID]
			merged = append(merged, c)
		}
	}

	// Cross-tenant rows never pass this point.
	filtered := merged[:0]
	for _, c := range merged {
		if c.TenantID == tenantID {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// rerank calls the external reranker under its own deadline and refuses
// the result on any failure, keeping the fused order.
func (a *RetrievalAgent) rerank(ctx context.Context, query string, fused []store.Candidate) ([]store.Candidate, bool, int64) {
	rerankCtx, cancel := context.WithTimeout(ctx, a.rerankWait)
	defer cancel()

	rescored, latency, err := a.reranker.Rerank(rerankCtx, query, fused)
	if err != nil {
		a.logger.Printf("[RETRIEVAL] rerank failed, keeping fused order: %v", err)
		return fused, false, 0
	}

	refused := a.fuser.Fuse(rescored)
	a.logger.Printf("[RETRIEVAL] reranked %d candidates in %dms", len(refused), latency)
	return refused, true, latency
}
