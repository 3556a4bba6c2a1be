package agent

import (
	"context"
	"strings"

	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// Stage names as they appear in traces and wrapped errors.
const (
	StageRewrite   = "rewrite_agent"
	StageRetrieval = "retrieval_agent"
	StageAnalysis  = "analysis_agent"
	StageAnswer    = "answer_agent"
)

// Source is the tenant-scoped retrieval contract. FetchLexical returns
// raw keyword scores keyed by chunk id; FetchByIDs hydrates those ids
// into candidates.
type Source interface {
	FetchLexical(ctx context.Context, tenantID, query string, limit int) (map[string]float64, error)
	FetchVector(ctx context.Context, tenantID string, queryEmbedding []float32, limit int) ([]store.Candidate, error)
	FetchByIDs(ctx context.Context, tenantID string, chunkIDs []string) ([]store.Candidate, error)
}

// Reranker rescores candidates against the resolved query. Failures and
// timeouts degrade to the un-reranked order upstream.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []store.Candidate) ([]store.Candidate, int64, error)
}

// extractJSON pulls the first balanced-looking JSON object out of a
// model response that may wrap it in prose or fences.
func extractJSON(response string) string {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return response[start : end+1]
}
