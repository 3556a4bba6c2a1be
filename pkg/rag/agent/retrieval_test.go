package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meownm/ai-rag-sub000/pkg/embedding"
	"github.com/meownm/ai-rag-sub000/pkg/rag/fusion"
	"github.com/meownm/ai-rag-sub000/pkg/store"
)

type fixedEmbedder struct{}

func (fixedEmbedder) Generate(_ string, _ string) (*embedding.EmbeddingResponse, error) {
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{1, 0, 0}},
	}, nil
}

// recordingSource captures the limits passed to each fetch.
type recordingSource struct {
	vectorLimit  int
	lexicalLimit int
}

func (r *recordingSource) FetchVector(_ context.Context, tenantID string, _ []float32, limit int) ([]store.Candidate, error) {
	r.vectorLimit = limit
	return []store.Candidate{
		{ChunkID: "c1", DocumentID: "d1", TenantID: tenantID, VectorScore: 0.8},
	}, nil
}

func (r *recordingSource) FetchLexical(_ context.Context, _, _ string, limit int) (map[string]float64, error) {
	r.lexicalLimit = limit
	return map[string]float64{"c1": 2}, nil
}

func (r *recordingSource) FetchByIDs(_ context.Context, _ string, _ []string) ([]store.Candidate, error) {
	return nil, nil
}

func newRetrievalFixture(t *testing.T, configuredTopK int) (*RetrievalAgent, *recordingSource) {
	t.Helper()
	fuser, err := fusion.NewFuser(fusion.DefaultConfig())
	require.NoError(t, err)

	source := &recordingSource{}
	return NewRetrievalAgent(source, fixedEmbedder{}, nil, fuser, configuredTopK, 0, 0.05, testLogger()), source
}

func TestRetrievalRequestTopKOverridesConfigured(t *testing.T) {
	a, source := newRetrievalFixture(t, 10)

	_, err := a.Run(context.Background(), "t1", "pipeline schedule", 3, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, source.vectorLimit)
	assert.Equal(t, 3, source.lexicalLimit)
}

func TestRetrievalZeroTopKKeepsConfigured(t *testing.T) {
	a, source := newRetrievalFixture(t, 10)

	_, err := a.Run(context.Background(), "t1", "pipeline schedule", 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 10, source.vectorLimit)
	assert.Equal(t, 10, source.lexicalLimit)
}
