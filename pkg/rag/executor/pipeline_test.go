package executor

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meownm/ai-rag-sub000/pkg/embedding"
	"github.com/meownm/ai-rag-sub000/pkg/llm"
	"github.com/meownm/ai-rag-sub000/pkg/rag/agent"
	"github.com/meownm/ai-rag-sub000/pkg/rag/budget"
	"github.com/meownm/ai-rag-sub000/pkg/rag/expansion"
	"github.com/meownm/ai-rag-sub000/pkg/rag/fusion"
	"github.com/meownm/ai-rag-sub000/pkg/rag/grounding"
	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// scriptedLLM returns queued responses in call order.
type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedLLM) Chat(_ context.Context, _ []llm.Message, _ ...llm.Option) (string, error) {
	return s.next()
}

func (s *scriptedLLM) Generate(_ context.Context, _ string, _ ...llm.Option) (string, error) {
	return s.next()
}

func (s *scriptedLLM) next() (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("scriptedLLM: no response queued")
}

type stubEmbedder struct{}

func (stubEmbedder) Generate(_ string, _ string) (*embedding.EmbeddingResponse, error) {
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{1, 0, 0}},
	}, nil
}

type stubSource struct{}

func (stubSource) FetchVector(_ context.Context, tenantID string, _ []float32, _ int) ([]store.Candidate, error) {
	return []store.Candidate{
		{ChunkID: "c1", DocumentID: "d1", TenantID: tenantID, Ordinal: 1, Text: "The deployment pipeline runs every night at two.", VectorScore: 0.9, Embedding: []float32{1, 0, 0}},
		{ChunkID: "c2", DocumentID: "d1", TenantID: tenantID, Ordinal: 2, Text: "Artifacts are published to the registry after the run.", VectorScore: 0.5, Embedding: []float32{0, 1, 0}},
		{ChunkID: "c3", DocumentID: "d2", TenantID: tenantID, Ordinal: 1, Text: "Rollbacks are triggered manually from the dashboard.", VectorScore: 0.1, Embedding: []float32{0, 0, 1}},
	}, nil
}

func (stubSource) FetchLexical(_ context.Context, _, _ string, _ int) (map[string]float64, error) {
	return map[string]float64{"c1": 3, "c2": 2, "c3": 1}, nil
}

func (stubSource) FetchByIDs(_ context.Context, _ string, _ []string) ([]store.Candidate, error) {
	return nil, nil
}

const rewriteOK = `{"resolved_query": "when does the deployment pipeline run", "clarification_needed": false, "clarification_question": "", "confidence": 0.9}`
const rewriteClarify = `{"resolved_query": "it", "clarification_needed": true, "clarification_question": "Which pipeline do you mean?", "confidence": 0.2}`
const answerOK = `{"answer": "The deployment pipeline runs every night at two.", "citations": [{"chunk_id": "c1", "document_id": "d1", "snippet": "runs every night"}]}`

func newTestExecutor(t *testing.T, scripted *scriptedLLM, cfg Config) *PipelineExecutor {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	fuser, err := fusion.NewFuser(fusion.DefaultConfig())
	require.NoError(t, err)

	expCfg := expansion.DefaultConfig()
	expCfg.Mode = expansion.ModeOff
	engine := expansion.NewEngine(expCfg, nil, logger)

	assembler, err := budget.NewAssembler(4000, budget.ModeToken)
	require.NoError(t, err)

	return NewPipelineExecutor(
		agent.NewRewriteAgent(scripted, logger),
		agent.NewRetrievalAgent(stubSource{}, stubEmbedder{}, nil, fuser, 10, time.Second, 0.05, logger),
		agent.NewAnalysisAgent(engine, assembler, logger),
		agent.NewAnswerAgent(scripted, logger),
		grounding.NewVerifier(grounding.DefaultConfig(), logger),
		cfg,
		logger,
	)
}

func TestExecuteClarificationWithinDepthReturnsPass(t *testing.T) {
	scripted := &scriptedLLM{responses: []string{rewriteClarify}}
	exec := newTestExecutor(t, scripted, DefaultConfig())

	// Depth exactly at the maximum still permits one more clarification.
	result, err := exec.Execute(context.Background(), Request{
		TenantID:           "t1",
		Query:              "what about it?",
		ClarificationDepth: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, store.VerdictPass, result.Verdict)
	assert.True(t, result.ClarificationNeeded)
	assert.Equal(t, "Which pipeline do you mean?", result.ClarificationQuestion)
	require.Len(t, result.Traces, 1)
	assert.Equal(t, agent.StageRewrite, result.Traces[0].Stage)
}

func TestExecuteClarificationPastDepthFallsBack(t *testing.T) {
	scripted := &scriptedLLM{responses: []string{rewriteClarify}}
	exec := newTestExecutor(t, scripted, DefaultConfig())

	result, err := exec.Execute(context.Background(), Request{
		TenantID:           "t1",
		Query:              "what about it?",
		ClarificationDepth: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, store.VerdictFail, result.Verdict)
	assert.Equal(t, store.FallbackClarificationDepthExceeded, result.FallbackReason)
	assert.False(t, result.ClarificationNeeded)
	assert.NotEmpty(t, result.Answer)
}

func TestExecuteLowConfidenceSkipsGeneration(t *testing.T) {
	scripted := &scriptedLLM{responses: []string{rewriteOK, answerOK}}
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.99
	exec := newTestExecutor(t, scripted, cfg)

	result, err := exec.Execute(context.Background(), Request{TenantID: "t1", Query: "pipeline schedule?"})
	require.NoError(t, err)

	assert.Equal(t, store.VerdictFail, result.Verdict)
	assert.Equal(t, store.FallbackLowConfidence, result.FallbackReason)
	assert.Len(t, result.Traces, 3, "answer stage must not run")
	assert.Equal(t, 1, scripted.calls, "generation must not be called")
}

func TestExecuteHappyPath(t *testing.T) {
	scripted := &scriptedLLM{responses: []string{rewriteOK, answerOK}}
	exec := newTestExecutor(t, scripted, DefaultConfig())

	result, err := exec.Execute(context.Background(), Request{
		TenantID:           "t1",
		Query:              "when does the pipeline run?",
		CitationsRequested: true,
	})
	require.NoError(t, err)

	assert.Equal(t, store.VerdictPass, result.Verdict)
	assert.Equal(t, "The deployment pipeline runs every night at two.", result.Answer)
	assert.Empty(t, result.FallbackReason)
	require.Len(t, result.Traces, 4)
	wantStages := []string{agent.StageRewrite, agent.StageRetrieval, agent.StageAnalysis, agent.StageAnswer}
	for i, stage := range wantStages {
		assert.Equal(t, stage, result.Traces[i].Stage)
	}
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "c1", result.Citations[0].ChunkID)
	assert.NotEmpty(t, result.Candidates)
}

func TestExecuteUngroundedAnswerRefused(t *testing.T) {
	hallucinated := `{"answer": "Giraffes migrate across the savanna during winter solstice.", "citations": []}`
	scripted := &scriptedLLM{responses: []string{rewriteOK, hallucinated}}
	exec := newTestExecutor(t, scripted, DefaultConfig())

	result, err := exec.Execute(context.Background(), Request{TenantID: "t1", Query: "pipeline schedule?"})
	require.NoError(t, err)

	assert.Equal(t, store.VerdictFail, result.Verdict)
	assert.Equal(t, store.FallbackGroundingRefused, result.FallbackReason)
}

func TestExecuteWrapsStageErrors(t *testing.T) {
	scripted := &scriptedLLM{errs: []error{errors.New("backend unreachable")}}
	exec := newTestExecutor(t, scripted, DefaultConfig())

	_, err := exec.Execute(context.Background(), Request{TenantID: "t1", Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), agent.StageRewrite)
}

func TestExecuteRejectsContractViolations(t *testing.T) {
	bad := `{"resolved_query": "q", "clarification_needed": false, "confidence": 1.5}`
	scripted := &scriptedLLM{responses: []string{bad}}
	exec := newTestExecutor(t, scripted, DefaultConfig())

	_, err := exec.Execute(context.Background(), Request{TenantID: "t1", Query: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract violation")
}
