package agent

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meownm/ai-rag-sub000/pkg/llm"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, _ ...llm.Option) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.response, f.err
}

func (f *fakeLLM) Chat(ctx context.Context, _ []llm.Message, options ...llm.Option) (string, error) {
	return f.Generate(ctx, "", options...)
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestRewriteParsesModelResponse(t *testing.T) {
	provider := &fakeLLM{response: `Here you go:
{"resolved_query": "restart the ingest worker", "clarification_needed": false, "confidence": 0.85}`}
	a := NewRewriteAgent(provider, testLogger())

	out, err := a.Run(context.Background(), "how do I restart it?", "", []llm.Message{
		{Role: "user", Content: "tell me about the ingest worker"},
	})
	require.NoError(t, err)

	assert.Equal(t, "restart the ingest worker", out.ResolvedQuery)
	assert.False(t, out.ClarificationNeeded)
	assert.InDelta(t, 0.85, out.Confidence, 1e-9)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "tell me about the ingest worker")
	assert.Contains(t, provider.prompts[0], "how do I restart it?")
}

func TestRewriteSummaryIncludedInPrompt(t *testing.T) {
	provider := &fakeLLM{response: `{"resolved_query": "q", "confidence": 0.9}`}
	a := NewRewriteAgent(provider, testLogger())

	_, err := a.Run(context.Background(), "q", "earlier we discussed index rebuilds", nil)
	require.NoError(t, err)
	assert.Contains(t, provider.prompts[0], "earlier we discussed index rebuilds")
}

func TestRewriteMalformedResponseFallsBack(t *testing.T) {
	provider := &fakeLLM{response: "I cannot produce JSON today."}
	a := NewRewriteAgent(provider, testLogger())

	out, err := a.Run(context.Background(), "original question", "", nil)
	require.NoError(t, err)

	assert.Equal(t, "original question", out.ResolvedQuery)
	assert.InDelta(t, 0.4, out.Confidence, 1e-9)
	assert.False(t, out.ClarificationNeeded)
}

func TestRewriteEmptyResolvedQueryFallsBack(t *testing.T) {
	provider := &fakeLLM{response: `{"resolved_query": "  ", "confidence": 0.7}`}
	a := NewRewriteAgent(provider, testLogger())

	out, err := a.Run(context.Background(), "original question", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "original question", out.ResolvedQuery)
}

func TestRewriteProviderErrorIsStageError(t *testing.T) {
	provider := &fakeLLM{err: errors.New("connection refused")}
	a := NewRewriteAgent(provider, testLogger())

	_, err := a.Run(context.Background(), "q", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rewrite generation")
}

func TestAnswerParsesCitations(t *testing.T) {
	provider := &fakeLLM{response: `{"answer": "Restart via the control plane.", "citations": [{"chunk_id": "c9", "document_id": "d2", "snippet": "control plane"}]}`}
	a := NewAnswerAgent(provider, testLogger())

	out, err := a.Run(context.Background(), "how?", nil, true)
	require.NoError(t, err)

	assert.Equal(t, "Restart via the control plane.", out.Answer)
	require.Len(t, out.Citations, 1)
	assert.Equal(t, "c9", out.Citations[0].ChunkID)
	assert.Equal(t, "d2", out.Citations[0].DocumentID)
}

func TestAnswerMalformedResponseKeepsRawText(t *testing.T) {
	provider := &fakeLLM{response: "  The worker restarts automatically.  "}
	a := NewAnswerAgent(provider, testLogger())

	out, err := a.Run(context.Background(), "how?", nil, false)
	require.NoError(t, err)

	assert.Equal(t, "The worker restarts automatically.", out.Answer)
	assert.Empty(t, out.Citations)
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a": 1}`, `{"a": 1}`},
		{"prose before {\"a\": 1} prose after", `{"a": 1}`},
		{"no json at all", ""},
		{"closed before open } {", ""},
	}
	for _, tc := range cases {
		got := extractJSON(tc.in)
		if !strings.HasPrefix(got, tc.want) || got != tc.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
