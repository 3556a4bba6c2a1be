package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/meownm/ai-rag-sub000/pkg/llm"
	"github.com/meownm/ai-rag-sub000/pkg/rag/agent"
	"github.com/meownm/ai-rag-sub000/pkg/rag/grounding"
	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// Config holds the pipeline guard parameters. Validated at startup by
// the application config.
type Config struct {
	MaxClarificationDepth int
	MinConfidence         float64
	Debug                 bool
}

// DefaultConfig returns the default pipeline parameters.
func DefaultConfig() Config {
	return Config{
		MaxClarificationDepth: 2,
		MinConfidence:         0.35,
		Debug:                 false,
	}
}

// Request is one query execution. ClarificationDepth is tracked by the
// caller per conversation and fed back in on each clarification round.
type Request struct {
	TenantID           string
	Query              string
	ConversationID     string
	// TopK overrides the configured retrieval depth; zero keeps it.
	TopK               int
	CitationsRequested bool
	ClarificationDepth int
	Summary            string
	History            []llm.Message
	MemoryBoosts       map[string]float64
}

// PipelineExecutor runs the strictly ordered rewrite -> retrieval ->
// analysis -> answer pipeline with two early-exit guards. Business
// outcomes (clarification, fallback, grounding refusal) come back as a
// PipelineResult; raised errors are infrastructure failures wrapped
// with the failing stage's name.
type PipelineExecutor struct {
	rewriter  *agent.RewriteAgent
	retriever *agent.RetrievalAgent
	analyzer  *agent.AnalysisAgent
	answerer  *agent.AnswerAgent
	verifier  *grounding.Verifier
	cfg       Config
	logger    *log.Logger
}

// NewPipelineExecutor creates a pipeline executor.
func NewPipelineExecutor(
	rewriter *agent.RewriteAgent,
	retriever *agent.RetrievalAgent,
	analyzer *agent.AnalysisAgent,
	answerer *agent.AnswerAgent,
	verifier *grounding.Verifier,
	cfg Config,
	logger *log.Logger,
) *PipelineExecutor {
	return &PipelineExecutor{
		rewriter:  rewriter,
		retriever: retriever,
		analyzer:  analyzer,
		answerer:  answerer,
		verifier:  verifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// Execute runs the full pipeline for one request.
func (p *PipelineExecutor) Execute(ctx context.Context, req Request) (*store.PipelineResult, error) {
	var traces []store.AgentStageTrace

	p.logger.Printf("[PIPELINE] tenant=%s depth=%d query=%q", req.TenantID, req.ClarificationDepth, truncate(req.Query, 50))

	// Stage 1: rewrite.
	started := time.Now()
	rewrite, err := p.rewriter.Run(ctx, req.Query, req.Summary, req.History)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", agent.StageRewrite, err)
	}
	if rewrite.ResolvedQuery == "" {
		return nil, fmt.Errorf("%s: contract violation: empty resolved query", agent.StageRewrite)
	}
	if rewrite.Confidence < 0 || rewrite.Confidence > 1 {
		return nil, fmt.Errorf("%s: contract violation: confidence %.2f outside [0,1]", agent.StageRewrite, rewrite.Confidence)
	}
	traces = p.appendTrace(traces, agent.StageRewrite, started, rewrite)

	// Clarification guard. Depth exactly at the maximum still permits one
	// more round; past it the pipeline falls back instead of looping.
	if rewrite.ClarificationNeeded {
		if req.ClarificationDepth <= p.cfg.MaxClarificationDepth {
			p.logger.Printf("[PIPELINE] clarification requested at depth %d", req.ClarificationDepth)
			return &store.PipelineResult{
				Verdict:               store.VerdictPass,
				Confidence:            rewrite.Confidence,
				ClarificationNeeded:   true,
				ClarificationQuestion: rewrite.ClarificationQuestion,
				Traces:                traces,
			}, nil
		}
		p.logger.Printf("[PIPELINE] clarification depth %d exceeds max %d, falling back", req.ClarificationDepth, p.cfg.MaxClarificationDepth)
		return &store.PipelineResult{
			Answer:         "I could not narrow down your question. Please rephrase it with more detail.",
			Verdict:        store.VerdictFail,
			Confidence:     rewrite.Confidence,
			FallbackReason: store.FallbackClarificationDepthExceeded,
			Traces:         traces,
		}, nil
	}

	// Stage 2: retrieval.
	started = time.Now()
	retrieval, err := p.retriever.Run(ctx, req.TenantID, rewrite.ResolvedQuery, req.TopK, req.MemoryBoosts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", agent.StageRetrieval, err)
	}
	traces = p.appendTrace(traces, agent.StageRetrieval, started, map[string]interface{}{
		"candidates": len(retrieval.Candidates),
		"reranked":   retrieval.Reranked,
	})

	// Stage 3: analysis.
	started = time.Now()
	analysis, err := p.analyzer.Run(ctx, req.TenantID, retrieval.QueryEmbedding, retrieval.Candidates)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", agent.StageAnalysis, err)
	}
	if analysis.Confidence < 0 || analysis.Confidence > 1 {
		return nil, fmt.Errorf("%s: contract violation: confidence %.2f outside [0,1]", agent.StageAnalysis, analysis.Confidence)
	}
	traces = p.appendTrace(traces, agent.StageAnalysis, started, map[string]interface{}{
		"expansion": analysis.Expansion,
		"budget":    analysis.Budget,
	})

	// Confidence guard: weak evidence never reaches generation.
	if analysis.Confidence < p.cfg.MinConfidence {
		p.logger.Printf("[PIPELINE] confidence %.2f below %.2f, skipping generation", analysis.Confidence, p.cfg.MinConfidence)
		return &store.PipelineResult{
			Answer:         "I do not have enough supporting material to answer that reliably.",
			Verdict:        store.VerdictFail,
			Candidates:     analysis.Context,
			Confidence:     analysis.Confidence,
			FallbackReason: store.FallbackLowConfidence,
			Traces:         traces,
		}, nil
	}

	// Stage 4: answer.
	started = time.Now()
	answer, err := p.answerer.Run(ctx, rewrite.ResolvedQuery, analysis.Context, req.CitationsRequested)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", agent.StageAnswer, err)
	}
	traces = p.appendTrace(traces, agent.StageAnswer, started, map[string]interface{}{
		"citations": len(answer.Citations),
	})

	report := p.verifier.Verify(answer.Answer, analysis.Context, answer.Citations, req.CitationsRequested)
	if report.Refused {
		return &store.PipelineResult{
			Answer:         "I cannot answer that from the available material: " + report.RefusalReason,
			Verdict:        store.VerdictFail,
			Candidates:     analysis.Context,
			Confidence:     analysis.Confidence,
			FallbackReason: store.FallbackGroundingRefused,
			Citations:      report.ValidCitations,
			Traces:         traces,
		}, nil
	}

	return &store.PipelineResult{
		Answer:     answer.Answer,
		Verdict:    store.VerdictPass,
		Candidates: analysis.Context,
		Confidence: analysis.Confidence,
		Citations:  report.ValidCitations,
		Traces:     traces,
	}, nil
}

// appendTrace records one stage execution. Debug payloads are only
// serialized when the debug flag is on.
func (p *PipelineExecutor) appendTrace(traces []store.AgentStageTrace, stage string, started time.Time, debugPayload interface{}) []store.AgentStageTrace {
	trace := store.AgentStageTrace{
		Stage:     stage,
		LatencyMs: time.Since(started).Milliseconds(),
	}
	if p.cfg.Debug && debugPayload != nil {
		if raw, err := json.Marshal(debugPayload); err == nil {
			trace.Debug = string(raw)
		}
	}
	return append(traces, trace)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
