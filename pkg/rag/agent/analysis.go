package agent

import (
	"context"
	"log"

	"github.com/meownm/ai-rag-sub000/pkg/rag/budget"
	"github.com/meownm/ai-rag-sub000/pkg/rag/expansion"
	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// AnalysisAgent turns the ranked candidates into the final context set:
// expansion, then budget trimming, plus an evidence-confidence estimate
// that gates answer generation.
type AnalysisAgent struct {
	engine    *expansion.Engine
	assembler *budget.Assembler
	logger    *log.Logger
}

// NewAnalysisAgent creates an analysis agent.
func NewAnalysisAgent(engine *expansion.Engine, assembler *budget.Assembler, logger *log.Logger) *AnalysisAgent {
	return &AnalysisAgent{engine: engine, assembler: assembler, logger: logger}
}

// AnalysisOutcome is the analysis stage's contract with the pipeline.
type AnalysisOutcome struct {
	Context    []store.Candidate
	Confidence float64
	Expansion  store.ExpansionDebugInfo
	Budget     store.BudgetLog
}

// Run expands, trims and scores the evidence.
func (a *AnalysisAgent) Run(ctx context.Context, tenantID string, queryEmbedding []float32, candidates []store.Candidate) (*AnalysisOutcome, error) {
	expanded := a.engine.Expand(ctx, tenantID, queryEmbedding, candidates)

	final, budgetLog := a.assembler.Assemble(expanded.Selected)

	confidence := evidenceConfidence(candidates)
	a.logger.Printf("[ANALYSIS] %d base -> %d expanded -> %d in budget, confidence=%.2f",
		len(candidates), len(expanded.Selected), len(final), confidence)

	return &AnalysisOutcome{
		Context:    final,
		Confidence: confidence,
		Expansion:  expanded.Debug,
		Budget:     budgetLog,
	}, nil
}

// evidenceConfidence averages the top fused scores of the base ranking.
// Normalized scores live in [0,1], so the mean does too; an empty
// ranking means no evidence at all.
func evidenceConfidence(ranked []store.Candidate) float64 {
	if len(ranked) == 0 {
		return 0.0
	}

	n := 3
	if len(ranked) < n {
		n = len(ranked)
	}

	sum := 0.0
	for i := 0; i < n; i++ {
		sum += clamp01(ranked[i].FinalScore)
	}
	return sum / float64(n)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
