package fusion

import (
	"fmt"
	"math"
	"sort"

	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// Config holds the fusion weights. Weights are validated once at
// construction: a misconfigured pair is a startup failure, never a
// per-query error.
type Config struct {
	VectorWeight  float64
	LexicalWeight float64
	// RerankWeight is blended on top of the primary two, only for
	// candidates that actually carry a rerank score.
	RerankWeight float64
	Normalize    bool
}

// DefaultConfig returns the default fusion configuration.
func DefaultConfig() Config {
	return Config{
		VectorWeight:  0.7,
		LexicalWeight: 0.3,
		RerankWeight:  0.25,
		Normalize:     true,
	}
}

// Fuser combines lexical, vector and rerank signals into one ranking.
// Fuse is a pure function over its inputs and is safe for concurrent use.
type Fuser struct {
	cfg Config
}

// NewFuser validates the weight pair and returns a fuser.
func NewFuser(cfg Config) (*Fuser, error) {
	if cfg.VectorWeight < 0 || cfg.VectorWeight > 1 {
		return nil, fmt.Errorf("vector weight %.3f out of [0,1]", cfg.VectorWeight)
	}
	if cfg.LexicalWeight < 0 || cfg.LexicalWeight > 1 {
		return nil, fmt.Errorf("lexical weight %.3f out of [0,1]", cfg.LexicalWeight)
	}
	if sum := cfg.VectorWeight + cfg.LexicalWeight; math.Abs(sum-1.0) > 1e-6 {
		return nil, fmt.Errorf("vector+lexical weights must sum to 1.0, got %.3f", sum)
	}
	if cfg.RerankWeight < 0 {
		return nil, fmt.Errorf("rerank weight %.3f must be non-negative", cfg.RerankWeight)
	}
	return &Fuser{cfg: cfg}, nil
}

// Fuse deduplicates, normalizes, scores, sorts and ranks the candidate
// set. Ties on final score break by chunk id ascending so the output is
// fully deterministic for identical inputs.
func (f *Fuser) Fuse(candidates []store.Candidate) []store.Candidate {
	if len(candidates) == 0 {
		return []store.Candidate{}
	}

	// Dedupe by chunk id, keeping the first occurrence in input order.
	seen := make(map[string]bool, len(candidates))
	fused := make([]store.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.ChunkID] {
			continue
		}
		seen[c.ChunkID] = true
		fused = append(fused, c)
	}

	if f.cfg.Normalize {
		normLexical := minMaxNormalize(fused, func(c store.Candidate) float64 { return c.LexicalScore })
		normVector := minMaxNormalize(fused, func(c store.Candidate) float64 { return c.VectorScore })
		normRerank := minMaxNormalize(fused, func(c store.Candidate) float64 { return c.RerankScore })
		for i := range fused {
			fused[i].NormLexical = normLexical[i]
			fused[i].NormVector = normVector[i]
			fused[i].NormRerank = normRerank[i]
		}
	} else {
		for i := range fused {
			fused[i].NormLexical = fused[i].LexicalScore
			fused[i].NormVector = fused[i].VectorScore
			fused[i].NormRerank = fused[i].RerankScore
		}
	}

	for i := range fused {
		score := f.cfg.VectorWeight*fused[i].NormVector + f.cfg.LexicalWeight*fused[i].NormLexical
		if fused[i].RerankScore != 0 {
			score += f.cfg.RerankWeight * fused[i].NormRerank
		}
		fused[i].FinalScore = score
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].FinalScore != fused[j].FinalScore {
			return fused[i].FinalScore > fused[j].FinalScore
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})

	for i := range fused {
		fused[i].Rank = i + 1
	}

	return fused
}

// minMaxNormalize maps scores into [0,1] across the set. When every value
// is equal the normalized value is defined as 1.0 for all candidates.
func minMaxNormalize(candidates []store.Candidate, value func(store.Candidate) float64) []float64 {
	out := make([]float64, len(candidates))
	if len(candidates) == 0 {
		return out
	}

	min, max := value(candidates[0]), value(candidates[0])
	for _, c := range candidates[1:] {
		v := value(c)
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}

	for i, c := range candidates {
		out[i] = (value(c) - min) / (max - min)
	}
	return out
}
