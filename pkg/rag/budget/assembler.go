package budget

import (
	"fmt"

	"github.com/meownm/ai-rag-sub000/pkg/store"
	"github.com/meownm/ai-rag-sub000/pkg/utils"
)

// Mode selects the accounting unit. Only token-accurate budgeting is
// supported: generation downstream has a fixed context window, so the
// legacy word-count mode is rejected at construction.
type Mode string

const (
	ModeToken Mode = "token"
	// ModeWord is the retired word-count accounting. Kept only so callers
	// asking for it get a loud error instead of silent token drift.
	ModeWord Mode = "word"
)

// Assembler trims an ordered candidate list to a token budget. Assemble
// is pure and side-effect free; safe for concurrent use.
type Assembler struct {
	maxTokens int
}

// NewAssembler validates the budget and mode.
func NewAssembler(maxTokens int, mode Mode) (*Assembler, error) {
	if mode == ModeWord {
		return nil, fmt.Errorf("word-count budgeting is disabled: token-accurate budgeting is required")
	}
	if mode != ModeToken {
		return nil, fmt.Errorf("unknown budget mode %q", mode)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("token budget must be positive, got %d", maxTokens)
	}
	return &Assembler{maxTokens: maxTokens}, nil
}

// Assemble passes the list through unchanged when it fits the budget.
// When over budget it repeatedly drops the lowest-scored candidate (ties
// broken by worst rank position, then by chunk id) until the total fits,
// preserving the input order of the survivors.
func (a *Assembler) Assemble(candidates []store.Candidate) ([]store.Candidate, store.BudgetLog) {
	kept := make([]store.Candidate, len(candidates))
	copy(kept, candidates)

	tokens := make(map[string]int, len(kept))
	total := 0
	for _, c := range kept {
		est := utils.EstimateTokens(c.Text)
		tokens[c.ChunkID] = est
		total += est
	}

	log := store.BudgetLog{TokensBefore: total, TokensAfter: total}
	if total <= a.maxTokens {
		return kept, log
	}

	for total > a.maxTokens && len(kept) > 0 {
		drop := 0
		for i := 1; i < len(kept); i++ {
			if worseThan(kept[i], kept[drop]) {
				drop = i
			}
		}
		total -= tokens[kept[drop].ChunkID]
		kept = append(kept[:drop], kept[drop+1:]...)
		log.ChunksDropped++
	}

	log.TokensAfter = total
	log.TokensDropped = log.TokensBefore - total
	log.Truncated = log.ChunksDropped > 0
	return kept, log
}

// worseThan reports whether a should be dropped before b.
func worseThan(a, b store.Candidate) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore < b.FinalScore
	}
	if a.Rank != b.Rank {
		return a.Rank > b.Rank
	}
	return a.ChunkID > b.ChunkID
}
