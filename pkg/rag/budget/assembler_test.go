package budget

import (
	"fmt"
	"strings"
	"testing"

	"github.com/meownm/ai-rag-sub000/pkg/store"
	"github.com/meownm/ai-rag-sub000/pkg/utils"
)

func TestNewAssemblerRejectsWordMode(t *testing.T) {
	if _, err := NewAssembler(1000, ModeWord); err == nil {
		t.Fatal("expected error for word-count mode")
	}
	if _, err := NewAssembler(0, ModeToken); err == nil {
		t.Fatal("expected error for non-positive budget")
	}
	if _, err := NewAssembler(1000, Mode("lines")); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestAssemblePassThroughWithinBudget(t *testing.T) {
	a, err := NewAssembler(10000, ModeToken)
	if err != nil {
		t.Fatalf("NewAssembler: %v", err)
	}

	candidates := []store.Candidate{
		{ChunkID: "a", Text: "short text", FinalScore: 0.9, Rank: 1},
		{ChunkID: "b", Text: "another short text", FinalScore: 0.8, Rank: 2},
	}

	kept, log := a.Assemble(candidates)
	if len(kept) != 2 {
		t.Fatalf("expected pass-through, got %d candidates", len(kept))
	}
	if log.Truncated || log.ChunksDropped != 0 || log.TokensBefore != log.TokensAfter {
		t.Errorf("unexpected trimming in log: %+v", log)
	}
}

func TestAssembleDropsLowestScoredFirst(t *testing.T) {
	// 10 chunks with strictly decreasing scores; each chunk is the same
	// size, and the budget fits exactly 2.
	text := strings.Repeat("alpha beta gamma delta ", 10)
	perChunk := utils.EstimateTokens(text)

	candidates := make([]store.Candidate, 10)
	for i := range candidates {
		candidates[i] = store.Candidate{
			ChunkID:    fmt.Sprintf("c%02d", i),
			Text:       text,
			FinalScore: 1.0 - float64(i)*0.05,
			Rank:       i + 1,
		}
	}

	a, _ := NewAssembler(perChunk*2, ModeToken)
	kept, log := a.Assemble(candidates)

	if len(kept) != 2 {
		t.Fatalf("expected exactly 2 kept, got %d", len(kept))
	}
	if kept[0].ChunkID != "c00" || kept[1].ChunkID != "c01" {
		t.Errorf("kept wrong chunks: %s, %s", kept[0].ChunkID, kept[1].ChunkID)
	}
	if log.ChunksDropped != 8 {
		t.Errorf("chunks_dropped = %d, want 8", log.ChunksDropped)
	}
	if !log.Truncated {
		t.Error("expected truncated flag")
	}
	if log.TokensAfter > perChunk*2 {
		t.Errorf("output exceeds budget: %d > %d", log.TokensAfter, perChunk*2)
	}
	if log.TokensBefore-log.TokensDropped != log.TokensAfter {
		t.Errorf("token accounting inconsistent: %+v", log)
	}
}

func TestAssembleTieBreaksByWorstRankThenID(t *testing.T) {
	text := strings.Repeat("word ", 40)
	perChunk := utils.EstimateTokens(text)

	candidates := []store.Candidate{
		{ChunkID: "bb", Text: text, FinalScore: 0.5, Rank: 1},
		{ChunkID: "aa", Text: text, FinalScore: 0.5, Rank: 3},
		{ChunkID: "cc", Text: text, FinalScore: 0.5, Rank: 2},
	}

	a, _ := NewAssembler(perChunk*2, ModeToken)
	kept, _ := a.Assemble(candidates)

	// Rank 3 is the worst position, so "aa" goes first despite its id.
	for _, c := range kept {
		if c.ChunkID == "aa" {
			t.Error("expected worst-ranked candidate to be dropped first")
		}
	}

	// Same score, same rank: larger id drops first.
	equal := []store.Candidate{
		{ChunkID: "x2", Text: text, FinalScore: 0.5, Rank: 1},
		{ChunkID: "x1", Text: text, FinalScore: 0.5, Rank: 1},
	}
	a2, _ := NewAssembler(perChunk, ModeToken)
	kept2, _ := a2.Assemble(equal)
	if len(kept2) != 1 || kept2[0].ChunkID != "x1" {
		t.Errorf("expected x1 kept on id tie-break, got %+v", kept2)
	}
}

func TestAssembleNeverExceedsBudget(t *testing.T) {
	a, _ := NewAssembler(30, ModeToken)

	candidates := []store.Candidate{
		{ChunkID: "a", Text: strings.Repeat("tok ", 20), FinalScore: 0.9, Rank: 1},
		{ChunkID: "b", Text: strings.Repeat("tok ", 20), FinalScore: 0.8, Rank: 2},
		{ChunkID: "c", Text: strings.Repeat("tok ", 20), FinalScore: 0.7, Rank: 3},
	}

	kept, log := a.Assemble(candidates)
	total := 0
	for _, c := range kept {
		total += utils.EstimateTokens(c.Text)
	}
	if total > 30 {
		t.Errorf("assembled total %d exceeds budget 30", total)
	}
	if total != log.TokensAfter {
		t.Errorf("log.TokensAfter=%d disagrees with recomputed %d", log.TokensAfter, total)
	}
}
