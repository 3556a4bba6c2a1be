package fusion

import (
	"math"
	"testing"

	"github.com/meownm/ai-rag-sub000/pkg/store"
)

func TestNewFuserValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid default", DefaultConfig(), false},
		{"weights do not sum to 1", Config{VectorWeight: 0.7, LexicalWeight: 0.7}, true},
		{"negative weight", Config{VectorWeight: -0.1, LexicalWeight: 1.1}, true},
		{"weight above 1", Config{VectorWeight: 1.2, LexicalWeight: -0.2}, true},
		{"negative rerank weight", Config{VectorWeight: 0.5, LexicalWeight: 0.5, RerankWeight: -1}, true},
		{"even split", Config{VectorWeight: 0.5, LexicalWeight: 0.5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFuser(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFuser() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFuseWeightedFormula(t *testing.T) {
	f, err := NewFuser(Config{VectorWeight: 0.7, LexicalWeight: 0.3, RerankWeight: 0.25, Normalize: true})
	if err != nil {
		t.Fatalf("NewFuser: %v", err)
	}

	candidates := []store.Candidate{
		{ChunkID: "a", LexicalScore: 0.2, VectorScore: 0.8},
		{ChunkID: "b", LexicalScore: 0.6, VectorScore: 0.2},
	}

	fused := f.Fuse(candidates)

	// With min-max over two values: a has norm_vec=1, norm_lex=0.
	wantA := 0.7*1.0 + 0.3*0.0
	wantB := 0.7*0.0 + 0.3*1.0

	byID := map[string]store.Candidate{}
	for _, c := range fused {
		byID[c.ChunkID] = c
	}

	if math.Abs(byID["a"].FinalScore-wantA) > 1e-9 {
		t.Errorf("final_score(a) = %f, want %f", byID["a"].FinalScore, wantA)
	}
	if math.Abs(byID["b"].FinalScore-wantB) > 1e-9 {
		t.Errorf("final_score(b) = %f, want %f", byID["b"].FinalScore, wantB)
	}
	if fused[0].ChunkID != "a" || fused[0].Rank != 1 {
		t.Errorf("expected a at rank 1, got %s at rank %d", fused[0].ChunkID, fused[0].Rank)
	}
}

func TestFuseIdempotent(t *testing.T) {
	f, _ := NewFuser(DefaultConfig())

	candidates := []store.Candidate{
		{ChunkID: "c3", LexicalScore: 0.1, VectorScore: 0.9, RerankScore: 0.4},
		{ChunkID: "c1", LexicalScore: 0.5, VectorScore: 0.5, RerankScore: 0.2},
		{ChunkID: "c2", LexicalScore: 0.9, VectorScore: 0.1, RerankScore: 0.9},
	}

	first := f.Fuse(candidates)
	second := f.Fuse(candidates)

	if len(first) != len(second) {
		t.Fatalf("length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ChunkID != second[i].ChunkID || first[i].Rank != second[i].Rank {
			t.Errorf("position %d differs: %s/%d vs %s/%d",
				i, first[i].ChunkID, first[i].Rank, second[i].ChunkID, second[i].Rank)
		}
		if first[i].FinalScore != second[i].FinalScore {
			t.Errorf("score at %d differs: %f vs %f", i, first[i].FinalScore, second[i].FinalScore)
		}
	}
}

func TestFuseAllEqualNormalizesToOne(t *testing.T) {
	f, _ := NewFuser(DefaultConfig())

	candidates := []store.Candidate{
		{ChunkID: "x", LexicalScore: 0.42, VectorScore: 0.42},
		{ChunkID: "y", LexicalScore: 0.42, VectorScore: 0.42},
		{ChunkID: "z", LexicalScore: 0.42, VectorScore: 0.42},
	}

	fused := f.Fuse(candidates)
	for _, c := range fused {
		if c.NormLexical != 1.0 || c.NormVector != 1.0 {
			t.Errorf("candidate %s: norm lexical=%f vector=%f, want 1.0/1.0", c.ChunkID, c.NormLexical, c.NormVector)
		}
		if math.IsNaN(c.FinalScore) {
			t.Errorf("candidate %s: final score is NaN", c.ChunkID)
		}
	}
}

func TestFuseTieBreakByChunkID(t *testing.T) {
	f, _ := NewFuser(DefaultConfig())

	// Equal scores everywhere: ordering must fall back to id ascending,
	// regardless of insertion order.
	candidates := []store.Candidate{
		{ChunkID: "zz", LexicalScore: 0.5, VectorScore: 0.5},
		{ChunkID: "aa", LexicalScore: 0.5, VectorScore: 0.5},
		{ChunkID: "mm", LexicalScore: 0.5, VectorScore: 0.5},
	}

	fused := f.Fuse(candidates)
	want := []string{"aa", "mm", "zz"}
	for i, id := range want {
		if fused[i].ChunkID != id {
			t.Errorf("position %d: got %s, want %s", i, fused[i].ChunkID, id)
		}
	}
}

func TestFuseDedupeKeepsFirst(t *testing.T) {
	f, _ := NewFuser(DefaultConfig())

	candidates := []store.Candidate{
		{ChunkID: "dup", LexicalScore: 0.9, VectorScore: 0.9, Text: "first"},
		{ChunkID: "dup", LexicalScore: 0.1, VectorScore: 0.1, Text: "second"},
		{ChunkID: "other", LexicalScore: 0.5, VectorScore: 0.5},
	}

	fused := f.Fuse(candidates)
	if len(fused) != 2 {
		t.Fatalf("expected 2 candidates after dedupe, got %d", len(fused))
	}
	for _, c := range fused {
		if c.ChunkID == "dup" && c.Text != "first" {
			t.Errorf("dedupe kept %q, want first occurrence", c.Text)
		}
	}
}

func TestFuseEmptyInput(t *testing.T) {
	f, _ := NewFuser(DefaultConfig())
	if got := f.Fuse(nil); len(got) != 0 {
		t.Errorf("expected empty output, got %d", len(got))
	}
}

func TestApplyAdditiveBoost(t *testing.T) {
	candidates := []store.Candidate{
		{ChunkID: "a", FinalScore: 0.8, Rank: 1},
		{ChunkID: "b", FinalScore: 0.7, Rank: 2},
	}

	boosted := ApplyAdditiveBoost(candidates, "memory_reuse", "used in recent answer",
		map[string]float64{"b": 0.5}, 0.15)

	if boosted[0].ChunkID != "b" {
		t.Fatalf("expected boosted b at rank 1, got %s", boosted[0].ChunkID)
	}
	if boosted[0].FinalScore != 0.85 {
		t.Errorf("boost not capped: got %f, want 0.85", boosted[0].FinalScore)
	}
	if len(boosted[0].Boosts) != 1 || boosted[0].Boosts[0].Name != "memory_reuse" {
		t.Errorf("boost record missing: %+v", boosted[0].Boosts)
	}
	if boosted[1].Rank != 2 {
		t.Errorf("ranks not reassigned: %+v", boosted[1])
	}

	// Original slice must be untouched.
	if candidates[0].ChunkID != "a" || len(candidates[1].Boosts) != 0 {
		t.Error("ApplyAdditiveBoost mutated its input")
	}
}
