package grounding

import (
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meownm/ai-rag-sub000/pkg/store"
)

func newTestVerifier() *Verifier {
	return NewVerifier(DefaultConfig(), log.New(io.Discard, "", 0))
}

func testContext() []store.Candidate {
	return []store.Candidate{
		{
			ChunkID:    "c1",
			DocumentID: "d1",
			Text:       "The deployment pipeline runs every night at two in the morning and publishes build artifacts to the registry.",
		},
		{
			ChunkID:    "c2",
			DocumentID: "d1",
			Text:       "Rollbacks are triggered manually by the on-call engineer using the release dashboard.",
		},
	}
}

func TestVerifyVerbatimAnswerIsValid(t *testing.T) {
	v := newTestVerifier()

	answer := "The deployment pipeline runs every night at two in the morning. Rollbacks are triggered manually by the on-call engineer."
	report := v.Verify(answer, testContext(), nil, false)

	assert.True(t, report.Valid)
	assert.False(t, report.Refused)
	assert.Equal(t, report.SentenceCount, report.SupportedCount)
}

func TestVerifyUnrelatedFactIsInvalid(t *testing.T) {
	v := newTestVerifier()

	answer := "The deployment pipeline runs every night. Giraffes migrate across the savanna during winter solstice."
	report := v.Verify(answer, testContext(), nil, false)

	assert.False(t, report.Valid)
	assert.True(t, report.Refused)
	assert.Len(t, report.UnsupportedSentences, 1)
	assert.Contains(t, report.UnsupportedSentences[0], "Giraffes")
}

func TestVerifyStripsUnknownCitations(t *testing.T) {
	v := newTestVerifier()

	citations := []store.Citation{
		{ChunkID: "c1", DocumentID: "d1"},
		{ChunkID: "bogus", DocumentID: "d9"},
	}
	answer := "The deployment pipeline runs every night at two in the morning."
	report := v.Verify(answer, testContext(), citations, true)

	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.StrippedCitations)
	assert.Len(t, report.ValidCitations, 1)
	assert.Equal(t, "c1", report.ValidCitations[0].ChunkID)
}

func TestVerifyRefusesWhenRequestedCitationsAllInvalid(t *testing.T) {
	v := newTestVerifier()

	citations := []store.Citation{{ChunkID: "nope", DocumentID: "d9"}}
	answer := "The deployment pipeline runs every night at two in the morning."
	report := v.Verify(answer, testContext(), citations, true)

	assert.False(t, report.Valid)
	assert.True(t, report.Refused)
	assert.Equal(t, 1, report.StrippedCitations)
}

func TestVerifyEmptyCitationListWithoutRequestIsFine(t *testing.T) {
	v := newTestVerifier()

	answer := "The deployment pipeline runs every night at two in the morning."
	report := v.Verify(answer, testContext(), nil, false)
	assert.True(t, report.Valid)
}

func TestVerifyMalformedSentenceFailsClosed(t *testing.T) {
	v := newTestVerifier()

	// Pure punctuation tokenizes to nothing and must count as
	// unsupported rather than raising.
	report := v.Verify("?!?!.", testContext(), nil, false)
	assert.False(t, report.Valid)
}

func TestVerifyEmptyContextRefusesEverything(t *testing.T) {
	v := newTestVerifier()

	report := v.Verify("Any claim at all.", nil, nil, false)
	assert.False(t, report.Valid)
	assert.Equal(t, 0, report.SupportedCount)
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"two sentences", "First one. Second one.", 2},
		{"newline separated", "line one\nline two", 2},
		{"trailing fragment", "Complete. trailing fragment", 2},
		{"empty", "", 0},
		{"only whitespace", "   \n  ", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitSentences(tt.text)
			if len(got) != tt.want {
				t.Errorf("splitSentences(%q) = %d sentences, want %d", tt.text, len(got), tt.want)
			}
		})
	}
}
