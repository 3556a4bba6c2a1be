package grounding

import (
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// Config holds the support thresholds. Values are validated by the
// application config at startup.
type Config struct {
	// MinOverlapRatio: minimum share of a sentence's tokens that must
	// appear in some context chunk for lexical support.
	MinOverlapRatio float64
	// MinSemanticSim: minimum cosine similarity of token-presence vectors
	// for semantic support.
	MinSemanticSim float64
}

// DefaultConfig returns the default verification thresholds.
func DefaultConfig() Config {
	return Config{
		MinOverlapRatio: 0.5,
		MinSemanticSim:  0.6,
	}
}

// Report is the structured verification payload. It is logged even when
// the answer passes.
type Report struct {
	Valid                bool             `json:"valid"`
	SentenceCount        int              `json:"sentence_count"`
	SupportedCount       int              `json:"supported_count"`
	UnsupportedSentences []string         `json:"unsupported_sentences,omitempty"`
	ValidCitations       []store.Citation `json:"valid_citations,omitempty"`
	StrippedCitations    int              `json:"stripped_citations"`
	Refused              bool             `json:"refused"`
	RefusalReason        string           `json:"refusal_reason,omitempty"`
}

// Verifier enforces the core safety invariant: an answer may only state
// what is supported by the retrieved context, and only cite chunks that
// were actually supplied. Verification fails closed: a sentence that
// cannot be parsed or scored counts as unsupported, never as an error.
type Verifier struct {
	cfg    Config
	logger *log.Logger
}

// NewVerifier creates a grounding verifier.
func NewVerifier(cfg Config, logger *log.Logger) *Verifier {
	return &Verifier{cfg: cfg, logger: logger}
}

// Verify checks every answer sentence against the supplied context and
// validates the declared citations against the actually-retrieved set.
func (v *Verifier) Verify(answer string, contextChunks []store.Candidate, citations []store.Citation, citationsRequested bool) Report {
	report := Report{}

	chunkTokens := make([]map[string]bool, len(contextChunks))
	for i, c := range contextChunks {
		chunkTokens[i] = tokenSet(c.Text)
	}

	sentences := splitSentences(answer)
	report.SentenceCount = len(sentences)

	for _, sentence := range sentences {
		if v.sentenceSupported(sentence, chunkTokens) {
			report.SupportedCount++
		} else {
			report.UnsupportedSentences = append(report.UnsupportedSentences, sentence)
		}
	}

	if len(report.UnsupportedSentences) > 0 {
		report.Refused = true
		report.RefusalReason = fmt.Sprintf("%d of %d sentences unsupported by retrieved context",
			len(report.UnsupportedSentences), report.SentenceCount)
	}

	// Citations must be a subset of what generation actually received.
	supplied := make(map[string]bool, len(contextChunks))
	for _, c := range contextChunks {
		supplied[c.ChunkID+"|"+c.DocumentID] = true
	}
	for _, cit := range citations {
		if supplied[cit.ChunkID+"|"+cit.DocumentID] {
			report.ValidCitations = append(report.ValidCitations, cit)
		} else {
			report.StrippedCitations++
		}
	}

	if citationsRequested && len(report.ValidCitations) == 0 && !report.Refused {
		report.Refused = true
		report.RefusalReason = "citations requested but none resolve to retrieved chunks"
	}

	report.Valid = !report.Refused

	v.logger.Printf("[GROUNDING] valid=%t sentences=%d supported=%d stripped_citations=%d",
		report.Valid, report.SentenceCount, report.SupportedCount, report.StrippedCitations)

	return report
}

// sentenceSupported checks lexical overlap first, then the coarse
// semantic similarity, against every chunk.
func (v *Verifier) sentenceSupported(sentence string, chunkTokens []map[string]bool) bool {
	tokens := tokenSet(sentence)
	if len(tokens) == 0 {
		// Malformed or empty sentence: fail closed.
		return false
	}

	for _, chunk := range chunkTokens {
		if len(chunk) == 0 {
			continue
		}

		shared := 0
		for t := range tokens {
			if chunk[t] {
				shared++
			}
		}

		if float64(shared)/float64(len(tokens)) >= v.cfg.MinOverlapRatio {
			return true
		}
		if presenceCosine(tokens, chunk, shared) >= v.cfg.MinSemanticSim {
			return true
		}
	}
	return false
}

// presenceCosine is the cosine similarity of binary token-presence
// vectors: shared / sqrt(|a|*|b|), computed without materializing them.
func presenceCosine(a, b map[string]bool, shared int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}

// splitSentences breaks an answer into sentences on terminal punctuation
// and newlines, dropping empties.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		s := strings.TrimSpace(current.String())
		current.Reset()
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	for _, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			current.WriteRune(r)
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return sentences
}

// tokenSet lowercases and splits on whitespace, trimming punctuation at
// token edges.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		token := strings.Trim(field, ".,;:!?\"'()[]{}<>*`")
		if token != "" {
			set[token] = true
		}
	}
	return set
}
