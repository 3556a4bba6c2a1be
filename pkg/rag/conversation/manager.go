package conversation

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/meownm/ai-rag-sub000/pkg/llm"
	"github.com/meownm/ai-rag-sub000/pkg/store"
	"github.com/meownm/ai-rag-sub000/pkg/utils"
)

// Config holds the multi-turn context parameters.
type Config struct {
	MaxTurns            int     // hard cap on turns handed to the pipeline
	TokenCap            int     // token budget for the kept window
	TopicShiftEnabled   bool
	TopicShiftThreshold float64 // cosine below this flags a topic reset
	SummaryTriggerTurns int     // summarize once turn count passes this
	MemoryBoostMax      float64 // upper bound on any single memory boost
	MemoryBoostDecay    float64 // multiplier applied per recency rank
	MemoryTraceDepth    int     // how many recent traces feed the boost
}

// DefaultConfig returns the default conversation parameters.
func DefaultConfig() Config {
	return Config{
		MaxTurns:            12,
		TokenCap:            2000,
		TopicShiftEnabled:   true,
		TopicShiftThreshold: 0.35,
		SummaryTriggerTurns: 10,
		MemoryBoostMax:      0.05,
		MemoryBoostDecay:    0.5,
		MemoryTraceDepth:    3,
	}
}

// Manager keeps per-conversation context bounded: trims history, flags
// topic shifts, versions summaries and derives memory boosts from
// recent answer traces. It holds no conversation state itself; callers
// serialize concurrent turns for the same conversation at the storage
// layer.
type Manager struct {
	cfg    Config
	llm    llm.LLMProvider
	logger *log.Logger
}

// NewManager creates a conversation manager.
func NewManager(cfg Config, provider llm.LLMProvider, logger *log.Logger) *Manager {
	return &Manager{cfg: cfg, llm: provider, logger: logger}
}

// TrimHistory keeps at most MaxTurns most-recent turns, then trims from
// the oldest end until the estimated token total fits the cap. The most
// recent turns always survive intact.
func (m *Manager) TrimHistory(turns []store.Turn) []store.Turn {
	kept := turns
	if len(kept) > m.cfg.MaxTurns {
		kept = kept[len(kept)-m.cfg.MaxTurns:]
	}

	total := 0
	for _, t := range kept {
		total += utils.EstimateTokens(t.Text)
	}
	for total > m.cfg.TokenCap && len(kept) > 0 {
		total -= utils.EstimateTokens(kept[0].Text)
		kept = kept[1:]
	}

	out := make([]store.Turn, len(kept))
	copy(out, kept)
	return out
}

// DetectTopicShift compares the current query embedding with the
// previous one. Advisory only: the caller logs and traces the flag but
// history is never truncated because of it.
func (m *Manager) DetectTopicShift(current, previous []float32) bool {
	if !m.cfg.TopicShiftEnabled || len(current) == 0 || len(previous) == 0 {
		return false
	}

	sim := utils.CosineSimilarity(current, previous)
	if sim < m.cfg.TopicShiftThreshold {
		m.logger.Printf("[CONVERSATION] topic shift detected (similarity %.3f < %.3f)", sim, m.cfg.TopicShiftThreshold)
		return true
	}
	return false
}

// ShouldSummarize reports whether a new summary version is due: the
// accumulated turn count passed the trigger and there are turns beyond
// what the latest summary already covers.
func (m *Manager) ShouldSummarize(turnCount int, latest *store.Summary) bool {
	if turnCount <= m.cfg.SummaryTriggerTurns {
		return false
	}
	if latest != nil && latest.CoversTurnIndex >= turnCount-1 {
		return false
	}
	return true
}

// Summarize produces the next summary version. Narrative mode asks the
// generation backend for a prose summary; masked mode is computed
// locally and never quotes user text or secret-shaped tokens.
func (m *Manager) Summarize(ctx context.Context, turns []store.Turn, latest *store.Summary, mode string) (store.Summary, error) {
	if len(turns) == 0 {
		return store.Summary{}, fmt.Errorf("summarize: no turns to cover")
	}

	version := 1
	if latest != nil {
		version = latest.Version + 1
	}
	summary := store.Summary{
		Version:         version,
		CoversTurnIndex: turns[len(turns)-1].TurnIndex,
		Mode:            mode,
	}

	switch mode {
	case store.SummaryModeNarrative:
		text, err := m.narrativeSummary(ctx, turns, latest)
		if err != nil {
			return store.Summary{}, fmt.Errorf("summarize narrative: %w", err)
		}
		summary.Text = text
	case store.SummaryModeMasked:
		summary.Text = maskedSummary(turns)
	default:
		return store.Summary{}, fmt.Errorf("summarize: unknown mode %q", mode)
	}

	m.logger.Printf("[CONVERSATION] summary v%d (%s) covers turns through %d", summary.Version, mode, summary.CoversTurnIndex)
	return summary, nil
}

func (m *Manager) narrativeSummary(ctx context.Context, turns []store.Turn, latest *store.Summary) (string, error) {
	var sb strings.Builder
	sb.WriteString("Summarize the following conversation in a short paragraph. Preserve open questions and decisions.\n\n")
	if latest != nil && latest.Text != "" {
		sb.WriteString("Earlier context: " + latest.Text + "\n\n")
	}
	for _, t := range turns {
		sb.WriteString(t.Role + ": " + t.Text + "\n")
	}

	return m.llm.Generate(ctx, sb.String(), llm.WithTemperature(0.2))
}

// maskedSummary emits one role-tagged topic line per turn. No user text
// is quoted; topic labels are coarse keywords with secret-shaped tokens
// excluded.
func maskedSummary(turns []store.Turn) string {
	var lines []string
	for _, t := range turns {
		labels := topicLabels(t.Text, 3)
		if len(labels) == 0 {
			lines = append(lines, fmt.Sprintf("%s: topic(unspecified)", t.Role))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: topic(%s)", t.Role, strings.Join(labels, ", ")))
	}
	return strings.Join(lines, "\n")
}

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "because": true,
	"before": true, "being": true, "could": true, "doing": true,
	"having": true, "other": true, "please": true,
	"should": true, "their": true, "there": true, "these": true,
	"thing": true, "think": true, "those": true, "where": true,
	"which": true, "while": true, "would": true, "really": true,
}

var (
	wordRe = regexp.MustCompile(`[a-zA-Z][a-zA-Z-]{4,}`)
	hexRe  = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
)

// topicLabels extracts up to n coarse keyword labels: frequent long
// words, minus stopwords and anything secret-shaped.
func topicLabels(text string, n int) []string {
	freq := make(map[string]int)
	order := make(map[string]int)

	for i, field := range strings.Fields(text) {
		if secretShaped(field) {
			continue
		}
		word := strings.ToLower(wordRe.FindString(field))
		if word == "" || stopwords[word] || secretShaped(word) {
			continue
		}
		if _, seen := freq[word]; !seen {
			order[word] = i
		}
		freq[word]++
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return order[words[i]] < order[words[j]]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}

// secretShaped flags tokens that look like credentials: long mixed
// alphanumerics, hex blobs, key=value pairs, known key prefixes.
func secretShaped(token string) bool {
	trimmed := strings.Trim(token, ".,;:!?\"'()[]{}<>")
	if len(trimmed) == 0 {
		return false
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "sk-") || strings.HasPrefix(trimmed, "AKIA") || strings.HasPrefix(lower, "bearer") {
		return true
	}
	if strings.ContainsRune(trimmed, '=') {
		return true
	}
	if hexRe.MatchString(trimmed) {
		return true
	}

	hasLetter, hasDigit := false, false
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		}
	}
	return hasLetter && hasDigit && len(trimmed) >= 12
}

// MemoryBoosts converts recent retrieval traces into additive boost
// amounts keyed by chunk id. usedChunks is newest-first; each rank back
// decays the boost, and a chunk seen in multiple traces keeps its
// strongest (most recent) value. Every amount is bounded by
// MemoryBoostMax.
func (m *Manager) MemoryBoosts(usedChunks [][]string) map[string]float64 {
	boosts := make(map[string]float64)

	depth := m.cfg.MemoryTraceDepth
	if depth > len(usedChunks) {
		depth = len(usedChunks)
	}

	amount := m.cfg.MemoryBoostMax
	for rank := 0; rank < depth; rank++ {
		for _, chunkID := range usedChunks[rank] {
			if amount > boosts[chunkID] {
				boosts[chunkID] = amount
			}
		}
		amount *= m.cfg.MemoryBoostDecay
	}
	return boosts
}
