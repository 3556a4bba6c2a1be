package expansion

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/meownm/ai-rag-sub000/pkg/store"
	"github.com/meownm/ai-rag-sub000/pkg/utils"
)

// Mode selects the expansion strategy, configured per tenant/deployment.
type Mode string

const (
	ModeOff                  Mode = "off"
	ModeNeighbor             Mode = "neighbor"
	ModeDocNeighbor          Mode = "doc_neighbor"
	ModeDocNeighborPlusLinks Mode = "doc_neighbor_plus_links"
)

// Score damping for material pulled in by expansion. Expanded chunks are
// supporting context, never stronger evidence than their anchors.
const (
	neighborDamping = 0.5
	linkDamping     = 0.3
)

// Config holds the expansion parameters.
type Config struct {
	Mode                Mode
	Window              int // ordinal window for same-document neighbors
	TopDocs             int // doc_neighbor: expand only the top-N ranked documents
	MaxLinkedDocs       int
	LinkChunksPerDoc    int
	SimilarityThreshold float64 // redundancy filter + selection penalty
	MinGain             float64
	TokenBudget         int
	MaxExtraChunks      int     // hard cap on chunks added by neighbor/link expansion
	MinDocDepth         float64 // below this avg chunks/doc, link expansion is warranted
	DiversityRatio      float64 // distinct-docs/base ratio at which diversity counts as high
}

// DefaultConfig returns the default expansion configuration.
func DefaultConfig() Config {
	return Config{
		Mode:                ModeDocNeighbor,
		Window:              2,
		TopDocs:             3,
		MaxLinkedDocs:       2,
		LinkChunksPerDoc:    2,
		SimilarityThreshold: 0.92,
		MinGain:             0.05,
		TokenBudget:         3000,
		MaxExtraChunks:      12,
		MinDocDepth:         1.5,
		DiversityRatio:      0.8,
	}
}

// NeighborSource supplies topically-adjacent material. Every lookup is
// tenant-scoped by contract; the engine still re-checks tenant ids on
// whatever comes back.
type NeighborSource interface {
	Neighbors(ctx context.Context, tenantID, documentID string, anchorOrdinal, window int) ([]store.Candidate, error)
	LinkedDocuments(ctx context.Context, tenantID string, documentIDs []string, max int) ([]string, error)
	TopChunks(ctx context.Context, tenantID, documentID string, queryEmbedding []float32, limit int) ([]store.Candidate, error)
}

// Result pairs the selected context set with its debug record.
type Result struct {
	Selected []store.Candidate
	Debug    store.ExpansionDebugInfo
}

// Engine grows a ranked retrieval result into a coherent, non-redundant,
// budget-aware context set. Deterministic for identical inputs and
// configuration; collaborator failures degrade to the un-expanded base.
type Engine struct {
	cfg    Config
	source NeighborSource
	logger *log.Logger
}

// NewEngine creates an expansion engine.
func NewEngine(cfg Config, source NeighborSource, logger *log.Logger) *Engine {
	return &Engine{cfg: cfg, source: source, logger: logger}
}

// Expand runs the configured expansion mode over the base set, then
// dedupes, filters redundancy and greedily selects under the token
// budget. The output is ordered as per-document windows, not score order.
func (e *Engine) Expand(ctx context.Context, tenantID string, queryEmbedding []float32, base []store.Candidate) Result {
	base = filterTenant(base, tenantID)

	docRank := rankDocuments(base)
	debug := store.ExpansionDebugInfo{
		BaseCount:    len(base),
		DocDiversity: len(docRank),
		Steps:        []string{fmt.Sprintf("base:%d", len(base))},
	}

	if e.cfg.Mode == ModeOff || e.source == nil || len(base) == 0 {
		debug.FinalTokens = totalTokens(base)
		debug.Steps = append(debug.Steps, fmt.Sprintf("select:%d", len(base)))
		return Result{Selected: base, Debug: debug}
	}

	pool := make([]store.Candidate, len(base))
	copy(pool, base)
	present := make(map[string]bool, len(base))
	for _, c := range base {
		present[c.ChunkID] = true
	}

	added := 0
	switch e.cfg.Mode {
	case ModeNeighbor:
		added = e.expandNeighbors(ctx, tenantID, base, nil, present, &pool, &debug)
	case ModeDocNeighbor, ModeDocNeighborPlusLinks:
		chosen := topDocuments(docRank, e.cfg.TopDocs)
		added = e.expandNeighbors(ctx, tenantID, base, chosen, present, &pool, &debug)
		if e.cfg.Mode == ModeDocNeighborPlusLinks && e.linkExpansionWarranted(base, docRank) {
			added += e.expandLinks(ctx, tenantID, queryEmbedding, chosen, present, &pool, added, &debug)
		}
	}
	debug.Steps = append(debug.Steps, fmt.Sprintf("expand:%d", added))

	pool = dedupeKeepBest(pool, &debug)
	pool = e.filterRedundant(pool, &debug)
	selected := e.selectGreedy(pool, &debug)
	selected = orderForReading(selected, docRank)

	debug.FinalTokens = totalTokens(selected)
	debug.Steps = append(debug.Steps, fmt.Sprintf("select:%d", len(selected)))

	return Result{Selected: selected, Debug: debug}
}

// expandNeighbors pulls same-document chunks within the ordinal window
// around each base candidate. When chosenDocs is non-nil only those
// documents are expanded.
func (e *Engine) expandNeighbors(ctx context.Context, tenantID string, base []store.Candidate, chosenDocs map[string]bool, present map[string]bool, pool *[]store.Candidate, debug *store.ExpansionDebugInfo) int {
	added := 0
	for _, anchor := range base {
		if chosenDocs != nil && !chosenDocs[anchor.DocumentID] {
			continue
		}
		if added >= e.cfg.MaxExtraChunks {
			break
		}

		neighbors, err := e.source.Neighbors(ctx, tenantID, anchor.DocumentID, anchor.Ordinal, e.cfg.Window)
		if err != nil {
			e.logger.Printf("[EXPANSION] neighbor lookup failed for doc %s: %v (degrading)", anchor.DocumentID, err)
			continue
		}

		for _, n := range neighbors {
			if n.TenantID != tenantID || present[n.ChunkID] {
				continue
			}
			if added >= e.cfg.MaxExtraChunks {
				break
			}
			n.FinalScore = anchor.FinalScore * neighborDamping
			*pool = append(*pool, n)
			present[n.ChunkID] = true
			added++
		}
	}

	debug.NeighborAdded = added
	if added > 0 {
		debug.Steps = append(debug.Steps, fmt.Sprintf("neighbor:+%d", added))
	}
	return added
}

// expandLinks pulls supplementary chunks from documents that the chosen
// documents link to.
func (e *Engine) expandLinks(ctx context.Context, tenantID string, queryEmbedding []float32, chosenDocs map[string]bool, present map[string]bool, pool *[]store.Candidate, alreadyAdded int, debug *store.ExpansionDebugInfo) int {
	docIDs := sortedKeys(chosenDocs)

	linked, err := e.source.LinkedDocuments(ctx, tenantID, docIDs, e.cfg.MaxLinkedDocs)
	if err != nil {
		e.logger.Printf("[EXPANSION] linked-documents lookup failed: %v (degrading)", err)
		return 0
	}

	added := 0
	for _, docID := range linked {
		if alreadyAdded+added >= e.cfg.MaxExtraChunks {
			break
		}

		chunks, err := e.source.TopChunks(ctx, tenantID, docID, queryEmbedding, e.cfg.LinkChunksPerDoc)
		if err != nil {
			e.logger.Printf("[EXPANSION] top-chunks lookup failed for doc %s: %v (degrading)", docID, err)
			continue
		}

		for _, c := range chunks {
			if c.TenantID != tenantID || present[c.ChunkID] {
				continue
			}
			if alreadyAdded+added >= e.cfg.MaxExtraChunks {
				break
			}
			c.FinalScore = c.VectorScore * linkDamping
			*pool = append(*pool, c)
			present[c.ChunkID] = true
			added++
		}
	}

	debug.LinkAdded = added
	if added > 0 {
		debug.Steps = append(debug.Steps, fmt.Sprintf("links:+%d", added))
	}
	return added
}

// linkExpansionWarranted: link targets are only worth fetching when the
// chosen documents show low depth (few selected chunks per document) or
// high source diversity, both signals that more context per topic helps.
func (e *Engine) linkExpansionWarranted(base []store.Candidate, docRank map[string]int) bool {
	if len(docRank) == 0 {
		return false
	}
	depth := float64(len(base)) / float64(len(docRank))
	if depth < e.cfg.MinDocDepth {
		return true
	}
	diversity := float64(len(docRank)) / float64(len(base))
	return diversity >= e.cfg.DiversityRatio
}

// dedupeKeepBest collapses duplicate chunk ids keeping the
// highest-scored occurrence.
func dedupeKeepBest(pool []store.Candidate, debug *store.ExpansionDebugInfo) []store.Candidate {
	best := make(map[string]int, len(pool))
	out := make([]store.Candidate, 0, len(pool))
	removed := 0

	for _, c := range pool {
		idx, ok := best[c.ChunkID]
		if !ok {
			best[c.ChunkID] = len(out)
			out = append(out, c)
			continue
		}
		removed++
		if c.FinalScore > out[idx].FinalScore {
			out[idx] = c
		}
	}

	if removed > 0 {
		debug.Steps = append(debug.Steps, fmt.Sprintf("dedupe:-%d", removed))
	}
	return out
}

// filterRedundant drops near-duplicates: cosine similarity at or above
// the threshold AND an identical heading path. The later candidate in
// max-score-first order loses.
func (e *Engine) filterRedundant(pool []store.Candidate, debug *store.ExpansionDebugInfo) []store.Candidate {
	ordered := make([]store.Candidate, len(pool))
	copy(ordered, pool)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].FinalScore != ordered[j].FinalScore {
			return ordered[i].FinalScore > ordered[j].FinalScore
		}
		return ordered[i].ChunkID < ordered[j].ChunkID
	})

	kept := make([]store.Candidate, 0, len(ordered))
	removed := 0
	for _, c := range ordered {
		redundant := false
		for _, k := range kept {
			if c.HeadingPath != k.HeadingPath {
				continue
			}
			if utils.CosineSimilarity(c.Embedding, k.Embedding) >= e.cfg.SimilarityThreshold {
				redundant = true
				break
			}
		}
		if redundant {
			removed++
			continue
		}
		kept = append(kept, c)
	}

	debug.RedundancyRemoved = removed
	if removed > 0 {
		debug.Steps = append(debug.Steps, fmt.Sprintf("redundancy:-%d", removed))
	}
	return kept
}

// selectGreedy walks candidates in deterministic order and keeps them
// while the marginal gain stays above the floor and the token budget
// holds. Both stop conditions are recorded as steps.
func (e *Engine) selectGreedy(pool []store.Candidate, debug *store.ExpansionDebugInfo) []store.Candidate {
	ordered := make([]store.Candidate, len(pool))
	copy(ordered, pool)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.ChunkID < b.ChunkID
	})

	selected := make([]store.Candidate, 0, len(ordered))
	tokens := 0
	for _, c := range ordered {
		maxSim := 0.0
		for _, s := range selected {
			if sim := utils.CosineSimilarity(c.Embedding, s.Embedding); sim > maxSim {
				maxSim = sim
			}
		}

		gain := c.FinalScore - math.Max(0, maxSim-e.cfg.SimilarityThreshold)
		if gain < e.cfg.MinGain {
			debug.Steps = append(debug.Steps, "stop:min_gain")
			break
		}

		est := utils.EstimateTokens(c.Text)
		if tokens+est > e.cfg.TokenBudget {
			debug.Steps = append(debug.Steps, "stop:budget")
			break
		}

		selected = append(selected, c)
		tokens += est
	}

	return selected
}

// orderForReading arranges the final set as coherent per-document
// windows: (document rank, document id, ordinal, chunk id).
func orderForReading(selected []store.Candidate, docRank map[string]int) []store.Candidate {
	out := make([]store.Candidate, len(selected))
	copy(out, selected)

	rankOf := func(docID string) int {
		if r, ok := docRank[docID]; ok {
			return r
		}
		// Link-expanded documents come after every base document.
		return len(docRank) + 1
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if rankOf(a.DocumentID) != rankOf(b.DocumentID) {
			return rankOf(a.DocumentID) < rankOf(b.DocumentID)
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.ChunkID < b.ChunkID
	})
	return out
}

// rankDocuments ranks documents by their best candidate's fused score,
// tie-broken by document id.
func rankDocuments(base []store.Candidate) map[string]int {
	bestScore := make(map[string]float64)
	for _, c := range base {
		if score, ok := bestScore[c.DocumentID]; !ok || c.FinalScore > score {
			bestScore[c.DocumentID] = c.FinalScore
		}
	}

	docs := make([]string, 0, len(bestScore))
	for id := range bestScore {
		docs = append(docs, id)
	}
	sort.Slice(docs, func(i, j int) bool {
		if bestScore[docs[i]] != bestScore[docs[j]] {
			return bestScore[docs[i]] > bestScore[docs[j]]
		}
		return docs[i] < docs[j]
	})

	ranks := make(map[string]int, len(docs))
	for i, id := range docs {
		ranks[id] = i + 1
	}
	return ranks
}

// topDocuments returns the set of the n best-ranked documents.
func topDocuments(docRank map[string]int, n int) map[string]bool {
	chosen := make(map[string]bool, n)
	for id, rank := range docRank {
		if rank <= n {
			chosen[id] = true
		}
	}
	return chosen
}

func filterTenant(candidates []store.Candidate, tenantID string) []store.Candidate {
	out := make([]store.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	return out
}

func totalTokens(candidates []store.Candidate) int {
	total := 0
	for _, c := range candidates {
		total += utils.EstimateTokens(c.Text)
	}
	return total
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
