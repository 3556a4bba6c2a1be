package fusion

import (
	"sort"

	"github.com/meownm/ai-rag-sub000/pkg/store"
)

// ApplyAdditiveBoost layers per-chunk boosts on top of already-fused
// scores and re-sorts. Boosts are deliberately additive adjustments, not
// inputs to the weighted formula: their magnitudes are tuned
// independently of the fusion weights. Each applied boost is capped at
// maxBoost and recorded on the candidate.
func ApplyAdditiveBoost(candidates []store.Candidate, name, reason string, amounts map[string]float64, maxBoost float64) []store.Candidate {
	if len(amounts) == 0 || maxBoost <= 0 {
		return candidates
	}

	boosted := make([]store.Candidate, len(candidates))
	copy(boosted, candidates)

	for i := range boosted {
		amount, ok := amounts[boosted[i].ChunkID]
		if !ok || amount <= 0 {
			continue
		}
		if amount > maxBoost {
			amount = maxBoost
		}
		boosted[i].FinalScore += amount
		boosted[i].Boosts = append(boosted[i].Boosts, store.Boost{
			Name:   name,
			Value:  amount,
			Reason: reason,
		})
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		if boosted[i].FinalScore != boosted[j].FinalScore {
			return boosted[i].FinalScore > boosted[j].FinalScore
		}
		return boosted[i].ChunkID < boosted[j].ChunkID
	})
	for i := range boosted {
		boosted[i].Rank = i + 1
	}

	return boosted
}
