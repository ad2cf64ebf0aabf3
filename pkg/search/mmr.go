package search

import (
	"github.com/engramdb/engram/pkg/utils"
)

// DefaultMMRLambda balances relevance and novelty evenly with a slight
// tilt toward relevance.
const DefaultMMRLambda = 0.6

// mmrSelect greedily picks up to limit candidates, at each step taking the
// remaining candidate maximizing
//
//	lambda*relevance - (1-lambda)*maxSimilarityToAlreadyPicked.
//
// Candidates without an embedding contribute zero similarity and so are
// penalized only through their relevance. relevance must already be
// normalized to a comparable range.
func mmrSelect(ordered []string, relevance map[string]float64, embeddings map[string][]float32, lambda float64, limit int) []string {
	if lambda <= 0 || lambda > 1 {
		lambda = DefaultMMRLambda
	}
	if limit <= 0 || limit > len(ordered) {
		limit = len(ordered)
	}

	remaining := append([]string(nil), ordered...)
	picked := make([]string, 0, limit)
	for len(picked) < limit && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], picked, relevance, embeddings, lambda)
		for i := 1; i < len(remaining); i++ {
			if s := mmrScore(remaining[i], picked, relevance, embeddings, lambda); s > bestScore {
				bestIdx, bestScore = i, s
			}
		}
		picked = append(picked, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return picked
}

func mmrScore(id string, picked []string, relevance map[string]float64, embeddings map[string][]float32, lambda float64) float64 {
	maxSim := 0.0
	if emb := embeddings[id]; emb != nil {
		for _, p := range picked {
			other := embeddings[p]
			if other == nil {
				continue
			}
			if sim := utils.CosineSimilarity(emb, other); sim > maxSim {
				maxSim = sim
			}
		}
	}
	return lambda*relevance[id] - (1-lambda)*maxSim
}
