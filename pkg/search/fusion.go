package search

import "sort"

// FusionMode selects how the per-signal scores combine into one ranking.
type FusionMode string

const (
	// FusionWeighted ranks by a weighted linear sum of the normalized
	// signals.
	FusionWeighted FusionMode = "weighted"
	// FusionRRF ranks by reciprocal rank fusion over the per-signal
	// rankings.
	FusionRRF FusionMode = "rrf"
	// FusionRRFPrerank uses RRF only to keep the top-N candidates, then
	// orders them by the weighted sum.
	FusionRRFPrerank FusionMode = "rrf_prerank"
)

// DefaultRankConstant is the k in 1/(k+rank).
const DefaultRankConstant = 60

// Weights holds the per-signal coefficients for weighted fusion.
type Weights struct {
	Text         float64 `mapstructure:"text"`
	Vector       float64 `mapstructure:"vector"`
	Graph        float64 `mapstructure:"graph"`
	Recency      float64 `mapstructure:"recency"`
	CrossEncoder float64 `mapstructure:"cross_encoder"`
}

// DefaultWeights weighs lexical and semantic relevance highest, with graph
// proximity and recency as softer signals.
func DefaultWeights() Weights {
	return Weights{Text: 1.0, Vector: 1.0, Graph: 0.5, Recency: 0.3, CrossEncoder: 1.0}
}

// RRF computes reciprocal rank fusion scores over several independently
// ranked id lists. A candidate's score is the sum of 1/(k + rank) over the
// sources it appears in, with rank starting at 1; sources where it is
// absent contribute nothing.
func RRF(rankings [][]string, rankConstant int) map[string]float64 {
	if rankConstant <= 0 {
		rankConstant = DefaultRankConstant
	}
	scores := make(map[string]float64)
	for _, ranking := range rankings {
		for i, id := range ranking {
			scores[id] += 1.0 / float64(rankConstant+i+1)
		}
	}
	return scores
}

// rankByScore returns ids ordered by descending score, dropping zero-score
// entries so they count as absent from the source. Ties order by id for
// determinism.
func rankByScore(scores map[string]float64) []string {
	ids := make([]string, 0, len(scores))
	for id, s := range scores {
		if s > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// normalizeByMax scales a score map so the maximum becomes 1, leaving an
// all-zero map untouched. Used to make unbounded signals (BM25) comparable
// with the naturally bounded ones.
func normalizeByMax(scores map[string]float64) map[string]float64 {
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	if max == 0 {
		return scores
	}
	out := make(map[string]float64, len(scores))
	for id, s := range scores {
		out[id] = s / max
	}
	return out
}
