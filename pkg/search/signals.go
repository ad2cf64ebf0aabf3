package search

import (
	"math"
	"time"

	"github.com/engramdb/engram/pkg/types"
)

// GraphSource is the slice of the store the reranker needs for graph
// features.
type GraphSource interface {
	// ShortestPath returns the hop distance and edge-type sequence of the
	// shortest path between two nodes, bounded by maxLen.
	ShortestPath(fromID, toID string, maxLen int) (int, []types.EdgeType, bool)
	// EpisodeMentionCount returns how many episodes mention the node.
	EpisodeMentionCount(id string) int
}

// recencyScore decays exponentially with the age of t relative to the
// reference time, halving every halfLife. Future timestamps score 1.
func recencyScore(t, reference time.Time, halfLife time.Duration) float64 {
	if t.IsZero() || halfLife <= 0 {
		return 0
	}
	age := reference.Sub(t)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / halfLife.Hours())
}

// graphFeatures holds the per-candidate graph signal breakdown.
type graphFeatures struct {
	distance      int
	reachable     bool
	pathEdgeTypes []types.EdgeType
	mentionCount  int
}

// collectGraphFeatures gathers proximity to the center nodes and episode
// mention counts for a candidate. Distance is the minimum over all centers
// within maxPathLength; the edge-type sequence belongs to that best path.
func collectGraphFeatures(graph GraphSource, candidateID string, centerIDs []string, maxPathLength int) graphFeatures {
	f := graphFeatures{mentionCount: graph.EpisodeMentionCount(candidateID)}
	for _, center := range centerIDs {
		dist, edgeTypes, ok := graph.ShortestPath(center, candidateID, maxPathLength)
		if !ok {
			continue
		}
		if !f.reachable || dist < f.distance {
			f.reachable = true
			f.distance = dist
			f.pathEdgeTypes = edgeTypes
		}
	}
	return f
}

// score folds the graph features into a single [0,1] signal: proximity to
// the nearest center and a saturating mention-count boost, averaged.
func (f graphFeatures) score() float64 {
	proximity := 0.0
	if f.reachable {
		proximity = 1.0 / (1.0 + float64(f.distance))
	}
	mentions := float64(f.mentionCount) / (float64(f.mentionCount) + 1.0)
	return (proximity + mentions) / 2
}
