package engram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/engramdb/engram/pkg/reasoner"
	"github.com/engramdb/engram/pkg/search"
	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/temporal"
	"github.com/engramdb/engram/pkg/types"
)

// SearchOptions filter the candidate set and steer the ranking pipeline
// for one Search call.
type SearchOptions struct {
	// SessionID scopes candidates to one session; empty searches all.
	SessionID string
	// NodeTypes restricts candidate node types; empty means entities and
	// episodes.
	NodeTypes []types.NodeType
	// CenterNodeIDs anchor the graph-proximity signal.
	CenterNodeIDs []string
	// QueryEmbedding skips query embedding when precomputed.
	QueryEmbedding []float32
	// Valid restricts candidates to those valid inside the range.
	Valid *types.TimeRange
}

// Search runs the hybrid ranking pipeline over store-filtered candidates.
func (m *Manager) Search(ctx context.Context, query string, opts SearchOptions) ([]*search.Result, error) {
	nodeTypes := opts.NodeTypes
	if len(nodeTypes) == 0 {
		nodeTypes = []types.NodeType{types.EntityNodeType, types.EpisodeNodeType}
	}
	filter := store.NodeFilter{Types: nodeTypes, Valid: opts.Valid}
	if opts.SessionID != "" {
		filter.SessionIDs = []string{opts.SessionID}
	}
	candidates := m.store.QueryNodes(filter)
	if len(candidates) == 0 {
		return nil, nil
	}

	return m.searcher.Search(ctx, query, candidates, search.Options{
		QueryEmbedding: opts.QueryEmbedding,
		CenterNodeIDs:  opts.CenterNodeIDs,
	})
}

// FindPath enumerates bounded-length paths between two nodes, shortest
// first. Missing endpoints propagate as NotFound.
func (m *Manager) FindPath(sourceID, targetID string, opts store.PathOptions) ([]*types.Path, error) {
	return m.store.FindPaths(sourceID, targetID, opts)
}

// GetNodeAsOf resolves a node against a timeline at a point in time.
func (m *Manager) GetNodeAsOf(id string, asOf time.Time, mode temporal.Mode) (*types.Node, error) {
	return m.temporal.GetNodeAsOf(id, asOf, mode)
}

// GetEdgeAsOf resolves an edge against a timeline at a point in time.
func (m *Manager) GetEdgeAsOf(id string, asOf time.Time, mode temporal.Mode) (*types.Edge, error) {
	return m.temporal.GetEdgeAsOf(id, asOf, mode)
}

// TemporalAnalysis describes how a node and its relationships differed
// between two points in time.
type TemporalAnalysis struct {
	NodeID string `json:"node_id"`

	Before *types.Node `json:"before,omitempty"`
	After  *types.Node `json:"after,omitempty"`

	EdgesBefore []*types.Edge `json:"edges_before"`
	EdgesAfter  []*types.Edge `json:"edges_after"`

	EdgesAdded   []*types.Edge `json:"edges_added"`
	EdgesRemoved []*types.Edge `json:"edges_removed"`

	// Explanation is the collaborator's natural-language account of the
	// change; Confidence is zero when the change was self-evident enough
	// not to need one.
	Explanation string  `json:"explanation"`
	Confidence  float64 `json:"confidence"`
}

// AnalyzeTemporalChanges compares a node's state at two points in time
// under the combined timeline and asks the reasoning collaborator for a
// natural-language explanation of the difference. Unlike ingestion, this
// cannot sensibly default: collaborator failure propagates as an error.
func (m *Manager) AnalyzeTemporalChanges(ctx context.Context, nodeID string, from, to time.Time) (*TemporalAnalysis, error) {
	if to.Before(from) {
		from, to = to, from
	}
	// The node must exist at all for the analysis to mean anything.
	if _, err := m.store.GetNode(nodeID); err != nil {
		return nil, err
	}

	analysis := &TemporalAnalysis{NodeID: nodeID}
	if n, err := m.temporal.GetNodeAsOf(nodeID, from, temporal.ModeBoth); err == nil {
		analysis.Before = n
	}
	if n, err := m.temporal.GetNodeAsOf(nodeID, to, temporal.ModeBoth); err == nil {
		analysis.After = n
	}

	incident := m.store.QueryEdges(store.EdgeFilter{
		SourceIDs:      []string{nodeID},
		IncludeInvalid: true,
	})
	incoming := m.store.QueryEdges(store.EdgeFilter{
		TargetIDs:      []string{nodeID},
		IncludeInvalid: true,
	})
	incident = append(incident, incoming...)

	analysis.EdgesBefore = m.temporal.EdgesAsOf(incident, from, temporal.ModeBoth)
	analysis.EdgesAfter = m.temporal.EdgesAsOf(incident, to, temporal.ModeBoth)
	analysis.EdgesAdded = diffEdges(analysis.EdgesAfter, analysis.EdgesBefore)
	analysis.EdgesRemoved = diffEdges(analysis.EdgesBefore, analysis.EdgesAfter)

	if len(analysis.EdgesAdded) == 0 && len(analysis.EdgesRemoved) == 0 &&
		nodeStateDigest(analysis.Before) == nodeStateDigest(analysis.After) {
		analysis.Explanation = "no change between the two points in time"
		return analysis, nil
	}

	r, err := m.reasoner.Run(ctx, reasoner.ChangeExplanationTask{
		Subject: nodeID,
		Before:  describeState(analysis.Before, analysis.EdgesBefore),
		After:   describeState(analysis.After, analysis.EdgesAfter),
		From:    from,
		To:      to,
	})
	if err != nil {
		return nil, fmt.Errorf("explaining temporal changes: %w", err)
	}
	explained, ok := r.(reasoner.ChangeExplanationResult)
	if !ok {
		return nil, fmt.Errorf("temporal change explanation was unparseable")
	}
	analysis.Explanation = explained.Explanation
	analysis.Confidence = explained.Confidence
	return analysis, nil
}

func diffEdges(a, b []*types.Edge) []*types.Edge {
	inB := make(map[string]bool, len(b))
	for _, e := range b {
		inB[e.ID] = true
	}
	var out []*types.Edge
	for _, e := range a {
		if !inB[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

func nodeStateDigest(n *types.Node) string {
	if n == nil {
		return "absent"
	}
	return n.Name + "\x00" + n.Content
}

func describeState(n *types.Node, edges []*types.Edge) string {
	if n == nil {
		return "the record did not exist"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s", n.Name)
	if n.Content != "" {
		fmt.Fprintf(&b, " (%s)", n.Content)
	}
	for _, e := range edges {
		fmt.Fprintf(&b, "; %s %s %s", e.SourceID, e.Name, e.TargetID)
	}
	return b.String()
}
