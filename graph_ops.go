package engram

import (
	"context"
	"strings"

	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/types"
)

// AddNode inserts a node into the graph.
func (m *Manager) AddNode(node *types.Node) error {
	return m.store.AddNode(node)
}

// GetNode returns a node by id.
func (m *Manager) GetNode(id string) (*types.Node, error) {
	return m.store.GetNode(id)
}

// UpdateNode merges a partial patch into a node, preserving unset fields.
func (m *Manager) UpdateNode(id string, patch store.NodePatch) (*types.Node, error) {
	return m.store.UpdateNode(id, patch)
}

// DeleteNode hard-deletes a node and its incident edges, and drops it from
// community membership. Distinct from expiry, which merely hides a record.
func (m *Manager) DeleteNode(id string) error {
	if err := m.store.DeleteNode(id); err != nil {
		return err
	}
	m.detector.Forget(id)
	return nil
}

// AddEdge inserts an edge; both endpoints must exist.
func (m *Manager) AddEdge(edge *types.Edge) error {
	return m.store.AddEdge(edge)
}

// GetEdge returns an edge by id.
func (m *Manager) GetEdge(id string) (*types.Edge, error) {
	return m.store.GetEdge(id)
}

// UpdateEdge merges a partial patch into an edge.
func (m *Manager) UpdateEdge(id string, patch store.EdgePatch) (*types.Edge, error) {
	return m.store.UpdateEdge(id, patch)
}

// DeleteEdge hard-deletes an edge.
func (m *Manager) DeleteEdge(id string) error {
	return m.store.DeleteEdge(id)
}

// QueryNodes returns deduplicated nodes matching the filter.
func (m *Manager) QueryNodes(filter store.NodeFilter) []*types.Node {
	return m.store.QueryNodes(filter)
}

// QueryEdges returns deduplicated edges matching the filter.
func (m *Manager) QueryEdges(filter store.EdgeFilter) []*types.Edge {
	return m.store.QueryEdges(filter)
}

// Traverse walks the graph from a start node within bounded depth.
func (m *Manager) Traverse(startID string, opts store.TraverseOptions) ([]*types.Node, error) {
	return m.store.Traverse(startID, opts)
}

// FindConnectedNodes returns all nodes reachable within maxDepth hops.
func (m *Manager) FindConnectedNodes(id string, maxDepth int) ([]*types.Node, error) {
	return m.store.FindConnectedNodes(id, maxDepth)
}

// GetEpisodes returns a session's most recent episodes, newest first.
func (m *Manager) GetEpisodes(sessionID string, limit int) []*types.Node {
	return m.store.GetEpisodes(sessionID, limit)
}

// ClearSession removes all of a session's nodes and their edges. Every
// physical record is forgotten from community membership, including the
// duplicates QueryNodes would collapse.
func (m *Manager) ClearSession(sessionID string) {
	for _, id := range m.store.SessionNodeIDs(sessionID) {
		m.detector.Forget(id)
	}
	m.store.ClearSession(sessionID)
}

// DetectCommunities runs full label propagation over the entity subgraph,
// labeling the resulting communities through the reasoning collaborator.
func (m *Manager) DetectCommunities(ctx context.Context, sessionID string) ([]*types.Community, error) {
	if _, err := m.detector.Detect(ctx, sessionID, m.labelFunc()); err != nil {
		return nil, err
	}
	m.detector.MergeCommunities()
	return m.detector.Communities(), nil
}

// GetCommunities returns all current communities.
func (m *Manager) GetCommunities() []*types.Community {
	return m.detector.Communities()
}

// GetCommunity returns one community by id.
func (m *Manager) GetCommunity(id string) (*types.Community, error) {
	return m.detector.Community(id)
}

// FindCommunities returns communities whose label contains the query,
// case-insensitively.
func (m *Manager) FindCommunities(query string) []*types.Community {
	query = strings.ToLower(strings.TrimSpace(query))
	var out []*types.Community
	for _, c := range m.detector.Communities() {
		if query == "" || strings.Contains(strings.ToLower(c.Label), query) {
			out = append(out, c)
		}
	}
	return out
}

// RefreshCommunities recomputes every community whose divergence score
// exceeds the threshold, returning the refreshed set.
func (m *Manager) RefreshCommunities(ctx context.Context, divergenceThreshold float64) ([]*types.Community, error) {
	labelFn := m.labelFunc()
	var refreshed []*types.Community
	for _, stale := range m.detector.NeedingRefresh(divergenceThreshold) {
		result, err := m.detector.Refresh(ctx, stale.ID, labelFn)
		if err != nil {
			return refreshed, err
		}
		refreshed = append(refreshed, result...)
	}
	return refreshed, nil
}

// Stats returns counts describing the current graph.
func (m *Manager) Stats() types.GraphStats {
	stats := m.store.Stats()
	stats.CommunityCount = int64(m.detector.Count())
	return *stats
}
