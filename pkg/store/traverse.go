package store

import (
	"sort"
	"time"

	"github.com/engramdb/engram/pkg/types"
)

// Direction selects which edges a traversal follows.
type Direction string

const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// TraverseOptions bounds a traversal walk.
type TraverseOptions struct {
	Direction Direction
	MaxDepth  int
	EdgeTypes []types.EdgeType
	Limit     int
}

// Traverse walks the graph from a start node up to MaxDepth hops, following
// non-expired, non-invalidated edges, and returns the visited nodes in
// breadth-first order (excluding the start node itself).
func (s *Store) Traverse(startID string, opts TraverseOptions) ([]*types.Node, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 1
	}
	if opts.Direction == "" {
		opts.Direction = DirectionBoth
	}
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[startID]; !ok {
		return nil, types.NewNodeNotFound(startID)
	}

	visited := map[string]bool{startID: true}
	frontier := []string{startID}
	var results []*types.Node

	for depth := 0; depth < opts.MaxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, neighborID := range s.adjacentLocked(id, opts.Direction, opts.EdgeTypes, now) {
				if visited[neighborID] {
					continue
				}
				visited[neighborID] = true
				n, ok := s.nodes[neighborID]
				if !ok || n.Expired(now) {
					continue
				}
				results = append(results, n.Clone())
				next = append(next, neighborID)
				if opts.Limit > 0 && len(results) >= opts.Limit {
					return results, nil
				}
			}
		}
		sort.Strings(next)
		frontier = next
	}
	return results, nil
}

// FindConnectedNodes returns all nodes reachable from id within maxDepth
// hops in either direction.
func (s *Store) FindConnectedNodes(id string, maxDepth int) ([]*types.Node, error) {
	return s.Traverse(id, TraverseOptions{Direction: DirectionBoth, MaxDepth: maxDepth})
}

// PathOptions bounds path enumeration.
type PathOptions struct {
	MaxDepth int
	MaxPaths int
	// EdgeTypes restricts which edges paths may use; empty means all.
	EdgeTypes []types.EdgeType
}

// FindPaths enumerates simple paths between two nodes, shortest first,
// following edges in either direction. Both endpoints must exist.
func (s *Store) FindPaths(sourceID, targetID string, opts PathOptions) ([]*types.Path, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 3
	}
	if opts.MaxPaths <= 0 {
		opts.MaxPaths = 10
	}
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.nodes[sourceID]; !ok {
		return nil, types.NewNodeNotFound(sourceID)
	}
	if _, ok := s.nodes[targetID]; !ok {
		return nil, types.NewNodeNotFound(targetID)
	}

	var paths []*types.Path
	type frame struct {
		nodeIDs []string
		edgeIDs []string
	}
	queue := []frame{{nodeIDs: []string{sourceID}}}
	for len(queue) > 0 && len(paths) < opts.MaxPaths {
		f := queue[0]
		queue = queue[1:]
		current := f.nodeIDs[len(f.nodeIDs)-1]
		if current == targetID {
			p := &types.Path{
				NodeIDs: append([]string(nil), f.nodeIDs...),
				EdgeIDs: append([]string(nil), f.edgeIDs...),
			}
			for _, edgeID := range p.EdgeIDs {
				p.EdgeTypes = append(p.EdgeTypes, s.edges[edgeID].Type)
			}
			paths = append(paths, p)
			continue
		}
		if len(f.edgeIDs) >= opts.MaxDepth {
			continue
		}
		for _, edgeID := range s.incidentLocked(current, opts.EdgeTypes, now) {
			e := s.edges[edgeID]
			other := e.TargetID
			if other == current {
				other = e.SourceID
			}
			if containsString(f.nodeIDs, other) {
				continue
			}
			queue = append(queue, frame{
				nodeIDs: append(append([]string(nil), f.nodeIDs...), other),
				edgeIDs: append(append([]string(nil), f.edgeIDs...), edgeID),
			})
		}
	}
	return paths, nil
}

// ShortestPath returns the hop distance and edge-type sequence of the
// shortest undirected path between two nodes, bounded by maxLen. The third
// return is false when no path exists within the bound.
func (s *Store) ShortestPath(fromID, toID string, maxLen int) (int, []types.EdgeType, bool) {
	if maxLen <= 0 {
		maxLen = 3
	}
	if fromID == toID {
		return 0, nil, true
	}
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()
	type frame struct {
		id        string
		depth     int
		edgeTypes []types.EdgeType
	}
	visited := map[string]bool{fromID: true}
	queue := []frame{{id: fromID}}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if f.depth >= maxLen {
			continue
		}
		for _, edgeID := range s.incidentLocked(f.id, nil, now) {
			e := s.edges[edgeID]
			other := e.TargetID
			if other == f.id {
				other = e.SourceID
			}
			if visited[other] {
				continue
			}
			edgeTypes := append(append([]types.EdgeType(nil), f.edgeTypes...), e.Type)
			if other == toID {
				return f.depth + 1, edgeTypes, true
			}
			visited[other] = true
			queue = append(queue, frame{id: other, depth: f.depth + 1, edgeTypes: edgeTypes})
		}
	}
	return 0, nil, false
}

// Neighbors returns the entity neighbors of a node over relates_to edges,
// with parallel-edge counts. This is the projection unit for community
// detection over the entity subgraph.
func (s *Store) Neighbors(id string) []types.Neighbor {
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, edgeID := range append(append([]string(nil), s.out[id]...), s.in[id]...) {
		e := s.edges[edgeID]
		if e == nil || e.Type != types.RelatesToEdgeType || e.Expired(now) || e.Invalid(now) {
			continue
		}
		other := e.TargetID
		if other == id {
			other = e.SourceID
		}
		if n, ok := s.nodes[other]; !ok || n.Type != types.EntityNodeType || n.Expired(now) {
			continue
		}
		counts[other]++
	}
	ids := make([]string, 0, len(counts))
	for nid := range counts {
		ids = append(ids, nid)
	}
	sort.Strings(ids)
	neighbors := make([]types.Neighbor, 0, len(ids))
	for _, nid := range ids {
		neighbors = append(neighbors, types.Neighbor{NodeID: nid, EdgeCount: counts[nid]})
	}
	return neighbors
}

// EntityIDs returns the ids of all live entity nodes, optionally scoped to
// a session.
func (s *Store) EntityIDs(sessionID string) []string {
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, n := range s.nodes {
		if n.Type != types.EntityNodeType || n.Expired(now) {
			continue
		}
		if sessionID != "" && n.SessionID != sessionID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EpisodeMentionCount returns how many episodes mention the given node.
func (s *Store) EpisodeMentionCount(id string) int {
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, edgeID := range s.in[id] {
		e := s.edges[edgeID]
		if e == nil || e.Type != types.MentionsEdgeType || e.Expired(now) {
			continue
		}
		count++
	}
	return count
}

// adjacentLocked returns neighbor node ids over live edges in the given
// direction.
func (s *Store) adjacentLocked(id string, dir Direction, edgeTypes []types.EdgeType, now time.Time) []string {
	var edgeIDs []string
	if dir == DirectionOut || dir == DirectionBoth {
		edgeIDs = append(edgeIDs, s.out[id]...)
	}
	if dir == DirectionIn || dir == DirectionBoth {
		edgeIDs = append(edgeIDs, s.in[id]...)
	}
	var neighbors []string
	for _, edgeID := range edgeIDs {
		e := s.edges[edgeID]
		if e == nil || e.Expired(now) || e.Invalid(now) {
			continue
		}
		if len(edgeTypes) > 0 {
			ok := false
			for _, t := range edgeTypes {
				if e.Type == t {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}
		other := e.TargetID
		if other == id {
			other = e.SourceID
		}
		neighbors = append(neighbors, other)
	}
	return neighbors
}

// incidentLocked returns live edge ids touching a node in either direction.
func (s *Store) incidentLocked(id string, edgeTypes []types.EdgeType, now time.Time) []string {
	var out []string
	for _, edgeID := range append(append([]string(nil), s.out[id]...), s.in[id]...) {
		e := s.edges[edgeID]
		if e == nil || e.Expired(now) || e.Invalid(now) {
			continue
		}
		if len(edgeTypes) > 0 {
			ok := false
			for _, t := range edgeTypes {
				if e.Type == t {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, edgeID)
	}
	return out
}
