package store

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/engramdb/engram/pkg/types"
)

// Store is an in-memory bi-temporal graph store.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*types.Node
	edges map[string]*types.Edge

	// adjacency: node id -> edge ids, by direction
	out map[string][]string
	in  map[string][]string

	lastUpdated time.Time
	logger      *slog.Logger
}

// New creates an empty store. A nil logger discards log output.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		nodes:  make(map[string]*types.Node),
		edges:  make(map[string]*types.Edge),
		out:    make(map[string][]string),
		in:     make(map[string][]string),
		logger: logger,
	}
}

// AddNode inserts a node. Missing CreatedAt defaults to now and missing
// ValidAt defaults to CreatedAt. Re-adding an existing id replaces the
// record but preserves the original CreatedAt, which is immutable once set.
// Episode temporal invariants are checked here and fail fast.
func (s *Store) AddNode(node *types.Node) error {
	if node == nil || node.ID == "" {
		return types.ErrEmptyID
	}
	n := node.Clone()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.ValidAt.IsZero() {
		n.ValidAt = n.CreatedAt
	}
	if err := n.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.nodes[n.ID]; ok {
		n.CreatedAt = existing.CreatedAt
	}
	s.nodes[n.ID] = n
	s.touch()
	s.logger.Debug("node added", "id", n.ID, "type", n.Type)
	return nil
}

// GetNode returns a copy of the node, or NotFound.
func (s *Store) GetNode(id string) (*types.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, types.NewNodeNotFound(id)
	}
	return n.Clone(), nil
}

// NodePatch describes a partial node update. Nil fields are left unchanged,
// preserving the original temporal fields in particular.
type NodePatch struct {
	Name      *string
	Content   *string
	Metadata  map[string]any // merged key-by-key
	Embedding []float32
	ValidAt   *time.Time
	ExpiredAt *time.Time
}

// UpdateNode merges a partial patch into an existing node. CreatedAt is
// never modified. Updating a missing id returns NotFound. The patch is
// applied to a copy and swapped in only after validation, so a rejected
// update leaves the stored record untouched.
func (s *Store) UpdateNode(id string, patch NodePatch) (*types.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.nodes[id]
	if !ok {
		return nil, types.NewNodeNotFound(id)
	}
	n := existing.Clone()
	if patch.Name != nil {
		n.Name = *patch.Name
	}
	if patch.Content != nil {
		n.Content = *patch.Content
	}
	if patch.Metadata != nil {
		if n.Metadata == nil {
			n.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			n.Metadata[k] = v
		}
	}
	if patch.Embedding != nil {
		n.Embedding = append([]float32(nil), patch.Embedding...)
	}
	if patch.ValidAt != nil {
		n.ValidAt = *patch.ValidAt
	}
	if patch.ExpiredAt != nil {
		t := *patch.ExpiredAt
		n.ExpiredAt = &t
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	s.nodes[id] = n
	s.touch()
	return n.Clone(), nil
}

// DeleteNode hard-deletes a node and detaches its incident edges. This is
// distinct from expiry: the record is physically removed.
func (s *Store) DeleteNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return types.NewNodeNotFound(id)
	}
	for _, edgeID := range append(append([]string(nil), s.out[id]...), s.in[id]...) {
		s.removeEdgeLocked(edgeID)
	}
	delete(s.nodes, id)
	delete(s.out, id)
	delete(s.in, id)
	s.touch()
	s.logger.Debug("node deleted", "id", id)
	return nil
}

// AddEdge inserts an edge. Both endpoints must exist; a missing endpoint is
// an error, not a no-op. Temporal defaults follow AddNode.
func (s *Store) AddEdge(edge *types.Edge) error {
	if edge == nil || edge.ID == "" {
		return types.ErrEmptyID
	}
	e := edge.Clone()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.ValidAt.IsZero() {
		e.ValidAt = e.CreatedAt
	}
	if err := e.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[e.SourceID]; !ok {
		return &types.DanglingEdgeError{EdgeID: e.ID, NodeID: e.SourceID}
	}
	if _, ok := s.nodes[e.TargetID]; !ok {
		return &types.DanglingEdgeError{EdgeID: e.ID, NodeID: e.TargetID}
	}
	if existing, ok := s.edges[e.ID]; ok {
		e.CreatedAt = existing.CreatedAt
		s.removeEdgeLocked(e.ID)
	}
	s.edges[e.ID] = e
	s.out[e.SourceID] = append(s.out[e.SourceID], e.ID)
	s.in[e.TargetID] = append(s.in[e.TargetID], e.ID)
	s.touch()
	s.logger.Debug("edge added", "id", e.ID, "type", e.Type, "source", e.SourceID, "target", e.TargetID)
	return nil
}

// GetEdge returns a copy of the edge, or NotFound.
func (s *Store) GetEdge(id string) (*types.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return nil, types.NewEdgeNotFound(id)
	}
	return e.Clone(), nil
}

// EdgePatch describes a partial edge update.
type EdgePatch struct {
	Name      *string
	Content   *string
	Metadata  map[string]any
	Embedding []float32
	ValidAt   *time.Time
	ExpiredAt *time.Time
	InvalidAt *time.Time
}

// UpdateEdge merges a partial patch into an existing edge.
func (s *Store) UpdateEdge(id string, patch EdgePatch) (*types.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[id]
	if !ok {
		return nil, types.NewEdgeNotFound(id)
	}
	if patch.Name != nil {
		e.Name = *patch.Name
	}
	if patch.Content != nil {
		e.Content = *patch.Content
	}
	if patch.Metadata != nil {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any, len(patch.Metadata))
		}
		for k, v := range patch.Metadata {
			e.Metadata[k] = v
		}
	}
	if patch.Embedding != nil {
		e.Embedding = append([]float32(nil), patch.Embedding...)
	}
	if patch.ValidAt != nil {
		e.ValidAt = *patch.ValidAt
	}
	if patch.ExpiredAt != nil {
		t := *patch.ExpiredAt
		e.ExpiredAt = &t
	}
	if patch.InvalidAt != nil {
		t := *patch.InvalidAt
		e.InvalidAt = &t
	}
	s.touch()
	return e.Clone(), nil
}

// DeleteEdge hard-deletes an edge.
func (s *Store) DeleteEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.edges[id]; !ok {
		return types.NewEdgeNotFound(id)
	}
	s.removeEdgeLocked(id)
	s.touch()
	return nil
}

// GetEpisodes returns episode nodes for a session ordered by valid time
// descending, newest first. A limit <= 0 returns all of them.
func (s *Store) GetEpisodes(sessionID string, limit int) []*types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var episodes []*types.Node
	for _, n := range s.nodes {
		if n.Type != types.EpisodeNodeType {
			continue
		}
		if sessionID != "" && n.SessionID != sessionID {
			continue
		}
		episodes = append(episodes, n.Clone())
	}
	sort.Slice(episodes, func(i, j int) bool {
		if !episodes[i].ValidAt.Equal(episodes[j].ValidAt) {
			return episodes[i].ValidAt.After(episodes[j].ValidAt)
		}
		return episodes[i].ID < episodes[j].ID
	})
	if limit > 0 && len(episodes) > limit {
		episodes = episodes[:limit]
	}
	return episodes
}

// SessionNodeIDs returns the id of every node owned by a session, expired
// included. Unlike QueryNodes there is no deduplication, so callers see
// every physical record.
func (s *Store) SessionNodeIDs(sessionID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, n := range s.nodes {
		if n.SessionID == sessionID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ClearSession hard-deletes every node and edge owned by a session.
func (s *Store) ClearSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.edges {
		if e.SessionID == sessionID {
			s.removeEdgeLocked(id)
		}
	}
	for id, n := range s.nodes {
		if n.SessionID != sessionID {
			continue
		}
		for _, edgeID := range append(append([]string(nil), s.out[id]...), s.in[id]...) {
			s.removeEdgeLocked(edgeID)
		}
		delete(s.nodes, id)
		delete(s.out, id)
		delete(s.in, id)
	}
	s.touch()
	s.logger.Info("session cleared", "session_id", sessionID)
}

// Stats returns counts describing the current graph.
func (s *Store) Stats() *types.GraphStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &types.GraphStats{
		NodeCount:   int64(len(s.nodes)),
		EdgeCount:   int64(len(s.edges)),
		NodesByType: make(map[string]int64),
		EdgesByType: make(map[string]int64),
		LastUpdated: s.lastUpdated,
	}
	for _, n := range s.nodes {
		stats.NodesByType[string(n.Type)]++
	}
	for _, e := range s.edges {
		stats.EdgesByType[string(e.Type)]++
	}
	return stats
}

func (s *Store) removeEdgeLocked(id string) {
	e, ok := s.edges[id]
	if !ok {
		return
	}
	s.out[e.SourceID] = removeString(s.out[e.SourceID], id)
	s.in[e.TargetID] = removeString(s.in[e.TargetID], id)
	delete(s.edges, id)
}

func (s *Store) touch() {
	s.lastUpdated = time.Now().UTC()
}

func removeString(list []string, v string) []string {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
