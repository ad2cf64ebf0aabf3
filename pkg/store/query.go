package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/engramdb/engram/pkg/types"
	"github.com/engramdb/engram/pkg/utils"
)

// NodeFilter constrains a node query. All set predicates must match.
type NodeFilter struct {
	IDs        []string
	Types      []types.NodeType
	SessionIDs []string
	// Metadata entries that must all be present with equal values.
	Metadata map[string]any
	// Embedding enables similarity filtering: nodes whose embedding has
	// cosine similarity >= MinSimilarity are kept, ordered best-first.
	Embedding     []float32
	MinSimilarity float64
	// Valid constrains ValidAt to a time range.
	Valid *types.TimeRange
	// IncludeExpired keeps records whose ExpiredAt has already passed.
	IncludeExpired bool
	Limit          int
}

// EdgeFilter constrains an edge query.
type EdgeFilter struct {
	IDs        []string
	Types      []types.EdgeType
	SessionIDs []string
	SourceIDs  []string
	TargetIDs  []string
	Metadata   map[string]any
	Valid      *types.TimeRange
	// IncludeInvalid keeps edges whose InvalidAt has already passed.
	IncludeInvalid bool
	IncludeExpired bool
	Limit          int
}

// QueryNodes returns nodes matching the filter, deduplicated by derived
// key: episode nodes collapse on their mentioned entity set, other nodes on
// sorted metadata. Logically identical facts therefore collapse to one
// representative, so callers must not assume a stable node count across
// otherwise-equivalent queries.
func (s *Store) QueryNodes(filter NodeFilter) []*types.Node {
	now := time.Now().UTC()

	s.mu.RLock()
	var matched []*types.Node
	for _, n := range s.nodes {
		if !s.nodeMatchesLocked(n, &filter, now) {
			continue
		}
		matched = append(matched, n)
	}

	// Dedup before cloning: pick one representative per derived key,
	// preferring the earliest-created record for stability.
	byKey := make(map[string]*types.Node, len(matched))
	for _, n := range matched {
		key := s.nodeDedupKeyLocked(n)
		if prev, ok := byKey[key]; ok {
			if n.CreatedAt.After(prev.CreatedAt) {
				continue
			}
			if n.CreatedAt.Equal(prev.CreatedAt) && n.ID > prev.ID {
				continue
			}
		}
		byKey[key] = n
	}
	results := make([]*types.Node, 0, len(byKey))
	for _, n := range byKey {
		results = append(results, n.Clone())
	}
	s.mu.RUnlock()

	if len(filter.Embedding) > 0 {
		sort.Slice(results, func(i, j int) bool {
			si := utils.CosineSimilarity(filter.Embedding, results[i].Embedding)
			sj := utils.CosineSimilarity(filter.Embedding, results[j].Embedding)
			if si != sj {
				return si > sj
			}
			return results[i].ID < results[j].ID
		})
	} else {
		sort.Slice(results, func(i, j int) bool {
			if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
				return results[i].CreatedAt.Before(results[j].CreatedAt)
			}
			return results[i].ID < results[j].ID
		})
	}
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results
}

// QueryEdges returns edges matching the filter, deduplicated on
// (type, source, target, sorted metadata).
func (s *Store) QueryEdges(filter EdgeFilter) []*types.Edge {
	now := time.Now().UTC()

	s.mu.RLock()
	byKey := make(map[string]*types.Edge)
	for _, e := range s.edges {
		if !edgeMatches(e, &filter, now) {
			continue
		}
		key := fmt.Sprintf("%s|%s|%s|%s", e.Type, e.SourceID, e.TargetID, sortedMetadataKey(e.Metadata))
		if prev, ok := byKey[key]; ok {
			if e.CreatedAt.After(prev.CreatedAt) {
				continue
			}
			if e.CreatedAt.Equal(prev.CreatedAt) && e.ID > prev.ID {
				continue
			}
		}
		byKey[key] = e
	}
	results := make([]*types.Edge, 0, len(byKey))
	for _, e := range byKey {
		results = append(results, e.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.Before(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results
}

func (s *Store) nodeMatchesLocked(n *types.Node, filter *NodeFilter, now time.Time) bool {
	if !filter.IncludeExpired && n.Expired(now) {
		return false
	}
	if len(filter.IDs) > 0 && !containsString(filter.IDs, n.ID) {
		return false
	}
	if len(filter.Types) > 0 {
		ok := false
		for _, t := range filter.Types {
			if n.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(filter.SessionIDs) > 0 && !containsString(filter.SessionIDs, n.SessionID) {
		return false
	}
	for k, want := range filter.Metadata {
		got, ok := n.Metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	if filter.Valid != nil && !filter.Valid.Contains(n.ValidAt) {
		return false
	}
	if len(filter.Embedding) > 0 {
		if len(n.Embedding) == 0 {
			return false
		}
		if utils.CosineSimilarity(filter.Embedding, n.Embedding) < filter.MinSimilarity {
			return false
		}
	}
	return true
}

func edgeMatches(e *types.Edge, filter *EdgeFilter, now time.Time) bool {
	if !filter.IncludeExpired && e.Expired(now) {
		return false
	}
	if !filter.IncludeInvalid && e.Invalid(now) {
		return false
	}
	if len(filter.IDs) > 0 && !containsString(filter.IDs, e.ID) {
		return false
	}
	if len(filter.Types) > 0 {
		ok := false
		for _, t := range filter.Types {
			if e.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(filter.SessionIDs) > 0 && !containsString(filter.SessionIDs, e.SessionID) {
		return false
	}
	if len(filter.SourceIDs) > 0 && !containsString(filter.SourceIDs, e.SourceID) {
		return false
	}
	if len(filter.TargetIDs) > 0 && !containsString(filter.TargetIDs, e.TargetID) {
		return false
	}
	for k, want := range filter.Metadata {
		got, ok := e.Metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	if filter.Valid != nil && !filter.Valid.Contains(e.ValidAt) {
		return false
	}
	return true
}

// nodeDedupKeyLocked derives the grouping key used for query deduplication.
// Episode nodes group on the sorted set of entities they mention; other
// nodes group on name plus sorted metadata. Nodes with nothing to group on
// keep their id and never collapse.
func (s *Store) nodeDedupKeyLocked(n *types.Node) string {
	if n.Type == types.EpisodeNodeType {
		var entities []string
		for _, edgeID := range s.out[n.ID] {
			e := s.edges[edgeID]
			if e != nil && e.Type == types.MentionsEdgeType {
				entities = append(entities, e.TargetID)
			}
		}
		if len(entities) > 0 {
			sort.Strings(entities)
			return "episode:" + strings.Join(entities, ",")
		}
		return "id:" + n.ID
	}
	if key := sortedMetadataKey(n.Metadata); key != "" {
		return string(n.Type) + ":" + n.Name + ":" + key
	}
	return "id:" + n.ID
}

func sortedMetadataKey(metadata map[string]any) string {
	if len(metadata) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(metadata))
	for k, v := range metadata {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
