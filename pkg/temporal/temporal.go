// Package temporal resolves "as of" semantics against the bi-temporal
// store. It answers what the engine knew at a system time, what was true at
// an episode time, or both, without ever mutating the store.
package temporal

import (
	"time"

	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/types"
)

// Mode selects which timeline an as-of query is resolved against.
type Mode string

const (
	// ModeSystem answers "as the system knew it": a record is excluded
	// when CreatedAt > asOf or ExpiredAt <= asOf.
	ModeSystem Mode = "system"
	// ModeEpisode answers "as of real-world validity": a record is
	// excluded when ValidAt is unset or after asOf, or, for edges, when
	// InvalidAt <= asOf.
	ModeEpisode Mode = "episode"
	// ModeBoth requires both checks to pass, short-circuiting on the
	// system-time check.
	ModeBoth Mode = "both"
)

// Processor resolves point-in-time queries against a store.
type Processor struct {
	store *store.Store
}

// NewProcessor creates a temporal query processor over the given store.
func NewProcessor(s *store.Store) *Processor {
	return &Processor{store: s}
}

// GetNodeAsOf returns the node as visible at asOf under the given mode, or
// NotFound when the record is outside the requested timeline.
func (p *Processor) GetNodeAsOf(id string, asOf time.Time, mode Mode) (*types.Node, error) {
	n, err := p.store.GetNode(id)
	if err != nil {
		return nil, err
	}
	if !nodeVisible(n, asOf, mode) {
		return nil, types.NewNodeNotFound(id)
	}
	return n, nil
}

// GetEdgeAsOf returns the edge as visible at asOf under the given mode, or
// NotFound when the record is outside the requested timeline.
func (p *Processor) GetEdgeAsOf(id string, asOf time.Time, mode Mode) (*types.Edge, error) {
	e, err := p.store.GetEdge(id)
	if err != nil {
		return nil, err
	}
	if !edgeVisible(e, asOf, mode) {
		return nil, types.NewEdgeNotFound(id)
	}
	return e, nil
}

// EdgesAsOf filters a set of edges down to those visible at asOf.
func (p *Processor) EdgesAsOf(edges []*types.Edge, asOf time.Time, mode Mode) []*types.Edge {
	var out []*types.Edge
	for _, e := range edges {
		if edgeVisible(e, asOf, mode) {
			out = append(out, e)
		}
	}
	return out
}

func nodeVisible(n *types.Node, asOf time.Time, mode Mode) bool {
	switch mode {
	case ModeSystem:
		return nodeSystemVisible(n, asOf)
	case ModeEpisode:
		return nodeEpisodeVisible(n, asOf)
	case ModeBoth:
		if !nodeSystemVisible(n, asOf) {
			return false
		}
		return nodeEpisodeVisible(n, asOf)
	default:
		return false
	}
}

func nodeSystemVisible(n *types.Node, asOf time.Time) bool {
	if n.CreatedAt.After(asOf) {
		return false
	}
	if n.ExpiredAt != nil && !n.ExpiredAt.After(asOf) {
		return false
	}
	return true
}

func nodeEpisodeVisible(n *types.Node, asOf time.Time) bool {
	if n.ValidAt.IsZero() || n.ValidAt.After(asOf) {
		return false
	}
	return true
}

func edgeVisible(e *types.Edge, asOf time.Time, mode Mode) bool {
	switch mode {
	case ModeSystem:
		return edgeSystemVisible(e, asOf)
	case ModeEpisode:
		return edgeEpisodeVisible(e, asOf)
	case ModeBoth:
		if !edgeSystemVisible(e, asOf) {
			return false
		}
		return edgeEpisodeVisible(e, asOf)
	default:
		return false
	}
}

func edgeSystemVisible(e *types.Edge, asOf time.Time) bool {
	if e.CreatedAt.After(asOf) {
		return false
	}
	if e.ExpiredAt != nil && !e.ExpiredAt.After(asOf) {
		return false
	}
	return true
}

func edgeEpisodeVisible(e *types.Edge, asOf time.Time) bool {
	if e.ValidAt.IsZero() || e.ValidAt.After(asOf) {
		return false
	}
	if e.InvalidAt != nil && !e.InvalidAt.After(asOf) {
		return false
	}
	return true
}
