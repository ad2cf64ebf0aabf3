package types

import (
	"time"

	"github.com/google/uuid"
)

// NewEdge creates an edge of the given type between two node ids, with
// system and valid time set to now.
func NewEdge(edgeType EdgeType, sourceID, targetID, name, sessionID string) *Edge {
	now := time.Now().UTC()
	return &Edge{
		ID:        uuid.NewString(),
		Type:      edgeType,
		SourceID:  sourceID,
		TargetID:  targetID,
		Name:      name,
		SessionID: sessionID,
		CreatedAt: now,
		ValidAt:   now,
		Metadata:  make(map[string]any),
	}
}

// Validate checks structural invariants before the edge enters the store.
// Endpoint existence is checked by the store, which owns node lifecycle.
func (e *Edge) Validate() error {
	if e.ID == "" {
		return ErrEmptyID
	}
	if e.SourceID == "" || e.TargetID == "" {
		return &DanglingEdgeError{EdgeID: e.ID, NodeID: ""}
	}
	return nil
}

// Expired reports whether the edge is expired as of t (system time).
func (e *Edge) Expired(t time.Time) bool {
	return e.ExpiredAt != nil && !e.ExpiredAt.After(t)
}

// Invalid reports whether the relationship had stopped holding as of t
// (episode time).
func (e *Edge) Invalid(t time.Time) bool {
	return e.InvalidAt != nil && !e.InvalidAt.After(t)
}

// Clone returns a deep copy of the edge.
func (e *Edge) Clone() *Edge {
	out := *e
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	if e.Embedding != nil {
		out.Embedding = append([]float32(nil), e.Embedding...)
	}
	if e.ExpiredAt != nil {
		t := *e.ExpiredAt
		out.ExpiredAt = &t
	}
	if e.InvalidAt != nil {
		t := *e.InvalidAt
		out.InvalidAt = &t
	}
	return &out
}
