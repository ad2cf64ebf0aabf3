package types

import (
	"time"

	"github.com/google/uuid"
)

// NewEntityNode creates an entity node with system and valid time set to now.
func NewEntityNode(name, content, sessionID string) *Node {
	now := time.Now().UTC()
	return &Node{
		ID:        uuid.NewString(),
		Type:      EntityNodeType,
		Name:      name,
		Content:   content,
		SessionID: sessionID,
		CreatedAt: now,
		ValidAt:   now,
		Metadata:  make(map[string]any),
	}
}

// NewEpisodeNode creates an episode node from an ingestion payload. The
// node's ValidAt is taken from the payload timestamp, keeping the episode
// timestamp invariant true by construction.
func NewEpisodeNode(content EpisodeContent) (*Node, error) {
	if err := content.Validate(); err != nil {
		return nil, err
	}
	c := content
	return &Node{
		ID:        uuid.NewString(),
		Type:      EpisodeNodeType,
		Name:      c.Source,
		Content:   c.Body,
		SessionID: c.SessionID,
		CreatedAt: time.Now().UTC(),
		ValidAt:   c.Timestamp,
		Metadata:  make(map[string]any),
		Episode:   &c,
	}, nil
}

// Validate checks structural invariants before the node enters the store.
// Episode nodes must have ValidAt equal to the timestamp embedded in their
// content; a mismatch fails fast.
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrEmptyID
	}
	if n.Type == EpisodeNodeType && n.Episode != nil {
		if !n.ValidAt.Equal(n.Episode.Timestamp) {
			return ErrEpisodeTimestampMismatch
		}
	}
	return nil
}

// Expired reports whether the node is expired as of t.
func (n *Node) Expired(t time.Time) bool {
	return n.ExpiredAt != nil && !n.ExpiredAt.After(t)
}

// Clone returns a deep copy of the node. Metadata and embedding slices are
// copied so callers cannot mutate store-owned state.
func (n *Node) Clone() *Node {
	out := *n
	if n.Metadata != nil {
		out.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	if n.Embedding != nil {
		out.Embedding = append([]float32(nil), n.Embedding...)
	}
	if n.ExpiredAt != nil {
		t := *n.ExpiredAt
		out.ExpiredAt = &t
	}
	if n.Episode != nil {
		ep := *n.Episode
		out.Episode = &ep
	}
	return &out
}
