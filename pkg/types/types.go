package types

import (
	"time"
)

// NodeType represents the type of a node.
type NodeType string

const (
	// EntityNodeType represents entities extracted from episode content.
	EntityNodeType NodeType = "entity"
	// EpisodeNodeType represents raw recorded interaction turns.
	EpisodeNodeType NodeType = "episode"
	// CommunityNodeType represents derived clusters of related entities.
	CommunityNodeType NodeType = "community"
)

// EdgeType represents the type of an edge.
type EdgeType string

const (
	// RelatesToEdgeType connects two entity nodes.
	RelatesToEdgeType EdgeType = "relates_to"
	// MentionsEdgeType connects an episode to an entity it mentions.
	MentionsEdgeType EdgeType = "mentions"
	// HasMemberEdgeType connects a community node to a member entity.
	HasMemberEdgeType EdgeType = "has_member"
)

// Node is a typed unit in the knowledge graph: an entity, an episode, or a
// community node. Content is an opaque payload; Metadata is free-form with
// insertion order irrelevant.
type Node struct {
	ID        string         `json:"id" mapstructure:"id"`
	Type      NodeType       `json:"type" mapstructure:"type"`
	Name      string         `json:"name,omitempty" mapstructure:"name"`
	Content   string         `json:"content,omitempty" mapstructure:"content"`
	SessionID string         `json:"session_id,omitempty" mapstructure:"session_id"`
	Metadata  map[string]any `json:"metadata,omitempty" mapstructure:"metadata"`
	Embedding []float32      `json:"embedding,omitempty" mapstructure:"embedding"`

	// CreatedAt is system time: when the engine learned the record.
	// Immutable once set.
	CreatedAt time.Time `json:"created_at" mapstructure:"created_at"`
	// ValidAt is episode time: when the fact became true. Defaults to
	// CreatedAt when absent.
	ValidAt time.Time `json:"valid_at" mapstructure:"valid_at"`
	// ExpiredAt marks when the engine stopped tracking the record.
	ExpiredAt *time.Time `json:"expired_at,omitempty" mapstructure:"expired_at"`

	// Episode carries the original interaction payload for episode nodes.
	Episode *EpisodeContent `json:"episode,omitempty" mapstructure:"episode"`
}

// Edge is a typed relationship between two nodes, with the same temporal
// fields as a node plus InvalidAt for when the relationship stopped holding.
type Edge struct {
	ID        string         `json:"id" mapstructure:"id"`
	Type      EdgeType       `json:"type" mapstructure:"type"`
	SourceID  string         `json:"source_id" mapstructure:"source_id"`
	TargetID  string         `json:"target_id" mapstructure:"target_id"`
	Name      string         `json:"name,omitempty" mapstructure:"name"`
	Content   string         `json:"content,omitempty" mapstructure:"content"`
	SessionID string         `json:"session_id,omitempty" mapstructure:"session_id"`
	Metadata  map[string]any `json:"metadata,omitempty" mapstructure:"metadata"`
	Embedding []float32      `json:"embedding,omitempty" mapstructure:"embedding"`

	CreatedAt time.Time  `json:"created_at" mapstructure:"created_at"`
	ValidAt   time.Time  `json:"valid_at" mapstructure:"valid_at"`
	ExpiredAt *time.Time `json:"expired_at,omitempty" mapstructure:"expired_at"`
	InvalidAt *time.Time `json:"invalid_at,omitempty" mapstructure:"invalid_at"`
}

// EpisodeContent is the agent-shell ingestion payload for a single
// interaction turn.
type EpisodeContent struct {
	Body              string    `json:"body" mapstructure:"body"`
	Source            string    `json:"source" mapstructure:"source"`
	SourceDescription string    `json:"source_description,omitempty" mapstructure:"source_description"`
	Timestamp         time.Time `json:"timestamp" mapstructure:"timestamp"`
	SessionID         string    `json:"session_id" mapstructure:"session_id"`
}

// Validate checks the episode payload for required fields.
func (e *EpisodeContent) Validate() error {
	if e.Body == "" {
		return ErrEmptyContent
	}
	if e.SessionID == "" {
		return ErrEmptySessionID
	}
	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// TimeRange represents a half-open time interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range. A zero Start or End
// leaves that side unbounded.
func (r *TimeRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && !t.Before(r.End) {
		return false
	}
	return true
}

// Community is a derived cluster of entity nodes. Communities are
// rebuildable state: they reference member node ids but own no graph
// records themselves.
type Community struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Confidence float64  `json:"confidence"`
	Members    []string `json:"members"`

	// Meta is tracked separately from clustering output and updated on
	// every incremental call.
	Meta CommunityMeta `json:"meta"`
}

// CommunityMeta holds bookkeeping for a community.
type CommunityMeta struct {
	MemberCount    int       `json:"member_count"`
	LastUpdateTime time.Time `json:"last_update_time"`
	// DivergenceScore measures neighbor disagreement about membership,
	// in [0,1]. 0 means all neighbors agree.
	DivergenceScore float64 `json:"divergence_score"`
}

// HasMember reports whether the community contains the given node id.
func (c *Community) HasMember(id string) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// GraphStats holds counts describing the current graph.
type GraphStats struct {
	NodeCount      int64            `json:"node_count"`
	EdgeCount      int64            `json:"edge_count"`
	NodesByType    map[string]int64 `json:"nodes_by_type"`
	EdgesByType    map[string]int64 `json:"edges_by_type"`
	CommunityCount int64            `json:"community_count"`
	LastUpdated    time.Time        `json:"last_updated"`
}
