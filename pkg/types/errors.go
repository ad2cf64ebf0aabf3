package types

import (
	"errors"
	"fmt"
)

// Validation errors surfaced when constructing or persisting records.
var (
	ErrEmptyID          = errors.New("id cannot be empty")
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrEmptySessionID   = errors.New("session_id cannot be empty")
	ErrMissingTimestamp = errors.New("episode timestamp is required")
	ErrInvalidLimit     = errors.New("limit must be positive")

	// ErrNotFound is the sentinel wrapped by NotFoundError; use
	// errors.Is(err, ErrNotFound) at call sites.
	ErrNotFound = errors.New("not found")

	// ErrEpisodeTimestampMismatch indicates an episode node whose ValidAt
	// disagrees with the timestamp embedded in its content. This is a
	// construction error, never silently corrected.
	ErrEpisodeTimestampMismatch = errors.New("episode valid_at does not match content timestamp")
)

// NotFoundError reports a reference to a record the store does not hold.
type NotFoundError struct {
	Kind string // "node", "edge", or "community"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNodeNotFound returns a NotFoundError for a node id.
func NewNodeNotFound(id string) *NotFoundError {
	return &NotFoundError{Kind: "node", ID: id}
}

// NewEdgeNotFound returns a NotFoundError for an edge id.
func NewEdgeNotFound(id string) *NotFoundError {
	return &NotFoundError{Kind: "edge", ID: id}
}

// NewCommunityNotFound returns a NotFoundError for a community id.
func NewCommunityNotFound(id string) *NotFoundError {
	return &NotFoundError{Kind: "community", ID: id}
}

// DanglingEdgeError reports an edge referencing a node id the store does
// not hold. Referencing a missing endpoint is an error, not a no-op.
type DanglingEdgeError struct {
	EdgeID string
	NodeID string
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("edge %s references missing node %s", e.EdgeID, e.NodeID)
}
