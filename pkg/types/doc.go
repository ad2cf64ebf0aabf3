// Package types defines the core data model shared across the engram
// engine: bi-temporal graph nodes and edges, episode payloads, communities,
// and the typed errors surfaced at the public boundary.
//
// The model is bi-temporal: every record carries both system time
// (CreatedAt, when the engine learned the fact) and valid time (ValidAt,
// when the fact became true in the episode timeline). Records are expired
// (ExpiredAt) or invalidated (InvalidAt, edges only) rather than rewritten;
// hard deletion is a separate, explicit operation.
package types
