// Package store implements the in-memory bi-temporal graph store.
//
// The store exclusively owns node and edge lifecycle. Records are never
// rewritten in place by temporal progression: expiry (ExpiredAt) and
// invalidation (InvalidAt) exclude records from default queries without
// removing them, while Delete is a distinct hard removal.
//
// All operations take a read or write lock for their full duration, so each
// call observes a consistent snapshot. The store performs no internal
// serialization of writers beyond that; single-writer discipline per graph
// instance is the caller's responsibility.
package store
