// Package community detects clusters of related entities over the entity
// subgraph using label propagation, and keeps them current through
// incremental per-node updates, pairwise merging, and divergence-triggered
// refresh.
//
// Communities are derived, rebuildable state: the detector holds only
// references into store-owned node ids and can always be rebuilt from the
// graph. Human-readable labeling is delegated to a caller-supplied function
// so the detector itself never talks to external collaborators.
package community
