// Package engram is a bi-temporal knowledge-graph memory engine for
// conversational agents. It records interaction turns as episodes, distills
// them into entities and relationships with validity intervals on two
// timelines (when the system learned a fact, and when it was true in the
// world), clusters related entities into communities, and answers
// time-aware hybrid-ranked queries over the accumulated graph.
//
// The Manager is the single public surface: it composes the bi-temporal
// store, the temporal query processor, the community detector, the hybrid
// searcher, and the embedding cache, and it alone talks to the reasoning
// and embedding collaborators. Callers are expected to serialize mutating
// calls per Manager instance.
package engram
