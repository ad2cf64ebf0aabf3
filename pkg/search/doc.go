// Package search implements the hybrid retrieval pipeline: per-candidate
// lexical (BM25), vector-similarity, graph-proximity, and recency signals,
// an optional batched cross-encoder score, weighted or reciprocal-rank
// fusion, and an optional maximal-marginal-relevance diversity pass.
//
// The searcher operates on candidate sets the caller has already filtered
// out of the store; it never queries for candidates itself. Embeddings are
// resolved through the embedding cache with the injected embed function as
// the miss path.
package search
