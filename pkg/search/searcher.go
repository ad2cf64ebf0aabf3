package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/engramdb/engram/pkg/cache"
	"github.com/engramdb/engram/pkg/types"
	"github.com/engramdb/engram/pkg/utils"
)

// Default pipeline tunables.
const (
	DefaultLimit         = 10
	DefaultMaxPathLength = 3
	DefaultPrerankLimit  = 50
	DefaultHalfLife      = 7 * 24 * time.Hour
)

// EmbedFunc resolves a text to its embedding vector. The graph manager
// injects it so the searcher itself never talks to the embedding
// collaborator directly.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// CrossScoreFunc scores (query, candidate-content) pairs in one batch and
// returns a relevance in [0,1] per candidate id. Injected by the graph
// manager; may fail, in which case the signal is dropped.
type CrossScoreFunc func(ctx context.Context, query string, candidates map[string]string) (map[string]float64, error)

// Config tunes the hybrid search pipeline.
type Config struct {
	// Fusion selects weighted-sum, RRF, or RRF-as-preranker combining.
	Fusion  FusionMode `mapstructure:"fusion"`
	Weights Weights    `mapstructure:"weights"`
	// RankConstant is the k in RRF's 1/(k+rank).
	RankConstant int `mapstructure:"rank_constant"`
	// PrerankLimit caps the candidate set after RRF preranking.
	PrerankLimit int `mapstructure:"prerank_limit"`
	// MaxPathLength bounds the shortest-path search for graph features.
	MaxPathLength int `mapstructure:"max_path_length"`
	// RecencyHalfLife is how long it takes a candidate's recency signal
	// to halve.
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life"`
	// UseMMR enables the diversity pass; MMRLambda trades relevance for
	// novelty.
	UseMMR    bool    `mapstructure:"use_mmr"`
	MMRLambda float64 `mapstructure:"mmr_lambda"`
	// MinCrossScore filters out candidates the cross-encoder scores
	// below it. Only applied when a cross-score function is available.
	MinCrossScore float64 `mapstructure:"min_cross_score"`
	Limit         int     `mapstructure:"limit"`
}

func (c Config) withDefaults() Config {
	if c.Fusion == "" {
		c.Fusion = FusionWeighted
	}
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.RankConstant <= 0 {
		c.RankConstant = DefaultRankConstant
	}
	if c.PrerankLimit <= 0 {
		c.PrerankLimit = DefaultPrerankLimit
	}
	if c.MaxPathLength <= 0 {
		c.MaxPathLength = DefaultMaxPathLength
	}
	if c.RecencyHalfLife <= 0 {
		c.RecencyHalfLife = DefaultHalfLife
	}
	if c.MMRLambda <= 0 {
		c.MMRLambda = DefaultMMRLambda
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	return c
}

// Options carries per-call inputs alongside the query string.
type Options struct {
	// QueryEmbedding skips query embedding when the caller already has
	// the vector.
	QueryEmbedding []float32
	// CenterNodeIDs anchor the graph-proximity signal. Empty disables
	// path scoring.
	CenterNodeIDs []string
	// Reference is the "now" recency decays from. Zero means the wall
	// clock.
	Reference time.Time
}

// Features is the per-signal breakdown behind a result's fused score.
type Features struct {
	Text         float64 `json:"text"`
	Vector       float64 `json:"vector"`
	Graph        float64 `json:"graph"`
	Recency      float64 `json:"recency"`
	CrossEncoder float64 `json:"cross_encoder"`

	PathLength    int              `json:"path_length"`
	PathEdgeTypes []types.EdgeType `json:"path_edge_types,omitempty"`
	MentionCount  int              `json:"mention_count"`
}

// Result is one scored search hit.
type Result struct {
	ID          string   `json:"id"`
	Score       float64  `json:"score"`
	Explanation string   `json:"explanation"`
	Features    Features `json:"features"`
}

// Searcher runs the hybrid scoring pipeline over a caller-supplied
// candidate set. It reads graph features from the store and resolves
// embeddings through the cache, falling back to the injected embed
// function on miss.
type Searcher struct {
	graph      GraphSource
	embeddings *cache.EmbeddingCache
	embed      EmbedFunc
	crossScore CrossScoreFunc
	cfg        Config
	logger     *slog.Logger
}

// NewSearcher wires the pipeline. embed and crossScore may be nil, which
// disables the vector and cross-encoder signals respectively for
// candidates without precomputed embeddings.
func NewSearcher(graph GraphSource, embeddings *cache.EmbeddingCache, embed EmbedFunc, crossScore CrossScoreFunc, cfg Config, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Searcher{
		graph:      graph,
		embeddings: embeddings,
		embed:      embed,
		crossScore: crossScore,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

// Search scores the candidates against the query and returns the fused,
// optionally diversity-adjusted top results.
func (s *Searcher) Search(ctx context.Context, query string, candidates []*types.Node, opts Options) ([]*Result, error) {
	if strings.TrimSpace(query) == "" || len(candidates) == 0 {
		return nil, nil
	}
	reference := opts.Reference
	if reference.IsZero() {
		reference = time.Now().UTC()
	}

	features := make(map[string]*Features, len(candidates))
	for _, c := range candidates {
		features[c.ID] = &Features{}
	}

	text := s.textScores(query, candidates, features)
	vector, embeddings, err := s.vectorScores(ctx, query, candidates, opts.QueryEmbedding, features)
	if err != nil {
		return nil, err
	}
	graph := s.graphScores(candidates, opts.CenterNodeIDs, features)
	recency := s.recencyScores(candidates, reference, features)
	cross, err := s.crossScores(ctx, query, candidates, features)
	if err != nil {
		return nil, err
	}

	signals := map[string]map[string]float64{
		"text": normalizeByMax(text), "vector": vector, "graph": graph, "recency": recency,
	}
	if cross != nil {
		signals["cross"] = cross
	}

	// Candidates the cross-encoder scored below the floor drop out of
	// every signal before fusion.
	if cross != nil && s.cfg.MinCrossScore > 0 {
		kept := make([]*types.Node, 0, len(candidates))
		for _, c := range candidates {
			if cross[c.ID] < s.cfg.MinCrossScore {
				delete(features, c.ID)
				for _, m := range signals {
					delete(m, c.ID)
				}
				continue
			}
			kept = append(kept, c)
		}
		candidates = kept
	}

	ordered, fused := s.fuse(candidates, signals)

	if s.cfg.UseMMR {
		ordered = mmrSelect(ordered, normalizeByMax(fused), embeddings, s.cfg.MMRLambda, s.cfg.Limit)
	} else if len(ordered) > s.cfg.Limit {
		ordered = ordered[:s.cfg.Limit]
	}

	results := make([]*Result, 0, len(ordered))
	for _, id := range ordered {
		f := features[id]
		results = append(results, &Result{
			ID:          id,
			Score:       fused[id],
			Explanation: explain(f),
			Features:    *f,
		})
	}
	s.logger.Debug("search finished",
		slog.String("query", query),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(results)))
	return results, nil
}

// fuse combines the signals per the configured mode and returns the
// ordered ids with their final scores.
func (s *Searcher) fuse(candidates []*types.Node, signals map[string]map[string]float64) ([]string, map[string]float64) {
	switch s.cfg.Fusion {
	case FusionRRF:
		scores := RRF(s.rankings(signals), s.cfg.RankConstant)
		return rankByScore(scores), scores
	case FusionRRFPrerank:
		rrfScores := RRF(s.rankings(signals), s.cfg.RankConstant)
		scored := make([]utils.ScoredItem[string], 0, len(rrfScores))
		for id, score := range rrfScores {
			if score > 0 {
				scored = append(scored, utils.ScoredItem[string]{Item: id, Score: score})
			}
		}
		top := utils.TopKByScore(scored, s.cfg.PrerankLimit)
		keep := make(map[string]bool, len(top))
		for _, item := range top {
			keep[item.Item] = true
		}
		weighted := s.weightedScores(candidates, signals)
		for id := range weighted {
			if !keep[id] {
				delete(weighted, id)
			}
		}
		return rankByScore(weighted), weighted
	default:
		weighted := s.weightedScores(candidates, signals)
		return rankByScore(weighted), weighted
	}
}

// rankings turns each signal's score map into an independent ranked list
// for RRF. Candidates scoring zero in a signal are absent from that source.
func (s *Searcher) rankings(signals map[string]map[string]float64) [][]string {
	names := []string{"text", "vector", "graph", "recency", "cross"}
	var out [][]string
	for _, name := range names {
		scores, ok := signals[name]
		if !ok {
			continue
		}
		if ranked := rankByScore(scores); len(ranked) > 0 {
			out = append(out, ranked)
		}
	}
	return out
}

func (s *Searcher) weightedScores(candidates []*types.Node, signals map[string]map[string]float64) map[string]float64 {
	w := s.cfg.Weights
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		score := w.Text*signals["text"][c.ID] +
			w.Vector*signals["vector"][c.ID] +
			w.Graph*signals["graph"][c.ID] +
			w.Recency*signals["recency"][c.ID]
		if cross, ok := signals["cross"]; ok {
			score += w.CrossEncoder * cross[c.ID]
		}
		out[c.ID] = score
	}
	return out
}

func (s *Searcher) textScores(query string, candidates []*types.Node, features map[string]*Features) map[string]float64 {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = candidateText(c)
	}
	corpus := newBM25Corpus(texts)
	queryTokens := tokenize(query)

	out := make(map[string]float64, len(candidates))
	for i, c := range candidates {
		score := corpus.Score(queryTokens, i)
		out[c.ID] = score
		features[c.ID].Text = score
	}
	return out
}

// vectorScores computes cosine similarity between the query vector and each
// candidate's embedding, resolving missing embeddings through the cache and
// the embed function. Also returns the resolved embeddings for MMR.
func (s *Searcher) vectorScores(ctx context.Context, query string, candidates []*types.Node, queryVec []float32, features map[string]*Features) (map[string]float64, map[string][]float32, error) {
	out := make(map[string]float64, len(candidates))
	embeddings := make(map[string][]float32, len(candidates))

	if len(queryVec) == 0 && s.embed != nil {
		v, err := s.resolveEmbedding(ctx, query)
		if err != nil {
			return nil, nil, fmt.Errorf("embedding query: %w", err)
		}
		queryVec = v
	}
	if len(queryVec) == 0 {
		return out, embeddings, nil
	}

	for _, c := range candidates {
		emb := c.Embedding
		if len(emb) == 0 && s.embed != nil {
			v, err := s.resolveEmbedding(ctx, candidateText(c))
			if err != nil {
				s.logger.Warn("candidate embedding failed, dropping vector signal",
					slog.String("node_id", c.ID), slog.Any("error", err))
				continue
			}
			emb = v
		}
		if len(emb) == 0 {
			continue
		}
		embeddings[c.ID] = emb
		sim := utils.CosineSimilarity(queryVec, emb)
		if sim < 0 {
			sim = 0
		}
		out[c.ID] = sim
		features[c.ID].Vector = sim
	}
	return out, embeddings, nil
}

// resolveEmbedding consults the cache before calling the embed function.
func (s *Searcher) resolveEmbedding(ctx context.Context, text string) ([]float32, error) {
	if s.embeddings != nil {
		if v, ok := s.embeddings.Get(text); ok {
			return v, nil
		}
	}
	v, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if s.embeddings != nil {
		s.embeddings.Set(text, v)
	}
	return v, nil
}

func (s *Searcher) graphScores(candidates []*types.Node, centerIDs []string, features map[string]*Features) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		f := collectGraphFeatures(s.graph, c.ID, centerIDs, s.cfg.MaxPathLength)
		out[c.ID] = f.score()
		features[c.ID].Graph = out[c.ID]
		features[c.ID].MentionCount = f.mentionCount
		if f.reachable {
			features[c.ID].PathLength = f.distance
			features[c.ID].PathEdgeTypes = f.pathEdgeTypes
		}
	}
	return out
}

func (s *Searcher) recencyScores(candidates []*types.Node, reference time.Time, features map[string]*Features) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		score := recencyScore(c.ValidAt, reference, s.cfg.RecencyHalfLife)
		out[c.ID] = score
		features[c.ID].Recency = score
	}
	return out
}

// crossScores runs the optional batched cross-encoder. A failed call drops
// the signal rather than failing the search.
func (s *Searcher) crossScores(ctx context.Context, query string, candidates []*types.Node, features map[string]*Features) (map[string]float64, error) {
	if s.crossScore == nil {
		return nil, nil
	}
	batch := make(map[string]string, len(candidates))
	for _, c := range candidates {
		batch[c.ID] = candidateText(c)
	}
	scores, err := s.crossScore(ctx, query, batch)
	if err != nil {
		s.logger.Warn("cross-encoder scoring failed, dropping signal", slog.Any("error", err))
		return nil, nil
	}
	for id, score := range scores {
		if f, ok := features[id]; ok {
			f.CrossEncoder = score
		}
	}
	return scores, nil
}

// candidateText picks the text a candidate is scored on.
func candidateText(n *types.Node) string {
	if n.Content != "" {
		return n.Content
	}
	return n.Name
}

func explain(f *Features) string {
	parts := []string{
		fmt.Sprintf("text=%.3f", f.Text),
		fmt.Sprintf("vector=%.3f", f.Vector),
		fmt.Sprintf("graph=%.3f", f.Graph),
		fmt.Sprintf("recency=%.3f", f.Recency),
	}
	if f.CrossEncoder > 0 {
		parts = append(parts, fmt.Sprintf("cross=%.3f", f.CrossEncoder))
	}
	if f.MentionCount > 0 {
		parts = append(parts, fmt.Sprintf("mentions=%d", f.MentionCount))
	}
	return strings.Join(parts, " ")
}
