package engram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/engramdb/engram/pkg/cache"
	"github.com/engramdb/engram/pkg/community"
	"github.com/engramdb/engram/pkg/config"
	"github.com/engramdb/engram/pkg/embedder"
	"github.com/engramdb/engram/pkg/reasoner"
	"github.com/engramdb/engram/pkg/search"
	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/temporal"
)

// Manager composes the engine behind one surface. It is the only component
// that invokes the reasoning and embedding collaborators; every other
// component receives already-resolved data or an injected closure.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.Store
	temporal *temporal.Processor
	detector *community.Detector
	searcher *search.Searcher
	embCache *cache.EmbeddingCache

	reasoner reasoner.Client
	embedder embedder.Client
}

// Option customizes Manager construction.
type Option func(*Manager)

// WithLogger sets the ambient logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithReasoner injects a reasoning client, replacing the configured
// OpenAI-backed default. Useful for tests and alternative backends.
func WithReasoner(client reasoner.Client) Option {
	return func(m *Manager) { m.reasoner = client }
}

// WithEmbedder injects an embedding client, replacing the configured
// default.
func WithEmbedder(client embedder.Client) Option {
	return func(m *Manager) { m.embedder = client }
}

// New builds a Manager from configuration. When no collaborators are
// injected, OpenAI-backed clients are constructed with retry and
// circuit-breaker wrapping per the config.
func New(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	m := &Manager{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = config.NewLogger(cfg.Log)
	}

	m.store = store.New(m.logger)
	m.temporal = temporal.NewProcessor(m.store)
	m.embCache = cache.New(cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)
	m.detector = community.NewDetector(m.store, cfg.Community, m.logger)

	if m.reasoner == nil {
		base := reasoner.NewOpenAIClient(cfg.Reasoner.OpenAI, m.logger)
		retried := reasoner.NewRetryClient(base, cfg.Reasoner.Retry, m.logger)
		m.reasoner = reasoner.NewCircuitBreakerClient(retried, cfg.Reasoner.Breaker, "reasoner", m.logger)
	}
	if m.embedder == nil {
		m.embedder = embedder.NewOpenAIClient(cfg.Embedding.Config)
	}

	m.searcher = search.NewSearcher(m.store, m.embCache, m.embedFunc(), m.crossScoreFunc(), cfg.Search, m.logger)
	return m, nil
}

// Close releases collaborator resources.
func (m *Manager) Close() error {
	var firstErr error
	if err := m.reasoner.Close(); err != nil {
		firstErr = err
	}
	if err := m.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// embedFunc hands the searcher an embedding resolver; the cache consult
// happens inside the searcher, so this is the pure miss path.
func (m *Manager) embedFunc() search.EmbedFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return m.embedder.EmbedSingle(ctx, text)
	}
}

// crossScoreFunc hands the searcher the batched relevance-scoring task.
func (m *Manager) crossScoreFunc() search.CrossScoreFunc {
	return func(ctx context.Context, query string, candidates map[string]string) (map[string]float64, error) {
		result, err := m.reasoner.Run(ctx, reasoner.RelevanceScoringTask{Query: query, Candidates: candidates})
		if err != nil {
			return nil, err
		}
		scored, ok := result.(reasoner.RelevanceScoringResult)
		if !ok {
			return nil, fmt.Errorf("relevance scoring returned no usable output")
		}
		return scored.Scores, nil
	}
}

// labelFunc hands the community detector a labeling closure over member
// node contents.
func (m *Manager) labelFunc() community.LabelFunc {
	return func(ctx context.Context, memberIDs []string) (string, float64, error) {
		summaries := make([]string, 0, len(memberIDs))
		for _, id := range memberIDs {
			n, err := m.store.GetNode(id)
			if err != nil {
				continue
			}
			summary := n.Name
			if n.Content != "" {
				summary = fmt.Sprintf("%s: %s", n.Name, n.Content)
			}
			summaries = append(summaries, summary)
		}
		if len(summaries) == 0 {
			return "", 0, fmt.Errorf("no member content to label")
		}

		result, err := m.reasoner.Run(ctx, reasoner.CommunityLabelingTask{MemberSummaries: summaries})
		if err != nil {
			return "", 0, err
		}
		labeled, ok := result.(reasoner.CommunityLabelingResult)
		if !ok {
			return "", 0, fmt.Errorf("labeling returned no usable output")
		}
		return labeled.Label, labeled.Confidence, nil
	}
}

// resolveEmbedding returns the embedding for a text via the cache, calling
// the embedding collaborator on miss.
func (m *Manager) resolveEmbedding(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if v, ok := m.embCache.Get(text); ok {
		return v, nil
	}
	v, err := m.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, err
	}
	m.embCache.Set(text, v)
	return v, nil
}

// CacheStats exposes the embedding cache counters.
func (m *Manager) CacheStats() cache.Stats {
	return m.embCache.Stats()
}
