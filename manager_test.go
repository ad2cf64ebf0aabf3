package engram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/pkg/config"
	"github.com/engramdb/engram/pkg/reasoner"
	"github.com/engramdb/engram/pkg/search"
	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/temporal"
	"github.com/engramdb/engram/pkg/types"
)

// scriptedReasoner serves canned results per task kind.
type scriptedReasoner struct {
	extraction  reasoner.Result
	extractErr  error
	dedupe      reasoner.Result
	dedupeErr   error
	temporal    reasoner.Result
	labeling    reasoner.Result
	relevance   reasoner.Result
	explanation reasoner.Result
	explainErr  error
}

func (s *scriptedReasoner) Run(_ context.Context, task reasoner.Task) (reasoner.Result, error) {
	switch task.Kind() {
	case reasoner.TaskExtraction:
		if s.extractErr != nil {
			return nil, s.extractErr
		}
		if s.extraction != nil {
			return s.extraction, nil
		}
		return reasoner.ExtractionResult{}, nil
	case reasoner.TaskDedupe:
		if s.dedupeErr != nil {
			return nil, s.dedupeErr
		}
		if s.dedupe != nil {
			return s.dedupe, nil
		}
		return reasoner.DedupeResult{}, nil
	case reasoner.TaskTemporalInference:
		if s.temporal != nil {
			return s.temporal, nil
		}
		return reasoner.TemporalInferenceResult{}, nil
	case reasoner.TaskCommunityLabeling:
		if s.labeling != nil {
			return s.labeling, nil
		}
		return reasoner.CommunityLabelingResult{Label: "test group", Confidence: 0.9}, nil
	case reasoner.TaskRelevanceScoring:
		if s.relevance != nil {
			return s.relevance, nil
		}
		return reasoner.RelevanceScoringResult{Scores: map[string]float64{}}, nil
	case reasoner.TaskChangeExplanation:
		if s.explainErr != nil {
			return nil, s.explainErr
		}
		if s.explanation != nil {
			return s.explanation, nil
		}
		return reasoner.ChangeExplanationResult{Explanation: "something changed", Confidence: 0.8}, nil
	}
	return nil, errors.New("unexpected task kind")
}

func (s *scriptedReasoner) Close() error { return nil }

// hashEmbedder derives a deterministic 4-dim vector from text bytes.
type hashEmbedder struct{ calls int }

func (h *hashEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	h.calls++
	v := make([]float32, 4)
	for i, b := range []byte(text) {
		v[i%4] += float32(b) / 255
	}
	return v, nil
}

func (h *hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := h.EmbedSingle(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (h *hashEmbedder) Close() error { return nil }

func testManager(t *testing.T, r reasoner.Client) *Manager {
	t.Helper()
	cfg := &config.Config{}
	cfg.Embedding.CacheSize = 64
	cfg.Embedding.CacheTTL = time.Minute
	cfg.Ingestion.ChunkSize = 5
	cfg.Ingestion.ContextEpisodes = 2
	cfg.Community.Seed = 1
	cfg.Search.Weights = search.Weights{Text: 1, Vector: 1}

	m, err := New(cfg,
		WithReasoner(r),
		WithEmbedder(&hashEmbedder{}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)
	return m
}

func turn(body string, at time.Time) types.EpisodeContent {
	return types.EpisodeContent{
		Body:      body,
		Source:    "chat",
		Timestamp: at,
		SessionID: "s1",
	}
}

func twoEntityExtraction() reasoner.ExtractionResult {
	return reasoner.ExtractionResult{
		Entities: []reasoner.ExtractedEntity{
			{Name: "Alice", Summary: "software engineer", Confidence: 0.9},
			{Name: "Acme", Summary: "robotics company", Confidence: 0.85},
		},
		Relationships: []reasoner.ExtractedRelationship{
			{SourceName: "Alice", TargetName: "Acme", Name: "works_at", Fact: "Alice works at Acme", Confidence: 0.9},
		},
	}
}

func TestAddEpisodeFullPipeline(t *testing.T) {
	m := testManager(t, &scriptedReasoner{extraction: twoEntityExtraction()})
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	result, err := m.AddEpisode(context.Background(), turn("Alice joined Acme", at))
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	require.Len(t, result.Entities, 2)
	// Two mentions edges plus one relationship.
	require.Len(t, result.Edges, 3)
	assert.NotEmpty(t, result.Communities)

	// The episode is recorded with the turn's timestamp as valid time.
	episodes := m.GetEpisodes("s1", 10)
	require.Len(t, episodes, 1)
	assert.True(t, episodes[0].ValidAt.Equal(at))

	// The relationship defaulted its valid time to the episode time.
	var relates *types.Edge
	for _, e := range result.Edges {
		if e.Type == types.RelatesToEdgeType {
			relates = e
		}
	}
	require.NotNil(t, relates)
	assert.True(t, relates.ValidAt.Equal(at))
}

func TestAddEpisodeDegradesOnExtractionFailure(t *testing.T) {
	m := testManager(t, &scriptedReasoner{extractErr: errors.New("collaborator down")})

	result, err := m.AddEpisode(context.Background(), turn("hello", time.Now().UTC()))
	require.NoError(t, err, "collaborator failure must not fail ingestion")
	assert.True(t, result.Degraded)
	assert.NotEmpty(t, result.Warnings)
	assert.Empty(t, result.Entities)
	assert.Len(t, m.GetEpisodes("s1", 10), 1, "episode is still recorded")
}

func TestAddEpisodeDedupeMergesIntoExisting(t *testing.T) {
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	r := &scriptedReasoner{extraction: twoEntityExtraction()}
	m := testManager(t, r)

	first, err := m.AddEpisode(context.Background(), turn("Alice joined Acme", at))
	require.NoError(t, err)

	var aliceID string
	for _, n := range first.Entities {
		if n.Name == "Alice" {
			aliceID = n.ID
		}
	}
	require.NotEmpty(t, aliceID)

	// Second turn re-mentions Alice; the collaborator pairs her with the
	// existing node.
	r.extraction = reasoner.ExtractionResult{
		Entities: []reasoner.ExtractedEntity{
			{Name: "Alice", Summary: "engineer and manager", Confidence: 0.9},
		},
	}
	r.dedupe = reasoner.DedupeResult{Duplicates: []reasoner.DuplicatePair{
		{ExtractedName: "Alice", ExistingID: aliceID, Confidence: 0.95},
	}}

	second, err := m.AddEpisode(context.Background(), turn("Alice got promoted", at.Add(time.Hour)))
	require.NoError(t, err)
	require.Len(t, second.Entities, 1)
	assert.Equal(t, aliceID, second.Entities[0].ID, "no new node for a duplicate")
	assert.Equal(t, "engineer and manager", second.Entities[0].Content)
}

func TestAddEpisodeDedupeFallsBackToNameMatching(t *testing.T) {
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	r := &scriptedReasoner{extraction: twoEntityExtraction()}
	m := testManager(t, r)

	_, err := m.AddEpisode(context.Background(), turn("first", at))
	require.NoError(t, err)

	r.dedupeErr = errors.New("timeout")
	second, err := m.AddEpisode(context.Background(), turn("second", at.Add(time.Hour)))
	require.NoError(t, err)
	assert.True(t, second.Degraded)

	entities := m.QueryNodes(store.NodeFilter{Types: []types.NodeType{types.EntityNodeType}})
	assert.Len(t, entities, 2, "name-equal entities merged despite collaborator failure")
}

func TestAddEpisodesChunksAndCancellation(t *testing.T) {
	m := testManager(t, &scriptedReasoner{})
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	var contents []types.EpisodeContent
	for i := 0; i < 7; i++ {
		contents = append(contents, turn("turn", at.Add(time.Duration(i)*time.Minute)))
	}
	results, err := m.AddEpisodes(context.Background(), contents)
	require.NoError(t, err)
	assert.Len(t, results, 7)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.AddEpisodes(cancelled, contents)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchOverIngestedGraph(t *testing.T) {
	m := testManager(t, &scriptedReasoner{extraction: twoEntityExtraction()})
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	_, err := m.AddEpisode(context.Background(), turn("Alice joined Acme robotics", at))
	require.NoError(t, err)

	results, err := m.Search(context.Background(), "robotics company", SearchOptions{SessionID: "s1"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	top, err := m.GetNode(results[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", top.Name)
}

func TestSearchEmptyGraph(t *testing.T) {
	m := testManager(t, &scriptedReasoner{})
	results, err := m.Search(context.Background(), "anything", SearchOptions{})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestFindPathAcrossRelationship(t *testing.T) {
	m := testManager(t, &scriptedReasoner{extraction: twoEntityExtraction()})
	_, err := m.AddEpisode(context.Background(), turn("Alice joined Acme", time.Now().UTC()))
	require.NoError(t, err)

	entities := m.QueryNodes(store.NodeFilter{Types: []types.NodeType{types.EntityNodeType}})
	require.Len(t, entities, 2)

	paths, err := m.FindPath(entities[0].ID, entities[1].ID, store.PathOptions{MaxDepth: 2})
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, 1, paths[0].Len())
}

func TestAnalyzeTemporalChanges(t *testing.T) {
	m := testManager(t, &scriptedReasoner{
		explanation: reasoner.ChangeExplanationResult{Explanation: "Alice started at Acme in May", Confidence: 0.9},
	})

	t0 := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	t1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.AddNode(&types.Node{ID: "alice", Type: types.EntityNodeType, Name: "Alice", CreatedAt: t0}))
	require.NoError(t, m.AddNode(&types.Node{ID: "acme", Type: types.EntityNodeType, Name: "Acme", CreatedAt: t0}))
	require.NoError(t, m.AddEdge(&types.Edge{
		ID: "e1", Type: types.RelatesToEdgeType, SourceID: "alice", TargetID: "acme",
		Name: "works_at", CreatedAt: t1, ValidAt: t1,
	}))

	analysis, err := m.AnalyzeTemporalChanges(context.Background(), "alice", t0.Add(time.Hour), t1.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, analysis.EdgesAdded, 1)
	assert.Empty(t, analysis.EdgesRemoved)
	assert.Equal(t, "Alice started at Acme in May", analysis.Explanation)
}

func TestAnalyzeTemporalChangesPropagatesCollaboratorFailure(t *testing.T) {
	m := testManager(t, &scriptedReasoner{explainErr: errors.New("down")})
	t0 := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.AddDate(0, 1, 0)
	require.NoError(t, m.AddNode(&types.Node{ID: "a", Type: types.EntityNodeType, Name: "A", CreatedAt: t0}))
	require.NoError(t, m.AddNode(&types.Node{ID: "b", Type: types.EntityNodeType, Name: "B", CreatedAt: t0}))
	require.NoError(t, m.AddEdge(&types.Edge{
		ID: "e", Type: types.RelatesToEdgeType, SourceID: "a", TargetID: "b",
		Name: "knows", CreatedAt: t1, ValidAt: t1,
	}))

	_, err := m.AnalyzeTemporalChanges(context.Background(), "a", t0.Add(time.Hour), t1.Add(time.Hour))
	assert.Error(t, err, "analysis cannot default and must surface the failure")
}

func TestAnalyzeTemporalChangesUnknownNode(t *testing.T) {
	m := testManager(t, &scriptedReasoner{})
	_, err := m.AnalyzeTemporalChanges(context.Background(), "ghost", time.Now(), time.Now())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDetectCommunitiesOverSession(t *testing.T) {
	m := testManager(t, &scriptedReasoner{extraction: twoEntityExtraction()})
	_, err := m.AddEpisode(context.Background(), turn("Alice joined Acme", time.Now().UTC()))
	require.NoError(t, err)

	communities, err := m.DetectCommunities(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, communities, 1)
	assert.Equal(t, "test group", communities[0].Label)
	assert.Len(t, communities[0].Members, 2)

	found := m.FindCommunities("TEST")
	assert.Len(t, found, 1)
	assert.Empty(t, m.FindCommunities("unrelated"))
}

func TestDeleteNodeDropsCommunityMembership(t *testing.T) {
	m := testManager(t, &scriptedReasoner{extraction: twoEntityExtraction()})
	_, err := m.AddEpisode(context.Background(), turn("Alice joined Acme", time.Now().UTC()))
	require.NoError(t, err)

	entities := m.QueryNodes(store.NodeFilter{Types: []types.NodeType{types.EntityNodeType}})
	require.NotEmpty(t, entities)
	require.NoError(t, m.DeleteNode(entities[0].ID))

	for _, c := range m.GetCommunities() {
		assert.False(t, c.HasMember(entities[0].ID))
	}
}

func TestStatsIncludesCommunities(t *testing.T) {
	m := testManager(t, &scriptedReasoner{extraction: twoEntityExtraction()})
	_, err := m.AddEpisode(context.Background(), turn("Alice joined Acme", time.Now().UTC()))
	require.NoError(t, err)

	stats := m.Stats()
	assert.Equal(t, int64(3), stats.NodeCount, "episode plus two entities")
	assert.Equal(t, int64(3), stats.EdgeCount)
	assert.Positive(t, stats.CommunityCount)
}

func TestClearSessionForgetsEverything(t *testing.T) {
	m := testManager(t, &scriptedReasoner{extraction: twoEntityExtraction()})
	_, err := m.AddEpisode(context.Background(), turn("Alice joined Acme", time.Now().UTC()))
	require.NoError(t, err)

	m.ClearSession("s1")
	assert.Zero(t, m.Stats().NodeCount)
	assert.Empty(t, m.GetEpisodes("s1", 10))
}

func TestClearSessionForgetsCollapsedDuplicates(t *testing.T) {
	m := testManager(t, &scriptedReasoner{})

	// Two entities sharing a name and metadata collapse to one
	// representative in queries, but both carry community membership.
	for _, id := range []string{"dup1", "dup2"} {
		require.NoError(t, m.AddNode(&types.Node{
			ID:        id,
			Type:      types.EntityNodeType,
			Name:      "Fact",
			Metadata:  map[string]any{"subject": "alice"},
			SessionID: "s1",
		}))
	}
	require.NoError(t, m.AddEdge(&types.Edge{
		ID: "e1", Type: types.RelatesToEdgeType, SourceID: "dup1", TargetID: "dup2", SessionID: "s1",
	}))

	communities, err := m.DetectCommunities(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, communities, 1)
	require.Len(t, communities[0].Members, 2)

	m.ClearSession("s1")
	assert.Zero(t, m.Stats().CommunityCount, "no stale membership for collapsed duplicates")
	assert.Empty(t, m.GetCommunities())
}

func TestTemporalFacadePassthrough(t *testing.T) {
	m := testManager(t, &scriptedReasoner{})
	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.AddNode(&types.Node{ID: "n1", Type: types.EntityNodeType, Name: "N", CreatedAt: created}))

	_, err := m.GetNodeAsOf("n1", created.Add(-time.Hour), temporal.ModeSystem)
	assert.ErrorIs(t, err, types.ErrNotFound)

	n, err := m.GetNodeAsOf("n1", created.Add(time.Hour), temporal.ModeBoth)
	require.NoError(t, err)
	assert.Equal(t, "N", n.Name)
}
