package community

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/pkg/types"
)

// fakeGraph is an in-memory undirected adjacency list standing in for the
// store's entity projection.
type fakeGraph struct {
	adj map[string][]string
}

func newFakeGraph(edges [][2]string) *fakeGraph {
	g := &fakeGraph{adj: make(map[string][]string)}
	for _, e := range edges {
		g.adj[e[0]] = append(g.adj[e[0]], e[1])
		g.adj[e[1]] = append(g.adj[e[1]], e[0])
	}
	return g
}

func (g *fakeGraph) addNode(id string) {
	if _, ok := g.adj[id]; !ok {
		g.adj[id] = nil
	}
}

func (g *fakeGraph) EntityIDs(string) []string {
	ids := make([]string, 0, len(g.adj))
	for id := range g.adj {
		ids = append(ids, id)
	}
	return ids
}

func (g *fakeGraph) Neighbors(id string) []types.Neighbor {
	counts := make(map[string]int)
	for _, nb := range g.adj[id] {
		counts[nb]++
	}
	out := make([]types.Neighbor, 0, len(counts))
	for nb, c := range counts {
		out = append(out, types.Neighbor{NodeID: nb, EdgeCount: c})
	}
	return out
}

func triangles() *fakeGraph {
	return newFakeGraph([][2]string{
		{"a1", "a2"}, {"a2", "a3"}, {"a3", "a1"},
		{"b1", "b2"}, {"b2", "b3"}, {"b3", "b1"},
	})
}

func TestDetectTwoTriangles(t *testing.T) {
	// Two disjoint triangles must converge to exactly two communities no
	// matter how the random visit order falls.
	for seed := int64(1); seed <= 10; seed++ {
		d := NewDetector(triangles(), Config{Seed: seed}, nil)
		communities, err := d.Detect(context.Background(), "", nil)
		require.NoError(t, err)
		require.Len(t, communities, 2, "seed %d", seed)
		for _, c := range communities {
			assert.Len(t, c.Members, 3)
			assert.Equal(t, 3, c.Meta.MemberCount)
		}
	}
}

func TestDetectDiscardsUndersizedClusters(t *testing.T) {
	g := triangles()
	g.addNode("loner")

	d := NewDetector(g, Config{Seed: 7}, nil)
	communities, err := d.Detect(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Len(t, communities, 2, "an isolated node stays below the minimum size")
}

func TestDetectRespectsMaxSize(t *testing.T) {
	d := NewDetector(triangles(), Config{Seed: 7, MaxSize: 2}, nil)
	communities, err := d.Detect(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Empty(t, communities)
}

func TestDetectUsesLabelFunc(t *testing.T) {
	labelFn := func(_ context.Context, members []string) (string, float64, error) {
		return "work projects", 0.9, nil
	}
	d := NewDetector(triangles(), Config{Seed: 3}, nil)
	communities, err := d.Detect(context.Background(), "", labelFn)
	require.NoError(t, err)
	require.Len(t, communities, 2)
	assert.Equal(t, "work projects", communities[0].Label)
	assert.Equal(t, 0.9, communities[0].Confidence)
}

func TestDetectFallsBackWhenLabelingFails(t *testing.T) {
	labelFn := func(_ context.Context, members []string) (string, float64, error) {
		return "", 0, assert.AnError
	}
	d := NewDetector(triangles(), Config{Seed: 3}, nil)
	communities, err := d.Detect(context.Background(), "", labelFn)
	require.NoError(t, err, "labeling failure must not fail detection")
	require.Len(t, communities, 2)
	assert.Equal(t, "community of 3 entities", communities[0].Label)
	assert.Zero(t, communities[0].Confidence)
}

func TestPropagateEmptyGraph(t *testing.T) {
	labels := propagate(nil, DefaultMaxIterations, DefaultConvergenceThreshold, rand.New(rand.NewSource(1)))
	assert.Empty(t, labels)
}

func TestUpdateNodeCommunityJoinsPlurality(t *testing.T) {
	g := triangles()
	d := NewDetector(g, Config{Seed: 5}, nil)
	_, err := d.Detect(context.Background(), "", nil)
	require.NoError(t, err)

	// New node wired to two members of the a-triangle and one of the
	// b-triangle.
	g.addNode("x")
	g.adj["x"] = []string{"a1", "a2", "b1"}

	c, err := d.UpdateNodeCommunity(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.True(t, c.HasMember("a1"), "node should join the plurality community")
	assert.True(t, c.HasMember("x"))
	assert.InDelta(t, 1.0/3.0, c.Meta.DivergenceScore, 1e-9)
	assert.False(t, c.Meta.LastUpdateTime.IsZero())
}

func TestUpdateNodeCommunityUnanimousNeighborhood(t *testing.T) {
	g := triangles()
	d := NewDetector(g, Config{Seed: 5}, nil)
	_, err := d.Detect(context.Background(), "", nil)
	require.NoError(t, err)

	g.addNode("x")
	g.adj["x"] = []string{"a1", "a2", "a3"}

	c, err := d.UpdateNodeCommunity(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Zero(t, c.Meta.DivergenceScore)
	assert.Equal(t, 4, c.Meta.MemberCount)
}

func TestUpdateNodeCommunityNoNeighborsSeedsSingleton(t *testing.T) {
	g := triangles()
	d := NewDetector(g, Config{Seed: 5}, nil)
	_, err := d.Detect(context.Background(), "", nil)
	require.NoError(t, err)

	g.addNode("island")
	c, err := d.UpdateNodeCommunity(context.Background(), "island", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"island"}, c.Members)
	assert.Zero(t, c.Meta.DivergenceScore)
	assert.Equal(t, 3, d.Count())
}

func TestUpdateNodeCommunityTieBreaksLowestID(t *testing.T) {
	g := triangles()
	d := NewDetector(g, Config{Seed: 5}, nil)
	_, err := d.Detect(context.Background(), "", nil)
	require.NoError(t, err)

	g.addNode("x")
	g.adj["x"] = []string{"a1", "b1"}

	c, err := d.UpdateNodeCommunity(context.Background(), "x", nil)
	require.NoError(t, err)

	lowest := ""
	for _, cand := range d.Communities() {
		if cand.HasMember("x") {
			continue
		}
		if lowest == "" || cand.ID < lowest {
			lowest = cand.ID
		}
	}
	// The joined community's id must sort below the one not joined.
	assert.Less(t, c.ID, lowest)
	assert.InDelta(t, 0.5, c.Meta.DivergenceScore, 1e-9)
}

func TestMergeCommunitiesOnOverlap(t *testing.T) {
	d := NewDetector(triangles(), Config{Seed: 1, MinSimilarity: 0.5}, nil)
	now := time.Now().UTC()
	a := &types.Community{
		ID: "c1", Label: "alpha", Confidence: 0.9,
		Members: []string{"n1", "n2", "n3"},
		Meta:    types.CommunityMeta{MemberCount: 3, LastUpdateTime: now},
	}
	b := &types.Community{
		ID: "c2", Label: "beta", Confidence: 0.6,
		Members: []string{"n2", "n3", "n4"},
		Meta:    types.CommunityMeta{MemberCount: 3, LastUpdateTime: now},
	}
	d.communities = map[string]*types.Community{"c1": a, "c2": b}
	d.membership = map[string]string{"n1": "c1", "n2": "c1", "n3": "c1", "n4": "c2"}

	assert.Equal(t, 1, d.MergeCommunities())
	require.Equal(t, 1, d.Count())

	merged, err := d.Community("c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1", "n2", "n3", "n4"}, merged.Members)
	assert.Equal(t, "alpha", merged.Label, "label comes from the higher-confidence community")
	assert.Equal(t, 0.6, merged.Confidence, "confidence drops to the lower of the two")
	assert.Equal(t, 4, merged.Meta.MemberCount)

	joined, ok := d.CommunityOf("n4")
	require.True(t, ok)
	assert.Equal(t, "c1", joined.ID)
}

func TestMergeCommunitiesBelowThresholdUntouched(t *testing.T) {
	d := NewDetector(triangles(), Config{Seed: 1, MinSimilarity: 0.8}, nil)
	d.communities = map[string]*types.Community{
		"c1": {ID: "c1", Members: []string{"n1", "n2", "n3"}},
		"c2": {ID: "c2", Members: []string{"n3", "n4", "n5"}},
	}
	assert.Zero(t, d.MergeCommunities())
	assert.Equal(t, 2, d.Count())
}

func TestMergeOnePerPass(t *testing.T) {
	// Three pairwise-overlapping communities: c1 absorbs one partner, the
	// third waits for the next pass.
	d := NewDetector(triangles(), Config{Seed: 1, MinSimilarity: 0.5}, nil)
	d.communities = map[string]*types.Community{
		"c1": {ID: "c1", Members: []string{"n1", "n2"}},
		"c2": {ID: "c2", Members: []string{"n2", "n3"}},
		"c3": {ID: "c3", Members: []string{"n2", "n4"}},
	}
	d.membership = map[string]string{"n1": "c1", "n2": "c1", "n3": "c2", "n4": "c3"}

	assert.Equal(t, 1, d.MergeCommunities())
	assert.Equal(t, 2, d.Count())

	assert.Equal(t, 1, d.MergeCommunities())
	assert.Equal(t, 1, d.Count())
}

func TestNeedingRefreshOrdersByDivergence(t *testing.T) {
	d := NewDetector(triangles(), Config{Seed: 1}, nil)
	d.communities = map[string]*types.Community{
		"c1": {ID: "c1", Meta: types.CommunityMeta{DivergenceScore: 0.1}},
		"c2": {ID: "c2", Meta: types.CommunityMeta{DivergenceScore: 0.7}},
		"c3": {ID: "c3", Meta: types.CommunityMeta{DivergenceScore: 0.4}},
	}

	stale := d.NeedingRefresh(0.3)
	require.Len(t, stale, 2)
	assert.Equal(t, "c2", stale[0].ID)
	assert.Equal(t, "c3", stale[1].ID)
}

func TestRefreshSplitsDriftedCommunity(t *testing.T) {
	// One community wrongly spanning both triangles splits on refresh.
	g := triangles()
	d := NewDetector(g, Config{Seed: 2}, nil)
	members := []string{"a1", "a2", "a3", "b1", "b2", "b3"}
	d.communities = map[string]*types.Community{
		"stale": {ID: "stale", Members: members, Meta: types.CommunityMeta{MemberCount: 6, DivergenceScore: 0.6}},
	}
	d.membership = make(map[string]string)
	for _, m := range members {
		d.membership[m] = "stale"
	}

	fresh, err := d.Refresh(context.Background(), "stale", nil)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	for _, c := range fresh {
		assert.Len(t, c.Members, 3)
		assert.Zero(t, c.Meta.DivergenceScore)
	}
	_, err = d.Community("stale")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRefreshUnknownCommunity(t *testing.T) {
	d := NewDetector(triangles(), Config{Seed: 2}, nil)
	_, err := d.Refresh(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestForgetRemovesMemberAndEmptyCommunity(t *testing.T) {
	d := NewDetector(triangles(), Config{Seed: 2}, nil)
	d.communities = map[string]*types.Community{
		"c1": {ID: "c1", Members: []string{"n1"}, Meta: types.CommunityMeta{MemberCount: 1}},
	}
	d.membership = map[string]string{"n1": "c1"}

	d.Forget("n1")
	assert.Zero(t, d.Count())
	_, ok := d.CommunityOf("n1")
	assert.False(t, ok)
}
