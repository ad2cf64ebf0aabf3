package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramdb/engram/pkg/types"
)

func timeNowUTC() time.Time { return time.Now().UTC() }

// chainStore builds a -> b -> c -> d with relates_to edges.
func chainStore(t *testing.T) *Store {
	t.Helper()
	s := New(nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.AddNode(entity(id, id, "s")))
	}
	require.NoError(t, s.AddEdge(relates("ab", "a", "b")))
	require.NoError(t, s.AddEdge(relates("bc", "b", "c")))
	require.NoError(t, s.AddEdge(relates("cd", "c", "d")))
	return s
}

func TestTraverseDepthBound(t *testing.T) {
	s := chainStore(t)

	one, err := s.Traverse("a", TraverseOptions{Direction: DirectionOut, MaxDepth: 1})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "b", one[0].ID)

	two, err := s.Traverse("a", TraverseOptions{Direction: DirectionOut, MaxDepth: 2})
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestTraverseDirection(t *testing.T) {
	s := chainStore(t)

	in, err := s.Traverse("c", TraverseOptions{Direction: DirectionIn, MaxDepth: 1})
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "b", in[0].ID)

	both, err := s.Traverse("c", TraverseOptions{Direction: DirectionBoth, MaxDepth: 1})
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestTraverseMissingStart(t *testing.T) {
	s := New(nil)
	_, err := s.Traverse("ghost", TraverseOptions{MaxDepth: 1})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestFindPaths(t *testing.T) {
	s := chainStore(t)
	// Add a shortcut a -> c so two paths to c exist.
	require.NoError(t, s.AddEdge(relates("ac", "a", "c")))

	paths, err := s.FindPaths("a", "c", PathOptions{MaxDepth: 3})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, 1, paths[0].Len(), "shortest path first")
	assert.Equal(t, []string{"a", "c"}, paths[0].NodeIDs)
	assert.Equal(t, []types.EdgeType{types.RelatesToEdgeType}, paths[0].EdgeTypes)
	assert.Equal(t, 2, paths[1].Len())
}

func TestFindPathsMissingEndpoint(t *testing.T) {
	s := chainStore(t)
	_, err := s.FindPaths("a", "ghost", PathOptions{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestShortestPath(t *testing.T) {
	s := chainStore(t)

	dist, edgeTypes, ok := s.ShortestPath("a", "d", 5)
	require.True(t, ok)
	assert.Equal(t, 3, dist)
	assert.Len(t, edgeTypes, 3)

	_, _, ok = s.ShortestPath("a", "d", 2)
	assert.False(t, ok, "path longer than bound should not be found")

	dist, _, ok = s.ShortestPath("a", "a", 2)
	require.True(t, ok)
	assert.Equal(t, 0, dist)
}

func TestNeighborsCountsParallelEdges(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddNode(entity("a", "A", "s")))
	require.NoError(t, s.AddNode(entity("b", "B", "s")))
	require.NoError(t, s.AddEdge(relates("e1", "a", "b")))
	require.NoError(t, s.AddEdge(relates("e2", "b", "a")))

	neighbors := s.Neighbors("a")
	require.Len(t, neighbors, 1)
	assert.Equal(t, "b", neighbors[0].NodeID)
	assert.Equal(t, 2, neighbors[0].EdgeCount)
}

func TestNeighborsSkipsEpisodes(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddNode(entity("a", "A", "s")))
	ep, err := types.NewEpisodeNode(types.EpisodeContent{
		Body: "b", Source: "chat", Timestamp: timeNowUTC(), SessionID: "s",
	})
	require.NoError(t, err)
	require.NoError(t, s.AddNode(ep))
	require.NoError(t, s.AddEdge(&types.Edge{
		ID: "m", Type: types.MentionsEdgeType, SourceID: ep.ID, TargetID: "a",
	}))

	assert.Empty(t, s.Neighbors("a"), "mentions edges do not contribute to the entity projection")
}

func TestEpisodeMentionCount(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddNode(entity("a", "A", "s")))
	for i := 0; i < 3; i++ {
		ep, err := types.NewEpisodeNode(types.EpisodeContent{
			Body: "b", Source: "chat", Timestamp: timeNowUTC(), SessionID: "s",
		})
		require.NoError(t, err)
		require.NoError(t, s.AddNode(ep))
		require.NoError(t, s.AddEdge(&types.Edge{
			ID: ep.ID + "-m", Type: types.MentionsEdgeType, SourceID: ep.ID, TargetID: "a",
		}))
	}
	assert.Equal(t, 3, s.EpisodeMentionCount("a"))
}

func TestEntityIDsScopedToSession(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.AddNode(entity("a", "A", "s1")))
	require.NoError(t, s.AddNode(entity("b", "B", "s2")))

	assert.Equal(t, []string{"a"}, s.EntityIDs("s1"))
	assert.Equal(t, []string{"a", "b"}, s.EntityIDs(""))
}
