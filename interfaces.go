package engram

import (
	"context"
	"time"

	"github.com/engramdb/engram/pkg/search"
	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/temporal"
	"github.com/engramdb/engram/pkg/types"
)

// Ingestor records interaction turns into the graph.
type Ingestor interface {
	AddEpisode(ctx context.Context, content types.EpisodeContent) (*EpisodeResult, error)
	AddEpisodes(ctx context.Context, contents []types.EpisodeContent) ([]*EpisodeResult, error)
}

// Retriever answers queries over the accumulated graph.
type Retriever interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]*search.Result, error)
	FindPath(sourceID, targetID string, opts store.PathOptions) ([]*types.Path, error)
	GetNodeAsOf(id string, asOf time.Time, mode temporal.Mode) (*types.Node, error)
	GetEdgeAsOf(id string, asOf time.Time, mode temporal.Mode) (*types.Edge, error)
	AnalyzeTemporalChanges(ctx context.Context, nodeID string, from, to time.Time) (*TemporalAnalysis, error)
}

// GraphCRUD is the direct node/edge surface.
type GraphCRUD interface {
	AddNode(node *types.Node) error
	GetNode(id string) (*types.Node, error)
	UpdateNode(id string, patch store.NodePatch) (*types.Node, error)
	DeleteNode(id string) error
	AddEdge(edge *types.Edge) error
	GetEdge(id string) (*types.Edge, error)
	UpdateEdge(id string, patch store.EdgePatch) (*types.Edge, error)
	DeleteEdge(id string) error
	QueryNodes(filter store.NodeFilter) []*types.Node
	QueryEdges(filter store.EdgeFilter) []*types.Edge
	Traverse(startID string, opts store.TraverseOptions) ([]*types.Node, error)
}

// CommunityOps maintains the derived community layer.
type CommunityOps interface {
	DetectCommunities(ctx context.Context, sessionID string) ([]*types.Community, error)
	GetCommunities() []*types.Community
	FindCommunities(query string) []*types.Community
	RefreshCommunities(ctx context.Context, divergenceThreshold float64) ([]*types.Community, error)
}

// Engine is the full public surface of the memory engine.
type Engine interface {
	Ingestor
	Retriever
	GraphCRUD
	CommunityOps
	Stats() types.GraphStats
	Close() error
}

var _ Engine = (*Manager)(nil)
