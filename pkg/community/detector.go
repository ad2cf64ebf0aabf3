package community

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/engramdb/engram/pkg/types"
)

// Defaults for the clustering configuration.
const (
	DefaultMaxIterations        = 20
	DefaultConvergenceThreshold = 0.01
	DefaultMinSize              = 2
	DefaultMinSimilarity        = 0.5
)

// GraphSource is the slice of the store the detector reads from. The
// detector never writes to the graph.
type GraphSource interface {
	// EntityIDs lists live entity node ids, optionally scoped to a session.
	EntityIDs(sessionID string) []string
	// Neighbors returns entity neighbors over relates_to edges with
	// parallel-edge counts.
	Neighbors(id string) []types.Neighbor
}

// LabelFunc produces a human-readable label and a confidence for a set of
// member node ids. The caller owns whatever collaborator sits behind it.
type LabelFunc func(ctx context.Context, memberIDs []string) (label string, confidence float64, err error)

// Config tunes label propagation and community maintenance.
type Config struct {
	// MaxIterations caps the number of full propagation passes.
	MaxIterations int `mapstructure:"max_iterations"`
	// ConvergenceThreshold stops propagation early when the fraction of
	// nodes that changed label in a pass drops below it.
	ConvergenceThreshold float64 `mapstructure:"convergence_threshold"`
	// MinSize and MaxSize bound accepted community sizes. MaxSize zero
	// means unbounded.
	MinSize int `mapstructure:"min_size"`
	MaxSize int `mapstructure:"max_size"`
	// MinSimilarity is the member-overlap ratio at which two communities
	// merge.
	MinSimilarity float64 `mapstructure:"min_similarity"`
	// Seed fixes the propagation RNG for reproducible runs. Zero seeds
	// from the clock.
	Seed int64 `mapstructure:"seed"`
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.ConvergenceThreshold <= 0 {
		c.ConvergenceThreshold = DefaultConvergenceThreshold
	}
	if c.MinSize <= 0 {
		c.MinSize = DefaultMinSize
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = DefaultMinSimilarity
	}
	return c
}

// Detector finds and maintains communities over the entity subgraph. It is
// not safe for concurrent mutation; the graph manager serializes calls.
type Detector struct {
	graph  GraphSource
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger

	communities map[string]*types.Community
	// membership maps node id to the id of the community holding it.
	membership map[string]string
}

// NewDetector creates a detector over the given graph source.
func NewDetector(graph GraphSource, cfg Config, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Detector{
		graph:       graph,
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(seed)),
		logger:      logger,
		communities: make(map[string]*types.Community),
		membership:  make(map[string]string),
	}
}

// Detect runs full label propagation over the entity subgraph and replaces
// the detector's community set with the result. Clusters outside the
// configured size bounds are discarded. labelFn may be nil, in which case
// communities get a generated fallback label.
func (d *Detector) Detect(ctx context.Context, sessionID string, labelFn LabelFunc) ([]*types.Community, error) {
	ids := d.graph.EntityIDs(sessionID)
	adjacency := make(map[string][]types.Neighbor, len(ids))
	for _, id := range ids {
		adjacency[id] = d.graph.Neighbors(id)
	}

	labels := propagate(adjacency, d.cfg.MaxIterations, d.cfg.ConvergenceThreshold, d.rng)

	clusters := make(map[string][]string)
	for id, label := range labels {
		clusters[label] = append(clusters[label], id)
	}

	d.communities = make(map[string]*types.Community)
	d.membership = make(map[string]string)
	now := time.Now().UTC()
	var result []*types.Community
	for _, members := range clusters {
		if len(members) < d.cfg.MinSize {
			continue
		}
		if d.cfg.MaxSize > 0 && len(members) > d.cfg.MaxSize {
			continue
		}
		sort.Strings(members)
		c := d.newCommunity(ctx, members, now, labelFn)
		d.communities[c.ID] = c
		for _, m := range members {
			d.membership[m] = c.ID
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	d.logger.Info("community detection finished",
		slog.Int("entities", len(ids)),
		slog.Int("communities", len(result)))
	return cloneAll(result), nil
}

// newCommunity builds a community for a member set, labeling it through
// labelFn and falling back to a generated label when labeling fails.
func (d *Detector) newCommunity(ctx context.Context, members []string, now time.Time, labelFn LabelFunc) *types.Community {
	label := fmt.Sprintf("community of %d entities", len(members))
	confidence := 0.0
	if labelFn != nil {
		if l, conf, err := labelFn(ctx, members); err != nil {
			d.logger.Warn("community labeling failed, using fallback label",
				slog.Int("members", len(members)), slog.Any("error", err))
		} else {
			label, confidence = l, conf
		}
	}
	return &types.Community{
		ID:         uuid.NewString(),
		Label:      label,
		Confidence: confidence,
		Members:    append([]string(nil), members...),
		Meta: types.CommunityMeta{
			MemberCount:    len(members),
			LastUpdateTime: now,
		},
	}
}

// propagate runs asynchronous label propagation over the adjacency map.
// Every node starts with its own id as label; each pass visits nodes in a
// fresh random order and adopts the most frequent label among the node's
// neighbors, weighted by parallel-edge count, breaking ties uniformly at
// random. Propagation stops after maxIterations passes or once the fraction
// of nodes that changed label falls below threshold.
func propagate(adjacency map[string][]types.Neighbor, maxIterations int, threshold float64, rng *rand.Rand) map[string]string {
	labels := make(map[string]string, len(adjacency))
	order := make([]string, 0, len(adjacency))
	for id := range adjacency {
		labels[id] = id
		order = append(order, id)
	}
	sort.Strings(order)
	if len(order) == 0 {
		return labels
	}

	for iter := 0; iter < maxIterations; iter++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		changed := 0
		for _, id := range order {
			neighbors := adjacency[id]
			if len(neighbors) == 0 {
				continue
			}
			votes := make(map[string]int, len(neighbors))
			best := 0
			for _, nb := range neighbors {
				label, ok := labels[nb.NodeID]
				if !ok {
					continue
				}
				votes[label] += nb.EdgeCount
				if votes[label] > best {
					best = votes[label]
				}
			}
			if best == 0 {
				continue
			}
			var tied []string
			for label, count := range votes {
				if count == best {
					tied = append(tied, label)
				}
			}
			sort.Strings(tied)
			next := tied[rng.Intn(len(tied))]
			if next != labels[id] {
				labels[id] = next
				changed++
			}
		}

		if float64(changed)/float64(len(order)) < threshold {
			break
		}
	}
	return labels
}

// Communities returns copies of all current communities, sorted by id.
func (d *Detector) Communities() []*types.Community {
	result := make([]*types.Community, 0, len(d.communities))
	for _, c := range d.communities {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return cloneAll(result)
}

// Community returns a copy of the community with the given id.
func (d *Detector) Community(id string) (*types.Community, error) {
	c, ok := d.communities[id]
	if !ok {
		return nil, types.NewCommunityNotFound(id)
	}
	return cloneCommunity(c), nil
}

// CommunityOf returns a copy of the community holding the given node, if
// any.
func (d *Detector) CommunityOf(nodeID string) (*types.Community, bool) {
	cid, ok := d.membership[nodeID]
	if !ok {
		return nil, false
	}
	c, ok := d.communities[cid]
	if !ok {
		return nil, false
	}
	return cloneCommunity(c), true
}

// Count returns the number of tracked communities.
func (d *Detector) Count() int { return len(d.communities) }

// Forget drops a node from whatever community holds it, deleting the
// community when it becomes empty. Used when nodes are removed from the
// graph.
func (d *Detector) Forget(nodeID string) {
	cid, ok := d.membership[nodeID]
	if !ok {
		return
	}
	delete(d.membership, nodeID)
	c := d.communities[cid]
	if c == nil {
		return
	}
	c.Members = removeString(c.Members, nodeID)
	c.Meta.MemberCount = len(c.Members)
	c.Meta.LastUpdateTime = time.Now().UTC()
	if len(c.Members) == 0 {
		delete(d.communities, cid)
	}
}

func cloneCommunity(c *types.Community) *types.Community {
	cp := *c
	cp.Members = append([]string(nil), c.Members...)
	return &cp
}

func cloneAll(cs []*types.Community) []*types.Community {
	out := make([]*types.Community, len(cs))
	for i, c := range cs {
		out[i] = cloneCommunity(c)
	}
	return out
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
