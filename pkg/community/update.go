package community

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/engramdb/engram/pkg/types"
)

// UpdateNodeCommunity assigns a single node to a community based on its
// current neighbors, without rerunning full detection. The node joins the
// community holding the plurality of its neighbors; ties break toward the
// lowest community id. A node with no assigned neighbors seeds a fresh
// singleton community.
//
// The updated community's divergence score is set to
// 1 - plurality/total over the node's neighbor votes, so a unanimous
// neighborhood yields 0 and a contested one approaches 1.
func (d *Detector) UpdateNodeCommunity(ctx context.Context, nodeID string, labelFn LabelFunc) (*types.Community, error) {
	neighbors := d.graph.Neighbors(nodeID)
	now := time.Now().UTC()

	votes := make(map[string]int)
	total := 0
	for _, nb := range neighbors {
		cid, ok := d.membership[nb.NodeID]
		if !ok {
			continue
		}
		votes[cid] += nb.EdgeCount
		total += nb.EdgeCount
	}

	if total == 0 {
		c := d.newCommunity(ctx, []string{nodeID}, now, labelFn)
		c.Meta.DivergenceScore = 0
		d.detach(nodeID, now)
		d.communities[c.ID] = c
		d.membership[nodeID] = c.ID
		return cloneCommunity(c), nil
	}

	var target string
	best := 0
	for cid, count := range votes {
		if count > best || (count == best && cid < target) {
			target = cid
			best = count
		}
	}
	divergence := 1 - float64(best)/float64(total)

	c := d.communities[target]
	if c == nil {
		return nil, types.NewCommunityNotFound(target)
	}
	if d.membership[nodeID] != target {
		d.detach(nodeID, now)
		c.Members = append(c.Members, nodeID)
		sort.Strings(c.Members)
		d.membership[nodeID] = target
	}
	c.Meta.MemberCount = len(c.Members)
	c.Meta.LastUpdateTime = now
	c.Meta.DivergenceScore = divergence

	d.logger.Debug("node community updated",
		slog.String("node_id", nodeID),
		slog.String("community_id", target),
		slog.Float64("divergence", divergence))
	return cloneCommunity(c), nil
}

// detach removes a node from its current community, deleting the community
// when it empties.
func (d *Detector) detach(nodeID string, now time.Time) {
	cid, ok := d.membership[nodeID]
	if !ok {
		return
	}
	delete(d.membership, nodeID)
	prev := d.communities[cid]
	if prev == nil {
		return
	}
	prev.Members = removeString(prev.Members, nodeID)
	prev.Meta.MemberCount = len(prev.Members)
	prev.Meta.LastUpdateTime = now
	if len(prev.Members) == 0 {
		delete(d.communities, cid)
	}
}

// MergeCommunities folds together communities whose member overlap ratio,
// |A∩B| / min(|A|,|B|), reaches the configured minimum similarity. Each
// community participates in at most one merge per pass; call repeatedly to
// reach a fixpoint. Returns the number of merges performed.
func (d *Detector) MergeCommunities() int {
	ids := make([]string, 0, len(d.communities))
	for id := range d.communities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	merged := make(map[string]bool)
	count := 0
	for i := 0; i < len(ids); i++ {
		if merged[ids[i]] {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			if merged[ids[j]] {
				continue
			}
			a, b := d.communities[ids[i]], d.communities[ids[j]]
			if overlapRatio(a.Members, b.Members) < d.cfg.MinSimilarity {
				continue
			}
			d.merge(a, b, now)
			merged[ids[i]], merged[ids[j]] = true, true
			count++
			break
		}
	}
	if count > 0 {
		d.logger.Info("communities merged", slog.Int("merges", count))
	}
	return count
}

// merge folds b into a: union of members, the higher-confidence label, and
// the lower of the two confidences since the merged extent is less certain
// than either original.
func (d *Detector) merge(a, b *types.Community, now time.Time) {
	if b.Confidence > a.Confidence {
		a.Label = b.Label
	}
	if b.Confidence < a.Confidence {
		a.Confidence = b.Confidence
	}

	seen := make(map[string]bool, len(a.Members))
	for _, m := range a.Members {
		seen[m] = true
	}
	for _, m := range b.Members {
		if !seen[m] {
			a.Members = append(a.Members, m)
		}
	}
	sort.Strings(a.Members)
	for _, m := range a.Members {
		d.membership[m] = a.ID
	}
	a.Meta.MemberCount = len(a.Members)
	a.Meta.LastUpdateTime = now
	if b.Meta.DivergenceScore > a.Meta.DivergenceScore {
		a.Meta.DivergenceScore = b.Meta.DivergenceScore
	}
	delete(d.communities, b.ID)
}

func overlapRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, m := range a {
		set[m] = true
	}
	shared := 0
	for _, m := range b {
		if set[m] {
			shared++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}

// NeedingRefresh returns copies of communities whose divergence score
// exceeds the threshold, most divergent first.
func (d *Detector) NeedingRefresh(threshold float64) []*types.Community {
	var out []*types.Community
	for _, c := range d.communities {
		if c.Meta.DivergenceScore > threshold {
			out = append(out, cloneCommunity(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Meta.DivergenceScore != out[j].Meta.DivergenceScore {
			return out[i].Meta.DivergenceScore > out[j].Meta.DivergenceScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Refresh reruns label propagation on the subgraph induced by a single
// community's members and replaces the community with the resulting
// clusters. Splinters below the minimum size are released back to
// unassigned rather than kept as degenerate communities.
func (d *Detector) Refresh(ctx context.Context, communityID string, labelFn LabelFunc) ([]*types.Community, error) {
	old, ok := d.communities[communityID]
	if !ok {
		return nil, types.NewCommunityNotFound(communityID)
	}

	memberSet := make(map[string]bool, len(old.Members))
	for _, m := range old.Members {
		memberSet[m] = true
	}
	adjacency := make(map[string][]types.Neighbor, len(old.Members))
	for _, m := range old.Members {
		var induced []types.Neighbor
		for _, nb := range d.graph.Neighbors(m) {
			if memberSet[nb.NodeID] {
				induced = append(induced, nb)
			}
		}
		adjacency[m] = induced
	}

	labels := propagate(adjacency, d.cfg.MaxIterations, d.cfg.ConvergenceThreshold, d.rng)
	clusters := make(map[string][]string)
	for id, label := range labels {
		clusters[label] = append(clusters[label], id)
	}

	now := time.Now().UTC()
	delete(d.communities, communityID)
	for _, m := range old.Members {
		delete(d.membership, m)
	}

	var result []*types.Community
	for _, members := range clusters {
		if len(members) < d.cfg.MinSize {
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

	d.logger.Info("community refreshed",
		slog.String("community_id", communityID),
		slog.Int("resulting", len(result)))
	return cloneAll(result), nil
}
