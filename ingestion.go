package engram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/engramdb/engram/pkg/reasoner"
	"github.com/engramdb/engram/pkg/store"
	"github.com/engramdb/engram/pkg/types"
)

// EpisodeResult reports what one episode turn added to the graph. Degraded
// distinguishes "succeeded with partial knowledge because a collaborator
// failed" from a clean run; Warnings say what was skipped.
type EpisodeResult struct {
	Episode     *types.Node        `json:"episode"`
	Entities    []*types.Node      `json:"entities"`
	Edges       []*types.Edge      `json:"edges"`
	Communities []*types.Community `json:"communities"`

	Degraded bool     `json:"degraded"`
	Warnings []string `json:"warnings,omitempty"`
}

// AddEpisode ingests one interaction turn: it records the episode node,
// extracts entities and relationships through the reasoning collaborator,
// resolves duplicates against the session's existing entities, infers
// temporal bounds for new relationships, and incrementally updates
// community membership for every touched entity.
//
// Collaborator failures degrade the result instead of failing the call;
// invariant violations (bad episode payload) fail fast.
func (m *Manager) AddEpisode(ctx context.Context, content types.EpisodeContent) (*EpisodeResult, error) {
	episode, err := types.NewEpisodeNode(content)
	if err != nil {
		return nil, err
	}
	if err := m.store.AddNode(episode); err != nil {
		return nil, err
	}

	result := &EpisodeResult{Episode: episode}

	extraction := m.extract(ctx, episode, result)
	if len(extraction.Entities) == 0 {
		m.logger.Debug("episode yielded no entities", slog.String("episode_id", episode.ID))
		return result, nil
	}

	existing := m.store.QueryNodes(store.NodeFilter{
		Types:      []types.NodeType{types.EntityNodeType},
		SessionIDs: []string{content.SessionID},
	})
	duplicates := m.dedupe(ctx, extraction.Entities, existing, result)

	entityIDs := make(map[string]string, len(extraction.Entities))
	for _, extracted := range extraction.Entities {
		id, err := m.upsertEntity(ctx, extracted, duplicates, content, result)
		if err != nil {
			return nil, err
		}
		entityIDs[extracted.Name] = id

		mention := &types.Edge{
			ID:        uuid.NewString(),
			Type:      types.MentionsEdgeType,
			SourceID:  episode.ID,
			TargetID:  id,
			SessionID: content.SessionID,
			ValidAt:   content.Timestamp,
		}
		if err := m.store.AddEdge(mention); err != nil {
			return nil, err
		}
		result.Edges = append(result.Edges, mention)
	}

	for _, rel := range extraction.Relationships {
		edge, err := m.addRelationship(ctx, rel, entityIDs, content, result)
		if err != nil {
			return nil, err
		}
		if edge != nil {
			result.Edges = append(result.Edges, edge)
		}
	}

	m.updateCommunities(ctx, entityIDs, result)

	m.logger.Info("episode ingested",
		slog.String("episode_id", episode.ID),
		slog.String("session_id", content.SessionID),
		slog.Int("entities", len(result.Entities)),
		slog.Int("edges", len(result.Edges)),
		slog.Bool("degraded", result.Degraded))
	return result, nil
}

// AddEpisodes ingests a batch of turns in configured chunks so one bulk
// call cannot starve other pending work; cancellation is honored between
// chunks. Already-ingested results are returned alongside the error when a
// turn fails partway.
func (m *Manager) AddEpisodes(ctx context.Context, contents []types.EpisodeContent) ([]*EpisodeResult, error) {
	chunkSize := m.cfg.Ingestion.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 10
	}

	results := make([]*EpisodeResult, 0, len(contents))
	for start := 0; start < len(contents); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("bulk ingestion cancelled: %w", err)
		}
		end := start + chunkSize
		if end > len(contents) {
			end = len(contents)
		}
		for _, content := range contents[start:end] {
			r, err := m.AddEpisode(ctx, content)
			if err != nil {
				return results, fmt.Errorf("ingesting episode %d: %w", len(results), err)
			}
			results = append(results, r)
		}
	}
	return results, nil
}

// extract runs entity/relationship extraction, degrading to an empty
// extraction when the collaborator fails or returns unusable output.
func (m *Manager) extract(ctx context.Context, episode *types.Node, result *EpisodeResult) reasoner.ExtractionResult {
	var previous []string
	for _, prior := range m.store.GetEpisodes(episode.SessionID, m.cfg.Ingestion.ContextEpisodes+1) {
		if prior.ID == episode.ID {
			continue
		}
		previous = append(previous, prior.Content)
		if len(previous) >= m.cfg.Ingestion.ContextEpisodes {
			break
		}
	}

	r, err := m.reasoner.Run(ctx, reasoner.ExtractionTask{
		EpisodeBody:      episode.Content,
		PreviousEpisodes: previous,
		ReferenceTime:    episode.ValidAt,
	})
	if err != nil {
		m.degrade(result, fmt.Sprintf("extraction failed: %v", err))
		return reasoner.ExtractionResult{}
	}
	extraction, ok := r.(reasoner.ExtractionResult)
	if !ok {
		m.degrade(result, "extraction output unparseable")
		return reasoner.ExtractionResult{}
	}
	return extraction
}

// dedupe maps extracted entity names to existing node ids. When the
// collaborator fails it falls back to case-insensitive name equality.
func (m *Manager) dedupe(ctx context.Context, extracted []reasoner.ExtractedEntity, existing []*types.Node, result *EpisodeResult) map[string]string {
	duplicates := make(map[string]string)
	if len(existing) == 0 {
		return duplicates
	}

	task := reasoner.DedupeTask{}
	for _, e := range extracted {
		task.Extracted = append(task.Extracted, reasoner.EntityRef{Name: e.Name, Content: e.Summary})
	}
	byID := make(map[string]*types.Node, len(existing))
	for _, n := range existing {
		task.Existing = append(task.Existing, reasoner.EntityRef{ID: n.ID, Name: n.Name, Content: n.Content})
		byID[n.ID] = n
	}

	r, err := m.reasoner.Run(ctx, task)
	if err == nil {
		if deduped, ok := r.(reasoner.DedupeResult); ok {
			for _, pair := range deduped.Duplicates {
				if _, known := byID[pair.ExistingID]; known {
					duplicates[pair.ExtractedName] = pair.ExistingID
				}
			}
			return duplicates
		}
		err = fmt.Errorf("dedupe output unparseable")
	}

	m.degrade(result, fmt.Sprintf("dedupe degraded to name matching: %v", err))
	for _, e := range extracted {
		for _, n := range existing {
			if strings.EqualFold(e.Name, n.Name) {
				duplicates[e.Name] = n.ID
				break
			}
		}
	}
	return duplicates
}

// upsertEntity either refreshes the duplicate's summary or creates a new
// entity node with a best-effort embedding.
func (m *Manager) upsertEntity(ctx context.Context, extracted reasoner.ExtractedEntity, duplicates map[string]string, content types.EpisodeContent, result *EpisodeResult) (string, error) {
	if existingID, ok := duplicates[extracted.Name]; ok {
		patch := store.NodePatch{}
		if extracted.Summary != "" {
			patch.Content = &extracted.Summary
		}
		updated, err := m.store.UpdateNode(existingID, patch)
		if err != nil {
			return "", err
		}
		result.Entities = append(result.Entities, updated)
		return existingID, nil
	}

	node := types.NewEntityNode(extracted.Name, extracted.Summary, content.SessionID)
	node.ValidAt = content.Timestamp
	node.Metadata["confidence"] = extracted.Confidence

	if emb, err := m.resolveEmbedding(ctx, entityText(extracted)); err != nil {
		m.degrade(result, fmt.Sprintf("embedding %q failed: %v", extracted.Name, err))
	} else {
		node.Embedding = emb
	}

	if err := m.store.AddNode(node); err != nil {
		return "", err
	}
	result.Entities = append(result.Entities, node)
	return node.ID, nil
}

// addRelationship creates a relates_to edge for an extracted relationship,
// inferring temporal bounds through the collaborator and defaulting to the
// episode timestamp when inference degrades.
func (m *Manager) addRelationship(ctx context.Context, rel reasoner.ExtractedRelationship, entityIDs map[string]string, content types.EpisodeContent, result *EpisodeResult) (*types.Edge, error) {
	sourceID, okSource := entityIDs[rel.SourceName]
	targetID, okTarget := entityIDs[rel.TargetName]
	if !okSource || !okTarget {
		return nil, nil
	}

	edge := &types.Edge{
		ID:        uuid.NewString(),
		Type:      types.RelatesToEdgeType,
		SourceID:  sourceID,
		TargetID:  targetID,
		Name:      rel.Name,
		Content:   rel.Fact,
		SessionID: content.SessionID,
		Metadata:  map[string]any{"confidence": rel.Confidence},
		ValidAt:   content.Timestamp,
	}

	r, err := m.reasoner.Run(ctx, reasoner.TemporalInferenceTask{
		Fact:          rel.Fact,
		EpisodeBody:   content.Body,
		ReferenceTime: content.Timestamp,
	})
	if err != nil {
		m.degrade(result, fmt.Sprintf("temporal inference for %q degraded to episode time: %v", rel.Name, err))
	} else if inferred, ok := r.(reasoner.TemporalInferenceResult); ok {
		if inferred.ValidAt != nil {
			edge.ValidAt = *inferred.ValidAt
		}
		edge.InvalidAt = inferred.InvalidAt
	}

	if err := m.store.AddEdge(edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// updateCommunities runs the incremental membership update for every
// entity the episode touched. Failures here degrade rather than abort:
// community state is rebuildable.
func (m *Manager) updateCommunities(ctx context.Context, entityIDs map[string]string, result *EpisodeResult) {
	labelFn := m.labelFunc()
	seen := make(map[string]bool)
	for _, id := range entityIDs {
		c, err := m.detector.UpdateNodeCommunity(ctx, id, labelFn)
		if err != nil {
			m.degrade(result, fmt.Sprintf("community update for %s failed: %v", id, err))
			continue
		}
		if !seen[c.ID] {
			seen[c.ID] = true
			result.Communities = append(result.Communities, c)
		}
	}
}

func (m *Manager) degrade(result *EpisodeResult, warning string) {
	result.Degraded = true
	result.Warnings = append(result.Warnings, warning)
	m.logger.Warn("ingestion degraded", slog.String("reason", warning))
}

func entityText(e reasoner.ExtractedEntity) string {
	if e.Summary == "" {
		return e.Name
	}
	return e.Name + ": " + e.Summary
}
