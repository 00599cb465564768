package summarize

import (
	"context"
	"fmt"

	"github.com/controlVector/cv-git/pkg/types"
)

// GetSummary fetches one summary point by id.
func (s *Summarizer) GetSummary(ctx context.Context, id string) (*types.HierarchicalSummary, error) {
	coll := types.CollectionName(s.repoID, types.CollectionSummaries)
	points, err := s.vector.Scroll(ctx, coll, map[string]any{"_id": id}, 1)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: summary %s", types.ErrNotFound, id)
	}
	return fromPayload(points[0].ID, points[0].Payload), nil
}

// Children fetches the summaries one level below a parent id.
func (s *Summarizer) Children(ctx context.Context, parentID string) ([]*types.HierarchicalSummary, error) {
	coll := types.CollectionName(s.repoID, types.CollectionSummaries)
	points, err := s.vector.Scroll(ctx, coll, map[string]any{"parent": parentID}, 100)
	if err != nil {
		return nil, err
	}
	out := make([]*types.HierarchicalSummary, 0, len(points))
	for _, p := range points {
		out = append(out, fromPayload(p.ID, p.Payload))
	}
	return out, nil
}

// SearchByLevel searches summaries at one pyramid level.
func (s *Summarizer) SearchByLevel(ctx context.Context, query string, level, k int) ([]*types.VectorHit, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	coll := types.CollectionName(s.repoID, types.CollectionSummaries)
	return s.vector.Search(ctx, coll, vectors[0], k, map[string]any{"level": level})
}

// SearchHierarchical drills through the pyramid, returning top-k hits
// per level keyed by level. Callers typically walk from coarse (L3)
// to fine (L1).
func (s *Summarizer) SearchHierarchical(ctx context.Context, query string, startLevel, endLevel, k int) (map[int][]*types.VectorHit, error) {
	if startLevel < endLevel {
		startLevel, endLevel = endLevel, startLevel
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	coll := types.CollectionName(s.repoID, types.CollectionSummaries)

	out := map[int][]*types.VectorHit{}
	for level := startLevel; level >= endLevel; level-- {
		hits, err := s.vector.Search(ctx, coll, vectors[0], k, map[string]any{"level": level})
		if err != nil {
			return nil, err
		}
		out[level] = hits
	}
	return out, nil
}

func fromPayload(id string, payload map[string]any) *types.HierarchicalSummary {
	n := &types.HierarchicalSummary{ID: id}
	if v, ok := payload["level"].(float64); ok {
		n.Level = int(v)
	} else if v, ok := payload["level"].(int); ok {
		n.Level = v
	}
	n.Parent, _ = payload["parent"].(string)
	n.Summary, _ = payload["content"].(string)
	n.ContentHash, _ = payload["hash"].(string)
	if list, ok := payload["children"].([]any); ok {
		for _, c := range list {
			if cs, ok := c.(string); ok {
				n.Children = append(n.Children, cs)
			}
		}
	}
	if list, ok := payload["keywords"].([]any); ok {
		for _, k := range list {
			if ks, ok := k.(string); ok {
				n.Keywords = append(n.Keywords, ks)
			}
		}
	}
	return n
}
