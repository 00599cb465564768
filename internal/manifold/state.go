package manifold

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/controlVector/cv-git/pkg/types"
)

// DimensionState is one dimension's persisted record: counts and
// pointers, cheap to refresh and cheap to load.
type DimensionState struct {
	Dimension   types.Dimension `json:"dimension"`
	Available   bool            `json:"available"`
	LastUpdated time.Time       `json:"last_updated"`
	Counts      map[string]int  `json:"counts,omitempty"`
	Refs        []string        `json:"refs,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// State is the manifold state file at .cv/manifold/state.json.
type State struct {
	Version    int                                 `json:"version"`
	RepoID     string                              `json:"repo_id"`
	UpdatedAt  time.Time                           `json:"updated_at"`
	Dimensions map[types.Dimension]*DimensionState `json:"dimensions"`
}

// LoadState reads the state file. A missing file returns (nil, nil) —
// the caller decides whether that means fallback.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	if st.Dimensions == nil {
		st.Dimensions = make(map[types.Dimension]*DimensionState)
	}
	return &st, nil
}

func saveState(path string, st *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*.json")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

// Refresh recomputes every dimension's state record from the stores
// and persists it. Individual dimension failures mark the dimension
// unavailable rather than failing the refresh.
func (m *Manifold) Refresh(ctx context.Context) (*State, error) {
	now := time.Now().UTC()
	st := &State{
		Version:    1,
		RepoID:     m.repoID,
		UpdatedAt:  now,
		Dimensions: make(map[types.Dimension]*DimensionState),
	}

	for _, dim := range types.AllDimensions {
		ds := &DimensionState{Dimension: dim, LastUpdated: now, Counts: map[string]int{}}
		if err := m.refreshDimension(ctx, dim, ds); err != nil {
			m.logger.Warn("dimension refresh failed", "dimension", dim, "error", err)
			ds.Available = false
			ds.Notes = err.Error()
		}
		st.Dimensions[dim] = ds
	}

	if err := saveState(m.statePath, st); err != nil {
		return nil, err
	}
	m.logger.Info("manifold state refreshed", "dimensions", len(st.Dimensions))
	return st, nil
}

func (m *Manifold) refreshDimension(ctx context.Context, dim types.Dimension, ds *DimensionState) error {
	switch dim {
	case types.DimStructural:
		stats, err := m.graph.GetStats(ctx)
		if err != nil {
			return err
		}
		ds.Counts["nodes"] = stats.TotalNodes()
		ds.Counts["edges"] = stats.TotalEdges()
		hubs, err := m.graph.Hubs(ctx, 3, 10)
		if err == nil {
			for _, h := range hubs {
				ds.Refs = append(ds.Refs, h.QualifiedName)
			}
		}
		ds.Available = true

	case types.DimSemantic:
		for _, kind := range types.AllCollections {
			coll := types.CollectionName(m.repoID, kind)
			n, err := m.vector.Count(ctx, coll)
			if err != nil {
				return err
			}
			ds.Counts[string(kind)] = n
		}
		ds.Notes = m.embedder.Model()
		ds.Available = true

	case types.DimTemporal:
		commits, err := m.recentCommits(ctx, 20)
		if err != nil {
			return err
		}
		ds.Counts["recent_commits"] = len(commits)
		for i, c := range commits {
			if i >= 5 {
				break
			}
			ds.Refs = append(ds.Refs, c.SHA)
		}
		ds.Available = true

	case types.DimRequirements:
		if m.requirements == nil {
			ds.Notes = "no requirements source configured"
			return nil
		}
		n, err := m.requirements.Count(ctx)
		if err != nil {
			return err
		}
		ds.Counts["requirements"] = n
		ds.Available = true

	case types.DimSummary:
		coll := types.CollectionName(m.repoID, types.CollectionSummaries)
		n, err := m.vector.Count(ctx, coll)
		if err != nil {
			return err
		}
		ds.Counts["summaries"] = n
		ds.Available = n > 0

	case types.DimNavigational:
		ds.Counts["active_sessions"] = m.sessions()
		ds.Available = true

	case types.DimSession:
		tree, err := workingTree(m.root)
		if err != nil {
			return err
		}
		ds.Counts["modified"] = len(tree.Modified)
		ds.Counts["staged"] = len(tree.Staged)
		ds.Counts["untracked"] = len(tree.Untracked)
		ds.Refs = tree.Modified
		ds.Available = true

	case types.DimIntent:
		branch, err := currentBranch(m.root)
		if err != nil {
			return err
		}
		ds.Notes = branch
		for kind, n := range recentCommitTypes(m.root, 20) {
			ds.Counts[kind] = n
		}
		ds.Available = true

	case types.DimImpact:
		tree, err := workingTree(m.root)
		if err != nil {
			return err
		}
		changed := append(append([]string{}, tree.Modified...), tree.Staged...)
		ds.Counts["changed_files"] = len(changed)
		ds.Available = true
	}
	return nil
}
