// Package repo manages the per-repository .cv state directory.
package repo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/controlVector/cv-git/internal/config"
)

// Manifest identifies a repository. The id is the isolation key for
// graph database names and vector collection prefixes.
type Manifest struct {
	Repository struct {
		ID string `json:"id"`
	} `json:"repository"`
	CreatedAt time.Time `json:"created_at"`
}

// Paths resolves everything stored under .cv/.
type Paths struct {
	Root string // project root
	CV   string // .cv
}

// NewPaths builds the path set for a project root.
func NewPaths(projectRoot string) Paths {
	return Paths{Root: projectRoot, CV: config.CVDir(projectRoot)}
}

func (p Paths) Manifest() string       { return filepath.Join(p.CV, "manifest.json") }
func (p Paths) FileLedger() string     { return filepath.Join(p.CV, "file_ledger.json") }
func (p Paths) AuthoredLog() string    { return filepath.Join(p.CV, "authored.jsonl") }
func (p Paths) IngestionLog() string   { return filepath.Join(p.CV, "ingestion.jsonl") }
func (p Paths) Documents() string      { return filepath.Join(p.CV, "documents") }
func (p Paths) Sessions() string       { return filepath.Join(p.CV, "sessions") }
func (p Paths) ManifoldState() string  { return filepath.Join(p.CV, "manifold", "state.json") }
func (p Paths) EmbeddingCache() string { return filepath.Join(p.CV, "cache", "embeddings") }
func (p Paths) RepoSummary() string    { return filepath.Join(p.CV, "codebase-summary.json") }

// EnsureManifest loads the manifest, creating it with a fresh repo id on
// first use. The id is derived from the absolute project path plus
// creation time, so two checkouts of the same repo stay isolated.
func EnsureManifest(p Paths) (*Manifest, error) {
	path := p.Manifest()

	data, err := os.ReadFile(path)
	if err == nil {
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("corrupt manifest at %s: %w", path, err)
		}
		if m.Repository.ID == "" {
			return nil, fmt.Errorf("manifest at %s has no repository id", path)
		}
		return &m, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	m := &Manifest{CreatedAt: time.Now().UTC()}
	m.Repository.ID = newRepoID(p.Root, m.CreatedAt)

	if err := os.MkdirAll(p.CV, 0o755); err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return nil, err
	}
	return m, nil
}

// newRepoID derives a short stable id for the repository.
func newRepoID(root string, at time.Time) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	h := sha256.Sum256([]byte(abs + "|" + at.Format(time.RFC3339Nano)))
	return hex.EncodeToString(h[:8])
}

// GraphName returns the per-repo graph database name cv_<repoId>,
// or the shared default when no repo id is known.
func GraphName(repoID string) string {
	if repoID == "" {
		return "cv_default"
	}
	return "cv_" + repoID
}

// EnsureLayout creates the state directories that lazy writers expect.
func EnsureLayout(p Paths) error {
	for _, dir := range []string{
		p.CV,
		p.Documents(),
		p.Sessions(),
		filepath.Dir(p.ManifoldState()),
		p.EmbeddingCache(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
