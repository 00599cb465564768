package repo

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureManifestIdempotent(t *testing.T) {
	p := NewPaths(t.TempDir())

	m1, err := EnsureManifest(p)
	if err != nil {
		t.Fatal(err)
	}
	if m1.Repository.ID == "" {
		t.Fatal("manifest created without repo id")
	}
	if len(m1.Repository.ID) != 16 {
		t.Errorf("repo id = %q, want 16 hex chars", m1.Repository.ID)
	}

	m2, err := EnsureManifest(p)
	if err != nil {
		t.Fatal(err)
	}
	if m2.Repository.ID != m1.Repository.ID {
		t.Errorf("repo id changed across calls: %s vs %s", m1.Repository.ID, m2.Repository.ID)
	}
}

func TestEnsureManifestDistinctRoots(t *testing.T) {
	m1, err := EnsureManifest(NewPaths(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	m2, err := EnsureManifest(NewPaths(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	if m1.Repository.ID == m2.Repository.ID {
		t.Error("two checkouts got the same repo id")
	}
}

func TestEnsureManifestCorrupt(t *testing.T) {
	p := NewPaths(t.TempDir())
	if err := os.MkdirAll(p.CV, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p.Manifest(), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := EnsureManifest(p); err == nil {
		t.Error("corrupt manifest should not be silently replaced")
	}
}

func TestGraphName(t *testing.T) {
	if got := GraphName("abc123"); got != "cv_abc123" {
		t.Errorf("GraphName = %q", got)
	}
	if got := GraphName(""); got != "cv_default" {
		t.Errorf("GraphName empty = %q", got)
	}
}

func TestEnsureLayout(t *testing.T) {
	p := NewPaths(t.TempDir())
	if err := EnsureLayout(p); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{
		p.Documents(),
		p.Sessions(),
		filepath.Dir(p.ManifoldState()),
		p.EmbeddingCache(),
	} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("missing state dir %s", dir)
		}
	}
}
