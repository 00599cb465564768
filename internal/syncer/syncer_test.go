package syncer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/controlVector/cv-git/internal/config"
	"github.com/controlVector/cv-git/internal/ledger"
	"github.com/controlVector/cv-git/internal/repo"
	"github.com/controlVector/cv-git/pkg/types"
)

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"**/node_modules/**", "node_modules/react/index.js", true},
		{"**/node_modules/**", "web/node_modules/react/index.js", true},
		{"**/node_modules/**", "src/app.js", false},
		{"**/*.min.js", "dist/app.min.js", true},
		{"**/*.min.js", "app.min.js", true},
		{"**/*.min.js", "app.js", false},
		{"**/go.sum", "go.sum", true},
		{"**/go.sum", "sub/mod/go.sum", true},
		{"**/.git/**", ".git/HEAD", true},
		{"docs/*.md", "docs/readme.md", true},
		{"docs/*.md", "docs/api/readme.md", false},
		{"**/vendor/**", "vendor/", true},
	}
	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestIsBinary(t *testing.T) {
	if isBinary([]byte("package main\n")) {
		t.Error("plain source flagged as binary")
	}
	if !isBinary([]byte{0x7f, 'E', 'L', 'F', 0x00, 0x01}) {
		t.Error("NUL-bearing content not flagged as binary")
	}
	if isBinary(nil) {
		t.Error("empty content flagged as binary")
	}
}

func TestClassify(t *testing.T) {
	s := newTestSyncer(t, t.TempDir())

	tests := []struct {
		path  string
		class types.FileClass
		ok    bool
	}{
		{"internal/app/main.go", types.FileClassCode, true},
		{"web/src/index.ts", types.FileClassCode, true},
		{"README.md", types.FileClassDocument, true},
		{"assets/logo.png", "", false},
		{"Makefile", "", false},
	}
	for _, tt := range tests {
		class, ok := s.classify(tt.path)
		if class != tt.class || ok != tt.ok {
			t.Errorf("classify(%q) = (%q, %v), want (%q, %v)", tt.path, class, ok, tt.class, tt.ok)
		}
	}
}

func TestClassifyLanguageFilter(t *testing.T) {
	s := newTestSyncer(t, t.TempDir())
	s.cfg.Sync.IncludeLanguages = []string{"go"}

	if _, ok := s.classify("main.go"); !ok {
		t.Error("go file rejected with go in includeLanguages")
	}
	if _, ok := s.classify("app.py"); ok {
		t.Error("python file accepted with only go in includeLanguages")
	}
}

func TestClassifyDocsDisabled(t *testing.T) {
	s := newTestSyncer(t, t.TempDir())
	s.cfg.Docs.Enabled = false

	if _, ok := s.classify("README.md"); ok {
		t.Error("markdown accepted with docs disabled")
	}
}

func TestComputeDelta(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "README.md", "# Demo\n")
	writeFile(t, root, "node_modules/react/index.js", "module.exports = 1\n")
	writeFile(t, root, "blob.go", "package main\x00\n")

	s := newTestSyncer(t, root)
	led, err := ledger.Load(s.paths.FileLedger())
	if err != nil {
		t.Fatal(err)
	}

	d, err := s.computeDelta(context.Background(), led, types.SyncIncremental)
	if err != nil {
		t.Fatal(err)
	}
	wantAdded := []string{"README.md", "main.go"}
	if len(d.added) != len(wantAdded) {
		t.Fatalf("added = %v, want %v", d.added, wantAdded)
	}
	for i, p := range wantAdded {
		if d.added[i] != p {
			t.Fatalf("added = %v, want %v", d.added, wantAdded)
		}
	}
	if d.classes["main.go"] != types.FileClassCode {
		t.Errorf("main.go class = %q, want code", d.classes["main.go"])
	}
	if d.classes["README.md"] != types.FileClassDocument {
		t.Errorf("README.md class = %q, want document", d.classes["README.md"])
	}

	// Record the tree in the ledger: a second incremental pass sees
	// everything as unchanged.
	for _, p := range d.added {
		led.Set(p, &types.LedgerEntry{
			ContentHash: d.hashes[p],
			Size:        d.sizes[p],
			Type:        d.classes[p],
		})
	}
	d2, err := s.computeDelta(context.Background(), led, types.SyncIncremental)
	if err != nil {
		t.Fatal(err)
	}
	if len(d2.added) != 0 || len(d2.modified) != 0 || len(d2.deleted) != 0 {
		t.Errorf("quiescent delta = added %v modified %v deleted %v", d2.added, d2.modified, d2.deleted)
	}
	if d2.unchanged != 2 {
		t.Errorf("unchanged = %d, want 2", d2.unchanged)
	}

	// Force mode reprocesses unchanged paths.
	d3, err := s.computeDelta(context.Background(), led, types.SyncForce)
	if err != nil {
		t.Fatal(err)
	}
	if len(d3.modified) != 2 || d3.unchanged != 0 {
		t.Errorf("force delta: modified %v unchanged %d, want 2 modified 0 unchanged", d3.modified, d3.unchanged)
	}

	// Edit one file, delete another.
	writeFile(t, root, "main.go", "package main\n\nfunc main() { println() }\n")
	if err := os.Remove(filepath.Join(root, "README.md")); err != nil {
		t.Fatal(err)
	}
	d4, err := s.computeDelta(context.Background(), led, types.SyncIncremental)
	if err != nil {
		t.Fatal(err)
	}
	if len(d4.modified) != 1 || d4.modified[0] != "main.go" {
		t.Errorf("modified = %v, want [main.go]", d4.modified)
	}
	if len(d4.deleted) != 1 || d4.deleted[0] != "README.md" {
		t.Errorf("deleted = %v, want [README.md]", d4.deleted)
	}
}

func TestComputeDeltaSkipsOversized(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.go", "package main\n// "+strings.Repeat("x", 64)+"\n")

	s := newTestSyncer(t, root)
	s.cfg.Limits.MaxFileSize = 10

	led, err := ledger.Load(s.paths.FileLedger())
	if err != nil {
		t.Fatal(err)
	}
	d, err := s.computeDelta(context.Background(), led, types.SyncIncremental)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.added) != 0 {
		t.Errorf("added = %v, want empty for oversized file", d.added)
	}
}

func newTestSyncer(t *testing.T, root string) *Syncer {
	t.Helper()
	return New(Options{
		Config: config.DefaultConfig(),
		Paths:  repo.NewPaths(root),
		RepoID: "testrepo",
	})
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
