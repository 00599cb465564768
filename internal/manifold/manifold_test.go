package manifold

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/controlVector/cv-git/pkg/types"
)

func TestCommitType(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"feat: add cache layer", "feat"},
		{"feat(sync): incremental delta", "feat"},
		{"fix(graph)!: breaking edge rename", "fix"},
		{"Fix: capitalized type", "fix"},
		{"chore: bump deps", "chore"},
		{"Merge branch 'main'", ""},
		{"random message", ""},
		{"wip: not a conventional type", ""},
	}
	for _, tt := range tests {
		if got := commitType(tt.subject); got != tt.want {
			t.Errorf("commitType(%q) = %q, want %q", tt.subject, got, tt.want)
		}
	}
}

func TestBranchIntent(t *testing.T) {
	tests := []struct {
		branch string
		want   []string
	}{
		{"feature/add-cache-layer", []string{"feature", "add", "cache", "layer"}},
		{"fix/sync_race", []string{"fix", "sync", "race"}},
		{"main", []string{"main"}},
		{"release/v1.2", []string{"release", "v1", "2"}},
	}
	for _, tt := range tests {
		got := branchIntent(tt.branch)
		if len(got) != len(tt.want) {
			t.Errorf("branchIntent(%q) = %v, want %v", tt.branch, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("branchIntent(%q) = %v, want %v", tt.branch, got, tt.want)
				break
			}
		}
	}
}

func TestWorkingTreeNonGitDir(t *testing.T) {
	tree, err := workingTree(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if tree.Dirty() {
		t.Errorf("empty dir reported dirty: %+v", tree)
	}
}

func TestWorkingTreeGitRepo(t *testing.T) {
	root := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", root}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@t",
			"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@t")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	git("init", "-q")

	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tree, err := workingTree(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Untracked) != 1 || tree.Untracked[0] != "a.txt" {
		t.Fatalf("untracked = %v, want [a.txt]", tree.Untracked)
	}

	git("add", "a.txt")
	tree, err = workingTree(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Staged) != 1 || tree.Staged[0] != "a.txt" {
		t.Fatalf("staged = %v, want [a.txt]", tree.Staged)
	}

	git("commit", "-q", "-m", "feat: add a")
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("b\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tree, err = workingTree(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Modified) != 1 || tree.Modified[0] != "a.txt" {
		t.Fatalf("modified = %v, want [a.txt]", tree.Modified)
	}

	counts := recentCommitTypes(root, 10)
	if counts["feat"] != 1 {
		t.Errorf("commit type counts = %v, want feat=1", counts)
	}
}

func TestQueryTerms(t *testing.T) {
	got := queryTerms("How does the Sync pipeline work?")
	want := []string{"does", "how", "pipeline", "sync", "the", "work"}
	if len(got) != len(want) {
		t.Fatalf("queryTerms = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queryTerms = %v, want %v", got, want)
		}
	}
}

func TestMergeWeights(t *testing.T) {
	merged := mergeWeights(map[types.Dimension]float64{
		types.DimSemantic: 0.5,
		types.DimTemporal: -1, // negative = keep default
	})
	if merged[types.DimSemantic] != 0.5 {
		t.Errorf("semantic weight = %v, want 0.5", merged[types.DimSemantic])
	}
	if merged[types.DimTemporal] != DefaultWeights[types.DimTemporal] {
		t.Errorf("temporal weight = %v, want default", merged[types.DimTemporal])
	}
	if merged[types.DimStructural] != DefaultWeights[types.DimStructural] {
		t.Errorf("structural weight = %v, want default", merged[types.DimStructural])
	}
	if DefaultWeights[types.DimSemantic] == 0.5 {
		t.Fatal("test premise broken: override equals default")
	}
}

func TestAllocateProportional(t *testing.T) {
	signals := []types.DimensionSignal{
		{Dimension: types.DimSemantic, Score: 1.0, Available: true},
		{Dimension: types.DimStructural, Score: 1.0, Available: true},
		{Dimension: types.DimTemporal, Score: 0.5, Available: false},
	}
	weights := map[types.Dimension]float64{
		types.DimSemantic:   0.75,
		types.DimStructural: 0.25,
		types.DimTemporal:   0.5,
	}
	allocate(signals, weights, 1000)

	if signals[0].Budget != 750 {
		t.Errorf("semantic budget = %d, want 750", signals[0].Budget)
	}
	if signals[1].Budget != 250 {
		t.Errorf("structural budget = %d, want 250", signals[1].Budget)
	}
	if signals[2].Budget != 0 {
		t.Errorf("unavailable dimension got budget %d", signals[2].Budget)
	}
}

func TestRiskBucket(t *testing.T) {
	tests := []struct {
		fanOut int
		want   string
	}{
		{0, "low"}, {4, "low"}, {5, "medium"}, {19, "medium"}, {20, "high"}, {100, "high"},
	}
	for _, tt := range tests {
		if got := riskBucket(tt.fanOut); got != tt.want {
			t.Errorf("riskBucket(%d) = %q, want %q", tt.fanOut, got, tt.want)
		}
	}
}

func TestTruncateLineBoundary(t *testing.T) {
	s := "line one\nline two\nline three\n"
	got := truncate(s, 15)
	if got != "line one" {
		t.Errorf("truncate = %q, want cut at line boundary", got)
	}
	if truncate("short", 100) != "short" {
		t.Error("truncate grew or cut an in-budget string")
	}
	if truncate(s, 0) != s {
		t.Error("zero budget should disable truncation")
	}
}

func TestRenderFormats(t *testing.T) {
	signals := []types.DimensionSignal{
		{Dimension: types.DimSemantic, Score: 0.9, Fragment: "hit <one> & two", Available: true},
		{Dimension: types.DimTemporal, Score: 0.6, Fragment: "", Available: true},
	}

	md := render("cache eviction", signals, types.FormatMarkdown)
	if !strings.HasPrefix(md, "# Context: cache eviction") {
		t.Errorf("markdown header missing: %q", md)
	}
	if !strings.Contains(md, "## semantic (score 0.90)") {
		t.Errorf("markdown dimension header missing: %q", md)
	}
	if strings.Contains(md, "temporal") {
		t.Error("empty fragment rendered")
	}

	xml := render("cache eviction", signals, types.FormatXML)
	if !strings.Contains(xml, `<dimension name="semantic" score="0.90">`) {
		t.Errorf("xml dimension missing: %q", xml)
	}
	if !strings.Contains(xml, "&lt;one&gt; &amp; two") {
		t.Errorf("xml not escaped: %q", xml)
	}

	js := render("cache eviction", signals, types.FormatJSON)
	if !strings.Contains(js, `"dimension": "semantic"`) {
		t.Errorf("json fragment missing: %q", js)
	}
}

func TestRenderHitsBudget(t *testing.T) {
	hits := []*types.VectorHit{
		{ID: "a", Score: 0.9, Payload: map[string]any{"file": "a.go", "content": strings.Repeat("x", 50)}},
		{ID: "b", Score: 0.8, Payload: map[string]any{"file": "b.go", "content": strings.Repeat("y", 500)}},
	}
	out := renderHits(hits, 120)
	if !strings.Contains(out, "a.go") {
		t.Errorf("first hit missing: %q", out)
	}
	if strings.Contains(out, "b.go") {
		t.Error("over-budget hit was not dropped")
	}
}

func TestStateRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifold", "state.json")

	st, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}
	if st != nil {
		t.Fatal("missing state file should load as nil")
	}

	now := time.Now().UTC().Truncate(time.Second)
	want := &State{
		Version:   1,
		RepoID:    "demo",
		UpdatedAt: now,
		Dimensions: map[types.Dimension]*DimensionState{
			types.DimSemantic: {
				Dimension:   types.DimSemantic,
				Available:   true,
				LastUpdated: now,
				Counts:      map[string]int{"code_chunks": 42},
			},
		},
	}
	if err := saveState(path, want); err != nil {
		t.Fatal(err)
	}

	got, err := LoadState(path)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.RepoID != "demo" {
		t.Fatalf("got = %+v", got)
	}
	ds := got.Dimensions[types.DimSemantic]
	if ds == nil || !ds.Available || ds.Counts["code_chunks"] != 42 {
		t.Errorf("semantic state = %+v", ds)
	}
}

func TestClamp01(t *testing.T) {
	if clamp01(-0.5) != 0 || clamp01(1.5) != 1 || clamp01(0.3) != 0.3 {
		t.Error("clamp01 out of range")
	}
}
