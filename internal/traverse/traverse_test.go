package traverse

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/controlVector/cv-git/pkg/types"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(Options{
		Root:       t.TempDir(),
		SessionDir: filepath.Join(t.TempDir(), "sessions"),
		Lifetime:   time.Hour,
	})
}

func TestApplyInOut(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pos := types.Position{Depth: types.DepthRepo}
	pos, err := e.apply(ctx, pos, Move{Direction: types.DirIn, Target: "internal/syncer"})
	if err != nil {
		t.Fatal(err)
	}
	if pos.Depth != types.DepthModule || pos.Module != "internal/syncer" {
		t.Fatalf("after in: %+v", pos)
	}

	pos, err = e.apply(ctx, pos, Move{Direction: types.DirIn, Target: "internal/syncer/syncer.go"})
	if err != nil {
		t.Fatal(err)
	}
	if pos.Depth != types.DepthFile || pos.File != "internal/syncer/syncer.go" {
		t.Fatalf("after in: %+v", pos)
	}

	pos, err = e.apply(ctx, pos, Move{Direction: types.DirIn, Target: "internal/syncer/syncer.go:Sync"})
	if err != nil {
		t.Fatal(err)
	}
	if pos.Depth != types.DepthSymbol || pos.Symbol != "internal/syncer/syncer.go:Sync" {
		t.Fatalf("after in: %+v", pos)
	}

	if _, err := e.apply(ctx, pos, Move{Direction: types.DirIn, Target: "deeper"}); err == nil {
		t.Error("in at symbol depth should fail")
	}

	pos, err = e.apply(ctx, pos, Move{Direction: types.DirOut})
	if err != nil {
		t.Fatal(err)
	}
	if pos.Depth != types.DepthFile || pos.Symbol != "" {
		t.Fatalf("after out: %+v", pos)
	}

	pos, err = e.apply(ctx, pos, Move{Direction: types.DirOut})
	if err != nil {
		t.Fatal(err)
	}
	pos, err = e.apply(ctx, pos, Move{Direction: types.DirOut})
	if err != nil {
		t.Fatal(err)
	}
	if pos.Depth != types.DepthRepo {
		t.Fatalf("after out to root: %+v", pos)
	}
	if _, err := e.apply(ctx, pos, Move{Direction: types.DirOut}); err == nil {
		t.Error("out at repo depth should fail")
	}
}

func TestApplyLateral(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pos := types.Position{Module: "internal/syncer", File: "internal/syncer/syncer.go", Depth: types.DepthFile}
	pos, err := e.apply(ctx, pos, Move{Direction: types.DirLateral, Target: "internal/ledger/ledger.go"})
	if err != nil {
		t.Fatal(err)
	}
	if pos.File != "internal/ledger/ledger.go" || pos.Module != "internal/ledger" {
		t.Fatalf("after lateral: %+v", pos)
	}

	if _, err := e.apply(ctx, types.Position{Depth: types.DepthRepo}, Move{Direction: types.DirLateral, Target: "x"}); err == nil {
		t.Error("lateral at repo depth should fail")
	}
	if _, err := e.apply(ctx, pos, Move{Direction: types.DirLateral}); err == nil {
		t.Error("lateral without target should fail")
	}
}

func TestApplyStayAndUnknown(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pos := types.Position{Module: "m", Depth: types.DepthModule}
	got, err := e.apply(ctx, pos, Move{Direction: types.DirStay})
	if err != nil {
		t.Fatal(err)
	}
	if got != pos {
		t.Errorf("stay moved: %+v", got)
	}
	if _, err := e.apply(ctx, pos, Move{Direction: "sideways"}); err == nil {
		t.Error("unknown direction should fail")
	}
}

func TestFileOfSymbol(t *testing.T) {
	if got := fileOfSymbol("pkg/a.go:Foo", "cur.go"); got != "pkg/a.go" {
		t.Errorf("fileOfSymbol = %q", got)
	}
	if got := fileOfSymbol("Foo", "cur.go"); got != "cur.go" {
		t.Errorf("bare name fallback = %q", got)
	}
}

func TestModuleOf(t *testing.T) {
	if got := moduleOf("internal/graph/falkordb.go"); got != "internal/graph" {
		t.Errorf("moduleOf = %q", got)
	}
	if got := moduleOf("main.go"); got != "." {
		t.Errorf("moduleOf root file = %q", got)
	}
}

func TestSessionPersistence(t *testing.T) {
	e := newTestEngine(t)

	s := e.newSession()
	s.Position = types.Position{Module: "internal/mcp", Depth: types.DepthModule}
	if err := e.save(s); err != nil {
		t.Fatal(err)
	}

	loaded, err := e.loadOrCreate(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ID != s.ID || loaded.Position.Module != "internal/mcp" {
		t.Errorf("loaded = %+v", loaded)
	}

	// Unknown id starts fresh at repo depth.
	fresh, err := e.loadOrCreate("nope")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.ID == "nope" || fresh.Position.Depth != types.DepthRepo {
		t.Errorf("fresh = %+v", fresh)
	}
}

func TestExpiredSessionRestarts(t *testing.T) {
	e := newTestEngine(t)
	e.lifetime = time.Minute

	s := e.newSession()
	s.LastActivity = time.Now().UTC().Add(-time.Hour)
	if err := e.save(s); err != nil {
		t.Fatal(err)
	}

	got, err := e.loadOrCreate(s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID == s.ID {
		t.Error("expired session was resumed")
	}
	if _, err := os.Stat(e.sessionPath(s.ID)); !os.IsNotExist(err) {
		t.Error("expired session file not removed")
	}
}

func TestExpire(t *testing.T) {
	e := newTestEngine(t)
	e.lifetime = time.Minute

	live := e.newSession()
	if err := e.save(live); err != nil {
		t.Fatal(err)
	}
	stale := e.newSession()
	stale.LastActivity = time.Now().UTC().Add(-time.Hour)
	if err := e.save(stale); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(e.sessionDir, "corrupt.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := e.Expire()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want stale + corrupt", removed)
	}
	if e.ActiveSessions() != 1 {
		t.Errorf("active = %d, want 1", e.ActiveSessions())
	}

	data, err := os.ReadFile(e.sessionPath(live.ID))
	if err != nil {
		t.Fatal(err)
	}
	var s types.TraversalSession
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatal(err)
	}
	if s.ID != live.ID {
		t.Errorf("surviving session = %s, want %s", s.ID, live.ID)
	}
}
