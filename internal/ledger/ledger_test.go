package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/controlVector/cv-git/pkg/types"
)

func TestLoadMissingFile(t *testing.T) {
	led, err := Load(filepath.Join(t.TempDir(), "ledger.json"))
	if err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if led.Len() != 0 {
		t.Errorf("expected empty ledger, got %d entries", led.Len())
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")

	led, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	led.Set("src/a.ts", &types.LedgerEntry{
		ContentHash:  "abc",
		Size:         120,
		Type:         types.FileClassCode,
		LastSyncedAt: now,
	})
	led.Set("README.md", &types.LedgerEntry{
		ContentHash:  "def",
		Size:         64,
		Type:         types.FileClassDocument,
		LastSyncedAt: now,
	})
	if err := led.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", reloaded.Len())
	}
	e := reloaded.Get("src/a.ts")
	if e == nil || e.ContentHash != "abc" || e.Type != types.FileClassCode {
		t.Errorf("entry roundtrip mismatch: %+v", e)
	}
}

func TestDeleteAndPaths(t *testing.T) {
	led, _ := Load(filepath.Join(t.TempDir(), "ledger.json"))
	led.Set("b.go", &types.LedgerEntry{ContentHash: "1"})
	led.Set("a.go", &types.LedgerEntry{ContentHash: "2"})
	led.Set("c.go", &types.LedgerEntry{ContentHash: "3"})
	led.Delete("b.go")

	paths := led.Paths()
	want := []string{"a.go", "c.go"}
	if len(paths) != len(want) {
		t.Fatalf("Paths() = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("Paths()[%d] = %q, want %q (sorted)", i, paths[i], want[i])
		}
	}
	if led.Get("b.go") != nil {
		t.Error("deleted entry still present")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.json")

	led, _ := Load(path)
	led.Set("a.go", &types.LedgerEntry{ContentHash: "1"})
	if err := led.Save(); err != nil {
		t.Fatal(err)
	}

	// No temp files may survive a save.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the ledger file, found %d entries", len(entries))
	}
}

func TestClear(t *testing.T) {
	led, _ := Load(filepath.Join(t.TempDir(), "ledger.json"))
	led.Set("a.go", &types.LedgerEntry{ContentHash: "1"})
	led.Clear()
	if led.Len() != 0 {
		t.Errorf("Clear left %d entries", led.Len())
	}
}
