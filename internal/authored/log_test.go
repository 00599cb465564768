package authored

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/controlVector/cv-git/pkg/types"
)

func TestOpenMissingFile(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "authored.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 0 {
		t.Errorf("Len = %d, want 0", l.Len())
	}
}

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authored.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	e := &types.AuthoredEntry{
		Kind:    types.AuthoredDocumentMeta,
		Path:    "internal/syncer/syncer.go",
		Payload: map[string]any{"text": "drives sync ticks"},
	}
	if err := l.Append(e); err != nil {
		t.Fatal(err)
	}
	if e.ID == "" {
		t.Fatal("Append did not assign an ID")
	}
	if e.CreatedAt.IsZero() || e.UpdatedAt.IsZero() {
		t.Fatal("Append did not fill timestamps")
	}

	// Update the same entry; replay must keep the newest version.
	upd := &types.AuthoredEntry{
		ID:        e.ID,
		Kind:      e.Kind,
		Path:      e.Path,
		UpdatedAt: e.UpdatedAt.Add(time.Second),
		Payload:   map[string]any{"text": "drives sync ticks for one repo"},
	}
	if err := l.Append(upd); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.Len() != 1 {
		t.Fatalf("Len after replay = %d, want 1", reopened.Len())
	}
	got := reopened.Get(e.ID)
	if got == nil {
		t.Fatal("entry missing after replay")
	}
	if got.Payload["text"] != "drives sync ticks for one repo" {
		t.Errorf("replay kept stale version: %v", got.Payload)
	}
	if got.CreatedAt.IsZero() {
		t.Errorf("created_at lost on update")
	}
}

func TestReplaySkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authored.jsonl")
	content := `{"id":"k1","kind":"annotation","updated_at":"2026-01-02T00:00:00Z","payload":{"v":1}}
{"id":"k1","kind":"annotation","updated
not json at all
{"id":"k2","kind":"annotation","updated_at":"2026-01-03T00:00:00Z"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2 (corrupt lines skipped)", l.Len())
	}
	if l.Get("k1") == nil || l.Get("k2") == nil {
		t.Error("valid entries lost around corruption")
	}
}

func TestStaleAppendDoesNotWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authored.jsonl")
	now := time.Now().UTC()

	lines := []*types.AuthoredEntry{
		{ID: "x", Kind: types.AuthoredAnnotation, UpdatedAt: now, Payload: map[string]any{"v": "new"}},
		{ID: "x", Kind: types.AuthoredAnnotation, UpdatedAt: now.Add(-time.Hour), Payload: map[string]any{"v": "old"}},
	}
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range lines {
		if err := l.Append(e); err != nil {
			t.Fatal(err)
		}
	}
	if got := l.Get("x").Payload["v"]; got != "new" {
		t.Errorf("live entry = %v, want newest by updated_at", got)
	}
}

func TestListByKind(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "authored.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	base := time.Now().UTC()
	entries := []*types.AuthoredEntry{
		{Kind: types.AuthoredAnnotation, UpdatedAt: base},
		{Kind: types.AuthoredDocumentMeta, UpdatedAt: base.Add(time.Second)},
		{Kind: types.AuthoredAnnotation, UpdatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		if err := l.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	notes := l.List(types.AuthoredAnnotation)
	if len(notes) != 2 {
		t.Fatalf("notes = %d, want 2", len(notes))
	}
	if notes[0].UpdatedAt.Before(notes[1].UpdatedAt) {
		t.Error("List not sorted by updated_at descending")
	}
	if all := l.List(""); len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
}

func TestImportOwnExportIsNoop(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "authored.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := l.Append(&types.AuthoredEntry{Kind: types.AuthoredAnnotation}); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := l.Import(l.Export())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Imported != 0 || stats.Skipped != 3 {
		t.Errorf("stats = %+v, want 0 imported / 3 skipped", stats)
	}
}

func TestImportMergesNewer(t *testing.T) {
	dir := t.TempDir()
	a, err := Open(filepath.Join(dir, "a.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Open(filepath.Join(dir, "b.jsonl"))
	if err != nil {
		t.Fatal(err)
	}

	shared := &types.AuthoredEntry{ID: "s", Kind: types.AuthoredAnnotation, UpdatedAt: time.Now().UTC()}
	if err := a.Append(shared); err != nil {
		t.Fatal(err)
	}
	newer := &types.AuthoredEntry{ID: "s", Kind: types.AuthoredAnnotation, UpdatedAt: shared.UpdatedAt.Add(time.Minute)}
	fresh := &types.AuthoredEntry{ID: "f", Kind: types.AuthoredAnnotation, UpdatedAt: time.Now().UTC()}
	for _, e := range []*types.AuthoredEntry{newer, fresh} {
		if err := b.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := a.Import(b.Export())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Imported != 2 {
		t.Errorf("stats = %+v, want 2 imported", stats)
	}
	if a.Len() != 2 {
		t.Errorf("Len = %d, want 2", a.Len())
	}
}
