// Package authored persists human-created metadata in an append-only
// JSONL log. Entries survive full resync: the graph is derived state,
// this log is not. Replays resolve conflicts by latest updated_at.
package authored

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/controlVector/cv-git/pkg/types"
)

// Log is the in-process view of the authored metadata log. Single
// writer per process; reads serve from the replayed in-memory map.
type Log struct {
	path string

	mu      sync.RWMutex
	entries map[string]*types.AuthoredEntry // id -> latest version
}

// Open replays the log file. Corrupt lines are skipped, not fatal —
// an append interrupted mid-line must not poison the whole log.
func Open(path string) (*Log, error) {
	l := &Log{
		path:    path,
		entries: make(map[string]*types.AuthoredEntry),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e types.AuthoredEntry
		if err := json.Unmarshal(line, &e); err != nil || e.ID == "" {
			continue
		}
		l.apply(&e)
	}
	return l, scanner.Err()
}

// apply keeps the newest version of an entry by updated_at.
func (l *Log) apply(e *types.AuthoredEntry) bool {
	prev, ok := l.entries[e.ID]
	if ok && !e.UpdatedAt.After(prev.UpdatedAt) {
		return false
	}
	l.entries[e.ID] = e
	return true
}

// Append writes one entry. A zero ID gets a fresh UUID; timestamps
// are filled when missing.
func (l *Log) Append(e *types.AuthoredEntry) error {
	now := time.Now().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		if prev := l.Get(e.ID); prev != nil {
			e.CreatedAt = prev.CreatedAt
		} else {
			e.CreatedAt = now
		}
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeLine(e); err != nil {
		return err
	}
	l.apply(e)
	return nil
}

func (l *Log) writeLine(e *types.AuthoredEntry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// Get returns the latest version of an entry, or nil.
func (l *Log) Get(id string) *types.AuthoredEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[id]
}

// List returns all live entries, optionally filtered by kind, sorted
// by updated_at descending.
func (l *Log) List(kind types.AuthoredKind) []*types.AuthoredEntry {
	l.mu.RLock()
	out := make([]*types.AuthoredEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Len returns the live entry count.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Bundle is the portable export format.
type Bundle struct {
	Version    int                    `json:"version"`
	ExportedAt time.Time              `json:"exported_at"`
	Entries    []*types.AuthoredEntry `json:"entries"`
}

// Export produces a bundle of every live entry.
func (l *Log) Export() *Bundle {
	return &Bundle{
		Version:    1,
		ExportedAt: time.Now().UTC(),
		Entries:    l.List(""),
	}
}

// ImportStats reports one import pass.
type ImportStats struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Import merges a bundle. Entries older than or equal to the local
// version are skipped, so importing your own export is a no-op.
func (l *Log) Import(b *Bundle) (*ImportStats, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil bundle", types.ErrValidation)
	}
	stats := &ImportStats{}
	for _, e := range b.Entries {
		if e == nil || e.ID == "" {
			stats.Skipped++
			continue
		}
		prev := l.Get(e.ID)
		if prev != nil && !e.UpdatedAt.After(prev.UpdatedAt) {
			stats.Skipped++
			continue
		}
		if err := l.Append(e); err != nil {
			return stats, err
		}
		stats.Imported++
	}
	return stats, nil
}
