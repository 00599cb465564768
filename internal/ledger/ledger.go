// Package ledger persists the delta-sync file ledger: one entry per
// tracked path with the content hash observed at the last successful
// sync. The delta computation diffs the working tree against it.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/controlVector/cv-git/pkg/types"
)

// Ledger is the in-memory view of the file ledger. Safe for concurrent
// use; Save rewrites the whole file atomically.
type Ledger struct {
	path string

	mu      sync.RWMutex
	entries map[string]*types.LedgerEntry
}

type fileFormat struct {
	Version   int                           `json:"version"`
	UpdatedAt time.Time                     `json:"updated_at"`
	Files     map[string]*types.LedgerEntry `json:"files"`
}

// Load reads the ledger from disk. A missing file yields an empty
// ledger, which makes the first sync a full sync.
func Load(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		entries: make(map[string]*types.LedgerEntry),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("corrupt ledger at %s: %w", path, err)
	}
	if ff.Files != nil {
		l.entries = ff.Files
	}
	return l, nil
}

// Get returns the entry for a path, or nil.
func (l *Ledger) Get(path string) *types.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[path]
}

// Set records a synced path.
func (l *Ledger) Set(path string, e *types.LedgerEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[path] = e
}

// Delete removes a path.
func (l *Ledger) Delete(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, path)
}

// Paths returns every tracked path, sorted.
func (l *Ledger) Paths() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.entries))
	for p := range l.entries {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tracked paths.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Clear empties the ledger in memory. Used by full resync.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*types.LedgerEntry)
}

// Save rewrites the ledger atomically: write to a temp file in the
// same directory, then rename over the old one. A crashed sync leaves
// the previous ledger intact, and the next run redoes the delta.
func (l *Ledger) Save() error {
	l.mu.RLock()
	ff := fileFormat{
		Version:   1,
		UpdatedAt: time.Now().UTC(),
		Files:     l.entries,
	}
	data, err := json.MarshalIndent(ff, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("%w: %v", types.ErrLedgerWrite, err)
	}
	return nil
}
