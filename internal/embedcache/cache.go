// Package embedcache is the content-addressed embedding cache.
// Entries are keyed by SHA256 of the normalized text plus the model
// name, stored one file per entry under .cv/cache/embeddings/, and
// evicted LRU by total byte size.
package embedcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes bounds the on-disk cache size.
const DefaultMaxBytes = 256 << 20

// Stats are cumulative counters for one cache instance.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
}

// HitRate returns hits / (hits + misses).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	size     int64
	lastUsed time.Time
}

// Cache is a disk-backed LRU embedding cache. Safe for concurrent use.
type Cache struct {
	dir      string
	maxBytes int64

	mu      sync.Mutex
	index   map[string]*entry
	bytes   int64
	hits    int64
	misses  int64
	evicted int64
}

// Open loads the cache index by scanning the cache directory.
// Access times survive restarts via file mtimes.
func Open(dir string, maxBytes int64) (*Cache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{
		dir:      dir,
		maxBytes: maxBytes,
		index:    make(map[string]*entry),
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		key := strings.TrimSuffix(filepath.Base(path), ".json")
		c.index[key] = &entry{size: info.Size(), lastUsed: info.ModTime()}
		c.bytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan cache dir: %w", err)
	}
	return c, nil
}

// Key derives the content-addressed cache key from the model name and
// the normalized text.
func Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(normalize(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// normalize collapses whitespace runs within each line and trims the
// ends, so re-indentation and line-ending churn do not defeat the
// cache. Line breaks survive; they carry meaning in code.
func normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type record struct {
	Model  string    `json:"model"`
	Vector []float32 `json:"vector"`
}

func (c *Cache) path(key string) string {
	// Two-level sharding keeps directory listings manageable.
	return filepath.Join(c.dir, key[:2], key+".json")
}

// Get returns the cached vector for one key, or nil on miss.
func (c *Cache) Get(key string) []float32 {
	c.mu.Lock()
	e, ok := c.index[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return nil
	}
	e.lastUsed = time.Now()
	c.hits++
	c.mu.Unlock()

	data, err := os.ReadFile(c.path(key))
	if err != nil {
		c.drop(key)
		return nil
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		c.drop(key)
		return nil
	}
	os.Chtimes(c.path(key), time.Now(), time.Now())
	return rec.Vector
}

// GetBatch resolves many keys at once. The result slice is aligned
// with keys; missing entries are nil.
func (c *Cache) GetBatch(keys []string) [][]float32 {
	out := make([][]float32, len(keys))
	for i, k := range keys {
		out[i] = c.Get(k)
	}
	return out
}

// Set stores one vector. Oversized writes trigger LRU eviction.
func (c *Cache) Set(key, model string, vector []float32) error {
	data, err := json.Marshal(record{Model: model, Vector: vector})
	if err != nil {
		return err
	}

	p := c.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, p); err != nil {
		return err
	}

	c.mu.Lock()
	if old, ok := c.index[key]; ok {
		c.bytes -= old.size
	}
	c.index[key] = &entry{size: int64(len(data)), lastUsed: time.Now()}
	c.bytes += int64(len(data))
	c.mu.Unlock()

	c.evict()
	return nil
}

// SetBatch stores many vectors keyed in lockstep.
func (c *Cache) SetBatch(keys []string, model string, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return fmt.Errorf("key/vector length mismatch: %d vs %d", len(keys), len(vectors))
	}
	for i, k := range keys {
		if vectors[i] == nil {
			continue
		}
		if err := c.Set(k, model, vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

// evict removes least-recently-used entries until under the byte cap.
func (c *Cache) evict() {
	c.mu.Lock()
	if c.bytes <= c.maxBytes {
		c.mu.Unlock()
		return
	}

	type aged struct {
		key      string
		lastUsed time.Time
	}
	all := make([]aged, 0, len(c.index))
	for k, e := range c.index {
		all = append(all, aged{k, e.lastUsed})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].lastUsed.Before(all[j].lastUsed) })

	var victims []string
	for _, a := range all {
		if c.bytes <= c.maxBytes {
			break
		}
		e := c.index[a.key]
		c.bytes -= e.size
		delete(c.index, a.key)
		c.evicted++
		victims = append(victims, a.key)
	}
	c.mu.Unlock()

	for _, k := range victims {
		os.Remove(c.path(k))
	}
}

// drop removes a corrupt or vanished entry from the index.
func (c *Cache) drop(key string) {
	c.mu.Lock()
	if e, ok := c.index[key]; ok {
		c.bytes -= e.size
		delete(c.index, key)
	}
	c.mu.Unlock()
	os.Remove(c.path(key))
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evicted,
		Entries:   len(c.index),
		Bytes:     c.bytes,
	}
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.RemoveAll(c.dir); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	c.index = make(map[string]*entry)
	c.bytes = 0
	return nil
}
