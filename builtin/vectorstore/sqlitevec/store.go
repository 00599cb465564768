// Package sqlitevec implements an embedded vector store on sqlite-vec.
// It needs no running server and is the fallback when Qdrant is not
// available, at the cost of slower search on large repos.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

var registerOnce sync.Once

var collectionNameRe = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Store implements provider.VectorStore on a local sqlite-vec database.
type Store struct {
	path string

	mu         sync.RWMutex
	db         *sql.DB
	dimensions int
}

// New creates a new sqlite-vec store. The database file is created
// lazily on Init.
func New(cfg provider.VectorStoreConfig) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: sqlitevec requires a database path", types.ErrInvalidConfig)
	}
	return &Store{path: cfg.Path}, nil
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

// Init opens the database and ensures the collection tables exist.
func (s *Store) Init(ctx context.Context, collections []string, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		registerOnce.Do(sqlite_vec.Auto)
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("%w: %v", types.ErrVectorUnavailable, err)
		}
		db, err := sql.Open("sqlite3", s.path+"?_journal_mode=WAL&_busy_timeout=5000")
		if err != nil {
			return fmt.Errorf("%w: open %s: %v", types.ErrVectorUnavailable, s.path, err)
		}
		db.SetMaxOpenConns(1)
		s.db = db
	}
	s.dimensions = dimensions

	for _, coll := range collections {
		if !collectionNameRe.MatchString(coll) {
			return fmt.Errorf("%w: bad collection name %q", types.ErrValidation, coll)
		}
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS items_%s (
				rowid INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				payload TEXT NOT NULL DEFAULT '{}'
			)`, coll),
			fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_%s
				USING vec0(embedding float[%d] distance_metric=cosine)`, coll, dimensions),
		}
		for _, stmt := range stmts {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create collection %s: %w", coll, err)
			}
		}
	}
	return nil
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("%w: store not initialized", types.ErrVectorUnavailable)
	}
	return s.db, nil
}

// Upsert writes points, replacing any existing point with the same id.
func (s *Store) Upsert(ctx context.Context, collection string, points []*types.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, p := range points {
		payload := map[string]any{"_id": p.ID}
		for k, v := range p.Payload {
			payload[k] = v
		}
		payloadJSON, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", p.ID, err)
		}
		blob, err := sqlite_vec.SerializeFloat32(p.Vector)
		if err != nil {
			return fmt.Errorf("serialize vector for %s: %w", p.ID, err)
		}

		// Replace semantics: clear any previous row for this id.
		if err := s.deleteOne(ctx, tx, collection, p.ID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO items_%s (id, payload) VALUES (?, ?)`, collection),
			p.ID, string(payloadJSON))
		if err != nil {
			return fmt.Errorf("insert item %s: %w", p.ID, err)
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO vec_%s (rowid, embedding) VALUES (?, ?)`, collection),
			rowid, blob); err != nil {
			return fmt.Errorf("insert vector %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Search returns the top-k hits by cosine similarity descending.
// Filters are applied post-scan, so a filtered search over-fetches.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, k int, filter map[string]any) ([]*types.VectorHit, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	fetch := k
	if len(filter) > 0 {
		fetch = k * 4
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT i.id, i.payload, v.distance
		FROM vec_%s v JOIN items_%s i ON i.rowid = v.rowid
		WHERE v.embedding MATCH ? AND v.k = ?
		ORDER BY v.distance`, collection, collection),
		blob, fetch)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	defer rows.Close()

	var hits []*types.VectorHit
	for rows.Next() {
		var id, payloadJSON string
		var distance float64
		if err := rows.Scan(&id, &payloadJSON, &distance); err != nil {
			return nil, err
		}
		payload := map[string]any{}
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			continue
		}
		if !matchFilter(payload, filter) {
			continue
		}
		hits = append(hits, &types.VectorHit{
			ID:      id,
			Score:   float32(1 - distance), // cosine distance -> similarity
			Payload: payload,
		})
		if len(hits) >= k {
			break
		}
	}
	return hits, rows.Err()
}

// Scroll returns points matching a payload filter without scoring.
func (s *Store) Scroll(ctx context.Context, collection string, filter map[string]any, limit int) ([]*types.VectorPoint, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, payload FROM items_%s`, collection))
	if err != nil {
		return nil, fmt.Errorf("scroll %s: %w", collection, err)
	}
	defer rows.Close()

	var points []*types.VectorPoint
	for rows.Next() {
		var id, payloadJSON string
		if err := rows.Scan(&id, &payloadJSON); err != nil {
			return nil, err
		}
		payload := map[string]any{}
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			continue
		}
		if !matchFilter(payload, filter) {
			continue
		}
		points = append(points, &types.VectorPoint{ID: id, Payload: payload})
		if limit > 0 && len(points) >= limit {
			break
		}
	}
	return points, rows.Err()
}

// DeletePoints removes points by id.
func (s *Store) DeletePoints(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range ids {
		if err := s.deleteOne(ctx, tx, collection, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) deleteOne(ctx context.Context, tx *sql.Tx, collection, id string) error {
	var rowid int64
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT rowid FROM items_%s WHERE id = ?`, collection), id).Scan(&rowid)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM vec_%s WHERE rowid = ?`, collection), rowid); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM items_%s WHERE rowid = ?`, collection), rowid)
	return err
}

// Count returns the number of points in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	err = db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM items_%s`, collection)).Scan(&n)
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return 0, nil
	}
	return n, err
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func matchFilter(payload, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := payload[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Ensure Store implements VectorStore.
var _ provider.VectorStore = (*Store)(nil)
