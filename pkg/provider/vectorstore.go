package provider

import (
	"context"

	"github.com/controlVector/cv-git/pkg/types"
)

// VectorStore stores and searches vector points across the per-repo
// collections. Collection names are already repo-scoped by the caller
// (types.CollectionName); implementations never invent their own names.
type VectorStore interface {
	// Name returns the store name (e.g., "qdrant", "sqlitevec").
	Name() string

	// Init connects and ensures every collection exists with the given
	// dimensionality. Idempotent.
	Init(ctx context.Context, collections []string, dimensions int) error

	// Upsert writes points into a collection. Payload "_id" mirrors the
	// point id for scan-recovery.
	Upsert(ctx context.Context, collection string, points []*types.VectorPoint) error

	// Search returns the top-k hits by cosine similarity descending.
	// Filter is an exact match on payload fields; nil means no filter.
	Search(ctx context.Context, collection string, vector []float32, k int, filter map[string]any) ([]*types.VectorHit, error)

	// Scroll returns points matching a payload filter without scoring.
	Scroll(ctx context.Context, collection string, filter map[string]any, limit int) ([]*types.VectorPoint, error)

	// DeletePoints removes points by id.
	DeletePoints(ctx context.Context, collection string, ids []string) error

	// Count returns the number of points in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases resources and closes connections.
	Close() error
}

// VectorStoreConfig contains vector store configuration.
type VectorStoreConfig struct {
	Provider string // "qdrant", "sqlitevec"
	URL      string // Qdrant HTTP endpoint
	Path     string // sqlite-vec database file
}
