// Package qdrant implements the vector store backed by a Qdrant server
// over its HTTP API. This is the default production store.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// Default values
const (
	DefaultURL     = "http://localhost:6333"
	DefaultTimeout = 60 * time.Second
)

// pointNamespace derives deterministic UUIDs from string point ids,
// since Qdrant only accepts integer or UUID point ids. The original
// string id always travels in payload "_id".
var pointNamespace = uuid.MustParse("a2f1c0de-7b4e-4f7a-9c3d-5e8b1a6d2c90")

// Store implements provider.VectorStore against Qdrant.
type Store struct {
	url    string
	client *http.Client
}

// New creates a new Qdrant store.
func New(cfg provider.VectorStoreConfig) (*Store, error) {
	url := strings.TrimSuffix(cfg.URL, "/")
	if url == "" {
		url = DefaultURL
	}
	return &Store{
		url:    url,
		client: &http.Client{Timeout: DefaultTimeout},
	}, nil
}

// Name returns the store name.
func (s *Store) Name() string {
	return "qdrant"
}

// Init ensures every collection exists with the given dimensionality.
func (s *Store) Init(ctx context.Context, collections []string, dimensions int) error {
	for _, coll := range collections {
		exists, err := s.collectionExists(ctx, coll)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimensions,
				"distance": "Cosine",
			},
		}
		if _, err := s.do(ctx, http.MethodPut, "/collections/"+coll, body); err != nil {
			return fmt.Errorf("create collection %s: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) collectionExists(ctx context.Context, coll string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/collections/"+coll, nil)
	if err != nil {
		return false, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrVectorUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// PointID derives the Qdrant UUID for a string point id.
func PointID(id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// Upsert writes points into a collection.
func (s *Store) Upsert(ctx context.Context, collection string, points []*types.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}
	qp := make([]map[string]any, 0, len(points))
	for _, p := range points {
		payload := map[string]any{"_id": p.ID}
		for k, v := range p.Payload {
			payload[k] = v
		}
		qp = append(qp, map[string]any{
			"id":      PointID(p.ID),
			"vector":  p.Vector,
			"payload": payload,
		})
	}
	_, err := s.do(ctx, http.MethodPut, "/collections/"+collection+"/points?wait=true", map[string]any{"points": qp})
	return err
}

// Search returns the top-k hits by cosine similarity descending.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, k int, filter map[string]any) ([]*types.VectorHit, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		body["filter"] = f
	}

	raw, err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/search", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode search result: %w", err)
	}

	hits := make([]*types.VectorHit, 0, len(result.Result))
	for _, r := range result.Result {
		hits = append(hits, &types.VectorHit{
			ID:      payloadID(r.Payload),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return hits, nil
}

// Scroll returns points matching a payload filter without scoring.
func (s *Store) Scroll(ctx context.Context, collection string, filter map[string]any, limit int) ([]*types.VectorPoint, error) {
	body := map[string]any{
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if f := buildFilter(filter); f != nil {
		body["filter"] = f
	}

	raw, err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/scroll", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Result struct {
			Points []struct {
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode scroll result: %w", err)
	}

	points := make([]*types.VectorPoint, 0, len(result.Result.Points))
	for _, p := range result.Result.Points {
		points = append(points, &types.VectorPoint{
			ID:      payloadID(p.Payload),
			Payload: p.Payload,
		})
	}
	return points, nil
}

// DeletePoints removes points by their string ids.
func (s *Store) DeletePoints(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	qids := make([]string, 0, len(ids))
	for _, id := range ids {
		qids = append(qids, PointID(id))
	}
	_, err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/delete?wait=true", map[string]any{"points": qids})
	return err
}

// Count returns the number of points in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	raw, err := s.do(ctx, http.MethodPost, "/collections/"+collection+"/points/count", map[string]any{"exact": true})
	if err != nil {
		return 0, err
	}
	var result struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("decode count result: %w", err)
	}
	return result.Result.Count, nil
}

// Close releases resources.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// buildFilter converts an exact-match map into Qdrant filter syntax.
func buildFilter(filter map[string]any) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filter))
	for k, v := range filter {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": v},
		})
	}
	return map[string]any{"must": must}
}

func payloadID(payload map[string]any) string {
	if id, ok := payload["_id"].(string); ok {
		return id
	}
	return ""
}

func (s *Store) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant: %v", types.ErrVectorUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("qdrant %s %s returned %d: %s", method, path, resp.StatusCode, truncate(string(data), 300))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure Store implements VectorStore.
var _ provider.VectorStore = (*Store)(nil)
