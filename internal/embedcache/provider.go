package embedcache

import (
	"context"
	"fmt"
	"sync"

	"github.com/controlVector/cv-git/pkg/provider"
)

// CachedProvider wraps an EmbeddingProvider with the cache. Concurrent
// requests for the same content collapse into one upstream call.
type CachedProvider struct {
	inner provider.EmbeddingProvider
	cache *Cache

	mu       sync.Mutex
	inFlight map[string]*flight
}

// flight is one embedding in progress. Waiters block on done and read
// vec/err afterwards.
type flight struct {
	done chan struct{}
	vec  []float32
	err  error
}

// Wrap returns a caching view of the provider.
func Wrap(inner provider.EmbeddingProvider, cache *Cache) *CachedProvider {
	return &CachedProvider{
		inner:    inner,
		cache:    cache,
		inFlight: make(map[string]*flight),
	}
}

// Name returns the inner provider name with a cache marker.
func (p *CachedProvider) Name() string {
	return p.inner.Name() + "+cache"
}

// Model returns the inner model identifier.
func (p *CachedProvider) Model() string {
	return p.inner.Model()
}

// Dimensions returns the inner embedding dimensions.
func (p *CachedProvider) Dimensions() int {
	return p.inner.Dimensions()
}

// MaxBatchSize returns the inner batch size.
func (p *CachedProvider) MaxBatchSize() int {
	return p.inner.MaxBatchSize()
}

// Available delegates to the inner provider.
func (p *CachedProvider) Available(ctx context.Context) error {
	return p.inner.Available(ctx)
}

// Close closes the inner provider.
func (p *CachedProvider) Close() error {
	return p.inner.Close()
}

// Stats exposes the underlying cache counters.
func (p *CachedProvider) Stats() Stats {
	return p.cache.Stats()
}

// Embed resolves cached vectors first and embeds only the misses,
// preserving input order. In-flight dedup is per cache key: two
// workers whose miss batches overlap embed each shared text once,
// and each call still batches the texts it owns into one upstream
// request.
func (p *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	model := p.inner.Model()

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = Key(model, t)
	}

	out := p.cache.GetBatch(keys)

	var missIdx []int
	for i, v := range out {
		if v == nil {
			missIdx = append(missIdx, i)
		}
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	// Claim a flight per missing key. A key another worker (or an
	// earlier duplicate in this batch) already claimed is joined, not
	// re-embedded.
	var ownIdx []int
	var ownFlights []*flight
	var joinIdx []int
	var joinFlights []*flight

	p.mu.Lock()
	for _, i := range missIdx {
		if f, ok := p.inFlight[keys[i]]; ok {
			joinIdx = append(joinIdx, i)
			joinFlights = append(joinFlights, f)
			continue
		}
		f := &flight{done: make(chan struct{})}
		p.inFlight[keys[i]] = f
		ownIdx = append(ownIdx, i)
		ownFlights = append(ownFlights, f)
	}
	p.mu.Unlock()

	if len(ownIdx) > 0 {
		ownTexts := make([]string, len(ownIdx))
		ownKeys := make([]string, len(ownIdx))
		for j, i := range ownIdx {
			ownTexts[j] = texts[i]
			ownKeys[j] = keys[i]
		}

		vectors, err := p.inner.Embed(ctx, ownTexts)
		if err == nil && len(vectors) != len(ownTexts) {
			err = fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(ownTexts))
		}
		if err == nil {
			err = p.cache.SetBatch(ownKeys, model, vectors)
		}

		p.mu.Lock()
		for j, f := range ownFlights {
			if err != nil {
				f.err = err
			} else {
				f.vec = vectors[j]
			}
			close(f.done)
			delete(p.inFlight, ownKeys[j])
		}
		p.mu.Unlock()

		if err != nil {
			return nil, err
		}
		for j, i := range ownIdx {
			out[i] = vectors[j]
		}
	}

	for j, f := range joinFlights {
		select {
		case <-f.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if f.err != nil {
			return nil, f.err
		}
		out[joinIdx[j]] = f.vec
	}
	return out, nil
}

// Ensure CachedProvider implements EmbeddingProvider.
var _ provider.EmbeddingProvider = (*CachedProvider)(nil)
