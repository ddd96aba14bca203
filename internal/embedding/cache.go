package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheSize bounds the process-wide embedding cache. Entries are
// ~6KB each for 1536-dim vectors, so 4096 entries is ~25MB.
const defaultCacheSize = 4096

// CachedGenerator wraps a Generator with a process-wide LRU cache keyed by
// normalized text. The lru package is safe for concurrent use, so cache
// access from interleaved async pipelines needs no extra locking;
// last-writer-wins on the same key is acceptable.
type CachedGenerator struct {
	inner Generator
	cache *lru.Cache[string, []float32]
}

// NewCachedGenerator wraps gen with an LRU cache of the given size.
// size <= 0 selects the default.
func NewCachedGenerator(gen Generator, size int) (*CachedGenerator, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedGenerator{inner: gen, cache: cache}, nil
}

// Embed returns the cached embedding for text, generating on miss.
func (g *CachedGenerator) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Normalize(text)
	if vec, ok := g.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := g.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	g.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch serves cached entries and generates only the misses.
func (g *CachedGenerator) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := g.cache.Get(Normalize(text)); ok {
			vecs[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		generated, err := g.inner.EmbedBatch(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, vec := range generated {
			vecs[missingIdx[j]] = vec
			g.cache.Add(Normalize(missing[j]), vec)
		}
	}

	return vecs, nil
}

// GetModel returns the wrapped generator's model name.
func (g *CachedGenerator) GetModel() string {
	return g.inner.GetModel()
}

// Compile-time assertion.
var _ Generator = (*CachedGenerator)(nil)
