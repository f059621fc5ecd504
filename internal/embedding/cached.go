package embedding

import (
	"context"
	"fmt"
)

// CachedEmbedder serves repeated texts from an LRU cache and sends only the
// misses of a batch to the wrapped embedder, in a single call.
type CachedEmbedder struct {
	inner Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder wraps inner with a cache holding up to size embeddings.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: NewEmbeddingCache(size)}
}

// Embed returns the embedding for text.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch returns embeddings for texts in order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	missingAt := make(map[string][]int)
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		if _, seen := missingAt[t]; !seen {
			missing = append(missing, t)
		}
		missingAt[t] = append(missingAt[t], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	embs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(embs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(embs), len(missing))
	}
	for j, t := range missing {
		c.cache.Set(t, embs[j])
		for _, i := range missingAt[t] {
			out[i] = embs[j]
		}
	}
	return out, nil
}

// Dimensions returns the wrapped embedder's dimension.
func (c *CachedEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}
