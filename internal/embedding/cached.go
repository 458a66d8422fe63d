package embedding

import (
	"context"
	"fmt"
	"log/slog"
)

// CachedEmbedder wraps an Embedder with the query cache. A cache miss
// triggers the upstream call; the result is stored before being returned so
// a repeated query never pays the embedding cost twice within the TTL.
type CachedEmbedder struct {
	embedder Embedder
	cache    *Cache
	logger   *slog.Logger
}

// NewCachedEmbedder creates a caching wrapper around embedder.
func NewCachedEmbedder(embedder Embedder, cache *Cache, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{
		embedder: embedder,
		cache:    cache,
		logger:   logger,
	}
}

// Embed returns the cached vector for text when available, otherwise calls
// the upstream embedder and caches the result.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("upstream embed: %w", err)
	}

	c.cache.Put(text, vec)
	c.logger.Debug("cached query embedding", "text_length", len(text), "dimension", len(vec))
	return vec, nil
}

// CacheStats exposes the underlying cache counters.
func (c *CachedEmbedder) CacheStats() Stats {
	return c.cache.Stats()
}
