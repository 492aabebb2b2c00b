package module

import (
	"context"
	"time"

	"github.com/zjrosen/socon/internal/cachemanager"
	"github.com/zjrosen/socon/internal/log"
)

// Cached memoizes successful imports of an underlying importer for a TTL.
// Failed imports are never cached so a fixed module is picked up on the next
// attempt. Submodules is not cached.
type Cached struct {
	inner Importer
	ttl   time.Duration
	cache *cachemanager.ReadThroughCache[string, Module, string]
}

var _ Importer = (*Cached)(nil)

// NewCached wraps inner. A zero ttl uses cachemanager.DefaultExpiration; a
// negative ttl disables caching.
func NewCached(inner Importer, ttl time.Duration) *Cached {
	if ttl == 0 {
		ttl = cachemanager.DefaultExpiration
	}
	c := &Cached{inner: inner, ttl: ttl}
	store := cachemanager.NewInMemoryCacheManager[string, Module]("modules", ttl, cachemanager.DefaultCleanupInterval)
	c.cache = cachemanager.NewReadThroughCache[string, Module, string](store, c.load, ttl < 0)
	return c
}

func (c *Cached) load(ctx context.Context, path string) (Module, error) {
	log.Debug(log.CatModule, "importing", "path", path)
	return c.inner.Import(ctx, path)
}

// Import returns the cached module for path, importing it on a miss.
func (c *Cached) Import(ctx context.Context, path string) (Module, error) {
	return c.cache.Get(ctx, path, path, c.ttl)
}

// Submodules delegates to the wrapped importer.
func (c *Cached) Submodules(ctx context.Context, path string) ([]Entry, error) {
	return c.inner.Submodules(ctx, path)
}

// Invalidate drops every cached module, e.g. after source files changed.
func (c *Cached) Invalidate(ctx context.Context) error {
	n, err := c.cache.Invalidate(ctx)
	if err != nil {
		return err
	}
	log.Debug(log.CatCache, "module cache invalidated", "dropped", n)
	return nil
}
