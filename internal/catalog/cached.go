package catalog

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/vk/workgraph/internal/ctxlog"
	"github.com/vk/workgraph/internal/descriptor"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// Cached is a read-through cache in front of another Catalog. Misses are not
// cached, so a component registered later is found on the next lookup.
type Cached struct {
	next  Catalog
	cache *gocache.Cache
}

var _ Catalog = (*Cached)(nil)

// NewCached wraps next. A non-positive ttl uses DefaultExpiration.
func NewCached(next Catalog, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return &Cached{next: next, cache: gocache.New(ttl, DefaultCleanupInterval)}
}

// FindComponent implements Catalog.
func (c *Cached) FindComponent(ctx context.Context, id string, typ descriptor.ComponentType) (*descriptor.Component, error) {
	key := string(typ) + "/" + id
	if v, found := c.cache.Get(key); found {
		if comp, ok := v.(*descriptor.Component); ok {
			return comp.Clone(), nil
		}
		ctxlog.FromContext(ctx).Error("wrong type assertion when getting component from cache", "key", key)
	}

	comp, err := c.next.FindComponent(ctx, id, typ)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, comp.Clone(), gocache.DefaultExpiration)
	return comp, nil
}

// IsCompatible implements Catalog by delegation.
func (c *Cached) IsCompatible(t descriptor.Target, s descriptor.Source) bool {
	return c.next.IsCompatible(t, s)
}

// Invalidate drops every cached component.
func (c *Cached) Invalidate() {
	c.cache.Flush()
}

// Len reports how many lookups are cached.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
