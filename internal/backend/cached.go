package backend

import (
	"context"

	"batchloader/internal/cache"
	"batchloader/internal/lookup"
	"batchloader/internal/metrics"
)

// Primer is implemented by backends that keep a record cache
type Primer interface {
	Prime(sig lookup.Signature, key any, rec lookup.Record) bool
	Clear(sig lookup.Signature, key any)
}

// Cached is a read-through record cache in front of a Backend. Only keys
// missing from the cache reach the next backend. Keys without a record are
// not cached. Range queries pass through untouched.
type Cached struct {
	next    Backend
	cache   cache.Cache
	metrics *metrics.Metrics
}

// NewCached wraps next with c
func NewCached(next Backend, c cache.Cache, m *metrics.Metrics) *Cached {
	return &Cached{
		next:    next,
		cache:   c,
		metrics: m,
	}
}

// FetchMany implements Backend
func (c *Cached) FetchMany(ctx context.Context, b lookup.Batch) (map[any]lookup.Record, error) {
	sig := batchSignature(b)
	result := make(map[any]lookup.Record, len(b.Keys))
	misses := make([]any, 0, len(b.Keys))

	for _, key := range b.Keys {
		if rec, ok := c.cache.Get(cache.Key(sig, key)); ok {
			result[key] = rec
			continue
		}
		misses = append(misses, key)
	}
	c.metrics.Cache(b.Entity, len(b.Keys)-len(misses), len(misses))

	if len(misses) == 0 {
		return result, nil
	}

	miss := b
	miss.Keys = misses
	fetched, err := c.next.FetchMany(ctx, miss)
	if err != nil {
		return nil, err
	}

	for key, rec := range fetched {
		c.cache.Set(cache.Key(sig, key), rec)
		result[key] = rec
	}
	return result, nil
}

// FindMany implements Backend
func (c *Cached) FindMany(ctx context.Context, q lookup.RangeQuery) ([]lookup.Record, error) {
	return c.next.FindMany(ctx, q)
}

// Prime stores rec for key unless a record is already cached.
// It returns false when the key was already present.
func (c *Cached) Prime(sig lookup.Signature, key any, rec lookup.Record) bool {
	k := cache.Key(sig, key)
	if _, ok := c.cache.Get(k); ok {
		return false
	}
	c.cache.Set(k, rec)
	return true
}

// Clear drops the cached record for key
func (c *Cached) Clear(sig lookup.Signature, key any) {
	c.cache.Remove(cache.Key(sig, key))
}

// Close implements Backend
func (c *Cached) Close() error {
	c.cache.Close()
	return c.next.Close()
}

func batchSignature(b lookup.Batch) lookup.Signature {
	return lookup.Signature{
		Entity:    b.Entity,
		Field:     b.Field,
		Selection: b.Select.String(),
	}
}
