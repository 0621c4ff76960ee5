package batcher

import (
	"context"
	"sync"

	"batchloader/internal/lookup"
)

// Tick is an explicit batching scope. Lookups submitted to a tick are
// grouped among themselves and flushed together by Close, independent
// of the collection window.
type Tick struct {
	c       *Collector
	pending map[lookup.Signature]*group
	order   []*group
	closed  bool
	mu      sync.Mutex
}

// Tick opens a new batching scope on the collector
func (c *Collector) Tick() *Tick {
	return &Tick{
		c:       c,
		pending: make(map[lookup.Signature]*group),
	}
}

// Submit registers a lookup in the tick. The handle resolves after Close.
// With batching disabled the lookup is executed on its own right away.
func (t *Tick) Submit(ctx context.Context, req lookup.LookupRequest) *Handle {
	if !t.c.config.Enabled {
		return t.c.Submit(ctx, req)
	}

	req, h, err := t.c.prepare(req)
	if err != nil {
		return failedHandle(err)
	}
	if t.c.isClosed() {
		return failedHandle(ErrClosed)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return failedHandle(ErrClosed)
	}

	sig := req.Signature()
	g := t.pending[sig]
	if g == nil {
		g = newGroup(req)
		t.pending[sig] = g
		t.order = append(t.order, g)
	}
	duplicate := g.add(h)
	t.mu.Unlock()

	t.c.metrics.Submitted(t.c.name, req.Entity, duplicate)
	return h
}

// Close ends the tick: one fetch per signature, all signatures in
// parallel. Returns once every handle of the tick is resolved. If the
// collector was closed in the meantime every handle fails with ErrClosed.
func (t *Tick) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	groups := t.order
	t.order = nil
	t.pending = nil
	t.mu.Unlock()

	if len(groups) == 0 {
		return nil
	}

	c := t.c
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		for _, g := range groups {
			g.resolveAll(nil, ErrClosed)
		}
		return ErrClosed
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	return c.dispatchAll(ctx, c.split(groups))
}

// split breaks groups larger than the max batch size into consecutive
// chunks of keys, each fetched on its own
func (c *Collector) split(groups []*group) []*group {
	limit := c.config.MaxBatchSize
	if limit <= 0 {
		return groups
	}

	out := make([]*group, 0, len(groups))
	for _, g := range groups {
		if len(g.keys) <= limit {
			out = append(out, g)
			continue
		}

		owner := make(map[any]*group, len(g.keys))
		for i := 0; i < len(g.keys); i += limit {
			end := i + limit
			if end > len(g.keys) {
				end = len(g.keys)
			}
			chunk := &group{
				sig:     g.sig,
				entity:  g.entity,
				field:   g.field,
				sel:     g.sel,
				keys:    g.keys[i:end],
				created: g.created,
			}
			for _, key := range chunk.keys {
				owner[key] = chunk
			}
			out = append(out, chunk)
		}
		for _, h := range g.handles {
			chunk := owner[h.key]
			chunk.handles = append(chunk.handles, h)
		}
	}
	return out
}
