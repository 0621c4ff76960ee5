package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"batchloader/internal/backend"
	"batchloader/internal/config"
	"batchloader/internal/lookup"
	"batchloader/internal/metrics"
	"batchloader/internal/schema"
)

// Collector groups point lookups by signature and executes one
// consolidated fetch per group
type Collector struct {
	name     string
	config   *config.BatchingConfig
	backend  backend.Backend
	registry *schema.Registry
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	pending  map[lookup.Signature]*group
	closed   bool
	inflight sync.WaitGroup
	mu       sync.Mutex
}

// NewCollector creates a collector for one datasource. A nil registry
// skips schema checks and only validates the request shape.
func NewCollector(name string, cfg *config.BatchingConfig, b backend.Backend, registry *schema.Registry, logger zerolog.Logger) *Collector {
	if cfg == nil {
		cfg = &config.BatchingConfig{Enabled: config.DefaultBatchingEnabled}
	}

	return &Collector{
		name:     name,
		config:   cfg,
		backend:  b,
		registry: registry,
		pending:  make(map[lookup.Signature]*group),
		logger:   logger.With().Str("component", "batcher").Str("datasource", name).Logger(),
	}
}

// SetMetrics sets the metrics sink
func (c *Collector) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// Name returns the datasource name
func (c *Collector) Name() string {
	return c.name
}

// Submit registers a lookup and returns its unresolved handle. Invalid
// lookups return an already failed handle and never reach the backend.
func (c *Collector) Submit(ctx context.Context, req lookup.LookupRequest) *Handle {
	req, h, err := c.prepare(req)
	if err != nil {
		return failedHandle(err)
	}

	if !c.config.Enabled {
		return c.submitSingle(req, h)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return failedHandle(ErrClosed)
	}

	sig := req.Signature()
	g := c.pending[sig]
	if g == nil {
		g = newGroup(req)
		c.pending[sig] = g
		if window := c.config.GetWindowDuration(); window > 0 {
			g.timer = time.AfterFunc(window, func() {
				c.flushGroup(g)
			})
		}
	}

	duplicate := g.add(h)
	full := c.config.MaxBatchSize > 0 && len(g.keys) >= c.config.MaxBatchSize
	if full {
		delete(c.pending, sig)
		g.stopTimer()
		c.inflight.Add(1)
	}
	c.mu.Unlock()

	c.metrics.Submitted(c.name, req.Entity, duplicate)

	// Flush if max size reached
	if full {
		c.dispatchAsync(g)
	}

	return h
}

// Load submits a lookup and waits for its result. With batching enabled
// and a zero window the caller must arrange a Flush.
func (c *Collector) Load(ctx context.Context, req lookup.LookupRequest) (lookup.Result, error) {
	return c.Submit(ctx, req).Wait(ctx)
}

// FindMany runs a bulk-range query. Range queries are never batched.
func (c *Collector) FindMany(ctx context.Context, q lookup.RangeQuery) ([]lookup.Record, error) {
	var err error
	if c.registry != nil {
		q, err = c.registry.ResolveRange(q)
	} else {
		err = q.Validate()
	}
	if err != nil {
		return nil, err
	}

	c.metrics.Range(c.name, q.Entity)
	c.logger.Debug().
		Str("model", q.Entity).
		Int("take", q.Take).
		Int("skip", q.Skip).
		Msg("executing range query")

	fetchCtx, cancel := c.fetchContext(ctx)
	defer cancel()
	return c.backend.FindMany(fetchCtx, q)
}

// Flush drains every pending group. Groups flush concurrently and each
// makes exactly one backend call. Returns once every handle is resolved.
func (c *Collector) Flush(ctx context.Context) error {
	return c.dispatchAll(ctx, c.takeAll())
}

func (c *Collector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Pending returns the number of groups waiting for a flush
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close stops all timers, flushes pending groups and waits for fetches
// already in flight, bounded by ctx. Lookups submitted afterwards fail
// with ErrClosed.
func (c *Collector) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	err := c.dispatchAll(ctx, c.takeAll())
	if waitErr := c.waitInflight(ctx); err == nil {
		err = waitErr
	}
	c.logger.Info().Msg("collector closed")
	return err
}

// waitInflight blocks until background fetches finish or ctx is done
func (c *Collector) waitInflight(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Collector) prepare(req lookup.LookupRequest) (lookup.LookupRequest, *Handle, error) {
	var err error
	if c.registry != nil {
		req, err = c.registry.Resolve(req)
	} else {
		err = req.Validate()
		req.Select = req.Select.Normalize()
	}
	if err != nil {
		return req, nil, err
	}

	key, err := req.Key()
	if err != nil {
		return req, nil, err
	}
	return req, newHandle(key), nil
}

// submitSingle executes a lookup on its own, one fetch per lookup
func (c *Collector) submitSingle(req lookup.LookupRequest, h *Handle) *Handle {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return failedHandle(ErrClosed)
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	g := newGroup(req)
	g.add(h)
	c.metrics.Submitted(c.name, req.Entity, false)

	c.dispatchAsync(g)
	return h
}

// flushGroup is the window timer callback. The group may already have
// been taken by Flush or by reaching the max size.
func (c *Collector) flushGroup(g *group) {
	c.mu.Lock()
	if c.pending[g.sig] != g {
		c.mu.Unlock()
		return
	}
	delete(c.pending, g.sig)
	g.timer = nil
	c.inflight.Add(1)
	c.mu.Unlock()

	defer c.inflight.Done()
	c.dispatch(context.Background(), g)
}

// dispatchAsync fetches g in the background. The caller has already
// counted it in c.inflight while holding c.mu.
func (c *Collector) dispatchAsync(g *group) {
	go func() {
		defer c.inflight.Done()
		c.dispatch(context.Background(), g)
	}()
}

// takeAll removes every pending group so later submits start new ones
func (c *Collector) takeAll() []*group {
	c.mu.Lock()
	defer c.mu.Unlock()

	groups := make([]*group, 0, len(c.pending))
	for sig, g := range c.pending {
		g.stopTimer()
		groups = append(groups, g)
		delete(c.pending, sig)
	}
	return groups
}

func (c *Collector) dispatchAll(ctx context.Context, groups []*group) error {
	var eg errgroup.Group
	for _, g := range groups {
		g := g
		eg.Go(func() error {
			c.dispatch(ctx, g)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// dispatch executes one consolidated fetch and resolves every handle of
// the group. A failed fetch fails every handle with the same error.
func (c *Collector) dispatch(ctx context.Context, g *group) {
	if len(g.handles) == 0 {
		return
	}

	batchID := uuid.NewString()
	b := g.batch()

	c.logger.Debug().
		Str("batch", batchID).
		Str("signature", g.sig.String()).
		Int("lookups", len(g.handles)).
		Int("keys", len(b.Keys)).
		Msg("executing batch")

	fetchCtx, cancel := c.fetchContext(ctx)
	defer cancel()

	start := time.Now()
	records, err := c.backend.FetchMany(fetchCtx, b)
	c.metrics.Batch(c.name, g.entity, len(b.Keys), err)

	if err != nil {
		fetchErr := &lookup.FetchError{
			Signature: g.sig,
			BatchID:   batchID,
			Keys:      len(b.Keys),
			Err:       err,
		}
		c.logger.Warn().
			Err(err).
			Str("batch", batchID).
			Str("signature", g.sig.String()).
			Int("lookups", len(g.handles)).
			Msg("batch fetch failed")
		g.resolveAll(nil, fetchErr)
		return
	}

	g.resolveAll(records, nil)

	c.logger.Debug().
		Str("batch", batchID).
		Int("found", len(records)).
		Dur("duration", time.Since(start)).
		Dur("waited", start.Sub(g.created)).
		Msg("batch completed")
}

func (c *Collector) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := c.config.GetFetchTimeoutDuration(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}
