package batcher

import (
	"context"
	"errors"
	"time"

	"batchloader/internal/lookup"
)

// ErrClosed is returned for lookups submitted after Close
var ErrClosed = errors.New("collector is closed")

// Handle is the pending result of one submitted lookup
type Handle struct {
	key    any
	done   chan struct{}
	result lookup.Result
	err    error
}

func newHandle(key any) *Handle {
	return &Handle{
		key:  key,
		done: make(chan struct{}),
	}
}

// failedHandle returns a handle that is already resolved with err
func failedHandle(err error) *Handle {
	h := newHandle(nil)
	h.resolve(lookup.NotFound, err)
	return h
}

// resolve must be called exactly once
func (h *Handle) resolve(result lookup.Result, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// Done returns a channel that is closed once the handle is resolved
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle is resolved or ctx is done. A handle
// abandoned by its caller is still resolved when its group flushes.
func (h *Handle) Wait(ctx context.Context) (lookup.Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return lookup.NotFound, ctx.Err()
	}
}

// group accumulates lookups of one signature for one tick
type group struct {
	sig     lookup.Signature
	entity  string
	field   string
	sel     lookup.Selection
	keys    []any
	seen    map[any]struct{}
	handles []*Handle
	timer   *time.Timer
	created time.Time
}

func newGroup(req lookup.LookupRequest) *group {
	return &group{
		sig:     req.Signature(),
		entity:  req.Entity,
		field:   req.Field(),
		sel:     req.Select,
		seen:    make(map[any]struct{}),
		created: time.Now(),
	}
}

// add registers a handle. Keys keep insertion order and each distinct
// key is fetched once. Returns true if the key was already pending.
func (g *group) add(h *Handle) bool {
	g.handles = append(g.handles, h)
	if _, ok := g.seen[h.key]; ok {
		return true
	}
	g.seen[h.key] = struct{}{}
	g.keys = append(g.keys, h.key)
	return false
}

func (g *group) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *group) batch() lookup.Batch {
	return lookup.Batch{
		Entity: g.entity,
		Field:  g.field,
		Keys:   g.keys,
		Select: g.sel,
	}
}

// resolveAll partitions fetched records back to the waiting handles
func (g *group) resolveAll(records map[any]lookup.Record, err error) {
	for _, h := range g.handles {
		if err != nil {
			h.resolve(lookup.NotFound, err)
			continue
		}
		if rec, ok := records[h.key]; ok {
			h.resolve(lookup.Result{Record: rec, Found: true}, nil)
		} else {
			h.resolve(lookup.NotFound, nil)
		}
	}
}
