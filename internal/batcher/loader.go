package batcher

import (
	"context"

	"batchloader/internal/backend"
	"batchloader/internal/lookup"
)

// Loader is a dataloader bound to one entity, unique field and selection.
// A missing key yields a nil record and a nil error.
type Loader struct {
	c      *Collector
	entity string
	field  string
	sel    lookup.Selection
}

// NewLoader creates a loader on top of a collector
func NewLoader(c *Collector, entity, field string, sel lookup.Selection) *Loader {
	return &Loader{
		c:      c,
		entity: entity,
		field:  field,
		sel:    sel,
	}
}

func (l *Loader) request(key any) lookup.LookupRequest {
	return lookup.LookupRequest{
		Entity: l.entity,
		Where:  map[string]any{l.field: key},
		Select: l.sel,
	}
}

// Prime stores rec as the record for key in the datasource cache, so a
// later load of key skips the backend. It returns false when the key is
// already cached, the key is invalid or the datasource has no cache.
func (l *Loader) Prime(key any, rec lookup.Record) bool {
	p, ok := l.c.backend.(backend.Primer)
	if !ok {
		return false
	}
	sig, k, err := l.cacheKey(key)
	if err != nil {
		return false
	}
	return p.Prime(sig, k, rec)
}

// Clear drops key from the datasource cache
func (l *Loader) Clear(key any) {
	p, ok := l.c.backend.(backend.Primer)
	if !ok {
		return
	}
	if sig, k, err := l.cacheKey(key); err == nil {
		p.Clear(sig, k)
	}
}

// cacheKey resolves key the same way Submit does, so primed entries
// match the batches the collector sends
func (l *Loader) cacheKey(key any) (lookup.Signature, any, error) {
	req, h, err := l.c.prepare(l.request(key))
	if err != nil {
		return lookup.Signature{}, nil, err
	}
	return req.Signature(), h.key, nil
}

// Load fetches a record by key, batching with other loads of the same tick
func (l *Loader) Load(ctx context.Context, key any) (lookup.Record, error) {
	return l.LoadThunk(ctx, key)()
}

// LoadThunk submits the lookup now and returns a function that waits for it
func (l *Loader) LoadThunk(ctx context.Context, key any) func() (lookup.Record, error) {
	h := l.c.Submit(ctx, l.request(key))
	return func() (lookup.Record, error) {
		res, err := h.Wait(ctx)
		return res.Record, err
	}
}

// LoadAll fetches many keys in one consolidated fetch. Records and
// errors are returned in key order.
func (l *Loader) LoadAll(ctx context.Context, keys []any) ([]lookup.Record, []error) {
	return l.LoadAllThunk(ctx, keys)()
}

// LoadAllThunk submits all keys in their own tick and returns a function
// that waits for the results
func (l *Loader) LoadAllThunk(ctx context.Context, keys []any) func() ([]lookup.Record, []error) {
	tick := l.c.Tick()
	handles := make([]*Handle, len(keys))
	for i, key := range keys {
		handles[i] = tick.Submit(ctx, l.request(key))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		tick.Close(ctx)
	}()

	return func() ([]lookup.Record, []error) {
		<-done
		records := make([]lookup.Record, len(keys))
		errs := make([]error, len(keys))
		for i, h := range handles {
			res, err := h.Wait(ctx)
			records[i] = res.Record
			errs[i] = err
		}
		return records, errs
	}
}
