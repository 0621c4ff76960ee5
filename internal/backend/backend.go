// Package backend defines the storage collaborator of the batch collector
// and builds relation loading on top of simple stores.
package backend

import (
	"context"
	"fmt"
	"sort"

	"batchloader/internal/lookup"
	"batchloader/internal/schema"
)

// Backend is what the collector needs from storage
type Backend interface {
	// FetchMany performs one multi-key point lookup. The result is keyed by
	// normalized key value; keys without a record are absent.
	FetchMany(ctx context.Context, b lookup.Batch) (map[any]lookup.Record, error)

	// FindMany runs a bulk-range query
	FindMany(ctx context.Context, q lookup.RangeQuery) ([]lookup.Record, error)

	// Close releases the underlying connections
	Close() error
}

// Store is the primitive a concrete database provides
type Store interface {
	// SelectIn returns the rows of ent whose field is one of keys
	SelectIn(ctx context.Context, ent *schema.Entity, field string, keys []any, fields []string) ([]lookup.Record, error)

	// SelectWhere returns the rows of ent matching q
	SelectWhere(ctx context.Context, ent *schema.Entity, q lookup.RangeQuery, fields []string) ([]lookup.Record, error)

	Close() error
}

// Relational is a Backend over a Store. Requested relations are loaded with
// one SelectIn per relation for the whole set of parent records.
type Relational struct {
	store    Store
	registry *schema.Registry
}

// New creates a Backend over store
func New(store Store, registry *schema.Registry) *Relational {
	return &Relational{
		store:    store,
		registry: registry,
	}
}

// FetchMany implements Backend
func (r *Relational) FetchMany(ctx context.Context, b lookup.Batch) (map[any]lookup.Record, error) {
	ent, err := r.registry.Entity(b.Entity)
	if err != nil {
		return nil, err
	}

	fields, relations := ent.Split(b.Select)
	columns := r.columns(ent, fields, relations, b.Field)

	rows, err := r.store.SelectIn(ctx, ent, b.Field, b.Keys, columns)
	if err != nil {
		return nil, err
	}

	if err := r.include(ctx, ent, rows, relations); err != nil {
		return nil, err
	}

	result := make(map[any]lookup.Record, len(rows))
	for _, row := range rows {
		key, ok := lookup.KeyOf(row, b.Field)
		if !ok {
			continue
		}
		if _, dup := result[key]; dup {
			continue
		}
		result[key] = project(row, b.Select)
	}
	return result, nil
}

// FindMany implements Backend
func (r *Relational) FindMany(ctx context.Context, q lookup.RangeQuery) ([]lookup.Record, error) {
	ent, err := r.registry.Entity(q.Entity)
	if err != nil {
		return nil, err
	}

	fields, relations := ent.Split(q.Select)
	columns := r.columns(ent, fields, relations, "")

	rows, err := r.store.SelectWhere(ctx, ent, q, columns)
	if err != nil {
		return nil, err
	}

	if err := r.include(ctx, ent, rows, relations); err != nil {
		return nil, err
	}

	out := make([]lookup.Record, len(rows))
	for i, row := range rows {
		out[i] = project(row, q.Select)
	}
	return out, nil
}

// Close implements Backend
func (r *Relational) Close() error {
	return r.store.Close()
}

// columns returns the scalar columns to read: the selected fields plus the
// key field and every field a requested relation references
func (r *Relational) columns(ent *schema.Entity, fields, relations []string, keyField string) []string {
	set := make(map[string]bool, len(fields)+len(relations)+1)
	for _, f := range fields {
		set[f] = true
	}
	if keyField != "" {
		set[keyField] = true
	}
	for _, name := range relations {
		set[ent.Relations[name].References] = true
	}

	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// include attaches each requested relation to rows
func (r *Relational) include(ctx context.Context, ent *schema.Entity, rows []lookup.Record, relations []string) error {
	if len(rows) == 0 {
		return nil
	}

	for _, name := range relations {
		rel := ent.Relations[name]
		target, err := r.registry.Entity(rel.Entity)
		if err != nil {
			return err
		}

		parentKeys := make([]any, 0, len(rows))
		seen := make(map[any]bool, len(rows))
		for _, row := range rows {
			key, ok := lookup.KeyOf(row, rel.References)
			if !ok || seen[key] {
				continue
			}
			seen[key] = true
			parentKeys = append(parentKeys, key)
		}

		children := map[any][]lookup.Record{}
		if len(parentKeys) > 0 {
			related, err := r.store.SelectIn(ctx, target, rel.Field, parentKeys, target.Fields)
			if err != nil {
				return fmt.Errorf("failed to load relation '%s': %w", name, err)
			}
			for _, child := range related {
				key, ok := lookup.KeyOf(child, rel.Field)
				if !ok {
					continue
				}
				children[key] = append(children[key], child)
			}
		}

		for _, row := range rows {
			key, _ := lookup.KeyOf(row, rel.References)
			matched := children[key]
			if rel.List {
				if matched == nil {
					matched = []lookup.Record{}
				}
				row[name] = matched
			} else if len(matched) > 0 {
				row[name] = matched[0]
			} else {
				row[name] = nil
			}
		}
	}
	return nil
}

// project keeps only the selected fields and relations of row
func project(row lookup.Record, sel lookup.Selection) lookup.Record {
	out := make(lookup.Record, len(sel))
	for _, item := range sel {
		if v, ok := row[item]; ok {
			out[item] = v
		}
	}
	return out
}
