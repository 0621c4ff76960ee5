// Package memory is an in-process table store, seeded from a JSON file.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"batchloader/internal/lookup"
	"batchloader/internal/schema"
)

// Store keeps records per entity name
type Store struct {
	tables map[string][]lookup.Record
	mu     sync.RWMutex
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		tables: make(map[string][]lookup.Record),
	}
}

// LoadFile creates a store from a seed file of the form
// {"User": [{...}, ...], "Post": [...]}
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tables map[string][]lookup.Record
	if err := dec.Decode(&tables); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	s := NewStore()
	for entity, rows := range tables {
		s.Put(entity, rows...)
	}
	return s, nil
}

// Put appends records to the table of entity
func (s *Store) Put(entity string, records ...lookup.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[entity] = append(s.tables[entity], records...)
}

// Len returns the number of records of entity
func (s *Store) Len(entity string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[entity])
}

// SelectIn implements backend.Store
func (s *Store) SelectIn(ctx context.Context, ent *schema.Entity, field string, keys []any, fields []string) ([]lookup.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	want := make(map[any]bool, len(keys))
	for _, k := range keys {
		key, err := lookup.NormalizeKey(k)
		if err != nil {
			return nil, err
		}
		want[key] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []lookup.Record
	for _, row := range s.tables[ent.Name] {
		key, ok := lookup.KeyOf(row, field)
		if ok && want[key] {
			out = append(out, pick(row, fields))
		}
	}
	return out, nil
}

// SelectWhere implements backend.Store
func (s *Store) SelectWhere(ctx context.Context, ent *schema.Entity, q lookup.RangeQuery, fields []string) ([]lookup.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var matched []lookup.Record
	for _, row := range s.tables[ent.Name] {
		if matches(row, q.Where) {
			matched = append(matched, row)
		}
	}
	s.mu.RUnlock()

	if len(q.OrderBy) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c := compare(matched[i][o.Field], matched[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if q.Skip > 0 {
		if q.Skip >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Skip:]
		}
	}
	if q.Take > 0 && q.Take < len(matched) {
		matched = matched[:q.Take]
	}

	out := make([]lookup.Record, len(matched))
	for i, row := range matched {
		out[i] = pick(row, fields)
	}
	return out, nil
}

// Close implements backend.Store
func (s *Store) Close() error {
	return nil
}

// pick copies the given fields of row
func pick(row lookup.Record, fields []string) lookup.Record {
	out := make(lookup.Record, len(fields))
	for _, f := range fields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

func matches(row lookup.Record, where map[string]any) bool {
	for field, want := range where {
		if compare(row[field], want) != 0 {
			return false
		}
	}
	return true
}

// compare orders two field values. Values that normalize to keys compare
// numerically or lexically; anything else falls back to its printed form.
func compare(a, b any) int {
	ka, errA := lookup.NormalizeKey(a)
	kb, errB := lookup.NormalizeKey(b)
	if errA == nil && errB == nil {
		switch va := ka.(type) {
		case int64:
			if vb, ok := kb.(int64); ok {
				switch {
				case va < vb:
					return -1
				case va > vb:
					return 1
				}
				return 0
			}
		case string:
			if vb, ok := kb.(string); ok {
				switch {
				case va < vb:
					return -1
				case va > vb:
					return 1
				}
				return 0
			}
		}
	}

	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return 0
}
