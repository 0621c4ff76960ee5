// Package lookup defines the request and result types shared by the batch
// collector, the storage backends and the JSON-RPC surface.
package lookup

import (
	"fmt"
	"sort"
	"strings"
)

// Record is a single entity as returned by a backend
type Record map[string]any

// Selection is the set of fields and relations requested for an entity
type Selection []string

// Normalize returns a sorted copy of the selection without duplicates
func (s Selection) Normalize() Selection {
	if len(s) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(s))
	out := make(Selection, 0, len(s))
	for _, item := range s {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// String returns the canonical form used in signatures
func (s Selection) String() string {
	return strings.Join(s.Normalize(), ",")
}

// Has reports whether the selection contains name
func (s Selection) Has(name string) bool {
	for _, item := range s {
		if item == name {
			return true
		}
	}
	return false
}

// LookupRequest is a single point lookup: one entity by one unique key
type LookupRequest struct {
	Entity string         `json:"model"`
	Where  map[string]any `json:"where"`
	Select Selection      `json:"select,omitempty"`
}

// Validate checks the request shape. It does not consult the schema.
func (r LookupRequest) Validate() error {
	if r.Entity == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidLookup)
	}
	if len(r.Where) != 1 {
		return fmt.Errorf("%w: where must contain exactly one unique field, got %d", ErrInvalidLookup, len(r.Where))
	}
	field, value := r.predicate()
	if field == "" {
		return fmt.Errorf("%w: where field name is empty", ErrInvalidLookup)
	}
	if _, err := NormalizeKey(value); err != nil {
		return fmt.Errorf("%w: where.%s: %v", ErrInvalidLookup, field, err)
	}
	return nil
}

// Field returns the name of the unique field in the predicate
func (r LookupRequest) Field() string {
	field, _ := r.predicate()
	return field
}

// Key returns the normalized key value of the predicate
func (r LookupRequest) Key() (any, error) {
	_, value := r.predicate()
	return NormalizeKey(value)
}

// Signature returns the batching signature of the request
func (r LookupRequest) Signature() Signature {
	return Signature{
		Entity:    r.Entity,
		Field:     r.Field(),
		Selection: r.Select.String(),
	}
}

func (r LookupRequest) predicate() (string, any) {
	for field, value := range r.Where {
		return field, value
	}
	return "", nil
}

// Signature identifies lookups that may share one consolidated fetch.
// The literal key value is not part of it.
type Signature struct {
	Entity    string
	Field     string
	Selection string
}

// String returns a printable form of the signature
func (s Signature) String() string {
	return s.Entity + "." + s.Field + "[" + s.Selection + "]"
}

// Batch is a consolidated multi-key point lookup
type Batch struct {
	Entity string
	Field  string
	Keys   []any
	Select Selection
}

// Order is one ORDER BY term of a range query
type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// RangeQuery is a bulk-range fetch. Range queries are never batched.
type RangeQuery struct {
	Entity  string         `json:"model"`
	Where   map[string]any `json:"where,omitempty"`
	Select  Selection      `json:"select,omitempty"`
	OrderBy []Order        `json:"orderBy,omitempty"`
	Take    int            `json:"take,omitempty"`
	Skip    int            `json:"skip,omitempty"`
}

// Validate checks the range query shape
func (q RangeQuery) Validate() error {
	if q.Entity == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidLookup)
	}
	if q.Take < 0 || q.Skip < 0 {
		return fmt.Errorf("%w: take and skip must be non-negative", ErrInvalidLookup)
	}
	for field, value := range q.Where {
		if _, err := NormalizeKey(value); err != nil {
			return fmt.Errorf("%w: where.%s: %v", ErrInvalidLookup, field, err)
		}
	}
	return nil
}

// Result is the outcome of one lookup. Found is false for a key the
// backend had no record for, which is not an error.
type Result struct {
	Record Record
	Found  bool
}

// NotFound is the result for a key with no matching record
var NotFound = Result{}
