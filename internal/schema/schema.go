// Package schema holds the entity definitions of a datasource and checks
// lookups against them.
package schema

import (
	"fmt"
	"regexp"
	"sort"

	"batchloader/internal/lookup"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Relation links an entity to records of another entity
type Relation struct {
	Entity     string // target entity
	Field      string // field on the target holding the reference
	References string // local field being referenced
	List       bool   // one-to-many when true, otherwise at most one record
}

// Entity describes one model of a datasource
type Entity struct {
	Name      string
	Table     string
	Fields    []string
	Unique    []string
	Relations map[string]Relation

	fields map[string]bool
	unique map[string]bool
}

// HasField reports whether name is a scalar field of the entity
func (e *Entity) HasField(name string) bool {
	return e.fields[name]
}

// IsUnique reports whether name is a unique field of the entity
func (e *Entity) IsUnique(name string) bool {
	return e.unique[name]
}

// Split separates a selection into scalar fields and relation names
func (e *Entity) Split(sel lookup.Selection) (fields []string, relations []string) {
	for _, item := range sel {
		if _, ok := e.Relations[item]; ok {
			relations = append(relations, item)
		} else {
			fields = append(fields, item)
		}
	}
	return fields, relations
}

// Registry is a validated set of entities
type Registry struct {
	entities map[string]*Entity
}

// NewRegistry validates the entity definitions and builds a registry
func NewRegistry(entities []Entity) (*Registry, error) {
	r := &Registry{entities: make(map[string]*Entity, len(entities))}

	for i := range entities {
		e := entities[i]
		if !identPattern.MatchString(e.Name) {
			return nil, fmt.Errorf("entity[%d]: invalid name '%s'", i, e.Name)
		}
		if _, dup := r.entities[e.Name]; dup {
			return nil, fmt.Errorf("entity[%d]: duplicate name '%s'", i, e.Name)
		}
		if e.Table == "" {
			e.Table = e.Name
		}
		if !identPattern.MatchString(e.Table) {
			return nil, fmt.Errorf("entity '%s': invalid table '%s'", e.Name, e.Table)
		}
		if len(e.Fields) == 0 {
			return nil, fmt.Errorf("entity '%s': at least one field is required", e.Name)
		}
		if len(e.Unique) == 0 {
			return nil, fmt.Errorf("entity '%s': at least one unique field is required", e.Name)
		}

		e.fields = make(map[string]bool, len(e.Fields))
		for _, f := range e.Fields {
			if !identPattern.MatchString(f) {
				return nil, fmt.Errorf("entity '%s': invalid field '%s'", e.Name, f)
			}
			e.fields[f] = true
		}
		e.unique = make(map[string]bool, len(e.Unique))
		for _, f := range e.Unique {
			if !e.fields[f] {
				return nil, fmt.Errorf("entity '%s': unique field '%s' is not a field", e.Name, f)
			}
			e.unique[f] = true
		}
		for name := range e.Relations {
			if e.fields[name] {
				return nil, fmt.Errorf("entity '%s': relation '%s' shadows a field", e.Name, name)
			}
		}

		r.entities[e.Name] = &e
	}

	// Relations are checked once every entity is known
	for _, e := range r.entities {
		for name, rel := range e.Relations {
			target, ok := r.entities[rel.Entity]
			if !ok {
				return nil, fmt.Errorf("entity '%s', relation '%s': unknown entity '%s'", e.Name, name, rel.Entity)
			}
			if !target.fields[rel.Field] {
				return nil, fmt.Errorf("entity '%s', relation '%s': '%s' is not a field of '%s'", e.Name, name, rel.Field, rel.Entity)
			}
			if !e.fields[rel.References] {
				return nil, fmt.Errorf("entity '%s', relation '%s': '%s' is not a field", e.Name, name, rel.References)
			}
		}
	}

	return r, nil
}

// Entity returns the entity with the given name
func (r *Registry) Entity(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", lookup.ErrUnknownEntity, name)
	}
	return e, nil
}

// Names returns the sorted entity names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve checks a lookup against the schema and returns it with a
// normalized selection. The predicate field must be declared unique.
// An empty selection means every scalar field.
func (r *Registry) Resolve(req lookup.LookupRequest) (lookup.LookupRequest, error) {
	if err := req.Validate(); err != nil {
		return req, err
	}
	e, err := r.Entity(req.Entity)
	if err != nil {
		return req, err
	}
	if field := req.Field(); !e.IsUnique(field) {
		return req, fmt.Errorf("%w: '%s' is not a unique field of '%s'", lookup.ErrInvalidLookup, field, e.Name)
	}
	sel, err := r.selection(e, req.Select)
	if err != nil {
		return req, err
	}
	req.Select = sel
	return req, nil
}

// ResolveRange checks a range query against the schema
func (r *Registry) ResolveRange(q lookup.RangeQuery) (lookup.RangeQuery, error) {
	if err := q.Validate(); err != nil {
		return q, err
	}
	e, err := r.Entity(q.Entity)
	if err != nil {
		return q, err
	}
	for field := range q.Where {
		if !e.HasField(field) {
			return q, fmt.Errorf("%w: '%s' is not a field of '%s'", lookup.ErrInvalidLookup, field, e.Name)
		}
	}
	for _, o := range q.OrderBy {
		if !e.HasField(o.Field) {
			return q, fmt.Errorf("%w: cannot order by '%s'", lookup.ErrInvalidLookup, o.Field)
		}
	}
	sel, err := r.selection(e, q.Select)
	if err != nil {
		return q, err
	}
	q.Select = sel
	return q, nil
}

func (r *Registry) selection(e *Entity, sel lookup.Selection) (lookup.Selection, error) {
	if len(sel) == 0 {
		return lookup.Selection(e.Fields).Normalize(), nil
	}
	for _, item := range sel {
		if e.HasField(item) {
			continue
		}
		if _, ok := e.Relations[item]; ok {
			continue
		}
		return nil, fmt.Errorf("%w: '%s' is not a field or relation of '%s'", lookup.ErrInvalidLookup, item, e.Name)
	}
	return sel.Normalize(), nil
}
