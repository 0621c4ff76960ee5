package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchloader/internal/lookup"
)

func blogEntities() []Entity {
	return []Entity{
		{
			Name:   "User",
			Table:  "users",
			Fields: []string{"id", "email", "name"},
			Unique: []string{"id", "email"},
			Relations: map[string]Relation{
				"posts": {Entity: "Post", Field: "authorId", References: "id", List: true},
			},
		},
		{
			Name:   "Post",
			Fields: []string{"id", "title", "authorId"},
			Unique: []string{"id"},
		},
	}
}

func TestNewRegistry(t *testing.T) {
	r, err := NewRegistry(blogEntities())
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "User"}, r.Names())

	post, err := r.Entity("Post")
	require.NoError(t, err)
	assert.Equal(t, "Post", post.Table)

	_, err = r.Entity("Comment")
	assert.True(t, errors.Is(err, lookup.ErrUnknownEntity))
}

func TestNewRegistry_Invalid(t *testing.T) {
	cases := map[string]func([]Entity){
		"bad name":         func(e []Entity) { e[0].Name = "User; DROP" },
		"no unique":        func(e []Entity) { e[0].Unique = nil },
		"unique not field": func(e []Entity) { e[0].Unique = []string{"nickname"} },
		"unknown target": func(e []Entity) {
			e[0].Relations = map[string]Relation{"posts": {Entity: "Article", Field: "authorId", References: "id"}}
		},
		"bad foreign field": func(e []Entity) {
			e[0].Relations = map[string]Relation{"posts": {Entity: "Post", Field: "writer", References: "id"}}
		},
		"shadowed field": func(e []Entity) {
			e[0].Relations = map[string]Relation{"email": {Entity: "Post", Field: "authorId", References: "id"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			entities := blogEntities()
			mutate(entities)
			_, err := NewRegistry(entities)
			assert.Error(t, err)
		})
	}
}

func TestResolve(t *testing.T) {
	r, err := NewRegistry(blogEntities())
	require.NoError(t, err)

	req, err := r.Resolve(lookup.LookupRequest{
		Entity: "User",
		Where:  map[string]any{"id": 1},
		Select: lookup.Selection{"posts", "id"},
	})
	require.NoError(t, err)
	assert.Equal(t, lookup.Selection{"id", "posts"}, req.Select)

	req, err = r.Resolve(lookup.LookupRequest{Entity: "User", Where: map[string]any{"email": "a@x.io"}})
	require.NoError(t, err)
	assert.Equal(t, lookup.Selection{"email", "id", "name"}, req.Select, "empty selection means all scalars")

	_, err = r.Resolve(lookup.LookupRequest{Entity: "User", Where: map[string]any{"name": "Alice"}})
	assert.True(t, errors.Is(err, lookup.ErrInvalidLookup), "name is not unique")

	_, err = r.Resolve(lookup.LookupRequest{Entity: "User", Where: map[string]any{"id": 1}, Select: lookup.Selection{"comments"}})
	assert.True(t, errors.Is(err, lookup.ErrInvalidLookup))
}

func TestResolveRange(t *testing.T) {
	r, err := NewRegistry(blogEntities())
	require.NoError(t, err)

	q, err := r.ResolveRange(lookup.RangeQuery{
		Entity:  "Post",
		Where:   map[string]any{"authorId": 1},
		OrderBy: []lookup.Order{{Field: "title"}},
	})
	require.NoError(t, err)
	assert.Equal(t, lookup.Selection{"authorId", "id", "title"}, q.Select)

	_, err = r.ResolveRange(lookup.RangeQuery{Entity: "Post", OrderBy: []lookup.Order{{Field: "rank"}}})
	assert.Error(t, err)
}

func TestEntity_Split(t *testing.T) {
	r, err := NewRegistry(blogEntities())
	require.NoError(t, err)
	user, _ := r.Entity("User")

	fields, rels := user.Split(lookup.Selection{"id", "posts"})
	assert.Equal(t, []string{"id"}, fields)
	assert.Equal(t, []string{"posts"}, rels)
}
