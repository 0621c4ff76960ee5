package sqldb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchloader/internal/lookup"
)

func TestBuildSelectIn(t *testing.T) {
	query, args := buildSelectIn(Postgres, "users", "id", []any{int64(1), int64(2), int64(3)}, []string{"email", "id"})
	assert.Equal(t, `SELECT "email", "id" FROM "users" WHERE "id" IN ($1, $2, $3)`, query)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, args)

	query, _ = buildSelectIn(MySQL, "users", "id", []any{int64(1), int64(2)}, []string{"id"})
	assert.Equal(t, "SELECT `id` FROM `users` WHERE `id` IN (?, ?)", query)
}

func TestBuildSelectWhere(t *testing.T) {
	q := lookup.RangeQuery{
		Where:   map[string]any{"published": "yes", "authorId": float64(1)},
		OrderBy: []lookup.Order{{Field: "createdAt", Desc: true}, {Field: "id"}},
		Take:    10,
		Skip:    20,
	}

	query, args, err := buildSelectWhere(Postgres, "posts", q, []string{"id", "title"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "title" FROM "posts" WHERE "authorId" = $1 AND "published" = $2 ORDER BY "createdAt" DESC, "id" ASC LIMIT 10 OFFSET 20`, query)
	assert.Equal(t, []any{int64(1), "yes"}, args)
}

func TestBuildSelectWhere_OffsetWithoutLimit(t *testing.T) {
	q := lookup.RangeQuery{Skip: 5}

	query, _, err := buildSelectWhere(Postgres, "posts", q, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id" FROM "posts" OFFSET 5`, query)

	query, _, err = buildSelectWhere(MySQL, "posts", q, []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT `id` FROM `posts` LIMIT 18446744073709551615 OFFSET 5", query)
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name)

	_, err = DialectFor("sqlite")
	assert.Error(t, err)
}

func TestConvertValue(t *testing.T) {
	assert.Equal(t, int64(42), convertValue([]byte("42"), "BIGINT"))
	assert.Equal(t, int64(7), convertValue([]byte("7"), "int"))
	assert.Equal(t, "alice@prisma.io", convertValue([]byte("alice@prisma.io"), "VARCHAR"))
	assert.Equal(t, int64(3), convertValue(int64(3), "INT8"))
	assert.Nil(t, convertValue(nil, "TEXT"))
}
