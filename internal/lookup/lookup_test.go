package lookup

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{7, int64(7)},
		{int32(7), int64(7)},
		{uint16(7), int64(7)},
		{float64(7), int64(7)},
		{json.Number("7"), int64(7)},
		{"alice@prisma.io", "alice@prisma.io"},
		{[]byte("abc"), "abc"},
	}
	for _, c := range cases {
		got, err := NormalizeKey(c.in)
		require.NoError(t, err, "%T", c.in)
		assert.Equal(t, c.want, got, "%T", c.in)
	}
}

func TestNormalizeKey_Invalid(t *testing.T) {
	for _, in := range []any{nil, 1.5, true, map[string]any{"a": 1}, []any{1}, uint64(1 << 63)} {
		_, err := NormalizeKey(in)
		assert.Error(t, err, "%#v", in)
	}
}

func TestNormalizeKey_FloatRange(t *testing.T) {
	_, err := NormalizeKey(float64(1 << 63))
	assert.Error(t, err)
	_, err = NormalizeKey(json.Number("9223372036854775808"))
	assert.Error(t, err)

	got, err := NormalizeKey(float64(-(1 << 63)))
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), got)

	got, err = NormalizeKey(float64(1 << 62))
	require.NoError(t, err)
	assert.Equal(t, int64(1<<62), got)
}

func TestSelection_Normalize(t *testing.T) {
	sel := Selection{"posts", "id", "posts", ""}
	assert.Equal(t, Selection{"id", "posts"}, sel.Normalize())
	assert.Equal(t, "id,posts", sel.String())
	assert.Nil(t, Selection{}.Normalize())
}

func TestLookupRequest_Validate(t *testing.T) {
	ok := LookupRequest{Entity: "User", Where: map[string]any{"id": 1}}
	require.NoError(t, ok.Validate())

	bad := []LookupRequest{
		{Where: map[string]any{"id": 1}},
		{Entity: "User"},
		{Entity: "User", Where: map[string]any{"id": 1, "email": "a"}},
		{Entity: "User", Where: map[string]any{"id": nil}},
		{Entity: "User", Where: map[string]any{"id": []any{1, 2}}},
	}
	for _, req := range bad {
		err := req.Validate()
		assert.True(t, errors.Is(err, ErrInvalidLookup), "%+v: %v", req, err)
	}
}

func TestSignature_IgnoresKeyValue(t *testing.T) {
	a := LookupRequest{Entity: "User", Where: map[string]any{"id": 1}, Select: Selection{"posts", "id"}}
	b := LookupRequest{Entity: "User", Where: map[string]any{"id": 2}, Select: Selection{"id", "posts"}}
	assert.Equal(t, a.Signature(), b.Signature())

	c := LookupRequest{Entity: "User", Where: map[string]any{"id": 1}, Select: Selection{"id"}}
	assert.NotEqual(t, a.Signature(), c.Signature())

	d := LookupRequest{Entity: "User", Where: map[string]any{"email": "x"}, Select: Selection{"id", "posts"}}
	assert.NotEqual(t, a.Signature(), d.Signature())
}

func TestKeyOf(t *testing.T) {
	rec := Record{"id": float64(3), "email": "c@x.io"}
	key, ok := KeyOf(rec, "id")
	require.True(t, ok)
	assert.Equal(t, int64(3), key)

	_, ok = KeyOf(rec, "missing")
	assert.False(t, ok)
}

func TestFetchError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&FetchError{Signature: Signature{Entity: "User", Field: "id"}, Keys: 3, Err: cause})

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Keys)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "User.id")
}
