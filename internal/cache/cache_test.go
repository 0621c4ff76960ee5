package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchloader/internal/lookup"
)

func TestMemoryCache_SetGet(t *testing.T) {
	mc, err := NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	defer mc.Close()

	mc.Set("User:id:1", lookup.Record{"id": int64(1)})

	rec, ok := mc.Get("User:id:1")
	require.True(t, ok)
	assert.Equal(t, int64(1), rec["id"])

	mc.Remove("User:id:1")
	_, ok = mc.Get("User:id:1")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	mc, err := NewMemoryCache(10, 20*time.Millisecond)
	require.NoError(t, err)
	defer mc.Close()

	mc.Set("k", lookup.Record{"id": int64(1)})
	time.Sleep(40 * time.Millisecond)

	_, ok := mc.Get("k")
	assert.False(t, ok)
}

func TestMemoryCache_Evicts(t *testing.T) {
	mc, err := NewMemoryCache(2, time.Minute)
	require.NoError(t, err)
	defer mc.Close()

	mc.Set("a", lookup.Record{})
	mc.Set("b", lookup.Record{})
	mc.Set("c", lookup.Record{})

	assert.Equal(t, 2, mc.Len())
	_, ok := mc.Get("a")
	assert.False(t, ok, "least recently used entry is evicted")
}

func TestKey(t *testing.T) {
	sig := lookup.Signature{Entity: "User", Field: "id", Selection: "id,posts"}
	other := lookup.Signature{Entity: "User", Field: "id", Selection: "id"}

	assert.Equal(t, Key(sig, int64(1)), Key(sig, int64(1)))
	assert.NotEqual(t, Key(sig, int64(1)), Key(sig, int64(2)))
	assert.NotEqual(t, Key(sig, int64(1)), Key(other, int64(1)))
	assert.NotEqual(t, Key(sig, int64(1)), Key(sig, "1"), "string and integer keys differ")
}

func TestDecodeRecord_KeepsIntegers(t *testing.T) {
	rec, err := decodeRecord([]byte(`{"id":9007199254740993,"email":"a@x.io"}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), rec["id"])

	key, ok := lookup.KeyOf(rec, "id")
	require.True(t, ok)
	assert.Equal(t, int64(9007199254740993), key)
}

func TestNoopCache(t *testing.T) {
	nc := NewNoopCache()
	nc.Set("k", lookup.Record{})
	_, ok := nc.Get("k")
	assert.False(t, ok)
}
