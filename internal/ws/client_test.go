package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchloader/internal/backend"
	"batchloader/internal/backend/memory"
	"batchloader/internal/batcher"
	"batchloader/internal/config"
	"batchloader/internal/jsonrpc"
	"batchloader/internal/lookup"
	"batchloader/internal/resolver"
	"batchloader/internal/schema"
)

type countingBackend struct {
	backend.Backend
	mu      sync.Mutex
	fetches int
}

func (c *countingBackend) FetchMany(ctx context.Context, b lookup.Batch) (map[any]lookup.Record, error) {
	c.mu.Lock()
	c.fetches++
	c.mu.Unlock()
	return c.Backend.FetchMany(ctx, b)
}

func newTestServer(t *testing.T) (*httptest.Server, *countingBackend) {
	t.Helper()
	return newTestServerWithConfig(t, &config.Config{RequestTimeout: 5000})
}

func newTestServerWithConfig(t *testing.T, cfg *config.Config) (*httptest.Server, *countingBackend) {
	t.Helper()

	reg, err := schema.NewRegistry([]schema.Entity{{
		Name:   "User",
		Fields: []string{"id", "name"},
		Unique: []string{"id"},
	}})
	require.NoError(t, err)

	store := memory.NewStore()
	store.Put("User",
		lookup.Record{"id": 1, "name": "Alice"},
		lookup.Record{"id": 2, "name": "Bob"},
	)

	cb := &countingBackend{Backend: backend.New(store, reg)}
	collector := batcher.NewCollector("blog", &config.BatchingConfig{Enabled: true, Window: 200}, cb, reg, zerolog.Nop())

	router := resolver.NewRouter()
	router.AddDatasource(&resolver.Datasource{Name: "blog", Registry: reg, Backend: cb, Collector: collector})

	srv := httptest.NewServer(NewHandler(router, resolver.New(zerolog.Nop()), cfg, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return srv, cb
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClient_MessagesShareCollectionWindow(t *testing.T) {
	srv, cb := newTestServer(t)
	conn := dial(t, srv, "/blog")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"findUnique","params":{"model":"User","where":{"id":1}}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"findUnique","params":{"model":"User","where":{"id":2}}}`)))

	names := map[float64]string{}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 2; i++ {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		resp, err := jsonrpc.ParseResponse(data)
		require.NoError(t, err)
		require.Nil(t, resp.Error)

		var user map[string]any
		require.NoError(t, json.Unmarshal(resp.Result, &user))
		names[resp.ID.Value().(float64)] = user["name"].(string)
	}

	assert.Equal(t, map[float64]string{1: "Alice", 2: "Bob"}, names)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	assert.Equal(t, 1, cb.fetches)
}

func TestClient_BatchAndErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "/blog")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"findUnique","params":{"model":"User","where":{"id":1}}},
		{"jsonrpc":"2.0","id":2,"method":"findUnique","params":{"model":"User","where":{"id":3}}}
	]`)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var responses []*jsonrpc.Response
	require.NoError(t, json.Unmarshal(data, &responses))
	require.Len(t, responses, 2)
	assert.NotEqual(t, "null", string(responses[0].Result))
	assert.Equal(t, "null", string(responses[1].Result))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	resp, err := jsonrpc.ParseResponse(data)
	require.NoError(t, err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpc.CodeParseError, resp.Error.Code)
}

func TestHandler_UnknownDatasource(t *testing.T) {
	srv, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/shop"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestClient_NonObjectBatchElements(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "/blog")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	for _, msg := range []string{`[null]`, `[1]`} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, msg)

		var responses []*jsonrpc.Response
		require.NoError(t, json.Unmarshal(data, &responses), msg)
		require.Len(t, responses, 1, msg)
		require.NotNil(t, responses[0].Error, msg)
		assert.Equal(t, jsonrpc.CodeInvalidRequest, responses[0].Error.Code, msg)
	}

	// the connection is still served afterwards
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":3,"method":"findUnique","params":{"model":"User","where":{"id":2}}}`)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	resp, err := jsonrpc.ParseResponse(data)
	require.NoError(t, err)
	assert.Nil(t, resp.Error)
}

func TestClient_InflightLimit(t *testing.T) {
	srv, cb := newTestServerWithConfig(t, &config.Config{RequestTimeout: 5000, WSMaxInflight: 1})
	conn := dial(t, srv, "/blog")
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":1,"method":"findUnique","params":{"model":"User","where":{"id":1}}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"jsonrpc":"2.0","id":2,"method":"findUnique","params":{"model":"User","where":{"id":2}}}`)))

	for i := 0; i < 2; i++ {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		resp, err := jsonrpc.ParseResponse(data)
		require.NoError(t, err)
		assert.Nil(t, resp.Error)
	}

	// the second message is read only after the first completed, so the
	// two lookups cannot share a collection window
	cb.mu.Lock()
	defer cb.mu.Unlock()
	assert.Equal(t, 2, cb.fetches)
}
