package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batchloader/internal/config"
	"batchloader/internal/jsonrpc"
)

const seed = `{
  "User": [
    {"id": 1, "email": "alice@prisma.io", "name": "Alice"},
    {"id": 2, "email": "bob@prisma.io", "name": "Bob"}
  ],
  "Post": [
    {"id": 10, "title": "Hello", "authorId": 1}
  ]
}`

func testConfig(t *testing.T, cacheEnabled bool) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	raw := `{
	  "batching": {"window": 1},
	  "datasources": [{
	    "name": "blog",
	    "seed": "` + path + `",
	    "entities": [
	      {"name": "User", "fields": ["id", "email", "name"], "unique": ["id", "email"],
	       "relations": {"posts": {"entity": "Post", "field": "authorId", "references": "id", "list": true}}},
	      {"name": "Post", "fields": ["id", "title", "authorId"], "unique": ["id"]}
	    ]
	  }]
	}`
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)
	if cacheEnabled {
		cfg.Cache = &config.CacheConfig{Enabled: true, Driver: config.CacheMemory, Size: 100, TTL: 60}
	}
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()

	s, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	for _, ds := range cfg.Datasources {
		require.NoError(t, s.AddDatasource(context.Background(), ds))
	}

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func call(t *testing.T, url, body string) *jsonrpc.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	rpcResp, err := jsonrpc.ParseResponse(data)
	require.NoError(t, err)
	return rpcResp
}

func TestServer_EndToEnd(t *testing.T) {
	s, srv := newTestServer(t, testConfig(t, true))

	resp := call(t, srv.URL+"/blog", `{"jsonrpc":"2.0","id":1,"method":"findUnique","params":{"model":"User","where":{"id":1},"select":["name","posts"]}}`)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"name":"Alice","posts":[{"id":10,"title":"Hello","authorId":1}]}`, string(resp.Result))

	// second call is served from the record cache
	resp = call(t, srv.URL+"/blog", `{"jsonrpc":"2.0","id":2,"method":"findUnique","params":{"model":"User","where":{"id":1},"select":["name","posts"]}}`)
	require.Nil(t, resp.Error)

	metricsResp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `batchloader_lookups_submitted_total{datasource="blog",entity="User"} 2`)
	assert.Contains(t, string(body), `batchloader_cache_hits_total{entity="User"} 1`)

	require.NoError(t, s.Stop(context.Background()))
}

func TestServer_AddDatasourceErrors(t *testing.T) {
	cfg := testConfig(t, false)
	s, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	bad := cfg.Datasources[0]
	bad.Entities = []config.EntityConfig{{Name: "User", Fields: []string{"id"}, Unique: []string{"email"}}}
	assert.Error(t, s.AddDatasource(context.Background(), bad))

	missing := cfg.Datasources[0]
	missing.Seed = filepath.Join(t.TempDir(), "missing.json")
	assert.Error(t, s.AddDatasource(context.Background(), missing))

	assert.Empty(t, s.GetRouter().Names())
}
