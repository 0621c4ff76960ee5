package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"batchloader/internal/backend"
	"batchloader/internal/batcher"
	"batchloader/internal/schema"
)

// Datasource is one configured backend with its schema and collector
type Datasource struct {
	Name      string
	Registry  *schema.Registry
	Backend   backend.Backend
	Collector *batcher.Collector
}

// Router manages routing requests to the appropriate datasource
type Router struct {
	datasources map[string]*Datasource
	mu          sync.RWMutex
}

// NewRouter creates a new Router
func NewRouter() *Router {
	return &Router{
		datasources: make(map[string]*Datasource),
	}
}

// AddDatasource adds a datasource to the router
func (r *Router) AddDatasource(ds *Datasource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.datasources[ds.Name] = ds
}

// GetDatasource returns the datasource with the given name
func (r *Router) GetDatasource(name string) (*Datasource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, ok := r.datasources[name]
	if !ok {
		return nil, fmt.Errorf("datasource '%s' not found", name)
	}
	return ds, nil
}

// GetDatasourceFromPath extracts the datasource name from a URL path
// Path format: /{datasource} or /{datasource}/
func (r *Router) GetDatasourceFromPath(path string) (*Datasource, error) {
	name := extractDatasourceName(path)
	if name == "" {
		return nil, fmt.Errorf("invalid path: datasource name is required")
	}
	return r.GetDatasource(name)
}

// extractDatasourceName extracts the first path segment
// Examples:
//
//	/blog -> blog
//	/blog/ -> blog
//	/blog/some/path -> blog
func extractDatasourceName(path string) string {
	path = strings.TrimPrefix(path, "/")

	if idx := strings.Index(path, "/"); idx != -1 {
		path = path[:idx]
	}

	return path
}

// Names returns all registered datasource names, sorted
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.datasources))
	for name := range r.datasources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseAll flushes every collector and closes every backend
func (r *Router) CloseAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result *multierror.Error
	for name, ds := range r.datasources {
		if ds.Collector != nil {
			if err := ds.Collector.Close(ctx); err != nil {
				result = multierror.Append(result, fmt.Errorf("datasource '%s': flush: %w", name, err))
			}
		}
		if ds.Backend != nil {
			if err := ds.Backend.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("datasource '%s': close: %w", name, err))
			}
		}
	}
	return result.ErrorOrNil()
}
