package cache

import "batchloader/internal/lookup"

// Cache defines the interface for record caching
// This interface allows for different implementations (in-memory, Redis, etc.)
// Records handed out by a cache are shared and must not be modified.
type Cache interface {
	// Get retrieves a cached record by key
	// Returns the record and true if found, nil and false otherwise
	Get(key string) (lookup.Record, bool)

	// Set stores a record in the cache with the given key
	Set(key string, value lookup.Record)

	// Remove drops the record stored under key, if any
	Remove(key string)

	// Close releases any resources held by the cache
	Close()
}
