package config

import (
	"encoding/json"
	"time"
)

// Driver names accepted for datasources
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMongo    = "mongodb"
)

// Cache driver names
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config represents the main configuration structure
type Config struct {
	Host           string             `json:"host"`
	RPCPort        int                `json:"rpcPort"`
	WSPort         int                `json:"wsPort"`
	LogLevel       string             `json:"logLevel"`
	MaxBodySize    int64              `json:"maxBodySize"`
	RequestTimeout int                `json:"requestTimeout"` // ms
	WSMaxInflight  int                `json:"wsMaxInflight"`  // concurrent requests per WebSocket connection
	Batching       *BatchingConfig    `json:"batching,omitempty"`
	Cache          *CacheConfig       `json:"cache,omitempty"`
	CircuitBreaker *BreakerConfig     `json:"circuitBreaker,omitempty"`
	Datasources    []DatasourceConfig `json:"datasources"`
}

// BatchingConfig controls how point lookups are coalesced
type BatchingConfig struct {
	Enabled      bool `json:"enabled"`
	Window       int  `json:"window"`       // ms - collection window per signature
	MaxBatchSize int  `json:"maxBatchSize"` // distinct keys; 0 means unlimited
	FetchTimeout int  `json:"fetchTimeout"` // ms - deadline for one consolidated fetch
}

// UnmarshalJSON defaults enabled to true when the field is absent
func (b *BatchingConfig) UnmarshalJSON(data []byte) error {
	type batchingAlias BatchingConfig
	raw := struct {
		*batchingAlias
		EnabledPtr *bool `json:"enabled"`
	}{batchingAlias: (*batchingAlias)(b)}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.EnabledPtr != nil {
		b.Enabled = *raw.EnabledPtr
	} else {
		b.Enabled = DefaultBatchingEnabled
	}
	return nil
}

// CacheConfig represents record cache configuration
type CacheConfig struct {
	Enabled  bool   `json:"enabled"`
	Driver   string `json:"driver"`   // memory or redis
	TTL      int    `json:"ttl"`      // seconds
	Size     int    `json:"size"`     // number of entries (memory driver)
	RedisURL string `json:"redisUrl"` // redis driver
	Prefix   string `json:"prefix"`   // key prefix (redis driver)
}

// BreakerConfig represents per-datasource circuit breaker configuration
type BreakerConfig struct {
	Enabled             bool `json:"enabled"`
	FailureThreshold    int  `json:"failureThreshold"`    // consecutive failures before opening
	RecoveryTimeout     int  `json:"recoveryTimeout"`     // ms
	HalfOpenMaxRequests int  `json:"halfOpenMaxRequests"` // successful probes before closing
}

// DatasourceConfig represents one backend and its entities
type DatasourceConfig struct {
	Name     string         `json:"name"`
	Driver   string         `json:"driver"`
	DSN      string         `json:"dsn"`
	Database string         `json:"database"` // mongodb database name
	Seed     string         `json:"seed"`     // memory driver seed file
	Entities []EntityConfig `json:"entities"`
}

// EntityConfig represents one model of a datasource
type EntityConfig struct {
	Name      string                    `json:"name"`
	Table     string                    `json:"table"`
	Fields    []string                  `json:"fields"`
	Unique    []string                  `json:"unique"`
	Relations map[string]RelationConfig `json:"relations,omitempty"`
}

// RelationConfig links a model to records of another model
type RelationConfig struct {
	Entity     string `json:"entity"`
	Field      string `json:"field"`
	References string `json:"references"`
	List       bool   `json:"list"`
}

// Default values
const (
	DefaultHost             = "localhost"
	DefaultRPCPort          = 4466
	DefaultWSPort           = 4467
	DefaultLogLevel         = "info"
	DefaultMaxBodySize      = int64(0) // 0 means no limit
	DefaultRequestTimeout   = 5000     // ms
	DefaultWSMaxInflight    = 64
	DefaultBatchingEnabled  = true
	DefaultBatchWindow      = 2    // ms
	DefaultFetchTimeout     = 5000 // ms
	DefaultCacheDriver      = CacheMemory
	DefaultCacheTTL         = 60 // seconds
	DefaultCacheSize        = 10000
	DefaultCachePrefix      = "batchloader:"
	DefaultDriver           = DriverMemory
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30000 // ms
	DefaultHalfOpenRequests = 2
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// IsCacheEnabled returns true if cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// IsCircuitBreakerEnabled returns true if the circuit breaker is configured and enabled
func (c *Config) IsCircuitBreakerEnabled() bool {
	return c.CircuitBreaker != nil && c.CircuitBreaker.Enabled
}

// GetRecoveryTimeoutDuration returns the recovery timeout as time.Duration
func (b *BreakerConfig) GetRecoveryTimeoutDuration() time.Duration {
	return time.Duration(b.RecoveryTimeout) * time.Millisecond
}

// GetWindowDuration returns the collection window as time.Duration
func (b *BatchingConfig) GetWindowDuration() time.Duration {
	return time.Duration(b.Window) * time.Millisecond
}

// GetFetchTimeoutDuration returns the fetch timeout as time.Duration
func (b *BatchingConfig) GetFetchTimeoutDuration() time.Duration {
	return time.Duration(b.FetchTimeout) * time.Millisecond
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
