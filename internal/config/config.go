package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses, defaults and validates configuration bytes
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.RPCPort == 0 {
		cfg.RPCPort = DefaultRPCPort
	}
	if cfg.WSPort == 0 {
		cfg.WSPort = DefaultWSPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.WSMaxInflight == 0 {
		cfg.WSMaxInflight = DefaultWSMaxInflight
	}

	if cfg.Batching == nil {
		cfg.Batching = &BatchingConfig{Enabled: DefaultBatchingEnabled}
	}
	if cfg.Batching.Window == 0 {
		cfg.Batching.Window = DefaultBatchWindow
	}
	if cfg.Batching.FetchTimeout == 0 {
		cfg.Batching.FetchTimeout = DefaultFetchTimeout
	}

	if cfg.Cache != nil {
		if cfg.Cache.Driver == "" {
			cfg.Cache.Driver = DefaultCacheDriver
		}
		if cfg.Cache.TTL == 0 {
			cfg.Cache.TTL = DefaultCacheTTL
		}
		if cfg.Cache.Size == 0 {
			cfg.Cache.Size = DefaultCacheSize
		}
		if cfg.Cache.Prefix == "" {
			cfg.Cache.Prefix = DefaultCachePrefix
		}
	}

	if cfg.CircuitBreaker != nil {
		if cfg.CircuitBreaker.FailureThreshold == 0 {
			cfg.CircuitBreaker.FailureThreshold = DefaultFailureThreshold
		}
		if cfg.CircuitBreaker.RecoveryTimeout == 0 {
			cfg.CircuitBreaker.RecoveryTimeout = DefaultRecoveryTimeout
		}
		if cfg.CircuitBreaker.HalfOpenMaxRequests == 0 {
			cfg.CircuitBreaker.HalfOpenMaxRequests = DefaultHalfOpenRequests
		}
	}

	for i := range cfg.Datasources {
		if cfg.Datasources[i].Driver == "" {
			cfg.Datasources[i].Driver = DefaultDriver
		}
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if len(cfg.Datasources) == 0 {
		return errors.New("at least one datasource is required")
	}

	names := make(map[string]bool)
	for i, ds := range cfg.Datasources {
		if ds.Name == "" {
			return fmt.Errorf("datasource[%d]: name is required", i)
		}
		if names[ds.Name] {
			return fmt.Errorf("datasource[%d]: duplicate datasource name '%s'", i, ds.Name)
		}
		names[ds.Name] = true

		switch ds.Driver {
		case DriverMemory:
		case DriverPostgres, DriverMySQL:
			if ds.DSN == "" {
				return fmt.Errorf("datasource '%s': dsn is required for driver '%s'", ds.Name, ds.Driver)
			}
		case DriverMongo:
			if ds.DSN == "" || ds.Database == "" {
				return fmt.Errorf("datasource '%s': dsn and database are required for driver 'mongodb'", ds.Name)
			}
		default:
			return fmt.Errorf("datasource '%s': unknown driver '%s'", ds.Name, ds.Driver)
		}

		if len(ds.Entities) == 0 {
			return fmt.Errorf("datasource '%s': at least one entity is required", ds.Name)
		}
	}

	if cfg.RPCPort < 1 || cfg.RPCPort > 65535 {
		return fmt.Errorf("rpcPort must be between 1 and 65535")
	}

	if cfg.WSPort < 1 || cfg.WSPort > 65535 {
		return fmt.Errorf("wsPort must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}
	if cfg.WSMaxInflight < 0 {
		return fmt.Errorf("wsMaxInflight must be non-negative")
	}

	if cfg.Batching.Window < 0 {
		return fmt.Errorf("batching.window must be non-negative")
	}
	if cfg.Batching.MaxBatchSize < 0 {
		return fmt.Errorf("batching.maxBatchSize must be non-negative")
	}
	if cfg.Batching.FetchTimeout < 0 {
		return fmt.Errorf("batching.fetchTimeout must be non-negative")
	}

	// Validate cache config if provided
	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		switch cfg.Cache.Driver {
		case CacheMemory:
			if cfg.Cache.Size <= 0 {
				return fmt.Errorf("cache.size must be positive when cache is enabled")
			}
		case CacheRedis:
			if cfg.Cache.RedisURL == "" {
				return fmt.Errorf("cache.redisUrl is required for the redis driver")
			}
		default:
			return fmt.Errorf("cache.driver must be one of: memory, redis")
		}
	}

	if cfg.CircuitBreaker != nil {
		if cfg.CircuitBreaker.FailureThreshold < 0 || cfg.CircuitBreaker.RecoveryTimeout < 0 || cfg.CircuitBreaker.HalfOpenMaxRequests < 0 {
			return fmt.Errorf("circuitBreaker values must be non-negative")
		}
	}

	return nil
}
