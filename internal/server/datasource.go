package server

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"batchloader/internal/backend"
	"batchloader/internal/backend/memory"
	"batchloader/internal/backend/mongodb"
	"batchloader/internal/backend/sqldb"
	"batchloader/internal/cache"
	"batchloader/internal/config"
	"batchloader/internal/schema"
)

// buildRegistry converts entity configs into a schema registry
func buildRegistry(entities []config.EntityConfig) (*schema.Registry, error) {
	defs := make([]schema.Entity, len(entities))
	for i, e := range entities {
		relations := make(map[string]schema.Relation, len(e.Relations))
		for name, rel := range e.Relations {
			relations[name] = schema.Relation{
				Entity:     rel.Entity,
				Field:      rel.Field,
				References: rel.References,
				List:       rel.List,
			}
		}
		defs[i] = schema.Entity{
			Name:      e.Name,
			Table:     e.Table,
			Fields:    e.Fields,
			Unique:    e.Unique,
			Relations: relations,
		}
	}
	return schema.NewRegistry(defs)
}

// openStore connects the store for the datasource driver
func openStore(ctx context.Context, dsCfg config.DatasourceConfig) (backend.Store, error) {
	switch dsCfg.Driver {
	case config.DriverMemory:
		if dsCfg.Seed == "" {
			return memory.NewStore(), nil
		}
		return memory.LoadFile(dsCfg.Seed)
	case config.DriverPostgres, config.DriverMySQL:
		return sqldb.Open(ctx, dsCfg.Driver, dsCfg.DSN)
	case config.DriverMongo:
		return mongodb.Open(ctx, dsCfg.DSN, dsCfg.Database)
	default:
		return nil, fmt.Errorf("unknown driver '%s'", dsCfg.Driver)
	}
}

// newCache creates the record cache of one datasource
func newCache(cfg *config.Config, datasource string, logger zerolog.Logger) (cache.Cache, error) {
	if !cfg.IsCacheEnabled() {
		return cache.NewNoopCache(), nil
	}

	switch cfg.Cache.Driver {
	case config.CacheRedis:
		return cache.NewRedisCache(cfg.Cache.RedisURL, cfg.Cache.Prefix+datasource+":", cfg.Cache.GetTTLDuration(), logger)
	default:
		return cache.NewMemoryCache(cfg.Cache.Size, cfg.Cache.GetTTLDuration())
	}
}
