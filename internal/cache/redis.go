package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"batchloader/internal/lookup"
)

const redisOpTimeout = 500 * time.Millisecond

// RedisCache stores JSON-encoded records in Redis with a TTL.
// Errors talking to Redis are logged and treated as cache misses.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisCache connects to the Redis server at url
func NewRedisCache(url, prefix string, ttl time.Duration, logger zerolog.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "redis-cache").Logger(),
	}, nil
}

// Get retrieves a record from Redis
func (rc *RedisCache) Get(key string) (lookup.Record, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := rc.client.Get(ctx, rc.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			rc.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		}
		return nil, false
	}

	rec, err := decodeRecord(data)
	if err != nil {
		rc.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		rc.Remove(key)
		return nil, false
	}
	return rec, true
}

// Set stores a record in Redis
func (rc *RedisCache) Set(key string, value lookup.Record) {
	data, err := json.Marshal(value)
	if err != nil {
		rc.logger.Warn().Err(err).Str("key", key).Msg("failed to encode record")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := rc.client.Set(ctx, rc.prefix+key, data, rc.ttl).Err(); err != nil {
		rc.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
	}
}

// Remove deletes a record from Redis
func (rc *RedisCache) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := rc.client.Del(ctx, rc.prefix+key).Err(); err != nil {
		rc.logger.Warn().Err(err).Str("key", key).Msg("redis del failed")
	}
}

// Close closes the Redis client
func (rc *RedisCache) Close() {
	if err := rc.client.Close(); err != nil {
		rc.logger.Warn().Err(err).Msg("failed to close redis client")
	}
}

// decodeRecord keeps integer precision by decoding numbers as json.Number
func decodeRecord(data []byte) (lookup.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec lookup.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	return rec, nil
}
