package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the configuration for the Redis client.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// CacheTTL makes Redis drop stored values on its own after this long.
	// Zero keeps values until they are removed or cleared.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// ConnectRedis creates a Redis client and pings the server to ensure
// connectivity before returning. The client can be shared by a RedisStorage
// and an accesslog.RedisLog.
func ConnectRedis(ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")
	return rdb, nil
}

// redisGlobChars are the SCAN MATCH metacharacters. Clear builds its pattern
// from the namespace, so a namespace holding any of them could match keys of
// other namespaces.
const redisGlobChars = `*?[]\`

// RedisStorage is a generic Storage using Redis. Values are JSON encoded and
// kept under `<namespace>:value:<key>`.
type RedisStorage[V any] struct {
	redisClient *redis.Client
	namespace   string
	ttl         time.Duration
	logger      zerolog.Logger
}

// NewRedisStorage creates a RedisStorage on a connected client. The client's
// lifecycle is managed by the caller.
func NewRedisStorage[V any](
	client *redis.Client,
	namespace string,
	cfg *RedisConfig,
	logger zerolog.Logger,
) (*RedisStorage[V], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	if strings.ContainsAny(namespace, redisGlobChars) {
		return nil, fmt.Errorf("namespace %q must not contain any of %s", namespace, redisGlobChars)
	}
	var ttl time.Duration
	if cfg != nil {
		ttl = cfg.CacheTTL
	}
	return &RedisStorage[V]{
		redisClient: client,
		namespace:   namespace,
		ttl:         ttl,
		logger:      logger.With().Str("component", "RedisStorage").Str("namespace", namespace).Logger(),
	}, nil
}

func (s *RedisStorage[V]) valueKey(key string) string {
	return s.namespace + ":value:" + key
}

// Store sets the JSON encoded value in Redis with the configured TTL.
func (s *RedisStorage[V]) Store(ctx context.Context, key string, value V) error {
	jsonData, err := json.Marshal(value)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to marshal data for caching.")
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	if err := s.redisClient.Set(ctx, s.valueKey(key), jsonData, s.ttl).Err(); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to set data in Redis.")
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	s.logger.Debug().Str("key", key).Msg("Successfully stored data in Redis.")
	return nil
}

// Contains reports whether Redis holds a value for key.
func (s *RedisStorage[V]) Contains(ctx context.Context, key string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, s.valueKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed for key %s: %w", key, err)
	}
	return n > 0, nil
}

// Get retrieves and unmarshals the value for key.
func (s *RedisStorage[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	cachedData, err := s.redisClient.Get(ctx, s.valueKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("key '%s': %w", key, ErrNotStored)
		}
		return zero, fmt.Errorf("redis get failed for key %s: %w", key, err)
	}

	var value V
	if err := json.Unmarshal(cachedData, &value); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to unmarshal cached data.")
		return zero, fmt.Errorf("failed to unmarshal data: %w", err)
	}
	return value, nil
}

// Remove deletes the value for key.
func (s *RedisStorage[V]) Remove(ctx context.Context, key string) error {
	if err := s.redisClient.Del(ctx, s.valueKey(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", key, err)
	}
	return nil
}

// Clear deletes every value of this namespace, scanning in batches.
func (s *RedisStorage[V]) Clear(ctx context.Context) error {
	iter := s.redisClient.Scan(ctx, 0, s.valueKey("*"), 100).Iterator()
	batch := make([]string, 0, 100)
	deleted := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.redisClient.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis del failed during clear: %w", err)
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan failed during clear: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}
	s.logger.Debug().Int("deleted", deleted).Msg("Cleared Redis storage.")
	return nil
}
