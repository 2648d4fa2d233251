package accesslog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLog is a Log backed by Redis. Each access type is kept in its own hash,
// `<namespace>:access:<TYPE>`, mapping key to the latest timestamp in milliseconds.
type RedisLog struct {
	redisClient *redis.Client
	namespace   string
	logger      zerolog.Logger
}

// NewRedisLog creates a RedisLog on an already connected client. Close on the
// returned log closes the client.
func NewRedisLog(client *redis.Client, namespace string, logger zerolog.Logger) (*RedisLog, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if namespace == "" {
		return nil, errors.New("namespace is required")
	}
	return &RedisLog{
		redisClient: client,
		namespace:   namespace,
		logger:      logger.With().Str("component", "RedisLog").Str("namespace", namespace).Logger(),
	}, nil
}

func (l *RedisLog) hashKey(accessType AccessType) string {
	return fmt.Sprintf("%s:access:%s", l.namespace, accessType)
}

// Record writes the access timestamp for its key and type.
func (l *RedisLog) Record(ctx context.Context, access Access) error {
	err := l.redisClient.HSet(ctx, l.hashKey(access.Type), access.Key, ToMillis(access.Timestamp)).Err()
	if err != nil {
		l.logger.Error().Err(err).Str("key", access.Key).Stringer("type", access.Type).Msg("Failed to record access in Redis.")
		return fmt.Errorf("redis hset for %s access of %s: %w", access.Type, access.Key, err)
	}
	return nil
}

// Last reads the latest timestamp for key and type.
func (l *RedisLog) Last(ctx context.Context, key string, accessType AccessType) (time.Duration, bool, error) {
	raw, err := l.redisClient.HGet(ctx, l.hashKey(accessType), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis hget for %s access of %s: %w", accessType, key, err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("malformed %s access timestamp for %s: %w", accessType, key, err)
	}
	return FromMillis(ms), true, nil
}

// Clear deletes the access hashes of this namespace.
func (l *RedisLog) Clear(ctx context.Context) error {
	if err := l.redisClient.Del(ctx, l.hashKey(Idle), l.hashKey(Alive)).Err(); err != nil {
		return fmt.Errorf("redis del of access log: %w", err)
	}
	l.logger.Debug().Msg("Cleared access log.")
	return nil
}

// Close closes the Redis client connection.
func (l *RedisLog) Close() error {
	if l.redisClient != nil {
		l.logger.Info().Msg("Closing Redis client connection...")
		return l.redisClient.Close()
	}
	return nil
}
