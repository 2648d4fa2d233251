//go:build integration

package accesslog_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-accesscache/pkg/accesslog"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLog_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	rc := emulators.GetDefaultRedisImageContainer()
	redisConn := emulators.SetupRedisContainer(t, ctx, rc)

	client := redis.NewClient(&redis.Options{Addr: redisConn.EmulatorAddress})
	log, err := accesslog.NewRedisLog(client, "timeline", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	t.Run("Record, Last and Clear", func(t *testing.T) {
		_, ok, err := log.Last(ctx, "acct:1", accesslog.Idle)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, log.Record(ctx, accesslog.Access{Key: "acct:1", Type: accesslog.Idle, Timestamp: 1500 * time.Millisecond}))

		ts, ok, err := log.Last(ctx, "acct:1", accesslog.Idle)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1500*time.Millisecond, ts)

		_, ok, err = log.Last(ctx, "acct:1", accesslog.Alive)
		require.NoError(t, err)
		assert.False(t, ok, "Types are tracked independently")

		require.NoError(t, log.Clear(ctx))
		_, ok, err = log.Last(ctx, "acct:1", accesslog.Idle)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
