package cache_test

import (
	"testing"

	"github.com/illmade-knight/go-accesscache/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewRedisStorage_Namespace(t *testing.T) {
	// The client is never used, so no server is needed.
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	t.Cleanup(func() { _ = client.Close() })

	testCases := []struct {
		name      string
		namespace string
		wantErr   bool
	}{
		{name: "plain", namespace: "statuses"},
		{name: "generated", namespace: "cache_0b7c_41f2"},
		{name: "separators", namespace: "team:statuses-v2"},
		{name: "empty", namespace: "", wantErr: true},
		{name: "star", namespace: "stat*", wantErr: true},
		{name: "question mark", namespace: "stat?s", wantErr: true},
		{name: "character class", namespace: "[st]atuses", wantErr: true},
		{name: "escape", namespace: `stat\uses`, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := cache.NewRedisStorage[string](client, tc.namespace, nil, zerolog.Nop())
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
