package cache_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-accesscache/pkg/cache"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestClockProvider(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	p := cache.NewClockProvider(clock)

	assert.Equal(t, time.Duration(start.UnixNano()), p.Elapsed())

	clock.Advance(90 * time.Second)
	assert.Equal(t, time.Duration(start.UnixNano())+90*time.Second, p.Elapsed())
}

func TestClockProvider_DefaultsToRealClock(t *testing.T) {
	p := cache.NewClockProvider(nil)
	now := time.Duration(time.Now().UnixNano())
	assert.InDelta(t, float64(now), float64(p.Elapsed()), float64(time.Second))
}
