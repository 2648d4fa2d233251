// Package cache decides, per key, whether to serve a locally stored value or
// fetch a fresh one, using a persisted log of when each key was last read and
// written.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-accesscache/pkg/accesslog"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrTerminated is returned by Get and Invalidate once Terminate has been called.
var ErrTerminated = errors.New("cache has been terminated")

// Fetcher retrieves a fresh value for a key from a source of truth.
// It must not write to the Storage or the access log itself.
type Fetcher[V any] interface {
	Fetch(ctx context.Context, key string) (V, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc[V any] func(ctx context.Context, key string) (V, error)

// Fetch calls f.
func (f FetcherFunc[V]) Fetch(ctx context.Context, key string) (V, error) {
	return f(ctx, key)
}

// Storage persists values by key.
type Storage[V any] interface {
	// Store replaces any prior value for key. The value must be durable
	// when Store returns.
	Store(ctx context.Context, key string, value V) error
	// Contains reports whether a value is stored for key, regardless of expiry.
	Contains(ctx context.Context, key string) (bool, error)
	// Get returns the stored value. Calling it for a key that is not
	// contained is a contract violation.
	Get(ctx context.Context, key string) (V, error)
	// Remove deletes the value for key if present.
	Remove(ctx context.Context, key string) error
	// Clear deletes every stored value.
	Clear(ctx context.Context) error
}

// Option customises a Cache at construction.
type Option func(*options)

type options struct {
	timeProvider ElapsedTimeProvider
	singleFlight bool
}

// WithElapsedTimeProvider replaces the wall clock used for expiry decisions.
func WithElapsedTimeProvider(p ElapsedTimeProvider) Option {
	return func(o *options) {
		o.timeProvider = p
	}
}

// WithSingleFlight coalesces concurrent misses for the same key into a single
// fetch and store. Without it every concurrent miss fetches independently and
// the last store wins.
func WithSingleFlight() Option {
	return func(o *options) {
		o.singleFlight = true
	}
}

// Cache serves values from Storage while either the key was read within
// TimeToIdle or written within TimeToLive, and fetches through the Fetcher
// otherwise.
type Cache[V any] struct {
	name       string
	timeToIdle time.Duration
	timeToLive time.Duration

	fetcher Fetcher[V]
	storage Storage[V]
	log     accesslog.Log
	now     ElapsedTimeProvider
	logger  zerolog.Logger

	// group is nil unless WithSingleFlight was given.
	group      *singleflight.Group
	terminated atomic.Bool

	// teardown tracks which Terminate steps have completed so a failed
	// Terminate can be retried.
	teardownMu     sync.Mutex
	storageCleared bool
	logCleared     bool
	logClosed      bool
}

// New creates a Cache. cfg may be nil, in which case defaults apply and a
// unique namespace is generated.
func New[V any](
	cfg *Config,
	fetcher Fetcher[V],
	storage Storage[V],
	log accesslog.Log,
	logger zerolog.Logger,
	opts ...Option,
) (*Cache[V], error) {
	if fetcher == nil {
		return nil, errors.New("fetcher cannot be nil")
	}
	if storage == nil {
		return nil, errors.New("storage cannot be nil")
	}
	if log == nil {
		return nil, errors.New("access log cannot be nil")
	}

	resolved := DefaultConfig()
	if cfg != nil {
		resolved = cfg.withDefaults()
	}
	if err := resolved.Validate(); err != nil {
		return nil, err
	}

	o := options{timeProvider: NewClockProvider(nil)}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[V]{
		name:       resolved.Name,
		timeToIdle: resolved.TimeToIdle,
		timeToLive: resolved.TimeToLive,
		fetcher:    fetcher,
		storage:    storage,
		log:        log,
		now:        o.timeProvider,
		logger:     logger.With().Str("component", "Cache").Str("cache", resolved.Name).Logger(),
	}
	if o.singleFlight {
		c.group = &singleflight.Group{}
	}

	c.logger.Info().
		Dur("time_to_idle", c.timeToIdle).
		Dur("time_to_live", c.timeToLive).
		Bool("single_flight", o.singleFlight).
		Msg("Cache initialized.")
	return c, nil
}

// Name returns the namespace the cache was created with.
func (c *Cache[V]) Name() string { return c.name }

// TimeToIdle returns the maximum gap since the last read before a value is stale
// absent a recent write.
func (c *Cache[V]) TimeToIdle() time.Duration { return c.timeToIdle }

// TimeToLive returns the maximum gap since the last write before a value is
// stale absent a recent read.
func (c *Cache[V]) TimeToLive() time.Duration { return c.timeToLive }

// Get returns the value for key, serving it from Storage when the key is idle
// or alive and fetching it otherwise. Errors from the Fetcher, Storage and
// access log are returned wrapped but unchanged in kind; nothing is retried.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	if c.terminated.Load() {
		return zero, ErrTerminated
	}

	now := c.now.Elapsed()
	fresh, err := c.isFresh(ctx, key, now)
	if err != nil {
		return zero, err
	}
	if fresh {
		return c.retrieve(ctx, key, now)
	}
	if c.group == nil {
		return c.remember(ctx, key, now)
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		return c.remember(ctx, key, now)
	})
	if err != nil {
		return zero, err
	}
	if shared {
		c.logger.Debug().Str("key", key).Msg("Joined in-flight fetch.")
	}
	return v.(V), nil
}

// isFresh reports whether a stored value for key may be served at now. Access
// recency is only consulted when a value is actually stored.
func (c *Cache[V]) isFresh(ctx context.Context, key string, now time.Duration) (bool, error) {
	contains, err := c.storage.Contains(ctx, key)
	if err != nil {
		return false, fmt.Errorf("storage contains for %s: %w", key, err)
	}
	if !contains {
		return false, nil
	}

	idle, err := c.within(ctx, key, accesslog.Idle, now, c.timeToIdle)
	if err != nil {
		return false, err
	}
	if idle {
		return true, nil
	}
	return c.within(ctx, key, accesslog.Alive, now, c.timeToLive)
}

func (c *Cache[V]) within(ctx context.Context, key string, accessType accesslog.AccessType, now, window time.Duration) (bool, error) {
	last, ok, err := c.log.Last(ctx, key, accessType)
	if err != nil {
		return false, fmt.Errorf("last %s access for %s: %w", accessType, key, err)
	}
	if !ok {
		return false, nil
	}
	return now-last < window, nil
}

func (c *Cache[V]) retrieve(ctx context.Context, key string, now time.Duration) (V, error) {
	var zero V
	if err := c.record(ctx, key, accesslog.Idle, now); err != nil {
		return zero, err
	}
	value, err := c.storage.Get(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("storage get for %s: %w", key, err)
	}
	c.logger.Debug().Str("key", key).Msg("Cache hit.")
	return value, nil
}

func (c *Cache[V]) remember(ctx context.Context, key string, now time.Duration) (V, error) {
	var zero V
	c.logger.Debug().Str("key", key).Msg("Cache miss. Fetching from source.")

	value, err := c.fetcher.Fetch(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("fetch for %s: %w", key, err)
	}
	if err := c.storage.Store(ctx, key, value); err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("Failed to store fetched value.")
		return zero, fmt.Errorf("storage store for %s: %w", key, err)
	}
	// Accesses are only recorded once the value is durable.
	if err := c.record(ctx, key, accesslog.Alive, now); err != nil {
		return zero, err
	}
	if err := c.record(ctx, key, accesslog.Idle, now); err != nil {
		return zero, err
	}
	return value, nil
}

func (c *Cache[V]) record(ctx context.Context, key string, accessType accesslog.AccessType, now time.Duration) error {
	err := c.log.Record(ctx, accesslog.Access{Key: key, Type: accessType, Timestamp: now})
	if err != nil {
		return fmt.Errorf("record %s access for %s: %w", accessType, key, err)
	}
	return nil
}

// Invalidate removes the stored value for key so the next Get fetches it again.
func (c *Cache[V]) Invalidate(ctx context.Context, key string) error {
	if c.terminated.Load() {
		return ErrTerminated
	}
	if err := c.storage.Remove(ctx, key); err != nil {
		return fmt.Errorf("storage remove for %s: %w", key, err)
	}
	c.logger.Debug().Str("key", key).Msg("Invalidated.")
	return nil
}

// Terminate clears every stored value and access, then closes the access log.
// Get and Invalidate return ErrTerminated from the first call on. If a step
// fails, calling Terminate again resumes from that step; once every step has
// succeeded further calls are no-ops.
func (c *Cache[V]) Terminate(ctx context.Context) error {
	c.teardownMu.Lock()
	defer c.teardownMu.Unlock()

	if c.terminated.CompareAndSwap(false, true) {
		c.logger.Info().Msg("Terminating cache...")
	}
	if c.logClosed {
		return nil
	}

	if !c.storageCleared {
		if err := c.storage.Clear(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Failed to clear storage.")
			return fmt.Errorf("storage clear: %w", err)
		}
		c.storageCleared = true
	}
	if !c.logCleared {
		if err := c.log.Clear(ctx); err != nil {
			c.logger.Error().Err(err).Msg("Failed to clear access log.")
			return fmt.Errorf("access log clear: %w", err)
		}
		c.logCleared = true
	}
	if err := c.log.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Failed to close access log.")
		return fmt.Errorf("access log close: %w", err)
	}
	c.logClosed = true
	c.logger.Info().Msg("Cache terminated.")
	return nil
}
