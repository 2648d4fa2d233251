package cache

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultTimeToIdle is used when Config.TimeToIdle is zero.
	DefaultTimeToIdle = time.Minute
	// DefaultTimeToLive is used when Config.TimeToLive is zero.
	DefaultTimeToLive = 30 * time.Second
)

// Config holds the per-cache settings.
type Config struct {
	// Name scopes the cache's storage and access log so that several caches
	// can share one backend. A random name is generated when empty.
	Name       string        `yaml:"name"`
	TimeToIdle time.Duration `yaml:"time_to_idle"`
	TimeToLive time.Duration `yaml:"time_to_live"`
}

// DefaultConfig returns a Config with the default durations and a fresh name.
func DefaultConfig() Config {
	return Config{
		Name:       newNamespace(),
		TimeToIdle: DefaultTimeToIdle,
		TimeToLive: DefaultTimeToLive,
	}
}

// LoadConfig reads a YAML config file, e.g.
//
//	name: home_timeline
//	time_to_idle: 2m
//	time_to_live: 45s
//
// Missing fields take their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse cache config %s: %w", path, err)
	}
	resolved := cfg.withDefaults()
	if err := resolved.Validate(); err != nil {
		return nil, err
	}
	return &resolved, nil
}

// Validate rejects negative durations.
func (c Config) Validate() error {
	if c.TimeToIdle < 0 {
		return errors.New("time_to_idle cannot be negative")
	}
	if c.TimeToLive < 0 {
		return errors.New("time_to_live cannot be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = newNamespace()
	}
	if c.TimeToIdle == 0 {
		c.TimeToIdle = DefaultTimeToIdle
	}
	if c.TimeToLive == 0 {
		c.TimeToLive = DefaultTimeToLive
	}
	return c
}

// newNamespace returns a name usable as a Redis prefix, Firestore collection
// and SQL table prefix.
func newNamespace() string {
	return "cache_" + strings.ReplaceAll(uuid.NewString(), "-", "_")
}
