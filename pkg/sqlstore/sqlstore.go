// Package sqlstore keeps a cache's values and its access log in one embedded
// SQLite database, so both share a single persistence handle.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var namespacePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds the database location and the namespace that prefixes its tables.
type Config struct {
	// Path of the database file. Empty means a private in-memory database.
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Database is an open SQLite handle scoped to one namespace.
type Database struct {
	db          *sql.DB
	namespace   string
	accessTable string
	valueTable  string
	logger      zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens (or creates) the database and its tables.
func Open(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Database, error) {
	if cfg == nil {
		return nil, errors.New("sqlstore config cannot be nil")
	}
	if !namespacePattern.MatchString(cfg.Namespace) {
		return nil, fmt.Errorf("invalid namespace %q: must match %s", cfg.Namespace, namespacePattern)
	}

	dsn := ":memory:"
	if cfg.Path != "" {
		dsn = "file:" + cfg.Path + "?_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	d := &Database{
		db:          db,
		namespace:   cfg.Namespace,
		accessTable: cfg.Namespace + "_access",
		valueTable:  cfg.Namespace + "_values",
		logger:      logger.With().Str("component", "SQLStore").Str("namespace", cfg.Namespace).Logger(),
	}
	if err := d.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	d.logger.Info().Str("path", cfg.Path).Msg("SQLite database opened.")
	return d, nil
}

func (d *Database) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + d.accessTable + ` (
			cache_key    TEXT    NOT NULL,
			access_type  TEXT    NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			PRIMARY KEY (cache_key, access_type)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + d.valueTable + ` (
			cache_key TEXT PRIMARY KEY,
			value     BLOB NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// Namespace returns the table prefix of this database.
func (d *Database) Namespace() string {
	return d.namespace
}

// Close releases the database handle. It is safe to call more than once.
func (d *Database) Close() error {
	d.closeOnce.Do(func() {
		d.logger.Info().Msg("Closing SQLite database...")
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}
