package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-accesscache/pkg/accesslog"
)

// AccessLog is an accesslog.Log stored in the `<namespace>_access` table.
// Only the latest timestamp per (key, type) is kept.
type AccessLog struct {
	d *Database
}

// AccessLog returns the access log of the database. Closing it closes the database.
func (d *Database) AccessLog() *AccessLog {
	return &AccessLog{d: d}
}

// Record upserts the access, never moving a timestamp backwards.
func (l *AccessLog) Record(ctx context.Context, access accesslog.Access) error {
	query := `INSERT INTO ` + l.d.accessTable + ` (cache_key, access_type, timestamp_ms) VALUES (?, ?, ?)
		ON CONFLICT (cache_key, access_type) DO UPDATE SET timestamp_ms = MAX(timestamp_ms, excluded.timestamp_ms)`
	_, err := l.d.db.ExecContext(ctx, query, access.Key, access.Type.String(), accesslog.ToMillis(access.Timestamp))
	if err != nil {
		l.d.logger.Error().Err(err).Str("key", access.Key).Stringer("type", access.Type).Msg("Failed to record access.")
		return fmt.Errorf("sqlite upsert of %s access for %s: %w", access.Type, access.Key, err)
	}
	return nil
}

// Last returns the latest timestamp for key and type.
func (l *AccessLog) Last(ctx context.Context, key string, accessType accesslog.AccessType) (time.Duration, bool, error) {
	query := `SELECT timestamp_ms FROM ` + l.d.accessTable + ` WHERE cache_key = ? AND access_type = ?`
	var ms int64
	err := l.d.db.QueryRowContext(ctx, query, key, accessType.String()).Scan(&ms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("sqlite select of %s access for %s: %w", accessType, key, err)
	}
	return accesslog.FromMillis(ms), true, nil
}

// Clear deletes every access of the namespace.
func (l *AccessLog) Clear(ctx context.Context) error {
	if _, err := l.d.db.ExecContext(ctx, `DELETE FROM `+l.d.accessTable); err != nil {
		return fmt.Errorf("sqlite delete of access log: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *AccessLog) Close() error {
	return l.d.Close()
}
