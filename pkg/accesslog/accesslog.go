// Package accesslog records when cached keys were last read and written.
package accesslog

import (
	"context"
	"fmt"
	"io"
	"time"
)

// AccessType distinguishes reads from writes of a cached key.
type AccessType int

const (
	// Idle marks a read of a key. It resets the time-to-idle clock.
	Idle AccessType = iota
	// Alive marks a fetch and store of a key. It resets the time-to-live clock.
	Alive
)

// String returns the persisted name of the access type.
func (t AccessType) String() string {
	switch t {
	case Idle:
		return "IDLE"
	case Alive:
		return "ALIVE"
	default:
		return fmt.Sprintf("AccessType(%d)", int(t))
	}
}

// ParseAccessType is the inverse of AccessType.String.
func ParseAccessType(s string) (AccessType, error) {
	switch s {
	case "IDLE":
		return Idle, nil
	case "ALIVE":
		return Alive, nil
	default:
		return 0, fmt.Errorf("unknown access type %q", s)
	}
}

// Access is a single immutable record of a key being read or written.
// Timestamp is the elapsed time since the Unix epoch.
type Access struct {
	Key       string
	Type      AccessType
	Timestamp time.Duration
}

// Log is a persisted store of accesses. Only the most recent access per
// (key, type) pair matters; implementations may discard older ones.
type Log interface {
	// Record appends an access.
	Record(ctx context.Context, access Access) error
	// Last returns the most recent timestamp recorded for key and type.
	// ok is false when no access has been recorded; the returned duration
	// must not be used in that case.
	Last(ctx context.Context, key string, accessType AccessType) (ts time.Duration, ok bool, err error)
	// Clear removes every recorded access.
	Clear(ctx context.Context) error
	// Closer releases the underlying persistence handle.
	io.Closer
}

// ToMillis converts a timestamp to the millisecond resolution used by
// persisted logs.
func ToMillis(ts time.Duration) int64 {
	return ts.Milliseconds()
}

// FromMillis is the inverse of ToMillis.
func FromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
