// Package history journals terminal task outcomes for operator visibility.
//
// The default backend is an in-memory ring; an optional SQLite backend is
// available behind the "sqlite" build tag.
package history

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the journal.
//
// Driver values:
//   - "ring": in-memory ring buffer (default)
//   - "sqlite": SQLite database file (requires -tags sqlite)
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	RingSize    int           // ring only; 0 means default (200)
}

// Record is one terminal task outcome. Keep it compact and schema-stable.
type Record struct {
	TaskID   string
	Kind     string
	Priority int
	WorkerID int

	QueuedAt   time.Time
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration

	// Outcome is one of: completed, error, fault, timeout, cancelled,
	// shutdown, queue_full.
	Outcome string
	Error   string
}

// Store is the journal's persistence API.
type Store interface {
	Append(ctx context.Context, r Record) error
	Recent(ctx context.Context, n int) ([]Record, error)
	Close() error
}

// Recorder is the non-blocking interface the pool writes through.
type Recorder interface {
	Record(r Record)
}
