package pool

import (
	"context"
	"sync/atomic"
	"time"
)

const (
	// MaxPriority bounds task priorities; higher is served first.
	MaxPriority = 10

	// DefaultPriority is used when a submission does not specify one.
	DefaultPriority = 5
)

// Task is a unit of work submitted for execution by a worker.
//
// Payload is opaque to the scheduler: it is carried across the worker
// boundary as bytes and interpreted only by the executor registered for
// Kind.
type Task struct {
	ID       string
	Kind     string
	Payload  []byte
	Priority int

	// Timeout is the soft deadline, measured from admission.
	Timeout time.Duration

	QueuedAt  time.Time
	StartedAt time.Time
}

// SubmitOptions overrides per-task admission parameters.
type SubmitOptions struct {
	// Priority is clamped to [0, MaxPriority].
	Priority int

	// Timeout overrides the pool default when > 0.
	Timeout time.Duration
}

// Result is the successful outcome of a task.
type Result struct {
	Value    any
	Duration time.Duration
	WorkerID int
}

// Future is a one-shot completion handle. Exactly one terminal event
// (result, error, cancel, timeout, shutdown) settles it; later settlers
// lose the race and are discarded.
type Future struct {
	settled atomic.Bool
	done    chan struct{}
	res     Result
	err     error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// settle resolves the future exactly once. It reports whether this call won.
func (f *Future) settle(res Result, err error) bool {
	if !f.settled.CompareAndSwap(false, true) {
		return false
	}
	f.res = res
	f.err = err
	close(f.done)
	return true
}

func (f *Future) isSettled() bool { return f.settled.Load() }

// Done is closed when the future reaches its terminal state.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future settles or ctx is done.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Err returns the terminal error, or nil if the future is still pending or
// succeeded. Use Done() to distinguish pending from success.
func (f *Future) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Value returns the terminal result; the zero Result while pending.
func (f *Future) Value() Result {
	select {
	case <-f.done:
		return f.res
	default:
		return Result{}
	}
}

func clampPriority(p int) int {
	if p < 0 {
		return 0
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}
