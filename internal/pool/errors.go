package pool

import "errors"

var (
	// ErrNotStarted is returned by Submit before Start has been called.
	ErrNotStarted = errors.New("pool: not started")

	// ErrQueueFull rejects admission when the queue is at capacity.
	ErrQueueFull = errors.New("pool: queue full")

	// ErrPoolShuttingDown rejects admission once shutdown has begun.
	ErrPoolShuttingDown = errors.New("pool: shutting down")

	// ErrTaskTimeout rejects a task's future when its soft deadline passes.
	ErrTaskTimeout = errors.New("pool: task timed out")

	// ErrWorkerFault rejects the task a crashed worker was holding.
	ErrWorkerFault = errors.New("pool: worker fault")

	// ErrTaskCancelled rejects a task's future on explicit Cancel.
	ErrTaskCancelled = errors.New("pool: task cancelled")

	// ErrPoolShutdown rejects queued and in-flight tasks drained by a
	// forced shutdown.
	ErrPoolShutdown = errors.New("pool: shut down")

	// ErrThermalReject rejects low-priority admission in the Critical
	// thermal state.
	ErrThermalReject = errors.New("pool: rejected by thermal governor")

	// ErrUnknownKind is the task error when no executor is registered for
	// the task's kind.
	ErrUnknownKind = errors.New("pool: no executor for task kind")
)
