package pool

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// Executor runs one task of a given kind. The payload interpretation is
// entirely the executor's concern; the scheduler never decodes it.
//
// The context carries the task's remaining deadline and is cancelled on
// Cancel — cancellation is advisory, the executor decides whether to honor
// it. A result returned after the task's future has already settled is
// discarded by the coordinator.
type Executor func(ctx context.Context, t Task) (any, error)

type workerEventKind int8

const (
	evReady workerEventKind = iota
	evComplete
	evError
	evFault
	evExit
)

// workerEvent is the message a worker sends back across the execution
// boundary: exactly one complete/error per dispatch, ready on startup,
// fault on an uncaught panic, exit when the dispatch channel closes.
type workerEvent struct {
	kind     workerEventKind
	workerID int
	taskID   string
	value    any
	err      error
	duration time.Duration
	stack    string
}

// dispatch is the message the coordinator sends to a worker.
type dispatch struct {
	ctx  context.Context
	task Task
}

// worker is one independent execution context. It owns no shared state;
// everything crosses the two channels.
type worker struct {
	id       int
	tasks    chan dispatch
	events   chan<- workerEvent
	execs    map[string]Executor
	loopDone <-chan struct{}
}

func (w *worker) run() {
	w.send(workerEvent{kind: evReady, workerID: w.id})

	for d := range w.tasks {
		start := time.Now()
		value, err, pan, stack := w.execute(d)
		dur := time.Since(start)

		if pan != nil {
			// Uncaught panic: report the fault and let the goroutine die.
			// The lifecycle manager respawns a replacement.
			w.send(workerEvent{
				kind:     evFault,
				workerID: w.id,
				taskID:   d.task.ID,
				err:      fmt.Errorf("panic: %v", pan),
				duration: dur,
				stack:    stack,
			})
			return
		}
		if err != nil {
			w.send(workerEvent{kind: evError, workerID: w.id, taskID: d.task.ID, err: err, duration: dur})
			continue
		}
		w.send(workerEvent{kind: evComplete, workerID: w.id, taskID: d.task.ID, value: value, duration: dur})
	}

	w.send(workerEvent{kind: evExit, workerID: w.id})
}

func (w *worker) execute(d dispatch) (value any, err error, pan any, stack string) {
	defer func() {
		if r := recover(); r != nil {
			pan = r
			stack = string(debug.Stack())
		}
	}()

	exec, ok := w.execs[d.task.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, d.task.Kind), nil, ""
	}
	value, err = exec(d.ctx, d.task)
	return value, err, nil, ""
}

func (w *worker) send(ev workerEvent) {
	// The coordinator drains events until every worker has exited; after the
	// loop is gone, drop instead of blocking forever.
	select {
	case w.events <- ev:
	case <-w.loopDone:
	}
}
