package pool

import (
	"sort"
	"time"
)

// WorkerStatus is a worker handle's lifecycle state.
type WorkerStatus int8

const (
	StatusIdle WorkerStatus = iota
	StatusBusy
	StatusError
	StatusTerminated
)

func (s WorkerStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusError:
		return "error"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// WorkerInfo is an exported point-in-time view of one worker handle.
type WorkerInfo struct {
	ID             int           `json:"id"`
	Status         string        `json:"status"`
	CurrentTaskID  string        `json:"current_task_id,omitempty"`
	TasksCompleted int           `json:"tasks_completed"`
	ErrorCount     int           `json:"error_count"`
	TotalExecTime  time.Duration `json:"total_exec_time"`
	LastActiveAt   time.Time     `json:"last_active_at"`
}

// workerHandle is the registry's record for one live execution context.
// Exactly one handle exists per live worker goroutine; the registry owns
// all handles and is mutated only by the coordinator loop.
type workerHandle struct {
	id int
	w  *worker

	status WorkerStatus

	// ready flips on the worker's startup handshake; dispatch waits for it.
	ready bool

	currentTaskID  string
	tasksCompleted int
	errorCount     int
	totalExecTime  time.Duration
	lastActiveAt   time.Time
	spawnedAt      time.Time
}

func (h *workerHandle) info() WorkerInfo {
	return WorkerInfo{
		ID:             h.id,
		Status:         h.status.String(),
		CurrentTaskID:  h.currentTaskID,
		TasksCompleted: h.tasksCompleted,
		ErrorCount:     h.errorCount,
		TotalExecTime:  h.totalExecTime,
		LastActiveAt:   h.lastActiveAt,
	}
}

type registry struct {
	workers map[int]*workerHandle
	idSeq   int
}

func newRegistry() *registry {
	return &registry{workers: map[int]*workerHandle{}}
}

func (r *registry) newHandle(now time.Time) *workerHandle {
	r.idSeq++
	h := &workerHandle{
		id:           r.idSeq,
		status:       StatusIdle,
		lastActiveAt: now,
		spawnedAt:    now,
	}
	r.workers[h.id] = h
	return h
}

func (r *registry) byID(id int) *workerHandle { return r.workers[id] }

func (r *registry) remove(id int) { delete(r.workers, id) }

func (r *registry) size() int { return len(r.workers) }

// idle returns the lowest-id worker that is idle and has completed its
// startup handshake, or nil.
func (r *registry) idle() *workerHandle {
	var best *workerHandle
	for _, h := range r.workers {
		if h.status != StatusIdle || !h.ready {
			continue
		}
		if best == nil || h.id < best.id {
			best = h
		}
	}
	return best
}

// idleAll returns every dispatchable worker, lowest id first.
func (r *registry) idleAll() []*workerHandle {
	var out []*workerHandle
	for _, h := range r.workers {
		if h.status == StatusIdle && h.ready {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *registry) counts() (total, busy, idle int) {
	total = len(r.workers)
	for _, h := range r.workers {
		switch h.status {
		case StatusBusy:
			busy++
		case StatusIdle:
			idle++
		}
	}
	return total, busy, idle
}

func (r *registry) infos() []WorkerInfo {
	out := make([]WorkerInfo, 0, len(r.workers))
	for _, h := range r.workers {
		out = append(out, h.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
