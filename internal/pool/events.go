package pool

import "time"

// Event types published on the bus. Consumers can subscribe per category
// with eventbus.SubscribePrefix ("worker.", "thermal.", "task.", "pool.").
const (
	EventWorkerSpawned  = "worker.spawned"
	EventWorkerError    = "worker.error"
	EventWorkerExit     = "worker.exit"
	EventWorkerRecycled = "worker.recycled"

	EventThermalStateChanged = "thermal.state_changed"

	EventTaskQueued    = "task.queued"
	EventTaskAssigned  = "task.assigned"
	EventTaskThrottled = "task.throttled"

	EventRebalancing = "pool.rebalancing"
	EventScaled      = "pool.scaled"
	EventShutdown    = "pool.shutdown"
)

// WorkerEventInfo is the payload for worker.* events.
type WorkerEventInfo struct {
	WorkerID       int    `json:"worker_id"`
	TasksCompleted int    `json:"tasks_completed,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ThermalEventInfo is the payload for thermal.state_changed.
type ThermalEventInfo struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	EstimatedTemp float64 `json:"estimated_temp_c"`
}

// RebalanceEventInfo is the payload for pool.rebalancing and pool.scaled.
type RebalanceEventInfo struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// TaskEventInfo is the payload for task.* events.
type TaskEventInfo struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Priority int           `json:"priority"`
	WorkerID int           `json:"worker_id,omitempty"`
	Action   string        `json:"action,omitempty"`
	Backoff  time.Duration `json:"backoff,omitempty"`
}

// ShutdownEventInfo is the payload for pool.shutdown.
type ShutdownEventInfo struct {
	Graceful bool `json:"graceful"`
}
