package pool

import "time"

// Stats is a read-only snapshot of the pool.
type Stats struct {
	TotalWorkers int `json:"total_workers"`
	BusyWorkers  int `json:"busy_workers"`
	IdleWorkers  int `json:"idle_workers"`

	QueueDepth int `json:"queue_depth"`

	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	TimedOut  uint64 `json:"timed_out"`
	Cancelled uint64 `json:"cancelled"`

	// Throttled counts tasks delayed by the governor; ThermalRejected
	// counts tasks refused admission outright.
	Throttled       uint64 `json:"throttled"`
	ThermalRejected uint64 `json:"thermal_rejected"`

	AvgTaskDuration time.Duration `json:"avg_task_duration"`
	Uptime          time.Duration `json:"uptime"`

	ThermalState   string  `json:"thermal_state"`
	EstimatedTempC float64 `json:"estimated_temp_c"`

	Workers []WorkerInfo `json:"workers,omitempty"`
}
