// Package config loads the poold daemon configuration.
//
// Files may be YAML or JSON; YAML is coerced to JSON so both formats share
// one strict decoder (unknown fields are rejected). All durations are Go
// duration strings (e.g. "500ms", "10s", "1m").
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Pool    PoolConfig    `json:"pool"`
	History HistoryConfig `json:"history,omitempty"`
	Debug   DebugConfig   `json:"debug,omitempty"`

	// Schedule lists cron-triggered recurring submissions.
	Schedule []ScheduleEntry `json:"schedule,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

// PoolConfig mirrors pool.Config with durations as strings.
//
// Defaults (when fields are omitted/zero):
//   - workers: logical CPU count
//   - max_tasks_per_worker: 0 (recycling disabled)
//   - task_timeout: "30s"
//   - max_queue_size: 256
//   - thermal_threshold_c: 70
//   - rebalance_interval: "5s"
type PoolConfig struct {
	Workers           int    `json:"workers,omitempty"`
	MaxTasksPerWorker int    `json:"max_tasks_per_worker,omitempty"`
	TaskTimeout       string `json:"task_timeout,omitempty"`
	MaxQueueSize      int    `json:"max_queue_size,omitempty"`

	ThermalThresholdC  float64 `json:"thermal_threshold_c,omitempty"`
	RebalanceInterval  string  `json:"rebalance_interval,omitempty"`
	ThermalThrottling  *bool   `json:"thermal_throttling,omitempty"`
	DynamicRebalancing *bool   `json:"dynamic_rebalancing,omitempty"`
}

// HistoryConfig controls the terminal-task journal.
//
// Driver values:
//   - "ring": in-memory ring buffer (default)
//   - "sqlite": SQLite database file (requires -tags sqlite)
//   - "" / "none": disabled
type HistoryConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	RingSize    int    `json:"ring_size,omitempty"`
}

// DebugConfig controls the optional operator HTTP endpoint (pprof, health,
// stats, history). Bind it to loopback unless a token is set.
type DebugConfig struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

type ScheduleEntry struct {
	Cron     string `json:"cron"`
	Kind     string `json:"kind"`
	Payload  string `json:"payload,omitempty"`
	Priority *int   `json:"priority,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

// Load reads, strictly decodes, defaults, and validates a config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, b)
}

// Parse decodes config bytes. The path is only used to sniff the format.
func Parse(path string, b []byte) (*Config, error) {
	jb, err := jsonify(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Pool.Workers <= 0 {
		c.Pool.Workers = runtime.NumCPU()
	}
	if c.Pool.MaxQueueSize <= 0 {
		c.Pool.MaxQueueSize = 256
	}
	if c.Pool.ThermalThresholdC <= 0 {
		c.Pool.ThermalThresholdC = 70
	}
	if c.History.RingSize <= 0 {
		c.History.RingSize = 200
	}
	for i, e := range c.Schedule {
		if e.Cron == "" {
			return fmt.Errorf("schedule[%d]: cron is required", i)
		}
		if e.Kind == "" {
			return fmt.Errorf("schedule[%d]: kind is required", i)
		}
	}
	return nil
}

// TaskTimeoutDuration resolves pool.task_timeout with its default.
func (c *Config) TaskTimeoutDuration() (time.Duration, error) {
	return ParseDurationOrDefault("pool.task_timeout", c.Pool.TaskTimeout, 30*time.Second)
}

// RebalanceIntervalDuration resolves pool.rebalance_interval with its default.
func (c *Config) RebalanceIntervalDuration() (time.Duration, error) {
	return ParseDurationOrDefault("pool.rebalance_interval", c.Pool.RebalanceInterval, 5*time.Second)
}

// ParseDurationOrDefault resolves a duration-string field, substituting def
// for empty or zero values. path names the field in error messages.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// BoolOr resolves an optional bool field against a default.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
