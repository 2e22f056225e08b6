package config

import (
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestParseYAMLDefaults(t *testing.T) {
	raw := []byte(`
logging:
  level: debug
pool:
  workers: 4
  max_queue_size: 32
  thermal_threshold_c: 65
`)
	cfg, err := Parse("config.yaml", raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Pool.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Pool.Workers)
	}
	if cfg.Pool.MaxQueueSize != 32 {
		t.Errorf("max_queue_size = %d, want 32", cfg.Pool.MaxQueueSize)
	}
	if cfg.Pool.ThermalThresholdC != 65 {
		t.Errorf("thermal_threshold_c = %v, want 65", cfg.Pool.ThermalThresholdC)
	}

	d, err := cfg.TaskTimeoutDuration()
	if err != nil {
		t.Fatalf("TaskTimeoutDuration: %v", err)
	}
	if d != 30*time.Second {
		t.Errorf("default task timeout = %v, want 30s", d)
	}
	ri, err := cfg.RebalanceIntervalDuration()
	if err != nil {
		t.Fatalf("RebalanceIntervalDuration: %v", err)
	}
	if ri != 5*time.Second {
		t.Errorf("default rebalance interval = %v, want 5s", ri)
	}
}

func TestParseEmptyAppliesWorkerDefault(t *testing.T) {
	cfg, err := Parse("config.yaml", []byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Pool.Workers != runtime.NumCPU() {
		t.Errorf("workers default = %d, want NumCPU (%d)", cfg.Pool.Workers, runtime.NumCPU())
	}
	if cfg.Pool.MaxQueueSize != 256 {
		t.Errorf("max_queue_size default = %d, want 256", cfg.Pool.MaxQueueSize)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse("config.yaml", []byte("pool:\n  wrokers: 4\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	cfg, err := Parse("config.yaml", []byte("pool:\n  task_timeout: \"soon\"\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := cfg.TaskTimeoutDuration(); err == nil {
		t.Fatal("expected duration error")
	} else if !strings.Contains(err.Error(), "pool.task_timeout") {
		t.Errorf("error should name the field, got %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("empty = (%v, %v), want default", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "0s", time.Second); err != nil || d != time.Second {
		t.Fatalf("explicit zero = (%v, %v), want default", d, err)
	}
	if d, err := ParseDurationOrDefault("x", " 250ms ", time.Second); err != nil || d != 250*time.Millisecond {
		t.Fatalf("parsed = (%v, %v), want 250ms", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", time.Second); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestParseScheduleValidation(t *testing.T) {
	_, err := Parse("config.yaml", []byte("schedule:\n  - cron: \"* * * * *\"\n"))
	if err == nil || !strings.Contains(err.Error(), "kind is required") {
		t.Fatalf("expected kind validation error, got %v", err)
	}
}
