package daemon

import (
	"context"
	"errors"
	"testing"
	"time"

	"thermopool/internal/pool"
)

func TestEchoTask(t *testing.T) {
	v, err := echoTask(context.Background(), pool.Task{Payload: []byte("ping")})
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if v != "ping" {
		t.Fatalf("echo = %v, want %q", v, "ping")
	}
}

func TestSleepTaskParsesPayload(t *testing.T) {
	start := time.Now()
	v, err := sleepTask(context.Background(), pool.Task{Payload: []byte("10ms")})
	if err != nil {
		t.Fatalf("sleep: %v", err)
	}
	if v != "10ms" {
		t.Fatalf("sleep result = %v", v)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("sleep returned early")
	}
}

func TestSleepTaskRejectsBadDuration(t *testing.T) {
	if _, err := sleepTask(context.Background(), pool.Task{Payload: []byte("soon")}); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestSleepTaskHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sleepTask(ctx, pool.Task{Payload: []byte("10s")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("sleep err = %v, want context.Canceled", err)
	}
}

func TestHashTaskIsDeterministic(t *testing.T) {
	a, err := hashTask(context.Background(), pool.Task{Payload: []byte("seed")})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := hashTask(context.Background(), pool.Task{Payload: []byte("seed")})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a != b {
		t.Fatalf("hash not deterministic: %v != %v", a, b)
	}
	if s, ok := a.(string); !ok || len(s) != 64 {
		t.Fatalf("hash result = %v, want 64 hex chars", a)
	}
}
