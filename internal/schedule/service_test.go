package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"thermopool/internal/pool"
	logx "thermopool/pkg/logx"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, kind string, _ []byte, _ *pool.SubmitOptions) (*pool.Future, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(&fakeSubmitter{}, logx.Nop())
	if _, err := s.Add(Entry{Spec: "not a cron spec", Kind: "sleep"}); err == nil {
		t.Fatal("expected error for malformed spec")
	}
}

func TestAddRejectsEmptyKind(t *testing.T) {
	s := New(&fakeSubmitter{}, logx.Nop())
	if _, err := s.Add(Entry{Spec: "* * * * *"}); err == nil {
		t.Fatal("expected error for empty kind")
	}
}

func TestJobSubmitsEntry(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, logx.Nop())
	job := s.jobFor(Entry{Spec: "* * * * *", Kind: "hash", Priority: 7})
	job()
	if got := sub.count(); got != 1 {
		t.Fatalf("submit calls = %d, want 1", got)
	}
	if sub.calls[0] != "hash" {
		t.Fatalf("submitted kind = %q, want %q", sub.calls[0], "hash")
	}
}

func TestJobToleratesSubmitError(t *testing.T) {
	sub := &fakeSubmitter{err: pool.ErrQueueFull}
	s := New(sub, logx.Nop())
	job := s.jobFor(Entry{Spec: "* * * * *", Kind: "sleep"})
	job() // must not panic
	job()
	if got := sub.count(); got != 2 {
		t.Fatalf("submit calls = %d, want 2", got)
	}
}

func TestStartStop(t *testing.T) {
	sub := &fakeSubmitter{}
	s := New(sub, logx.Nop())
	if _, err := s.Add(Entry{Spec: "@hourly", Kind: "sleep"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Start()
	if len(s.Entries()) != 1 {
		t.Fatalf("entries = %d, want 1", len(s.Entries()))
	}
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
