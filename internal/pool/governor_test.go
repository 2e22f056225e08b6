package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// stubSampler returns a fixed per-core usage; swap changes it between ticks.
type stubSampler struct {
	mu    sync.Mutex
	usage []float64
	err   error
}

func (s *stubSampler) Sample(context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(s.usage))
	copy(out, s.usage)
	return out, nil
}

func (s *stubSampler) set(usage ...float64) {
	s.mu.Lock()
	s.usage = usage
	s.mu.Unlock()
}

func TestDeriveState(t *testing.T) {
	const threshold = 70.0
	cases := []struct {
		temp float64
		want ThermalState
	}{
		{40, ThermalCool},
		{54.9, ThermalCool},
		{55, ThermalWarm},
		{69.9, ThermalWarm},
		{70, ThermalHot},
		{79.9, ThermalHot},
		{80, ThermalCritical},
		{95, ThermalCritical},
	}
	for _, c := range cases {
		if got := deriveState(c.temp, threshold); got != c.want {
			t.Errorf("deriveState(%.1f) = %v, want %v", c.temp, got, c.want)
		}
	}
}

func TestTickReportsTransitionOnce(t *testing.T) {
	s := &stubSampler{}
	g := newGovernor(70, s)

	// Average 90% over two cores maps to an estimate of 90C.
	s.set(90, 90)
	_, to, temp, changed, err := g.tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !changed || to != ThermalCritical {
		t.Fatalf("first tick: to=%v changed=%v, want critical transition", to, changed)
	}
	if temp < 89.9 || temp > 90.1 {
		t.Fatalf("estimated temp = %.2f, want ~90", temp)
	}

	// Same load again: no transition.
	_, _, _, changed, err = g.tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if changed {
		t.Fatal("second tick at same load reported a transition")
	}

	// Cooling down transitions back.
	s.set(5)
	from, to, _, changed, _ := g.tick(context.Background())
	if !changed || from != ThermalCritical || to != ThermalCool {
		t.Fatalf("cooldown tick: from=%v to=%v changed=%v", from, to, changed)
	}
}

func TestTickPropagatesSamplerError(t *testing.T) {
	wantErr := errors.New("sensor gone")
	g := newGovernor(70, &stubSampler{err: wantErr})
	_, _, _, changed, err := g.tick(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("tick err = %v, want %v", err, wantErr)
	}
	if changed {
		t.Fatal("a failed sample must not change state")
	}
}

func TestTargetWorkers(t *testing.T) {
	cases := []struct {
		state ThermalState
		base  int
		want  int
	}{
		{ThermalCool, 8, 8},
		{ThermalWarm, 8, 6},
		{ThermalHot, 8, 4},
		{ThermalCritical, 8, 2},
		{ThermalCritical, 4, 1},
		{ThermalHot, 2, 2},  // floor of two outside critical
		{ThermalWarm, 1, 1}, // never above the base
	}
	for _, c := range cases {
		g := &governor{state: c.state}
		if got := g.targetWorkers(c.base); got != c.want {
			t.Errorf("targetWorkers(%v, base=%d) = %d, want %d", c.state, c.base, got, c.want)
		}
	}
}

func TestAdmitPolicy(t *testing.T) {
	cases := []struct {
		state    ThermalState
		priority int
		want     admitDecision
		backoff  time.Duration
	}{
		{ThermalCool, 0, admitNow, 0},
		{ThermalWarm, 0, admitNow, 0},
		{ThermalHot, 4, admitDelayed, delayBackoffHot},
		{ThermalHot, 5, admitNow, 0},
		{ThermalCritical, 7, admitRejected, 0},
		{ThermalCritical, 8, admitNow, 0},
	}
	for _, c := range cases {
		g := &governor{state: c.state}
		dec, backoff := g.admit(c.priority)
		if dec != c.want || backoff != c.backoff {
			t.Errorf("admit(%v, prio=%d) = (%v, %v), want (%v, %v)",
				c.state, c.priority, dec, backoff, c.want, c.backoff)
		}
	}
}
