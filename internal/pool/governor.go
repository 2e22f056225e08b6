package pool

import (
	"context"
	"time"
)

// ThermalState is a coarse load-derived classification driving admission
// and sizing policy.
type ThermalState int8

const (
	ThermalCool ThermalState = iota
	ThermalWarm
	ThermalHot
	ThermalCritical
)

func (s ThermalState) String() string {
	switch s {
	case ThermalCool:
		return "cool"
	case ThermalWarm:
		return "warm"
	case ThermalHot:
		return "hot"
	case ThermalCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// LoadSampler reads per-core utilization percentages (0..100 per logical
// CPU). The default implementation uses gopsutil; anything with real
// hardware telemetry can be substituted without touching the governor's
// state machine.
type LoadSampler interface {
	Sample(ctx context.Context) ([]float64, error)
}

// Temperature proxy: a linear estimate over average CPU utilization,
// standing in for unavailable hardware sensors. An estimate, not a
// measurement.
const (
	baseTempC   = 45.0
	loadSpreadC = 50.0
)

const (
	// Critical admission: tasks below this priority are rejected outright.
	criticalMinPriority = 8

	// Hot admission: tasks below this priority are delayed, not rejected.
	hotDelayBelowPriority = 5

	delayBackoffHot = 2 * time.Second
)

// governor translates sampled load into thermal state. It is owned by the
// coordinator loop; tick is invoked once per rebalance interval.
type governor struct {
	threshold float64
	sampler   LoadSampler

	state   ThermalState
	estTemp float64
}

func newGovernor(threshold float64, sampler LoadSampler) *governor {
	return &governor{threshold: threshold, sampler: sampler, state: ThermalCool}
}

// tick samples load and recomputes the thermal state. changed reports a
// state transition since the previous tick.
func (g *governor) tick(ctx context.Context) (from, to ThermalState, temp float64, changed bool, err error) {
	usage, err := g.sampler.Sample(ctx)
	if err != nil {
		return g.state, g.state, g.estTemp, false, err
	}

	var avg float64
	if len(usage) > 0 {
		for _, u := range usage {
			avg += u
		}
		avg /= float64(len(usage))
	}

	temp = baseTempC + avg/100*loadSpreadC
	from = g.state
	to = deriveState(temp, g.threshold)

	g.estTemp = temp
	g.state = to
	return from, to, temp, to != from, nil
}

func deriveState(temp, threshold float64) ThermalState {
	switch {
	case temp >= threshold+10:
		return ThermalCritical
	case temp >= threshold:
		return ThermalHot
	case temp >= threshold-15:
		return ThermalWarm
	default:
		return ThermalCool
	}
}

// targetWorkers computes the rebalance target for the current state from
// the configured base worker count.
func (g *governor) targetWorkers(base int) int {
	var f float64
	switch g.state {
	case ThermalCritical:
		f = 0.25
	case ThermalHot:
		f = 0.5
	case ThermalWarm:
		f = 0.75
	default:
		f = 1.0
	}

	target := int(float64(base) * f)

	min := 2
	if g.state == ThermalCritical {
		min = 1
	}
	if target < min {
		target = min
	}
	if target > base {
		target = base
	}
	return target
}

type admitDecision int8

const (
	admitNow admitDecision = iota
	admitDelayed
	admitRejected
)

// admit applies the throttling policy to one submission. Delayed tasks are
// held outside the queue for the returned backoff before being enqueued.
// Only Hot delays: the Critical reject band (priority < 8) covers every
// delay-eligible priority, so a Critical backoff would never be armed.
func (g *governor) admit(priority int) (admitDecision, time.Duration) {
	switch g.state {
	case ThermalCritical:
		if priority < criticalMinPriority {
			return admitRejected, 0
		}
	case ThermalHot:
		if priority < hotDelayBelowPriority {
			return admitDelayed, delayBackoffHot
		}
	}
	return admitNow, 0
}
