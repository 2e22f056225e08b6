package pool

import (
	"context"

	"github.com/shirou/gopsutil/v4/cpu"
)

// cpuSampler is the default LoadSampler: per-core utilization since the
// previous call, via gopsutil. The first sample after process start may
// report zeros; the governor simply derives Cool from it.
type cpuSampler struct{}

// NewCPUSampler returns the default gopsutil-backed load sampler.
func NewCPUSampler() LoadSampler { return cpuSampler{} }

func (cpuSampler) Sample(ctx context.Context) ([]float64, error) {
	return cpu.PercentWithContext(ctx, 0, true)
}
