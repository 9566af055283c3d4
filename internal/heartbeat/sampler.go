package heartbeat

import (
	"context"
	"errors"
	"time"

	"github.com/quietrooms/node/internal/app"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var errNoCPUSample = errors.New("no cpu sample")

// LoadProbe reads current CPU and memory usage in percent.
type LoadProbe interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemPercent(ctx context.Context) (float64, error)
}

// HostProbe reads host-wide usage through gopsutil.
type HostProbe struct{}

func (HostProbe) CPUPercent(ctx context.Context) (float64, error) {
	// interval 0 compares against the previous call, so the first value covers process start
	values, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, errNoCPUSample
	}
	return values[0], nil
}

func (HostProbe) MemPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Sampler stores fresh load readings into NodeState on every tick.
type Sampler struct {
	State    *app.NodeState
	Probe    LoadProbe
	Interval time.Duration
}

func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		s.Sample(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sample takes one reading. A failed probe keeps the previous value.
func (s *Sampler) Sample(ctx context.Context) {
	prev := s.State.Load()
	cpuLoad, memLoad := prev.CPU, prev.Mem

	if v, err := s.Probe.CPUPercent(ctx); err != nil {
		log.Warn().Err(err).Str("module", "heartbeat").Msg("cpu sample failed")
	} else {
		cpuLoad = &v
	}
	if v, err := s.Probe.MemPercent(ctx); err != nil {
		log.Warn().Err(err).Str("module", "heartbeat").Msg("mem sample failed")
	} else {
		memLoad = &v
	}
	s.State.SetLoad(cpuLoad, memLoad)
}
