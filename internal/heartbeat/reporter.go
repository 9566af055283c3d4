// Package heartbeat reports this node's load to the control plane on a fixed
// interval and keeps the sampled load in NodeState fresh.
package heartbeat

import (
	"context"
	"time"

	"github.com/quietrooms/node/internal/app"
	"github.com/quietrooms/node/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Payload is the body of one heartbeat, in the control plane's wire format.
type Payload struct {
	ActiveRooms int      `json:"active_rooms"`
	CPULoad     *float64 `json:"cpu_load,omitempty"`
	MemLoad     *float64 `json:"mem_load,omitempty"`
}

// Sink delivers one heartbeat. Implementations must honour ctx.
type Sink interface {
	Send(ctx context.Context, p Payload) error
}

type Reporter struct {
	State        *app.NodeState
	Sink         Sink
	Metrics      *metrics.Metrics
	Interval     time.Duration
	InitialDelay time.Duration
}

// Run blocks until ctx is cancelled. A failed report is logged and the next
// one happens on the following tick.
func (r *Reporter) Run(ctx context.Context) {
	log.Info().Str("module", "heartbeat").Dur("interval", r.Interval).Dur("initial_delay", r.InitialDelay).Msg("heartbeat started")
	defer log.Info().Str("module", "heartbeat").Msg("heartbeat stopped")

	if !sleep(ctx, r.InitialDelay) {
		return
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		r.Report(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Report reads NodeState and sends one heartbeat.
func (r *Reporter) Report(ctx context.Context) error {
	load := r.State.Load()
	p := Payload{
		ActiveRooms: r.State.ActiveRoomsCount(),
		CPULoad:     load.CPU,
		MemLoad:     load.Mem,
	}
	if err := r.Sink.Send(ctx, p); err != nil {
		r.Metrics.Heartbeat(false)
		log.Error().Err(err).Str("module", "heartbeat").Int("active_rooms", p.ActiveRooms).Msg("heartbeat failed")
		return err
	}
	r.Metrics.Heartbeat(true)
	log.Debug().Str("module", "heartbeat").Int("active_rooms", p.ActiveRooms).Msg("heartbeat sent")
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
