package app

import (
	"github.com/quietrooms/node/internal/core"
	"github.com/quietrooms/node/internal/domain"
	"github.com/quietrooms/node/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator drives one connection's lifecycle: join, frames, leave.
// Adapters call it; it never touches transport beyond SignalConnection.
type Orchestrator struct {
	State    *NodeState
	Router   *MessageRouter
	Presence *PresenceBroadcaster
	Policy   Policy
	Metrics  *metrics.Metrics
}

func NewOrchestrator(state *NodeState, policy Policy, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		State:    state,
		Router:   NewMessageRouter(state.Registry, m),
		Presence: NewPresenceBroadcaster(state.Registry, m),
		Policy:   policy,
		Metrics:  m,
	}
}

// Join registers conn as p in the room, creating the room session on first
// join, and notifies the room. A previous handle for the same identity is closed.
func (o *Orchestrator) Join(code domain.RoomCode, p domain.Participant, conn core.SignalConnection) domain.Room {
	room := o.State.Rooms.Ensure(code)
	if n := o.State.Registry.MemberCount(code); n >= room.MaxParticipants {
		log.Warn().Str("module", "app.orch").Str("room", string(code)).Int("members", n).Int("max_participants", room.MaxParticipants).Msg("room over advisory capacity")
	}

	prev, replaced := o.State.Registry.Register(code, p, conn)
	o.Metrics.ConnectionOpened()
	if replaced && prev != nil && prev != conn {
		log.Info().Str("module", "app.orch").Str("room", string(code)).Str("id", string(p.ID)).Msg("replacing previous connection")
		prev.Close()
	}

	o.applyPolicy(code, o.Presence.Broadcast(code))
	return room
}

// OnFrame routes one inbound frame from id.
func (o *Orchestrator) OnFrame(code domain.RoomCode, id domain.ParticipantID, data []byte) RouteResult {
	res := o.Router.Route(code, id, data)
	o.applyPolicy(code, res.Delivery)
	return res
}

// Leave deregisters conn and notifies the remaining members. It is a no-op for
// a connection that was already replaced.
func (o *Orchestrator) Leave(code domain.RoomCode, id domain.ParticipantID, conn core.SignalConnection) bool {
	o.Metrics.ConnectionClosed()
	if !o.State.Registry.UnregisterConn(code, id, conn) {
		return false
	}
	o.applyPolicy(code, o.Presence.Broadcast(code))
	return true
}

func (o *Orchestrator) applyPolicy(code domain.RoomCode, res core.PublishResult) {
	if len(res.Dropped) == 0 {
		return
	}
	o.Metrics.SendsDropped(metrics.DropBackpressure, len(res.Dropped))
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(code, slow) {
		case KickMember:
			log.Warn().Str("module", "app.orch").Str("room", string(code)).Msg("closing slow consumer")
			o.Metrics.Kicked()
			// Close may flush a close frame; keep it off the sender's read loop.
			go slow.Close()
		case DropFrame, NoAction:
		}
	}
}
