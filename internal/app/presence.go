package app

import (
	"encoding/json"

	"github.com/quietrooms/node/internal/core"
	"github.com/quietrooms/node/internal/domain"
	"github.com/quietrooms/node/internal/metrics"
	"github.com/rs/zerolog/log"
)

type participantsFrame struct {
	Type         string                `json:"type"`
	Participants []core.ParticipantDTO `json:"participants"`
}

// PresenceBroadcaster pushes the full membership snapshot of a room to every
// member. It runs on join and leave only.
type PresenceBroadcaster struct {
	Registry *Registry
	Metrics  *metrics.Metrics
}

func NewPresenceBroadcaster(reg *Registry, m *metrics.Metrics) *PresenceBroadcaster {
	return &PresenceBroadcaster{Registry: reg, Metrics: m}
}

func (p *PresenceBroadcaster) Broadcast(code domain.RoomCode) core.PublishResult {
	res, err := p.Registry.BroadcastSnapshot(code, func(snap []core.ParticipantDTO) (core.Frame, error) {
		return json.Marshal(participantsFrame{Type: FrameParticipants, Participants: snap})
	})
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("room", string(code)).Msg("presence marshal")
		return core.PublishResult{}
	}
	p.Metrics.SendsDropped(metrics.DropClosed, res.Failed)
	log.Debug().Str("module", "app.presence").Str("room", string(code)).Int("sent_to", res.SendTo).Msg("presence broadcast")
	return res
}
