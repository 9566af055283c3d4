package core

import (
	"errors"

	"github.com/quietrooms/node/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Failed  int
	Dropped []SignalConnection
}

func (r *PublishResult) record(conn SignalConnection, err error) {
	switch {
	case err == nil:
		r.SendTo++
	case errors.Is(err, ErrBackpressure):
		r.Dropped = append(r.Dropped, conn)
	default:
		r.Failed++
	}
}

// ParticipantDTO is a read-only view for APIs (no transport fields).
type ParticipantDTO struct {
	ID   domain.ParticipantID `json:"id"`
	Name string               `json:"name"`
}
