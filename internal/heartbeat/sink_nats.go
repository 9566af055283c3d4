package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSSink publishes heartbeats to {prefix}.{node_id}.heartbeat.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

func NewNATSSink(url, subjectPrefix, nodeID string) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("quietrooms-node-"+nodeID),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "heartbeat").Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("module", "heartbeat").Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSink{nc: nc, subject: Subject(subjectPrefix, nodeID)}, nil
}

// Subject returns the heartbeat subject for nodeID.
func Subject(prefix, nodeID string) string {
	return fmt.Sprintf("%s.%s.heartbeat", prefix, nodeID)
}

func (s *NATSSink) Send(ctx context.Context, p Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal heartbeat: %w", err)
	}
	if err := s.nc.Publish(s.subject, data); err != nil {
		return fmt.Errorf("publish heartbeat: %w", err)
	}
	return nil
}

func (s *NATSSink) Close() {
	if err := s.nc.Drain(); err != nil {
		log.Warn().Err(err).Str("module", "heartbeat").Msg("nats drain")
	}
}
