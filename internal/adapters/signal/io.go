package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quietrooms/node/internal/domain"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	var ping <-chan time.Time
	if ctl.opts.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.opts.PingPeriod)
		defer ticker.Stop()
		ping = ticker.C
	}
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, code domain.RoomCode, id domain.ParticipantID, c *WsSignalConn) {
	defer func() {
		cancel()
		c.Close()
		left := ctl.Orch.Leave(code, id, c)
		log.Info().Str("module", "signal").Str("room", string(code)).Str("id", string(id)).Bool("was_current", left).Msg("readPump closing")
	}()

	if ctl.opts.PingPeriod > 0 && ctl.opts.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		})
	}

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("module", "signal").Str("id", string(id)).Msg("readPump read error")
			}
			return
		}
		ctl.handleFrame(code, id, data)
	}
}

// handleFrame keeps a panic in routing from taking down the process.
func (ctl *SignalWSController) handleFrame(code domain.RoomCode, id domain.ParticipantID, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("room", string(code)).Str("id", string(id)).Interface("panic", r).Msg("frame handling panicked")
		}
	}()
	res := ctl.Orch.OnFrame(code, id, data)
	if res.DropReason != "" {
		log.Debug().Str("module", "signal").Str("room", string(code)).Str("id", string(id)).Str("type", res.Type).Str("reason", res.DropReason).Msg("frame dropped")
	}
}
