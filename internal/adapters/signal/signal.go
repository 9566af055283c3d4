package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quietrooms/node/internal/app"
	"github.com/quietrooms/node/internal/config"
	"github.com/quietrooms/node/internal/core"
	"github.com/quietrooms/node/internal/domain"
	"github.com/rs/zerolog/log"
)

// Options tunes the per-connection transport.
type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration // 0 disables keepalive pings
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	}
}

type SignalWSController struct {
	Orch    *app.Orchestrator
	opts    Options
	limiter *JoinRateLimiter
}

func NewSignalWSController(orch *app.Orchestrator, opts Options, limiter *JoinRateLimiter) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 5 * time.Second
	}
	return &SignalWSController{
		Orch:    orch,
		opts:    opts,
		limiter: limiter,
	}
}

// WsSignalConn is the registry-facing handle of one WebSocket. Only the write
// pump writes data frames; Close may be called from any goroutine.
type WsSignalConn struct {
	conn      *websocket.Conn
	send      chan core.Frame
	writeWait time.Duration

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn, buffer int, writeWait time.Duration) *WsSignalConn {
	return &WsSignalConn{
		conn:      ws,
		send:      make(chan core.Frame, buffer),
		writeWait: writeWait,
	}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal serves GET /ws/rooms/:code. The connection lives until the
// peer disconnects, the node closes it, or ctx is cancelled.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	code, err := domain.ParseRoomCode(c.Param("code"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	id, err := domain.ResolveParticipantID(c.Query("client_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if ctl.limiter != nil && !ctl.limiter.Allow(c.ClientIP()) {
		log.Warn().Str("module", "signal").Str("ip", c.ClientIP()).Str("room", string(code)).Msg("join rate limited")
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "too many joins"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.opts.ReadLimit)

	p := domain.NewParticipant(
		id,
		domain.SanitizeDisplayName(c.Query("name")),
		time.Now().UTC(),
	)
	conn := newWsSignalConn(ws, ctl.opts.SendBuffer, ctl.opts.WriteWait)
	log.Info().Str("module", "signal").Str("room", string(code)).Str("id", string(p.ID)).Str("name", p.Name).Msg("new WS connection")

	ctl.Orch.Join(code, p, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, code, p.ID, conn)
}
