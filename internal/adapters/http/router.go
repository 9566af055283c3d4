package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quietrooms/node/internal/adapters/signal"
	"github.com/quietrooms/node/internal/app"
	"github.com/quietrooms/node/internal/config"
	"github.com/quietrooms/node/internal/metrics"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs one line per request on the global zerolog logger.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("module", "adapters.http").
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// SetupRouter wires the operational API and the realtime channel. ctx bounds
// the lifetime of upgraded WebSocket connections.
func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator, m *metrics.Metrics) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(RequestLogger())
	}
	r.Use(gin.Recovery())

	h := &handlers{
		nodeID:     cfg.NodeID,
		state:      orch.State,
		iceServers: cfg.PeerICEServers(),
		now:        time.Now,
	}

	r.GET("/health", h.health)
	r.GET("/node-info", h.nodeInfo)
	r.GET("/ice-servers", h.listICEServers)
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	rooms := r.Group("/rooms")
	rooms.GET("", h.listRooms)
	rooms.POST("/:code/start", h.startRoom)
	rooms.POST("/:code/stop", h.stopRoom)
	rooms.GET("/:code/participants", h.participants)

	ctrl := signal.NewSignalWSController(
		orch,
		signal.OptionsFromConfig(cfg),
		signal.NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateWindow),
	)
	r.GET("/ws/rooms/:code", func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("node_id", cfg.NodeID).Msg("router setup")
	return r
}
