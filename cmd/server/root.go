package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	router "github.com/quietrooms/node/internal/adapters/http"
	"github.com/quietrooms/node/internal/app"
	"github.com/quietrooms/node/internal/config"
	"github.com/quietrooms/node/internal/heartbeat"
	"github.com/quietrooms/node/internal/logging"
	"github.com/quietrooms/node/internal/metrics"
)

// Version is overridden at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "quietnode",
		Short:        "Realtime relay node for voice and video rooms",
		Long:         `quietnode hosts room sessions, relays WebRTC signaling, chat and control messages between the participants of a room, and reports its load to the control plane.`,
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default config/config.<CONFIG_ENV>.yaml)")
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the node version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})
	return root
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func newSink(cfg *config.Config) (heartbeat.Sink, func(), error) {
	switch cfg.Heartbeat.Transport {
	case "nats":
		s, err := heartbeat.NewNATSSink(cfg.Heartbeat.NATSURL, cfg.Heartbeat.SubjectPrefix, cfg.NodeID)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := heartbeat.NewHTTPSink(cfg.ControlPlaneURL, cfg.NodeID, cfg.NodeAPIKey, cfg.Heartbeat.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func run(ctx context.Context, configPath string) error {
	logging.Init("info", "console")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	policy, err := app.ParsePolicy(cfg.BackpressurePolicy)
	if err != nil {
		return err
	}
	m := metrics.New()
	state := app.NewNodeState(app.NewRegistry(), app.NewRoomManager(cfg.DefaultMaxParticipants))
	orch := app.NewOrchestrator(state, policy, m)

	sink, closeSink, err := newSink(cfg)
	if err != nil {
		return fmt.Errorf("heartbeat sink: %w", err)
	}
	defer closeSink()

	sampler := &heartbeat.Sampler{State: state, Probe: heartbeat.HostProbe{}, Interval: cfg.LoadSampleInterval}
	reporter := &heartbeat.Reporter{
		State:        state,
		Sink:         sink,
		Metrics:      m,
		Interval:     cfg.Heartbeat.Interval,
		InitialDelay: cfg.Heartbeat.InitialDelay,
	}
	go sampler.Run(ctx)
	go reporter.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, orch, m),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("node_id", cfg.NodeID).Str("version", Version).Msg("node started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Int("connections", state.Registry.ConnectionCount()).Msg("Server exited gracefully")
	return nil
}
