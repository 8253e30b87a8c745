package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/banprobe-project/banprobe/internal/api"
	"github.com/banprobe-project/banprobe/internal/connector"
	"github.com/banprobe-project/banprobe/internal/events"
	"github.com/banprobe-project/banprobe/internal/scheduler"
	"github.com/banprobe-project/banprobe/internal/telemetry"
	"github.com/banprobe-project/banprobe/internal/util"
)

const (
	bindRetries    = 5
	bindRetryDelay = 3 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local REST API with history, telemetry and notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("version", AppVersion).
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Int("threads", sysInfo.CPUThreads).
		Msg("starting banprobe server")

	if err := a.openHistory(); err != nil {
		return err
	}
	chk, resolver := a.newChecker()

	deps := api.Deps{Checker: chk, Version: AppVersion}
	var pruner scheduler.Pruner
	if a.history != nil {
		deps.History = a.history
		pruner = a.history
	}

	apiServer := api.NewServer(a.cfg, a.bus, deps)
	sched := scheduler.NewScheduler(a.cfg, a.bus, pruner, resolver)
	connector.NewDiscordNotifier(a.cfg, a.bus)

	mqttHandler, err := telemetry.NewMQTTHandler(a.cfg, a.bus, AppVersion)
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
		mqttHandler = nil
	case err != nil:
		log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		mqttHandler = nil
	}

	log.Debug().
		Int("completed_handlers", a.bus.HandlerCount(events.EventCheckCompleted)).
		Bool("mqtt", mqttHandler != nil).
		Msg("components wired")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return startWithRetry(gctx, "API server", apiServer.Start, bindRetries)
	})
	g.Go(func() error {
		return sched.Start(gctx)
	})
	if mqttHandler != nil {
		g.Go(func() error {
			// Telemetry is optional; a broker outage does not stop the server.
			if err := mqttHandler.Start(gctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
			return nil
		})
	}

	err = g.Wait()

	if shutdownErr := a.bus.EmitSync(context.Background(), events.New(events.EventShutdown, "main", nil)); shutdownErr != nil {
		log.Debug().Err(shutdownErr).Msg("shutdown handler failed")
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("server stopped with error")
		return err
	}

	log.Info().Msg("banprobe server stopped")
	return nil
}

// startWithRetry starts a listener, retrying bind failures a few times so a
// restart does not fail while the previous process still holds the port.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).
				Msgf("start failed, retrying in %s", bindRetryDelay)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(bindRetryDelay):
			}
		}
	}
	return lastErr
}
