package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/api"
	"github.com/MikeSquared-Agency/rapport/internal/app"
	"github.com/MikeSquared-Agency/rapport/internal/config"
	"github.com/MikeSquared-Agency/rapport/internal/hermes"
	"github.com/MikeSquared-Agency/rapport/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.SlogLevel())
	logger := slog.Default()

	slog.Info("rapport starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracing, err := telemetry.Setup(ctx, "rapport", cfg.OTelEndpoint)
	if err != nil {
		slog.Error("failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, hermes.Options{
		URL:        cfg.NatsURL,
		Token:      cfg.NatsToken,
		Name:       "rapport",
		QueueGroup: hermes.DefaultQueueGroup,
	}, logger)
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer hermesClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Storage, lock, analyzer and engine
	a, err := app.Build(ctx, cfg, hermes.NewPublisher(hermesClient), logger)
	if err != nil {
		slog.Error("failed to build service", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	slog.Info("service ready", "store", a.Backend, "provider", a.Provider, "escalation_mode", a.Escalator.Mode())

	// Subscribe to analyzed interactions
	if err := hermesClient.Subscribe(hermes.SubjectInteractionAnalyzed, a.Service.HandleAnalyzed); err != nil {
		slog.Error("failed to subscribe to interaction events", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(api.Options{
		Port:     cfg.Port,
		APIToken: cfg.APIToken,
		Service:  a.Service,
		Info: map[string]string{
			"store":           a.Backend,
			"escalation_mode": string(a.Escalator.Mode()),
		},
		Checks: map[string]func() bool{"nats": hermesClient.Connected},
		Logger: logger,
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := hermesClient.Publish("swarm.agent.rapport.registered", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("rapport ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		slog.Warn("HTTP shutdown failed", "error", err)
	}
	cancel()
	slog.Info("rapport stopped")
}

func setupLogging(level slog.Level) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
