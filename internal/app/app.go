// Package app assembles the service from configuration. Both binaries share
// it so a replay runs the same pipeline as the live service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MikeSquared-Agency/rapport/internal/analyzer"
	"github.com/MikeSquared-Agency/rapport/internal/anthropic"
	"github.com/MikeSquared-Agency/rapport/internal/config"
	"github.com/MikeSquared-Agency/rapport/internal/conflict"
	"github.com/MikeSquared-Agency/rapport/internal/engine"
	"github.com/MikeSquared-Agency/rapport/internal/scoring"
	"github.com/MikeSquared-Agency/rapport/internal/service"
	"github.com/MikeSquared-Agency/rapport/internal/store"
	"github.com/MikeSquared-Agency/rapport/internal/store/sqlite"
	"github.com/MikeSquared-Agency/rapport/internal/trigger"
	"github.com/MikeSquared-Agency/rapport/internal/userlock"
)

// lockMargin covers the load and save around the analysis call that runs
// inside a user's lock.
const lockMargin = 15 * time.Second

// App is a wired service and the resources behind it.
type App struct {
	Service   *service.Service
	Escalator *conflict.Escalator
	Locker    userlock.Locker
	// Backend names the repository in use: "postgres" or "sqlite".
	Backend string
	// Provider names the analyzer provider, empty when analysis is off.
	Provider string

	closers []func()
}

// Build opens storage and the lock backend and assembles the engine.
// publisher may be nil.
func Build(ctx context.Context, cfg config.Config, publisher service.EventPublisher, logger *slog.Logger) (*App, error) {
	a := &App{}

	repo, backend, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.Backend = backend
	a.closers = append(a.closers, func() { _ = repo.Close() })

	locker, err := a.openLocker(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Locker = locker

	var an *analyzer.Analyzer
	if provider := newProvider(cfg); provider != nil {
		an = analyzer.New(provider, analyzer.Config{
			Timeout:  cfg.AnalysisTimeout,
			MaxTries: cfg.AnalysisMaxTries,
		}, logger)
		a.Provider = provider.Name()
	} else {
		logger.Warn("no LLM credentials, analysis degrades to neutral unless supplied by the caller")
	}

	var source trigger.Source
	if cfg.LLMTriggers && an != nil {
		source = an
	}

	a.Escalator = conflict.NewEscalator(conflict.Mode(cfg.EscalationMode))
	opts := engine.Options{
		Detector:   trigger.NewDetector(source, logger),
		Generator:  conflict.NewGenerator(nil),
		Calculator: scoring.NewCalculator(cfg.ScoreMultiplier),
		Escalator:  a.Escalator,
		DecayRate:  cfg.DecayRate,
		Logger:     logger,
	}
	if an != nil {
		opts.Analyzer = an
	}

	a.Service = service.New(service.Options{
		Repo:      repo,
		Engine:    engine.New(opts),
		Locker:    locker,
		Publisher: publisher,
		Escalator: a.Escalator,
		DecayRate: cfg.DecayRate,
		Logger:    logger,
	})
	return a, nil
}

// Close releases everything Build opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openRepository(ctx context.Context, cfg config.Config) (store.Repository, string, error) {
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, "", err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, "", err
		}
		return db, "postgres", nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, "", fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sqlite.Open(ctx, cfg.SQLitePath)
	if err != nil {
		return nil, "", err
	}
	return db, "sqlite", nil
}

func (a *App) openLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (userlock.Locker, error) {
	if cfg.RedisURL == "" {
		return userlock.NewLocal(), nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis lock ready")
	return userlock.NewRedis(rdb, userlock.RedisOptions{TTL: lockTTL(cfg)}, logger), nil
}

// lockTTL outlasts a whole interaction, so a holder never loses its lease
// between renewals.
func lockTTL(cfg config.Config) time.Duration {
	return max(cfg.AnalysisTimeout+lockMargin, userlock.DefaultTTL)
}

func newProvider(cfg config.Config) analyzer.Provider {
	switch cfg.Provider() {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil
		}
		return analyzer.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		if cfg.AnthropicAPIKey == "" {
			return nil
		}
		return analyzer.NewAnthropicProvider(anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel))
	}
}
