package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Port        int    `env:"RAPPORT_PORT" envDefault:"8760"`
	NatsURL     string `env:"NATS_URL" envDefault:"nats://hermes:4222"`
	NatsToken   string `env:"NATS_TOKEN"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"RAPPORT_SQLITE_PATH" envDefault:"data/rapport.db"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	LLMProvider     string `env:"RAPPORT_LLM_PROVIDER" envDefault:"anthropic"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"RAPPORT_MODEL" envDefault:"claude-sonnet-4-20250514"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	OpenAIModel     string `env:"RAPPORT_OPENAI_MODEL" envDefault:"gpt-4.1-mini"`

	AnalysisTimeout  time.Duration `env:"RAPPORT_ANALYSIS_TIMEOUT" envDefault:"30s"`
	AnalysisMaxTries uint          `env:"RAPPORT_ANALYSIS_MAX_TRIES" envDefault:"3"`
	LLMTriggers      bool          `env:"RAPPORT_LLM_TRIGGERS" envDefault:"false"`

	ScoreMultiplier float64 `env:"RAPPORT_SCORE_MULTIPLIER" envDefault:"1.0"`
	DecayRate       float64 `env:"RAPPORT_DECAY_RATE" envDefault:"0.5"`
	EscalationMode  string  `env:"RAPPORT_ESCALATION_MODE" envDefault:"temperature"`

	APIToken     string `env:"RAPPORT_API_TOKEN"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the rest of the service cannot run with.
func (c Config) Validate() error {
	switch strings.ToLower(c.LLMProvider) {
	case ProviderAnthropic, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}
	switch c.EscalationMode {
	case "temperature", "time":
	default:
		return fmt.Errorf("unknown escalation mode %q", c.EscalationMode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DecayRate < 0 {
		return fmt.Errorf("decay rate must not be negative")
	}
	if c.ScoreMultiplier <= 0 {
		return fmt.Errorf("score multiplier must be positive")
	}
	return nil
}

// Provider is the normalised LLM provider name.
func (c Config) Provider() string {
	return strings.ToLower(c.LLMProvider)
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
