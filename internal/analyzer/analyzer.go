// Package analyzer produces ResponseAnalysis values and secondary trigger
// classifications from an LLM provider, with bounded retries and a per-call
// timeout.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/scoring"
	"github.com/MikeSquared-Agency/rapport/internal/trigger"
)

// ErrNoJSON is returned when the model output holds no JSON object.
var ErrNoJSON = errors.New("no JSON object in model output")

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxTries  = 3
	DefaultMaxTokens = 1024
)

type Config struct {
	// Timeout bounds a whole call including retries.
	Timeout   time.Duration
	MaxTries  uint
	MaxTokens int
}

type Analyzer struct {
	provider   Provider
	cfg        Config
	logger     *slog.Logger
	tracer     trace.Tracer
	newBackOff func() backoff.BackOff
}

func New(provider Provider, cfg Config, logger *slog.Logger) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = DefaultMaxTries
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Analyzer{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("github.com/MikeSquared-Agency/rapport/internal/analyzer"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

// Analyze scores one exchange.
func (a *Analyzer) Analyze(ctx context.Context, ex scoring.Exchange) (scoring.ResponseAnalysis, error) {
	openConflict := ex.OpenConflict
	if openConflict == "" {
		openConflict = "none"
	}
	req := Request{
		Name:         "ResponseAnalysis",
		Instructions: fmt.Sprintf(analysisInstructions, schemaText(analysisSchema)),
		Input:        fmt.Sprintf(analysisUserPrompt, ex.Chapter, openConflict, ex.UserMessage, ex.CompanionReply),
		Schema:       analysisSchema,
		MaxTokens:    a.cfg.MaxTokens,
	}

	raw, err := a.call(ctx, "analyzer.Analyze", ex.UserID, req)
	if err != nil {
		return scoring.ResponseAnalysis{}, fmt.Errorf("analyze exchange: %w", err)
	}

	var payload analysisPayload
	if err := decode(raw, &payload); err != nil {
		return scoring.ResponseAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	return payload.toAnalysis(), nil
}

// DetectTriggers is the secondary trigger pass.
func (a *Analyzer) DetectTriggers(ctx context.Context, message string, c trigger.Context, chapter int) ([]trigger.Trigger, error) {
	recent := "(none)"
	if len(c.RecentMessages) > 0 {
		recent = "- " + strings.Join(c.RecentMessages, "\n- ")
	}
	req := Request{
		Name:         "TriggerDetection",
		Instructions: fmt.Sprintf(triggerInstructions, schemaText(triggerSchema)),
		Input:        fmt.Sprintf(triggerUserPrompt, chapter, recent, message),
		Schema:       triggerSchema,
		MaxTokens:    a.cfg.MaxTokens,
	}

	raw, err := a.call(ctx, "analyzer.DetectTriggers", "", req)
	if err != nil {
		return nil, fmt.Errorf("detect triggers: %w", err)
	}
	return parseTriggers(raw, time.Now().UTC())
}

// call runs req with exponential backoff under the overall timeout. Output
// that is not JSON counts as a retryable failure.
func (a *Analyzer) call(ctx context.Context, spanName, userID string, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	ctx, span := a.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("llm.provider", a.provider.Name()),
		attribute.String("llm.schema", req.Name),
	))
	defer span.End()

	tries := 0
	op := func() (string, error) {
		tries++
		raw, err := a.provider.Generate(ctx, req)
		if err == nil {
			raw, err = extractJSON(raw)
		}
		if err != nil && !retryable(err) {
			return "", backoff.Permanent(err)
		}
		return raw, err
	}

	raw, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(a.newBackOff()),
		backoff.WithMaxTries(a.cfg.MaxTries),
		backoff.WithMaxElapsedTime(a.cfg.Timeout),
		backoff.WithNotify(func(err error, wait time.Duration) {
			a.logger.Warn("llm call failed, retrying",
				"provider", a.provider.Name(),
				"user_id", userID,
				"wait", wait,
				"error", err,
			)
		}),
	)
	span.SetAttributes(attribute.Int("llm.tries", tries))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return raw, nil
}

// extractJSON returns the JSON object in text, tolerating prose or code
// fences around it.
func extractJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return "", ErrNoJSON
	}
	if gjson.Valid(s) && gjson.Parse(s).IsObject() {
		return s, nil
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return "", ErrNoJSON
	}
	sub := s[start : end+1]
	if !gjson.Valid(sub) {
		return "", fmt.Errorf("%w: invalid object (len=%d)", ErrNoJSON, len(sub))
	}
	return sub, nil
}

func decode(raw string, v any) error {
	return json.Unmarshal([]byte(raw), v)
}

func parseTriggers(raw string, now time.Time) ([]trigger.Trigger, error) {
	list := gjson.Get(raw, "triggers")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: missing triggers array", ErrNoJSON)
	}
	var out []trigger.Trigger
	list.ForEach(func(_, v gjson.Result) bool {
		t := emotion.TriggerType(strings.ToLower(v.Get("type").String()))
		if !t.Valid() {
			return true
		}
		var snippets []string
		if ev := strings.TrimSpace(v.Get("evidence").String()); ev != "" {
			snippets = append(snippets, ev)
		}
		out = append(out, trigger.New(t, v.Get("severity").Float(), now, map[string]any{"source": "llm"}, snippets...))
		return true
	})
	return out, nil
}
