// Package replay feeds recorded interactions through the service, for
// rebuilding relationship state after a migration or seeding test users.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/service"
)

// saveEvery is how many applied lines pass between state checkpoints.
const saveEvery = 100

// Handler processes one interaction. *service.Service implements it.
type Handler interface {
	HandleInteraction(ctx context.Context, req service.Request) (service.Result, error)
}

// Config holds the replay command configuration.
type Config struct {
	Files     []string
	Since     time.Time
	Until     time.Time
	DryRun    bool
	StatePath string
	// UserID, when set, replays only that user's lines.
	UserID string
}

// Summary reports one run.
type Summary struct {
	Files   int `json:"files"`
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	// Breakups counts interactions that ended a relationship.
	Breakups int `json:"breakups"`
}

// Runner orchestrates the replay process.
type Runner struct {
	cfg     Config
	handler Handler
	logger  *slog.Logger
}

// NewRunner creates a replay runner.
func NewRunner(cfg Config, h Handler, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, handler: h, logger: logger}
}

// Run replays every configured file in path order. Lines already applied
// by an earlier run with the same state file are skipped.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return Summary{}, fmt.Errorf("load state: %w", err)
	}

	files := append([]string(nil), r.cfg.Files...)
	sort.Strings(files)

	var sum Summary
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, r.checkpoint(state, err)
		}
		if err := r.runFile(ctx, path, state, &sum); err != nil {
			return sum, r.checkpoint(state, err)
		}
		sum.Files++
	}

	r.logger.Info("replay complete",
		"files", sum.Files,
		"applied", sum.Applied,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"dry_run", r.cfg.DryRun,
	)
	return sum, r.checkpoint(state, nil)
}

func (r *Runner) runFile(ctx context.Context, path string, state *State, sum *Summary) error {
	lines, bad, err := ParseFile(path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, e := range bad {
		r.logger.Warn("skipping malformed line", "error", e)
		state.AddError(e.Error())
		sum.Failed++
	}

	done := state.Done(path)
	sinceSave := 0
	for _, line := range lines {
		if line.No <= done || !r.selected(line.Request) {
			sum.Skipped++
			continue
		}
		if r.cfg.DryRun {
			sum.Applied++
			continue
		}

		res, err := r.handler.HandleInteraction(ctx, line.Request)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("interaction failed", "path", path, "line", line.No, "user_id", line.Request.UserID, "error", err)
			state.AddError(fmt.Sprintf("%s:%d: %v", path, line.No, err))
			sum.Failed++
		} else {
			sum.Applied++
			state.Interactions++
			if res.Breakup != nil {
				sum.Breakups++
			}
		}
		state.MarkLine(path, line.No)

		sinceSave++
		if sinceSave >= saveEvery {
			if err := state.Save(); err != nil {
				return fmt.Errorf("save state: %w", err)
			}
			sinceSave = 0
		}
	}
	return nil
}

func (r *Runner) selected(req service.Request) bool {
	if r.cfg.UserID != "" && req.UserID != r.cfg.UserID {
		return false
	}
	if req.Timestamp.IsZero() {
		return r.cfg.Since.IsZero() && r.cfg.Until.IsZero()
	}
	if !r.cfg.Since.IsZero() && req.Timestamp.Before(r.cfg.Since) {
		return false
	}
	if !r.cfg.Until.IsZero() && !req.Timestamp.Before(r.cfg.Until) {
		return false
	}
	return true
}

func (r *Runner) checkpoint(state *State, runErr error) error {
	if r.cfg.DryRun {
		return runErr
	}
	if err := state.Save(); err != nil {
		if runErr != nil {
			return fmt.Errorf("%w (save state: %v)", runErr, err)
		}
		return fmt.Errorf("save state: %w", err)
	}
	return runErr
}
