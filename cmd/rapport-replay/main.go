// Command rapport-replay feeds a JSONL log of interactions through the
// relationship pipeline, resuming where an earlier run stopped.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/rapport/internal/app"
	"github.com/MikeSquared-Agency/rapport/internal/config"
	"github.com/MikeSquared-Agency/rapport/internal/replay"
)

func main() {
	var (
		since, until string
		rcfg         replay.Config
	)
	flag.StringVar(&since, "since", "", "skip interactions before this RFC3339 time")
	flag.StringVar(&until, "until", "", "skip interactions at or after this RFC3339 time")
	flag.StringVar(&rcfg.UserID, "user", "", "replay only this user")
	flag.StringVar(&rcfg.StatePath, "state", "data/replay-state.json", "progress file (empty disables resume)")
	flag.BoolVar(&rcfg.DryRun, "dry-run", false, "count interactions without applying them")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] file.jsonl...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	rcfg.Files = flag.Args()
	if len(rcfg.Files) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	var err error
	if rcfg.Since, err = parseTime(since); err != nil {
		exitf("invalid -since: %v", err)
	}
	if rcfg.Until, err = parseTime(until); err != nil {
		exitf("invalid -until: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		exitf("invalid configuration: %v", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Replays do not publish events.
	a, err := app.Build(ctx, cfg, nil, logger)
	if err != nil {
		exitf("build service: %v", err)
	}
	defer a.Close()

	sum, runErr := replay.NewRunner(rcfg, a.Service, logger).Run(ctx)
	_ = json.NewEncoder(os.Stdout).Encode(sum)
	if runErr != nil {
		a.Close()
		exitf("replay failed: %v", runErr)
	}
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
