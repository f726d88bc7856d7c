package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"studio/internal/app"
	"studio/internal/infra"
	"studio/internal/orchestrator"
)

const sweepBatch = 100

type sweeper struct {
	orch     *orchestrator.Orchestrator
	logger   infra.Logger
	maxAge   time.Duration
	interval time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build application")
	}
	defer container.Close()

	w := &sweeper{
		orch:     container.Orchestrator,
		logger:   logger,
		maxAge:   cfg.StaleJobAge,
		interval: cfg.SweepInterval,
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run fails processing jobs older than maxAge once per interval until ctx is
// cancelled.
func (w *sweeper) Run(ctx context.Context) error {
	interval := w.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	w.logger.Info().Dur("interval", interval).Dur("max_age", w.maxAge).Msg("worker: started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *sweeper) sweep(ctx context.Context) {
	n, err := w.orch.ReconcileStale(ctx, w.maxAge, sweepBatch)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("worker: reconcile failed")
		}
		return
	}
	if n > 0 {
		w.logger.Info().Int("reconciled", n).Msg("worker: stale jobs failed")
	}
}
