package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"funding-intel/internal/alerting"
	"funding-intel/internal/ingest"
	"funding-intel/internal/scheduler"
	"funding-intel/internal/scoring"
)

// Run executes the standalone loop: ingest, score, and dispatch on
// every scheduler tick, guarded by a Postgres advisory lock so a
// second process sharing the database skips the tick instead of
// double-ingesting.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	runner := ingest.NewRunner(a.newAdapters(), store, a.Config.Ingest.TargetPairs, a.Logger)
	engine := scoring.NewEngine(store, a.Config.Scoring.Window, a.Logger)
	email, messaging := a.newNotifiers()
	dispatcher := alerting.NewDispatcher(store, email, messaging, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:      a.Config.Scheduler.Interval,
		AlignToBucket: a.Config.Scheduler.AlignToBucket,
		StartupDelay:  a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	lockKey := a.Config.Scheduler.AdvisoryLockKey

	a.Logger.Info().Msg("starting pipeline loop")
	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		unlock, acquired, err := store.TryAdvisoryLock(ctx, lockKey)
		if err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
		if !acquired {
			a.Logger.Info().Msg("another process holds the pipeline lock, skipping tick")
			return nil
		}
		defer unlock()

		if err := runner.Run(ctx); err != nil {
			return fmt.Errorf("ingest stage: %w", err)
		}
		if err := engine.Run(ctx); err != nil {
			return fmt.Errorf("score stage: %w", err)
		}
		if err := dispatcher.Run(ctx); err != nil {
			return fmt.Errorf("alert stage: %w", err)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pipeline loop terminated with error")
		return err
	}

	a.Logger.Info().Msg("pipeline loop stopped")
	return nil
}
