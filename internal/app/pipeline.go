package app

import (
	"context"

	"funding-intel/internal/alerting"
	"funding-intel/internal/ingest"
	"funding-intel/internal/scoring"
)

// Ingest runs one collection pass over all venue adapters.
func (a *App) Ingest(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	runner := ingest.NewRunner(a.newAdapters(), store, a.Config.Ingest.TargetPairs, a.Logger)
	return runner.Run(ctx)
}

// Score recomputes the opportunity table from the trailing window.
func (a *App) Score(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	engine := scoring.NewEngine(store, a.Config.Scoring.Window, a.Logger)
	return engine.Run(ctx)
}

// Alerts evaluates active rules and dispatches fired alerts.
func (a *App) Alerts(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	email, messaging := a.newNotifiers()
	dispatcher := alerting.NewDispatcher(store, email, messaging, a.Logger)
	return dispatcher.Run(ctx)
}
