package app

import (
	"context"
)

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	applied, err := store.ApplyMigrations(ctx, a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("applied", applied).Msg("migrations complete")
	return nil
}
