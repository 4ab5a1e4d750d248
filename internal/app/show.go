package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent scored opportunities.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	opportunities, err := store.ListRecentOpportunities(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(opportunities) == 0 {
		fmt.Fprintln(os.Stdout, "no opportunities found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Exchange\tPair\tRate\tNet\tPersistence\tVolatility\tTrust\tRisk\tUpdated (UTC)")

	for _, opportunity := range opportunities {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%.4f\t%.4f\t%.2f\t%s\t%s\n",
			opportunity.Exchange,
			opportunity.Pair,
			opportunity.CurrentFundingRate.StringFixed(6),
			opportunity.NetRateAfterFees.StringFixed(6),
			opportunity.PersistenceScore,
			opportunity.VolatilityScore,
			opportunity.ExchangeTrust,
			opportunity.Risk,
			opportunity.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}
