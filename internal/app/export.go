package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"funding-intel/internal/storage"
)

// Export renders one venue/pair funding-rate history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Exchange == "" || opts.Pair == "" {
		return errors.New("--exchange and --pair are required")
	}

	if opts.MaxPoints <= 0 {
		opts.MaxPoints = a.Config.Export.MaxDataPoints
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -7)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListFundingRatesBetween(ctx, opts.Exchange, opts.Pair, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no funding rates found for export window")
		return nil
	}

	downsampled := downsampleRates(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting funding rates")

	if opts.CSVPath != "" {
		if err := writeRatesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRatesPNG(opts.PNGPath, opts.Exchange, opts.Pair, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRates(records []storage.FundingRate, max int) []storage.FundingRate {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.FundingRate, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRatesCSV(path string, records []storage.FundingRate) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"fetched_at", "exchange", "pair", "funding_rate", "mark_price", "next_funding_time"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		next := ""
		if record.NextFundingTime != nil {
			next = record.NextFundingTime.UTC().Format(time.RFC3339)
		}
		row := []string{
			record.FetchedAt.UTC().Format(time.RFC3339),
			record.Exchange,
			record.Pair,
			record.FundingRate.String(),
			record.MarkPrice.String(),
			next,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRatesPNG(path, exchangeName, pair string, records []storage.FundingRate) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	ratePct := make([]float64, len(records))
	netPct := make([]float64, len(records))

	for i, record := range records {
		x[i] = record.FetchedAt
		rate := record.FundingRate.InexactFloat64() * 100
		ratePct[i] = rate
		netPct[i] = rate * 0.95
	}

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Title:  exchangeName + " " + pair + " funding rate",
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Funding rate (%)",
			ValueFormatter: pctFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Rate %",
				XValues: x,
				YValues: ratePct,
			},
			chart.TimeSeries{
				Name:    "Net % (after fees)",
				XValues: x,
				YValues: netPct,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
