// Package scoring turns the trailing funding-rate window into scored
// arbitrage opportunities, one row per (exchange, pair).
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"funding-intel/internal/storage"
)

// feeHaircut discounts the headline rate for round-trip trading costs.
// Static seed value, not computed from venue fee schedules.
var feeHaircut = decimal.RequireFromString("0.95")

// exchangeTrust weights venues by static reliability. Unlisted venues
// get defaultTrust.
var exchangeTrust = map[string]float64{
	"binance": 0.9,
	"bybit":   0.8,
	"okx":     0.75,
}

const defaultTrust = 0.7

// Store is the persistence surface the engine needs.
type Store interface {
	storage.FundingRateStore
	storage.OpportunityStore
}

// Engine computes and upserts opportunities over a rolling window.
type Engine struct {
	store  Store
	window time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine constructs the scoring engine.
func NewEngine(store Store, window time.Duration, logger zerolog.Logger) *Engine {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Engine{
		store:  store,
		window: window,
		logger: logger.With().Str("component", "scoring").Logger(),
		now:    time.Now,
	}
}

// Run loads the window, scores every observed (exchange, pair) group,
// and upserts the results. Groups with zero samples are skipped, never
// zeroed out.
func (e *Engine) Run(ctx context.Context) error {
	now := e.now().UTC()
	records, err := e.store.ListFundingRatesSince(ctx, now.Add(-e.window))
	if err != nil {
		return fmt.Errorf("load funding window: %w", err)
	}

	groups := groupRecords(records)
	if len(groups) == 0 {
		e.logger.Info().Msg("no opportunity rows computed")
		return nil
	}

	rows := make([]storage.Opportunity, 0, len(groups))
	for _, group := range groups {
		rows = append(rows, scoreGroup(group, now))
	}

	if err := e.store.UpsertOpportunities(ctx, rows); err != nil {
		return fmt.Errorf("upsert opportunities: %w", err)
	}

	e.logger.Info().Int("count", len(rows)).Msg("opportunities upserted")
	return nil
}

type group struct {
	exchange string
	pair     string
	samples  []storage.FundingRate
}

func groupRecords(records []storage.FundingRate) []group {
	index := make(map[string]*group)
	order := make([]string, 0)
	for _, record := range records {
		key := record.Exchange + ":" + record.Pair
		entry, ok := index[key]
		if !ok {
			entry = &group{exchange: record.Exchange, pair: record.Pair}
			index[key] = entry
			order = append(order, key)
		}
		entry.samples = append(entry.samples, record)
	}

	sort.Strings(order)
	groups := make([]group, 0, len(order))
	for _, key := range order {
		groups = append(groups, *index[key])
	}
	return groups
}

func scoreGroup(g group, now time.Time) storage.Opportunity {
	latest := g.samples[0]
	values := make([]float64, 0, len(g.samples))
	for _, sample := range g.samples {
		if sample.FetchedAt.After(latest.FetchedAt) {
			latest = sample
		}
		values = append(values, sample.FundingRate.InexactFloat64())
	}

	persistence, volatility := scoreValues(values)
	trust := trustFor(g.exchange)

	return storage.Opportunity{
		Exchange:           g.exchange,
		Pair:               g.pair,
		CurrentFundingRate: latest.FundingRate,
		NetRateAfterFees:   latest.FundingRate.Mul(feeHaircut),
		PersistenceScore:   round4(persistence),
		VolatilityScore:    round4(volatility),
		ExchangeTrust:      trust,
		Risk:               riskTier(persistence, volatility, trust),
		UpdatedAt:          now,
	}
}

// scoreValues computes the persistence and volatility scores for a
// non-empty rate series. Volatility uses population variance and clamps
// so any standard deviation >= 2% maps to full volatility; a single
// sample has variance 0 and scores 0.
func scoreValues(values []float64) (persistence, volatility float64) {
	n := float64(len(values))

	var sum float64
	positive := 0
	for _, value := range values {
		sum += value
		if value > 0 {
			positive++
		}
	}
	mean := sum / n

	var variance float64
	for _, value := range values {
		diff := value - mean
		variance += diff * diff
	}
	variance /= n

	volatility = math.Min(math.Sqrt(variance)*50, 1)
	persistence = float64(positive) / n
	return persistence, volatility
}

// riskTier maps the composite score to a coarse A/B/C class.
// Boundaries are exact: 0.80 is an A, 0.55 is a B.
func riskTier(persistence, volatility, trust float64) string {
	score := persistence*0.4 + (1-volatility)*0.4 + trust*0.2
	switch {
	case score >= 0.8:
		return "A"
	case score >= 0.55:
		return "B"
	default:
		return "C"
	}
}

func trustFor(exchangeName string) float64 {
	if trust, ok := exchangeTrust[exchangeName]; ok {
		return trust
	}
	return defaultTrust
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}
