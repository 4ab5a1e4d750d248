package scoring

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funding-intel/internal/storage"
)

type memStore struct {
	records  []storage.FundingRate
	upserted [][]storage.Opportunity
	since    time.Time
}

func (m *memStore) InsertFundingRates(ctx context.Context, records []storage.FundingRate) error {
	return nil
}

func (m *memStore) ListFundingRatesSince(ctx context.Context, since time.Time) ([]storage.FundingRate, error) {
	m.since = since
	return m.records, nil
}

func (m *memStore) ListFundingRatesBetween(ctx context.Context, exchange, pair string, from, to time.Time) ([]storage.FundingRate, error) {
	return nil, nil
}

func (m *memStore) UpsertOpportunities(ctx context.Context, rows []storage.Opportunity) error {
	m.upserted = append(m.upserted, rows)
	return nil
}

func (m *memStore) TopOpportunity(ctx context.Context, pair, exchange string) (*storage.Opportunity, error) {
	return nil, nil
}

func (m *memStore) ListRecentOpportunities(ctx context.Context, limit int) ([]storage.Opportunity, error) {
	return nil, nil
}

func sample(exchangeName, pair, rate string, fetchedAt time.Time) storage.FundingRate {
	return storage.FundingRate{
		Exchange:    exchangeName,
		Pair:        pair,
		FundingRate: decimal.RequireFromString(rate),
		MarkPrice:   decimal.RequireFromString("64000"),
		FetchedAt:   fetchedAt,
	}
}

func TestScoreValues(t *testing.T) {
	tests := []struct {
		name            string
		values          []float64
		wantPersistence float64
		wantVolatility  float64
	}{
		{"single sample has zero volatility", []float64{0.0004}, 1, 0},
		{"all negative", []float64{-0.001, -0.002}, 0, 0.025},
		{"zero rate is not positive", []float64{0, 0, 0.001}, 1.0 / 3.0, 0.023570226},
		{"dispersion clamps at one", []float64{0.05, -0.05}, 0.5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			persistence, volatility := scoreValues(tt.values)
			assert.InDelta(t, tt.wantPersistence, persistence, 1e-9)
			assert.InDelta(t, tt.wantVolatility, volatility, 1e-6)
			assert.GreaterOrEqual(t, volatility, 0.0)
			assert.LessOrEqual(t, volatility, 1.0)
		})
	}
}

func TestRiskTierBoundaries(t *testing.T) {
	// composite = persistence*0.4 + (1-volatility)*0.4 + trust*0.2
	assert.Equal(t, "A", riskTier(1, 0.5, 1), "composite exactly 0.80")
	assert.Equal(t, "B", riskTier(0.9999, 0.5, 1), "composite 0.79996")
	assert.Equal(t, "B", riskTier(0.875, 1, 1), "composite exactly 0.55")
	assert.Equal(t, "C", riskTier(0.87475, 1, 1), "composite 0.5499")
	assert.Equal(t, "C", riskTier(0, 1, 0.7), "composite 0.14")
}

func TestTrustTable(t *testing.T) {
	assert.Equal(t, 0.9, trustFor("binance"))
	assert.Equal(t, 0.8, trustFor("bybit"))
	assert.Equal(t, 0.75, trustFor("okx"))
	assert.Equal(t, 0.7, trustFor("deribit")) // unlisted venues default
}

func TestEngineScoresGroupScenario(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{records: []storage.FundingRate{
		sample("binance", "BTCUSDT", "0.001", base),
		sample("binance", "BTCUSDT", "0.0012", base.Add(time.Hour)),
		sample("binance", "BTCUSDT", "-0.0005", base.Add(2*time.Hour)),
	}}

	engine := NewEngine(store, 24*time.Hour, zerolog.Nop())
	engine.now = func() time.Time { return base.Add(3 * time.Hour) }

	require.NoError(t, engine.Run(context.Background()))
	require.Len(t, store.upserted, 1)
	require.Len(t, store.upserted[0], 1)

	row := store.upserted[0][0]
	assert.Equal(t, "binance", row.Exchange)
	assert.Equal(t, "BTCUSDT", row.Pair)
	// current rate is the latest by fetch time, not the largest
	assert.True(t, row.CurrentFundingRate.Equal(decimal.RequireFromString("-0.0005")),
		"current rate %s", row.CurrentFundingRate)
	assert.True(t, row.NetRateAfterFees.Equal(decimal.RequireFromString("-0.000475")),
		"net rate %s", row.NetRateAfterFees)
	assert.InDelta(t, 0.6667, row.PersistenceScore, 1e-9)
	assert.Equal(t, 0.9, row.ExchangeTrust)
	assert.Equal(t, base.Add(3*time.Hour), row.UpdatedAt)

	// 24h trailing window
	assert.Equal(t, base.Add(3*time.Hour).Add(-24*time.Hour), store.since)
}

func TestEngineSkipsEmptyWindow(t *testing.T) {
	store := &memStore{}
	engine := NewEngine(store, 24*time.Hour, zerolog.Nop())

	require.NoError(t, engine.Run(context.Background()))
	assert.Empty(t, store.upserted)
}

func TestEngineGroupsPerExchangePair(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memStore{records: []storage.FundingRate{
		sample("binance", "BTCUSDT", "0.001", base),
		sample("bybit", "BTCUSDT", "0.002", base),
		sample("binance", "ETHUSDT", "0.003", base),
	}}

	engine := NewEngine(store, 24*time.Hour, zerolog.Nop())
	require.NoError(t, engine.Run(context.Background()))

	require.Len(t, store.upserted, 1)
	rows := store.upserted[0]
	require.Len(t, rows, 3)

	keys := make(map[string]bool)
	for _, row := range rows {
		keys[row.Exchange+":"+row.Pair] = true
	}
	assert.True(t, keys["binance:BTCUSDT"])
	assert.True(t, keys["bybit:BTCUSDT"])
	assert.True(t, keys["binance:ETHUSDT"])
}
