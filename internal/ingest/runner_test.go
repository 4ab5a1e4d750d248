package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funding-intel/internal/exchange"
	"funding-intel/internal/storage"
)

type stubAdapter struct {
	name    string
	records []storage.FundingRate
	err     error
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error) {
	return a.records, a.err
}

type memStore struct {
	batches   [][]storage.FundingRate
	metrics   []storage.IngestionMetric
	insertErr error
}

func (m *memStore) InsertFundingRates(ctx context.Context, records []storage.FundingRate) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.batches = append(m.batches, records)
	return nil
}

func (m *memStore) ListFundingRatesSince(ctx context.Context, since time.Time) ([]storage.FundingRate, error) {
	return nil, nil
}

func (m *memStore) ListFundingRatesBetween(ctx context.Context, exchange, pair string, from, to time.Time) ([]storage.FundingRate, error) {
	return nil, nil
}

func (m *memStore) InsertIngestionMetric(ctx context.Context, metric storage.IngestionMetric) error {
	m.metrics = append(m.metrics, metric)
	return nil
}

func record(exchangeName, pair string) storage.FundingRate {
	return storage.FundingRate{
		Exchange:    exchangeName,
		Pair:        pair,
		FundingRate: decimal.RequireFromString("0.0001"),
		MarkPrice:   decimal.RequireFromString("64000"),
		FetchedAt:   time.Now().UTC(),
	}
}

func TestRunIsolatesVenueFailures(t *testing.T) {
	store := &memStore{}
	adapters := []exchange.Adapter{
		&stubAdapter{name: "binance", records: []storage.FundingRate{record("binance", "BTCUSDT")}},
		&stubAdapter{name: "bybit", err: errors.New("connection refused")},
		&stubAdapter{name: "okx", records: []storage.FundingRate{record("okx", "BTCUSDT"), record("okx", "ETHUSDT")}},
	}

	runner := NewRunner(adapters, store, []string{"BTCUSDT", "ETHUSDT"}, zerolog.Nop())
	require.NoError(t, runner.Run(context.Background()))

	// bybit failing must not block binance or okx
	require.Len(t, store.batches, 2)
	assert.Equal(t, "binance", store.batches[0][0].Exchange)
	assert.Equal(t, "okx", store.batches[1][0].Exchange)

	require.Len(t, store.metrics, 3)
	assert.Equal(t, storage.MetricStatusSuccess, store.metrics[0].Status)
	assert.Equal(t, storage.MetricStatusError, store.metrics[1].Status)
	assert.Equal(t, "connection refused", store.metrics[1].Metadata["message"])
	assert.Equal(t, storage.MetricStatusSuccess, store.metrics[2].Status)
	assert.Equal(t, 2, store.metrics[2].Metadata["count"])
}

func TestRunEmptyResultIsNotAnError(t *testing.T) {
	store := &memStore{}
	runner := NewRunner([]exchange.Adapter{&stubAdapter{name: "deribit"}}, store, nil, zerolog.Nop())

	require.NoError(t, runner.Run(context.Background()))
	require.Empty(t, store.batches)
	require.Len(t, store.metrics, 1)
	assert.Equal(t, storage.MetricStatusEmpty, store.metrics[0].Status)
}

func TestRunStorageFailureIsVenueLocal(t *testing.T) {
	store := &memStore{insertErr: errors.New("pool exhausted")}
	adapters := []exchange.Adapter{
		&stubAdapter{name: "binance", records: []storage.FundingRate{record("binance", "BTCUSDT")}},
		&stubAdapter{name: "gate", records: []storage.FundingRate{record("gate", "BTCUSDT")}},
	}

	runner := NewRunner(adapters, store, nil, zerolog.Nop())
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, store.metrics, 2)
	for _, metric := range store.metrics {
		assert.Equal(t, storage.MetricStatusError, metric.Status)
		assert.Equal(t, "pool exhausted", metric.Metadata["message"])
	}
}

func TestRunMetricLatencyNonNegative(t *testing.T) {
	store := &memStore{}
	runner := NewRunner([]exchange.Adapter{&stubAdapter{name: "htx", records: []storage.FundingRate{record("htx", "BTCUSDT")}}}, store, nil, zerolog.Nop())

	require.NoError(t, runner.Run(context.Background()))
	require.Len(t, store.metrics, 1)
	assert.GreaterOrEqual(t, store.metrics[0].LatencyMs, int64(0))
}
