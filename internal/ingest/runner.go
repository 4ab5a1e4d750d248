// Package ingest runs every exchange adapter once and persists whatever
// each of them returns. Venue failures are isolated: a dead upstream
// costs its own records and nothing else.
package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"funding-intel/internal/exchange"
	"funding-intel/internal/storage"
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	storage.FundingRateStore
	storage.MetricStore
}

// Runner drives one ingestion pass over all adapters.
type Runner struct {
	adapters    []exchange.Adapter
	store       Store
	targetPairs []string
	logger      zerolog.Logger
	now         func() time.Time
}

// NewRunner constructs the orchestrator.
func NewRunner(adapters []exchange.Adapter, store Store, targetPairs []string, logger zerolog.Logger) *Runner {
	return &Runner{
		adapters:    adapters,
		store:       store,
		targetPairs: targetPairs,
		logger:      logger.With().Str("component", "ingest").Logger(),
		now:         time.Now,
	}
}

// Run invokes each adapter sequentially. Sequential keeps latency
// attribution and failure isolation deterministic; one venue erroring
// never aborts the pass. Run itself only fails when the run cannot
// start at all.
func (r *Runner) Run(ctx context.Context) error {
	for _, adapter := range r.adapters {
		r.runAdapter(ctx, adapter)
	}
	return nil
}

func (r *Runner) runAdapter(ctx context.Context, adapter exchange.Adapter) {
	started := r.now()
	records, err := adapter.FetchRates(ctx, r.targetPairs)
	latency := r.now().Sub(started).Milliseconds()

	if err != nil {
		r.logger.Error().Err(err).Str("exchange", adapter.Name()).Msg("adapter failed")
		r.recordMetric(ctx, adapter.Name(), latency, storage.MetricStatusError, map[string]any{
			"message": err.Error(),
		})
		return
	}

	if len(records) == 0 {
		r.logger.Warn().Str("exchange", adapter.Name()).Msg("no records returned")
		r.recordMetric(ctx, adapter.Name(), latency, storage.MetricStatusEmpty, map[string]any{})
		return
	}

	if err := r.store.InsertFundingRates(ctx, records); err != nil {
		r.logger.Error().Err(err).Str("exchange", adapter.Name()).Msg("failed to persist batch")
		r.recordMetric(ctx, adapter.Name(), latency, storage.MetricStatusError, map[string]any{
			"message": err.Error(),
		})
		return
	}

	r.logger.Info().Str("exchange", adapter.Name()).Int("count", len(records)).Msg("batch inserted")
	r.recordMetric(ctx, adapter.Name(), latency, storage.MetricStatusSuccess, map[string]any{
		"count": len(records),
	})
}

func (r *Runner) recordMetric(ctx context.Context, exchangeName string, latencyMs int64, status string, metadata map[string]any) {
	if latencyMs < 0 {
		latencyMs = 0
	}
	metric := storage.IngestionMetric{
		Exchange:  exchangeName,
		LatencyMs: latencyMs,
		Status:    status,
		Metadata:  metadata,
	}
	if err := r.store.InsertIngestionMetric(ctx, metric); err != nil {
		r.logger.Error().Err(err).Str("exchange", exchangeName).Msg("failed to record metric")
	}
}
