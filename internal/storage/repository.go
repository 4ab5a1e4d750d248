package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertFundingRateSQL = `INSERT INTO funding_rates (
        exchange,
        pair,
        funding_rate,
        mark_price,
        next_funding_time,
        fetched_at
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	listFundingRatesSinceSQL = `SELECT
        exchange,
        pair,
        funding_rate,
        mark_price,
        next_funding_time,
        fetched_at
    FROM funding_rates
    WHERE fetched_at >= $1
    ORDER BY fetched_at;`

	listFundingRatesBetweenSQL = `SELECT
        exchange,
        pair,
        funding_rate,
        mark_price,
        next_funding_time,
        fetched_at
    FROM funding_rates
    WHERE exchange = $1
      AND pair = $2
      AND fetched_at >= $3
      AND fetched_at < $4
    ORDER BY fetched_at;`

	insertIngestionMetricSQL = `INSERT INTO ingestion_metrics (
        exchange,
        latency_ms,
        status,
        metadata
    ) VALUES ($1,$2,$3,$4);`

	upsertOpportunitySQL = `INSERT INTO opportunities (
        exchange,
        pair,
        current_funding_rate,
        net_rate_after_fees,
        persistence_score,
        volatility_score,
        exchange_trust,
        risk,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    )
    ON CONFLICT (exchange, pair) DO UPDATE
    SET
        current_funding_rate = EXCLUDED.current_funding_rate,
        net_rate_after_fees  = EXCLUDED.net_rate_after_fees,
        persistence_score    = EXCLUDED.persistence_score,
        volatility_score     = EXCLUDED.volatility_score,
        exchange_trust       = EXCLUDED.exchange_trust,
        risk                 = EXCLUDED.risk,
        updated_at           = EXCLUDED.updated_at;`

	opportunityColumns = `exchange,
        pair,
        current_funding_rate,
        net_rate_after_fees,
        persistence_score,
        volatility_score,
        exchange_trust,
        risk,
        spread_vs_spot,
        capital_required,
        updated_at`

	listRecentOpportunitiesSQL = `SELECT ` + opportunityColumns + `
    FROM opportunities
    ORDER BY net_rate_after_fees DESC
    LIMIT $1;`

	listActiveAlertRulesSQL = `SELECT
        id,
        COALESCE(pair, ''),
        COALESCE(exchange, ''),
        threshold_rate,
        channel,
        status,
        COALESCE(user_id, ''),
        last_triggered_at
    FROM alerts
    WHERE status = 'active'
    ORDER BY id;`

	insertAlertEventSQL = `INSERT INTO alert_events (
        alert_id,
        channel,
        delivery_status,
        message,
        payload
    ) VALUES ($1,$2,$3,$4,$5);`

	markAlertTriggeredSQL = `UPDATE alerts
    SET last_triggered_at = $2
    WHERE id = $1;`

	getUserSettingsSQL = `SELECT
        user_id,
        COALESCE(email, ''),
        COALESCE(telegram_chat_id, ''),
        COALESCE(alert_channel, '')
    FROM user_settings
    WHERE user_id = $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// FundingRateStore defines persistence for normalized venue observations.
type FundingRateStore interface {
	InsertFundingRates(ctx context.Context, records []FundingRate) error
	ListFundingRatesSince(ctx context.Context, since time.Time) ([]FundingRate, error)
	ListFundingRatesBetween(ctx context.Context, exchange, pair string, from, to time.Time) ([]FundingRate, error)
}

// MetricStore records per-adapter operational metrics.
type MetricStore interface {
	InsertIngestionMetric(ctx context.Context, metric IngestionMetric) error
}

// OpportunityStore defines scored-opportunity persistence.
type OpportunityStore interface {
	UpsertOpportunities(ctx context.Context, rows []Opportunity) error
	TopOpportunity(ctx context.Context, pair, exchange string) (*Opportunity, error)
	ListRecentOpportunities(ctx context.Context, limit int) ([]Opportunity, error)
}

// AlertStore defines alert rule reads and delivery bookkeeping.
type AlertStore interface {
	ListActiveAlertRules(ctx context.Context) ([]AlertRule, error)
	InsertAlertEvent(ctx context.Context, event AlertEvent) error
	MarkAlertTriggered(ctx context.Context, alertID int64, at time.Time) error
}

// UserSettingsStore resolves per-user contact info during dispatch.
type UserSettingsStore interface {
	GetUserSettings(ctx context.Context, userID string) (*UserSettings, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to all pipeline tables.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ FundingRateStore  = (*Store)(nil)
	_ MetricStore       = (*Store)(nil)
	_ OpportunityStore  = (*Store)(nil)
	_ AlertStore        = (*Store)(nil)
	_ UserSettingsStore = (*Store)(nil)
	_ AdvisoryLocker    = (*Store)(nil)
)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertFundingRates persists one adapter batch as a single write.
func (s *Store) InsertFundingRates(ctx context.Context, records []FundingRate) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, record := range records {
		var next interface{}
		if record.NextFundingTime != nil {
			next = *record.NextFundingTime
		}
		batch.Queue(insertFundingRateSQL,
			record.Exchange,
			record.Pair,
			record.FundingRate.String(),
			record.MarkPrice.String(),
			next,
			record.FetchedAt,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("insert funding rates: %w", execErr)
		}
	}
	return nil
}

// ListFundingRatesSince lists records with fetched_at inside the trailing window.
func (s *Store) ListFundingRatesSince(ctx context.Context, since time.Time) ([]FundingRate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFundingRatesSinceSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list funding rates since: %w", queryErr)
	}
	defer rows.Close()

	return collectFundingRates(rows)
}

// ListFundingRatesBetween lists one (exchange, pair)'s records inside [from, to).
func (s *Store) ListFundingRatesBetween(ctx context.Context, exchange, pair string, from, to time.Time) ([]FundingRate, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFundingRatesBetweenSQL, exchange, pair, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list funding rates between: %w", queryErr)
	}
	defer rows.Close()

	return collectFundingRates(rows)
}

func collectFundingRates(rows pgx.Rows) ([]FundingRate, error) {
	records := make([]FundingRate, 0)
	for rows.Next() {
		record, scanErr := scanFundingRate(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanFundingRate(rows pgx.Rows) (FundingRate, error) {
	var (
		record  FundingRate
		rateStr string
		markStr string
		next    sql.NullTime
	)

	if err := rows.Scan(
		&record.Exchange,
		&record.Pair,
		&rateStr,
		&markStr,
		&next,
		&record.FetchedAt,
	); err != nil {
		return FundingRate{}, err
	}

	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return FundingRate{}, fmt.Errorf("parse funding rate: %w", err)
	}
	mark, err := decimal.NewFromString(markStr)
	if err != nil {
		return FundingRate{}, fmt.Errorf("parse mark price: %w", err)
	}

	record.FundingRate = rate
	record.MarkPrice = mark
	if next.Valid {
		value := next.Time
		record.NextFundingTime = &value
	}
	return record, nil
}

// InsertIngestionMetric appends one adapter invocation metric.
func (s *Store) InsertIngestionMetric(ctx context.Context, metric IngestionMetric) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	metadata := metric.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload, marshalErr := json.Marshal(metadata)
	if marshalErr != nil {
		return fmt.Errorf("marshal metric metadata: %w", marshalErr)
	}

	if _, execErr := pool.Exec(ctx, insertIngestionMetricSQL,
		metric.Exchange,
		metric.LatencyMs,
		metric.Status,
		payload,
	); execErr != nil {
		return fmt.Errorf("insert ingestion metric: %w", execErr)
	}
	return nil
}

// UpsertOpportunities inserts or replaces scored rows keyed by (exchange, pair).
// spread_vs_spot and capital_required are owned by an external writer and
// preserved on conflict.
func (s *Store) UpsertOpportunities(ctx context.Context, opportunities []Opportunity) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(opportunities) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, row := range opportunities {
		batch.Queue(upsertOpportunitySQL,
			row.Exchange,
			row.Pair,
			row.CurrentFundingRate.String(),
			row.NetRateAfterFees.String(),
			row.PersistenceScore,
			row.VolatilityScore,
			row.ExchangeTrust,
			row.Risk,
			row.UpdatedAt,
		)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	for range opportunities {
		if _, execErr := results.Exec(); execErr != nil {
			return fmt.Errorf("upsert opportunities: %w", execErr)
		}
	}
	return nil
}

// TopOpportunity returns the highest net-rate opportunity matching the
// optional pair/exchange filters; nil when nothing matches.
func (s *Store) TopOpportunity(ctx context.Context, pair, exchange string) (*Opportunity, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + opportunityColumns + ` FROM opportunities`
	args := make([]interface{}, 0, 2)
	where := ""
	if pair != "" {
		args = append(args, pair)
		where = fmt.Sprintf(" WHERE pair = $%d", len(args))
	}
	if exchange != "" {
		args = append(args, exchange)
		clause := fmt.Sprintf("exchange = $%d", len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}
	query += where + " ORDER BY net_rate_after_fees DESC LIMIT 1;"

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("top opportunity: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	opportunity, scanErr := scanOpportunity(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &opportunity, rows.Err()
}

// ListRecentOpportunities lists scored rows ordered by net rate.
func (s *Store) ListRecentOpportunities(ctx context.Context, limit int) ([]Opportunity, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentOpportunitiesSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent opportunities: %w", queryErr)
	}
	defer rows.Close()

	opportunities := make([]Opportunity, 0, limit)
	for rows.Next() {
		opportunity, scanErr := scanOpportunity(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		opportunities = append(opportunities, opportunity)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return opportunities, nil
}

func scanOpportunity(rows pgx.Rows) (Opportunity, error) {
	var (
		opportunity Opportunity
		rateStr     string
		netStr      string
		spread      sql.NullString
		capital     sql.NullString
	)

	if err := rows.Scan(
		&opportunity.Exchange,
		&opportunity.Pair,
		&rateStr,
		&netStr,
		&opportunity.PersistenceScore,
		&opportunity.VolatilityScore,
		&opportunity.ExchangeTrust,
		&opportunity.Risk,
		&spread,
		&capital,
		&opportunity.UpdatedAt,
	); err != nil {
		return Opportunity{}, err
	}

	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return Opportunity{}, fmt.Errorf("parse current funding rate: %w", err)
	}
	net, err := decimal.NewFromString(netStr)
	if err != nil {
		return Opportunity{}, fmt.Errorf("parse net rate: %w", err)
	}
	opportunity.CurrentFundingRate = rate
	opportunity.NetRateAfterFees = net

	if spread.Valid {
		value, convErr := decimal.NewFromString(spread.String)
		if convErr != nil {
			return Opportunity{}, fmt.Errorf("parse spread vs spot: %w", convErr)
		}
		opportunity.SpreadVsSpot = &value
	}
	if capital.Valid {
		value, convErr := decimal.NewFromString(capital.String)
		if convErr != nil {
			return Opportunity{}, fmt.Errorf("parse capital required: %w", convErr)
		}
		opportunity.CapitalRequired = &value
	}

	return opportunity, nil
}

// ListActiveAlertRules lists rules with status = active.
func (s *Store) ListActiveAlertRules(ctx context.Context) ([]AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveAlertRulesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active alert rules: %w", queryErr)
	}
	defer rows.Close()

	rules := make([]AlertRule, 0)
	for rows.Next() {
		var (
			rule         AlertRule
			thresholdStr string
			triggered    sql.NullTime
		)
		if err := rows.Scan(
			&rule.ID,
			&rule.Pair,
			&rule.Exchange,
			&thresholdStr,
			&rule.Channel,
			&rule.Status,
			&rule.UserID,
			&triggered,
		); err != nil {
			return nil, err
		}

		threshold, convErr := decimal.NewFromString(thresholdStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse threshold rate: %w", convErr)
		}
		rule.ThresholdRate = threshold
		if triggered.Valid {
			value := triggered.Time
			rule.LastTriggeredAt = &value
		}

		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

// InsertAlertEvent appends one dispatch outcome.
func (s *Store) InsertAlertEvent(ctx context.Context, event AlertEvent) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadBytes, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return fmt.Errorf("marshal event payload: %w", marshalErr)
	}

	if _, execErr := pool.Exec(ctx, insertAlertEventSQL,
		event.AlertID,
		event.Channel,
		event.DeliveryStatus,
		event.Message,
		payloadBytes,
	); execErr != nil {
		return fmt.Errorf("insert alert event: %w", execErr)
	}
	return nil
}

// MarkAlertTriggered updates last_triggered_at for one rule.
func (s *Store) MarkAlertTriggered(ctx context.Context, alertID int64, at time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, markAlertTriggeredSQL, alertID, at); execErr != nil {
		return fmt.Errorf("mark alert triggered: %w", execErr)
	}
	return nil
}

// GetUserSettings loads one user's contact settings; nil when absent.
func (s *Store) GetUserSettings(ctx context.Context, userID string) (*UserSettings, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, getUserSettingsSQL, userID)
	if queryErr != nil {
		return nil, fmt.Errorf("get user settings: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var settings UserSettings
	if scanErr := rows.Scan(
		&settings.UserID,
		&settings.Email,
		&settings.TelegramChatID,
		&settings.AlertChannel,
	); scanErr != nil {
		return nil, scanErr
	}
	return &settings, rows.Err()
}
