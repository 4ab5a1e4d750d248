package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metric statuses written per adapter invocation.
const (
	MetricStatusSuccess = "success"
	MetricStatusEmpty   = "empty"
	MetricStatusError   = "error"
)

// Alert rule channels and statuses.
const (
	ChannelEmail     = "email"
	ChannelMessaging = "messaging"

	RuleStatusActive = "active"
	RuleStatusPaused = "paused"
)

// FundingRate is one normalized observation from one venue for one pair.
// Immutable once created; one row per adapter fetch per pair.
type FundingRate struct {
	Exchange        string
	Pair            string
	FundingRate     decimal.Decimal
	MarkPrice       decimal.Decimal
	NextFundingTime *time.Time
	FetchedAt       time.Time
}

// IngestionMetric records one adapter invocation outcome. Append-only,
// never read back by the pipeline itself.
type IngestionMetric struct {
	Exchange  string
	LatencyMs int64
	Status    string
	Metadata  map[string]any
}

// Opportunity is a scored snapshot keyed by (exchange, pair).
type Opportunity struct {
	Exchange           string
	Pair               string
	CurrentFundingRate decimal.Decimal
	NetRateAfterFees   decimal.Decimal
	PersistenceScore   float64
	VolatilityScore    float64
	ExchangeTrust      float64
	Risk               string
	SpreadVsSpot       *decimal.Decimal
	CapitalRequired    *decimal.Decimal
	UpdatedAt          time.Time
}

// AlertRule is a user-defined threshold alert. The core treats it as
// read-only except for LastTriggeredAt. Empty Pair/Exchange match any.
type AlertRule struct {
	ID              int64
	Pair            string
	Exchange        string
	ThresholdRate   decimal.Decimal
	Channel         string
	Status          string
	UserID          string
	LastTriggeredAt *time.Time
}

// AlertEvent is one append-only dispatch outcome, written exactly once
// per attempt including failed ones.
type AlertEvent struct {
	AlertID        int64
	Channel        string
	DeliveryStatus string
	Message        string
	Payload        map[string]any
	CreatedAt      time.Time
}

// UserSettings carries per-user contact info for recipient resolution.
type UserSettings struct {
	UserID         string
	Email          string
	TelegramChatID string
	AlertChannel   string
}
