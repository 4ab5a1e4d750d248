// Package exchange contains one adapter per trading venue. Each adapter
// fetches the venue's funding-rate endpoints and emits normalized
// storage.FundingRate records. Venue quirks (instrument naming, relative
// funding intervals, split mark-price endpoints) stay inside the adapter
// that owns them.
package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"funding-intel/internal/storage"
)

// Adapter is the per-venue fetch capability. targetPairs empty means
// "all available". Adapters are stateless across invocations except for
// construction-time configuration.
type Adapter interface {
	Name() string
	FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error)
}

// Proxy routes one venue's calls through the authenticated relay instead
// of the venue's public base URL.
type Proxy struct {
	BaseURL string
	Key     string
}

func (p Proxy) enabled() bool {
	return p.BaseURL != "" && p.Key != ""
}

// ValidationError marks an upstream payload whose shape was unexpected.
// It aborts the whole venue fetch; single malformed entries inside an
// otherwise valid batch are skipped instead.
type ValidationError struct {
	Exchange string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s payload invalid: %s: %v", e.Exchange, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s payload invalid: %s", e.Exchange, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// wantPair reports whether pair should be emitted for targetPairs.
func wantPair(targetPairs []string, pair string) bool {
	if len(targetPairs) == 0 {
		return true
	}
	for _, target := range targetPairs {
		if target == pair {
			return true
		}
	}
	return false
}

// pairsOrDefault substitutes the venue's default set when targetPairs
// is empty and the venue API requires per-instrument queries.
func pairsOrDefault(targetPairs, fallback []string) []string {
	if len(targetPairs) > 0 {
		return targetPairs
	}
	return fallback
}

// parseRate converts a wire rate/price string to decimal. The boolean is
// false when the entry should be dropped (unparsable, never zero-filled).
func parseRate(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}

// flexMillis accepts a millisecond timestamp encoded as either a JSON
// number or a quoted string; venues disagree on which they send.
type flexMillis int64

func (m *flexMillis) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		*m = 0
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		float, floatErr := strconv.ParseFloat(raw, 64)
		if floatErr != nil {
			return err
		}
		value = int64(float)
	}
	*m = flexMillis(value)
	return nil
}

// msToTime converts epoch milliseconds to an absolute UTC instant.
// Zero and negative inputs yield nil (venue "unknown" sentinels).
func msToTime(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	value := time.UnixMilli(ms).UTC()
	return &value
}
