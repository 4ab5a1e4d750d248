package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"funding-intel/internal/storage"
)

func TestDownsampleRates(t *testing.T) {
	records := make([]storage.FundingRate, 10)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range records {
		records[i] = storage.FundingRate{
			Exchange:    "binance",
			Pair:        "BTCUSDT",
			FundingRate: decimal.NewFromInt(int64(i)),
			FetchedAt:   base.Add(time.Duration(i) * time.Hour),
		}
	}

	result := downsampleRates(records, 4)
	if len(result) != 4 {
		t.Fatalf("应降采样到 4 个点, 实际 %d", len(result))
	}
	if !result[0].FetchedAt.Equal(records[0].FetchedAt) {
		t.Fatal("首个点应保留")
	}
	if !result[3].FetchedAt.Equal(records[9].FetchedAt) {
		t.Fatal("末尾点应保留")
	}

	// 点数不足上限时原样返回
	passthrough := downsampleRates(records, 100)
	if len(passthrough) != len(records) {
		t.Fatalf("不应降采样, 实际 %d", len(passthrough))
	}
}
