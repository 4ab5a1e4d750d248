package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestGateFetchJoinsFundingAndTicker(t *testing.T) {
	funding := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("contract") != "BTC_USDT" {
			t.Fatalf("合约代码不正确: %s", r.URL.Query().Get("contract"))
		}
		_, _ = w.Write([]byte(`[{"r":"0.000095","t":1700000000}]`))
	}))
	defer funding.Close()

	ticker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"mark_price":"64100.2","index_price":"64099.9"}]`))
	}))
	defer ticker.Close()

	adapter := NewGate(testClient())
	adapter.fundingURL = funding.URL
	adapter.tickersURL = ticker.URL

	records, err := adapter.FetchRates(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("期望 1 条记录, 实际 %d", len(records))
	}
	if !records[0].FundingRate.Equal(decimal.RequireFromString("0.000095")) {
		t.Fatalf("费率不正确: %s", records[0].FundingRate)
	}
	if !records[0].MarkPrice.Equal(decimal.RequireFromString("64100.2")) {
		t.Fatalf("标记价格不正确: %s", records[0].MarkPrice)
	}
	// epoch seconds normalized to an absolute instant
	if records[0].NextFundingTime == nil || records[0].NextFundingTime.Unix() != 1700000000 {
		t.Fatalf("结算时间应为绝对时间: %v", records[0].NextFundingTime)
	}
}

func TestGateEmptyHistorySkipsPair(t *testing.T) {
	funding := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer funding.Close()

	ticker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"mark_price":"1"}]`))
	}))
	defer ticker.Close()

	adapter := NewGate(testClient())
	adapter.fundingURL = funding.URL
	adapter.tickersURL = ticker.URL

	records, err := adapter.FetchRates(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("空历史不应报错: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("空历史应跳过该交易对, 实际 %d 条", len(records))
	}
}
