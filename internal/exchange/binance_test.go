package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"funding-intel/internal/httpx"
)

func testClient() *httpx.Client {
	return httpx.New(httpx.Options{MaxRetries: 0, BackoffBase: time.Millisecond, Timeout: time.Second}, zerolog.Nop())
}

func TestBinanceFetchFiltersAndParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != binancePremiumIndexPath {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","markPrice":"64000.10","lastFundingRate":"0.00012","nextFundingTime":1700000000000},
			{"symbol":"ETHUSDT","markPrice":"3000.5","lastFundingRate":"-0.0002","nextFundingTime":0},
			{"symbol":"DOGEUSDT","markPrice":"0.1","lastFundingRate":"0.0001","nextFundingTime":1700000000000}
		]`))
	}))
	defer srv.Close()

	adapter := NewBinance(testClient(), Proxy{})
	adapter.baseURL = srv.URL

	records, err := adapter.FetchRates(context.Background(), []string{"BTCUSDT", "ETHUSDT"})
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("期望 2 条记录, 实际 %d", len(records))
	}

	if records[0].Pair != "BTCUSDT" || records[0].Exchange != "binance" {
		t.Fatalf("记录字段不正确: %+v", records[0])
	}
	if !records[0].FundingRate.Equal(decimal.RequireFromString("0.00012")) {
		t.Fatalf("费率应为小数分数: %s", records[0].FundingRate)
	}
	if records[0].NextFundingTime == nil || records[0].NextFundingTime.UnixMilli() != 1700000000000 {
		t.Fatalf("下次结算时间不正确: %v", records[0].NextFundingTime)
	}
	// sentinel zero means unknown
	if records[1].NextFundingTime != nil {
		t.Fatalf("哨兵值 0 应映射为 nil")
	}
}

func TestBinanceFetchAllWhenNoTargets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","markPrice":"1","lastFundingRate":"0.0001","nextFundingTime":0},
			{"symbol":"SOLUSDT","markPrice":"1","lastFundingRate":"0.0002","nextFundingTime":0}
		]`))
	}))
	defer srv.Close()

	adapter := NewBinance(testClient(), Proxy{})
	adapter.baseURL = srv.URL

	records, err := adapter.FetchRates(context.Background(), nil)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("空目标集应返回全部, 实际 %d", len(records))
	}
}

func TestBinanceDropsUnparsableEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","markPrice":"64000","lastFundingRate":"not-a-number","nextFundingTime":0},
			{"symbol":"ETHUSDT","markPrice":"oops","lastFundingRate":"0.0001","nextFundingTime":0},
			{"symbol":"SOLUSDT","markPrice":"150","lastFundingRate":"0.0003","nextFundingTime":0}
		]`))
	}))
	defer srv.Close()

	adapter := NewBinance(testClient(), Proxy{})
	adapter.baseURL = srv.URL

	records, err := adapter.FetchRates(context.Background(), nil)
	if err != nil {
		t.Fatalf("单条解析失败不应中止整批: %v", err)
	}
	if len(records) != 1 || records[0].Pair != "SOLUSDT" {
		t.Fatalf("无法解析的条目应被丢弃而非置零: %+v", records)
	}
}

func TestBinanceValidationErrorOnWrongShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	adapter := NewBinance(testClient(), Proxy{})
	adapter.baseURL = srv.URL

	_, err := adapter.FetchRates(context.Background(), nil)
	if err == nil {
		t.Fatal("非数组响应应返回校验错误")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("期望 *ValidationError, 实际 %T", err)
	}
}

func TestBinanceProxyRouting(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-proxy-key")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	adapter := NewBinance(testClient(), Proxy{BaseURL: srv.URL, Key: "secret"})

	if _, err := adapter.FetchRates(context.Background(), nil); err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if gotKey != "secret" {
		t.Fatalf("代理请求应携带 x-proxy-key, 实际 %q", gotKey)
	}
}
