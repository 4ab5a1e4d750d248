package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"funding-intel/internal/httpx"
	"funding-intel/internal/storage"
)

const (
	bybitBaseURL     = "https://api.bybit.com"
	bybitTickersPath = "/v5/market/tickers"
)

var bybitDefaultPairs = []string{"BTCUSDT"}

// Bybit fetches per-pair linear tickers, which carry both funding rate
// and mark price in one payload. Relay-routable like Binance.
type Bybit struct {
	client  *httpx.Client
	proxy   Proxy
	baseURL string
}

// NewBybit constructs the Bybit adapter.
func NewBybit(client *httpx.Client, proxy Proxy) *Bybit {
	return &Bybit{client: client, proxy: proxy, baseURL: bybitBaseURL}
}

// Name identifies the venue.
func (b *Bybit) Name() string { return "bybit" }

type bybitResponse struct {
	Result *struct {
		List []json.RawMessage `json:"list"`
	} `json:"result"`
}

type bybitEntry struct {
	Symbol          string     `json:"symbol"`
	MarkPrice       string     `json:"markPrice"`
	FundingRate     string     `json:"fundingRate"`
	NextFundingTime flexMillis `json:"nextFundingTime"`
}

// FetchRates retrieves one ticker per requested pair.
func (b *Bybit) FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error) {
	base := b.baseURL
	header := http.Header{}
	if b.proxy.enabled() {
		base = strings.TrimRight(b.proxy.BaseURL, "/")
		header.Set("x-proxy-key", b.proxy.Key)
	}

	pairs := pairsOrDefault(targetPairs, bybitDefaultPairs)
	records := make([]storage.FundingRate, 0, len(pairs))

	for _, pair := range pairs {
		query := url.Values{}
		query.Set("category", "linear")
		query.Set("symbol", pair)

		body, err := b.client.Get(ctx, base+bybitTickersPath+"?"+query.Encode(), header)
		if err != nil {
			return nil, err
		}

		var resp bybitResponse
		if err := json.Unmarshal(body, &resp); err != nil || resp.Result == nil {
			return nil, &ValidationError{Exchange: b.Name(), Reason: "missing result.list", Err: err}
		}

		now := time.Now().UTC()
		for _, item := range resp.Result.List {
			var entry bybitEntry
			if err := json.Unmarshal(item, &entry); err != nil {
				continue
			}
			rate, ok := parseRate(entry.FundingRate)
			if !ok {
				continue
			}
			mark, ok := parseRate(entry.MarkPrice)
			if !ok {
				continue
			}
			records = append(records, storage.FundingRate{
				Exchange:        b.Name(),
				Pair:            entry.Symbol,
				FundingRate:     rate,
				MarkPrice:       mark,
				NextFundingTime: msToTime(int64(entry.NextFundingTime)),
				FetchedAt:       now,
			})
		}
	}

	return records, nil
}

var _ Adapter = (*Bybit)(nil)
