package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"funding-intel/internal/httpx"
	"funding-intel/internal/storage"
)

const (
	binanceBaseURL          = "https://fapi.binance.com"
	binancePremiumIndexPath = "/fapi/v1/premiumIndex"
)

// Binance fetches the premium index for all perpetual symbols in one call.
// Optionally routed through the authenticated relay when direct access to
// fapi.binance.com is blocked.
type Binance struct {
	client  *httpx.Client
	proxy   Proxy
	baseURL string
}

// NewBinance constructs the Binance adapter.
func NewBinance(client *httpx.Client, proxy Proxy) *Binance {
	return &Binance{client: client, proxy: proxy, baseURL: binanceBaseURL}
}

// Name identifies the venue.
func (b *Binance) Name() string { return "binance" }

type binanceEntry struct {
	Symbol          string     `json:"symbol"`
	MarkPrice       string     `json:"markPrice"`
	LastFundingRate string     `json:"lastFundingRate"`
	NextFundingTime flexMillis `json:"nextFundingTime"`
}

// FetchRates retrieves funding rates for targetPairs (all symbols when empty).
func (b *Binance) FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error) {
	base := b.baseURL
	header := http.Header{}
	if b.proxy.enabled() {
		base = strings.TrimRight(b.proxy.BaseURL, "/")
		header.Set("x-proxy-key", b.proxy.Key)
	}

	body, err := b.client.Get(ctx, base+binancePremiumIndexPath, header)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ValidationError{Exchange: b.Name(), Reason: "expected array response", Err: err}
	}

	now := time.Now().UTC()
	records := make([]storage.FundingRate, 0, len(raw))
	for _, item := range raw {
		var entry binanceEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			// malformed entry inside a valid batch: skip, don't abort
			continue
		}
		if entry.Symbol == "" || !wantPair(targetPairs, entry.Symbol) {
			continue
		}

		rate, ok := parseRate(entry.LastFundingRate)
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

	return records, nil
}

var _ Adapter = (*Binance)(nil)
