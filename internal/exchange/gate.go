package exchange

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"funding-intel/internal/httpx"
	"funding-intel/internal/storage"
)

const (
	gateFundingRateURL = "https://api.gateio.ws/api/v4/futures/usdt/funding_rate"
	gateTickersURL     = "https://api.gateio.ws/api/v4/futures/usdt/tickers"
)

var (
	gateDefaultPairs = []string{"BTCUSDT", "ETHUSDT"}
	gateSymbolMap    = map[string]string{
		"BTCUSDT": "BTC_USDT",
		"ETHUSDT": "ETH_USDT",
	}
)

// Gate reads the latest funding settlement and the ticker mark price;
// the two calls are independent and joined per pair.
type Gate struct {
	client     *httpx.Client
	fundingURL string
	tickersURL string
}

// NewGate constructs the Gate adapter.
func NewGate(client *httpx.Client) *Gate {
	return &Gate{client: client, fundingURL: gateFundingRateURL, tickersURL: gateTickersURL}
}

// Name identifies the venue.
func (g *Gate) Name() string { return "gate" }

func toGateContract(pair string) string {
	if contract, ok := gateSymbolMap[pair]; ok {
		return contract
	}
	return strings.TrimSuffix(pair, "USDT") + "_USDT"
}

type gateFundingEntry struct {
	Rate string     `json:"r"`
	Time flexMillis `json:"t"`
}

type gateTickerEntry struct {
	MarkPrice  string `json:"mark_price"`
	IndexPrice string `json:"index_price"`
}

type gateMark struct {
	price decimal.Decimal
	err   error
}

// FetchRates retrieves the last settled funding rate plus mark price per pair.
func (g *Gate) FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error) {
	pairs := pairsOrDefault(targetPairs, gateDefaultPairs)
	records := make([]storage.FundingRate, 0, len(pairs))

	for _, pair := range pairs {
		contract := toGateContract(pair)

		markCh := make(chan gateMark, 1)
		go func() {
			markCh <- g.fetchTicker(ctx, contract)
		}()

		query := url.Values{}
		query.Set("contract", contract)
		query.Set("settle", "usdt")
		query.Set("limit", "1")

		body, err := g.client.Get(ctx, g.fundingURL+"?"+query.Encode(), nil)
		if err != nil {
			<-markCh
			return nil, err
		}

		var entries []gateFundingEntry
		if err := json.Unmarshal(body, &entries); err != nil {
			<-markCh
			return nil, &ValidationError{Exchange: g.Name(), Reason: "expected array response", Err: err}
		}

		mark := <-markCh
		if mark.err != nil {
			return nil, mark.err
		}

		if len(entries) == 0 {
			continue
		}
		rate, ok := parseRate(entries[0].Rate)
		if !ok {
			continue
		}

		// gate reports settlement time in epoch seconds
		next := msToTime(int64(entries[0].Time) * 1000)
		if next == nil {
			now := time.Now().UTC()
			next = &now
		}

		records = append(records, storage.FundingRate{
			Exchange:        g.Name(),
			Pair:            pair,
			FundingRate:     rate,
			MarkPrice:       mark.price,
			NextFundingTime: next,
			FetchedAt:       time.Now().UTC(),
		})
	}

	return records, nil
}

func (g *Gate) fetchTicker(ctx context.Context, contract string) gateMark {
	query := url.Values{}
	query.Set("contract", contract)

	body, err := g.client.Get(ctx, g.tickersURL+"?"+query.Encode(), nil)
	if err != nil {
		return gateMark{err: err}
	}

	var entries []gateTickerEntry
	if err := json.Unmarshal(body, &entries); err != nil || len(entries) == 0 {
		return gateMark{err: &ValidationError{Exchange: "gate", Reason: "missing ticker entry", Err: err}}
	}

	price, ok := parseRate(entries[0].MarkPrice)
	if !ok {
		price, ok = parseRate(entries[0].IndexPrice)
	}
	if !ok {
		return gateMark{err: &ValidationError{Exchange: "gate", Reason: "unparsable mark price"}}
	}
	return gateMark{price: price}
}

var _ Adapter = (*Gate)(nil)
