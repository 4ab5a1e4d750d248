package exchange

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"funding-intel/internal/httpx"
	"funding-intel/internal/storage"
)

const dydxMarketsURL = "https://api.dydx.trade/v4/markets"

var (
	dydxDefaultPairs = []string{"BTCUSDT", "ETHUSDT"}
	dydxSymbolMap    = map[string]string{
		"BTCUSDT": "BTC-USD",
		"ETHUSDT": "ETH-USD",
	}
)

// DydX fetches all markets in one call and picks the requested pairs.
type DydX struct {
	client     *httpx.Client
	marketsURL string
}

// NewDydX constructs the dYdX adapter.
func NewDydX(client *httpx.Client) *DydX {
	return &DydX{client: client, marketsURL: dydxMarketsURL}
}

// Name identifies the venue.
func (d *DydX) Name() string { return "dydx" }

func toDydxMarket(pair string) string {
	if market, ok := dydxSymbolMap[pair]; ok {
		return market
	}
	return strings.Replace(pair, "USDT", "-USD", 1)
}

type dydxMarket struct {
	NextFundingRate string `json:"nextFundingRate"`
	FundingRate     string `json:"fundingRate"`
	IndexPrice      string `json:"indexPrice"`
	OraclePrice     string `json:"oraclePrice"`
	NextFundingTime string `json:"nextFundingTime"`
}

// FetchRates retrieves funding for the requested markets. Pairs with no
// listed market on dYdX are skipped.
func (d *DydX) FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error) {
	body, err := d.client.Get(ctx, d.marketsURL, nil)
	if err != nil {
		return nil, err
	}

	var markets map[string]dydxMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, &ValidationError{Exchange: d.Name(), Reason: "expected markets object", Err: err}
	}

	pairs := pairsOrDefault(targetPairs, dydxDefaultPairs)
	now := time.Now().UTC()
	records := make([]storage.FundingRate, 0, len(pairs))

	for _, pair := range pairs {
		market, ok := markets[toDydxMarket(pair)]
		if !ok {
			continue
		}

		rate, parsed := parseRate(market.NextFundingRate)
		if !parsed {
			rate, parsed = parseRate(market.FundingRate)
		}
		if !parsed {
			continue
		}

		mark, parsed := parseRate(market.IndexPrice)
		if !parsed {
			mark, parsed = parseRate(market.OraclePrice)
		}
		if !parsed {
			continue
		}

		next := &now
		if market.NextFundingTime != "" {
			if parsedTime, timeErr := time.Parse(time.RFC3339, market.NextFundingTime); timeErr == nil {
				value := parsedTime.UTC()
				next = &value
			}
		}

		records = append(records, storage.FundingRate{
			Exchange:        d.Name(),
			Pair:            pair,
			FundingRate:     rate,
			MarkPrice:       mark,
			NextFundingTime: next,
			FetchedAt:       now,
		})
	}

	return records, nil
}

var _ Adapter = (*DydX)(nil)
