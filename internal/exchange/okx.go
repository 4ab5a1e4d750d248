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
	okxFundingRateURL = "https://www.okx.com/api/v5/public/funding-rate"
	okxMarkPriceURL   = "https://www.okx.com/api/v5/public/mark-price"
)

var okxDefaultPairs = []string{"BTCUSDT"}

// OKX needs two endpoints per instrument: funding rate and mark price.
// They are independent, so both are fetched concurrently and joined.
type OKX struct {
	client     *httpx.Client
	fundingURL string
	markURL    string
}

// NewOKX constructs the OKX adapter.
func NewOKX(client *httpx.Client) *OKX {
	return &OKX{client: client, fundingURL: okxFundingRateURL, markURL: okxMarkPriceURL}
}

// Name identifies the venue.
func (o *OKX) Name() string { return "okx" }

// toOkxInst maps a canonical pair to
// an OKX perpetual instrument id, e.g. BTCUSDT -> BTC-USDT-SWAP.
func toOkxInst(pair string) string {
	base := strings.TrimSuffix(pair, "USDT")
	return base + "-USDT-SWAP"
}

type okxFundingResponse struct {
	Data []json.RawMessage `json:"data"`
}

type okxFundingEntry struct {
	InstID          string     `json:"instId"`
	FundingRate     string     `json:"fundingRate"`
	NextFundingTime flexMillis `json:"nextFundingTime"`
}

type okxMarkResponse struct {
	Data []struct {
		MarkPx string `json:"markPx"`
	} `json:"data"`
}

type okxMark struct {
	price decimal.Decimal
	err   error
}

// FetchRates retrieves funding rate and mark price per pair.
func (o *OKX) FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error) {
	pairs := pairsOrDefault(targetPairs, okxDefaultPairs)
	records := make([]storage.FundingRate, 0, len(pairs))

	for _, pair := range pairs {
		instID := toOkxInst(pair)

		markCh := make(chan okxMark, 1)
		go func() {
			markCh <- o.fetchMarkPrice(ctx, instID)
		}()

		fundingQuery := url.Values{}
		fundingQuery.Set("instId", instID)
		body, err := o.client.Get(ctx, o.fundingURL+"?"+fundingQuery.Encode(), nil)
		if err != nil {
			<-markCh
			return nil, err
		}

		var resp okxFundingResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			<-markCh
			return nil, &ValidationError{Exchange: o.Name(), Reason: "missing data array", Err: err}
		}

		mark := <-markCh
		if mark.err != nil {
			return nil, mark.err
		}

		now := time.Now().UTC()
		for _, item := range resp.Data {
			var entry okxFundingEntry
			if err := json.Unmarshal(item, &entry); err != nil {
				continue
			}
			rate, ok := parseRate(entry.FundingRate)
			if !ok {
				continue
			}
			records = append(records, storage.FundingRate{
				Exchange:        o.Name(),
				Pair:            pair,
				FundingRate:     rate,
				MarkPrice:       mark.price,
				NextFundingTime: msToTime(int64(entry.NextFundingTime)),
				FetchedAt:       now,
			})
		}
	}

	return records, nil
}

func (o *OKX) fetchMarkPrice(ctx context.Context, instID string) okxMark {
	query := url.Values{}
	query.Set("instType", "SWAP")
	query.Set("instId", instID)

	body, err := o.client.Get(ctx, o.markURL+"?"+query.Encode(), nil)
	if err != nil {
		return okxMark{err: err}
	}

	var resp okxMarkResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Data) == 0 {
		return okxMark{err: &ValidationError{Exchange: "okx", Reason: "missing mark price data", Err: err}}
	}

	price, ok := parseRate(resp.Data[0].MarkPx)
	if !ok {
		return okxMark{err: &ValidationError{Exchange: "okx", Reason: "unparsable mark price"}}
	}
	return okxMark{price: price}
}

var _ Adapter = (*OKX)(nil)
