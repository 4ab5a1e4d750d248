package exchange

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"funding-intel/internal/httpx"
	"funding-intel/internal/storage"
)

const (
	bitgetFundRateURL = "https://api.bitget.com/api/v2/mix/market/current-fund-rate"
	bitgetTickerURL   = "https://api.bitget.com/api/v2/mix/market/ticker"
	bitgetProductType = "USDT-FUTURES"
)

var bitgetDefaultPairs = []string{"BTCUSDT", "ETHUSDT"}

// Bitget splits funding rate and mark price across two endpoints; both
// are independent and fetched concurrently per pair.
type Bitget struct {
	client      *httpx.Client
	fundRateURL string
	tickerURL   string
}

// NewBitget constructs the Bitget adapter.
func NewBitget(client *httpx.Client) *Bitget {
	return &Bitget{client: client, fundRateURL: bitgetFundRateURL, tickerURL: bitgetTickerURL}
}

// Name identifies the venue.
func (b *Bitget) Name() string { return "bitget" }

type bitgetFundResponse struct {
	Data []struct {
		FundingRate string     `json:"fundingRate"`
		NextUpdate  flexMillis `json:"nextUpdate"`
	} `json:"data"`
}

type bitgetTickerResponse struct {
	Data []struct {
		MarkPrice    string     `json:"markPrice"`
		IndexPrice   string     `json:"indexPrice"`
		DeliveryTime flexMillis `json:"deliveryTime"`
	} `json:"data"`
}

type bitgetTicker struct {
	mark decimal.Decimal
	next *time.Time
	err  error
}

// FetchRates retrieves funding rate plus ticker mark price per pair.
func (b *Bitget) FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error) {
	pairs := pairsOrDefault(targetPairs, bitgetDefaultPairs)
	records := make([]storage.FundingRate, 0, len(pairs))

	for _, pair := range pairs {
		tickerCh := make(chan bitgetTicker, 1)
		go func() {
			tickerCh <- b.fetchTicker(ctx, pair)
		}()

		query := url.Values{}
		query.Set("symbol", pair)
		query.Set("productType", bitgetProductType)

		body, err := b.client.Get(ctx, b.fundRateURL+"?"+query.Encode(), nil)
		if err != nil {
			<-tickerCh
			return nil, err
		}

		var resp bitgetFundResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			<-tickerCh
			return nil, &ValidationError{Exchange: b.Name(), Reason: "missing data array", Err: err}
		}

		ticker := <-tickerCh
		if ticker.err != nil {
			return nil, ticker.err
		}

		if len(resp.Data) == 0 {
			continue
		}
		rate, ok := parseRate(resp.Data[0].FundingRate)
		if !ok {
			continue
		}

		next := msToTime(int64(resp.Data[0].NextUpdate))
		if next == nil {
			next = ticker.next
		}

		records = append(records, storage.FundingRate{
			Exchange:        b.Name(),
			Pair:            pair,
			FundingRate:     rate,
			MarkPrice:       ticker.mark,
			NextFundingTime: next,
			FetchedAt:       time.Now().UTC(),
		})
	}

	return records, nil
}

func (b *Bitget) fetchTicker(ctx context.Context, pair string) bitgetTicker {
	query := url.Values{}
	query.Set("symbol", pair)
	query.Set("productType", bitgetProductType)

	body, err := b.client.Get(ctx, b.tickerURL+"?"+query.Encode(), nil)
	if err != nil {
		return bitgetTicker{err: err}
	}

	var resp bitgetTickerResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Data) == 0 {
		return bitgetTicker{err: &ValidationError{Exchange: "bitget", Reason: "missing ticker data", Err: err}}
	}

	entry := resp.Data[0]
	mark, ok := parseRate(entry.MarkPrice)
	if !ok {
		mark, ok = parseRate(entry.IndexPrice)
	}
	if !ok {
		return bitgetTicker{err: &ValidationError{Exchange: "bitget", Reason: "unparsable mark price"}}
	}

	return bitgetTicker{mark: mark, next: msToTime(int64(entry.DeliveryTime))}
}

var _ Adapter = (*Bitget)(nil)
