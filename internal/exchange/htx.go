package exchange

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"funding-intel/internal/httpx"
	"funding-intel/internal/storage"
)

const htxFundingRateURL = "https://api.hbdm.com/linear-swap-api/v1/swap_funding_rate"

var (
	htxDefaultPairs = []string{"BTCUSDT", "ETHUSDT"}
	htxSymbolMap    = map[string]string{
		"BTCUSDT": "BTC-USDT",
		"ETHUSDT": "ETH-USDT",
	}
)

// HTX fetches linear swap funding per contract code.
type HTX struct {
	client     *httpx.Client
	fundingURL string
}

// NewHTX constructs the HTX (Huobi) adapter.
func NewHTX(client *httpx.Client) *HTX {
	return &HTX{client: client, fundingURL: htxFundingRateURL}
}

// Name identifies the venue.
func (h *HTX) Name() string { return "htx" }

func toHtxContract(pair string) string {
	if contract, ok := htxSymbolMap[pair]; ok {
		return contract
	}
	return strings.TrimSuffix(pair, "USDT") + "-USDT"
}

type htxResponse struct {
	Data *struct {
		ErrCode         json.Number `json:"err_code"`
		FundingRate     string      `json:"funding_rate"`
		IndexPrice      string      `json:"index_price"`
		NextFundingTime flexMillis  `json:"next_funding_time"`
	} `json:"data"`
}

// FetchRates retrieves the current funding rate per pair. Contracts the
// venue reports an error code for are skipped, not errored.
func (h *HTX) FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error) {
	pairs := pairsOrDefault(targetPairs, htxDefaultPairs)
	records := make([]storage.FundingRate, 0, len(pairs))

	for _, pair := range pairs {
		query := url.Values{}
		query.Set("contract_code", toHtxContract(pair))

		body, err := h.client.Get(ctx, h.fundingURL+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var resp htxResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &ValidationError{Exchange: h.Name(), Reason: "unexpected response shape", Err: err}
		}
		if resp.Data == nil || resp.Data.ErrCode.String() != "" {
			continue
		}

		rate, ok := parseRate(resp.Data.FundingRate)
		if !ok {
			continue
		}
		mark, ok := parseRate(resp.Data.IndexPrice)
		if !ok {
			continue
		}

		records = append(records, storage.FundingRate{
			Exchange:        h.Name(),
			Pair:            pair,
			FundingRate:     rate,
			MarkPrice:       mark,
			NextFundingTime: msToTime(int64(resp.Data.NextFundingTime)),
			FetchedAt:       time.Now().UTC(),
		})
	}

	return records, nil
}

var _ Adapter = (*HTX)(nil)
