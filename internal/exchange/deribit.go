package exchange

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"funding-intel/internal/httpx"
	"funding-intel/internal/storage"
)

const deribitFundingHistoryURL = "https://www.deribit.com/api/v2/public/get_funding_rate_history"

// Deribit has no current-rate endpoint; the adapter reads the trailing
// 8h funding history and takes the latest sample's 8h interest.
const deribitLookback = 8 * time.Hour

var (
	deribitDefaultPairs = []string{"BTCUSDT", "ETHUSDT"}
	deribitSymbolMap    = map[string]string{
		"BTCUSDT": "BTC-PERPETUAL",
		"ETHUSDT": "ETH-PERPETUAL",
	}
)

// Deribit fetches funding history for coin-margined perpetuals.
type Deribit struct {
	client     *httpx.Client
	historyURL string
}

// NewDeribit constructs the Deribit adapter.
func NewDeribit(client *httpx.Client) *Deribit {
	return &Deribit{client: client, historyURL: deribitFundingHistoryURL}
}

// Name identifies the venue.
func (d *Deribit) Name() string { return "deribit" }

func toDeribitInstrument(pair string) string {
	if instrument, ok := deribitSymbolMap[pair]; ok {
		return instrument
	}
	return strings.Replace(pair, "USDT", "-PERPETUAL", 1)
}

type deribitHistoryResponse struct {
	Result []json.RawMessage `json:"result"`
}

type deribitHistoryEntry struct {
	Interest8H json.Number `json:"interest_8h"`
	IndexPrice json.Number `json:"index_price"`
	Timestamp  flexMillis  `json:"timestamp"`
}

// FetchRates retrieves the latest history entry per pair. Pairs with no
// history inside the lookback are skipped, not errored.
func (d *Deribit) FetchRates(ctx context.Context, targetPairs []string) ([]storage.FundingRate, error) {
	pairs := pairsOrDefault(targetPairs, deribitDefaultPairs)
	records := make([]storage.FundingRate, 0, len(pairs))
	now := time.Now().UTC()

	for _, pair := range pairs {
		query := url.Values{}
		query.Set("instrument_name", toDeribitInstrument(pair))
		query.Set("start_timestamp", strconv.FormatInt(now.Add(-deribitLookback).UnixMilli(), 10))
		query.Set("end_timestamp", strconv.FormatInt(now.UnixMilli(), 10))

		body, err := d.client.Get(ctx, d.historyURL+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var resp deribitHistoryResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &ValidationError{Exchange: d.Name(), Reason: "missing result array", Err: err}
		}
		if len(resp.Result) == 0 {
			continue
		}

		var entry deribitHistoryEntry
		if err := json.Unmarshal(resp.Result[len(resp.Result)-1], &entry); err != nil {
			continue
		}

		rate, ok := parseRate(entry.Interest8H.String())
		if !ok {
			continue
		}
		mark, ok := parseRate(entry.IndexPrice.String())
		if !ok {
			continue
		}

		records = append(records, storage.FundingRate{
			Exchange:        d.Name(),
			Pair:            pair,
			FundingRate:     rate,
			MarkPrice:       mark,
			NextFundingTime: msToTime(int64(entry.Timestamp)),
			FetchedAt:       time.Now().UTC(),
		})
	}

	return records, nil
}

var _ Adapter = (*Deribit)(nil)
