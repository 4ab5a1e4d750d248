package exchange

import "testing"

func TestDeterministicSymbolFallbacks(t *testing.T) {
	// unmapped pairs must still resolve via the per-venue transform
	if got := toDeribitInstrument("SOLUSDT"); got != "SOL-PERPETUAL" {
		t.Fatalf("deribit 回退转换不正确: %s", got)
	}
	if got := toHtxContract("SOLUSDT"); got != "SOL-USDT" {
		t.Fatalf("htx 回退转换不正确: %s", got)
	}
	if got := toDydxMarket("SOLUSDT"); got != "SOL-USD" {
		t.Fatalf("dydx 回退转换不正确: %s", got)
	}
	if got := toGateContract("SOLUSDT"); got != "SOL_USDT" {
		t.Fatalf("gate 回退转换不正确: %s", got)
	}
}

func TestStaticSymbolMapsWin(t *testing.T) {
	if got := toDeribitInstrument("BTCUSDT"); got != "BTC-PERPETUAL" {
		t.Fatalf("静态映射应优先: %s", got)
	}
	if got := toGateContract("ETHUSDT"); got != "ETH_USDT" {
		t.Fatalf("静态映射应优先: %s", got)
	}
}

func TestFlexMillisAcceptsStringAndNumber(t *testing.T) {
	var m flexMillis
	if err := m.UnmarshalJSON([]byte(`1700000000000`)); err != nil || m != 1700000000000 {
		t.Fatalf("数字时间戳解析失败: %v %d", err, m)
	}
	if err := m.UnmarshalJSON([]byte(`"1700000000000"`)); err != nil || m != 1700000000000 {
		t.Fatalf("字符串时间戳解析失败: %v %d", err, m)
	}
	if err := m.UnmarshalJSON([]byte(`null`)); err != nil || m != 0 {
		t.Fatalf("null 应映射为 0: %v %d", err, m)
	}
}
