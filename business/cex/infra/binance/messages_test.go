package binance

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBookTickerParsing(t *testing.T) {
	raw := []byte(`{"u":400900217,"s":"ETHUSDC","b":"2499.90","B":"31.21","a":"2500.10","A":"40.66"}`)

	var ev BookTickerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	bid, err := ev.ParseBidPrice()
	if err != nil || !bid.Equal(decimal.RequireFromString("2499.90")) {
		t.Errorf("bid = %s (%v)", bid, err)
	}
	ask, err := ev.ParseAskPrice()
	if err != nil || !ask.Equal(decimal.RequireFromString("2500.10")) {
		t.Errorf("ask = %s (%v)", ask, err)
	}
}

func TestParseLevelsSkipsZeroQuantity(t *testing.T) {
	levels, err := ParseLevels([][]string{
		{"2500.00", "1.5"},
		{"2499.00", "0"},
		{"2498.00", "2.25"},
	})
	if err != nil {
		t.Fatalf("ParseLevels: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("levels = %d, want 2 (zero qty skipped)", len(levels))
	}
	if !levels[1].Size.Equal(decimal.RequireFromString("2.25")) {
		t.Errorf("size = %s", levels[1].Size)
	}
}

func TestStreamNames(t *testing.T) {
	if got := BookTickerStream("ETHUSDC"); got != "ethusdc@bookTicker" {
		t.Errorf("BookTickerStream = %s", got)
	}
	if got := DepthStream("ETHUSDC"); got != "ethusdc@depth20@100ms" {
		t.Errorf("DepthStream = %s", got)
	}
	if got := symbolFromStream("ethusdc@depth20@100ms"); got != "ETHUSDC" {
		t.Errorf("symbolFromStream = %s", got)
	}
}

func TestPairIDFromSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"ETHUSDC", "ETH:USDC"},
		{"BTCUSDT", "BTC:USDT"},
		{"WEIRD", "WEIRD"},
	}
	for _, tt := range tests {
		if got := string(pairIDFromSymbol(tt.symbol)); got != tt.want {
			t.Errorf("pairIDFromSymbol(%s) = %s, want %s", tt.symbol, got, tt.want)
		}
	}
}
