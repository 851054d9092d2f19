// Package binance implements the MarketFeed interface over the Binance
// combined WebSocket stream.
package binance

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Binance WebSocket endpoints.
const (
	BaseWSURL     = "wss://stream.binance.com:9443"
	DataStreamURL = "wss://data-stream.binance.vision"
)

// StreamEvent is the combined-stream wrapper for all messages.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BookTickerEvent is a best bid/ask update.
// Stream: <symbol>@bookTicker
type BookTickerEvent struct {
	UpdateID int64  `json:"u"` // Order book updateId
	Symbol   string `json:"s"` // Symbol
	BidPrice string `json:"b"` // Best bid price
	BidQty   string `json:"B"` // Best bid qty
	AskPrice string `json:"a"` // Best ask price
	AskQty   string `json:"A"` // Best ask qty
}

// ParseBidPrice parses the best bid price.
func (e *BookTickerEvent) ParseBidPrice() (decimal.Decimal, error) {
	return decimal.NewFromString(e.BidPrice)
}

// ParseAskPrice parses the best ask price.
func (e *BookTickerEvent) ParseAskPrice() (decimal.Decimal, error) {
	return decimal.NewFromString(e.AskPrice)
}

// PartialDepthEvent is a partial book snapshot.
// Stream: <symbol>@depth20@100ms. The symbol is not in the payload; it is
// recovered from the stream name.
type PartialDepthEvent struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
	Symbol       string     `json:"-"`
}

// Level is one parsed depth rung.
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// ParseLevels parses raw [price, qty] pairs, skipping zero-quantity rungs.
func ParseLevels(raw [][]string) ([]Level, error) {
	levels := make([]Level, 0, len(raw))
	for _, r := range raw {
		if len(r) < 2 {
			continue
		}
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(r[1])
		if err != nil {
			return nil, err
		}
		if size.IsZero() {
			continue
		}
		levels = append(levels, Level{Price: price, Size: size})
	}
	return levels, nil
}

// BookTickerStream returns the bookTicker stream name for a symbol.
func BookTickerStream(symbol string) string {
	return strings.ToLower(symbol) + "@bookTicker"
}

// DepthStream returns the partial-depth stream name for a symbol.
func DepthStream(symbol string) string {
	return strings.ToLower(symbol) + "@depth20@100ms"
}

// symbolFromStream recovers the uppercase symbol from a stream name like
// "ethusdc@depth20@100ms".
func symbolFromStream(stream string) string {
	if i := strings.IndexByte(stream, '@'); i > 0 {
		return strings.ToUpper(stream[:i])
	}
	return strings.ToUpper(stream)
}
