package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	cexapp "github.com/fd1az/market-data-engine/business/cex/app"
	dexdomain "github.com/fd1az/market-data-engine/business/dex/domain"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/wsconn"
)

const meterName = "binance"

// Ensure Feed implements the port.
var _ cexapp.MarketFeed = (*Feed)(nil)

// FeedConfig holds the Binance feed settings.
type FeedConfig struct {
	BaseURL   string
	Symbols   []string // e.g. "ETHUSDC"
	WithDepth bool     // also subscribe partial depth ladders
}

// DefaultFeedConfig returns defaults for the given symbols.
func DefaultFeedConfig(symbols []string) FeedConfig {
	return FeedConfig{
		BaseURL: BaseWSURL,
		Symbols: symbols,
	}
}

// feedMetrics holds OTEL metric instruments.
type feedMetrics struct {
	messagesReceived metric.Int64Counter
	parseErrors      metric.Int64Counter
	updatesEmitted   metric.Int64Counter
}

// Feed streams best bid/ask (and optional depth) for the configured
// symbols over one combined WebSocket stream.
type Feed struct {
	config FeedConfig
	log    logger.LoggerInterface

	conn    *wsconn.Client
	updates chan *dexdomain.CexMarketState

	// ladders keeps the last depth snapshot per symbol so bookTicker
	// updates carry the ladder along.
	mu      sync.Mutex
	ladders map[string]*PartialDepthEvent

	metrics *feedMetrics
}

// NewFeed creates a Binance market feed.
func NewFeed(cfg FeedConfig, log logger.LoggerInterface) (*Feed, error) {
	f := &Feed{
		config:  cfg,
		log:     log,
		updates: make(chan *dexdomain.CexMarketState, 64),
		ladders: make(map[string]*PartialDepthEvent),
	}
	if err := f.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return f, nil
}

func (f *Feed) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	f.metrics = &feedMetrics{}

	f.metrics.messagesReceived, err = meter.Int64Counter(
		"binance_messages_total",
		metric.WithDescription("Messages received from the stream"),
	)
	if err != nil {
		return err
	}

	f.metrics.parseErrors, err = meter.Int64Counter(
		"binance_parse_errors_total",
		metric.WithDescription("Stream messages that failed to parse"),
	)
	if err != nil {
		return err
	}

	f.metrics.updatesEmitted, err = meter.Int64Counter(
		"binance_market_updates_total",
		metric.WithDescription("Market states emitted"),
	)
	return err
}

// Start connects the combined stream and begins pumping updates.
func (f *Feed) Start(ctx context.Context) error {
	streamURL, err := f.combinedStreamURL()
	if err != nil {
		return err
	}

	f.conn = wsconn.New(wsconn.DefaultConfig(streamURL))
	if err := f.conn.Connect(ctx); err != nil {
		return err
	}

	go f.pump(ctx)
	f.log.Info(ctx, "binance feed started", "symbols", strings.Join(f.config.Symbols, ","))
	return nil
}

// combinedStreamURL builds /stream?streams=sym@bookTicker/sym@depth20...
func (f *Feed) combinedStreamURL() (string, error) {
	if len(f.config.Symbols) == 0 {
		return "", fmt.Errorf("binance feed: no symbols configured")
	}

	var streams []string
	for _, sym := range f.config.Symbols {
		streams = append(streams, BookTickerStream(sym))
		if f.config.WithDepth {
			streams = append(streams, DepthStream(sym))
		}
	}

	base := f.config.BaseURL
	if base == "" {
		base = BaseWSURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("binance feed: bad base url: %w", err)
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

func (f *Feed) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-f.conn.Messages():
			if !ok {
				return
			}
			f.metrics.messagesReceived.Add(ctx, 1)
			f.handleMessage(ctx, raw)
		}
	}
}

func (f *Feed) handleMessage(ctx context.Context, raw []byte) {
	var wrapper StreamEvent
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Stream == "" {
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}

	switch {
	case strings.Contains(wrapper.Stream, "@bookTicker"):
		var ev BookTickerEvent
		if err := json.Unmarshal(wrapper.Data, &ev); err != nil {
			f.metrics.parseErrors.Add(ctx, 1)
			return
		}
		f.emitBookTicker(ctx, &ev)

	case strings.Contains(wrapper.Stream, "@depth"):
		var ev PartialDepthEvent
		if err := json.Unmarshal(wrapper.Data, &ev); err != nil {
			f.metrics.parseErrors.Add(ctx, 1)
			return
		}
		ev.Symbol = symbolFromStream(wrapper.Stream)
		f.mu.Lock()
		f.ladders[ev.Symbol] = &ev
		f.mu.Unlock()
	}
}

func (f *Feed) emitBookTicker(ctx context.Context, ev *BookTickerEvent) {
	bid, err := ev.ParseBidPrice()
	if err != nil {
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}
	ask, err := ev.ParseAskPrice()
	if err != nil {
		f.metrics.parseErrors.Add(ctx, 1)
		return
	}

	state := &dexdomain.CexMarketState{
		StateHeader: dexdomain.StateHeader{
			Venue: dexdomain.CexVenue(dexdomain.VenueBinance),
			Pair:  pairIDFromSymbol(ev.Symbol),
		},
		Exchange:  string(dexdomain.VenueBinance),
		RawSymbol: ev.Symbol,
		BestBid:   bid,
		BestAsk:   ask,
	}

	f.mu.Lock()
	if ladder, ok := f.ladders[ev.Symbol]; ok {
		if bids, err := ParseLevels(ladder.Bids); err == nil {
			state.Bids = toPriceLevels(bids)
		}
		if asks, err := ParseLevels(ladder.Asks); err == nil {
			state.Asks = toPriceLevels(asks)
		}
	}
	f.mu.Unlock()

	select {
	case f.updates <- state:
		f.metrics.updatesEmitted.Add(ctx, 1)
	default:
		f.log.Warn(ctx, "market update dropped, channel full", "symbol", ev.Symbol)
	}
}

// Updates delivers market-state snapshots.
func (f *Feed) Updates() <-chan *dexdomain.CexMarketState {
	return f.updates
}

// Close tears the feed down.
func (f *Feed) Close() error {
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func toPriceLevels(levels []Level) []dexdomain.PriceLevel {
	out := make([]dexdomain.PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = dexdomain.PriceLevel{Price: l.Price, Size: l.Size}
	}
	return out
}

// pairIDFromSymbol splits a raw symbol on the well-known quote suffixes.
// Unknown shapes fall back to the raw symbol as a single-leg pair id.
func pairIDFromSymbol(symbol string) dexdomain.PairID {
	for _, quote := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			base := symbol[:len(symbol)-len(quote)]
			return dexdomain.NewPairID(base, quote)
		}
	}
	return dexdomain.PairID(symbol)
}
