// Package ethereum provides the chain-facing infrastructure for a watcher:
// head subscription and the single filtered log stream.
package ethereum

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/market-data-engine/business/watcher/domain"
	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/logger"
)

const (
	tracerName = "watcher.ethereum"
	meterName  = "watcher.ethereum"
)

// SubscriberConfig holds the chain subscription settings.
type SubscriberConfig struct {
	ChainID        uint64
	WSURL          string
	ReconnectDelay time.Duration
	BufferSize     int

	// Addresses is the monitored pool address set. Empty means the log
	// filter matches by topic only, enabling discovery from unsolicited
	// events.
	Addresses []common.Address
}

// DefaultSubscriberConfig returns sensible defaults.
func DefaultSubscriberConfig(chainID uint64, wsURL string) SubscriberConfig {
	return SubscriberConfig{
		ChainID:        chainID,
		WSURL:          wsURL,
		ReconnectDelay: 5 * time.Second,
		BufferSize:     256,
	}
}

// subscriberMetrics holds OTEL metric instruments.
type subscriberMetrics struct {
	blocksReceived  metric.Int64Counter
	logsReceived    metric.Int64Counter
	subscribeErrors metric.Int64Counter
	reconnects      metric.Int64Counter
}

// Subscriber implements the watcher's ChainFeed over a WebSocket client.
type Subscriber struct {
	config SubscriberConfig
	log    logger.LoggerInterface

	client   *ethclient.Client
	clientMu sync.RWMutex

	blocks    chan domain.Block
	logs      chan types.Log
	done      chan struct{}
	closed    atomic.Bool
	closeMu   sync.Mutex
	lastBlock atomic.Uint64

	tracer  trace.Tracer
	metrics *subscriberMetrics
}

// NewSubscriber creates a subscriber; Connect establishes the WebSocket.
func NewSubscriber(cfg SubscriberConfig, log logger.LoggerInterface) (*Subscriber, error) {
	s := &Subscriber{
		config: cfg,
		log:    log,
		blocks: make(chan domain.Block, cfg.BufferSize),
		logs:   make(chan types.Log, cfg.BufferSize),
		done:   make(chan struct{}),
		tracer: otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Subscriber) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &subscriberMetrics{}

	s.metrics.blocksReceived, err = meter.Int64Counter(
		"chain_blocks_received_total",
		metric.WithDescription("Blocks received from the provider"),
	)
	if err != nil {
		return err
	}

	s.metrics.logsReceived, err = meter.Int64Counter(
		"chain_logs_received_total",
		metric.WithDescription("Filtered logs received from the provider"),
	)
	if err != nil {
		return err
	}

	s.metrics.subscribeErrors, err = meter.Int64Counter(
		"chain_subscribe_errors_total",
		metric.WithDescription("Subscription failures"),
	)
	if err != nil {
		return err
	}

	s.metrics.reconnects, err = meter.Int64Counter(
		"chain_reconnects_total",
		metric.WithDescription("WebSocket reconnect attempts"),
	)
	return err
}

// Connect dials the provider and starts both subscriptions.
func (s *Subscriber) Connect(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "chain.connect",
		trace.WithAttributes(
			attribute.Int64("chain_id", int64(s.config.ChainID)),
		),
	)
	defer span.End()

	if s.config.WSURL == "" {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext("ws url not configured"))
	}

	client, err := ethclient.DialContext(ctx, s.config.WSURL)
	if err != nil {
		span.RecordError(err)
		return apperror.New(apperror.CodeConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial "+s.config.WSURL))
	}

	s.clientMu.Lock()
	s.client = client
	s.clientMu.Unlock()

	go s.runHeadSubscription(ctx)
	go s.runLogSubscription(ctx)

	s.log.Info(ctx, "chain subscriber connected",
		"chain_id", s.config.ChainID,
		"addresses", len(s.config.Addresses))
	return nil
}

// Blocks streams new chain heads.
func (s *Subscriber) Blocks() <-chan domain.Block { return s.blocks }

// Logs streams raw logs matching the filter.
func (s *Subscriber) Logs() <-chan types.Log { return s.logs }

// LatestBlock fetches the provider's current head.
func (s *Subscriber) LatestBlock(ctx context.Context) (domain.Block, error) {
	s.clientMu.RLock()
	client := s.client
	s.clientMu.RUnlock()

	if client == nil {
		return domain.Block{}, apperror.New(apperror.CodeConnectionFailed,
			apperror.WithContext("no client connected"))
	}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return domain.Block{}, apperror.New(apperror.CodeBlockNotFound,
			apperror.WithCause(err))
	}
	return headerToBlock(header), nil
}

// runHeadSubscription keeps the newHeads subscription alive.
func (s *Subscriber) runHeadSubscription(ctx context.Context) {
	headers := make(chan *types.Header, s.config.BufferSize)

	for {
		if s.closed.Load() {
			return
		}

		s.clientMu.RLock()
		client := s.client
		s.clientMu.RUnlock()
		if client == nil {
			return
		}

		sub, err := client.SubscribeNewHead(ctx, headers)
		if err != nil {
			s.metrics.subscribeErrors.Add(ctx, 1)
			s.log.Error(ctx, "subscribe new heads failed", "error", err)
			if !s.waitReconnect(ctx) {
				return
			}
			continue
		}

		s.log.Info(ctx, "subscribed to new heads", "chain_id", s.config.ChainID)
		s.pumpHeaders(ctx, headers, sub)
		sub.Unsubscribe()

		if !s.waitReconnect(ctx) {
			return
		}
	}
}

func (s *Subscriber) pumpHeaders(ctx context.Context, headers <-chan *types.Header, sub goethereum.Subscription) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				s.metrics.subscribeErrors.Add(ctx, 1)
				s.log.Error(ctx, "head subscription error", "error", err)
			}
			return
		case header := <-headers:
			if header == nil {
				continue
			}
			block := headerToBlock(header)
			s.lastBlock.Store(block.Number)

			select {
			case s.blocks <- block:
				s.metrics.blocksReceived.Add(ctx, 1)
			default:
				s.log.Warn(ctx, "block dropped, buffer full", "number", block.Number)
			}
		}
	}
}

// runLogSubscription keeps the single filtered log stream alive. One
// filter covers the union of monitored addresses and all six topics.
func (s *Subscriber) runLogSubscription(ctx context.Context) {
	sink := make(chan types.Log, s.config.BufferSize)
	query := goethereum.FilterQuery{
		Addresses: s.config.Addresses,
		Topics:    [][]common.Hash{SubscribedTopics()},
	}

	for {
		if s.closed.Load() {
			return
		}

		s.clientMu.RLock()
		client := s.client
		s.clientMu.RUnlock()
		if client == nil {
			return
		}

		sub, err := client.SubscribeFilterLogs(ctx, query, sink)
		if err != nil {
			s.metrics.subscribeErrors.Add(ctx, 1)
			s.log.Error(ctx, "subscribe filter logs failed", "error", err)
			if !s.waitReconnect(ctx) {
				return
			}
			continue
		}

		s.log.Info(ctx, "subscribed to pool logs",
			"chain_id", s.config.ChainID,
			"addresses", len(query.Addresses))
		s.pumpLogs(ctx, sink, sub)
		sub.Unsubscribe()

		if !s.waitReconnect(ctx) {
			return
		}
	}
}

func (s *Subscriber) pumpLogs(ctx context.Context, sink <-chan types.Log, sub goethereum.Subscription) {
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				s.metrics.subscribeErrors.Add(ctx, 1)
				s.log.Error(ctx, "log subscription error", "error", err)
			}
			return
		case lg := <-sink:
			if lg.Removed {
				// Reorged-out log; the reorg path refreshes state.
				continue
			}
			select {
			case s.logs <- lg:
				s.metrics.logsReceived.Add(ctx, 1)
			default:
				s.log.Warn(ctx, "log dropped, buffer full",
					"address", lg.Address.Hex(), "block", lg.BlockNumber)
			}
		}
	}
}

// waitReconnect sleeps the reconnect delay; false means shutdown.
func (s *Subscriber) waitReconnect(ctx context.Context) bool {
	s.metrics.reconnects.Add(ctx, 1)
	select {
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	case <-time.After(s.config.ReconnectDelay):
		return !s.closed.Load()
	}
}

// BlockNumber returns the last seen head number.
func (s *Subscriber) BlockNumber() uint64 {
	return s.lastBlock.Load()
}

// Client exposes the underlying client for the RPC layer.
func (s *Subscriber) Client() *ethclient.Client {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.client
}

// Close tears down the subscriptions and the client.
func (s *Subscriber) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if s.closed.Load() {
		return nil
	}
	s.closed.Store(true)
	close(s.done)

	s.clientMu.Lock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	s.clientMu.Unlock()

	return nil
}

func headerToBlock(header *types.Header) domain.Block {
	return domain.Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0),
		BaseFee:    header.BaseFee,
		ReceivedAt: time.Now(),
	}
}
