// Package ethrpc is the shared per-chain RPC layer: ABI-typed view calls
// behind a circuit breaker, a token bucket, and the static-result cache.
package ethrpc

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/circuitbreaker"
	"github.com/fd1az/market-data-engine/internal/logger"
	"github.com/fd1az/market-data-engine/internal/ratelimit"
	"github.com/fd1az/market-data-engine/internal/staticcache"
)

const (
	tracerName = "ethrpc"
	meterName  = "ethrpc"
)

// parsedABIs holds the pre-parsed contract interfaces.
type parsedABIs struct {
	erc20       abi.ABI
	v2Pair      abi.ABI
	v2Factory   abi.ABI
	v3Pool      abi.ABI
	v3Factory   abi.ABI
	quoterV2    abi.ABI
	v4StateView abi.ABI
	multicall3  abi.ABI
}

func parseABIs() (parsedABIs, error) {
	var p parsedABIs
	var err error
	for _, spec := range []struct {
		dst *abi.ABI
		src string
	}{
		{&p.erc20, erc20ABI},
		{&p.v2Pair, v2PairABI},
		{&p.v2Factory, v2FactoryABI},
		{&p.v3Pool, v3PoolABI},
		{&p.v3Factory, v3FactoryABI},
		{&p.quoterV2, quoterV2ABI},
		{&p.v4StateView, v4StateViewABI},
		{&p.multicall3, multicall3ABI},
	} {
		*spec.dst, err = abi.JSON(strings.NewReader(spec.src))
		if err != nil {
			return p, fmt.Errorf("parse abi: %w", err)
		}
	}
	return p, nil
}

// clientMetrics holds OTEL metric instruments.
type clientMetrics struct {
	callsTotal   metric.Int64Counter
	callErrors   metric.Int64Counter
	cacheHits    metric.Int64Counter
	multicalls   metric.Int64Counter
}

// Client executes view calls against one chain.
type Client struct {
	chainID uint64
	eth     *ethclient.Client
	abis    parsedABIs
	cache   *staticcache.Cache
	bucket  *ratelimit.Bucket
	cb      *circuitbreaker.CircuitBreaker[[]byte]
	log     logger.LoggerInterface

	multicallAddr common.Address

	tracer  trace.Tracer
	metrics *clientMetrics
}

// Config holds the client's collaborators.
type Config struct {
	ChainID       uint64
	Eth           *ethclient.Client
	Cache         *staticcache.Cache
	Bucket        *ratelimit.Bucket
	MulticallAddr common.Address
}

// NewClient creates a chain RPC client.
func NewClient(cfg Config, log logger.LoggerInterface) (*Client, error) {
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}

	c := &Client{
		chainID:       cfg.ChainID,
		eth:           cfg.Eth,
		abis:          abis,
		cache:         cfg.Cache,
		bucket:        cfg.Bucket,
		log:           log,
		multicallAddr: cfg.MulticallAddr,
		tracer:        otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig(fmt.Sprintf("ethrpc-%d", cfg.ChainID))
	c.cb = circuitbreaker.New[[]byte](cbCfg)

	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	c.metrics = &clientMetrics{}

	c.metrics.callsTotal, err = meter.Int64Counter(
		"rpc_calls_total",
		metric.WithDescription("Total RPC view calls"),
	)
	if err != nil {
		return err
	}

	c.metrics.callErrors, err = meter.Int64Counter(
		"rpc_call_errors_total",
		metric.WithDescription("Total failed RPC view calls"),
	)
	if err != nil {
		return err
	}

	c.metrics.cacheHits, err = meter.Int64Counter(
		"rpc_static_cache_hits_total",
		metric.WithDescription("View calls served from the static cache"),
	)
	if err != nil {
		return err
	}

	c.metrics.multicalls, err = meter.Int64Counter(
		"rpc_multicalls_total",
		metric.WithDescription("Multicall batches dispatched"),
	)
	return err
}

// ChainID returns the chain this client serves.
func (c *Client) ChainID() uint64 { return c.chainID }

// call packs, dispatches, and unpacks a single view call under the bucket
// and breaker.
func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	ctx, span := c.tracer.Start(ctx, "ethrpc.call",
		trace.WithAttributes(
			attribute.String("to", to.Hex()),
			attribute.String("method", method),
		),
	)
	defer span.End()

	c.metrics.callsTotal.Add(ctx, 1)

	callData, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var raw []byte
	err = c.bucket.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = c.cb.Execute(func() ([]byte, error) {
			return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: callData}, nil)
		})
		return callErr
	})
	if err != nil {
		c.metrics.callErrors.Add(ctx, 1)
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeRPCError,
			apperror.WithCause(err),
			apperror.WithContext(fmt.Sprintf("%s on %s", method, to.Hex())))
	}
	if len(raw) == 0 {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext(fmt.Sprintf("%s on %s returned no data", method, to.Hex())))
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("unpack "+method))
	}
	return out, nil
}

// cachedCall serves static methods from the cache when possible. Only the
// closed cacheable method set ever touches the cache.
func (c *Client) cachedCall(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	if c.cache == nil || !staticcache.Cacheable(method) {
		return c.call(ctx, contract, to, method, args...)
	}

	key := staticcache.Key(to.Hex(), method, args...)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.cacheHits.Add(ctx, 1)
		if vals, ok := v.([]any); ok {
			return vals, nil
		}
	}

	out, err := c.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, encodeCacheable(out))
	return out, nil
}

// encodeCacheable converts ABI outputs to a JSON-friendly tree. Addresses
// become lowercase hex strings; integers go through the bignum envelope
// inside the cache layer. Values read back from the cache are coerced by
// the typed accessors.
func encodeCacheable(vals []any) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		switch t := v.(type) {
		case common.Address:
			out[i] = strings.ToLower(t.Hex())
		case uint8:
			out[i] = int64(t)
		case uint32:
			out[i] = int64(t)
		default:
			out[i] = v
		}
	}
	return out
}

// Coercion helpers tolerate both live ABI output types and the JSON-shaped
// values a cache round-trip produces.

func toAddress(v any) (common.Address, bool) {
	switch t := v.(type) {
	case common.Address:
		return t, true
	case string:
		if common.IsHexAddress(t) {
			return common.HexToAddress(t), true
		}
	}
	return common.Address{}, false
}

func toBigInt(v any) (*big.Int, bool) {
	switch t := v.(type) {
	case *big.Int:
		return t, true
	case int64:
		return big.NewInt(t), true
	case float64:
		return big.NewInt(int64(t)), true
	}
	return nil, false
}

func toUint8(v any) (uint8, bool) {
	switch t := v.(type) {
	case uint8:
		return t, true
	case int64:
		return uint8(t), true
	case float64:
		return uint8(t), true
	case *big.Int:
		return uint8(t.Uint64()), true
	}
	return 0, false
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
