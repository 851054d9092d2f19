package ethrpc

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/univ3math"
)

// maxMulticallBatch bounds sub-calls per aggregated call.
const maxMulticallBatch = 500

// mcCall mirrors Multicall3.Call.
type mcCall struct {
	Target   common.Address
	CallData []byte
}

// mcResult mirrors Multicall3.Result.
type mcResult struct {
	Success    bool
	ReturnData []byte
}

// tryAggregate dispatches one batch of sub-calls through Multicall3.
func (c *Client) tryAggregate(ctx context.Context, calls []mcCall) ([]mcResult, error) {
	ctx, span := c.tracer.Start(ctx, "ethrpc.multicall",
		trace.WithAttributes(attribute.Int("calls", len(calls))),
	)
	defer span.End()

	c.metrics.multicalls.Add(ctx, 1)

	callData, err := c.abis.multicall3.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("pack tryAggregate"))
	}

	var raw []byte
	err = c.bucket.Do(ctx, func(ctx context.Context) error {
		var callErr error
		raw, callErr = c.cb.Execute(func() ([]byte, error) {
			to := c.multicallAddr
			return c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: callData}, nil)
		})
		return callErr
	})
	if err != nil {
		span.RecordError(err)
		return nil, apperror.New(apperror.CodeRPCError,
			apperror.WithCause(err),
			apperror.WithContext("tryAggregate"))
	}

	out, err := c.abis.multicall3.Unpack("tryAggregate", raw)
	if err != nil || len(out) == 0 {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithCause(err),
			apperror.WithContext("unpack tryAggregate"))
	}

	// The unpacker produces an anonymous struct slice; re-shape it.
	rawResults, ok := out[0].([]struct {
		Success    bool   `json:"success"`
		ReturnData []byte `json:"returnData"`
	})
	if !ok {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("unexpected tryAggregate output shape"))
	}

	results := make([]mcResult, len(rawResults))
	for i, r := range rawResults {
		results[i] = mcResult{Success: r.Success, ReturnData: r.ReturnData}
	}
	return results, nil
}

// TicksWindow reads the initialised ticks in a window of tickSpacing steps
// around the current tick, batching ticks(int24) calls up to 500 per
// multicall. Uninitialised ticks are skipped; the result is sorted and
// de-duplicated.
func (c *Client) TicksWindow(ctx context.Context, pool common.Address, currentTick, tickSpacing int32, radius int) ([]univ3math.TickData, error) {
	if tickSpacing <= 0 {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext("tick spacing must be positive"))
	}

	// Candidate initialised ticks are multiples of the spacing.
	base := (currentTick / tickSpacing) * tickSpacing
	candidates := make([]int32, 0, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		tick := base + int32(i)*tickSpacing
		if tick < univ3math.MinTick || tick > univ3math.MaxTick {
			continue
		}
		candidates = append(candidates, tick)
	}

	var ticks []univ3math.TickData
	for start := 0; start < len(candidates); start += maxMulticallBatch {
		end := start + maxMulticallBatch
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		calls := make([]mcCall, len(batch))
		for i, tick := range batch {
			data, err := c.abis.v3Pool.Pack("ticks", big.NewInt(int64(tick)))
			if err != nil {
				return nil, apperror.New(apperror.CodeContractCallFailed,
					apperror.WithCause(err),
					apperror.WithContext("pack ticks"))
			}
			calls[i] = mcCall{Target: pool, CallData: data}
		}

		results, err := c.tryAggregate(ctx, calls)
		if err != nil {
			return nil, err
		}

		for i, r := range results {
			if !r.Success || len(r.ReturnData) == 0 {
				continue
			}
			out, err := c.abis.v3Pool.Unpack("ticks", r.ReturnData)
			if err != nil || len(out) < 8 {
				continue
			}
			initialized, _ := out[7].(bool)
			if !initialized {
				continue
			}
			liquidityNet, ok := toBigInt(out[1])
			if !ok {
				continue
			}
			ticks = append(ticks, univ3math.TickData{
				Tick:         batch[i],
				LiquidityNet: liquidityNet,
			})
		}
	}

	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Tick < ticks[j].Tick })
	// The tick sequence must stay strictly sorted with unique tick values.
	dedup := ticks[:0]
	var last *int32
	for i := range ticks {
		if last != nil && *last == ticks[i].Tick {
			continue
		}
		dedup = append(dedup, ticks[i])
		last = &dedup[len(dedup)-1].Tick
	}
	return dedup, nil
}
