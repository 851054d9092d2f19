package ethrpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/token"
)

// TokenMetadata reads an ERC-20's name, symbol, and decimals. Implements
// token.Introspector; results are memoised by the static cache.
func (c *Client) TokenMetadata(ctx context.Context, chainID uint64, address common.Address) (token.Metadata, error) {
	var meta token.Metadata

	nameOut, err := c.cachedCall(ctx, c.abis.erc20, address, "name")
	if err != nil {
		return meta, err
	}
	symbolOut, err := c.cachedCall(ctx, c.abis.erc20, address, "symbol")
	if err != nil {
		return meta, err
	}
	decimalsOut, err := c.cachedCall(ctx, c.abis.erc20, address, "decimals")
	if err != nil {
		return meta, err
	}

	name, ok1 := toString(first(nameOut))
	symbol, ok2 := toString(first(symbolOut))
	decimals, ok3 := toUint8(first(decimalsOut))
	if !ok1 || !ok2 || !ok3 {
		return meta, apperror.New(apperror.CodeIntrospectionFailed,
			apperror.WithContext("unexpected metadata shape for "+address.Hex()))
	}

	meta.Name = name
	meta.Symbol = symbol
	meta.Decimals = decimals
	return meta, nil
}

// GetPair resolves a V2 pair address from its factory. The zero address
// means no pool exists.
func (c *Client) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	out, err := c.cachedCall(ctx, c.abis.v2Factory, factory, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := toAddress(first(out))
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("getPair returned non-address"))
	}
	return addr, nil
}

// PairToken0 / PairToken1 read a V2 pair's token addresses.
func (c *Client) PairToken0(ctx context.Context, pool common.Address) (common.Address, error) {
	return c.tokenSide(ctx, c.abis.v2Pair, pool, "token0")
}

func (c *Client) PairToken1(ctx context.Context, pool common.Address) (common.Address, error) {
	return c.tokenSide(ctx, c.abis.v2Pair, pool, "token1")
}

// PoolToken0 / PoolToken1 read a V3 pool's token addresses.
func (c *Client) PoolToken0(ctx context.Context, pool common.Address) (common.Address, error) {
	return c.tokenSide(ctx, c.abis.v3Pool, pool, "token0")
}

func (c *Client) PoolToken1(ctx context.Context, pool common.Address) (common.Address, error) {
	return c.tokenSide(ctx, c.abis.v3Pool, pool, "token1")
}

func (c *Client) tokenSide(ctx context.Context, contract abi.ABI, pool common.Address, method string) (common.Address, error) {
	out, err := c.cachedCall(ctx, contract, pool, method)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := toAddress(first(out))
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext(method+" returned non-address"))
	}
	return addr, nil
}

// GetReserves reads a V2 pair's current reserves. Never cached.
func (c *Client) GetReserves(ctx context.Context, pool common.Address) (*big.Int, *big.Int, error) {
	out, err := c.call(ctx, c.abis.v2Pair, pool, "getReserves")
	if err != nil {
		return nil, nil, err
	}
	if len(out) < 2 {
		return nil, nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("getReserves returned short output"))
	}
	r0, ok1 := toBigInt(out[0])
	r1, ok2 := toBigInt(out[1])
	if !ok1 || !ok2 {
		return nil, nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("getReserves returned non-integers"))
	}
	return r0, r1, nil
}

// GetPool resolves a V3 pool for a pair and fee tier from its factory.
func (c *Client) GetPool(ctx context.Context, factory, tokenA, tokenB common.Address, fee uint32) (common.Address, error) {
	out, err := c.cachedCall(ctx, c.abis.v3Factory, factory, "getPool", tokenA, tokenB, big.NewInt(int64(fee)))
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := toAddress(first(out))
	if !ok {
		return common.Address{}, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("getPool returned non-address"))
	}
	return addr, nil
}

// Slot0 reads a V3 pool's current sqrt price and tick. Never cached.
func (c *Client) Slot0(ctx context.Context, pool common.Address) (*big.Int, int32, error) {
	out, err := c.call(ctx, c.abis.v3Pool, pool, "slot0")
	if err != nil {
		return nil, 0, err
	}
	if len(out) < 2 {
		return nil, 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("slot0 returned short output"))
	}
	sqrtPrice, ok1 := toBigInt(out[0])
	tick, ok2 := toBigInt(out[1])
	if !ok1 || !ok2 {
		return nil, 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("slot0 returned unexpected types"))
	}
	return sqrtPrice, int32(tick.Int64()), nil
}

// Liquidity reads a V3 pool's active liquidity. Never cached.
func (c *Client) Liquidity(ctx context.Context, pool common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.abis.v3Pool, pool, "liquidity")
	if err != nil {
		return nil, err
	}
	l, ok := toBigInt(first(out))
	if !ok {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("liquidity returned non-integer"))
	}
	return l, nil
}

// PoolFee reads a V3 pool's fee in parts per million.
func (c *Client) PoolFee(ctx context.Context, pool common.Address) (uint32, error) {
	out, err := c.cachedCall(ctx, c.abis.v3Pool, pool, "fee")
	if err != nil {
		return 0, err
	}
	fee, ok := toBigInt(first(out))
	if !ok {
		return 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("fee returned non-integer"))
	}
	return uint32(fee.Uint64()), nil
}

// PoolTickSpacing reads a V3 pool's tick spacing.
func (c *Client) PoolTickSpacing(ctx context.Context, pool common.Address) (int32, error) {
	out, err := c.cachedCall(ctx, c.abis.v3Pool, pool, "tickSpacing")
	if err != nil {
		return 0, err
	}
	spacing, ok := toBigInt(first(out))
	if !ok {
		return 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("tickSpacing returned non-integer"))
	}
	return int32(spacing.Int64()), nil
}

// QuoteExactInputSingle calls the QuoterV2 contract for an exact quote.
func (c *Client) QuoteExactInputSingle(ctx context.Context, quoter, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               big.NewInt(int64(fee)),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	out, err := c.call(ctx, c.abis.quoterV2, quoter, "quoteExactInputSingle", params)
	if err != nil {
		return nil, err
	}
	amountOut, ok := toBigInt(first(out))
	if !ok {
		return nil, apperror.New(apperror.CodeQuoteFailed,
			apperror.WithContext("quoter returned non-integer"))
	}
	return amountOut, nil
}

// V4Slot0 reads a V4 pool's price state from the state-view contract.
func (c *Client) V4Slot0(ctx context.Context, stateView common.Address, poolID common.Hash) (*big.Int, int32, uint32, error) {
	out, err := c.call(ctx, c.abis.v4StateView, stateView, "getSlot0", poolID)
	if err != nil {
		return nil, 0, 0, err
	}
	if len(out) < 4 {
		return nil, 0, 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("getSlot0 returned short output"))
	}
	sqrtPrice, ok1 := toBigInt(out[0])
	tick, ok2 := toBigInt(out[1])
	lpFee, ok3 := toBigInt(out[3])
	if !ok1 || !ok2 || !ok3 {
		return nil, 0, 0, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("getSlot0 returned unexpected types"))
	}
	return sqrtPrice, int32(tick.Int64()), uint32(lpFee.Uint64()), nil
}

// V4Liquidity reads a V4 pool's active liquidity from the state view.
func (c *Client) V4Liquidity(ctx context.Context, stateView common.Address, poolID common.Hash) (*big.Int, error) {
	out, err := c.call(ctx, c.abis.v4StateView, stateView, "getLiquidity", poolID)
	if err != nil {
		return nil, err
	}
	l, ok := toBigInt(first(out))
	if !ok {
		return nil, apperror.New(apperror.CodeContractCallFailed,
			apperror.WithContext("getLiquidity returned non-integer"))
	}
	return l, nil
}

func first(vals []any) any {
	if len(vals) == 0 {
		return nil
	}
	return vals[0]
}

// String describes the client for diagnostics.
func (c *Client) String() string {
	return fmt.Sprintf("ethrpc(chain %d)", c.chainID)
}
