package univ3math

import (
	"math/big"
	"sort"

	"github.com/fd1az/market-data-engine/internal/apperror"
)

// maxSwapSteps bounds the tick-crossing loop for any input.
const maxSwapSteps = 500

// feeDenominator is the parts-per-million fee scale used by concentrated
// liquidity pools.
var feeDenominator = big.NewInt(1_000_000)

// TickData is an initialised tick with its net liquidity change.
type TickData struct {
	Tick         int32
	LiquidityNet *big.Int // signed; added when crossing left-to-right
}

// AmountOut simulates an exact-input swap across initialised ticks and
// returns the output amount. feePPM is the pool fee in parts per million.
// With no tick data, a single-step estimate at the starting liquidity is
// produced instead.
func AmountOut(sqrtPriceX96, liquidity *big.Int, tick int32, ticks []TickData, feePPM uint32, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, apperror.New(apperror.CodeInvalidAmount,
			apperror.WithContext("amountIn must be positive"))
	}
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("pool has no price"))
	}
	if liquidity == nil || liquidity.Sign() == 0 {
		return nil, apperror.New(apperror.CodeInsufficientLiquidity,
			apperror.WithContext("pool has no active liquidity"))
	}

	if len(ticks) == 0 {
		return singleStepOut(sqrtPriceX96, liquidity, feePPM, amountIn, zeroForOne)
	}

	state := swapState{
		sqrtPrice: new(big.Int).Set(sqrtPriceX96),
		liquidity: new(big.Int).Set(liquidity),
		tick:      tick,
		remaining: new(big.Int).Set(amountIn),
		out:       new(big.Int),
	}

	for step := 0; step < maxSwapSteps && state.remaining.Sign() > 0; step++ {
		next, ok := nextInitializedTick(ticks, state.tick, zeroForOne)
		if !ok {
			break
		}

		target, err := GetSqrtRatioAtTick(next.Tick)
		if err != nil {
			return nil, err
		}
		clampTarget(target, zeroForOne)

		reached, err := state.advance(target, feePPM, zeroForOne)
		if err != nil {
			return nil, err
		}
		if !reached {
			break // partial fill inside the current tick
		}

		// Cross the tick boundary.
		if zeroForOne {
			state.liquidity.Sub(state.liquidity, next.LiquidityNet)
			state.tick = next.Tick - 1
		} else {
			state.liquidity.Add(state.liquidity, next.LiquidityNet)
			state.tick = next.Tick
		}
		if state.liquidity.Sign() <= 0 {
			break
		}
	}

	return state.out, nil
}

type swapState struct {
	sqrtPrice *big.Int
	liquidity *big.Int
	tick      int32
	remaining *big.Int
	out       *big.Int
}

// advance performs one single-tick step toward target, deducting consumed
// input plus its proportional fee from remaining and accumulating output.
// Returns true when the target price was reached.
func (s *swapState) advance(target *big.Int, feePPM uint32, zeroForOne bool) (bool, error) {
	afterFee := applyFee(s.remaining, feePPM)
	if afterFee.Sign() == 0 {
		s.remaining.SetInt64(0)
		return false, nil
	}

	maxIn, err := maxInputToTarget(s.sqrtPrice, target, s.liquidity, zeroForOne)
	if err != nil {
		return false, err
	}

	reached := afterFee.Cmp(maxIn) >= 0

	var nextSqrt *big.Int
	var consumed *big.Int
	if reached {
		nextSqrt = new(big.Int).Set(target)
		consumed = maxIn
	} else {
		if zeroForOne {
			nextSqrt, err = GetNextSqrtPriceFromAmount0RoundingUp(s.sqrtPrice, s.liquidity, afterFee, true)
		} else {
			nextSqrt, err = GetNextSqrtPriceFromAmount1RoundingDown(s.sqrtPrice, s.liquidity, afterFee, true)
		}
		if err != nil {
			return false, err
		}
		consumed = afterFee
	}

	var out *big.Int
	if zeroForOne {
		out, err = GetAmount1Delta(nextSqrt, s.sqrtPrice, s.liquidity, false)
	} else {
		out, err = GetAmount0Delta(s.sqrtPrice, nextSqrt, s.liquidity, false)
	}
	if err != nil {
		return false, err
	}

	s.out.Add(s.out, out)
	s.sqrtPrice = nextSqrt

	if reached {
		// Deduct the consumed input grossed back up by its fee share.
		gross := mulDivRoundingUp(consumed, feeDenominator,
			new(big.Int).Sub(feeDenominator, big.NewInt(int64(feePPM))))
		s.remaining.Sub(s.remaining, gross)
		if s.remaining.Sign() < 0 {
			s.remaining.SetInt64(0)
		}
	} else {
		s.remaining.SetInt64(0)
	}
	return reached, nil
}

// singleStepOut estimates output using only the starting liquidity.
func singleStepOut(sqrtPriceX96, liquidity *big.Int, feePPM uint32, amountIn *big.Int, zeroForOne bool) (*big.Int, error) {
	afterFee := applyFee(amountIn, feePPM)

	var nextSqrt *big.Int
	var err error
	if zeroForOne {
		nextSqrt, err = GetNextSqrtPriceFromAmount0RoundingUp(sqrtPriceX96, liquidity, afterFee, true)
	} else {
		nextSqrt, err = GetNextSqrtPriceFromAmount1RoundingDown(sqrtPriceX96, liquidity, afterFee, true)
	}
	if err != nil {
		return nil, err
	}
	clampTarget(nextSqrt, zeroForOne)

	if zeroForOne {
		return GetAmount1Delta(nextSqrt, sqrtPriceX96, liquidity, false)
	}
	return GetAmount0Delta(sqrtPriceX96, nextSqrt, liquidity, false)
}

// applyFee deducts the ppm fee from an input amount.
func applyFee(amount *big.Int, feePPM uint32) *big.Int {
	factor := new(big.Int).Sub(feeDenominator, big.NewInt(int64(feePPM)))
	return new(big.Int).Div(new(big.Int).Mul(amount, factor), feeDenominator)
}

// maxInputToTarget is the input that moves the price exactly to target.
func maxInputToTarget(current, target, liquidity *big.Int, zeroForOne bool) (*big.Int, error) {
	if zeroForOne {
		return GetAmount0Delta(target, current, liquidity, true)
	}
	return GetAmount1Delta(current, target, liquidity, true)
}

// clampTarget keeps a target price strictly inside the representable range.
func clampTarget(target *big.Int, zeroForOne bool) {
	if zeroForOne {
		floor := new(big.Int).Add(MinSqrtRatio, one)
		if target.Cmp(floor) < 0 {
			target.Set(floor)
		}
		return
	}
	ceil := new(big.Int).Sub(MaxSqrtRatio, one)
	if target.Cmp(ceil) > 0 {
		target.Set(ceil)
	}
}

// nextInitializedTick finds the nearest initialised tick in the travel
// direction: <= current when zeroForOne, > current otherwise. ticks must be
// sorted ascending.
func nextInitializedTick(ticks []TickData, current int32, zeroForOne bool) (TickData, bool) {
	if zeroForOne {
		// Greatest tick <= current.
		i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Tick > current })
		if i == 0 {
			return TickData{}, false
		}
		return ticks[i-1], true
	}
	// Smallest tick > current.
	i := sort.Search(len(ticks), func(i int) bool { return ticks[i].Tick > current })
	if i == len(ticks) {
		return TickData{}, false
	}
	return ticks[i], true
}
