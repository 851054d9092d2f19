// Package univ3math implements concentrated-liquidity fixed-point
// arithmetic over math/big. All intermediates fit in 512 bits; rounding
// follows the Uniswap V3 reference: amounts consumed round up, amounts
// produced round down.
package univ3math

import (
	"math"
	"math/big"

	"github.com/fd1az/market-data-engine/internal/apperror"
)

var (
	// Q96 = 2^96, the sqrt-price fixed-point scale.
	Q96 = new(big.Int).Lsh(big.NewInt(1), 96)
	// Q160 = 2^160, the sqrt-price storage bound.
	Q160 = new(big.Int).Lsh(big.NewInt(1), 160)

	// MinSqrtRatio is the lower sqrt-price bound used to clamp swap
	// targets; it is one above GetSqrtRatioAtTick(MinTick).
	MinSqrtRatio = big.NewInt(4295128740)
	// MaxSqrtRatio is the upper sqrt-price bound used to clamp swap
	// targets; it is one below GetSqrtRatioAtTick(MaxTick).
	MaxSqrtRatio, _ = new(big.Int).SetString("1461446703485210103287273052203988822378723970341", 10)

	one = big.NewInt(1)
)

// errInsufficientLiquidity marks a step that would divide by zero
// liquidity or underflow a reserve.
func errInsufficientLiquidity(context string) error {
	return apperror.New(apperror.CodeInsufficientLiquidity, apperror.WithContext(context))
}

// SqrtPriceX96ToPrice converts a Q64.96 sqrt price into a float price of
// token0 denominated in token1, adjusted for token decimals. Display only;
// swap math never consumes this result.
func SqrtPriceX96ToPrice(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) float64 {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() == 0 {
		return 0
	}
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), new(big.Float).SetInt(Q96))
	price, _ := new(big.Float).Mul(ratio, ratio).Float64()
	return price * math.Pow10(int(decimals0)-int(decimals1))
}

// VirtualReserves derives the V2-equivalent reserves at the current sqrt
// price: (L*Q96/s, L*s/Q96). Returns (0,0) when liquidity is zero;
// undefined when s is zero.
func VirtualReserves(sqrtPriceX96, liquidity *big.Int) (reserve0, reserve1 *big.Int) {
	if liquidity == nil || liquidity.Sign() == 0 {
		return new(big.Int), new(big.Int)
	}
	reserve0 = new(big.Int).Div(new(big.Int).Mul(liquidity, Q96), sqrtPriceX96)
	reserve1 = new(big.Int).Div(new(big.Int).Mul(liquidity, sqrtPriceX96), Q96)
	return reserve0, reserve1
}

// mulDivRoundingUp computes ceil(a*b/denominator).
func mulDivRoundingUp(a, b, denominator *big.Int) *big.Int {
	product := new(big.Int).Mul(a, b)
	quotient, remainder := new(big.Int).QuoRem(product, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, one)
	}
	return quotient
}

// divRoundingUp computes ceil(a/denominator).
func divRoundingUp(a, denominator *big.Int) *big.Int {
	quotient, remainder := new(big.Int).QuoRem(a, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, one)
	}
	return quotient
}

// GetNextSqrtPriceFromAmount0RoundingUp returns the sqrt price after adding
// (or removing) amount of token0. Rounds up so the price moves at least as
// far as the exact quotient.
func GetNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if amount.Sign() == 0 {
		return new(big.Int).Set(sqrtPX96), nil
	}
	numerator1 := new(big.Int).Lsh(liquidity, 96)

	if add {
		// denominator = numerator1 + amount * sqrtP
		product := new(big.Int).Mul(amount, sqrtPX96)
		denominator := new(big.Int).Add(numerator1, product)
		if denominator.Sign() == 0 {
			return nil, errInsufficientLiquidity("amount0 add: zero denominator")
		}
		return mulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
	}

	product := new(big.Int).Mul(amount, sqrtPX96)
	if numerator1.Cmp(product) <= 0 {
		return nil, errInsufficientLiquidity("amount0 remove: reserve underflow")
	}
	denominator := new(big.Int).Sub(numerator1, product)
	return mulDivRoundingUp(numerator1, sqrtPX96, denominator), nil
}

// GetNextSqrtPriceFromAmount1RoundingDown returns the sqrt price after
// adding (or removing) amount of token1. Rounds down so the price moves at
// most as far as the exact quotient.
func GetNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *big.Int, add bool) (*big.Int, error) {
	if liquidity.Sign() == 0 {
		return nil, errInsufficientLiquidity("amount1: zero liquidity")
	}

	quotient := new(big.Int).Div(new(big.Int).Lsh(amount, 96), liquidity)

	if add {
		return new(big.Int).Add(sqrtPX96, quotient), nil
	}

	// Removing token1: round the quotient up so the price moves far enough.
	quotientUp := divRoundingUp(new(big.Int).Lsh(amount, 96), liquidity)
	if sqrtPX96.Cmp(quotientUp) <= 0 {
		return nil, errInsufficientLiquidity("amount1 remove: price underflow")
	}
	return new(big.Int).Sub(sqrtPX96, quotientUp), nil
}

// GetAmount0Delta returns the amount of token0 between two sqrt prices for
// the given liquidity: L * (sb - sa) * Q96 / (sb * sa).
func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	lower, upper := orderRatios(sqrtRatioAX96, sqrtRatioBX96)
	if lower.Sign() == 0 {
		return nil, errInsufficientLiquidity("amount0 delta: zero sqrt price")
	}

	numerator1 := new(big.Int).Lsh(liquidity, 96)
	numerator2 := new(big.Int).Sub(upper, lower)

	if roundUp {
		return divRoundingUp(mulDivRoundingUp(numerator1, numerator2, upper), lower), nil
	}
	interim := new(big.Int).Div(new(big.Int).Mul(numerator1, numerator2), upper)
	return interim.Div(interim, lower), nil
}

// GetAmount1Delta returns the amount of token1 between two sqrt prices for
// the given liquidity: L * (sb - sa) / Q96.
func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *big.Int, roundUp bool) (*big.Int, error) {
	lower, upper := orderRatios(sqrtRatioAX96, sqrtRatioBX96)
	diff := new(big.Int).Sub(upper, lower)

	if roundUp {
		return mulDivRoundingUp(liquidity, diff, Q96), nil
	}
	return new(big.Int).Div(new(big.Int).Mul(liquidity, diff), Q96), nil
}

func orderRatios(a, b *big.Int) (lower, upper *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}
