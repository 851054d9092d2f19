package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// QuoteConfidence grades how reliable a quote is.
type QuoteConfidence string

const (
	ConfidenceExact       QuoteConfidence = "exact"       // on-chain quoter
	ConfidenceSimulated   QuoteConfidence = "simulated"   // local math
	ConfidenceApproximate QuoteConfidence = "approximate" // hooks or stale state
)

// TradeQuote is the result of quoting an exact-input trade against a pool.
type TradeQuote struct {
	AmountIn       *big.Int
	AmountOut      *big.Int
	ExecutionPrice decimal.Decimal // out per in, decimal-adjusted
	PriceImpactBps decimal.Decimal // execution vs spot
	SlippageBps    decimal.Decimal
	FeePercent     float64
	Confidence     QuoteConfidence
}

// NewTradeQuote derives execution price and impact from the amounts and
// the pool's spot price in the trade direction.
func NewTradeQuote(amountIn, amountOut *big.Int, decimalsIn, decimalsOut uint8, spotPrice float64, feePercent float64, confidence QuoteConfidence) TradeQuote {
	q := TradeQuote{
		AmountIn:   amountIn,
		AmountOut:  amountOut,
		FeePercent: feePercent,
		Confidence: confidence,
	}

	in := decimal.NewFromBigInt(amountIn, -int32(decimalsIn))
	out := decimal.NewFromBigInt(amountOut, -int32(decimalsOut))
	if in.IsZero() {
		return q
	}
	q.ExecutionPrice = out.Div(in)

	if spotPrice > 0 {
		spot := decimal.NewFromFloat(spotPrice)
		// Impact is the shortfall of execution vs spot in basis points.
		q.PriceImpactBps = spot.Sub(q.ExecutionPrice).Div(spot).Mul(decimal.NewFromInt(10_000))
		q.SlippageBps = q.PriceImpactBps
	}
	return q
}
