package strategy

import (
	"github.com/shopspring/decimal"
)

// snapStrike rounds a price to the nearest listed strike increment
func snapStrike(price, step float64) float64 {
	if step <= 0 {
		return price
	}
	s := decimal.NewFromFloat(step)
	v, _ := decimal.NewFromFloat(price).Div(s).Round(0).Mul(s).Float64()
	return v
}

// estimatePremium is the price×iv/100×k heuristic, rounded to cents.
// It is not a pricing model.
func estimatePremium(price, iv, k float64) float64 {
	v, _ := decimal.NewFromFloat(price).
		Mul(decimal.NewFromFloat(iv)).
		Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromFloat(k)).
		Round(2).
		Float64()
	return v
}

// netPremium sums sold premiums minus bought premiums in exact decimal arithmetic
func netPremium(sold, bought []float64) float64 {
	total := decimal.Zero
	for _, p := range sold {
		total = total.Add(decimal.NewFromFloat(p))
	}
	for _, p := range bought {
		total = total.Sub(decimal.NewFromFloat(p))
	}
	v, _ := total.Round(2).Float64()
	return v
}

// round2 rounds derived P&L figures to cents
func round2(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}
