package common

import (
	"github.com/shopspring/decimal"
)

// Truncate floors v to a multiple of step. It never rounds up.
// A non-positive step leaves v unchanged.
func Truncate(v, step float64) decimal.Decimal {
	d := decimal.NewFromFloat(v)
	if step <= 0 {
		return d
	}
	s := decimal.NewFromFloat(step)
	return d.Sub(d.Mod(s))
}

// TruncateDecimals cuts v to the given number of decimal places.
func TruncateDecimals(v float64, places int) decimal.Decimal {
	return decimal.NewFromFloat(v).Truncate(int32(places))
}

// StepDecimals returns the number of decimal places a step size carries ("0.001" -> 3).
func StepDecimals(step float64) int {
	if step <= 0 {
		return 0
	}
	exp := decimal.NewFromFloat(step).Exponent()
	if exp >= 0 {
		return 0
	}
	return int(-exp)
}

// Normalize truncates price and quantity to the symbol filters and checks
// minimum quantity and notional. refPrice values the notional of MARKET
// orders, which carry no price.
func (f Filters) Normalize(req OrderRequest, refPrice float64) (OrderRequest, error) {
	qty := Truncate(req.Qty, f.StepSize)
	if !qty.IsPositive() {
		return req, &PrecisionError{Symbol: f.Symbol, Field: "quantity", Value: decimal.NewFromFloat(req.Qty).String(), Reason: "truncates to zero"}
	}
	if f.MinQty > 0 && qty.LessThan(decimal.NewFromFloat(f.MinQty)) {
		return req, &PrecisionError{Symbol: f.Symbol, Field: "quantity", Value: qty.String(), Reason: "below min quantity"}
	}

	valuation := decimal.NewFromFloat(refPrice)
	if req.Type == OrderTypeLimit {
		price := Truncate(req.Price, f.TickSize)
		if !price.IsPositive() {
			return req, &PrecisionError{Symbol: f.Symbol, Field: "price", Value: decimal.NewFromFloat(req.Price).String(), Reason: "truncates to zero"}
		}
		req.Price = price.InexactFloat64()
		valuation = price
	}

	if f.MinNotional > 0 {
		notional := qty.Mul(valuation)
		if notional.LessThan(decimal.NewFromFloat(f.MinNotional)) {
			return req, &PrecisionError{Symbol: f.Symbol, Field: "notional", Value: notional.String(), Reason: "below min notional"}
		}
	}

	req.Qty = qty.InexactFloat64()
	return req, nil
}
