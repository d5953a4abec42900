package risk

import "math"

// MinStopLossPct is the tightest allowed stop.
const MinStopLossPct = -0.3

// DynamicStopLoss widens the base stop with volatility and confidence and
// tightens it while the position is losing. The result lies in
// [p.MaxStopLossPct, MinStopLossPct].
func DynamicStopLoss(p Params, volatility, confidence, pnlPct float64) float64 {
	pnlFactor := 1.0
	if pnlPct < 0 {
		pnlFactor = 1 - math.Min(0.5, math.Abs(pnlPct)/10)
	}
	conf := math.Max(0, math.Min(1, confidence))
	stop := p.StopLossBasePct * (1 + math.Max(0, volatility)/50) * (1 + 0.5*conf) * pnlFactor
	return clamp(stop, p.MaxStopLossPct, MinStopLossPct)
}

// ProfitTarget scales the margin with volatility within [0.8, 2] times the margin.
func ProfitTarget(p Params, volatility float64) float64 {
	t := p.ProfitMarginPct * (1 + math.Max(0, volatility)/50)
	return clamp(t, 0.8*p.ProfitMarginPct, 2*p.ProfitMarginPct)
}

func clamp(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	return math.Max(lo, math.Min(hi, v))
}
