// Package risk computes the protective levels of an open long position.
package risk

import "consensus-trader/pkg/config"

// Params are the per-pair risk settings. Percent units; stops are negative.
type Params struct {
	StopLossBasePct       float64
	MaxStopLossPct        float64
	ProfitMarginPct       float64
	TrailingActivationPct float64
	TrailDistancePct      float64
}

// ParamsFor extracts the risk settings of a configured pair.
func ParamsFor(p config.Pair) Params {
	return Params{
		StopLossBasePct:       p.StopLossBasePct,
		MaxStopLossPct:        p.MaxStopLossPct,
		ProfitMarginPct:       p.ProfitMarginPct,
		TrailingActivationPct: p.TrailingActivationPct,
		TrailDistancePct:      p.TrailDistancePct,
	}
}

// Exit names the rule that closes a position.
type Exit string

const (
	ExitNone       Exit = ""
	ExitTakeProfit Exit = "take_profit"
	ExitStopLoss   Exit = "stop_loss"
	ExitTrailing   Exit = "trailing_stop"
)

// Levels are the protective prices of one trade. They are values; Update
// returns a new Levels.
type Levels struct {
	Entry       float64      `json:"entry"`
	StopPct     float64      `json:"stop_pct"`
	StopPrice   float64      `json:"stop_price"`
	TargetPct   float64      `json:"target_pct"`
	TargetPrice float64      `json:"target_price"`
	Trailing    TrailingStop `json:"trailing"`
}

// NewLevels computes the initial levels at entry.
func NewLevels(entry float64, p Params, volatility, confidence float64) Levels {
	l := Levels{
		Entry:    entry,
		Trailing: TrailingStop{ActivationPct: p.TrailingActivationPct, DistancePct: p.TrailDistancePct},
	}
	l.StopPct = DynamicStopLoss(p, volatility, confidence, 0)
	l.TargetPct = ProfitTarget(p, volatility)
	l.StopPrice = entry * (1 + l.StopPct/100)
	l.TargetPrice = entry * (1 + l.TargetPct/100)
	return l
}

// PnLPct is the unrealized return at price, percent.
func (l Levels) PnLPct(price float64) float64 {
	if l.Entry <= 0 {
		return 0
	}
	return (price - l.Entry) / l.Entry * 100
}

// Update recomputes the stop against the current pnl and advances the
// trailing stop. The target stays as set at entry.
func (l Levels) Update(price float64, p Params, volatility, confidence float64) Levels {
	l.StopPct = DynamicStopLoss(p, volatility, confidence, l.PnLPct(price))
	l.StopPrice = l.Entry * (1 + l.StopPct/100)
	l.Trailing = l.Trailing.Update(l.Entry, price)
	return l
}

// Check reports which exit rule price triggers, take-profit first.
func (l Levels) Check(price float64) Exit {
	switch {
	case l.TargetPrice > 0 && price >= l.TargetPrice:
		return ExitTakeProfit
	case l.PnLPct(price) <= l.StopPct:
		return ExitStopLoss
	case l.Trailing.Hit(price):
		return ExitTrailing
	}
	return ExitNone
}
