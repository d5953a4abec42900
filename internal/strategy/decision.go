package strategy

// DecisionConfig holds the per-timeframe decision thresholds.
type DecisionConfig struct {
	ConflictScore  float64
	MinDifference  float64
	DominanceRatio float64
	StrongScore    float64
	Score          float64
	WeakScore      float64
}

// DefaultDecisionConfig returns the production decision thresholds.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		ConflictScore:  6,
		MinDifference:  2,
		DominanceRatio: 1.5,
		StrongScore:    10,
		Score:          6,
		WeakScore:      3,
	}
}

// Decide maps scores to a signal. Rules are evaluated in order and the first
// match wins.
func Decide(buy, sell float64, trend Trend, earlyBuy, earlySell bool, cfg DecisionConfig) Signal {
	if buy >= cfg.ConflictScore && sell >= cfg.ConflictScore && abs(buy-sell) < cfg.MinDifference {
		return Conflict
	}
	if buy-sell >= cfg.MinDifference && dominates(buy, sell, cfg.DominanceRatio) {
		switch {
		case buy >= cfg.StrongScore && trend.Rank() > 0:
			return StrongBuy
		case buy >= cfg.Score:
			return Buy
		case earlyBuy:
			return EarlyBuy
		case buy >= cfg.WeakScore:
			return WeakBuy
		}
	}
	if sell-buy >= cfg.MinDifference && dominates(sell, buy, cfg.DominanceRatio) {
		switch {
		case sell >= cfg.StrongScore && trend.Rank() < 0:
			return StrongSell
		case sell >= cfg.Score:
			return Sell
		case earlySell:
			return EarlySell
		case sell >= cfg.WeakScore:
			return WeakSell
		}
	}
	return Hold
}

// dominates treats a zero denominator as unbounded dominance.
func dominates(a, b, ratio float64) bool {
	if b <= 0 {
		return a > 0
	}
	return a/b >= ratio
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
