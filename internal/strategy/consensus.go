package strategy

import "time"

// ConsensusConfig controls cross-timeframe aggregation.
type ConsensusConfig struct {
	MinAgreement  int
	StrongScore   float64
	Score         float64
	WeakScore     float64
	MinDifference float64
	// Weights per timeframe label; a missing entry weighs 1.
	Weights map[string]float64

	StrongMultiplier float64
	EarlyMultiplier  float64
	WeakMultiplier   float64
}

// DefaultConsensusConfig returns the production aggregation settings.
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		MinAgreement:     2,
		StrongScore:      10,
		Score:            6,
		WeakScore:        3,
		MinDifference:    2,
		Weights:          map[string]float64{"15m": 0.5, "1h": 1, "4h": 1.5},
		StrongMultiplier: 1.5,
		EarlyMultiplier:  1.1,
		WeakMultiplier:   0.6,
	}
}

func (c ConsensusConfig) weight(tf string) float64 {
	if w, ok := c.Weights[tf]; ok && w > 0 {
		return w
	}
	return 1
}

func (c ConsensusConfig) strength(s Signal) float64 {
	switch s {
	case StrongBuy, StrongSell:
		return c.StrongMultiplier
	case EarlyBuy, EarlySell:
		return c.EarlyMultiplier
	case WeakBuy, WeakSell:
		return c.WeakMultiplier
	}
	return 1
}

// Aggregate combines per-timeframe results into one consensus. Insufficient
// timeframes are ignored; if none remain the result is an insufficient HOLD.
func Aggregate(symbol string, results []TimeframeResult, cfg ConsensusConfig, at time.Time) Consensus {
	out := Consensus{Symbol: symbol, Signal: Hold, Timeframes: results, At: at}

	var sumW, buy, sell float64
	var earlyBull, earlyBear int
	for _, r := range results {
		if r.Insufficient {
			continue
		}
		w := cfg.weight(r.Timeframe)
		m := cfg.strength(r.Signal)
		sumW += w
		buy += r.BuyScore * w * m
		sell += r.SellScore * w * m
		switch {
		case r.Signal.Bullish():
			out.Agreement.Bullish++
			if r.Signal == EarlyBuy {
				earlyBull++
			}
		case r.Signal.Bearish():
			out.Agreement.Bearish++
			if r.Signal == EarlySell {
				earlyBear++
			}
		default:
			out.Agreement.Neutral++
		}
	}
	if sumW == 0 {
		out.Insufficient = true
		return out
	}
	out.NormalizedBuy = buy / sumW
	out.NormalizedSell = sell / sumW

	nb, ns, ag := out.NormalizedBuy, out.NormalizedSell, out.Agreement
	switch {
	case ag.Bullish >= cfg.MinAgreement && nb-ns >= cfg.MinDifference && nb >= cfg.WeakScore:
		out.Signal = tier(nb, cfg, StrongBuy, Buy, WeakBuy)
	case ag.Bearish >= cfg.MinAgreement && ns-nb >= cfg.MinDifference && ns >= cfg.WeakScore:
		out.Signal = tier(ns, cfg, StrongSell, Sell, WeakSell)
	case ag.Bullish > 0 && earlyBull*2 > ag.Bullish && ag.Bullish > ag.Bearish:
		out.Signal = EarlyBuy
	case ag.Bearish > 0 && earlyBear*2 > ag.Bearish && ag.Bearish > ag.Bullish:
		out.Signal = EarlySell
	case ag.Bullish >= cfg.MinAgreement && ag.Bearish >= cfg.MinAgreement:
		out.Signal = Conflict
	}
	return out
}

func tier(score float64, cfg ConsensusConfig, strong, plain, weak Signal) Signal {
	switch {
	case score >= cfg.StrongScore:
		return strong
	case score >= cfg.Score:
		return plain
	default:
		return weak
	}
}
