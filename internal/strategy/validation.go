package strategy

// ValidationInput is the context a signal is checked against.
type ValidationInput struct {
	MACD         MACDReading
	HasMACD      bool
	RSI          RSIReading
	HasRSI       bool
	Trend        Trend
	Volume       VolumeProfile
	LastCandleUp bool
}

// downgrade moves a signal one tier towards HOLD.
var downgrade = map[Signal]Signal{
	StrongBuy:  Buy,
	Buy:        WeakBuy,
	WeakBuy:    Hold,
	EarlyBuy:   Hold,
	StrongSell: Sell,
	Sell:       WeakSell,
	WeakSell:   Hold,
	EarlySell:  Hold,
}

// Validate downgrades sig one tier for every contradicting condition. The
// result is never stronger than sig.
func Validate(sig Signal, in ValidationInput) Signal {
	var hits int
	switch {
	case sig.Bullish():
		hits = count(
			in.HasMACD && in.MACD.Divergence == DivergenceBearish && !in.MACD.DivergenceConfirmed,
			in.HasRSI && in.RSI.Overbought,
			in.Trend == TrendStrongDown,
			in.Volume.Crash,
		)
	case sig.Bearish():
		hits = count(
			in.HasMACD && in.MACD.Divergence == DivergenceBullish && !in.MACD.DivergenceConfirmed,
			in.HasRSI && in.RSI.Oversold,
			in.Trend == TrendStrongUp,
			in.Volume.Spike && in.LastCandleUp,
		)
	}
	for i := 0; i < hits; i++ {
		next, ok := downgrade[sig]
		if !ok {
			break
		}
		sig = next
	}
	return sig
}

func count(conds ...bool) int {
	n := 0
	for _, c := range conds {
		if c {
			n++
		}
	}
	return n
}
