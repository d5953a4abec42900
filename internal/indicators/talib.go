package indicators

import (
	"consensus-trader/pkg/exchanges/common"

	"github.com/markcheno/go-talib"
)

// Periods configures TalibProvider.
type Periods struct {
	RSI        int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	StochRSI   int
	StochK     int
	StochD     int
	ADX        int
	ATR        int
	EMA        int
	AOFast     int
	AOSlow     int
}

// DefaultPeriods are the conventional indicator settings.
func DefaultPeriods() Periods {
	return Periods{
		RSI: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
		StochRSI: 14, StochK: 14, StochD: 3,
		ADX: 14, ATR: 14, EMA: 21, AOFast: 5, AOSlow: 34,
	}
}

// TalibProvider computes indicators with go-talib.
type TalibProvider struct {
	p Periods
}

// NewTalibProvider builds a provider; zero periods fall back to defaults.
func NewTalibProvider(p Periods) *TalibProvider {
	if p == (Periods{}) {
		p = DefaultPeriods()
	}
	return &TalibProvider{p: p}
}

// Compute implements Provider.
func (t *TalibProvider) Compute(candles []common.Candle) (Snapshot, bool) {
	n := len(candles)
	if n < MinCandles {
		return Snapshot{}, false
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	median := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		median[i] = (c.High + c.Low) / 2
	}

	p := t.p
	var s Snapshot

	// talib indexes past the input when it is shorter than the lookback,
	// so every call is guarded by the minimum length it needs.
	if n > p.RSI {
		s.RSI = talib.Rsi(closes, p.RSI)
	}
	if n > p.MACDSlow+p.MACDSignal {
		s.MACD.Line, s.MACD.Signal, s.MACD.Histogram = talib.Macd(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	}
	if n > p.StochRSI+p.StochK+p.StochD {
		s.StochRSI.K, s.StochRSI.D = talib.StochRsi(closes, p.StochRSI, p.StochK, p.StochD, talib.SMA)
	}
	if n > 2*p.ADX {
		s.ADX.ADX = talib.Adx(highs, lows, closes, p.ADX)
		s.ADX.PlusDI = talib.PlusDI(highs, lows, closes, p.ADX)
		s.ADX.MinusDI = talib.MinusDI(highs, lows, closes, p.ADX)
	}
	if n > p.ATR {
		s.ATR = talib.Atr(highs, lows, closes, p.ATR)
	}
	if n > p.EMA {
		s.EMA = talib.Ema(closes, p.EMA)
	}
	if n > p.AOSlow {
		fast := talib.Sma(median, p.AOFast)
		slow := talib.Sma(median, p.AOSlow)
		ao := make([]float64, n)
		for i := p.AOSlow - 1; i < n; i++ {
			ao[i] = fast[i] - slow[i]
		}
		s.AO = ao
	}
	return s, true
}
