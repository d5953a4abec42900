// Package indicators turns candle windows into indicator series.
package indicators

import "consensus-trader/pkg/exchanges/common"

// MinCandles is the shortest window any indicator is computed for.
const MinCandles = 20

// Kind enumerates the supported indicators. The set is closed; analyzers
// switch over it exhaustively.
type Kind uint8

const (
	RSI Kind = iota
	StochRSI
	MACD
	AO
	ADX
	ATR
	EMA
)

// Kinds lists every Kind in evaluation order.
var Kinds = []Kind{RSI, StochRSI, MACD, AO, ADX, ATR, EMA}

func (k Kind) String() string {
	switch k {
	case RSI:
		return "RSI"
	case StochRSI:
		return "STOCH_RSI"
	case MACD:
		return "MACD"
	case AO:
		return "AO"
	case ADX:
		return "ADX"
	case ATR:
		return "ATR"
	case EMA:
		return "EMA"
	}
	return "UNKNOWN"
}

// MACDSeries holds MACD line, signal and histogram.
type MACDSeries struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// StochRSISeries holds the fast %K and %D lines.
type StochRSISeries struct {
	K []float64
	D []float64
}

// ADXSeries holds ADX with the directional indicators.
type ADXSeries struct {
	ADX     []float64
	PlusDI  []float64
	MinusDI []float64
}

// Snapshot is the indicator set for one candle window. Series are aligned
// with the candles; an indicator whose lookback exceeds the window is nil.
// Snapshots are never mutated after construction.
type Snapshot struct {
	RSI      []float64
	MACD     MACDSeries
	StochRSI StochRSISeries
	ADX      ADXSeries
	AO       []float64
	ATR      []float64
	EMA      []float64
}

// Has reports whether the indicator could be computed.
func (s Snapshot) Has(k Kind) bool {
	switch k {
	case RSI:
		return len(s.RSI) > 0
	case StochRSI:
		return len(s.StochRSI.K) > 0 && len(s.StochRSI.D) > 0
	case MACD:
		return len(s.MACD.Histogram) > 0 && len(s.MACD.Line) > 0 && len(s.MACD.Signal) > 0
	case AO:
		return len(s.AO) > 0
	case ADX:
		return len(s.ADX.ADX) > 0 && len(s.ADX.PlusDI) > 0 && len(s.ADX.MinusDI) > 0
	case ATR:
		return len(s.ATR) > 0
	case EMA:
		return len(s.EMA) > 0
	}
	return false
}

// LastValues is the convenience view of the most recent value of every series.
type LastValues struct {
	RSI        float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	StochK     float64
	StochD     float64
	ADX        float64
	PlusDI     float64
	MinusDI    float64
	AO         float64
	ATR        float64
	EMA        float64
}

// Last returns the latest values; unavailable indicators read as zero.
func (s Snapshot) Last() LastValues {
	return LastValues{
		RSI:        last(s.RSI),
		MACD:       last(s.MACD.Line),
		MACDSignal: last(s.MACD.Signal),
		MACDHist:   last(s.MACD.Histogram),
		StochK:     last(s.StochRSI.K),
		StochD:     last(s.StochRSI.D),
		ADX:        last(s.ADX.ADX),
		PlusDI:     last(s.ADX.PlusDI),
		MinusDI:    last(s.ADX.MinusDI),
		AO:         last(s.AO),
		ATR:        last(s.ATR),
		EMA:        last(s.EMA),
	}
}

func last(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}

// Provider computes a Snapshot from candles. ok is false when fewer than
// MinCandles candles are supplied.
type Provider interface {
	Compute(candles []common.Candle) (snap Snapshot, ok bool)
}
