package strategy

import (
	"math"

	"consensus-trader/internal/indicators"
)

// Reading is the analyzed state of one indicator. The set of implementations
// is closed: Unavailable plus one type per indicators.Kind.
type Reading interface {
	Kind() indicators.Kind
	reading()
}

// Unavailable marks an indicator that could not be computed for the window.
type Unavailable struct{ Of indicators.Kind }

// RSIReading is the analyzed RSI.
type RSIReading struct {
	Value                  float64
	Bands                  Bands
	Overbought             bool
	Oversold               bool
	CrossedAboveOversold   bool
	CrossedBelowOverbought bool
	Rising                 bool
}

// StochRSIReading is the analyzed stochastic RSI.
type StochRSIReading struct {
	K, D         float64
	Overbought   bool
	Oversold     bool
	BullishCross bool
	BearishCross bool
}

// Divergence classifies price versus MACD histogram disagreement.
type Divergence string

const (
	DivergenceNone    Divergence = "NONE"
	DivergenceBullish Divergence = "BULLISH"
	DivergenceBearish Divergence = "BEARISH"
)

// MACDReading is the analyzed MACD.
type MACDReading struct {
	AboveZero           bool
	BullishZeroCross    bool
	BearishZeroCross    bool
	BullishSignalCross  bool
	BearishSignalCross  bool
	HistogramRising     bool
	HistogramFalling    bool
	Divergence          Divergence
	DivergenceConfirmed bool
}

// AOReading is the analyzed awesome oscillator.
type AOReading struct {
	AboveZero        bool
	BullishZeroCross bool
	BearishZeroCross bool
	Rising           bool
}

// TrendStrength buckets ADX.
type TrendStrength string

const (
	StrengthWeak       TrendStrength = "WEAK"
	StrengthModerate   TrendStrength = "MODERATE"
	StrengthStrong     TrendStrength = "STRONG"
	StrengthVeryStrong TrendStrength = "VERY_STRONG"
)

// ADXReading is the analyzed ADX with directional indicators.
type ADXReading struct {
	Strength    TrendStrength
	BullishDI   bool
	BearishDI   bool
	DICrossUp   bool
	DICrossDown bool
}

// ATRReading is the analyzed average true range.
type ATRReading struct {
	Pct    float64 // ATR relative to the last close, percent
	Rising bool
}

// EMAReading is the analyzed EMA against price.
type EMAReading struct {
	PriceAbove   bool
	CrossedAbove bool
	CrossedBelow bool
	SlopeUp      bool
}

func (Unavailable) reading()     {}
func (RSIReading) reading()      {}
func (StochRSIReading) reading() {}
func (MACDReading) reading()     {}
func (AOReading) reading()       {}
func (ADXReading) reading()      {}
func (ATRReading) reading()      {}
func (EMAReading) reading()      {}

func (u Unavailable) Kind() indicators.Kind { return u.Of }
func (RSIReading) Kind() indicators.Kind      { return indicators.RSI }
func (StochRSIReading) Kind() indicators.Kind { return indicators.StochRSI }
func (MACDReading) Kind() indicators.Kind     { return indicators.MACD }
func (AOReading) Kind() indicators.Kind       { return indicators.AO }
func (ADXReading) Kind() indicators.Kind      { return indicators.ADX }
func (ATRReading) Kind() indicators.Kind      { return indicators.ATR }
func (EMAReading) Kind() indicators.Kind      { return indicators.EMA }

// AnalyzerInput is what every analyzer may look at.
type AnalyzerInput struct {
	Snapshot   indicators.Snapshot
	Closes     []float64
	Timeframe  TimeframeClass
	Thresholds ThresholdSet
	Params     Params
}

// Analyze runs the analyzer for kind. It is a pure function of its input.
func Analyze(kind indicators.Kind, in AnalyzerInput) Reading {
	if !in.Snapshot.Has(kind) {
		return Unavailable{Of: kind}
	}
	s := in.Snapshot
	switch kind {
	case indicators.RSI:
		return analyzeRSI(s.RSI, in.Params.RSIBandsFor(in.Timeframe, in.Thresholds))
	case indicators.StochRSI:
		return analyzeStochRSI(s.StochRSI, in.Params.StochBands)
	case indicators.MACD:
		return analyzeMACD(s.MACD, in.Closes, in.Params.Windows.Divergence)
	case indicators.AO:
		return analyzeAO(s.AO)
	case indicators.ADX:
		return analyzeADX(s.ADX, in.Params)
	case indicators.ATR:
		return analyzeATR(s.ATR, in.Closes)
	case indicators.EMA:
		return analyzeEMA(s.EMA, in.Closes)
	}
	return Unavailable{Of: kind}
}

// AnalyzeAll runs every analyzer in indicators.Kinds order.
func AnalyzeAll(in AnalyzerInput) []Reading {
	out := make([]Reading, 0, len(indicators.Kinds))
	for _, k := range indicators.Kinds {
		out = append(out, Analyze(k, in))
	}
	return out
}

func tail2(v []float64) (prev, cur float64) {
	n := len(v)
	switch n {
	case 0:
		return 0, 0
	case 1:
		return v[0], v[0]
	}
	return v[n-2], v[n-1]
}

func analyzeRSI(rsi []float64, b Bands) RSIReading {
	prev, cur := tail2(rsi)
	return RSIReading{
		Value:                  cur,
		Bands:                  b,
		Overbought:             cur >= b.Overbought,
		Oversold:               cur <= b.Oversold,
		CrossedAboveOversold:   prev < b.Oversold && cur >= b.Oversold,
		CrossedBelowOverbought: prev > b.Overbought && cur <= b.Overbought,
		Rising:                 cur > prev,
	}
}

func analyzeStochRSI(s indicators.StochRSISeries, b Bands) StochRSIReading {
	pk, k := tail2(s.K)
	pd, d := tail2(s.D)
	return StochRSIReading{
		K:            k,
		D:            d,
		Overbought:   k >= b.Overbought,
		Oversold:     k <= b.Oversold,
		BullishCross: pk <= pd && k > d,
		BearishCross: pk >= pd && k < d,
	}
}

func analyzeMACD(m indicators.MACDSeries, closes []float64, window int) MACDReading {
	pl, l := tail2(m.Line)
	ps, s := tail2(m.Signal)
	ph, h := tail2(m.Histogram)
	r := MACDReading{
		AboveZero:          l > 0,
		BullishZeroCross:   pl <= 0 && l > 0,
		BearishZeroCross:   pl >= 0 && l < 0,
		BullishSignalCross: pl <= ps && l > s,
		BearishSignalCross: pl >= ps && l < s,
		HistogramRising:    h > ph,
		HistogramFalling:   h < ph,
	}
	r.Divergence = divergence(closes, m.Histogram, window)
	switch r.Divergence {
	case DivergenceBullish:
		r.DivergenceConfirmed = recentCross(m.Line, m.Signal, 3, true)
	case DivergenceBearish:
		r.DivergenceConfirmed = recentCross(m.Line, m.Signal, 3, false)
	}
	return r
}

// divergence splits the last window bars into halves and compares the
// extremes of price and histogram between them.
func divergence(closes, hist []float64, window int) Divergence {
	n := len(closes)
	if len(hist) < n {
		n = len(hist)
	}
	if window < 4 || n < window {
		return DivergenceNone
	}
	c := closes[len(closes)-window:]
	h := hist[len(hist)-window:]
	half := window / 2

	pLow1, pLow2 := minOf(c[:half]), minOf(c[half:])
	hLow1, hLow2 := minOf(h[:half]), minOf(h[half:])
	if pLow2 < pLow1 && hLow2 > hLow1 && hLow2 < 0 {
		return DivergenceBullish
	}
	pHigh1, pHigh2 := maxOf(c[:half]), maxOf(c[half:])
	hHigh1, hHigh2 := maxOf(h[:half]), maxOf(h[half:])
	if pHigh2 > pHigh1 && hHigh2 < hHigh1 && hHigh2 > 0 {
		return DivergenceBearish
	}
	return DivergenceNone
}

// recentCross reports a line/signal cross in the given direction within the last bars.
func recentCross(line, signal []float64, bars int, up bool) bool {
	n := len(line)
	if len(signal) < n {
		n = len(signal)
	}
	for i := n - 1; i >= 1 && i >= n-bars; i-- {
		if up && line[i-1] <= signal[i-1] && line[i] > signal[i] {
			return true
		}
		if !up && line[i-1] >= signal[i-1] && line[i] < signal[i] {
			return true
		}
	}
	return false
}

func analyzeAO(ao []float64) AOReading {
	prev, cur := tail2(ao)
	return AOReading{
		AboveZero:        cur > 0,
		BullishZeroCross: prev <= 0 && cur > 0,
		BearishZeroCross: prev >= 0 && cur < 0,
		Rising:           cur > prev,
	}
}

func analyzeADX(a indicators.ADXSeries, p Params) ADXReading {
	_, adx := tail2(a.ADX)
	ppdi, pdi := tail2(a.PlusDI)
	pmdi, mdi := tail2(a.MinusDI)
	r := ADXReading{
		BullishDI:   pdi > mdi,
		BearishDI:   mdi > pdi,
		DICrossUp:   ppdi <= pmdi && pdi > mdi,
		DICrossDown: ppdi >= pmdi && pdi < mdi,
	}
	switch {
	case adx >= p.ADXVeryStrong:
		r.Strength = StrengthVeryStrong
	case adx >= p.ADXStrong:
		r.Strength = StrengthStrong
	case adx >= p.ADXWeak:
		r.Strength = StrengthModerate
	default:
		r.Strength = StrengthWeak
	}
	return r
}

func analyzeATR(atr, closes []float64) ATRReading {
	prev, cur := tail2(atr)
	r := ATRReading{Rising: cur > prev}
	if len(closes) > 0 && closes[len(closes)-1] > 0 {
		r.Pct = cur / closes[len(closes)-1] * 100
	}
	return r
}

func analyzeEMA(ema, closes []float64) EMAReading {
	pe, e := tail2(ema)
	pc, c := tail2(closes)
	return EMAReading{
		PriceAbove:   c > e,
		CrossedAbove: pc <= pe && c > e,
		CrossedBelow: pc >= pe && c < e,
		SlopeUp:      e > pe,
	}
}

func minOf(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		m = math.Min(m, x)
	}
	return m
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
