package strategy

import "time"

// Signal is the discrete trading decision. Every result carries one of the
// declared values; the zero value is never emitted.
type Signal string

const (
	StrongBuy  Signal = "STRONG_BUY"
	Buy        Signal = "BUY"
	WeakBuy    Signal = "WEAK_BUY"
	EarlyBuy   Signal = "EARLY_BUY"
	Hold       Signal = "HOLD"
	WeakSell   Signal = "WEAK_SELL"
	Sell       Signal = "SELL"
	EarlySell  Signal = "EARLY_SELL"
	StrongSell Signal = "STRONG_SELL"
	Conflict   Signal = "CONFLICT"
)

// Signals lists every valid signal.
var Signals = []Signal{StrongBuy, Buy, WeakBuy, EarlyBuy, Hold, WeakSell, Sell, EarlySell, StrongSell, Conflict}

// Valid reports whether s is a declared signal.
func (s Signal) Valid() bool {
	for _, v := range Signals {
		if s == v {
			return true
		}
	}
	return false
}

// Bullish reports whether s belongs to the buy family.
func (s Signal) Bullish() bool {
	return s == StrongBuy || s == Buy || s == WeakBuy || s == EarlyBuy
}

// Bearish reports whether s belongs to the sell family.
func (s Signal) Bearish() bool {
	return s == StrongSell || s == Sell || s == WeakSell || s == EarlySell
}

// Terminal signals are the ones forwarded to alerting.
func (s Signal) Terminal() bool {
	return s == StrongBuy || s == Buy || s == Sell || s == StrongSell
}

// Favorable signals allow a new entry.
func (s Signal) Favorable() bool {
	return s == Buy || s == StrongBuy || s == EarlyBuy
}

// VolatilityClass buckets recent volatility.
type VolatilityClass string

const (
	VolatilityHigh    VolatilityClass = "HIGH"
	VolatilityLow     VolatilityClass = "LOW"
	VolatilityDefault VolatilityClass = "DEFAULT"
)

// Trend classifies recent price direction.
type Trend string

const (
	TrendStrongUp   Trend = "STRONG_UP"
	TrendUp         Trend = "UP"
	TrendNeutral    Trend = "NEUTRAL"
	TrendDown       Trend = "DOWN"
	TrendStrongDown Trend = "STRONG_DOWN"
)

// Rank orders trends from -2 (STRONG_DOWN) to 2 (STRONG_UP).
func (t Trend) Rank() int {
	switch t {
	case TrendStrongUp:
		return 2
	case TrendUp:
		return 1
	case TrendDown:
		return -1
	case TrendStrongDown:
		return -2
	}
	return 0
}

// VolumeTrend classifies recent volume change.
type VolumeTrend string

const (
	VolumeStrongIncreasing VolumeTrend = "STRONG_INCREASING"
	VolumeIncreasing       VolumeTrend = "INCREASING"
	VolumeStable           VolumeTrend = "STABLE"
	VolumeDecreasing       VolumeTrend = "DECREASING"
	VolumeStrongDecreasing VolumeTrend = "STRONG_DECREASING"
)

// VolumeProfile is the volume trend with spike and crash flags.
type VolumeProfile struct {
	Trend     VolumeTrend
	ChangePct float64
	Spike     bool
	Crash     bool
}

// PatternFlags are independent candlestick pattern detections.
type PatternFlags struct {
	ThreeWhiteSoldiers bool `json:"three_white_soldiers,omitempty"`
	ThreeBlackCrows    bool `json:"three_black_crows,omitempty"`
	MorningStar        bool `json:"morning_star,omitempty"`
	EveningStar        bool `json:"evening_star,omitempty"`
	BullishEngulfing   bool `json:"bullish_engulfing,omitempty"`
	BearishEngulfing   bool `json:"bearish_engulfing,omitempty"`
	GapUp              bool `json:"gap_up,omitempty"`
	GapDown            bool `json:"gap_down,omitempty"`
}

// BearishReversal reports a pattern that argues for closing longs.
func (p PatternFlags) BearishReversal() bool {
	return p.ThreeBlackCrows || p.EveningStar || p.BearishEngulfing
}

// BullishReversal reports a pattern that argues for opening longs.
func (p PatternFlags) BullishReversal() bool {
	return p.ThreeWhiteSoldiers || p.MorningStar || p.BullishEngulfing
}

// TimeframeResult is the signal for one (symbol, timeframe, tick).
type TimeframeResult struct {
	Timeframe       string          `json:"timeframe"`
	Signal          Signal          `json:"signal"`
	BuyScore        float64         `json:"buy_score"`
	SellScore       float64         `json:"sell_score"`
	Trend           Trend           `json:"trend"`
	AvgChangePct    float64         `json:"avg_change_pct"`
	Acceleration    float64         `json:"acceleration"`
	Volatility      float64         `json:"volatility"`
	VolatilityClass VolatilityClass `json:"volatility_class"`
	Volume          VolumeProfile   `json:"volume"`
	Patterns        PatternFlags    `json:"patterns"`
	Contributors    []Contributor   `json:"contributors,omitempty"`
	Insufficient    bool            `json:"insufficient,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// Agreement counts timeframes per direction.
type Agreement struct {
	Bullish int `json:"bullish"`
	Bearish int `json:"bearish"`
	Neutral int `json:"neutral"`
}

// Consensus is the cross-timeframe decision, rebuilt every tick.
type Consensus struct {
	Symbol          string            `json:"symbol"`
	Signal          Signal            `json:"signal"`
	NormalizedBuy   float64           `json:"normalized_buy"`
	NormalizedSell  float64           `json:"normalized_sell"`
	Agreement       Agreement         `json:"agreement"`
	Timeframes      []TimeframeResult `json:"timeframes"`
	Volatility      float64           `json:"volatility"`
	TrendConfidence float64           `json:"trend_confidence"`
	Patterns        PatternFlags      `json:"patterns"`
	Insufficient    bool              `json:"insufficient,omitempty"`
	At              time.Time         `json:"at"`
}
