package strategy

import (
	"math"

	"consensus-trader/pkg/exchanges/common"
)

// TimeframeClass groups timeframes for indicator band selection.
type TimeframeClass string

const (
	TimeframeShort  TimeframeClass = "SHORT"  // below 1h
	TimeframeMedium TimeframeClass = "MEDIUM" // 1h to 4h
	TimeframeLong   TimeframeClass = "LONG"   // above 4h
)

// ParseTimeframe converts "15m", "1h", "4h", "1d" and similar into hours.
func ParseTimeframe(tf string) (float64, error) {
	return common.ParseInterval(tf)
}

// ClassifyTimeframe buckets a timeframe length in hours.
func ClassifyTimeframe(hours float64) TimeframeClass {
	switch {
	case hours < 1:
		return TimeframeShort
	case hours <= 4:
		return TimeframeMedium
	default:
		return TimeframeLong
	}
}

// ScaleWindow rescales a 1h lookback for another timeframe: shorter
// timeframes look back over more candles, longer ones over fewer.
// The result stays within [3, 2*base].
func ScaleWindow(base int, hours float64) int {
	if hours <= 0 {
		return base
	}
	n := int(math.Round(float64(base) / math.Sqrt(hours)))
	if n < 3 {
		n = 3
	}
	if n > 2*base {
		n = 2 * base
	}
	return n
}
