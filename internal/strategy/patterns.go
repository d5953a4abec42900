package strategy

import (
	"math"

	"consensus-trader/pkg/exchanges/common"
)

const (
	strongBodyRatio = 0.6 // body share of range for soldiers, crows and star anchors
	starBodyRatio   = 0.3 // middle star body relative to the first body
)

func body(c common.Candle) float64 { return math.Abs(c.Close - c.Open) }
func bullish(c common.Candle) bool { return c.Close > c.Open }
func bearish(c common.Candle) bool { return c.Close < c.Open }
func rangeOf(c common.Candle) float64 { return c.High - c.Low }

func strongBody(c common.Candle) bool {
	r := rangeOf(c)
	return r > 0 && body(c)/r >= strongBodyRatio
}

// DetectPatterns evaluates the candlestick catalogue on the latest candles.
// Each flag is computed independently of the others.
func DetectPatterns(candles []common.Candle) PatternFlags {
	var f PatternFlags
	n := len(candles)
	if n >= 2 {
		prev, cur := candles[n-2], candles[n-1]
		f.BullishEngulfing = bearish(prev) && bullish(cur) &&
			cur.Open <= prev.Close && cur.Close >= prev.Open && body(cur) > body(prev)
		f.BearishEngulfing = bullish(prev) && bearish(cur) &&
			cur.Open >= prev.Close && cur.Close <= prev.Open && body(cur) > body(prev)
		f.GapUp = cur.Low > prev.High
		f.GapDown = cur.High < prev.Low
	}
	if n >= 3 {
		a, b, c := candles[n-3], candles[n-2], candles[n-1]
		f.ThreeWhiteSoldiers = threeSoldiers(a, b, c)
		f.ThreeBlackCrows = threeCrows(a, b, c)
		f.MorningStar = bearish(a) && strongBody(a) &&
			body(b) <= body(a)*starBodyRatio &&
			bullish(c) && c.Close > (a.Open+a.Close)/2
		f.EveningStar = bullish(a) && strongBody(a) &&
			body(b) <= body(a)*starBodyRatio &&
			bearish(c) && c.Close < (a.Open+a.Close)/2
	}
	return f
}

func threeSoldiers(a, b, c common.Candle) bool {
	for _, x := range []common.Candle{a, b, c} {
		if !bullish(x) || !strongBody(x) {
			return false
		}
	}
	return b.Close > a.Close && c.Close > b.Close &&
		b.Open > a.Open && b.Open < a.Close &&
		c.Open > b.Open && c.Open < b.Close
}

func threeCrows(a, b, c common.Candle) bool {
	for _, x := range []common.Candle{a, b, c} {
		if !bearish(x) || !strongBody(x) {
			return false
		}
	}
	return b.Close < a.Close && c.Close < b.Close &&
		b.Open < a.Open && b.Open > a.Close &&
		c.Open < b.Open && c.Open > b.Close
}
