package state

import "consensus-trader/pkg/exchanges/common"

// CandleWindow keeps the most recent candles of one timeframe in open-time
// order, at most Cap of them.
type CandleWindow struct {
	cap     int
	candles []common.Candle
}

// NewCandleWindow returns an empty window holding up to capacity candles.
func NewCandleWindow(capacity int) *CandleWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &CandleWindow{cap: capacity, candles: make([]common.Candle, 0, capacity)}
}

// Push merges c into the window. A candle with the last open time replaces
// it, a newer one is appended and the oldest dropped beyond capacity, an
// older one is ignored. It reports whether the window changed.
func (w *CandleWindow) Push(c common.Candle) bool {
	n := len(w.candles)
	if n > 0 {
		last := w.candles[n-1].OpenTime
		switch {
		case c.OpenTime == last:
			w.candles[n-1] = c
			return true
		case c.OpenTime < last:
			return false
		}
	}
	if n == w.cap {
		copy(w.candles, w.candles[1:])
		w.candles = w.candles[:n-1]
	}
	w.candles = append(w.candles, c)
	return true
}

// Replace loads a REST backfill, keeping the newest candles. Candles
// already streamed that are newer than the backfill survive.
func (w *CandleWindow) Replace(candles []common.Candle) {
	tail := w.candles
	w.candles = make([]common.Candle, 0, w.cap)
	for _, c := range candles {
		w.Push(c)
	}
	for _, c := range tail {
		if n := len(w.candles); n == 0 || c.OpenTime >= w.candles[n-1].OpenTime {
			w.Push(c)
		}
	}
}

// Len returns the number of candles held.
func (w *CandleWindow) Len() int { return len(w.candles) }

// Cap returns the capacity.
func (w *CandleWindow) Cap() int { return w.cap }

// Last returns the newest candle.
func (w *CandleWindow) Last() (common.Candle, bool) {
	if len(w.candles) == 0 {
		return common.Candle{}, false
	}
	return w.candles[len(w.candles)-1], true
}

// Candles returns a copy in open-time order.
func (w *CandleWindow) Candles() []common.Candle {
	return append([]common.Candle(nil), w.candles...)
}
