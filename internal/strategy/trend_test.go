package strategy

import (
	"math/rand"
	"testing"

	"consensus-trader/pkg/exchanges/common"

	"github.com/stretchr/testify/require"
)

func TestClassifyTrendMonotoneInAverage(t *testing.T) {
	p := DefaultParams()
	rng := rand.New(rand.NewSource(7))
	for _, class := range []VolatilityClass{VolatilityHigh, VolatilityLow, VolatilityDefault} {
		th := p.ThresholdsFor(class)
		for i := 0; i < 200; i++ {
			accel := rng.Float64()*2 - 1
			prev := ClassifyTrend(-5, accel, th)
			for avg := -5.0; avg <= 5; avg += 0.01 {
				cur := ClassifyTrend(avg, accel, th)
				require.GreaterOrEqual(t, cur.Rank(), prev.Rank(), "class=%s accel=%v avg=%v", class, accel, avg)
				prev = cur
			}
		}
	}
}

func TestClassifyTrend(t *testing.T) {
	th := DefaultParams().ThresholdsFor(VolatilityDefault)
	tests := []struct {
		name  string
		avg   float64
		accel float64
		want  Trend
	}{
		{"strong up", 1.0, 0, TrendStrongUp},
		{"strong move losing steam is up", 1.0, -0.3, TrendUp},
		{"mild up", 0.3, 0, TrendUp},
		{"flat", 0.1, 0, TrendNeutral},
		{"mild down", -0.3, 0, TrendDown},
		{"strong down", -1.0, 0, TrendStrongDown},
		{"strong down recovering is down", -1.0, 0.3, TrendDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifyTrend(tt.avg, tt.accel, th))
		})
	}
}

func TestTrendConfidenceBounded(t *testing.T) {
	th := DefaultParams().ThresholdsFor(VolatilityDefault)
	require.Equal(t, 0.0, TrendConfidence(0, th))
	require.InDelta(t, 0.5, TrendConfidence(-0.8, th), 1e-12)
	require.Equal(t, 1.0, TrendConfidence(100, th))
}

func TestClassifyVolatility(t *testing.T) {
	p := DefaultParams()
	require.Equal(t, VolatilityHigh, ClassifyVolatility(3.1, p))
	require.Equal(t, VolatilityDefault, ClassifyVolatility(3.0, p))
	require.Equal(t, VolatilityDefault, ClassifyVolatility(1.0, p))
	require.Equal(t, VolatilityLow, ClassifyVolatility(0.9, p))
}

func TestScaleWindow(t *testing.T) {
	tests := []struct {
		tf   string
		base int
		want int
	}{
		{"1h", 14, 14},
		{"4h", 14, 7},
		{"15m", 14, 28},
		{"1m", 14, 28},
		{"1w", 14, 3},
		{"1d", 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.tf, func(t *testing.T) {
			h, err := ParseTimeframe(tt.tf)
			require.NoError(t, err)
			require.Equal(t, tt.want, ScaleWindow(tt.base, h))
		})
	}
}

func TestAnalyzeVolume(t *testing.T) {
	p := DefaultParams()
	th := p.ThresholdsFor(VolatilityDefault)
	mk := func(vols ...float64) []common.Candle {
		out := make([]common.Candle, len(vols))
		for i, v := range vols {
			out[i] = common.Candle{OpenTime: int64(i), Open: 1, High: 1, Low: 1, Close: 1, Volume: v}
		}
		return out
	}

	vp := AnalyzeVolume(mk(10, 10, 10, 10, 10, 10, 10), 3, th, p)
	require.Equal(t, VolumeStable, vp.Trend)
	require.False(t, vp.Spike)
	require.False(t, vp.Crash)

	vp = AnalyzeVolume(mk(10, 10, 10, 10, 10, 10, 50), 3, th, p)
	require.Equal(t, VolumeStrongIncreasing, vp.Trend)
	require.True(t, vp.Spike)

	vp = AnalyzeVolume(mk(10, 10, 10, 10, 10, 10, 2), 3, th, p)
	require.Equal(t, VolumeDecreasing, vp.Trend)
	require.True(t, vp.Crash)

	vp = AnalyzeVolume(mk(10, 10), 3, th, p)
	require.Equal(t, VolumeStable, vp.Trend)
}

func TestDetectPatterns(t *testing.T) {
	c := func(o, h, l, cl float64) common.Candle { return common.Candle{Open: o, High: h, Low: l, Close: cl} }
	tests := []struct {
		name    string
		candles []common.Candle
		check   func(PatternFlags) bool
	}{
		{"three white soldiers", []common.Candle{c(100, 105.2, 99.8, 105), c(103, 108.2, 102.8, 108), c(106, 111.2, 105.8, 111)},
			func(f PatternFlags) bool { return f.ThreeWhiteSoldiers && !f.ThreeBlackCrows }},
		{"three black crows", []common.Candle{c(111, 111.2, 105.8, 106), c(108, 108.2, 102.8, 103), c(105, 105.2, 99.8, 100)},
			func(f PatternFlags) bool { return f.ThreeBlackCrows && !f.ThreeWhiteSoldiers }},
		{"morning star", []common.Candle{c(110, 110.5, 99.5, 100), c(99.5, 100.5, 98.5, 99.8), c(100, 107.5, 99.5, 107)},
			func(f PatternFlags) bool { return f.MorningStar && !f.EveningStar }},
		{"evening star", []common.Candle{c(100, 110.5, 99.5, 110), c(110.5, 111.5, 109.5, 110.7), c(110, 110.5, 102.5, 103)},
			func(f PatternFlags) bool { return f.EveningStar && !f.MorningStar }},
		{"bullish engulfing", []common.Candle{c(102, 102.5, 100.5, 101), c(100.8, 103.5, 100.5, 103)},
			func(f PatternFlags) bool { return f.BullishEngulfing && !f.BearishEngulfing }},
		{"bearish engulfing", []common.Candle{c(101, 102.5, 100.5, 102), c(102.2, 102.5, 99.5, 100)},
			func(f PatternFlags) bool { return f.BearishEngulfing && !f.BullishEngulfing }},
		{"gap up", []common.Candle{c(100, 101, 99, 100.5), c(102, 103, 101.5, 102.5)},
			func(f PatternFlags) bool { return f.GapUp && !f.GapDown }},
		{"gap down", []common.Candle{c(100, 101, 99, 100.5), c(98, 98.5, 97, 97.5)},
			func(f PatternFlags) bool { return f.GapDown && !f.GapUp }},
		{"nothing on one candle", []common.Candle{c(100, 101, 99, 100.5)},
			func(f PatternFlags) bool { return f == PatternFlags{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.check(DetectPatterns(tt.candles)), "%+v", DetectPatterns(tt.candles))
		})
	}
}
