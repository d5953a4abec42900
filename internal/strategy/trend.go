package strategy

import (
	"fmt"
	"math"

	"consensus-trader/pkg/exchanges/common"
)

// ValidateCandles rejects windows the analyzers cannot trust.
func ValidateCandles(candles []common.Candle) error {
	for i, c := range candles {
		if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 || c.Volume < 0 {
			return &common.InputValidationError{Field: fmt.Sprintf("candle[%d]", i), Reason: "non-positive price or negative volume"}
		}
		if c.High < c.Low {
			return &common.InputValidationError{Field: fmt.Sprintf("candle[%d]", i), Reason: "high below low"}
		}
		if i > 0 && c.OpenTime <= candles[i-1].OpenTime {
			return &common.InputValidationError{Field: fmt.Sprintf("candle[%d]", i), Reason: "open times not ascending"}
		}
	}
	return nil
}

// Volatility is the mean high-low range relative to the mid price over the
// last window candles, in percent.
func Volatility(candles []common.Candle, window int) float64 {
	tail := lastN(candles, window)
	if len(tail) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range tail {
		mid := (c.High + c.Low) / 2
		if mid > 0 {
			sum += (c.High - c.Low) / mid * 100
		}
	}
	return sum / float64(len(tail))
}

// ClassifyVolatility buckets a volatility percentage.
func ClassifyVolatility(v float64, p Params) VolatilityClass {
	switch {
	case v > p.HighVolatility:
		return VolatilityHigh
	case v < p.LowVolatility:
		return VolatilityLow
	default:
		return VolatilityDefault
	}
}

// PriceMomentum returns the mean percentage close change over the last window
// candles and the mean first difference of those changes (acceleration).
func PriceMomentum(candles []common.Candle, window int) (avg, accel float64) {
	tail := lastN(candles, window+1)
	if len(tail) < 2 {
		return 0, 0
	}
	changes := make([]float64, 0, len(tail)-1)
	for i := 1; i < len(tail); i++ {
		changes = append(changes, (tail[i].Close-tail[i-1].Close)/tail[i-1].Close*100)
	}
	avg = mean(changes)
	if len(changes) < 2 {
		return avg, 0
	}
	diffs := make([]float64, 0, len(changes)-1)
	for i := 1; i < len(changes); i++ {
		diffs = append(diffs, changes[i]-changes[i-1])
	}
	return avg, mean(diffs)
}

// ClassifyTrend maps average change and acceleration to a Trend. For a fixed
// acceleration and threshold set the result never decreases as avg grows.
func ClassifyTrend(avg, accel float64, th ThresholdSet) Trend {
	sig := th.SignificantChange
	switch {
	case avg >= sig && accel > -th.Acceleration:
		return TrendStrongUp
	case avg > sig/4:
		return TrendUp
	case avg <= -sig && accel < th.Acceleration:
		return TrendStrongDown
	case avg < -sig/4:
		return TrendDown
	default:
		return TrendNeutral
	}
}

// TrendConfidence scales |avg| against the significant-change threshold into [0, 1].
func TrendConfidence(avg float64, th ThresholdSet) float64 {
	if th.SignificantChange <= 0 {
		return 0
	}
	return math.Min(1, math.Abs(avg)/(2*th.SignificantChange))
}

// AnalyzeVolume compares the mean of the last k volumes with the k before and
// flags a spike or crash of the latest volume against the preceding k.
func AnalyzeVolume(candles []common.Candle, k int, th ThresholdSet, p Params) VolumeProfile {
	vp := VolumeProfile{Trend: VolumeStable}
	if k <= 0 || len(candles) < 2*k+1 {
		return vp
	}
	vols := make([]float64, len(candles))
	for i, c := range candles {
		vols[i] = c.Volume
	}
	n := len(vols)
	recent := mean(vols[n-k:])
	prior := mean(vols[n-2*k : n-k])
	if prior > 0 {
		vp.ChangePct = (recent/prior - 1) * 100
	}
	switch {
	case vp.ChangePct >= p.VolumeStrongPct:
		vp.Trend = VolumeStrongIncreasing
	case vp.ChangePct >= p.VolumePct:
		vp.Trend = VolumeIncreasing
	case vp.ChangePct <= -p.VolumeStrongPct:
		vp.Trend = VolumeStrongDecreasing
	case vp.ChangePct <= -p.VolumePct:
		vp.Trend = VolumeDecreasing
	}

	baseline := mean(vols[n-1-k : n-1])
	latest := vols[n-1]
	if baseline > 0 && th.VolumeSpike > 0 {
		vp.Spike = latest > baseline*th.VolumeSpike
		vp.Crash = latest < baseline/th.VolumeSpike
	}
	return vp
}

func lastN(candles []common.Candle, n int) []common.Candle {
	if n <= 0 {
		return nil
	}
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
