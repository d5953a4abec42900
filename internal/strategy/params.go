package strategy

// ThresholdSet holds the volatility-adaptive thresholds. Percent units.
type ThresholdSet struct {
	Acceleration      float64
	SignificantChange float64
	VolumeSpike       float64 // multiplier over the rolling volume mean
	RSIShift          float64 // widens (positive) or narrows RSI bands
}

// Bands is an overbought/oversold pair.
type Bands struct {
	Overbought float64
	Oversold   float64
}

// Windows are lookbacks at the 1h timeframe; other timeframes scale them.
type Windows struct {
	Volatility int
	Trend      int
	Volume     int
	Divergence int
}

// Params is one versioned threshold set for the engine. Alternative strategy
// tunings are alternative Params values, not alternative code.
type Params struct {
	Version string

	MinCandles     int
	HighVolatility float64 // percent, above is HIGH
	LowVolatility  float64 // percent, below is LOW
	Thresholds     map[VolatilityClass]ThresholdSet
	Windows        Windows

	RSIBands      map[TimeframeClass]Bands
	StochBands    Bands
	ADXStrong     float64
	ADXVeryStrong float64
	ADXWeak       float64

	VolumeStrongPct float64
	VolumePct       float64

	Weights          ScoreWeights
	TrendMultipliers map[Trend]Multiplier
	Decision         DecisionConfig
}

// Multiplier scales buy and sell scores.
type Multiplier struct {
	Buy  float64
	Sell float64
}

// DefaultParams returns the production threshold set.
func DefaultParams() Params {
	return Params{
		Version:        "v3",
		MinCandles:     20,
		HighVolatility: 3.0,
		LowVolatility:  1.0,
		Thresholds: map[VolatilityClass]ThresholdSet{
			VolatilityHigh:    {Acceleration: 0.5, SignificantChange: 1.5, VolumeSpike: 2.5, RSIShift: 5},
			VolatilityLow:     {Acceleration: 0.1, SignificantChange: 0.4, VolumeSpike: 1.8, RSIShift: -5},
			VolatilityDefault: {Acceleration: 0.25, SignificantChange: 0.8, VolumeSpike: 2.0},
		},
		Windows: Windows{Volatility: 14, Trend: 10, Volume: 5, Divergence: 14},
		RSIBands: map[TimeframeClass]Bands{
			TimeframeShort:  {Overbought: 75, Oversold: 25},
			TimeframeMedium: {Overbought: 70, Oversold: 30},
			TimeframeLong:   {Overbought: 65, Oversold: 35},
		},
		StochBands:      Bands{Overbought: 80, Oversold: 20},
		ADXWeak:         20,
		ADXStrong:       25,
		ADXVeryStrong:   40,
		VolumeStrongPct: 50,
		VolumePct:       15,
		Weights:         DefaultWeights(),
		TrendMultipliers: map[Trend]Multiplier{
			TrendStrongUp:   {Buy: 1.3, Sell: 0.7},
			TrendUp:         {Buy: 1.15, Sell: 0.85},
			TrendNeutral:    {Buy: 1, Sell: 1},
			TrendDown:       {Buy: 0.85, Sell: 1.15},
			TrendStrongDown: {Buy: 0.7, Sell: 1.3},
		},
		Decision: DefaultDecisionConfig(),
	}
}

// ThresholdsFor returns the threshold set of a volatility class.
func (p Params) ThresholdsFor(c VolatilityClass) ThresholdSet {
	if t, ok := p.Thresholds[c]; ok {
		return t
	}
	return p.Thresholds[VolatilityDefault]
}

// RSIBandsFor applies the volatility shift to the timeframe's RSI bands.
func (p Params) RSIBandsFor(tf TimeframeClass, th ThresholdSet) Bands {
	b := p.RSIBands[tf]
	return Bands{Overbought: b.Overbought + th.RSIShift, Oversold: b.Oversold - th.RSIShift}
}
