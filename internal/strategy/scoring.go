package strategy

// Contributor names one scoring feature. The weight table is keyed by it so
// alternative tunings are data.
type Contributor string

const (
	RSIOversold        Contributor = "rsi_oversold"
	RSICrossUpOversold Contributor = "rsi_cross_up_oversold"
	RSIRisingBelowMid  Contributor = "rsi_rising_below_mid"
	StochOversold      Contributor = "stoch_oversold"
	StochBullCross     Contributor = "stoch_bull_cross"
	MACDSignalCrossUp  Contributor = "macd_signal_cross_up"
	MACDZeroCrossUp    Contributor = "macd_zero_cross_up"
	MACDHistRising     Contributor = "macd_hist_rising"
	MACDBullDivergence Contributor = "macd_bull_divergence"
	AOZeroCrossUp      Contributor = "ao_zero_cross_up"
	AORising           Contributor = "ao_rising"
	ADXStrongBull      Contributor = "adx_strong_bull"
	DICrossUp          Contributor = "di_cross_up"
	EMAPriceAbove      Contributor = "ema_price_above"
	EMACrossUp         Contributor = "ema_cross_up"
	ATRExpandingUp     Contributor = "atr_expanding_up"
	TrendStrongUpScore Contributor = "trend_strong_up"
	TrendUpScore       Contributor = "trend_up"
	VolumeRisingUp     Contributor = "volume_rising_up"
	VolumeSpikeUp      Contributor = "volume_spike_up"
	PatternSoldiers    Contributor = "three_white_soldiers"
	PatternMorningStar Contributor = "morning_star"
	PatternBullEngulf  Contributor = "bullish_engulfing"

	RSIOverbought          Contributor = "rsi_overbought"
	RSICrossDownOverbought Contributor = "rsi_cross_down_overbought"
	RSIFallingAboveMid     Contributor = "rsi_falling_above_mid"
	StochOverbought        Contributor = "stoch_overbought"
	StochBearCross         Contributor = "stoch_bear_cross"
	MACDSignalCrossDown    Contributor = "macd_signal_cross_down"
	MACDZeroCrossDown      Contributor = "macd_zero_cross_down"
	MACDHistFalling        Contributor = "macd_hist_falling"
	MACDBearDivergence     Contributor = "macd_bear_divergence"
	AOZeroCrossDown        Contributor = "ao_zero_cross_down"
	AOFalling              Contributor = "ao_falling"
	ADXStrongBear          Contributor = "adx_strong_bear"
	DICrossDown            Contributor = "di_cross_down"
	EMAPriceBelow          Contributor = "ema_price_below"
	EMACrossDown           Contributor = "ema_cross_down"
	ATRExpandingDown       Contributor = "atr_expanding_down"
	TrendStrongDownScore   Contributor = "trend_strong_down"
	TrendDownScore         Contributor = "trend_down"
	VolumeRisingDown       Contributor = "volume_rising_down"
	VolumeSpikeDown        Contributor = "volume_spike_down"
	PatternCrows           Contributor = "three_black_crows"
	PatternEveningStar     Contributor = "evening_star"
	PatternBearEngulf      Contributor = "bearish_engulfing"
)

// ScoreWeights maps contributors to points for each side.
type ScoreWeights struct {
	Buy  map[Contributor]float64
	Sell map[Contributor]float64
}

// DefaultWeights is the v3 weight table. The sell side mirrors the buy side.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Buy: map[Contributor]float64{
			RSIOversold:        2.0,
			RSICrossUpOversold: 2.5,
			RSIRisingBelowMid:  0.5,
			StochOversold:      1.0,
			StochBullCross:     1.5,
			MACDSignalCrossUp:  2.0,
			MACDZeroCrossUp:    1.5,
			MACDHistRising:     0.75,
			MACDBullDivergence: 2.0,
			AOZeroCrossUp:      1.25,
			AORising:           0.5,
			ADXStrongBull:      1.5,
			DICrossUp:          1.0,
			EMAPriceAbove:      0.75,
			EMACrossUp:         1.25,
			ATRExpandingUp:     0.5,
			TrendStrongUpScore: 2.0,
			TrendUpScore:       1.0,
			VolumeRisingUp:     1.0,
			VolumeSpikeUp:      1.25,
			PatternSoldiers:    2.0,
			PatternMorningStar: 2.0,
			PatternBullEngulf:  1.5,
		},
		Sell: map[Contributor]float64{
			RSIOverbought:          2.0,
			RSICrossDownOverbought: 2.5,
			RSIFallingAboveMid:     0.5,
			StochOverbought:        1.0,
			StochBearCross:         1.5,
			MACDSignalCrossDown:    2.0,
			MACDZeroCrossDown:      1.5,
			MACDHistFalling:        0.75,
			MACDBearDivergence:     2.0,
			AOZeroCrossDown:        1.25,
			AOFalling:              0.5,
			ADXStrongBear:          1.5,
			DICrossDown:            1.0,
			EMAPriceBelow:          0.75,
			EMACrossDown:           1.25,
			ATRExpandingDown:       0.5,
			TrendStrongDownScore:   2.0,
			TrendDownScore:         1.0,
			VolumeRisingDown:       1.0,
			VolumeSpikeDown:        1.25,
			PatternCrows:           2.0,
			PatternEveningStar:     2.0,
			PatternBearEngulf:      1.5,
		},
	}
}

// FeatureInput is everything the contributor extraction looks at.
type FeatureInput struct {
	Readings     []Reading
	Trend        Trend
	Volume       VolumeProfile
	Patterns     PatternFlags
	LastCandleUp bool
}

// Features lists the contributors that fire, bullish ones first.
func Features(in FeatureInput) (buy, sell []Contributor) {
	add := func(cond bool, dst *[]Contributor, c Contributor) {
		if cond {
			*dst = append(*dst, c)
		}
	}
	for _, r := range in.Readings {
		switch r := r.(type) {
		case RSIReading:
			mid := (r.Bands.Overbought + r.Bands.Oversold) / 2
			add(r.Oversold, &buy, RSIOversold)
			add(r.CrossedAboveOversold, &buy, RSICrossUpOversold)
			add(r.Rising && r.Value < mid && !r.Oversold, &buy, RSIRisingBelowMid)
			add(r.Overbought, &sell, RSIOverbought)
			add(r.CrossedBelowOverbought, &sell, RSICrossDownOverbought)
			add(!r.Rising && r.Value > mid && !r.Overbought, &sell, RSIFallingAboveMid)
		case StochRSIReading:
			add(r.Oversold, &buy, StochOversold)
			add(r.BullishCross, &buy, StochBullCross)
			add(r.Overbought, &sell, StochOverbought)
			add(r.BearishCross, &sell, StochBearCross)
		case MACDReading:
			add(r.BullishSignalCross, &buy, MACDSignalCrossUp)
			add(r.BullishZeroCross, &buy, MACDZeroCrossUp)
			add(r.HistogramRising, &buy, MACDHistRising)
			add(r.Divergence == DivergenceBullish, &buy, MACDBullDivergence)
			add(r.BearishSignalCross, &sell, MACDSignalCrossDown)
			add(r.BearishZeroCross, &sell, MACDZeroCrossDown)
			add(r.HistogramFalling, &sell, MACDHistFalling)
			add(r.Divergence == DivergenceBearish, &sell, MACDBearDivergence)
		case AOReading:
			add(r.BullishZeroCross, &buy, AOZeroCrossUp)
			add(r.Rising && r.AboveZero, &buy, AORising)
			add(r.BearishZeroCross, &sell, AOZeroCrossDown)
			add(!r.Rising && !r.AboveZero, &sell, AOFalling)
		case ADXReading:
			strong := r.Strength == StrengthStrong || r.Strength == StrengthVeryStrong
			add(strong && r.BullishDI, &buy, ADXStrongBull)
			add(r.DICrossUp, &buy, DICrossUp)
			add(strong && r.BearishDI, &sell, ADXStrongBear)
			add(r.DICrossDown, &sell, DICrossDown)
		case ATRReading:
			add(r.Rising && in.LastCandleUp, &buy, ATRExpandingUp)
			add(r.Rising && !in.LastCandleUp, &sell, ATRExpandingDown)
		case EMAReading:
			add(r.PriceAbove, &buy, EMAPriceAbove)
			add(r.CrossedAbove, &buy, EMACrossUp)
			add(!r.PriceAbove, &sell, EMAPriceBelow)
			add(r.CrossedBelow, &sell, EMACrossDown)
		}
	}

	add(in.Trend == TrendStrongUp, &buy, TrendStrongUpScore)
	add(in.Trend == TrendUp, &buy, TrendUpScore)
	add(in.Trend == TrendStrongDown, &sell, TrendStrongDownScore)
	add(in.Trend == TrendDown, &sell, TrendDownScore)

	rising := in.Volume.Trend == VolumeIncreasing || in.Volume.Trend == VolumeStrongIncreasing
	add(rising && in.LastCandleUp, &buy, VolumeRisingUp)
	add(in.Volume.Spike && in.LastCandleUp, &buy, VolumeSpikeUp)
	add(rising && !in.LastCandleUp, &sell, VolumeRisingDown)
	add(in.Volume.Spike && !in.LastCandleUp, &sell, VolumeSpikeDown)

	add(in.Patterns.ThreeWhiteSoldiers, &buy, PatternSoldiers)
	add(in.Patterns.MorningStar, &buy, PatternMorningStar)
	add(in.Patterns.BullishEngulfing, &buy, PatternBullEngulf)
	add(in.Patterns.ThreeBlackCrows, &sell, PatternCrows)
	add(in.Patterns.EveningStar, &sell, PatternEveningStar)
	add(in.Patterns.BearishEngulfing, &sell, PatternBearEngulf)
	return buy, sell
}

// Score sums the weights of the firing contributors and applies the trend
// multiplier pair.
func Score(buy, sell []Contributor, trend Trend, p Params) (buyScore, sellScore float64) {
	for _, c := range buy {
		buyScore += p.Weights.Buy[c]
	}
	for _, c := range sell {
		sellScore += p.Weights.Sell[c]
	}
	m, ok := p.TrendMultipliers[trend]
	if !ok {
		m = Multiplier{Buy: 1, Sell: 1}
	}
	return buyScore * m.Buy, sellScore * m.Sell
}
