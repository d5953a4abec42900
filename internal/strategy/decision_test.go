package strategy

import (
	"math/rand"
	"testing"
	"time"

	"consensus-trader/internal/indicators"

	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	cfg := DefaultDecisionConfig()
	tests := []struct {
		name      string
		buy, sell float64
		trend     Trend
		early     bool
		earlySell bool
		want      Signal
	}{
		{"conflict", 7, 6.5, TrendNeutral, false, false, Conflict},
		{"strong buy needs up trend", 11, 0, TrendUp, false, false, StrongBuy},
		{"strong score in flat trend is buy", 11, 0, TrendNeutral, false, false, Buy},
		{"buy", 6.5, 1, TrendNeutral, false, false, Buy},
		{"early buy", 4, 1, TrendDown, true, false, EarlyBuy},
		{"weak buy", 4, 1, TrendNeutral, false, false, WeakBuy},
		{"not dominant enough", 5, 3.5, TrendNeutral, false, false, Hold},
		{"below weak", 2.5, 0, TrendNeutral, false, false, Hold},
		{"strong sell", 0, 12, TrendStrongDown, false, false, StrongSell},
		{"sell", 1, 7, TrendUp, false, false, Sell},
		{"early sell", 0, 2.5, TrendUp, false, true, EarlySell},
		{"weak sell", 0, 3, TrendNeutral, false, false, WeakSell},
		{"nothing", 0, 0, TrendNeutral, false, false, Hold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Decide(tt.buy, tt.sell, tt.trend, tt.early, tt.earlySell, cfg))
		})
	}
}

func TestDecideAlwaysValid(t *testing.T) {
	cfg := DefaultDecisionConfig()
	trends := []Trend{TrendStrongUp, TrendUp, TrendNeutral, TrendDown, TrendStrongDown}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		s := Decide(rng.Float64()*20, rng.Float64()*20, trends[rng.Intn(len(trends))], rng.Intn(2) == 0, rng.Intn(2) == 0, cfg)
		require.True(t, s.Valid(), "%q", s)
	}
}

var strength = map[Signal]int{
	StrongBuy: 3, Buy: 2, WeakBuy: 1, EarlyBuy: 1, Hold: 0,
	StrongSell: 3, Sell: 2, WeakSell: 1, EarlySell: 1, Conflict: 0,
}

func TestValidateNeverStrengthens(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	trends := []Trend{TrendStrongUp, TrendUp, TrendNeutral, TrendDown, TrendStrongDown}
	divs := []Divergence{DivergenceNone, DivergenceBullish, DivergenceBearish}
	for i := 0; i < 5000; i++ {
		in := ValidationInput{
			MACD:         MACDReading{Divergence: divs[rng.Intn(3)], DivergenceConfirmed: rng.Intn(2) == 0},
			HasMACD:      rng.Intn(2) == 0,
			RSI:          RSIReading{Overbought: rng.Intn(2) == 0, Oversold: rng.Intn(2) == 0},
			HasRSI:       true,
			Trend:        trends[rng.Intn(len(trends))],
			Volume:       VolumeProfile{Spike: rng.Intn(2) == 0, Crash: rng.Intn(2) == 0},
			LastCandleUp: rng.Intn(2) == 0,
		}
		sig := Signals[rng.Intn(len(Signals))]
		got := Validate(sig, in)
		require.LessOrEqual(t, strength[got], strength[sig])
		if got != Hold {
			require.Equal(t, sig.Bullish(), got.Bullish())
			require.Equal(t, sig.Bearish(), got.Bearish())
		}
	}
}

func TestValidateDowngrades(t *testing.T) {
	bearishDiv := MACDReading{Divergence: DivergenceBearish}
	tests := []struct {
		name string
		sig  Signal
		in   ValidationInput
		want Signal
	}{
		{"clean buy", StrongBuy, ValidationInput{Trend: TrendUp}, StrongBuy},
		{"strong down trend", StrongBuy, ValidationInput{Trend: TrendStrongDown}, Buy},
		{"two contradictions", StrongBuy, ValidationInput{Trend: TrendStrongDown, Volume: VolumeProfile{Crash: true}}, WeakBuy},
		{"confirmed divergence is ignored", Buy, ValidationInput{MACD: MACDReading{Divergence: DivergenceBearish, DivergenceConfirmed: true}, HasMACD: true}, Buy},
		{"unconfirmed divergence", Buy, ValidationInput{MACD: bearishDiv, HasMACD: true}, WeakBuy},
		{"early buy drops to hold", EarlyBuy, ValidationInput{RSI: RSIReading{Overbought: true}, HasRSI: true}, Hold},
		{"all four", StrongBuy, ValidationInput{MACD: bearishDiv, HasMACD: true, RSI: RSIReading{Overbought: true}, HasRSI: true, Trend: TrendStrongDown, Volume: VolumeProfile{Crash: true}}, Hold},
		{"sell into spike up", Sell, ValidationInput{Volume: VolumeProfile{Spike: true}, LastCandleUp: true}, WeakSell},
		{"sell into spike down", Sell, ValidationInput{Volume: VolumeProfile{Spike: true}}, Sell},
		{"oversold sell", WeakSell, ValidationInput{RSI: RSIReading{Oversold: true}, HasRSI: true}, Hold},
		{"hold untouched", Hold, ValidationInput{Trend: TrendStrongDown}, Hold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Validate(tt.sig, tt.in))
		})
	}
}

func TestAggregate(t *testing.T) {
	cfg := DefaultConsensusConfig()
	tf := func(name string, s Signal, buy, sell float64) TimeframeResult {
		return TimeframeResult{Timeframe: name, Signal: s, BuyScore: buy, SellScore: sell}
	}
	tests := []struct {
		name    string
		results []TimeframeResult
		want    Signal
	}{
		{"aligned buys", []TimeframeResult{tf("15m", Buy, 7, 1), tf("1h", Buy, 7, 1), tf("4h", Buy, 7, 1)}, Buy},
		{"aligned strong buys", []TimeframeResult{tf("15m", StrongBuy, 12, 0), tf("1h", StrongBuy, 12, 0), tf("4h", Buy, 8, 0)}, StrongBuy},
		{"single bullish tf lacks agreement", []TimeframeResult{tf("15m", Buy, 8, 0), tf("1h", Hold, 1, 1), tf("4h", Hold, 1, 1)}, Hold},
		{"early majority", []TimeframeResult{tf("15m", EarlyBuy, 1, 0), tf("1h", EarlyBuy, 1, 0), tf("4h", Hold, 1, 1)}, EarlyBuy},
		{"aligned sells", []TimeframeResult{tf("15m", Sell, 1, 7), tf("1h", Sell, 1, 7), tf("4h", Sell, 1, 7)}, Sell},
		{"split", []TimeframeResult{tf("15m", Buy, 7, 1), tf("1h", Buy, 7, 1), tf("4h", Sell, 1, 7), tf("1d", Sell, 1, 7)}, Conflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Aggregate("ETHUSDT", tt.results, cfg, time.Time{})
			require.Equal(t, tt.want, c.Signal, "%+v", c)
			require.False(t, c.Insufficient)
		})
	}

	c := Aggregate("ETHUSDT", []TimeframeResult{{Timeframe: "1h", Signal: Hold, Insufficient: true}}, cfg, time.Time{})
	require.True(t, c.Insufficient)
	require.Equal(t, Hold, c.Signal)
}

func TestAnalyzeMACDDivergence(t *testing.T) {
	// price: lower low in the second half; histogram: higher (still negative) low.
	closes := []float64{100, 98, 96, 94, 95, 97, 98, 97, 95, 93, 92, 94, 95, 96}
	hist := []float64{-1, -2, -3, -4, -3, -2, -1, -1, -1.5, -2, -2.5, -2, -1.5, -1}
	line := make([]float64, len(hist))
	signal := make([]float64, len(hist))
	for i := range line {
		line[i] = -1
		signal[i] = -0.5
	}
	line[len(line)-1] = 0 // crossed above the signal line on the last bar

	snap := indicators.Snapshot{MACD: indicators.MACDSeries{Line: line, Signal: signal, Histogram: hist}}
	r := Analyze(indicators.MACD, AnalyzerInput{Snapshot: snap, Closes: closes, Params: DefaultParams()})
	m, ok := r.(MACDReading)
	require.True(t, ok)
	require.Equal(t, DivergenceBullish, m.Divergence)
	require.True(t, m.DivergenceConfirmed)
	require.True(t, m.BullishSignalCross)
	require.True(t, m.HistogramRising)
}

func TestAnalyzeUnavailable(t *testing.T) {
	for _, k := range indicators.Kinds {
		r := Analyze(k, AnalyzerInput{Params: DefaultParams()})
		u, ok := r.(Unavailable)
		require.True(t, ok, k.String())
		require.Equal(t, k, u.Kind())
	}
}

func TestAnalyzeRSIBandsShiftWithVolatility(t *testing.T) {
	p := DefaultParams()
	snap := indicators.Snapshot{RSI: []float64{70, 72}}
	in := AnalyzerInput{Snapshot: snap, Timeframe: TimeframeMedium, Params: p}

	in.Thresholds = p.ThresholdsFor(VolatilityDefault)
	require.True(t, Analyze(indicators.RSI, in).(RSIReading).Overbought)

	in.Thresholds = p.ThresholdsFor(VolatilityHigh)
	require.False(t, Analyze(indicators.RSI, in).(RSIReading).Overbought)
}

func TestScoreAppliesTrendMultiplier(t *testing.T) {
	p := DefaultParams()
	buy := []Contributor{RSIOversold, MACDSignalCrossUp}
	sell := []Contributor{EMAPriceBelow}

	b, s := Score(buy, sell, TrendNeutral, p)
	require.InDelta(t, 4.0, b, 1e-9)
	require.InDelta(t, 0.75, s, 1e-9)

	b, s = Score(buy, sell, TrendStrongDown, p)
	require.InDelta(t, 2.8, b, 1e-9)
	require.InDelta(t, 0.975, s, 1e-9)

	w := DefaultWeights()
	require.Len(t, w.Buy, 23)
	require.Len(t, w.Sell, 23)
}
