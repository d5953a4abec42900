package strategy

import (
	"math"
	"testing"
	"time"

	"consensus-trader/internal/events"
	"consensus-trader/internal/indicators"
	"consensus-trader/pkg/exchanges/common"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	rsi []float64
}

func (f fakeProvider) Compute(candles []common.Candle) (indicators.Snapshot, bool) {
	if len(candles) < indicators.MinCandles {
		return indicators.Snapshot{}, false
	}
	rsi := make([]float64, len(candles))
	copy(rsi[len(rsi)-len(f.rsi):], f.rsi)
	return indicators.Snapshot{RSI: rsi}, true
}

// steadyCandles moves the close by step (1.01 = +1%) every candle with a
// growing volume, producing strong-bodied candles in the move's direction.
func steadyCandles(n int, step float64) []common.Candle {
	out := make([]common.Candle, n)
	prev := 100 / step
	for i := range out {
		cl := 100 * math.Pow(step, float64(i))
		var c common.Candle
		if step > 1 {
			op := prev * 0.999
			c = common.Candle{Open: op, Close: cl, High: cl * 1.001, Low: op * 0.999}
		} else {
			op := prev * 1.001
			c = common.Candle{Open: op, Close: cl, High: op * 1.001, Low: cl * 0.999}
		}
		c.OpenTime = int64(i+1) * 60_000
		c.Volume = 100 * math.Pow(1.05, float64(i))
		c.Closed = true
		out[i] = c
		prev = cl
	}
	return out
}

func windowsFor(candles []common.Candle) map[string][]common.Candle {
	return map[string][]common.Candle{"15m": candles, "1h": candles, "4h": candles}
}

func TestEvaluateScenarios(t *testing.T) {
	tests := []struct {
		name       string
		step       float64
		rsi        []float64
		wantTF     Signal
		wantTrend  Trend
		wantBuy    float64
		wantSell   float64
		wantSignal Signal
	}{
		{
			name:       "steady rally with rsi leaving oversold",
			step:       1.01,
			rsi:        []float64{22, 36},
			wantTF:     StrongBuy,
			wantTrend:  TrendStrongUp,
			wantBuy:    8.0 * 1.3,
			wantSignal: StrongBuy,
		},
		{
			name:       "steady decline with rsi leaving overbought",
			step:       0.99,
			rsi:        []float64{78, 64},
			wantTF:     StrongSell,
			wantTrend:  TrendStrongDown,
			wantSell:   8.0 * 1.3,
			wantSignal: StrongSell,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(fakeProvider{rsi: tt.rsi}, []string{"15m", "1h", "4h"}, DefaultConsensusConfig(), nil)
			candles := steadyCandles(30, tt.step)

			for _, tf := range e.Timeframes() {
				r := e.EvaluateTimeframe(tf, candles)
				require.False(t, r.Insufficient, r.Reason)
				require.Equal(t, VolatilityDefault, r.VolatilityClass, tf)
				require.Equal(t, tt.wantTrend, r.Trend, tf)
				require.InDelta(t, tt.wantBuy, r.BuyScore, 1e-9, tf)
				require.InDelta(t, tt.wantSell, r.SellScore, 1e-9, tf)
				require.Equal(t, tt.wantTF, r.Signal, tf)
				require.NotEmpty(t, r.Contributors, tf)
				require.Equal(t, len(r.Contributors), cap(r.Contributors), "contributors own their backing array")
			}

			c := e.Evaluate("BTCUSDT", windowsFor(candles), time.Unix(0, 0))
			require.Equal(t, tt.wantSignal, c.Signal)
			require.False(t, c.Insufficient)
			require.Len(t, c.Timeframes, 3)
			require.InDelta(t, 1.0/1.6, c.TrendConfidence, 1e-9)
			require.Greater(t, c.Volatility, 1.0)
		})
	}
}

func TestEvaluateInsufficient(t *testing.T) {
	e := NewEngine(fakeProvider{rsi: []float64{22, 36}}, []string{"15m", "1h", "4h"}, DefaultConsensusConfig(), nil)
	candles := steadyCandles(19, 1.01)

	r := e.EvaluateTimeframe("1h", candles)
	require.True(t, r.Insufficient)
	require.Equal(t, Hold, r.Signal)

	c := e.Evaluate("BTCUSDT", windowsFor(candles), time.Now())
	require.True(t, c.Insufficient)
	require.Equal(t, Hold, c.Signal)

	c = e.Evaluate("BTCUSDT", nil, time.Now())
	require.True(t, c.Insufficient)
}

func TestEvaluateRejectsBadCandles(t *testing.T) {
	e := NewEngine(fakeProvider{}, []string{"1h"}, DefaultConsensusConfig(), nil)
	candles := steadyCandles(30, 1.01)
	candles[10].Low = -1

	r := e.EvaluateTimeframe("1h", candles)
	require.True(t, r.Insufficient)
	require.Contains(t, r.Reason, "candle[10]")

	r = e.EvaluateTimeframe("7x", steadyCandles(30, 1.01))
	require.True(t, r.Insufficient)
}

type recordingPublisher struct{ n int }

func (p *recordingPublisher) Publish(_ events.Event, _ any) { p.n++ }

func TestEvaluatePublishesTerminalOnly(t *testing.T) {
	pub := &recordingPublisher{}
	e := NewEngine(fakeProvider{rsi: []float64{22, 36}}, []string{"15m", "1h", "4h"}, DefaultConsensusConfig(), nil, WithPublisher(pub))

	e.Evaluate("BTCUSDT", windowsFor(steadyCandles(30, 1.01)), time.Now())
	require.Equal(t, 1, pub.n)

	e.Evaluate("BTCUSDT", windowsFor(steadyCandles(10, 1.01)), time.Now())
	require.Equal(t, 1, pub.n)
}
