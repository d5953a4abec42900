package strategy

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"consensus-trader/internal/events"
	"consensus-trader/internal/indicators"
	"consensus-trader/pkg/exchanges/common"
)

// Engine evaluates every configured timeframe of a symbol and folds the
// results into a consensus. It holds no per-symbol state and is safe for
// concurrent use.
type Engine struct {
	params     Params
	provider   indicators.Provider
	consensus  ConsensusConfig
	timeframes []string
	bus        events.Publisher
	log        *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithParams replaces the default threshold set.
func WithParams(p Params) Option { return func(e *Engine) { e.params = p } }

// WithPublisher publishes terminal consensus signals.
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.bus = p } }

// NewEngine builds an engine for the given timeframes. The first timeframe is
// the primary one: its volatility, trend confidence and patterns are carried
// on the consensus.
func NewEngine(provider indicators.Provider, timeframes []string, cfg ConsensusConfig, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		params:     DefaultParams(),
		provider:   provider,
		consensus:  cfg,
		timeframes: append([]string(nil), timeframes...),
		log:        log.Named("strategy"),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Timeframes returns the evaluated timeframes in order.
func (e *Engine) Timeframes() []string { return append([]string(nil), e.timeframes...) }

// Params returns the active threshold set.
func (e *Engine) Params() Params { return e.params }

// EvaluateTimeframe produces the signal of one timeframe. A window the
// indicators cannot cover yields an insufficient HOLD, never an error.
func (e *Engine) EvaluateTimeframe(tf string, candles []common.Candle) TimeframeResult {
	res := TimeframeResult{Timeframe: tf, Signal: Hold, Trend: TrendNeutral, Volume: VolumeProfile{Trend: VolumeStable}}
	insufficient := func(reason string) TimeframeResult {
		res.Insufficient = true
		res.Reason = reason
		return res
	}

	hours, err := ParseTimeframe(tf)
	if err != nil {
		return insufficient(err.Error())
	}
	if len(candles) < e.params.MinCandles {
		return insufficient(fmt.Sprintf("%v: %d candles, need %d", common.ErrInsufficientData, len(candles), e.params.MinCandles))
	}
	if err := ValidateCandles(candles); err != nil {
		return insufficient(err.Error())
	}
	snap, ok := e.provider.Compute(candles)
	if !ok {
		return insufficient(common.ErrInsufficientData.Error())
	}

	p := e.params
	res.Volatility = Volatility(candles, ScaleWindow(p.Windows.Volatility, hours))
	res.VolatilityClass = ClassifyVolatility(res.Volatility, p)
	th := p.ThresholdsFor(res.VolatilityClass)

	res.AvgChangePct, res.Acceleration = PriceMomentum(candles, ScaleWindow(p.Windows.Trend, hours))
	res.Trend = ClassifyTrend(res.AvgChangePct, res.Acceleration, th)
	res.Volume = AnalyzeVolume(candles, ScaleWindow(p.Windows.Volume, hours), th, p)
	res.Patterns = DetectPatterns(candles)

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	readings := AnalyzeAll(AnalyzerInput{
		Snapshot:   snap,
		Closes:     closes,
		Timeframe:  ClassifyTimeframe(hours),
		Thresholds: th,
		Params:     p,
	})

	last := candles[len(candles)-1]
	lastUp := last.Close > last.Open
	buyC, sellC := Features(FeatureInput{
		Readings:     readings,
		Trend:        res.Trend,
		Volume:       res.Volume,
		Patterns:     res.Patterns,
		LastCandleUp: lastUp,
	})
	res.BuyScore, res.SellScore = Score(buyC, sellC, res.Trend, p)
	res.Contributors = make([]Contributor, 0, len(buyC)+len(sellC))
	res.Contributors = append(append(res.Contributors, buyC...), sellC...)

	vin := ValidationInput{Trend: res.Trend, Volume: res.Volume, LastCandleUp: lastUp}
	var rsiUp, rsiDown, stochUp, stochDown bool
	for _, r := range readings {
		switch r := r.(type) {
		case RSIReading:
			vin.RSI, vin.HasRSI = r, true
			rsiUp, rsiDown = r.CrossedAboveOversold, r.CrossedBelowOverbought
		case StochRSIReading:
			stochUp, stochDown = r.BullishCross, r.BearishCross
		case MACDReading:
			vin.MACD, vin.HasMACD = r, true
		}
	}
	earlyBuy := res.Trend.Rank() <= 0 && res.Acceleration >= th.Acceleration && (rsiUp || stochUp)
	earlySell := res.Trend.Rank() >= 0 && res.Acceleration <= -th.Acceleration && (rsiDown || stochDown)

	sig := Decide(res.BuyScore, res.SellScore, res.Trend, earlyBuy, earlySell, p.Decision)
	res.Signal = Validate(sig, vin)
	return res
}

// Evaluate runs every timeframe and aggregates. Timeframes missing from
// windows count as insufficient.
func (e *Engine) Evaluate(symbol string, windows map[string][]common.Candle, now time.Time) Consensus {
	results := make([]TimeframeResult, 0, len(e.timeframes))
	for _, tf := range e.timeframes {
		results = append(results, e.EvaluateTimeframe(tf, windows[tf]))
	}
	c := Aggregate(symbol, results, e.consensus, now)

	for _, r := range results {
		if r.Insufficient {
			continue
		}
		c.Volatility = r.Volatility
		c.TrendConfidence = TrendConfidence(r.AvgChangePct, e.params.ThresholdsFor(r.VolatilityClass))
		c.Patterns = r.Patterns
		break
	}

	e.log.Info("consensus",
		zap.String("symbol", symbol),
		zap.String("signal", string(c.Signal)),
		zap.Float64("buy", c.NormalizedBuy),
		zap.Float64("sell", c.NormalizedSell),
		zap.Int("bullish", c.Agreement.Bullish),
		zap.Int("bearish", c.Agreement.Bearish),
		zap.Bool("insufficient", c.Insufficient))

	if e.bus != nil && c.Signal.Terminal() {
		e.bus.Publish(events.EventConsensusSignal, events.ConsensusSignal{
			Symbol:         symbol,
			Signal:         string(c.Signal),
			NormalizedBuy:  c.NormalizedBuy,
			NormalizedSell: c.NormalizedSell,
			At:             now,
		})
	}
	return c
}
