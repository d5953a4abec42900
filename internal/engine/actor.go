package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"consensus-trader/internal/events"
	"consensus-trader/internal/microstructure"
	"consensus-trader/internal/order"
	"consensus-trader/internal/reconciliation"
	"consensus-trader/internal/risk"
	"consensus-trader/internal/state"
	"consensus-trader/internal/strategy"
	"consensus-trader/pkg/config"
	"consensus-trader/pkg/exchanges/common"
)

// ErrActorStopped is returned by calls made after the actor loop ended.
var ErrActorStopped = errors.New("engine: actor stopped")

// MarketData is the REST side used to refill short or stale windows.
type MarketData interface {
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error)
	FetchDepth(ctx context.Context, symbol string, limit int) (common.OrderBook, error)
}

// Evaluator produces the multi-timeframe consensus. *strategy.Engine implements it.
type Evaluator interface {
	Evaluate(symbol string, windows map[string][]common.Candle, now time.Time) strategy.Consensus
}

// Rebuilder reconstructs a symbol from venue history.
type Rebuilder interface {
	Rebuild(ctx context.Context, symbol string) (reconciliation.Result, error)
}

// Executor runs controller actions off the actor goroutine. *order.AsyncExecutor implements it.
type Executor interface {
	ExecuteAsync(ctx context.Context, symbol string, act order.Action, done func(order.ExecutionResult)) bool
}

// Metrics receives per-symbol observations.
type Metrics interface {
	ObserveEvaluation(symbol string, took time.Duration, sig strategy.Signal)
	ObserveOrder(symbol string, kind order.ActionKind, err error)
	SetOpenTrade(symbol string, open bool)
}

type nopMetrics struct{}

func (nopMetrics) ObserveEvaluation(string, time.Duration, strategy.Signal) {}
func (nopMetrics) ObserveOrder(string, order.ActionKind, error)             {}
func (nopMetrics) SetOpenTrade(string, bool)                                {}

// Deps are the collaborators shared by every actor.
type Deps struct {
	Market     MarketData
	Evaluator  Evaluator
	Analyzer   *microstructure.Analyzer
	Controller *order.Controller
	Executor   Executor
	Rebuilder  Rebuilder // nil disables reconciliation
	Bus        events.Publisher
	Metrics    Metrics
	Log        *zap.Logger
	Now        func() time.Time
}

// ActorConfig is the per-symbol configuration.
type ActorConfig struct {
	Pair       config.Pair
	Timeframes []string
	WindowCap  int
	MinCandles int
	DepthLimit int
	BookMaxAge time.Duration
	InboxSize  int
}

type msgKind int

const (
	msgCandle msgKind = iota
	msgBook
	msgExecution
	msgOrderResult
	msgTick
	msgReconcile
	msgRebuilt
)

type message struct {
	kind      msgKind
	timeframe string
	candle    common.Candle
	book      common.OrderBook
	order     common.Order
	result    order.ExecutionResult
	rebuilt   reconciliation.Result
	seq       uint64
	ctx       context.Context
	reply     chan error
}

// SymbolActor owns one symbol's state. Everything that touches the state
// runs on its goroutine; other goroutines talk to it through the inbox and
// read it through Snapshot.
type SymbolActor struct {
	cfg   ActorConfig
	deps  Deps
	inbox chan message
	done  chan struct{}
	snap  atomic.Pointer[Snapshot]
	log   *zap.Logger

	// bumped by the actor goroutine on every order update, read by
	// Reconcile to detect rebuilds overtaken by newer order activity
	orderSeq atomic.Uint64

	// owned by the actor goroutine
	st            *state.SymbolState
	busy          bool
	needsRebuild  bool
	lastConsensus *strategy.Consensus
	lastAnalysis  *microstructure.Analysis
	lastAction    *order.Action
}

// NewSymbolActor builds an actor; Run starts it.
func NewSymbolActor(cfg ActorConfig, deps Deps) *SymbolActor {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Controller == nil {
		deps.Controller = order.NewController()
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = 256
	}
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = 20
	}
	if cfg.BookMaxAge <= 0 {
		cfg.BookMaxAge = 30 * time.Second
	}
	symbol := cfg.Pair.Symbol
	a := &SymbolActor{
		cfg:          cfg,
		deps:         deps,
		inbox:        make(chan message, cfg.InboxSize),
		done:         make(chan struct{}),
		log:          deps.Log.Named("actor").With(zap.String("symbol", symbol)),
		st:           state.New(symbol, cfg.Timeframes, cfg.WindowCap, risk.ParamsFor(cfg.Pair)),
		needsRebuild: deps.Rebuilder != nil,
	}
	a.publish()
	return a
}

// Symbol returns the traded symbol.
func (a *SymbolActor) Symbol() string { return a.cfg.Pair.Symbol }

// Snapshot returns the latest published state.
func (a *SymbolActor) Snapshot() Snapshot { return *a.snap.Load() }

// Run processes the inbox until ctx ends.
func (a *SymbolActor) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-a.inbox:
			err := a.safeHandle(ctx, m)
			a.publish()
			if m.reply != nil {
				m.reply <- err
			}
		}
	}
}

// OnCandle queues a streamed candle. It drops the candle when the inbox is full.
func (a *SymbolActor) OnCandle(tf string, c common.Candle) {
	a.offer(message{kind: msgCandle, timeframe: tf, candle: c})
}

// OnBook queues a streamed book. It drops the book when the inbox is full.
func (a *SymbolActor) OnBook(b common.OrderBook) {
	a.offer(message{kind: msgBook, book: b})
}

// OnExecution queues an owned execution report. It never drops.
func (a *SymbolActor) OnExecution(o common.Order) {
	a.send(message{kind: msgExecution, order: o})
}

// RequestReconcile marks the symbol for a rebuild on its next tick.
func (a *SymbolActor) RequestReconcile() {
	a.send(message{kind: msgReconcile})
}

// Tick runs one evaluation cycle and waits for it. An order placed by the
// tick completes asynchronously.
func (a *SymbolActor) Tick(ctx context.Context) error {
	return a.call(ctx, message{kind: msgTick})
}

// Reconcile rebuilds from venue history now. The fetch runs on the caller's
// goroutine; only applying the result runs on the actor.
func (a *SymbolActor) Reconcile(ctx context.Context) error {
	if a.deps.Rebuilder == nil {
		return nil
	}
	seq := a.orderSeq.Load()
	res, err := a.deps.Rebuilder.Rebuild(ctx, a.Symbol())
	if err != nil {
		return err
	}
	return a.call(ctx, message{kind: msgRebuilt, rebuilt: res, seq: seq})
}

func (a *SymbolActor) offer(m message) {
	select {
	case a.inbox <- m:
	default:
		a.log.Debug("inbox full, market update dropped")
	}
}

func (a *SymbolActor) send(m message) {
	select {
	case a.inbox <- m:
	case <-a.done:
	}
}

func (a *SymbolActor) call(ctx context.Context, m message) error {
	m.ctx = ctx
	m.reply = make(chan error, 1)
	select {
	case a.inbox <- m:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrActorStopped
	}
	select {
	case err := <-m.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrActorStopped
	}
}

// safeHandle keeps a panic in one symbol from taking down the process.
func (a *SymbolActor) safeHandle(ctx context.Context, m message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("panic in symbol actor", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("%s: panic: %v", a.Symbol(), r)
		}
	}()
	if m.ctx == nil {
		m.ctx = ctx
	}
	return a.handle(m)
}

func (a *SymbolActor) handle(m message) error {
	now := a.deps.Now()
	switch m.kind {
	case msgCandle:
		a.st.PushCandle(m.timeframe, m.candle)
	case msgBook:
		a.st.SetBook(m.book)
	case msgExecution:
		a.applyOrder(m.order, now)
	case msgOrderResult:
		a.onResult(m.result, now)
	case msgReconcile:
		a.needsRebuild = a.deps.Rebuilder != nil
	case msgRebuilt:
		return a.applyRebuild(m.rebuilt, m.seq)
	case msgTick:
		return a.tick(m.ctx, now)
	}
	return nil
}

func (a *SymbolActor) applyOrder(o common.Order, now time.Time) {
	a.orderSeq.Add(1)
	opened, closed := a.st.ApplyOrder(o, true, now)
	switch {
	case opened:
		a.log.Info("trade opened", zap.Int64("buy_order_id", o.OrderID), zap.Float64("entry", a.st.Trade.Entry), zap.Float64("qty", a.st.Trade.Qty))
		a.deps.Metrics.SetOpenTrade(a.Symbol(), true)
	case closed:
		a.log.Info("trade closed", zap.Int64("sell_order_id", o.OrderID), zap.Float64("price", o.AvgFillPrice()))
		a.deps.Metrics.SetOpenTrade(a.Symbol(), false)
	}
}

func (a *SymbolActor) onResult(r order.ExecutionResult, now time.Time) {
	a.busy = false
	a.orderSeq.Add(1)
	a.deps.Metrics.ObserveOrder(a.Symbol(), r.Action.Kind, r.Err)
	if r.Err != nil {
		a.log.Warn("order action failed", zap.String("action", string(r.Action.Kind)), zap.Error(r.Err))
		// the venue may hold a state we did not expect; rebuild before acting again
		if !common.IsPrecision(r.Err) {
			a.needsRebuild = a.deps.Rebuilder != nil
		}
		return
	}
	if r.Canceled != nil {
		c := *r.Canceled
		if c.UpdateTime == 0 {
			c.UpdateTime = now.UnixMilli()
		}
		a.applyOrder(c, now)
	}
	a.applyOrder(r.Order, now)
}

func (a *SymbolActor) applyRebuild(res reconciliation.Result, seq uint64) error {
	if a.busy || seq != a.orderSeq.Load() {
		a.log.Debug("stale rebuild discarded")
		a.needsRebuild = a.deps.Rebuilder != nil
		return nil
	}
	err := reconciliation.Apply(a.st, res)
	a.needsRebuild = false
	a.deps.Metrics.SetOpenTrade(a.Symbol(), a.st.Trade != nil)
	var conflict *reconciliation.ReconciliationConflict
	if errors.As(err, &conflict) && a.deps.Bus != nil {
		a.deps.Bus.Publish(events.EventRiskAlert, events.RiskAlert{
			Symbol: a.Symbol(),
			Rule:   "reconciliation_conflict",
			Price:  conflict.Entry,
			At:     a.deps.Now(),
		})
	}
	return err
}

func (a *SymbolActor) tick(ctx context.Context, now time.Time) error {
	if a.busy {
		a.log.Debug("tick skipped, order in flight")
		return nil
	}

	var errs error
	if a.needsRebuild {
		res, err := a.deps.Rebuilder.Rebuild(ctx, a.Symbol())
		if err != nil {
			return fmt.Errorf("%s: rebuild: %w", a.Symbol(), err)
		}
		if err := a.applyRebuild(res, a.orderSeq.Load()); err != nil {
			a.log.Warn("reconciliation conflict", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	errs = multierr.Append(errs, a.refresh(ctx, now))

	start := time.Now()
	cons := a.deps.Evaluator.Evaluate(a.Symbol(), a.st.Candles(), now)
	a.deps.Metrics.ObserveEvaluation(a.Symbol(), time.Since(start), cons.Signal)
	a.lastConsensus = &cons
	if !cons.Insufficient {
		a.st.SetMarket(cons.Volatility, cons.TrendConfidence)
	}

	micro := microstructure.Neutral
	if a.st.Book != nil && a.deps.Analyzer != nil {
		an := a.deps.Analyzer.Analyze(*a.st.Book, a.st.PrevBook)
		a.lastAnalysis = &an
		micro = an.Signal
	}

	a.st.UpdateRisk()

	view := order.View{
		Pair:           a.cfg.Pair,
		Price:          a.st.Price,
		Consensus:      cons.Signal,
		Micro:          micro,
		BearishPattern: cons.Patterns.BearishReversal(),
		Trade:          a.st.Trade,
		OpenOrders:     a.st.OpenOrders(),
		LastExit:       a.st.LastExit,
		Now:            now,
	}
	if l, ok := a.st.Latest(); ok {
		view.Latest = &l
	}
	act := a.deps.Controller.Decide(view)
	if act.Kind == order.ActNone {
		a.log.Debug("no action", zap.String("reason", act.Reason), zap.String("signal", string(cons.Signal)))
		return errs
	}

	a.lastAction = &act
	a.busy = true
	ok := a.deps.Executor.ExecuteAsync(ctx, a.Symbol(), act, func(r order.ExecutionResult) {
		a.send(message{kind: msgOrderResult, result: r})
	})
	if !ok {
		a.busy = false
		errs = multierr.Append(errs, fmt.Errorf("%s: executor closed", a.Symbol()))
	}
	return errs
}

// refresh reloads windows that are short or whose last candle is older
// than two intervals, and the book when it is missing or old.
func (a *SymbolActor) refresh(ctx context.Context, now time.Time) error {
	var errs error
	for _, tf := range a.cfg.Timeframes {
		w := a.st.Window(tf)
		if w == nil || !a.stale(w, tf, now) {
			continue
		}
		candles, err := a.deps.Market.FetchCandles(ctx, a.Symbol(), tf, a.cfg.WindowCap)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s %s candles: %w", a.Symbol(), tf, err))
			continue
		}
		a.st.Backfill(tf, candles)
	}

	if a.st.Book == nil || now.Sub(a.st.Book.Timestamp) > a.cfg.BookMaxAge {
		book, err := a.deps.Market.FetchDepth(ctx, a.Symbol(), a.cfg.DepthLimit)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s depth: %w", a.Symbol(), err))
		} else {
			if book.Timestamp.IsZero() {
				book.Timestamp = now
			}
			a.st.SetBook(book)
		}
	}
	if errs != nil {
		a.log.Warn("market refresh incomplete", zap.Error(errs))
	}
	return errs
}

func (a *SymbolActor) stale(w *state.CandleWindow, tf string, now time.Time) bool {
	if w.Len() < a.cfg.MinCandles {
		return true
	}
	last, ok := w.Last()
	if !ok {
		return true
	}
	d, err := common.IntervalDuration(tf)
	if err != nil {
		return false
	}
	return now.Sub(time.UnixMilli(last.OpenTime)) > 2*d
}

func (a *SymbolActor) publish() {
	s := &Snapshot{
		Symbol:     a.Symbol(),
		Price:      a.st.Price,
		Consensus:  a.lastConsensus,
		Book:       a.lastAnalysis,
		OpenOrders: a.st.OpenOrders(),
		LastAction: a.lastAction,
		LastExit:   a.st.LastExit,
		Candles:    make(map[string]int, len(a.cfg.Timeframes)),
		Busy:       a.busy,
		UpdatedAt:  a.deps.Now(),
	}
	if a.st.Trade != nil {
		t := *a.st.Trade
		s.Trade = &t
		s.PnLPct = t.Levels.PnLPct(a.st.Price)
	}
	for _, tf := range a.cfg.Timeframes {
		if w := a.st.Window(tf); w != nil {
			s.Candles[tf] = w.Len()
		}
	}
	a.snap.Store(s)
}
