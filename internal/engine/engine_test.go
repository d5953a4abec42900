package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"consensus-trader/internal/events"
	"consensus-trader/internal/microstructure"
	"consensus-trader/internal/order"
	"consensus-trader/internal/reconciliation"
	"consensus-trader/internal/strategy"
	"consensus-trader/pkg/config"
	"consensus-trader/pkg/exchanges/common"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeMarket struct {
	mu      sync.Mutex
	candles int
	depth   int
	failFor string
	mid     float64 // 100 when unset
}

func (m *fakeMarket) FetchCandles(_ context.Context, symbol, interval string, limit int) ([]common.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles++
	if symbol == m.failFor {
		return nil, errors.New("venue down")
	}
	out := make([]common.Candle, 30)
	for i := range out {
		open := t0.Add(-time.Duration(len(out)-i) * time.Hour)
		out[i] = common.Candle{OpenTime: open.UnixMilli(), Open: 100, High: 100, Low: 100, Close: 100, Volume: 1, Closed: true}
	}
	return out, nil
}

func (m *fakeMarket) FetchDepth(_ context.Context, symbol string, limit int) (common.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depth++
	if symbol == m.failFor {
		return common.OrderBook{}, errors.New("venue down")
	}
	mid := m.mid
	if mid == 0 {
		mid = 100
	}
	b := common.OrderBook{Symbol: symbol}
	for i := 1; i <= 5; i++ {
		b.Bids = append(b.Bids, common.Level{Price: mid - 0.1*float64(i), Qty: 1})
		b.Asks = append(b.Asks, common.Level{Price: mid + 0.1*float64(i), Qty: 1})
	}
	return b, nil
}

func (m *fakeMarket) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.candles, m.depth
}

type fixedEvaluator struct {
	signal strategy.Signal
	panics bool
}

func (e fixedEvaluator) Evaluate(symbol string, _ map[string][]common.Candle, now time.Time) strategy.Consensus {
	if e.panics {
		panic("indicator blew up")
	}
	return strategy.Consensus{Symbol: symbol, Signal: e.signal, At: now}
}

type fakeGateway struct {
	mu      sync.Mutex
	submits []common.OrderRequest
	gate    chan struct{}
}

func (g *fakeGateway) SubmitOrder(_ context.Context, req common.OrderRequest) (common.Order, error) {
	if g.gate != nil {
		<-g.gate
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits = append(g.submits, req)
	return common.Order{
		OrderID: int64(len(g.submits)), ClientOrderID: req.ClientID, Symbol: req.Symbol,
		Side: req.Side, Type: req.Type, Status: common.StatusNew, Price: req.Price, OrigQty: req.Qty,
		UpdateTime: t0.UnixMilli(),
	}, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, symbol string, orderID int64) (common.Order, error) {
	return common.Order{OrderID: orderID, Symbol: symbol, Status: common.StatusCanceled}, nil
}

func (g *fakeGateway) CancelReplace(ctx context.Context, req common.CancelReplaceRequest) (common.CancelReplaceResult, error) {
	o, err := g.SubmitOrder(ctx, req.OrderRequest)
	if err != nil {
		return common.CancelReplaceResult{}, err
	}
	return common.CancelReplaceResult{
		Canceled: common.Order{OrderID: req.CancelOrderID, Symbol: req.Symbol, Side: common.SideSell, Type: common.OrderTypeLimit,
			Status: common.StatusCanceled, UpdateTime: t0.UnixMilli()},
		New: o,
	}, nil
}

func (g *fakeGateway) submitted() []common.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]common.OrderRequest(nil), g.submits...)
}

type fakeRebuilder struct {
	res reconciliation.Result
}

func (r fakeRebuilder) Rebuild(context.Context, string) (reconciliation.Result, error) { return r.res, nil }

// gatedRebuilder holds each rebuild until released.
type gatedRebuilder struct {
	started chan struct{}
	release chan struct{}
	res     reconciliation.Result
}

func (r *gatedRebuilder) Rebuild(ctx context.Context, _ string) (reconciliation.Result, error) {
	r.started <- struct{}{}
	select {
	case <-r.release:
		return r.res, nil
	case <-ctx.Done():
		return reconciliation.Result{}, ctx.Err()
	}
}

type alerts struct {
	mu    sync.Mutex
	rules []string
}

func (a *alerts) Publish(e events.Event, payload any) {
	if ra, ok := payload.(events.RiskAlert); ok {
		a.mu.Lock()
		a.rules = append(a.rules, ra.Rule)
		a.mu.Unlock()
	}
}

func newActor(symbol string, m *fakeMarket, ev Evaluator, gw *fakeGateway, opts ...func(*Deps)) *SymbolActor {
	pair := config.DefaultPair()
	pair.Symbol = symbol
	deps := Deps{
		Market:    m,
		Evaluator: ev,
		Analyzer:  microstructure.NewAnalyzer(microstructure.DefaultConfig()),
		Executor:  order.NewAsyncExecutor(order.NewExecutor(gw, "cb_", nil, nil), 2, nil),
		Now:       func() time.Time { return t0 },
	}
	for _, o := range opts {
		o(&deps)
	}
	return NewSymbolActor(ActorConfig{Pair: pair, Timeframes: []string{"1h"}, WindowCap: 50, MinCandles: 20}, deps)
}

func TestActorTickPlacesOneBuy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := &fakeMarket{}
	gw := &fakeGateway{}
	a := newActor("BTCUSDT", m, fixedEvaluator{signal: strategy.StrongBuy}, gw)
	go a.Run(ctx)

	require.NoError(t, a.Tick(ctx))
	candles, depth := m.calls()
	require.Equal(t, 1, candles)
	require.Equal(t, 1, depth)

	require.Eventually(t, func() bool {
		s := a.Snapshot()
		return !s.Busy && len(s.OpenOrders) == 1
	}, 2*time.Second, 5*time.Millisecond)

	subs := gw.submitted()
	require.Len(t, subs, 1)
	require.Equal(t, common.SideBuy, subs[0].Side)
	require.InDelta(t, 99.9, subs[0].Price, 1e-9)
	require.True(t, strings.HasPrefix(subs[0].ClientID, "cb_"))

	// the buy is working: no second order, no refetch of fresh data
	require.NoError(t, a.Tick(ctx))
	require.Len(t, gw.submitted(), 1)
	candles, _ = m.calls()
	require.Equal(t, 1, candles)

	fill := a.Snapshot().OpenOrders[0]
	fill.Status, fill.ExecutedQty, fill.CumQuote, fill.UpdateTime = common.StatusFilled, fill.OrigQty, fill.OrigQty*99.9, t0.UnixMilli()+1
	a.OnExecution(fill)
	require.Eventually(t, func() bool { return a.Snapshot().Trade != nil }, 2*time.Second, 5*time.Millisecond)
	require.InDelta(t, 99.9, a.Snapshot().Trade.Entry, 1e-9)
}

func TestActorSkipsTicksWhileBusy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw := &fakeGateway{gate: make(chan struct{})}
	a := newActor("BTCUSDT", &fakeMarket{}, fixedEvaluator{signal: strategy.Buy}, gw)
	go a.Run(ctx)

	require.NoError(t, a.Tick(ctx))
	require.True(t, a.Snapshot().Busy)
	require.NoError(t, a.Tick(ctx))
	require.NoError(t, a.Tick(ctx))

	close(gw.gate)
	require.Eventually(t, func() bool { return !a.Snapshot().Busy }, 2*time.Second, 5*time.Millisecond)
	require.Len(t, gw.submitted(), 1)
}

func TestActorRecoversPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := newActor("BTCUSDT", &fakeMarket{}, fixedEvaluator{panics: true}, &fakeGateway{})
	go a.Run(ctx)

	for i := 0; i < 2; i++ {
		err := a.Tick(ctx)
		require.Error(t, err)
		require.Contains(t, err.Error(), "panic")
	}
}

func TestActorReconcile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buy := common.Order{OrderID: 9, ClientOrderID: "cb_9", Side: common.SideBuy, Status: common.StatusFilled,
		ExecutedQty: 0.5, CumQuote: 50, UpdateTime: t0.UnixMilli()}
	a := newActor("BTCUSDT", &fakeMarket{}, fixedEvaluator{signal: strategy.Hold}, &fakeGateway{},
		func(d *Deps) { d.Rebuilder = fakeRebuilder{res: reconciliation.Result{Symbol: "BTCUSDT", Orders: []common.Order{buy}, Buy: &buy}} })
	go a.Run(ctx)

	require.NoError(t, a.Reconcile(ctx))
	snap := a.Snapshot()
	require.NotNil(t, snap.Trade)
	require.Equal(t, 100.0, snap.Trade.Entry)
}

func TestActorReconcileConflictAlerts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := &alerts{}
	a := newActor("BTCUSDT", &fakeMarket{}, fixedEvaluator{signal: strategy.Hold}, &fakeGateway{},
		func(d *Deps) {
			d.Rebuilder = fakeRebuilder{res: reconciliation.Result{Symbol: "BTCUSDT"}}
			d.Bus = bus
		})
	go a.Run(ctx)

	a.OnExecution(common.Order{OrderID: 3, ClientOrderID: "cb_3", Side: common.SideBuy, Status: common.StatusFilled,
		ExecutedQty: 1, CumQuote: 100, UpdateTime: 1})
	require.Eventually(t, func() bool { return a.Snapshot().Trade != nil }, 2*time.Second, 5*time.Millisecond)

	err := a.Reconcile(ctx)
	var conflict *reconciliation.ReconciliationConflict
	require.True(t, errors.As(err, &conflict))
	require.Nil(t, a.Snapshot().Trade)
	bus.mu.Lock()
	require.Equal(t, []string{"reconciliation_conflict"}, bus.rules)
	bus.mu.Unlock()
}

func TestActorDiscardsRebuildOvertakenByFill(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := &alerts{}
	rb := &gatedRebuilder{started: make(chan struct{}, 1), release: make(chan struct{}), res: reconciliation.Result{Symbol: "BTCUSDT"}}
	a := newActor("BTCUSDT", &fakeMarket{}, fixedEvaluator{signal: strategy.Hold}, &fakeGateway{},
		func(d *Deps) {
			d.Rebuilder = rb
			d.Bus = bus
		})
	go a.Run(ctx)

	errc := make(chan error, 1)
	go func() { errc <- a.Reconcile(ctx) }()
	<-rb.started

	// the fill lands while the history fetch is still in flight
	a.OnExecution(common.Order{OrderID: 3, ClientOrderID: "cb_3", Side: common.SideBuy, Status: common.StatusFilled,
		ExecutedQty: 1, CumQuote: 100, UpdateTime: t0.UnixMilli()})
	require.Eventually(t, func() bool { return a.Snapshot().Trade != nil }, 2*time.Second, 5*time.Millisecond)

	close(rb.release)
	require.NoError(t, <-errc)

	snap := a.Snapshot()
	require.NotNil(t, snap.Trade)
	require.Equal(t, int64(3), snap.Trade.BuyOrderID)
	bus.mu.Lock()
	require.Empty(t, bus.rules)
	bus.mu.Unlock()
}

func TestActorCancelReplaceCancelsOldSell(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw := &fakeGateway{}
	a := newActor("BTCUSDT", &fakeMarket{mid: 90}, fixedEvaluator{signal: strategy.Hold}, gw)
	go a.Run(ctx)

	a.OnExecution(common.Order{OrderID: 101, ClientOrderID: "cb_101", Side: common.SideBuy, Type: common.OrderTypeLimit,
		Status: common.StatusFilled, Price: 100, OrigQty: 0.2, ExecutedQty: 0.2, CumQuote: 20, UpdateTime: t0.UnixMilli() - 2})
	a.OnExecution(common.Order{OrderID: 102, ClientOrderID: "cb_102", Side: common.SideSell, Type: common.OrderTypeLimit,
		Status: common.StatusNew, Price: 101.5, OrigQty: 0.2, UpdateTime: t0.UnixMilli() - 1})
	require.Eventually(t, func() bool {
		s := a.Snapshot()
		return s.Trade != nil && len(s.OpenOrders) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// price is far below the stop: the resting limit sell becomes a market sell
	require.NoError(t, a.Tick(ctx))
	require.Eventually(t, func() bool {
		s := a.Snapshot()
		return !s.Busy && len(s.OpenOrders) == 1 && s.OpenOrders[0].Type == common.OrderTypeMarket
	}, 2*time.Second, 5*time.Millisecond)

	subs := gw.submitted()
	require.Len(t, subs, 1)
	require.Equal(t, common.SideSell, subs[0].Side)
	for _, o := range a.Snapshot().OpenOrders {
		require.NotEqual(t, int64(102), o.OrderID)
	}
}

func TestSchedulerIsolatesFailures(t *testing.T) {
	for _, mode := range []string{ModeSequential, ModeParallel} {
		t.Run(mode, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			m := &fakeMarket{failFor: "ETHUSDT"}
			gw := &fakeGateway{}
			ev := fixedEvaluator{signal: strategy.Buy}
			s := NewScheduler([]*SymbolActor{newActor("BTCUSDT", m, ev, gw), newActor("ETHUSDT", m, ev, gw)},
				time.Minute, mode, SystemStatus{Version: "test"}, nil)
			s.Start(ctx)

			err := s.TickAll(ctx)
			require.Error(t, err)
			require.Contains(t, err.Error(), "ETHUSDT")
			require.NotContains(t, err.Error(), "tick BTCUSDT")

			require.Eventually(t, func() bool { return len(gw.submitted()) == 1 }, 2*time.Second, 5*time.Millisecond)
			require.Equal(t, "BTCUSDT", gw.submitted()[0].Symbol)

			st := s.Status(ctx)
			require.Equal(t, mode, st.Mode)
			require.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, st.Symbols)
		})
	}
}

func TestSchedulerRoutesReports(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := newActor("BTCUSDT", &fakeMarket{}, fixedEvaluator{signal: strategy.Hold}, &fakeGateway{})
	s := NewScheduler([]*SymbolActor{a}, time.Minute, "bogus", SystemStatus{}, nil)
	s.Start(ctx)
	require.Equal(t, ModeSequential, s.Status(ctx).Mode)

	s.HandleReport(order.ExecutionReport{Symbol: "BTCUSDT", ClientOrderID: "cb_1", Side: "BUY", OrderType: "LIMIT",
		Status: "FILLED", OrderID: 1, CumulativeQty: "1", CumulativeQuote: "100", TransactionTime: 5})
	s.HandleReport(order.ExecutionReport{Symbol: "DOGEUSDT", OrderID: 2})

	require.Eventually(t, func() bool {
		snap, ok := s.Snapshot("BTCUSDT")
		return ok && snap.Trade != nil
	}, 2*time.Second, 5*time.Millisecond)
	_, ok := s.Snapshot("DOGEUSDT")
	require.False(t, ok)
	require.Len(t, s.Snapshots(), 1)
	require.Len(t, s.Targets(), 1)
}
