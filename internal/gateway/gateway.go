// Package gateway wraps a venue with request weights, the shared rate-limit
// queue and order precision checks. It performs no retries.
package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"consensus-trader/pkg/cache"
	"consensus-trader/pkg/config"
	"consensus-trader/pkg/exchanges/common"
)

// Observer receives per-request outcomes and queue admissions.
type Observer interface {
	ObserveRequest(op string, class common.Class, took time.Duration, err error)
	ObserveAdmission(a common.Admission)
}

// Gateway is the single path from the bot to the venue.
type Gateway struct {
	venue      common.Venue
	queue      *common.Queue
	filters    *cache.Sharded[common.Filters]
	filtersTTL time.Duration
	observer   Observer
	log        *zap.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithObserver reports requests and admissions, e.g. to metrics.
func WithObserver(o Observer) Option { return func(g *Gateway) { g.observer = o } }

// WithFiltersTTL sets how long symbol filters are cached.
func WithFiltersTTL(d time.Duration) Option { return func(g *Gateway) { g.filtersTTL = d } }

// New builds a gateway over venue. Every call passes the queue built from windows.
func New(venue common.Venue, windows []common.Window, maxInFlight int, log *zap.Logger, opts ...Option) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gateway{
		venue:      venue,
		filters:    cache.New[common.Filters](),
		filtersTTL: time.Hour,
		log:        log.Named("gateway"),
	}
	for _, o := range opts {
		o(g)
	}
	qopts := []common.QueueOption{
		common.WithMaxInFlight(maxInFlight),
		common.WithQueueLogger(g.log),
	}
	if g.observer != nil {
		qopts = append(qopts, common.WithAdmissionHook(g.observer.ObserveAdmission))
	}
	g.queue = common.NewQueue(windows, qopts...)
	return g
}

// Windows converts configured rate windows.
func Windows(cfg []config.RateWindow) []common.Window {
	out := make([]common.Window, 0, len(cfg))
	for _, w := range cfg {
		out = append(out, common.Window{Name: w.Name, Limit: w.Limit, Interval: w.Interval, Class: common.Class(w.Class)})
	}
	return out
}

// Queue exposes the shared queue for usage reporting.
func (g *Gateway) Queue() *common.Queue { return g.queue }

func (g *Gateway) call(ctx context.Context, op Op, weight int, fn func(context.Context) error) error {
	c := costOf(op)
	if weight > 0 {
		c.weight = weight
	}
	start := time.Now()
	err := g.queue.Do(ctx, c.class, c.weight, fn)
	if g.observer != nil {
		g.observer.ObserveRequest(string(op), c.class, time.Since(start), err)
	}
	if err != nil {
		g.log.Warn("venue call failed", zap.String("op", string(op)), zap.Error(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FetchCandles loads the most recent candles of a timeframe.
func (g *Gateway) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error) {
	var out []common.Candle
	err := g.call(ctx, OpKlines, 0, func(ctx context.Context) (err error) {
		out, err = g.venue.Klines(ctx, symbol, interval, limit)
		return err
	})
	return out, err
}

// FetchDepth loads an order book snapshot.
func (g *Gateway) FetchDepth(ctx context.Context, symbol string, limit int) (common.OrderBook, error) {
	var out common.OrderBook
	err := g.call(ctx, OpDepth, depthWeight(limit), func(ctx context.Context) (err error) {
		out, err = g.venue.Depth(ctx, symbol, limit)
		return err
	})
	return out, err
}

// FetchOrders loads the venue's order history for symbol.
func (g *Gateway) FetchOrders(ctx context.Context, symbol string, limit int) ([]common.Order, error) {
	var out []common.Order
	err := g.call(ctx, OpAllOrders, 0, func(ctx context.Context) (err error) {
		out, err = g.venue.AllOrders(ctx, symbol, limit)
		return err
	})
	return out, err
}

// Balance loads one asset balance.
func (g *Gateway) Balance(ctx context.Context, asset string) (common.Balance, error) {
	var out common.Balance
	err := g.call(ctx, OpBalance, 0, func(ctx context.Context) (err error) {
		out, err = g.venue.Balance(ctx, asset)
		return err
	})
	return out, err
}

// SymbolFilters returns cached precision filters, loading them on a miss.
func (g *Gateway) SymbolFilters(ctx context.Context, symbol string) (common.Filters, error) {
	if f, ok := g.filters.GetFresh(symbol, g.filtersTTL); ok {
		return f, nil
	}
	var out common.Filters
	err := g.call(ctx, OpExchangeInfo, 0, func(ctx context.Context) (err error) {
		out, err = g.venue.SymbolFilters(ctx, symbol)
		return err
	})
	if err != nil {
		return common.Filters{}, err
	}
	g.filters.Set(symbol, out)
	return out, nil
}

// Normalize applies the symbol filters to req. MARKET orders are valued at
// req.Price, the reference price.
func (g *Gateway) Normalize(ctx context.Context, req common.OrderRequest) (common.OrderRequest, error) {
	f, err := g.SymbolFilters(ctx, req.Symbol)
	if err != nil {
		return req, err
	}
	return f.Normalize(req, req.Price)
}

// SubmitOrder normalizes and places an order. Precision failures never reach the venue.
func (g *Gateway) SubmitOrder(ctx context.Context, req common.OrderRequest) (common.Order, error) {
	req, err := g.Normalize(ctx, req)
	if err != nil {
		return common.Order{}, err
	}
	var out common.Order
	err = g.call(ctx, OpSubmitOrder, 0, func(ctx context.Context) (err error) {
		out, err = g.venue.SubmitOrder(ctx, req)
		return err
	})
	return out, err
}

// CancelOrder cancels one order by venue id.
func (g *Gateway) CancelOrder(ctx context.Context, symbol string, orderID int64) (common.Order, error) {
	var out common.Order
	err := g.call(ctx, OpCancelOrder, 0, func(ctx context.Context) (err error) {
		out, err = g.venue.CancelOrder(ctx, symbol, orderID)
		return err
	})
	return out, err
}

// CancelReplace normalizes the replacement and swaps it for CancelOrderID.
func (g *Gateway) CancelReplace(ctx context.Context, req common.CancelReplaceRequest) (common.CancelReplaceResult, error) {
	nreq, err := g.Normalize(ctx, req.OrderRequest)
	if err != nil {
		return common.CancelReplaceResult{}, err
	}
	req.OrderRequest = nreq
	var out common.CancelReplaceResult
	err = g.call(ctx, OpCancelReplace, 0, func(ctx context.Context) (err error) {
		out, err = g.venue.CancelReplace(ctx, req)
		return err
	})
	return out, err
}

// CreateListenKey opens a user data stream key.
func (g *Gateway) CreateListenKey(ctx context.Context) (string, error) {
	var key string
	err := g.call(ctx, OpListenKeyCreate, 0, func(ctx context.Context) (err error) {
		key, err = g.venue.CreateListenKey(ctx)
		return err
	})
	return key, err
}

// KeepAliveListenKey extends a listen key.
func (g *Gateway) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	return g.call(ctx, OpListenKeyKeep, 0, func(ctx context.Context) error {
		return g.venue.KeepAliveListenKey(ctx, listenKey)
	})
}

// CloseListenKey closes a listen key.
func (g *Gateway) CloseListenKey(ctx context.Context, listenKey string) error {
	return g.call(ctx, OpListenKeyClose, 0, func(ctx context.Context) error {
		return g.venue.CloseListenKey(ctx, listenKey)
	})
}
