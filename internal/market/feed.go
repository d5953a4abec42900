// Package market routes websocket market data into per-symbol sinks and
// keeps every stream connected.
package market

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"consensus-trader/pkg/exchanges/common"
	marketpkg "consensus-trader/pkg/market/binance"
)

// Streamer opens public market streams. *marketpkg.StreamClient implements it.
type Streamer interface {
	SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan marketpkg.Kline, func(), error)
	SubscribeDepth(ctx context.Context, symbol string, levels int) (<-chan marketpkg.DepthUpdate, func(), error)
}

// Sink receives one symbol's market data. Calls must not block for long.
type Sink interface {
	OnCandle(timeframe string, c common.Candle)
	OnBook(b common.OrderBook)
}

// ReconnectFunc is told about every dropped stream before it is redialed.
type ReconnectFunc func(stream, symbol string, err error)

// Feed keeps one kline stream per symbol and timeframe plus one depth
// stream per symbol.
type Feed struct {
	stream      Streamer
	sinks       map[string]Sink
	timeframes  []string
	depthLevels int
	onReconnect ReconnectFunc
	minBackoff  time.Duration
	maxBackoff  time.Duration
	log         *zap.Logger
}

// FeedOption customizes a Feed.
type FeedOption func(*Feed)

// WithReconnect installs a reconnect callback.
func WithReconnect(fn ReconnectFunc) FeedOption { return func(f *Feed) { f.onReconnect = fn } }

// WithBackoff overrides the reconnect delay bounds.
func WithBackoff(min, max time.Duration) FeedOption {
	return func(f *Feed) { f.minBackoff, f.maxBackoff = min, max }
}

// WithDepthLevels sets the partial depth size (5, 10 or 20).
func WithDepthLevels(n int) FeedOption { return func(f *Feed) { f.depthLevels = n } }

// NewFeed builds a feed for the symbols in sinks.
func NewFeed(stream Streamer, sinks map[string]Sink, timeframes []string, log *zap.Logger, opts ...FeedOption) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Feed{
		stream:      stream,
		sinks:       sinks,
		timeframes:  timeframes,
		depthLevels: 20,
		minBackoff:  time.Second,
		maxBackoff:  time.Minute,
		log:         log.Named("feed"),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Start launches every stream. They stop when ctx ends.
func (f *Feed) Start(ctx context.Context) {
	for symbol, sink := range f.sinks {
		symbol, sink := symbol, sink
		for _, tf := range f.timeframes {
			tf := tf
			go follow(ctx, f, "kline_"+tf, symbol,
				func(ctx context.Context) (<-chan marketpkg.Kline, func(), error) {
					return f.stream.SubscribeKlines(ctx, symbol, tf)
				},
				func(k marketpkg.Kline) { sink.OnCandle(tf, ToCandle(k)) })
		}
		go follow(ctx, f, "depth", symbol,
			func(ctx context.Context) (<-chan marketpkg.DepthUpdate, func(), error) {
				return f.stream.SubscribeDepth(ctx, symbol, f.depthLevels)
			},
			func(d marketpkg.DepthUpdate) { sink.OnBook(ToBook(d, time.Now())) })
	}
	f.log.Info("market feed started", zap.Int("symbols", len(f.sinks)), zap.Strings("timeframes", f.timeframes))
}

// follow keeps one stream alive: subscribe, drain, and on any drop wait out
// the backoff and subscribe again.
func follow[T any](ctx context.Context, f *Feed, name, symbol string,
	subscribe func(context.Context) (<-chan T, func(), error), handle func(T)) {
	b := &backoff.Backoff{Min: f.minBackoff, Max: f.maxBackoff, Factor: 2, Jitter: true}
	log := f.log.With(zap.String("stream", name), zap.String("symbol", symbol))

	for ctx.Err() == nil {
		ch, stop, err := subscribe(ctx)
		if err == nil {
			received := false
			for msg := range ch {
				if !received {
					received = true
					b.Reset()
				}
				handle(msg)
			}
			stop()
		}
		if ctx.Err() != nil {
			return
		}

		wait := b.Duration()
		log.Warn("stream dropped, reconnecting", zap.Error(err), zap.Duration("in", wait))
		if f.onReconnect != nil {
			f.onReconnect(name, symbol, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
