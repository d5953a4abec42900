package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"consensus-trader/pkg/exchanges/common"
	marketpkg "consensus-trader/pkg/market/binance"
)

// MockStream generates random-walk klines and books for local development
// and tests. Each subscription ends after Limit messages when Limit > 0.
type MockStream struct {
	StartPrice float64
	Step       float64
	Interval   time.Duration
	Limit      int

	mu    sync.Mutex
	price map[string]float64
	rng   *rand.Rand
	subs  int
}

var _ Streamer = (*MockStream)(nil)

// Subscriptions counts the streams opened so far.
func (m *MockStream) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs
}

func (m *MockStream) next(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.price == nil {
		m.price = make(map[string]float64)
		m.rng = rand.New(rand.NewSource(1))
	}
	p, ok := m.price[symbol]
	if !ok {
		p = m.StartPrice
		if p == 0 {
			p = 100
		}
	}
	step := m.Step
	if step == 0 {
		step = 0.5
	}
	p += (m.rng.Float64()*2 - 1) * step
	m.price[symbol] = p
	return p
}

func (m *MockStream) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan marketpkg.Kline, func(), error) {
	d, err := common.IntervalDuration(interval)
	if err != nil {
		return nil, nil, err
	}
	return mockSubscribe(ctx, m, func() marketpkg.Kline {
		p := m.next(symbol)
		// the in-progress candle of the current interval
		open := time.Now().Truncate(d).UnixMilli()
		return marketpkg.Kline{Symbol: symbol, Interval: interval, OpenTime: open, Open: p, High: p, Low: p, Close: p, Volume: 1}
	})
}

func (m *MockStream) SubscribeDepth(ctx context.Context, symbol string, levels int) (<-chan marketpkg.DepthUpdate, func(), error) {
	return mockSubscribe(ctx, m, func() marketpkg.DepthUpdate {
		p := m.next(symbol)
		d := marketpkg.DepthUpdate{Symbol: symbol}
		for i := 1; i <= levels; i++ {
			d.Bids = append(d.Bids, [2]float64{p - float64(i)*0.01, 1})
			d.Asks = append(d.Asks, [2]float64{p + float64(i)*0.01, 1})
		}
		return d
	})
}

func mockSubscribe[T any](ctx context.Context, m *MockStream, gen func() T) (<-chan T, func(), error) {
	m.mu.Lock()
	m.subs++
	m.mu.Unlock()

	interval := m.Interval
	if interval == 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan T)
	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		for n := 0; m.Limit <= 0 || n < m.Limit; n++ {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			select {
			case out <- gen():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}
