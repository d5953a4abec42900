package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"consensus-trader/pkg/exchanges/common"
	marketpkg "consensus-trader/pkg/market/binance"

	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	candles map[string]int
	books   int
}

func (s *recordingSink) OnCandle(tf string, _ common.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.candles == nil {
		s.candles = make(map[string]int)
	}
	s.candles[tf]++
}

func (s *recordingSink) OnBook(common.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books++
}

func (s *recordingSink) counts(tf string) (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candles[tf], s.books
}

func TestFeedRoutesAndReconnects(t *testing.T) {
	mock := &MockStream{Interval: time.Millisecond, Limit: 3}
	btc, eth := &recordingSink{}, &recordingSink{}

	var (
		mu         sync.Mutex
		reconnects int
	)
	f := NewFeed(mock, map[string]Sink{"BTCUSDT": btc, "ETHUSDT": eth}, []string{"1m", "1h"}, nil,
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		WithDepthLevels(5),
		WithReconnect(func(stream, symbol string, err error) {
			mu.Lock()
			reconnects++
			mu.Unlock()
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	require.Eventually(t, func() bool {
		c1, b1 := btc.counts("1h")
		c2, b2 := eth.counts("1m")
		return c1 > 3 && b1 > 3 && c2 > 3 && b2 > 3
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Positive(t, reconnects)
	mu.Unlock()
	// six streams, each redialed at least once
	require.Greater(t, mock.Subscriptions(), 6)
}

func TestToBook(t *testing.T) {
	at := time.Unix(10, 0)
	b := ToBook(marketpkg.DepthUpdate{
		Symbol: "BTCUSDT",
		Bids:   [][2]float64{{99, 1}, {98, 2}},
		Asks:   [][2]float64{{101, 3}},
	}, at)
	require.Equal(t, 100.0, b.Mid())
	require.Equal(t, common.Level{Price: 98, Qty: 2}, b.Bids[1])
	require.Equal(t, at, b.Timestamp)
}
