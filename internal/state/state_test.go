package state

import (
	"math/rand"
	"testing"
	"time"

	"consensus-trader/internal/risk"
	"consensus-trader/pkg/config"
	"consensus-trader/pkg/exchanges/common"

	"github.com/stretchr/testify/require"
)

func TestCandleWindowPush(t *testing.T) {
	w := NewCandleWindow(3)
	require.True(t, w.Push(common.Candle{OpenTime: 1, Close: 1}))
	require.True(t, w.Push(common.Candle{OpenTime: 2, Close: 2}))
	require.True(t, w.Push(common.Candle{OpenTime: 2, Close: 2.5}))
	require.Equal(t, 2, w.Len())
	last, _ := w.Last()
	require.Equal(t, 2.5, last.Close)

	require.False(t, w.Push(common.Candle{OpenTime: 1, Close: 9}))
	w.Push(common.Candle{OpenTime: 3})
	w.Push(common.Candle{OpenTime: 4})
	require.Equal(t, 3, w.Len())
	require.Equal(t, int64(2), w.Candles()[0].OpenTime)
}

func TestCandleWindowOrderedAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	w := NewCandleWindow(50)
	for i := 0; i < 2000; i++ {
		w.Push(common.Candle{OpenTime: int64(rng.Intn(500))})
		c := w.Candles()
		require.LessOrEqual(t, len(c), 50)
		for j := 1; j < len(c); j++ {
			require.Less(t, c[j-1].OpenTime, c[j].OpenTime)
		}
	}
}

func TestCandleWindowReplaceKeepsNewerStreamed(t *testing.T) {
	w := NewCandleWindow(10)
	w.Push(common.Candle{OpenTime: 100, Close: 7})
	w.Replace([]common.Candle{{OpenTime: 97}, {OpenTime: 98}, {OpenTime: 99}})
	c := w.Candles()
	require.Len(t, c, 4)
	require.Equal(t, int64(100), c[3].OpenTime)
	require.Equal(t, 7.0, c[3].Close)
}

func newState() *SymbolState {
	return New("BTCUSDT", []string{"1h"}, 10, risk.ParamsFor(config.DefaultPair()))
}

func TestApplyOrderTradeLifecycle(t *testing.T) {
	s := newState()
	now := time.Unix(1_700_000_000, 0)

	buy := common.Order{OrderID: 1, ClientOrderID: "cb_a", Symbol: "BTCUSDT", Side: common.SideBuy, Type: common.OrderTypeLimit,
		Status: common.StatusNew, Price: 100, OrigQty: 1, UpdateTime: 1}
	opened, closed := s.ApplyOrder(buy, true, now)
	require.False(t, opened || closed)
	require.Len(t, s.OpenOrders(), 1)

	buy.Status, buy.ExecutedQty, buy.CumQuote, buy.UpdateTime = common.StatusFilled, 1, 100, 2
	opened, _ = s.ApplyOrder(buy, true, now)
	require.True(t, opened)
	require.NotNil(t, s.Trade)
	require.Equal(t, 100.0, s.Trade.Entry)
	require.InDelta(t, 98.5, s.Trade.Levels.StopPrice, 1e-9)

	sell := common.Order{OrderID: 2, ClientOrderID: "cb_b", Symbol: "BTCUSDT", Side: common.SideSell, Type: common.OrderTypeMarket,
		Status: common.StatusNew, OrigQty: 1, UpdateTime: 3}
	s.ApplyOrder(sell, true, now)
	require.NotNil(t, s.Trade, "trade survives until the sell is filled")

	sell.Status, sell.UpdateTime = common.StatusCanceled, 4
	s.ApplyOrder(sell, true, now)
	require.NotNil(t, s.Trade)

	sell2 := sell
	sell2.OrderID, sell2.Status, sell2.ExecutedQty, sell2.UpdateTime = 3, common.StatusFilled, 1, 5
	_, closed = s.ApplyOrder(sell2, true, now.Add(time.Minute))
	require.True(t, closed)
	require.Nil(t, s.Trade)
	require.Equal(t, now.Add(time.Minute), s.LastExit)

	latest, ok := s.Latest()
	require.True(t, ok)
	require.Equal(t, int64(3), latest.OrderID)
	require.Len(t, s.Orders(), 1)
}

func TestApplyOrderIgnoresForeignAndStale(t *testing.T) {
	s := newState()
	foreign := common.Order{OrderID: 7, Side: common.SideBuy, Status: common.StatusFilled, ExecutedQty: 1, CumQuote: 50, UpdateTime: 5}
	opened, _ := s.ApplyOrder(foreign, false, time.Now())
	require.False(t, opened)
	require.Nil(t, s.Trade)

	o := common.Order{OrderID: 8, Side: common.SideBuy, Status: common.StatusNew, UpdateTime: 10}
	s.ApplyOrder(o, true, time.Now())
	stale := o
	stale.Status, stale.UpdateTime = common.StatusFilled, 9
	opened, _ = s.ApplyOrder(stale, true, time.Now())
	require.False(t, opened)
	require.Len(t, s.OpenOrders(), 1)
}

func TestSetBookShiftsPrevious(t *testing.T) {
	s := newState()
	b1 := common.OrderBook{Bids: []common.Level{{Price: 99, Qty: 1}}, Asks: []common.Level{{Price: 101, Qty: 1}}}
	b2 := common.OrderBook{Bids: []common.Level{{Price: 100, Qty: 1}}, Asks: []common.Level{{Price: 102, Qty: 1}}}
	s.SetBook(b1)
	require.Nil(t, s.PrevBook)
	s.SetBook(b2)
	require.Equal(t, 99.0, s.PrevBook.Bids[0].Price)
	require.Equal(t, 101.0, s.Price)
}

func TestRestore(t *testing.T) {
	buy := common.Order{OrderID: 1, Side: common.SideBuy, Status: common.StatusFilled, ExecutedQty: 2, CumQuote: 200, UpdateTime: 1000}
	open := common.Order{OrderID: 2, Side: common.SideSell, Status: common.StatusNew, OrigQty: 2, UpdateTime: 2000}

	s := newState()
	require.Nil(t, s.Restore([]common.Order{buy, open}, &buy, time.Time{}))
	require.NotNil(t, s.Trade)
	require.Equal(t, 100.0, s.Trade.Entry)
	require.Equal(t, 2.0, s.Trade.Qty)
	require.Len(t, s.OpenOrders(), 1)

	// same buy: trailing progress survives
	s.Trade.Levels.Trailing.Active = true
	require.Nil(t, s.Restore([]common.Order{buy, open}, &buy, time.Time{}))
	require.True(t, s.Trade.Levels.Trailing.Active)

	exit := time.UnixMilli(3000)
	dropped := s.Restore(nil, nil, exit)
	require.NotNil(t, dropped)
	require.Equal(t, int64(1), dropped.BuyOrderID)
	require.Nil(t, s.Trade)
	require.Equal(t, exit, s.LastExit)
	require.Empty(t, s.Orders())
}

func TestRestoreKeepsNewerLocalUpdates(t *testing.T) {
	working := common.Order{OrderID: 1, Side: common.SideBuy, Status: common.StatusNew, Price: 100, OrigQty: 2, UpdateTime: 1000}
	filled := working
	filled.Status, filled.ExecutedQty, filled.CumQuote, filled.UpdateTime = common.StatusFilled, 2, 200, 2000

	s := newState()
	opened, _ := s.ApplyOrder(filled, true, time.UnixMilli(2000))
	require.True(t, opened)

	// a history fetched before the fill still shows the buy working
	require.Nil(t, s.Restore([]common.Order{working}, nil, time.Time{}))
	require.NotNil(t, s.Trade)
	got := s.Orders()
	require.Len(t, got, 1)
	require.Equal(t, common.StatusFilled, got[0].Status)
}

func TestPartialFillsGrowTrade(t *testing.T) {
	buy := common.Order{OrderID: 1, Side: common.SideBuy, Status: common.StatusPartiallyFilled, Price: 100, OrigQty: 2,
		ExecutedQty: 0.5, CumQuote: 50, UpdateTime: 1000}

	s := newState()
	opened, _ := s.ApplyOrder(buy, true, time.UnixMilli(1000))
	require.True(t, opened)
	require.Equal(t, 0.5, s.Trade.Qty)
	require.Len(t, s.OpenOrders(), 1)

	buy.Status, buy.ExecutedQty, buy.CumQuote, buy.UpdateTime = common.StatusFilled, 2, 196, 2000
	opened, _ = s.ApplyOrder(buy, true, time.UnixMilli(2000))
	require.False(t, opened)
	require.Equal(t, 2.0, s.Trade.Qty)
	require.InDelta(t, 98, s.Trade.Entry, 1e-9)
	require.Empty(t, s.OpenOrders())
}
