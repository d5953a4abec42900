// Package state mirrors one symbol's market data, orders and open trade.
// A SymbolState is owned by a single goroutine and is not safe for
// concurrent use.
package state

import (
	"sort"
	"time"

	"consensus-trader/internal/risk"
	"consensus-trader/pkg/exchanges/common"
)

// Trade is an open long position created by an owned BUY fill.
type Trade struct {
	Symbol        string      `json:"symbol"`
	BuyOrderID    int64       `json:"buy_order_id"`
	ClientOrderID string      `json:"client_order_id"`
	Entry         float64     `json:"entry"`
	Qty           float64     `json:"qty"`
	OpenedAt      time.Time   `json:"opened_at"`
	Levels        risk.Levels `json:"levels"`
}

// SymbolState is the local mirror of one symbol.
type SymbolState struct {
	Symbol   string
	Price    float64
	Book     *common.OrderBook
	PrevBook *common.OrderBook
	Trade    *Trade
	LastExit time.Time

	windows    map[string]*CandleWindow
	orders     map[int64]common.Order
	risk       risk.Params
	volatility float64
	confidence float64
}

// New builds an empty mirror with one window per timeframe.
func New(symbol string, timeframes []string, capacity int, p risk.Params) *SymbolState {
	s := &SymbolState{
		Symbol:  symbol,
		windows: make(map[string]*CandleWindow, len(timeframes)),
		orders:  make(map[int64]common.Order),
		risk:    p,
	}
	for _, tf := range timeframes {
		s.windows[tf] = NewCandleWindow(capacity)
	}
	return s
}

// Window returns the window of a timeframe, nil when not tracked.
func (s *SymbolState) Window(tf string) *CandleWindow { return s.windows[tf] }

// PushCandle merges a streamed candle. The close of a newest candle becomes
// the last price.
func (s *SymbolState) PushCandle(tf string, c common.Candle) bool {
	w, ok := s.windows[tf]
	if !ok || !w.Push(c) {
		return false
	}
	if last, _ := w.Last(); last.OpenTime == c.OpenTime && c.Close > 0 {
		s.Price = c.Close
	}
	return true
}

// Backfill replaces a window with REST candles.
func (s *SymbolState) Backfill(tf string, candles []common.Candle) {
	if w, ok := s.windows[tf]; ok {
		w.Replace(candles)
		if last, ok := w.Last(); ok && s.Price == 0 {
			s.Price = last.Close
		}
	}
}

// Candles copies every window for evaluation.
func (s *SymbolState) Candles() map[string][]common.Candle {
	out := make(map[string][]common.Candle, len(s.windows))
	for tf, w := range s.windows {
		out[tf] = w.Candles()
	}
	return out
}

// SetBook shifts the current book to previous and installs b.
func (s *SymbolState) SetBook(b common.OrderBook) {
	s.PrevBook = s.Book
	s.Book = &b
	if mid := b.Mid(); mid > 0 {
		s.Price = mid
	}
}

// SetMarket records the latest volatility and trend confidence used for
// risk updates.
func (s *SymbolState) SetMarket(volatility, confidence float64) {
	s.volatility, s.confidence = volatility, confidence
}

// UpdateRisk re-evaluates the open trade's levels at the current price.
func (s *SymbolState) UpdateRisk() {
	if s.Trade == nil || s.Price <= 0 {
		return
	}
	s.Trade.Levels = s.Trade.Levels.Update(s.Price, s.risk, s.volatility, s.confidence)
}

// ApplyOrder records an order update. An owned BUY with any executed
// quantity opens the trade, and later fills of that BUY grow it. An owned
// FILLED SELL closes it; nothing else touches the trade.
func (s *SymbolState) ApplyOrder(o common.Order, owned bool, now time.Time) (opened, closed bool) {
	if prev, ok := s.orders[o.OrderID]; ok && prev.UpdateTime > o.UpdateTime {
		return false, false
	}
	s.orders[o.OrderID] = o
	defer s.prune()
	if !owned {
		return false, false
	}

	switch o.Side {
	case common.SideBuy:
		if !bought(o) {
			return false, false
		}
		if s.Trade == nil {
			s.OpenTrade(o, now)
			return true, false
		}
		if s.Trade.BuyOrderID == o.OrderID {
			s.growTrade(o)
		}
	case common.SideSell:
		if o.Status == common.StatusFilled && s.Trade != nil {
			s.Trade = nil
			s.LastExit = now
			return false, true
		}
	}
	return false, false
}

// bought reports whether a BUY holds any base quantity, including a working
// partial fill.
func bought(o common.Order) bool {
	return o.Status == common.StatusFilled || o.ExecutedQty > 0
}

// OpenTrade creates the trade from the executed part of a BUY.
func (s *SymbolState) OpenTrade(buy common.Order, at time.Time) {
	entry := buy.AvgFillPrice()
	s.Trade = &Trade{
		Symbol:        s.Symbol,
		BuyOrderID:    buy.OrderID,
		ClientOrderID: buy.ClientOrderID,
		Entry:         entry,
		Qty:           executed(buy),
		OpenedAt:      at,
		Levels:        risk.NewLevels(entry, s.risk, s.volatility, s.confidence),
	}
}

// growTrade follows further fills of the BUY backing the trade. Levels are
// rebased on the new average entry; an active trailing stop is kept.
func (s *SymbolState) growTrade(buy common.Order) {
	qty := executed(buy)
	if qty <= s.Trade.Qty {
		return
	}
	trailing := s.Trade.Levels.Trailing
	s.Trade.Entry = buy.AvgFillPrice()
	s.Trade.Qty = qty
	s.Trade.Levels = risk.NewLevels(s.Trade.Entry, s.risk, s.volatility, s.confidence)
	if trailing.Active {
		s.Trade.Levels.Trailing = trailing
	}
}

func executed(o common.Order) float64 {
	if o.ExecutedQty > 0 {
		return o.ExecutedQty
	}
	return o.OrigQty
}

// ResetOrders replaces the order mirror, used by reconciliation. Where the
// mirror already holds a newer update of an order, that update is kept. It
// returns the ids whose local copy won.
func (s *SymbolState) ResetOrders(orders []common.Order) (keptLocal map[int64]bool) {
	prev := s.orders
	s.orders = make(map[int64]common.Order, len(orders))
	for _, o := range orders {
		if local, ok := prev[o.OrderID]; ok && local.UpdateTime > o.UpdateTime {
			if keptLocal == nil {
				keptLocal = make(map[int64]bool)
			}
			keptLocal[o.OrderID] = true
			o = local
		}
		s.orders[o.OrderID] = o
	}
	s.prune()
	return keptLocal
}

// Restore installs a rebuilt order mirror and trade. buy is the unpaired
// owned BUY the venue history supports, nil when there is none. A local
// trade on the same BUY keeps its trailing progress. A local trade whose BUY
// the mirror knows more recently than the rebuild stays as well; any other
// local trade is dropped and returned.
func (s *SymbolState) Restore(orders []common.Order, buy *common.Order, lastExit time.Time) (dropped *Trade) {
	keptLocal := s.ResetOrders(orders)
	if lastExit.After(s.LastExit) {
		s.LastExit = lastExit
	}
	if s.Trade != nil && keptLocal[s.Trade.BuyOrderID] {
		return nil
	}
	switch {
	case buy == nil:
		dropped, s.Trade = s.Trade, nil
	case s.Trade == nil:
		s.OpenTrade(*buy, time.UnixMilli(buy.UpdateTime))
	case s.Trade.BuyOrderID != buy.OrderID:
		dropped = s.Trade
		s.OpenTrade(*buy, time.UnixMilli(buy.UpdateTime))
	default:
		s.growTrade(*buy)
	}
	return dropped
}

// Orders returns every mirrored order, oldest update first.
func (s *SymbolState) Orders() []common.Order {
	out := make([]common.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdateTime != out[j].UpdateTime {
			return out[i].UpdateTime < out[j].UpdateTime
		}
		return out[i].OrderID < out[j].OrderID
	})
	return out
}

// OpenOrders returns the non-terminal orders.
func (s *SymbolState) OpenOrders() []common.Order {
	var out []common.Order
	for _, o := range s.Orders() {
		if o.Status.Open() {
			out = append(out, o)
		}
	}
	return out
}

// Latest returns the most recently updated order.
func (s *SymbolState) Latest() (common.Order, bool) {
	all := s.Orders()
	if len(all) == 0 {
		return common.Order{}, false
	}
	return all[len(all)-1], true
}

// prune drops terminal orders except the latest one.
func (s *SymbolState) prune() {
	latest, ok := s.Latest()
	if !ok {
		return
	}
	for id, o := range s.orders {
		if !o.Status.Open() && id != latest.OrderID {
			delete(s.orders, id)
		}
	}
}
