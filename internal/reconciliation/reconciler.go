// Package reconciliation rebuilds open trades from venue order history.
package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"consensus-trader/internal/order"
	"consensus-trader/internal/state"
	"consensus-trader/pkg/exchanges/common"
)

// DefaultHistory is how many recent orders a rebuild reads.
const DefaultHistory = 500

// OrderSource reads venue order history.
type OrderSource interface {
	FetchOrders(ctx context.Context, symbol string, limit int) ([]common.Order, error)
}

// ReconciliationConflict reports a local trade the venue history does not support.
type ReconciliationConflict struct {
	Symbol     string
	BuyOrderID int64
	Entry      float64
	Qty        float64
}

func (e *ReconciliationConflict) Error() string {
	return fmt.Sprintf("reconcile %s: local trade from buy %d (entry %.8g qty %.8g) has no venue basis",
		e.Symbol, e.BuyOrderID, e.Entry, e.Qty)
}

// Result is a rebuilt view of one symbol.
type Result struct {
	Symbol   string
	Orders   []common.Order // owned orders, oldest first
	Buy      *common.Order  // unpaired owned BUY backing the open trade
	LastExit time.Time
	Orphans  []common.Order // older unpaired BUYs
}

// Reconciler derives trades from owned orders only.
type Reconciler struct {
	src     OrderSource
	prefix  string
	history int
	log     *zap.Logger
}

// New builds a reconciler for orders whose client id starts with prefix.
func New(src OrderSource, prefix string, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{src: src, prefix: prefix, history: DefaultHistory, log: log.Named("reconcile")}
}

// Rebuild fetches the order history of symbol and pairs owned fills.
func (r *Reconciler) Rebuild(ctx context.Context, symbol string) (Result, error) {
	all, err := r.src.FetchOrders(ctx, symbol, r.history)
	if err != nil {
		return Result{}, fmt.Errorf("reconcile %s: %w", symbol, err)
	}
	res := Pair(symbol, r.prefix, all)
	if len(res.Orphans) > 0 {
		r.log.Warn("unpaired buys older than the open trade",
			zap.String("symbol", symbol), zap.Int("count", len(res.Orphans)))
	}
	return res, nil
}

// Pair filters owned orders and matches each filled BUY with the next
// FILLED SELL after it. The latest BUY left over backs the open trade.
func Pair(symbol, prefix string, all []common.Order) Result {
	res := Result{Symbol: symbol}
	for _, o := range all {
		if order.Owned(prefix, o.ClientOrderID) {
			res.Orders = append(res.Orders, o)
		}
	}
	// order ids increase with creation
	sort.Slice(res.Orders, func(i, j int) bool { return res.Orders[i].OrderID < res.Orders[j].OrderID })

	var unpaired []common.Order
	for _, o := range res.Orders {
		switch {
		case o.Side == common.SideBuy && bought(o):
			unpaired = append(unpaired, o)
		case o.Side == common.SideSell && o.Status == common.StatusFilled:
			if len(unpaired) > 0 {
				unpaired = unpaired[1:]
			}
			if t := time.UnixMilli(o.UpdateTime); t.After(res.LastExit) {
				res.LastExit = t
			}
		}
	}
	if n := len(unpaired); n > 0 {
		buy := unpaired[n-1]
		res.Buy = &buy
		res.Orphans = unpaired[:n-1]
	}
	return res
}

// bought reports whether a BUY holds a position: fully filled, or with any
// executed quantity whether still working or finished.
func bought(o common.Order) bool {
	return o.Status == common.StatusFilled || o.ExecutedQty > 0
}

// Apply installs res into st. A dropped local trade is returned as a
// *ReconciliationConflict; st is consistent with the venue either way.
func Apply(st *state.SymbolState, res Result) error {
	dropped := st.Restore(res.Orders, res.Buy, res.LastExit)
	if dropped == nil {
		return nil
	}
	return &ReconciliationConflict{
		Symbol:     res.Symbol,
		BuyOrderID: dropped.BuyOrderID,
		Entry:      dropped.Entry,
		Qty:        dropped.Qty,
	}
}
