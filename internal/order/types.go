package order

import (
	"time"

	"consensus-trader/internal/microstructure"
	"consensus-trader/internal/state"
	"consensus-trader/internal/strategy"
	"consensus-trader/pkg/config"
	"consensus-trader/pkg/exchanges/common"
)

// ActionKind enumerates what the controller can ask for on one tick.
type ActionKind string

const (
	ActNone              ActionKind = "NONE"
	ActPlaceBuy          ActionKind = "PLACE_BUY"
	ActPlaceSell         ActionKind = "PLACE_SELL"
	ActCancel            ActionKind = "CANCEL"
	ActCancelReplaceSell ActionKind = "CANCEL_REPLACE_SELL"
	ActEmergencySell     ActionKind = "EMERGENCY_SELL"
)

// Action is the controller's single decision for a tick.
type Action struct {
	Kind    ActionKind       `json:"kind"`
	Side    common.Side      `json:"side,omitempty"`
	Type    common.OrderType `json:"type,omitempty"`
	Qty     float64          `json:"qty,omitempty"`
	Price   float64          `json:"price,omitempty"` // limit price, or reference price for MARKET
	OrderID int64            `json:"order_id,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

// Outcome is the venue's view after one action. Canceled is set when the
// action also cancelled another order.
type Outcome struct {
	Order    common.Order
	Canceled *common.Order
}

// None is the no-op action.
func None(reason string) Action { return Action{Kind: ActNone, Reason: reason} }

// View is everything the controller looks at. It is assembled by the symbol
// actor from its state; the controller never mutates it.
type View struct {
	Pair           config.Pair
	Price          float64
	Consensus      strategy.Signal
	Micro          microstructure.Signal
	BearishPattern bool
	Trade          *state.Trade
	OpenOrders     []common.Order
	Latest         *common.Order
	LastExit       time.Time
	Now            time.Time
}

func (v View) openOrder(side common.Side) (common.Order, bool) {
	for _, o := range v.OpenOrders {
		if o.Side == side && o.Status.Open() {
			return o, true
		}
	}
	return common.Order{}, false
}
