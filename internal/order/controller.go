package order

import (
	"fmt"
	"math"
	"time"

	"consensus-trader/internal/risk"
	"consensus-trader/internal/strategy"
	"consensus-trader/pkg/exchanges/common"
)

// Controller runs the per-symbol order state machine. It is pure: the same
// View always yields the same Action.
type Controller struct{}

// NewController returns the order lifecycle controller.
func NewController() *Controller { return &Controller{} }

// Decide returns exactly one action. Exits are evaluated before entries.
func (c *Controller) Decide(v View) Action {
	if v.Price <= 0 {
		return None("no price")
	}

	openSell, hasOpenSell := v.openOrder(common.SideSell)
	openBuy, hasOpenBuy := v.openOrder(common.SideBuy)

	// 1. a resting limit sell below the stop is converted to market
	if hasOpenSell && openSell.Type != common.OrderTypeMarket &&
		v.Trade != nil && v.Price <= v.Trade.Levels.StopPrice {
		qty := openSell.OrigQty - openSell.ExecutedQty
		if qty <= 0 {
			qty = v.Trade.Qty
		}
		return Action{
			Kind:    ActCancelReplaceSell,
			Side:    common.SideSell,
			Type:    common.OrderTypeMarket,
			Qty:     qty,
			Price:   v.Price,
			OrderID: openSell.OrderID,
			Reason:  string(risk.ExitStopLoss),
		}
	}

	// 2. exits for an open trade
	if v.Trade != nil {
		if hasOpenSell {
			return None("sell working")
		}
		if hasOpenBuy {
			// a partially filled entry: the working rest is cancelled
			// before anything is sold
			if exit := c.exit(v); exit.Kind != ActNone {
				return Action{Kind: ActCancel, Side: common.SideBuy, OrderID: openBuy.OrderID, Reason: exit.Reason}
			}
			if cancel, ok := staleBuy(v, openBuy); ok {
				return cancel
			}
			return None("buy working")
		}
		return c.exit(v)
	}

	// 3. stale entry
	if hasOpenBuy {
		if openBuy.Status == common.StatusNew {
			if cancel, ok := staleBuy(v, openBuy); ok {
				return cancel
			}
		}
		return None("buy working")
	}
	if hasOpenSell {
		return None("sell working")
	}

	if v.Latest != nil {
		switch {
		// 4. re-entry after a cancelled or expired order
		case v.Latest.Status == common.StatusCanceled || v.Latest.Status == common.StatusExpired:
			updated := time.UnixMilli(v.Latest.UpdateTime)
			if v.Now.Sub(updated) < v.Pair.ReentryDelay {
				return None("re-entry delay")
			}
			return c.entry(v, "re-entry")
		// 5. re-entry after an exit
		case v.Latest.Side == common.SideSell && v.Latest.Status == common.StatusFilled:
			if v.Now.Sub(v.LastExit) < v.Pair.Cooldown {
				return None("cooldown")
			}
			return c.entry(v, "after exit")
		}
	}

	// 6. fresh entry
	return c.entry(v, "entry")
}

func (c *Controller) exit(v View) Action {
	t := v.Trade
	sell := Action{Kind: ActPlaceSell, Side: common.SideSell, Type: common.OrderTypeMarket, Qty: t.Qty, Price: v.Price}

	reason := t.Levels.Check(v.Price)
	switch reason {
	case risk.ExitTakeProfit:
		sell.Type = common.OrderTypeLimit
		sell.Reason = string(reason)
		return sell
	case risk.ExitStopLoss, risk.ExitTrailing:
		sell.Reason = string(reason)
		if reason == risk.ExitStopLoss && v.Latest != nil && v.Latest.Side == common.SideSell &&
			(v.Latest.Status == common.StatusCanceled || v.Latest.Status == common.StatusExpired) {
			sell.Kind = ActEmergencySell
		}
		return sell
	}

	strongSell := v.Consensus == strategy.Sell || v.Consensus == strategy.StrongSell
	if strongSell {
		sell.Reason = "reversal: " + string(v.Consensus)
		return sell
	}
	if v.BearishPattern && t.Levels.PnLPct(v.Price) < 0 {
		sell.Reason = "reversal: bearish pattern"
		return sell
	}
	return None("holding")
}

func (c *Controller) entry(v View, why string) Action {
	switch {
	case !v.Pair.Tradeable:
		return None("not tradeable")
	case !v.Consensus.Favorable():
		return None("signal " + string(v.Consensus))
	case v.Micro.Bearish():
		return None("order book " + string(v.Micro))
	case v.BearishPattern:
		return None("bearish pattern")
	}
	price := v.Price * (1 - v.Pair.EntryDistancePct/100)
	return Action{
		Kind:   ActPlaceBuy,
		Side:   common.SideBuy,
		Type:   common.OrderTypeLimit,
		Qty:    v.Pair.OrderSize / price,
		Price:  price,
		Reason: why,
	}
}

// staleBuy cancels a working buy once the signal turns or the price drifts
// away from its limit.
func staleBuy(v View, buy common.Order) (Action, bool) {
	if !v.Consensus.Favorable() {
		return Action{Kind: ActCancel, Side: common.SideBuy, OrderID: buy.OrderID, Reason: "signal " + string(v.Consensus)}, true
	}
	if drift := driftPct(buy.Price, v.Price); drift > v.Pair.PriceDriftPct {
		return Action{Kind: ActCancel, Side: common.SideBuy, OrderID: buy.OrderID, Reason: fmt.Sprintf("price drift %.2f%%", drift)}, true
	}
	return Action{}, false
}

func driftPct(ref, price float64) float64 {
	if ref <= 0 {
		return 0
	}
	return math.Abs(price-ref) / ref * 100
}
