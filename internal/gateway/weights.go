package gateway

import "consensus-trader/pkg/exchanges/common"

// Op names one gateway operation. Names double as metric labels.
type Op string

const (
	OpKlines          Op = "klines"
	OpDepth           Op = "depth"
	OpAllOrders       Op = "all_orders"
	OpExchangeInfo    Op = "exchange_info"
	OpBalance         Op = "balance"
	OpSubmitOrder     Op = "submit_order"
	OpCancelOrder     Op = "cancel_order"
	OpCancelReplace   Op = "cancel_replace"
	OpListenKeyCreate Op = "listen_key_create"
	OpListenKeyKeep   Op = "listen_key_keepalive"
	OpListenKeyClose  Op = "listen_key_close"
)

type cost struct {
	class  common.Class
	weight int
}

// Binance spot request weights.
var costs = map[Op]cost{
	OpKlines:          {common.ClassData, 2},
	OpAllOrders:       {common.ClassData, 20},
	OpExchangeInfo:    {common.ClassData, 20},
	OpBalance:         {common.ClassData, 20},
	OpSubmitOrder:     {common.ClassOrder, 1},
	OpCancelOrder:     {common.ClassOrder, 1},
	OpCancelReplace:   {common.ClassOrder, 1},
	OpListenKeyCreate: {common.ClassData, 2},
	OpListenKeyKeep:   {common.ClassData, 2},
	OpListenKeyClose:  {common.ClassData, 2},
}

func costOf(op Op) cost {
	if c, ok := costs[op]; ok {
		return c
	}
	return cost{common.ClassData, 1}
}

// depthWeight follows the venue's tiered depth weights.
func depthWeight(limit int) int {
	switch {
	case limit <= 100:
		return 5
	case limit <= 500:
		return 25
	case limit <= 1000:
		return 50
	default:
		return 250
	}
}
