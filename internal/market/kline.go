package market

import (
	"time"

	"consensus-trader/pkg/exchanges/common"
	marketpkg "consensus-trader/pkg/market/binance"
)

// ToCandle converts a streamed kline.
func ToCandle(k marketpkg.Kline) common.Candle {
	return common.Candle{
		OpenTime: k.OpenTime,
		Open:     k.Open,
		High:     k.High,
		Low:      k.Low,
		Close:    k.Close,
		Volume:   k.Volume,
		Closed:   k.Closed,
	}
}

// ToBook converts a partial depth snapshot received at.
func ToBook(d marketpkg.DepthUpdate, at time.Time) common.OrderBook {
	b := common.OrderBook{
		Symbol:    d.Symbol,
		Bids:      make([]common.Level, 0, len(d.Bids)),
		Asks:      make([]common.Level, 0, len(d.Asks)),
		Timestamp: at,
	}
	for _, l := range d.Bids {
		b.Bids = append(b.Bids, common.Level{Price: l[0], Qty: l[1]})
	}
	for _, l := range d.Asks {
		b.Asks = append(b.Asks, common.Level{Price: l[0], Qty: l[1]})
	}
	return b
}
