package spot

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"consensus-trader/pkg/exchanges/common"

	"github.com/adshao/go-binance/v2"
)

// Klines fetches candles for symbol and interval, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error) {
	rows, err := c.public.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, classifyLibError("klines", err)
	}
	now := time.Now().UnixMilli()
	out := make([]common.Candle, 0, len(rows))
	for _, k := range rows {
		candle, err := candleFromKline(k, now)
		if err != nil {
			return nil, err
		}
		out = append(out, candle)
	}
	return out, nil
}

func candleFromKline(k *binance.Kline, nowMs int64) (common.Candle, error) {
	vals := [5]float64{}
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return common.Candle{}, &common.InputValidationError{Field: "kline", Reason: fmt.Sprintf("non-numeric value %q", s)}
		}
		vals[i] = f
	}
	return common.Candle{
		OpenTime: k.OpenTime,
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
		Closed:   k.CloseTime < nowMs,
	}, nil
}

// Depth fetches an order book snapshot.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (common.OrderBook, error) {
	res, err := c.public.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return common.OrderBook{}, classifyLibError("depth", err)
	}
	book := common.OrderBook{Symbol: symbol, Timestamp: time.Now()}
	for _, b := range res.Bids {
		book.Bids = append(book.Bids, common.Level{Price: parseFloat(b.Price), Qty: parseFloat(b.Quantity)})
	}
	for _, a := range res.Asks {
		book.Asks = append(book.Asks, common.Level{Price: parseFloat(a.Price), Qty: parseFloat(a.Quantity)})
	}
	return book, nil
}

// SymbolFilters loads tick size, step size and notional limits from exchangeInfo.
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (common.Filters, error) {
	info, err := c.public.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return common.Filters{}, classifyLibError("exchange info", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return parseFilters(symbol, s.Filters), nil
		}
	}
	return common.Filters{}, fmt.Errorf("exchange info: symbol %s not listed", symbol)
}

func parseFilters(symbol string, raw []map[string]interface{}) common.Filters {
	f := common.Filters{Symbol: symbol}
	str := func(m map[string]interface{}, key string) float64 {
		if v, ok := m[key].(string); ok {
			return parseFloat(v)
		}
		return 0
	}
	for _, m := range raw {
		switch m["filterType"] {
		case "PRICE_FILTER":
			f.TickSize = str(m, "tickSize")
		case "LOT_SIZE":
			f.StepSize = str(m, "stepSize")
			f.MinQty = str(m, "minQty")
		case "MIN_NOTIONAL", "NOTIONAL":
			if v := str(m, "minNotional"); v > f.MinNotional {
				f.MinNotional = v
			}
		}
	}
	return f
}
