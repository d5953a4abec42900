package main

import (
	"context"
	stdlog "log"
	"time"

	"go.uber.org/zap"

	"consensus-trader/internal/gateway"
	"consensus-trader/internal/order"
	"consensus-trader/internal/reconciliation"
	"consensus-trader/pkg/config"
	exspot "consensus-trader/pkg/exchanges/binance/spot"
	"consensus-trader/pkg/logger"
)

// dry_run_demo runs a few order flows against the paper venue. Prices and
// precision filters come from the public Binance API; nothing is placed on
// the exchange.
//
// Usage:
//   go run ./scripts/dry_run_demo
//
// It will:
//   1) BUY then SELL BTCUSDT at the current mid price.
//   2) Try a BUY below the minimum notional to show the precision check.
//   3) Rebuild the trade from the paper order history and print the balance.

const (
	symbol = "BTCUSDT"
	prefix = "demo_"
)

func main() {
	log, err := logger.New(logger.Options{Level: "info"})
	if err != nil {
		stdlog.Fatalf("init logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	paper := gateway.NewPaperVenue(exspot.New(exspot.Config{}, log), gateway.PaperConfig{
		QuoteAsset:     "USDT",
		InitialBalance: 10000,
		FeeRate:        0.001,
	}, log)
	gw := gateway.New(paper, gateway.Windows(config.DefaultTrading().RateLimits), 4, log)
	exec := order.NewExecutor(gw, prefix, nil, log)

	book, err := gw.FetchDepth(ctx, symbol, 5)
	if err != nil {
		log.Fatal("depth", zap.Error(err))
	}
	mid := book.Mid()
	log.Info("[SCENARIO 1] simple BUY then SELL", zap.Float64("mid", mid))

	buy, err := exec.Apply(ctx, symbol, order.Action{
		Kind: order.ActPlaceBuy, Side: "BUY", Type: "LIMIT", Qty: 20 / mid, Price: mid, Reason: "demo",
	})
	if err != nil {
		log.Fatal("buy", zap.Error(err))
	}
	log.Info("bought", zap.Float64("qty", buy.Order.ExecutedQty), zap.Float64("avg", buy.Order.AvgFillPrice()))

	sell, err := exec.Apply(ctx, symbol, order.Action{
		Kind: order.ActPlaceSell, Side: "SELL", Type: "LIMIT", Qty: buy.Order.ExecutedQty, Price: mid * 1.015, Reason: "take_profit",
	})
	if err != nil {
		log.Fatal("sell", zap.Error(err))
	}
	log.Info("sold", zap.Float64("qty", sell.Order.ExecutedQty), zap.Float64("avg", sell.Order.AvgFillPrice()))

	log.Info("[SCENARIO 2] BUY below the minimum notional")
	_, err = exec.Apply(ctx, symbol, order.Action{
		Kind: order.ActPlaceBuy, Side: "BUY", Type: "LIMIT", Qty: 0.5 / mid, Price: mid, Reason: "demo",
	})
	log.Info("tiny buy refused", zap.Error(err))

	log.Info("[SCENARIO 3] rebuild from history")
	res, err := reconciliation.New(gw, prefix, log).Rebuild(ctx, symbol)
	if err != nil {
		log.Fatal("rebuild", zap.Error(err))
	}
	bal, err := gw.Balance(ctx, "USDT")
	if err != nil {
		log.Fatal("balance", zap.Error(err))
	}
	log.Info("final DRY-RUN state",
		zap.Int("orders", len(res.Orders)),
		zap.Bool("open_trade", res.Buy != nil),
		zap.Time("last_exit", res.LastExit),
		zap.Float64("usdt", bal.Free))
}
