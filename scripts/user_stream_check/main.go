package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"consensus-trader/internal/order"
	"consensus-trader/pkg/config"
	exspot "consensus-trader/pkg/exchanges/binance/spot"
	"consensus-trader/pkg/logger"
)

// This script checks the spot user data stream end to end:
// - creates a listen key with the configured credentials
// - logs every execution report whose client id carries CLIENT_ID_PREFIX
//
// Usage:
//   go run ./scripts/user_stream_check
//
// Place an order with a matching client id on the venue to see it arrive.

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("load config error: %v", err)
	}
	log, err := logger.New(logger.Options{Level: "debug"})
	if err != nil {
		stdlog.Fatalf("init logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		log.Fatal("BINANCE_API_KEY and BINANCE_API_SECRET are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	client := exspot.New(exspot.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	}, log)
	client.TimeSync().Start(ctx)

	log.Info("user stream check starting",
		zap.Bool("testnet", cfg.BinanceTestnet),
		zap.String("prefix", cfg.ClientIDPrefix))

	stream := order.NewSpotUserStream(client, cfg.BinanceTestnet, cfg.ClientIDPrefix,
		func(r order.ExecutionReport) {
			o := r.Order()
			log.Info("execution report",
				zap.String("symbol", o.Symbol),
				zap.Int64("order_id", o.OrderID),
				zap.String("client_id", o.ClientOrderID),
				zap.String("side", string(o.Side)),
				zap.String("status", string(o.Status)),
				zap.String("execution", r.ExecutionType),
				zap.Float64("executed_qty", o.ExecutedQty),
				zap.Float64("avg_price", o.AvgFillPrice()))
		}, log,
		order.WithReconnectHook(func(err error) {
			log.Warn("user stream reconnecting", zap.Error(err))
		}))

	if err := stream.Run(ctx); err != nil {
		log.Fatal("user stream stopped", zap.Error(err))
	}
	log.Info("user stream check finished")
}
