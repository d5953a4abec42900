package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"consensus-trader/internal/api"
	"consensus-trader/internal/engine"
	"consensus-trader/internal/events"
	"consensus-trader/internal/gateway"
	"consensus-trader/internal/indicators"
	"consensus-trader/internal/market"
	"consensus-trader/internal/microstructure"
	"consensus-trader/internal/monitor"
	"consensus-trader/internal/order"
	"consensus-trader/internal/reconciliation"
	"consensus-trader/internal/strategy"
	"consensus-trader/pkg/config"
	exspot "consensus-trader/pkg/exchanges/binance/spot"
	"consensus-trader/pkg/exchanges/common"
	"consensus-trader/pkg/logger"
	marketbinance "consensus-trader/pkg/market/binance"
)

var buildVersion = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("load config: %v", err)
	}

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		stdlog.Fatalf("init logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting consensus-trader",
		zap.String("version", buildVersion),
		zap.Strings("symbols", cfg.Symbols()),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("scheduler", cfg.SchedulerMode))

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("bot stopped with error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	bus := events.NewBus(log)
	metrics := monitor.New(prometheus.DefaultRegisterer)
	waitAlerts := (&monitor.Alerter{Bus: bus, Metrics: metrics, Log: log}).Start(ctx)

	// Venue: live spot, or paper fills over live market data
	client := exspot.New(exspot.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	}, log)
	var venue common.Venue = client
	venueName := "binance-spot"
	if cfg.DryRun {
		venue = gateway.NewPaperVenue(client, gateway.PaperConfig{
			QuoteAsset:     "USDT",
			InitialBalance: 10000,
			FeeRate:        0.001,
			SlippageBps:    2,
		}, log)
		venueName = "paper"
	} else {
		client.TimeSync().Start(ctx)
	}

	gw := gateway.New(venue, gateway.Windows(cfg.Trading.RateLimits), cfg.Trading.MaxInFlight, log,
		gateway.WithObserver(metrics))
	if err := metrics.TrackWindows(gw.Queue().Usage); err != nil {
		return fmt.Errorf("register window metrics: %w", err)
	}
	if cfg.DryRun || cfg.BinanceAPIKey != "" {
		if bal, err := gw.Balance(ctx, "USDT"); err != nil {
			log.Warn("balance check failed", zap.Error(err))
		} else {
			log.Info("quote balance", zap.String("venue", venueName), zap.Float64("free", bal.Free), zap.Float64("locked", bal.Locked))
		}
	}

	// Strategy and execution
	timeframes := make([]string, 0, len(cfg.Trading.Timeframes))
	for _, tf := range cfg.Trading.Timeframes {
		timeframes = append(timeframes, tf.Interval)
	}
	evaluator := strategy.NewEngine(indicators.NewTalibProvider(indicators.DefaultPeriods()), timeframes,
		consensusConfig(cfg.Trading), log, strategy.WithPublisher(bus))
	executor := order.NewExecutor(gw, cfg.ClientIDPrefix, bus, log)
	async := order.NewAsyncExecutor(executor, 4, log)
	defer async.Close()

	deps := engine.Deps{
		Market:     gw,
		Evaluator:  evaluator,
		Analyzer:   microstructure.NewAnalyzer(microConfig(cfg.Trading.Microstructure)),
		Controller: order.NewController(),
		Executor:   async,
		Rebuilder:  reconciliation.New(gw, cfg.ClientIDPrefix, log),
		Bus:        bus,
		Metrics:    metrics,
		Log:        log,
	}
	actors := make([]*engine.SymbolActor, 0, len(cfg.Trading.Pairs))
	sinks := make(map[string]market.Sink, len(cfg.Trading.Pairs))
	for _, p := range cfg.Trading.Pairs {
		a := engine.NewSymbolActor(engine.ActorConfig{
			Pair:       p,
			Timeframes: timeframes,
			WindowCap:  cfg.Trading.CandleWindow,
			MinCandles: evaluator.Params().MinCandles,
		}, deps)
		actors = append(actors, a)
		sinks[p.Symbol] = a
	}
	scheduler := engine.NewScheduler(actors, cfg.TickInterval, cfg.SchedulerMode, engine.SystemStatus{
		DryRun:    cfg.DryRun,
		Venue:     venueName,
		Version:   buildVersion,
		StartedAt: time.Now(),
	}, log)
	scheduler.Start(ctx)

	// Market streams
	var streamer market.Streamer = marketbinance.NewStreamClient(cfg.BinanceTestnet, log)
	if cfg.UseMockFeed {
		streamer = &market.MockStream{StartPrice: 100, Step: 0.05, Interval: time.Second}
	}
	market.NewFeed(streamer, sinks, timeframes, log,
		market.WithReconnect(func(stream, symbol string, err error) {
			publishReconnect(bus, stream, symbol, err)
			if a, ok := scheduler.Actor(symbol); ok {
				a.RequestReconcile()
			}
		}),
	).Start(ctx)

	reconciliation.NewService(scheduler.Targets(), cfg.ReconcileInterval, func(r reconciliation.Report) {
		if len(r.Conflicts) > 0 || r.Err != nil {
			log.Warn("periodic reconciliation", zap.Int("conflicts", len(r.Conflicts)), zap.Error(r.Err))
		}
	}, log).Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		srv := api.NewServer(scheduler, api.Options{Gatherer: prometheus.DefaultGatherer, Limits: gw.Queue()}, log)
		if err := srv.Serve(gctx, cfg.HTTPAddr); err != nil {
			return fmt.Errorf("status api: %w", err)
		}
		return nil
	})
	if !cfg.DryRun {
		stream := order.NewSpotUserStream(gw, cfg.BinanceTestnet, cfg.ClientIDPrefix, scheduler.HandleReport, log,
			order.WithReconnectHook(func(err error) {
				publishReconnect(bus, "user_data", "", err)
				scheduler.RequestReconcile()
			}))
		g.Go(func() error { return stream.Run(gctx) })
	}

	err := g.Wait()
	waitAlerts()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func publishReconnect(bus *events.Bus, stream, symbol string, err error) {
	e := events.Reconnect{Stream: stream, Symbol: symbol, At: time.Now()}
	if err != nil {
		e.Err = err.Error()
	}
	bus.Publish(events.EventReconnect, e)
}

func consensusConfig(t config.Trading) strategy.ConsensusConfig {
	cc := strategy.DefaultConsensusConfig()
	c := t.Consensus
	if c.MinAgreement > 0 {
		cc.MinAgreement = c.MinAgreement
	}
	if c.StrongScore > 0 {
		cc.StrongScore = c.StrongScore
	}
	if c.Score > 0 {
		cc.Score = c.Score
	}
	if c.WeakScore > 0 {
		cc.WeakScore = c.WeakScore
	}
	if c.MinDifference > 0 {
		cc.MinDifference = c.MinDifference
	}
	cc.Weights = make(map[string]float64, len(t.Timeframes))
	for _, tf := range t.Timeframes {
		if tf.Weight > 0 {
			cc.Weights[tf.Interval] = tf.Weight
		}
	}
	return cc
}

func microConfig(m config.Microstructure) microstructure.Config {
	mc := microstructure.DefaultConfig()
	if m.TopN > 0 {
		mc.TopN = m.TopN
	}
	if m.WallMultiplier > 0 {
		mc.WallMultiplier = m.WallMultiplier
	}
	if m.ClusterDistancePct > 0 {
		mc.ClusterDistancePct = m.ClusterDistancePct
	}
	if m.NoiseFloorPct > 0 {
		mc.NoiseFloorPct = m.NoiseFloorPct
	}
	return mc
}
