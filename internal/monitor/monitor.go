package monitor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"consensus-trader/internal/events"
)

// Alerter logs bus events. External alert channels are not wired; the log
// is the alert sink.
type Alerter struct {
	Bus     *events.Bus
	Metrics *Metrics // optional; counts reconnects
	Log     *zap.Logger
}

var alertTopics = []events.Event{
	events.EventConsensusSignal,
	events.EventOrderUpdate,
	events.EventRiskAlert,
	events.EventReconnect,
}

// Start subscribes to every topic and returns immediately. The returned
// wait blocks until the listeners exited after ctx ended.
func (a *Alerter) Start(ctx context.Context) (wait func()) {
	log := a.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("alerts")
	if a.Bus == nil {
		log.Warn("alerter not configured; skipping")
		return func() {}
	}

	var wg sync.WaitGroup
	for _, topic := range alertTopics {
		stream, unsub := a.Bus.Subscribe(topic, 64)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					a.handle(log, msg)
				}
			}
		}()
	}
	return wg.Wait
}

func (a *Alerter) handle(log *zap.Logger, msg any) {
	switch e := msg.(type) {
	case events.ConsensusSignal:
		log.Info("consensus signal",
			zap.String("symbol", e.Symbol),
			zap.String("signal", e.Signal),
			zap.Float64("buy", e.NormalizedBuy),
			zap.Float64("sell", e.NormalizedSell))
	case events.OrderUpdate:
		log.Info("order update",
			zap.String("symbol", e.Symbol),
			zap.Int64("order_id", e.OrderID),
			zap.String("side", e.Side),
			zap.String("type", e.Type),
			zap.String("status", e.Status),
			zap.Float64("price", e.Price),
			zap.String("reason", e.Reason))
	case events.RiskAlert:
		log.Warn("risk alert",
			zap.String("symbol", e.Symbol),
			zap.String("rule", e.Rule),
			zap.Float64("price", e.Price),
			zap.Float64("pnl_pct", e.PnLPct))
	case events.Reconnect:
		if a.Metrics != nil {
			a.Metrics.IncReconnect(e.Stream)
		}
		log.Warn("stream reconnected",
			zap.String("stream", e.Stream),
			zap.String("symbol", e.Symbol),
			zap.String("err", e.Err))
	default:
		log.Debug("unknown alert payload", zap.Any("payload", msg))
	}
}
