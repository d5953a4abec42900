package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"consensus-trader/internal/events"
	"consensus-trader/internal/order"
	"consensus-trader/internal/strategy"
	"consensus-trader/pkg/exchanges/common"
)

func TestOrderOutcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ok", nil, "ok"},
		{"precision", &common.PrecisionError{Symbol: "BTCUSDT", Field: "quantity"}, "precision"},
		{"rejected", &common.ExchangeRejection{Status: 400, Code: -2010}, "rejected"},
		{"transient", &common.TransientNetworkError{Op: "order", Err: errors.New("eof")}, "transient"},
		{"wrapped", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.ObserveOrder("BTCUSDT", order.ActPlaceBuy, tt.err)
			require.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("BTCUSDT", "PLACE_BUY", tt.want)))
		})
	}
}

func TestGatewayAndEngineObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveEvaluation("ETHUSDT", 3*time.Millisecond, strategy.Buy)
	m.ObserveEvaluation("ETHUSDT", 2*time.Millisecond, strategy.Buy)
	require.Equal(t, 2.0, testutil.ToFloat64(m.signals.WithLabelValues("ETHUSDT", "BUY")))

	m.SetOpenTrade("ETHUSDT", true)
	require.Equal(t, 1.0, testutil.ToFloat64(m.openTrades.WithLabelValues("ETHUSDT")))
	m.SetOpenTrade("ETHUSDT", false)
	require.Equal(t, 0.0, testutil.ToFloat64(m.openTrades.WithLabelValues("ETHUSDT")))

	now := time.Now()
	m.ObserveAdmission(common.Admission{Class: common.ClassData, Weight: 20, Enqueued: now, Admitted: now.Add(2 * time.Second)})
	m.ObserveAdmission(common.Admission{Class: common.ClassData, Weight: 2, Enqueued: now, Admitted: now})
	require.Equal(t, 22.0, testutil.ToFloat64(m.admittedWeight.WithLabelValues("data")))
	require.Equal(t, 1, testutil.CollectAndCount(m.queueWait))

	m.ObserveRequest("klines", common.ClassData, 40*time.Millisecond, nil)
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("klines", "data", "ok")))

	require.NoError(t, m.TrackWindows(func() []common.WindowUsage {
		return []common.WindowUsage{{Name: "weight_1m", Used: 120, Limit: 6000}, {Name: "orders_10s", Used: 1, Limit: 100}}
	}))
	n, err := testutil.GatherAndCount(reg, "consensus_rate_window_used", "consensus_rate_window_limit")
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestAlerterLogsEvents(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	bus := events.NewBus(nil)
	m := New(prometheus.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())

	wait := (&Alerter{Bus: bus, Metrics: m, Log: zap.New(core)}).Start(ctx)
	bus.Publish(events.EventRiskAlert, events.RiskAlert{Symbol: "BTCUSDT", Rule: "stop_loss", Price: 98.4})
	bus.Publish(events.EventReconnect, events.Reconnect{Stream: "kline", Symbol: "BTCUSDT", Err: "eof"})

	require.Eventually(t, func() bool { return logs.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, logs.FilterMessage("risk alert").Len())
	require.Equal(t, 1.0, testutil.ToFloat64(m.reconnects.WithLabelValues("kline")))

	cancel()
	wait()
}

func TestAlerterWithoutBus(t *testing.T) {
	wait := (&Alerter{}).Start(context.Background())
	wait()
}
