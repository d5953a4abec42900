package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"consensus-trader/internal/engine"
	"consensus-trader/pkg/exchanges/common"
)

type stubEngine struct {
	snaps map[string]engine.Snapshot
}

func (e stubEngine) Symbols() []string {
	out := make([]string, 0, len(e.snaps))
	for s := range e.snaps {
		out = append(out, s)
	}
	return out
}

func (e stubEngine) Snapshot(symbol string) (engine.Snapshot, bool) {
	s, ok := e.snaps[symbol]
	return s, ok
}

func (e stubEngine) Snapshots() []engine.Snapshot {
	return []engine.Snapshot{e.snaps["BTCUSDT"]}
}

func (e stubEngine) Status(context.Context) engine.SystemStatus {
	return engine.SystemStatus{Mode: engine.ModeSequential, DryRun: true, Venue: "paper", Symbols: e.Symbols(), Version: "test"}
}

type stubLimits struct{}

func (stubLimits) Usage() []common.WindowUsage {
	return []common.WindowUsage{{Name: "weight_1m", Used: 42, Limit: 6000}}
}
func (stubLimits) Pending() int { return 3 }

func newTestAPIServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := stubEngine{snaps: map[string]engine.Snapshot{
		"BTCUSDT": {Symbol: "BTCUSDT", Price: 100, OpenOrders: []common.Order{}, Candles: map[string]int{"1h": 200}},
	}}
	server := NewServer(svc, opts, nil)
	ts := httptest.NewServer(server.Router)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestStatusRoutes(t *testing.T) {
	ts := newTestAPIServer(t, Options{Gatherer: prometheus.NewRegistry(), Limits: stubLimits{}})

	var health struct {
		Status  string `json:"status"`
		Symbols int    `json:"symbols"`
	}
	resp := getJSON(t, ts.URL+"/health", &health)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, 1, health.Symbols)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var status engine.SystemStatus
	getJSON(t, ts.URL+"/api/status", &status)
	require.True(t, status.DryRun)
	require.Equal(t, "paper", status.Venue)

	var snaps []engine.Snapshot
	getJSON(t, ts.URL+"/api/symbols", &snaps)
	require.Len(t, snaps, 1)
	require.Equal(t, 200, snaps[0].Candles["1h"])

	var snap engine.Snapshot
	resp = getJSON(t, ts.URL+"/api/symbols/btcusdt", &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 100.0, snap.Price)

	var limits struct {
		Windows []common.WindowUsage `json:"windows"`
		Pending int                  `json:"pending"`
	}
	getJSON(t, ts.URL+"/api/limits", &limits)
	require.Equal(t, 3, limits.Pending)
	require.Equal(t, 42, limits.Windows[0].Used)
}

func TestUnknownSymbol(t *testing.T) {
	ts := newTestAPIServer(t, Options{Gatherer: prometheus.NewRegistry()})

	var resp struct {
		Code string `json:"code"`
	}
	r := getJSON(t, ts.URL+"/api/symbols/DOGEUSDT", &resp)
	require.Equal(t, http.StatusNotFound, r.StatusCode)
	require.Equal(t, "SYMBOL_NOT_FOUND", resp.Code)

	r = getJSON(t, ts.URL+"/api/limits", &resp)
	require.Equal(t, http.StatusServiceUnavailable, r.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "consensus_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(7)
	ts := newTestAPIServer(t, Options{Gatherer: reg})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "consensus_test_total 7")
}

func TestRateLimit(t *testing.T) {
	ts := newTestAPIServer(t, Options{Gatherer: prometheus.NewRegistry(), RPS: 0.001, Burst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp := getJSON(t, ts.URL+"/health", nil)
		codes = append(codes, resp.StatusCode)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestAPIServer(t, Options{Gatherer: prometheus.NewRegistry()})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}
