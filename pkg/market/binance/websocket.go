package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// StreamClient manages streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
	log       *zap.Logger
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool, log *zap.Logger) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "stream.testnet.binance.vision"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamClient{
		StreamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		dialer:    websocket.DefaultDialer,
		log:       log.Named("ws"),
	}
}

// SubscribeKlines streams kline updates. The channel closes when the
// connection drops or ctx ends; reconnecting is the caller's job.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan Kline, func(), error) {
	// Binance requires lowercase symbols for WebSocket streams
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
	return subscribe(ctx, c, stream, parseKlineMessage)
}

// SubscribeDepth streams top-of-book partial depth snapshots (levels 5, 10 or 20).
func (c *StreamClient) SubscribeDepth(ctx context.Context, symbol string, levels int) (<-chan DepthUpdate, func(), error) {
	stream := fmt.Sprintf("%s@depth%d@100ms", strings.ToLower(symbol), levels)
	return subscribe(ctx, c, stream, func(msg []byte) (DepthUpdate, error) {
		d, err := parseDepthMessage(msg)
		d.Symbol = symbol
		return d, err
	})
}

func subscribe[T any](ctx context.Context, c *StreamClient, stream string, parse func([]byte) (T, error)) (<-chan T, func(), error) {
	conn, _, err := c.dialer.DialContext(ctx, c.StreamURL+"/"+stream, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws %s: %w", stream, err)
	}

	out := make(chan T, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	go func() {
		defer close(out)
		defer stop()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				c.log.Warn("stream read error", zap.String("stream", stream), zap.Error(err))
				return
			}

			parsed, err := parse(msg)
			if err != nil {
				c.log.Debug("stream parse error", zap.String("stream", stream), zap.Error(err))
				continue
			}
			select {
			case out <- parsed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop, nil
}

// parseKlineMessage decodes only the fields we need.
func parseKlineMessage(msg []byte) (Kline, error) {
	var raw struct {
		Event string `json:"e"`
		Data  struct {
			StartTime int64  `json:"t"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
			Final     bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, err
	}
	if raw.Event != "kline" {
		return Kline{}, fmt.Errorf("unexpected event %q", raw.Event)
	}
	return Kline{
		Symbol:   raw.Data.Symbol,
		Interval: raw.Data.Interval,
		OpenTime: raw.Data.StartTime,
		Open:     toFloat(raw.Data.Open),
		Close:    toFloat(raw.Data.Close),
		High:     toFloat(raw.Data.High),
		Low:      toFloat(raw.Data.Low),
		Volume:   toFloat(raw.Data.Volume),
		Closed:   raw.Data.Final,
	}, nil
}

func parseDepthMessage(msg []byte) (DepthUpdate, error) {
	var raw struct {
		LastUpdateID int64       `json:"lastUpdateId"`
		Bids         [][2]string `json:"bids"`
		Asks         [][2]string `json:"asks"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return DepthUpdate{}, err
	}
	d := DepthUpdate{LastUpdateID: raw.LastUpdateID}
	for _, b := range raw.Bids {
		d.Bids = append(d.Bids, [2]float64{toFloat(b[0]), toFloat(b[1])})
	}
	for _, a := range raw.Asks {
		d.Asks = append(d.Asks, [2]float64{toFloat(a[0]), toFloat(a[1])})
	}
	return d, nil
}

func toFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
