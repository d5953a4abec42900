package order

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/mailru/easyjson"
	"go.uber.org/zap"
)

// ListenKeys manages the user data stream listen key.
type ListenKeys interface {
	CreateListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context, listenKey string) error
	CloseListenKey(ctx context.Context, listenKey string) error
}

// ReportHandler receives owned execution reports.
type ReportHandler func(ExecutionReport)

// SpotUserStream listens to the Binance spot user data stream and forwards
// execution reports of orders this bot placed.
type SpotUserStream struct {
	keys        ListenKeys
	streamURL   string
	prefix      string
	handler     ReportHandler
	onReconnect func(err error)
	keepAlive   time.Duration
	backoff     *backoff.Backoff
	log         *zap.Logger
}

// StreamOption customizes a SpotUserStream.
type StreamOption func(*SpotUserStream)

// WithStreamURL overrides the websocket base URL (".../ws").
func WithStreamURL(u string) StreamOption { return func(s *SpotUserStream) { s.streamURL = u } }

// WithReconnectHook is called after every dropped connection, before redialing.
func WithReconnectHook(fn func(err error)) StreamOption {
	return func(s *SpotUserStream) { s.onReconnect = fn }
}

// NewSpotUserStream builds the listener. Reports whose client id lacks prefix are dropped.
func NewSpotUserStream(keys ListenKeys, testnet bool, prefix string, handler ReportHandler, log *zap.Logger, opts ...StreamOption) *SpotUserStream {
	if log == nil {
		log = zap.NewNop()
	}
	s := &SpotUserStream{
		keys:      keys,
		streamURL: buildStreamURL(testnet),
		prefix:    prefix,
		handler:   handler,
		keepAlive: 30 * time.Minute,
		backoff:   &backoff.Backoff{Min: time.Second, Max: time.Minute, Factor: 2, Jitter: true},
		log:       log.Named("user_stream"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func buildStreamURL(testnet bool) string {
	host := "stream.binance.com:9443"
	if testnet {
		host = "stream.testnet.binance.vision"
	}
	u := url.URL{Scheme: "wss", Host: host, Path: "/ws"}
	return u.String()
}

// Run keeps the stream connected until ctx ends, reconnecting with backoff.
// The listen key is closed on the way out.
func (s *SpotUserStream) Run(ctx context.Context) error {
	var listenKey string
	defer func() {
		if listenKey == "" {
			return
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.keys.CloseListenKey(closeCtx, listenKey); err != nil {
			s.log.Warn("close listen key failed", zap.Error(err))
		}
	}()

	for {
		var err error
		if listenKey == "" {
			listenKey, err = s.keys.CreateListenKey(ctx)
		}
		if err == nil {
			err = s.session(ctx, listenKey)
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warn("user stream dropped", zap.Error(err), zap.Float64("attempt", s.backoff.Attempt()))
			// a fresh key after repeated failures; the old one may have expired
			if s.backoff.Attempt() >= 3 {
				listenKey = ""
			}
		}
		if s.onReconnect != nil {
			s.onReconnect(err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.backoff.Duration()):
		}
	}
}

// session runs one websocket connection until it fails or ctx ends.
func (s *SpotUserStream) session(ctx context.Context, listenKey string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.streamURL+"/"+listenKey, nil)
	if err != nil {
		return fmt.Errorf("dial user stream: %w", err)
	}
	s.log.Info("user stream connected")

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessCtx.Done()
		_ = conn.Close()
	}()
	go s.keepAliveLoop(sessCtx, listenKey)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read user stream: %w", err)
		}
		s.backoff.Reset()
		s.handleMessage(msg)
	}
}

func (s *SpotUserStream) keepAliveLoop(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.keys.KeepAliveListenKey(ctx, listenKey); err != nil {
				s.log.Warn("listen key keepalive failed", zap.Error(err))
			}
		}
	}
}

func (s *SpotUserStream) handleMessage(msg []byte) {
	var ev streamEvent
	if err := easyjson.Unmarshal(msg, &ev); err != nil {
		s.log.Debug("user stream event type unreadable", zap.ByteString("payload", msg), zap.Error(err))
		return
	}
	if ev.Type != "executionReport" {
		return
	}
	var rep ExecutionReport
	if err := easyjson.Unmarshal(msg, &rep); err != nil {
		s.log.Warn("execution report parse error", zap.Error(err))
		return
	}
	if !Owned(s.prefix, rep.OwnerClientID()) {
		return
	}
	if s.handler != nil {
		s.handler(rep)
	}
}
