package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"consensus-trader/internal/engine"
	"consensus-trader/pkg/exchanges/common"
)

// LimitSource reports the gateway's rate-limit windows. *common.Queue
// implements it.
type LimitSource interface {
	Usage() []common.WindowUsage
	Pending() int
}

// Options configures the status server.
type Options struct {
	Gatherer prometheus.Gatherer // nil serves the default registry
	Limits   LimitSource         // nil disables /api/limits
	RPS      float64             // per-IP request rate; 0 means 20
	Burst    int                 // per-IP burst; 0 means 50
}

// Server is the read-only HTTP status surface of the bot.
type Server struct {
	Router *gin.Engine
	Engine engine.Service
	Limits LimitSource
	log    *zap.Logger
}

func NewServer(svc engine.Service, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RPS <= 0 {
		opts.RPS = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 50
	}

	limiters := newIPLimiters(opts.RPS, opts.Burst)
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                     // Panic recovery (first)
	r.Use(RequestIDMiddleware())              // Request ID tracking
	r.Use(RequestLogger(log))                 // Request logging (after ID is set)
	r.Use(RateLimitMiddleware(limiters, log)) // Rate limiting
	r.Use(CORSMiddleware())

	s := &Server{
		Router: r,
		Engine: svc,
		Limits: opts.Limits,
		log:    log,
	}
	s.routes(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(metrics))

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getSystemStatus)
		api.GET("/symbols", s.getSymbols)
		api.GET("/symbols/:symbol", s.getSymbol)
		api.GET("/limits", s.getLimits)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "symbols": len(s.Engine.Symbols())})
}

// Serve listens on addr until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("status API listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
