package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"consensus-trader/pkg/exchanges/common"
)

// ErrUnknownOrder is returned by the paper venue for ids it never issued.
var ErrUnknownOrder = errors.New("paper: unknown order")

// PaperConfig tunes dry-run fills.
type PaperConfig struct {
	QuoteAsset     string
	InitialBalance float64
	FeeRate        float64 // decimal, 0.001 = 10 bps
	SlippageBps    float64
}

// PaperVenue simulates order execution in memory for dry runs. Market data,
// filters and everything read-only come from the wrapped venue. Every order
// fills on submission at its price, with slippage applied against the order.
type PaperVenue struct {
	data common.Venue
	cfg  PaperConfig

	mu       sync.Mutex
	nextID   int64
	orders   map[string][]common.Order
	balances map[string]float64
	rng      *rand.Rand
	now      func() time.Time
	log      *zap.Logger
}

var _ common.Venue = (*PaperVenue)(nil)

// NewPaperVenue wraps data with simulated execution.
func NewPaperVenue(data common.Venue, cfg PaperConfig, log *zap.Logger) *PaperVenue {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	return &PaperVenue{
		data:     data,
		cfg:      cfg,
		orders:   make(map[string][]common.Order),
		balances: map[string]float64{cfg.QuoteAsset: cfg.InitialBalance},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		log:      log.Named("paper"),
	}
}

func (p *PaperVenue) Klines(ctx context.Context, symbol, interval string, limit int) ([]common.Candle, error) {
	return p.data.Klines(ctx, symbol, interval, limit)
}

func (p *PaperVenue) Depth(ctx context.Context, symbol string, limit int) (common.OrderBook, error) {
	return p.data.Depth(ctx, symbol, limit)
}

func (p *PaperVenue) SymbolFilters(ctx context.Context, symbol string) (common.Filters, error) {
	return p.data.SymbolFilters(ctx, symbol)
}

// AllOrders returns the simulated history, newest last.
func (p *PaperVenue) AllOrders(_ context.Context, symbol string, limit int) ([]common.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	hist := p.orders[symbol]
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	return append([]common.Order(nil), hist...), nil
}

// Balance returns the simulated free balance.
func (p *PaperVenue) Balance(_ context.Context, asset string) (common.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return common.Balance{Asset: asset, Free: p.balances[asset]}, nil
}

// SubmitOrder fills req immediately.
func (p *PaperVenue) SubmitOrder(_ context.Context, req common.OrderRequest) (common.Order, error) {
	if req.Price <= 0 {
		return common.Order{}, &common.ExchangeRejection{Status: 400, Code: -1013, Message: "paper: order needs a reference price"}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fillLocked(req), nil
}

// CancelOrder always finds the order already filled.
func (p *PaperVenue) CancelOrder(_ context.Context, symbol string, orderID int64) (common.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.orders[symbol] {
		if o.OrderID == orderID {
			return common.Order{}, &common.ExchangeRejection{Status: 400, Code: -2011, Message: "Unknown order sent."}
		}
	}
	return common.Order{}, fmt.Errorf("%w %d", ErrUnknownOrder, orderID)
}

// CancelReplace fails on its cancel leg like the venue's STOP_ON_FAILURE
// mode: paper orders never rest, so there is nothing to cancel.
func (p *PaperVenue) CancelReplace(ctx context.Context, req common.CancelReplaceRequest) (common.CancelReplaceResult, error) {
	if _, err := p.CancelOrder(ctx, req.Symbol, req.CancelOrderID); err != nil {
		return common.CancelReplaceResult{}, err
	}
	return common.CancelReplaceResult{}, fmt.Errorf("%w %d", ErrUnknownOrder, req.CancelOrderID)
}

func (p *PaperVenue) CreateListenKey(context.Context) (string, error)  { return "paper", nil }
func (p *PaperVenue) KeepAliveListenKey(context.Context, string) error { return nil }
func (p *PaperVenue) CloseListenKey(context.Context, string) error     { return nil }

func (p *PaperVenue) fillLocked(req common.OrderRequest) common.Order {
	price := req.Price
	if slip := p.cfg.SlippageBps / 10000; slip > 0 {
		noise := p.rng.Float64() * slip
		if req.Side == common.SideBuy {
			price *= 1 + noise
		} else {
			price *= 1 - noise
		}
	}
	quote := price * req.Qty
	fee := quote * p.cfg.FeeRate
	if req.Side == common.SideBuy {
		p.balances[p.cfg.QuoteAsset] -= quote + fee
	} else {
		p.balances[p.cfg.QuoteAsset] += quote - fee
	}

	p.nextID++
	o := common.Order{
		OrderID:       p.nextID,
		ClientOrderID: req.ClientID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Status:        common.StatusFilled,
		Price:         req.Price,
		OrigQty:       req.Qty,
		ExecutedQty:   req.Qty,
		CumQuote:      quote,
		UpdateTime:    p.now().UnixMilli(),
	}
	p.orders[req.Symbol] = append(p.orders[req.Symbol], o)

	p.log.Info("paper fill",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("qty", req.Qty),
		zap.Float64("price", price),
		zap.Float64("fee", fee))
	return o
}
