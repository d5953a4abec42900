package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"consensus-trader/internal/events"
	"consensus-trader/internal/risk"
	"consensus-trader/pkg/exchanges/common"
)

// Gateway is the order side of the exchange gateway.
type Gateway interface {
	SubmitOrder(ctx context.Context, req common.OrderRequest) (common.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (common.Order, error)
	CancelReplace(ctx context.Context, req common.CancelReplaceRequest) (common.CancelReplaceResult, error)
}

// ErrNoAction is returned when Apply is given ActNone.
var ErrNoAction = errors.New("order: nothing to execute")

// Executor turns controller actions into gateway calls.
type Executor struct {
	gw     Gateway
	prefix string
	bus    events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

// NewExecutor builds an executor issuing client ids with prefix. bus may be nil.
func NewExecutor(gw Gateway, prefix string, bus events.Publisher, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{gw: gw, prefix: prefix, bus: bus, log: log.Named("executor"), now: time.Now}
}

// Prefix returns the ownership prefix of issued client ids.
func (e *Executor) Prefix() string { return e.prefix }

// Apply executes a single action and returns the venue's view of the
// affected orders. It does not touch local state; the caller feeds the
// outcome back into the symbol mirror.
func (e *Executor) Apply(ctx context.Context, symbol string, a Action) (Outcome, error) {
	var (
		out Outcome
		err error
	)
	switch a.Kind {
	case ActNone, "":
		return Outcome{}, ErrNoAction
	case ActPlaceBuy, ActPlaceSell, ActEmergencySell:
		out.Order, err = e.gw.SubmitOrder(ctx, e.request(symbol, a))
	case ActCancel:
		out.Order, err = e.gw.CancelOrder(ctx, symbol, a.OrderID)
	case ActCancelReplaceSell:
		var res common.CancelReplaceResult
		res, err = e.gw.CancelReplace(ctx, common.CancelReplaceRequest{
			OrderRequest:  e.request(symbol, a),
			CancelOrderID: a.OrderID,
		})
		out.Order = res.New
		if res.Canceled.OrderID != 0 {
			out.Canceled = &res.Canceled
		}
	default:
		return Outcome{}, fmt.Errorf("order: unknown action %q", a.Kind)
	}
	o := out.Order

	fields := []zap.Field{
		zap.String("symbol", symbol),
		zap.String("action", string(a.Kind)),
		zap.String("reason", a.Reason),
		zap.Float64("qty", a.Qty),
		zap.Float64("price", a.Price),
	}
	if err != nil {
		e.log.Warn("order action failed", append(fields, zap.Error(err))...)
		return Outcome{}, fmt.Errorf("%s %s: %w", a.Kind, symbol, err)
	}
	e.log.Info("order action", append(fields,
		zap.Int64("order_id", o.OrderID),
		zap.String("client_id", o.ClientOrderID),
		zap.String("status", string(o.Status)))...)

	if e.bus != nil {
		if out.Canceled != nil {
			e.publishOrder(symbol, *out.Canceled, a.Reason)
		}
		e.publishOrder(symbol, o, a.Reason)
		if a.Kind == ActEmergencySell || a.Kind == ActCancelReplaceSell || isRiskExit(a.Reason) {
			e.bus.Publish(events.EventRiskAlert, events.RiskAlert{
				Symbol: symbol,
				Rule:   a.Reason,
				Price:  a.Price,
				At:     e.now(),
			})
		}
	}
	return out, nil
}

func (e *Executor) publishOrder(symbol string, o common.Order, reason string) {
	e.bus.Publish(events.EventOrderUpdate, events.OrderUpdate{
		Symbol:        symbol,
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Side:          string(o.Side),
		Type:          string(o.Type),
		Status:        string(o.Status),
		Price:         o.Price,
		ExecutedQty:   o.ExecutedQty,
		Reason:        reason,
		At:            e.now(),
	})
}

func (e *Executor) request(symbol string, a Action) common.OrderRequest {
	req := common.OrderRequest{
		Symbol:   symbol,
		Side:     a.Side,
		Type:     a.Type,
		Qty:      a.Qty,
		Price:    a.Price,
		ClientID: NewClientID(e.prefix),
	}
	if req.Type == common.OrderTypeLimit {
		req.TimeInForce = common.TIFGTC
	}
	return req
}

func isRiskExit(reason string) bool {
	switch risk.Exit(reason) {
	case risk.ExitStopLoss, risk.ExitTrailing, risk.ExitTakeProfit:
		return true
	}
	return false
}
