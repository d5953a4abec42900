package common

import "context"

// Venue abstracts the spot trading venue. Implementations perform no retries
// and no rate limiting; both belong to the callers.
type Venue interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	Depth(ctx context.Context, symbol string, limit int) (OrderBook, error)
	AllOrders(ctx context.Context, symbol string, limit int) ([]Order, error)
	SymbolFilters(ctx context.Context, symbol string) (Filters, error)
	Balance(ctx context.Context, asset string) (Balance, error)

	SubmitOrder(ctx context.Context, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) (Order, error)
	CancelReplace(ctx context.Context, req CancelReplaceRequest) (CancelReplaceResult, error)

	CreateListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context, listenKey string) error
	CloseListenKey(ctx context.Context, listenKey string) error
}
