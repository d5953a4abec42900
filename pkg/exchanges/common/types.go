package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType denotes the order types the bot submits.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
)

// OrderStatus mirrors the venue status set.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusExpired         OrderStatus = "EXPIRED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusUnknown         OrderStatus = "UNKNOWN"
)

// Open reports whether the order can still trade.
func (s OrderStatus) Open() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

// ParseOrderStatus maps a venue status string, folding EXPIRED_IN_MATCH and PENDING_CANCEL.
func ParseOrderStatus(s string) OrderStatus {
	switch s {
	case "NEW", "PENDING_NEW":
		return StatusNew
	case "PARTIALLY_FILLED":
		return StatusPartiallyFilled
	case "FILLED":
		return StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return StatusCanceled
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return StatusExpired
	case "REJECTED":
		return StatusRejected
	default:
		return StatusUnknown
	}
}

// Candle is one OHLCV interval.
type Candle struct {
	OpenTime int64 // ms
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Closed   bool
}

// Level is one order book price level.
type Level struct {
	Price float64
	Qty   float64
}

// OrderBook is a depth snapshot with bids descending and asks ascending.
type OrderBook struct {
	Symbol    string
	Bids      []Level
	Asks      []Level
	Timestamp time.Time
}

// Mid returns the mid price, or 0 when either side is empty.
func (b OrderBook) Mid() float64 {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return 0
	}
	return (b.Bids[0].Price + b.Asks[0].Price) / 2
}

// OrderRequest captures an order intent to be sent to the venue.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         float64
	Price       float64 // limit price; for MARKET the reference price used for notional checks
	TimeInForce TimeInForce
	ClientID    string
}

// CancelReplaceRequest cancels CancelOrderID and submits the new order atomically.
type CancelReplaceRequest struct {
	OrderRequest
	CancelOrderID int64
}

// CancelReplaceResult carries both legs of a cancel-replace.
type CancelReplaceResult struct {
	Canceled Order
	New      Order
}

// Order is the venue's view of one order.
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          OrderType
	Status        OrderStatus
	Price         float64
	OrigQty       float64
	ExecutedQty   float64
	CumQuote      float64
	UpdateTime    int64 // ms
}

// AvgFillPrice returns the volume-weighted fill price, falling back to the limit price.
func (o Order) AvgFillPrice() float64 {
	if o.ExecutedQty > 0 && o.CumQuote > 0 {
		return o.CumQuote / o.ExecutedQty
	}
	return o.Price
}

// Balance is a spot asset balance.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Filters are the venue's precision constraints for a symbol.
type Filters struct {
	Symbol      string
	TickSize    float64
	StepSize    float64
	MinQty      float64
	MinNotional float64
}
