package market

// Kline is a streamed candlestick update.
type Kline struct {
	Symbol   string
	Interval string
	OpenTime int64 // ms
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Closed   bool // the interval has finished
}

// DepthUpdate is a partial book depth snapshot, best levels first.
type DepthUpdate struct {
	Symbol       string
	LastUpdateID int64
	Bids         [][2]float64 // [price, qty]
	Asks         [][2]float64 // [price, qty]
}
