package engine

import (
	"time"

	"consensus-trader/internal/microstructure"
	"consensus-trader/internal/order"
	"consensus-trader/internal/state"
	"consensus-trader/internal/strategy"
	"consensus-trader/pkg/exchanges/common"
)

// Snapshot is a read-only copy of one symbol's state, published after
// every handled event.
type Snapshot struct {
	Symbol     string                   `json:"symbol"`
	Price      float64                  `json:"price"`
	Consensus  *strategy.Consensus      `json:"consensus,omitempty"`
	Book       *microstructure.Analysis `json:"book,omitempty"`
	Trade      *state.Trade             `json:"trade,omitempty"`
	PnLPct     float64                  `json:"pnl_pct,omitempty"`
	OpenOrders []common.Order           `json:"open_orders"`
	LastAction *order.Action            `json:"last_action,omitempty"`
	LastExit   time.Time                `json:"last_exit,omitempty"`
	Candles    map[string]int           `json:"candles"`
	Busy       bool                     `json:"busy"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// SystemStatus represents the system runtime status.
type SystemStatus struct {
	Mode       string    `json:"mode"`
	DryRun     bool      `json:"dry_run"`
	Venue      string    `json:"venue"`
	Symbols    []string  `json:"symbols"`
	OpenTrades int       `json:"open_trades"`
	Version    string    `json:"version"`
	StartedAt  time.Time `json:"started_at"`
	ServerTime time.Time `json:"server_time"`
}
