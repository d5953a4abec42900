package events

import "time"

// Event enumerates alert topics.
type Event string

const (
	EventConsensusSignal Event = "consensus.signal"
	EventOrderUpdate     Event = "order.update"
	EventRiskAlert       Event = "risk.alert"
	EventReconnect       Event = "stream.reconnect"
)

// ConsensusSignal is published for terminal consensus signals only.
type ConsensusSignal struct {
	Symbol         string
	Signal         string
	NormalizedBuy  float64
	NormalizedSell float64
	At             time.Time
}

// OrderUpdate reports an owned order changing status.
type OrderUpdate struct {
	Symbol        string
	OrderID       int64
	ClientOrderID string
	Side          string
	Type          string
	Status        string
	Price         float64
	ExecutedQty   float64
	Reason        string
	At            time.Time
}

// RiskAlert reports an exit triggered by a risk rule.
type RiskAlert struct {
	Symbol string
	Rule   string // stop_loss, trailing_stop, take_profit, reversal, emergency
	Price  float64
	PnLPct float64
	At     time.Time
}

// Reconnect reports a stream reconnect; the owning symbol is re-reconciled.
type Reconnect struct {
	Stream string
	Symbol string
	Err    string
	At     time.Time
}
