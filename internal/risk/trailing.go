package risk

import "math"

// TrailingStop follows the price up once the gain reaches the activation
// threshold. Its level never decreases.
type TrailingStop struct {
	ActivationPct float64 `json:"activation_pct"`
	DistancePct   float64 `json:"distance_pct"`
	Active        bool    `json:"active"`
	Level         float64 `json:"level"`
}

// Update returns the stop after observing price.
func (t TrailingStop) Update(entry, price float64) TrailingStop {
	if !t.Active {
		if entry <= 0 || price < entry*(1+t.ActivationPct/100) {
			return t
		}
		t.Active = true
	}
	t.Level = math.Max(t.Level, price*(1-t.DistancePct/100))
	return t
}

// Hit reports an active stop at or above price.
func (t TrailingStop) Hit(price float64) bool {
	return t.Active && price <= t.Level
}
