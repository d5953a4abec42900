// Package microstructure scores order book imbalance, walls and depth changes.
package microstructure

import (
	"math"
	"sort"

	"consensus-trader/pkg/exchanges/common"
)

// Signal is the order book verdict.
type Signal string

const (
	StrongBuy  Signal = "strong_buy"
	Buy        Signal = "buy"
	Neutral    Signal = "neutral"
	Sell       Signal = "sell"
	StrongSell Signal = "strong_sell"
)

// Bearish reports sell or strong_sell.
func (s Signal) Bearish() bool { return s == Sell || s == StrongSell }

// Config tunes the analyzer.
type Config struct {
	TopN               int
	WallMultiplier     float64
	ClusterDistancePct float64
	NoiseFloorPct      float64
	WallProximityPct   float64
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{TopN: 5, WallMultiplier: 3, ClusterDistancePct: 0.1, NoiseFloorPct: 5, WallProximityPct: 0.5}
}

const (
	strongRatio = 3.0
	ratio       = 1.5
	strongScore = 3.0
	score       = 1.5
)

// Wall is a level far larger than its side's average.
type Wall struct {
	Price    float64 `json:"price"`
	Qty      float64 `json:"qty"`
	DistPct  float64 `json:"dist_pct"` // distance from mid, percent
	Multiple float64 `json:"multiple"` // qty over the side mean
}

// Zone is a run of adjacent levels folded together.
type Zone struct {
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
	Qty    float64 `json:"qty"`
	Levels int     `json:"levels"`
}

// Analysis is the result for one book snapshot.
type Analysis struct {
	BidVolume   float64 `json:"bid_volume"`
	AskVolume   float64 `json:"ask_volume"`
	Ratio       float64 `json:"ratio"` // top-N bid over ask volume
	BidWalls    []Wall  `json:"bid_walls,omitempty"`
	AskWalls    []Wall  `json:"ask_walls,omitempty"`
	Support     []Zone  `json:"support,omitempty"`
	Resistance  []Zone  `json:"resistance,omitempty"`
	BidDeltaPct float64 `json:"bid_delta_pct"`
	AskDeltaPct float64 `json:"ask_delta_pct"`
	Score       float64 `json:"score"`
	Signal      Signal  `json:"signal"`
}

// Analyzer is stateless; callers keep the previous snapshot.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer fills zero config fields from DefaultConfig.
func NewAnalyzer(cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.TopN <= 0 {
		cfg.TopN = def.TopN
	}
	if cfg.WallMultiplier <= 0 {
		cfg.WallMultiplier = def.WallMultiplier
	}
	if cfg.ClusterDistancePct <= 0 {
		cfg.ClusterDistancePct = def.ClusterDistancePct
	}
	if cfg.NoiseFloorPct <= 0 {
		cfg.NoiseFloorPct = def.NoiseFloorPct
	}
	if cfg.WallProximityPct <= 0 {
		cfg.WallProximityPct = def.WallProximityPct
	}
	return &Analyzer{cfg: cfg}
}

// Analyze scores cur, using prev (may be nil) for depth deltas.
func (a *Analyzer) Analyze(cur common.OrderBook, prev *common.OrderBook) Analysis {
	out := Analysis{Signal: Neutral}
	if len(cur.Bids) == 0 && len(cur.Asks) == 0 {
		return out
	}

	out.BidVolume = topVolume(cur.Bids, a.cfg.TopN)
	out.AskVolume = topVolume(cur.Asks, a.cfg.TopN)
	// zero when there are no asks
	if out.AskVolume > 0 {
		out.Ratio = out.BidVolume / out.AskVolume
	}

	mid := cur.Mid()
	out.BidWalls = a.walls(cur.Bids, mid)
	out.AskWalls = a.walls(cur.Asks, mid)
	out.Support = a.clusters(cur.Bids)
	out.Resistance = a.clusters(cur.Asks)

	if prev != nil {
		out.BidDeltaPct = a.delta(topVolume(prev.Bids, a.cfg.TopN), out.BidVolume)
		out.AskDeltaPct = a.delta(topVolume(prev.Asks, a.cfg.TopN), out.AskVolume)
	}

	s := 0.0
	switch {
	case out.AskVolume == 0 && out.BidVolume == 0:
	case out.AskVolume == 0, out.Ratio >= strongRatio:
		s += 3
	case out.Ratio >= ratio:
		s += 1.5
	case out.Ratio <= 1/strongRatio:
		s -= 3
	case out.Ratio <= 1/ratio:
		s -= 1.5
	}
	if a.nearWall(out.BidWalls) {
		s++
	}
	if a.nearWall(out.AskWalls) {
		s--
	}
	if out.BidDeltaPct > 0 {
		s++
	}
	if out.AskDeltaPct > 0 {
		s--
	}
	out.Score = s
	out.Signal = classify(s)
	return out
}

func classify(s float64) Signal {
	switch {
	case s >= strongScore:
		return StrongBuy
	case s >= score:
		return Buy
	case s <= -strongScore:
		return StrongSell
	case s <= -score:
		return Sell
	}
	return Neutral
}

func topVolume(levels []common.Level, n int) float64 {
	total := 0.0
	for i, l := range levels {
		if i >= n {
			break
		}
		total += l.Qty
	}
	return total
}

func (a *Analyzer) walls(levels []common.Level, mid float64) []Wall {
	if len(levels) == 0 {
		return nil
	}
	sum := 0.0
	for _, l := range levels {
		sum += l.Qty
	}
	avg := sum / float64(len(levels))
	if avg <= 0 {
		return nil
	}
	var out []Wall
	for _, l := range levels {
		if l.Qty < avg*a.cfg.WallMultiplier {
			continue
		}
		w := Wall{Price: l.Price, Qty: l.Qty, Multiple: l.Qty / avg}
		if mid > 0 {
			w.DistPct = math.Abs(l.Price-mid) / mid * 100
		}
		out = append(out, w)
	}
	return out
}

func (a *Analyzer) nearWall(walls []Wall) bool {
	for _, w := range walls {
		if w.DistPct <= a.cfg.WallProximityPct {
			return true
		}
	}
	return false
}

// clusters folds neighbouring levels whose prices sit within the cluster
// distance into zones. Zones of a single level are dropped; the rest are
// ordered by quantity, largest first.
func (a *Analyzer) clusters(levels []common.Level) []Zone {
	if len(levels) < 2 {
		return nil
	}
	sorted := append([]common.Level(nil), levels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	var zones []Zone
	z := Zone{Low: sorted[0].Price, High: sorted[0].Price, Qty: sorted[0].Qty, Levels: 1}
	for _, l := range sorted[1:] {
		if z.High > 0 && (l.Price-z.High)/z.High*100 <= a.cfg.ClusterDistancePct {
			z.High = l.Price
			z.Qty += l.Qty
			z.Levels++
			continue
		}
		if z.Levels > 1 {
			zones = append(zones, z)
		}
		z = Zone{Low: l.Price, High: l.Price, Qty: l.Qty, Levels: 1}
	}
	if z.Levels > 1 {
		zones = append(zones, z)
	}
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].Qty > zones[j].Qty })
	return zones
}

// delta is the percent volume change, zeroed inside the noise floor.
func (a *Analyzer) delta(prev, cur float64) float64 {
	if prev <= 0 {
		return 0
	}
	d := (cur - prev) / prev * 100
	if math.Abs(d) < a.cfg.NoiseFloorPct {
		return 0
	}
	return d
}
