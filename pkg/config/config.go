package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"consensus-trader/pkg/exchanges/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds environment and file driven settings for the bot.
// It is built once at startup and passed by value afterwards.
type Config struct {
	HTTPAddr string

	// Binance
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string

	// Execution
	DryRun            bool
	UseMockFeed       bool // synthetic market streams instead of Binance websockets
	ClientIDPrefix    string
	TickInterval      time.Duration
	SchedulerMode     string // "sequential" or "parallel"
	ReconcileInterval time.Duration

	// Logging
	LogLevel string
	LogFile  string

	ConfigFile string
	Trading    Trading
}

// Trading is the YAML part of the configuration.
type Trading struct {
	Pairs          []Pair         `yaml:"pairs"`
	Timeframes     []Timeframe    `yaml:"timeframes"`
	CandleWindow   int            `yaml:"candle_window"`
	Consensus      Consensus      `yaml:"consensus"`
	RateLimits     []RateWindow   `yaml:"rate_limits"`
	MaxInFlight    int            `yaml:"max_in_flight"`
	Microstructure Microstructure `yaml:"microstructure"`
}

// Pair is the operator-supplied configuration for one traded symbol.
// Percentages are in percent units; stop values are negative.
type Pair struct {
	Symbol                string        `yaml:"symbol"`
	Tradeable             bool          `yaml:"tradeable"`
	OrderSize             float64       `yaml:"order_size"` // quote asset
	EntryDistancePct      float64       `yaml:"entry_distance_pct"`
	PriceDriftPct         float64       `yaml:"price_drift_pct"`
	ProfitMarginPct       float64       `yaml:"profit_margin_pct"`
	StopLossBasePct       float64       `yaml:"stop_loss_base_pct"`
	MaxStopLossPct        float64       `yaml:"max_stop_loss_pct"`
	TrailingActivationPct float64       `yaml:"trailing_activation_pct"`
	TrailDistancePct      float64       `yaml:"trail_distance_pct"`
	Cooldown              time.Duration `yaml:"cooldown"`
	ReentryDelay          time.Duration `yaml:"reentry_delay"`
}

// Timeframe pairs a candle interval with its consensus weight.
type Timeframe struct {
	Interval string  `yaml:"interval"`
	Weight   float64 `yaml:"weight"`
}

// Consensus tunes cross-timeframe aggregation.
type Consensus struct {
	MinAgreement  int     `yaml:"min_agreement"`
	StrongScore   float64 `yaml:"strong_score"`
	Score         float64 `yaml:"score"`
	WeakScore     float64 `yaml:"weak_score"`
	MinDifference float64 `yaml:"min_difference"`
}

// RateWindow is one rolling request budget of the venue.
type RateWindow struct {
	Name     string        `yaml:"name"`
	Limit    int           `yaml:"limit"`
	Interval time.Duration `yaml:"interval"`
	Class    string        `yaml:"class"` // empty applies to every request
}

// Microstructure tunes the order book analyzer.
type Microstructure struct {
	TopN               int     `yaml:"top_n"`
	WallMultiplier     float64 `yaml:"wall_multiplier"`
	ClusterDistancePct float64 `yaml:"cluster_distance_pct"`
	NoiseFloorPct      float64 `yaml:"noise_floor_pct"`
}

// DefaultPair returns the per-pair defaults applied before YAML values.
func DefaultPair() Pair {
	return Pair{
		Tradeable:             true,
		OrderSize:             20,
		EntryDistancePct:      0.1,
		PriceDriftPct:         0.5,
		ProfitMarginPct:       1.5,
		StopLossBasePct:       -1.5,
		MaxStopLossPct:        -5,
		TrailingActivationPct: 1.0,
		TrailDistancePct:      0.5,
		Cooldown:              5 * time.Minute,
		ReentryDelay:          2 * time.Minute,
	}
}

// UnmarshalYAML fills omitted fields from DefaultPair.
func (p *Pair) UnmarshalYAML(n *yaml.Node) error {
	type raw Pair
	r := raw(DefaultPair())
	if err := n.Decode(&r); err != nil {
		return err
	}
	*p = Pair(r)
	return nil
}

// DefaultTrading returns the configuration used when no file overrides it.
func DefaultTrading() Trading {
	return Trading{
		Timeframes: []Timeframe{
			{Interval: "15m", Weight: 0.5},
			{Interval: "1h", Weight: 1},
			{Interval: "4h", Weight: 1.5},
		},
		CandleWindow: 200,
		Consensus: Consensus{
			MinAgreement:  2,
			StrongScore:   10,
			Score:         6,
			WeakScore:     3,
			MinDifference: 2,
		},
		RateLimits: []RateWindow{
			{Name: "weight_1m", Limit: 6000, Interval: time.Minute},
			{Name: "weight_1s", Limit: 100, Interval: time.Second},
			{Name: "orders_10s", Limit: 50, Interval: 10 * time.Second, Class: "order"},
		},
		MaxInFlight: 8,
		Microstructure: Microstructure{
			TopN:               5,
			WallMultiplier:     3,
			ClusterDistancePct: 0.1,
			NoiseFloorPct:      5,
		},
	}
}

// Load reads environment variables (optionally via .env) and the YAML trading file into Config.
func Load() (Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		BinanceTestnet:    getEnvBool("BINANCE_TESTNET", false),
		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		DryRun:            getEnvBool("DRY_RUN", false),
		UseMockFeed:       getEnvBool("USE_MOCK_FEED", false),
		ClientIDPrefix:    getEnv("CLIENT_ID_PREFIX", "cb_"),
		TickInterval:      getEnvDuration("TICK_INTERVAL", 30*time.Second),
		SchedulerMode:     strings.ToLower(getEnv("SCHEDULER_MODE", "sequential")),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", 10*time.Minute),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFile:           os.Getenv("LOG_FILE"),
		ConfigFile:        getEnv("CONFIG_FILE", "config.yaml"),
	}

	trading, err := LoadTrading(cfg.ConfigFile)
	if err != nil {
		return Config{}, err
	}
	if len(trading.Pairs) == 0 {
		for _, sym := range splitAndTrim(os.Getenv("BINANCE_SYMBOLS")) {
			p := DefaultPair()
			p.Symbol = strings.ToUpper(sym)
			trading.Pairs = append(trading.Pairs, p)
		}
	}
	cfg.Trading = trading

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadTrading decodes the YAML trading file over DefaultTrading.
// A missing file yields the defaults.
func LoadTrading(path string) (Trading, error) {
	t := DefaultTrading()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return Trading{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Trading{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

// Validate rejects configurations the bot cannot run with.
func (c Config) Validate() error {
	if len(c.Trading.Pairs) == 0 {
		return errors.New("config: no trading pairs configured")
	}
	if len(c.Trading.Timeframes) == 0 {
		return errors.New("config: no timeframes configured")
	}
	if c.TickInterval <= 0 {
		return errors.New("config: tick interval must be positive")
	}
	switch c.SchedulerMode {
	case "sequential", "parallel":
	default:
		return fmt.Errorf("config: unknown scheduler mode %q", c.SchedulerMode)
	}
	for _, tf := range c.Trading.Timeframes {
		if _, err := common.ParseInterval(tf.Interval); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	// more agreeing timeframes than configured would never yield a signal
	if n := c.Trading.Consensus.MinAgreement; n < 1 || n > len(c.Trading.Timeframes) {
		return fmt.Errorf("config: consensus.min_agreement %d must be between 1 and %d timeframes", n, len(c.Trading.Timeframes))
	}
	for _, w := range c.Trading.RateLimits {
		if w.Limit <= 0 || w.Interval <= 0 {
			return fmt.Errorf("config: rate window %q needs positive limit and interval", w.Name)
		}
	}
	seen := make(map[string]bool, len(c.Trading.Pairs))
	for _, p := range c.Trading.Pairs {
		if p.Symbol == "" {
			return errors.New("config: pair without symbol")
		}
		if seen[p.Symbol] {
			return fmt.Errorf("config: duplicate pair %s", p.Symbol)
		}
		seen[p.Symbol] = true
		if p.OrderSize <= 0 {
			return fmt.Errorf("config: %s order_size must be positive", p.Symbol)
		}
		if p.MaxStopLossPct > -0.3 {
			return fmt.Errorf("config: %s max_stop_loss_pct must be at most -0.3", p.Symbol)
		}
		if p.StopLossBasePct >= 0 {
			return fmt.Errorf("config: %s stop_loss_base_pct must be negative", p.Symbol)
		}
	}
	return nil
}

// Symbols lists the configured pair symbols in file order.
func (c Config) Symbols() []string {
	out := make([]string, 0, len(c.Trading.Pairs))
	for _, p := range c.Trading.Pairs {
		out = append(out, p.Symbol)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
