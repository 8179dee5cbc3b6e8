package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Volatility classes recognised in symbol_config.
const (
	VolatilityLow    = "LOW"
	VolatilityMedium = "MEDIUM"
	VolatilityHigh   = "HIGH"
)

// TierOrder lists the balance tiers, highest first. Tier walks always go
// in this order.
var TierOrder = []int{100000, 50000, 25000, 10000, 5000}

// Config holds all configuration for the bot.
//
// Unknown keys in the YAML file are a load error, not a silent default:
// the decoder runs with KnownFields enabled.
type Config struct {
	ProfitBooking  ProfitBookingConfig     `yaml:"profit_booking_config"`
	RRRatio        float64                 `yaml:"rr_ratio"`
	SimulateOrders bool                    `yaml:"simulate_orders"`
	Symbols        map[string]SymbolConfig `yaml:"symbol_config"`
	RiskTiers      map[int]RiskTier        `yaml:"risk_tiers"`
	FixedLotSizes  map[int]float64         `yaml:"fixed_lot_sizes"`
	ManualLots     map[int]float64         `yaml:"manual_lot_overrides"`
	DualOrder      DualOrderConfig         `yaml:"dual_order_config"`
	Storage        StorageConfig           `yaml:"storage"`
	Log            LogConfig               `yaml:"log"`
	Telegram       TelegramConfig          `yaml:"telegram"`
}

// ProfitBookingConfig is the chain schedule: one entry per level.
// Enabled is a pointer so an omitted key defaults to on while an
// explicit false still disables.
type ProfitBookingConfig struct {
	Enabled       *bool     `yaml:"enabled"`
	ProfitTargets []float64 `yaml:"profit_targets"`
	Multipliers   []int     `yaml:"multipliers"`
	SLReductions  []float64 `yaml:"sl_reductions"`
	MaxLevel      int       `yaml:"max_level"`
}

// SymbolConfig describes pip geometry and volatility for one instrument.
type SymbolConfig struct {
	PipSize           float64 `yaml:"pip_size"`
	PipValuePerStdLot float64 `yaml:"pip_value_per_std_lot"`
	Volatility        string  `yaml:"volatility"`
}

// RiskTier carries the loss caps for one balance tier.
type RiskTier struct {
	DailyLossLimit float64 `yaml:"daily_loss_limit"`
	MaxTotalLoss   float64 `yaml:"max_total_loss"`
}

// DualOrderConfig controls the 2x-cohort risk validation. Enabled
// follows the same omitted-means-on rule as ProfitBookingConfig.
type DualOrderConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// StorageConfig controls where chain state and the risk ledger persist.
type StorageConfig struct {
	DSN             string `yaml:"dsn"`        // sqlite path, or postgres:// URL
	StatsPath       string `yaml:"stats_path"` // risk ledger JSON file
	TickIntervalSec int    `yaml:"tick_interval_seconds"`
}

// LogConfig controls logging.
type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// TelegramConfig holds the notification sink credentials. Both values
// are usually supplied via TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// Load reads the YAML config at path, applies env overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML config bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration (no symbols configured).
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// TickInterval returns the supervisor cadence.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Storage.TickIntervalSec) * time.Second
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("STATS_PATH"); v != "" {
		cfg.Storage.StatsPath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
}

func setDefaults(cfg *Config) {
	pb := &cfg.ProfitBooking
	if pb.Enabled == nil {
		on := true
		pb.Enabled = &on
	}
	if pb.ProfitTargets == nil {
		pb.ProfitTargets = []float64{10, 20, 40, 80, 160}
	}
	if pb.Multipliers == nil {
		pb.Multipliers = []int{1, 2, 4, 8, 16}
	}
	if pb.SLReductions == nil {
		pb.SLReductions = []float64{0, 10, 25, 40, 50}
	}
	if pb.MaxLevel == 0 {
		pb.MaxLevel = 4
	}
	if cfg.RRRatio == 0 {
		cfg.RRRatio = 1.0
	}
	if cfg.RiskTiers == nil {
		cfg.RiskTiers = map[int]RiskTier{
			5000:   {DailyLossLimit: 250, MaxTotalLoss: 1000},
			10000:  {DailyLossLimit: 500, MaxTotalLoss: 2000},
			25000:  {DailyLossLimit: 1250, MaxTotalLoss: 5000},
			50000:  {DailyLossLimit: 2500, MaxTotalLoss: 10000},
			100000: {DailyLossLimit: 5000, MaxTotalLoss: 20000},
		}
	}
	if cfg.FixedLotSizes == nil {
		cfg.FixedLotSizes = map[int]float64{
			5000:   0.05,
			10000:  0.10,
			25000:  0.25,
			50000:  0.50,
			100000: 1.00,
		}
	}
	if cfg.ManualLots == nil {
		cfg.ManualLots = map[int]float64{}
	}
	if cfg.Symbols == nil {
		cfg.Symbols = map[string]SymbolConfig{}
	}
	if cfg.DualOrder.Enabled == nil {
		on := true
		cfg.DualOrder.Enabled = &on
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "data/pyrabot.db"
	}
	if cfg.Storage.StatsPath == "" {
		cfg.Storage.StatsPath = "data/stats.json"
	}
	if cfg.Storage.TickIntervalSec <= 0 {
		cfg.Storage.TickIntervalSec = 5
	}
}

// Validate enforces schedule shape and symbol geometry. A violation here
// is fatal at load; chains are never created from an invalid schedule.
func (c *Config) Validate() error {
	pb := c.ProfitBooking
	if pb.MaxLevel < 0 {
		return fmt.Errorf("config: max_level must be >= 0, got %d", pb.MaxLevel)
	}
	want := pb.MaxLevel + 1
	if len(pb.ProfitTargets) != want || len(pb.Multipliers) != want || len(pb.SLReductions) != want {
		return fmt.Errorf("config: schedule vectors must all have length %d (targets=%d multipliers=%d reductions=%d)",
			want, len(pb.ProfitTargets), len(pb.Multipliers), len(pb.SLReductions))
	}
	for i, t := range pb.ProfitTargets {
		if t <= 0 {
			return fmt.Errorf("config: profit_targets[%d] must be > 0, got %v", i, t)
		}
	}
	for i, m := range pb.Multipliers {
		if m <= 0 {
			return fmt.Errorf("config: multipliers[%d] must be > 0, got %d", i, m)
		}
	}
	for i, r := range pb.SLReductions {
		if r < 0 || r >= 100 {
			return fmt.Errorf("config: sl_reductions[%d] must be in [0,100), got %v", i, r)
		}
	}
	if c.RRRatio <= 0 {
		return fmt.Errorf("config: rr_ratio must be > 0, got %v", c.RRRatio)
	}
	for sym, sc := range c.Symbols {
		if sc.PipSize <= 0 {
			return fmt.Errorf("config: symbol_config[%s].pip_size must be > 0", sym)
		}
		if sc.PipValuePerStdLot <= 0 {
			return fmt.Errorf("config: symbol_config[%s].pip_value_per_std_lot must be > 0", sym)
		}
		switch sc.Volatility {
		case VolatilityLow, VolatilityMedium, VolatilityHigh:
		default:
			return fmt.Errorf("config: symbol_config[%s].volatility must be LOW, MEDIUM or HIGH, got %q", sym, sc.Volatility)
		}
	}
	for tier := range c.RiskTiers {
		if !validTier(tier) {
			return fmt.Errorf("config: risk_tiers key %d is not a recognised tier", tier)
		}
	}
	for tier := range c.FixedLotSizes {
		if !validTier(tier) {
			return fmt.Errorf("config: fixed_lot_sizes key %d is not a recognised tier", tier)
		}
	}
	return nil
}

func validTier(tier int) bool {
	for _, t := range TierOrder {
		if t == tier {
			return true
		}
	}
	return false
}
