package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of the simulator. The engine accepts all
// market constants as parameters; nothing is hardcoded in the core.
type Config struct {
	Server struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"dsn"` // empty runs memory-only
	} `yaml:"database"`

	Market struct {
		DealerFeeBPS   int     `yaml:"dealer_fee_bps"`
		ExchangeFeeBPS int     `yaml:"exchange_fee_bps"`
		DealerAlpha    float64 `yaml:"dealer_alpha"`
		InitialPrice   float64 `yaml:"initial_price"`
		StartingCash   float64 `yaml:"starting_cash"`
		PriceFloor     float64 `yaml:"price_floor"`
		HistoryCap     int     `yaml:"history_cap"`
		Epsilon        float64 `yaml:"epsilon"`
		AdminUser      string  `yaml:"admin_user"`
		HistoryStart   string  `yaml:"history_start"` // YYYY-MM-DD
		HistorySeed    int64   `yaml:"history_seed"`
	} `yaml:"market"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// Default returns the configuration with every market constant at the
// simulator's stock values.
func Default() Config {
	var cfg Config
	cfg.Server.Addr = ":8080"
	cfg.Server.JWTSecret = "dev-secret"
	cfg.Market.DealerFeeBPS = 200
	cfg.Market.ExchangeFeeBPS = 50
	cfg.Market.DealerAlpha = 0.05
	cfg.Market.InitialPrice = 100.0
	cfg.Market.StartingCash = 1000.0
	cfg.Market.PriceFloor = 0.0001
	cfg.Market.HistoryCap = 10000
	cfg.Market.Epsilon = 1e-9
	cfg.Market.AdminUser = "Host"
	cfg.Market.HistoryStart = "2025-07-01"
	cfg.Market.HistorySeed = 12345
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return cfg
}

// Load reads a YAML config file over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// overrideWithEnv lets secrets come from the environment instead of the
// config file.
func overrideWithEnv(cfg *Config) {
	if s := os.Getenv("MARKETSIM_JWT_SECRET"); s != "" {
		cfg.Server.JWTSecret = s
	}
	if dsn := os.Getenv("MARKETSIM_DB_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Market.DealerFeeBPS < 0 || c.Market.ExchangeFeeBPS < 0 {
		return fmt.Errorf("fee bps must be non-negative")
	}
	if c.Market.InitialPrice <= 0 {
		return fmt.Errorf("initial price must be positive")
	}
	if c.Market.StartingCash < 0 {
		return fmt.Errorf("starting cash must be non-negative")
	}
	if c.Market.PriceFloor <= 0 {
		return fmt.Errorf("price floor must be positive")
	}
	if c.Market.HistoryCap <= 0 {
		return fmt.Errorf("history cap must be positive")
	}
	if c.Market.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive")
	}
	if c.Market.AdminUser == "" {
		return fmt.Errorf("admin user is required")
	}
	if _, err := c.HistoryStart(); err != nil {
		return err
	}
	return nil
}

// HistoryStart parses the configured price-history start date.
func (c *Config) HistoryStart() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Market.HistoryStart)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid history_start %q: %w", c.Market.HistoryStart, err)
	}
	return t, nil
}
