package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"swap_calc/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent identifies the client to the order service
	DefaultUserAgent = "swap-calc/1.0 (+mini-app)"

	defaultCloseDelayMS      = 5000
	defaultMaxLimitRefetches = 3
	defaultTimeoutSec        = 10
)

// Config holds every setting of the mini-app backend.
// Values from LoadConfig are overridden by SWAP_* environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		BaseURL    string `yaml:"base_url"`
		InitPath   string `yaml:"init_path"`
		CreatePath string `yaml:"create_path"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"api"`

	Exchange struct {
		Rate           decimal.Decimal `yaml:"rate"`
		QuoteCurrency  string          `yaml:"quote_currency"`
		TargetCurrency string          `yaml:"target_currency"`
	} `yaml:"exchange"`

	Session struct {
		CloseDelayMS      int `yaml:"close_delay_ms"`
		MaxLimitRefetches int `yaml:"max_limit_refetches"`
	} `yaml:"session"`

	Host struct {
		WSURL  string `yaml:"ws_url"`
		BotURL string `yaml:"bot_url"`
	} `yaml:"host"`

	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads the YAML file at path, applies .env and environment
// overrides, fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig is LoadConfig without the file read.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// .env is optional; real environment variables still win over it
	_ = godotenv.Load()
	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.API.InitPath == "" {
		c.API.InitPath = "/market/mini_app/calc_order/init"
	}
	if c.API.CreatePath == "" {
		c.API.CreatePath = "/market/mini_app/calc_order/create"
	}
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = defaultTimeoutSec
	}
	if c.Session.CloseDelayMS <= 0 {
		c.Session.CloseDelayMS = defaultCloseDelayMS
	}
	if c.Session.MaxLimitRefetches <= 0 {
		c.Session.MaxLimitRefetches = defaultMaxLimitRefetches
	}
	if c.Exchange.QuoteCurrency == "" {
		c.Exchange.QuoteCurrency = "RUB"
	}
	if c.Exchange.TargetCurrency == "" {
		c.Exchange.TargetCurrency = "LZT"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8088"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return &domain.ConfigError{Field: "api.base_url", Err: fmt.Errorf("invalid URL %q", c.API.BaseURL)}
	}

	if err := c.ExchangeRate().Validate(); err != nil {
		return &domain.ConfigError{Field: "exchange.rate", Err: err}
	}

	if c.Host.WSURL != "" && !strings.HasPrefix(c.Host.WSURL, "ws://") && !strings.HasPrefix(c.Host.WSURL, "wss://") {
		return &domain.ConfigError{Field: "host.ws_url", Err: fmt.Errorf("invalid URL %q", c.Host.WSURL)}
	}

	if c.Storage.Path == "" {
		return &domain.ConfigError{Field: "storage.path", Err: errors.New("path is required")}
	}

	return nil
}

// ExchangeRate returns the fixed session rate.
func (c *Config) ExchangeRate() domain.ExchangeRate {
	return domain.ExchangeRate{
		Rate:   c.Exchange.Rate,
		Quote:  c.Exchange.QuoteCurrency,
		Target: c.Exchange.TargetCurrency,
	}
}

// CloseDelay is the pause between order creation and closing the host window.
func (c *Config) CloseDelay() time.Duration {
	return time.Duration(c.Session.CloseDelayMS) * time.Millisecond
}

// RequestTimeout bounds a single call to the order service.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// overrideWithEnv replaces file values with environment variables when set.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("SWAP_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("SWAP_EXCHANGE_RATE"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return &domain.ConfigError{Field: "SWAP_EXCHANGE_RATE", Err: err}
		}
		cfg.Exchange.Rate = rate
	}
	if v := os.Getenv("SWAP_HOST_WS_URL"); v != "" {
		cfg.Host.WSURL = v
	}
	if v := os.Getenv("SWAP_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SWAP_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SWAP_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SWAP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SWAP_CLOSE_DELAY_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return &domain.ConfigError{Field: "SWAP_CLOSE_DELAY_MS", Err: err}
		}
		cfg.Session.CloseDelayMS = ms
	}
	return nil
}
