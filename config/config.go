package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete papertrader configuration
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Quotes  QuotesConfig  `json:"quotes" yaml:"quotes"`
	Returns ReturnsConfig `json:"returns" yaml:"returns"`
	Events  EventsConfig  `json:"events" yaml:"events"`
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// AccountConfig sets what a newly registered account starts with. Money
// fields decode straight into decimals, so 0.1 stays exactly 0.1.
type AccountConfig struct {
	StartingCash decimal.Decimal `json:"starting_cash" yaml:"starting_cash"`
	Currency     string          `json:"currency" yaml:"currency"`
}

// StoreConfig selects the ledger backend
type StoreConfig struct {
	Type string `json:"type" yaml:"type"` // "memory", "sqlite" or "postgres"
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	DSN  string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// QuotesConfig selects the quote provider
type QuotesConfig struct {
	Provider string                     `json:"provider" yaml:"provider"` // "static" or "iex"
	BaseURL  string                     `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Token    string                     `json:"token,omitempty" yaml:"token,omitempty"`
	Sandbox  bool                       `json:"sandbox,omitempty" yaml:"sandbox,omitempty"`
	Timeout  string                     `json:"timeout" yaml:"timeout"` // e.g. "5s"
	Static   map[string]decimal.Decimal `json:"static,omitempty" yaml:"static,omitempty"`
}

// ReturnsConfig sets the amount percent return is measured from. Zero means
// the starting cash.
type ReturnsConfig struct {
	Baseline decimal.Decimal `json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

// EventsConfig enables Kafka trade events when brokers are set
type EventsConfig struct {
	Brokers []string `json:"brokers,omitempty" yaml:"brokers,omitempty"`
	Topic   string   `json:"topic,omitempty" yaml:"topic,omitempty"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	Addr           string `json:"addr" yaml:"addr"`
	RequestTimeout string `json:"request_timeout" yaml:"request_timeout"`
}

// LogConfig configures slog output
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// LoadFromFile loads configuration from a file (YAML or JSON). Fields the
// file leaves out keep their Default values.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	return cfg, nil
}

// Load reads .env (if present), then path (if non-empty, else defaults),
// then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	var cfg *Config
	if path != "" {
		var err error
		cfg, err = readFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = Default()
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and endpoints from the environment. API_KEY
// switches quotes to the iex provider and DATABASE_URL switches the store to
// postgres.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("API_KEY"); v != "" {
		c.Quotes.Token = v
		c.Quotes.Provider = "iex"
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Store.Type = "postgres"
		c.Store.DSN = v
	}
	if v := getenv("PAPERTRADER_KAFKA_BROKERS"); v != "" {
		c.Events.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Events.Brokers = append(c.Events.Brokers, b)
			}
		}
	}
	if v := getenv("PAPERTRADER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency != "USD" {
		return fmt.Errorf("account.currency must be USD")
	}
	if c.Account.StartingCash.IsNegative() {
		return fmt.Errorf("account.starting_cash must not be negative")
	}
	if c.Returns.Baseline.IsNegative() {
		return fmt.Errorf("returns.baseline must not be negative")
	}

	switch c.Store.Type {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for sqlite store")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn required for postgres store")
		}
	default:
		return fmt.Errorf("store.type must be 'memory', 'sqlite' or 'postgres'")
	}

	switch c.Quotes.Provider {
	case "static":
		for sym, p := range c.Quotes.Static {
			if !p.IsPositive() {
				return fmt.Errorf("quotes.static[%s] must be positive", sym)
			}
		}
	case "iex":
		if c.Quotes.Token == "" {
			return fmt.Errorf("quotes.token required for iex provider (or set API_KEY)")
		}
	default:
		return fmt.Errorf("quotes.provider must be 'static' or 'iex'")
	}
	if _, err := c.Quotes.ParseTimeout(); err != nil {
		return fmt.Errorf("quotes.timeout: %w", err)
	}

	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return fmt.Errorf("events.topic required when brokers are set")
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if _, err := c.HTTP.ParseRequestTimeout(); err != nil {
		return fmt.Errorf("http.request_timeout: %w", err)
	}

	if _, err := c.Log.ParseLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	return nil
}

// StartingCash is the cash a new account opens with
func (c *Config) StartingCash() decimal.Decimal {
	return c.Account.StartingCash
}

// Baseline is the percent-return baseline, defaulting to the starting cash
func (c *Config) Baseline() decimal.Decimal {
	if c.Returns.Baseline.IsPositive() {
		return c.Returns.Baseline
	}
	return c.StartingCash()
}

// ParseTimeout converts the timeout string to time.Duration
func (q QuotesConfig) ParseTimeout() (time.Duration, error) {
	return parseDuration(q.Timeout)
}

// StaticPrices returns the configured static prices with upper-cased
// symbols, sorted by symbol.
func (q QuotesConfig) StaticPrices() []StaticPrice {
	out := make([]StaticPrice, 0, len(q.Static))
	for sym, p := range q.Static {
		out = append(out, StaticPrice{Symbol: strings.ToUpper(sym), Price: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

type StaticPrice struct {
	Symbol string
	Price  decimal.Decimal
}

// ParseRequestTimeout converts the request timeout string to time.Duration
func (h HTTPConfig) ParseRequestTimeout() (time.Duration, error) {
	return parseDuration(h.RequestTimeout)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %s is negative", s)
	}
	return d, nil
}

// ParseLevel maps the level name to slog.Level
func (l LogConfig) ParseLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds a slog.Logger writing to w
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.ParseLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			StartingCash: decimal.NewFromInt(10000),
			Currency:     "USD",
		},
		Store: StoreConfig{
			Type: "sqlite",
			Path: "./papertrader.sqlite",
		},
		Quotes: QuotesConfig{
			Provider: "static",
			Timeout:  "5s",
			Static: map[string]decimal.Decimal{
				"AAPL": decimal.RequireFromString("189.37"),
				"MSFT": decimal.RequireFromString("402.56"),
				"NFLX": decimal.RequireFromString("486.88"),
			},
		},
		Events: EventsConfig{
			Topic: "trade_executed",
		},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			RequestTimeout: "10s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
