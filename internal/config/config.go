package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TriggerInsideBand  = "inside_band"
	TriggerOutsideBand = "outside_band"
)

type Config struct {
	Log       LoggingConfig   `yaml:"log"`
	WS        WSConfig        `yaml:"ws"`
	Venue     VenueConfig     `yaml:"venue"`
	Hedge     HedgeConfig     `yaml:"hedge"`
	State     StateConfig     `yaml:"state"`
	Persist   PersistConfig   `yaml:"persist"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Operator  OperatorConfig  `yaml:"operator"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type WSConfig struct {
	URL              string        `yaml:"url"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	ReadLimit        int64         `yaml:"read_limit"`
	BootstrapTimeout time.Duration `yaml:"bootstrap_timeout"`
	QuietPeriod      time.Duration `yaml:"quiet_period"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	Backoff          BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds the reconnect wait tiers keyed by the error count
// since the last quiet period.
type BackoffConfig struct {
	LowMaxErrors int           `yaml:"low_max_errors"`
	Low          time.Duration `yaml:"low"`
	MidMaxErrors int           `yaml:"mid_max_errors"`
	Mid          time.Duration `yaml:"mid"`
	High         time.Duration `yaml:"high"`
}

type VenueConfig struct {
	Currency           string        `yaml:"currency"`
	Perpetual          string        `yaml:"perpetual"`
	SubscribeBatchSize int           `yaml:"subscribe_batch_size"`
	PerpBookDepth      int           `yaml:"perp_book_depth"`
	PerpBookInterval   time.Duration `yaml:"perp_book_interval"`
}

type HedgeConfig struct {
	Tolerance     float64 `yaml:"tolerance"`
	ExpiryHourUTC *int    `yaml:"expiry_hour_utc"`
	Label         string  `yaml:"label"`
	Trigger       string  `yaml:"trigger"`
}

func (h HedgeConfig) ExpiryHour() int {
	if h.ExpiryHourUTC == nil {
		return 8
	}
	return *h.ExpiryHourUTC
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type PersistConfig struct {
	Interval  time.Duration   `yaml:"interval"`
	Timescale TimescaleConfig `yaml:"timescale"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type ReconnectConfig struct {
	// DailyAt is an HH:MM UTC wall-clock time; empty disables the daily reconnect.
	DailyAt string `yaml:"daily_at"`
}

// DailyTime parses DailyAt. ok is false when the daily reconnect is disabled.
func (r ReconnectConfig) DailyTime() (hour, minute int, ok bool, err error) {
	raw := strings.TrimSpace(r.DailyAt)
	if raw == "" {
		return 0, 0, false, nil
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, 0, false, fmt.Errorf("reconnect.daily_at: %w", err)
	}
	return t.Hour(), t.Minute(), true, nil
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type OperatorConfig struct {
	Console bool `yaml:"console"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return &cfg
}

func applyEnvOverrides(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv("TIMESCALE_DSN")); dsn != "" && cfg.Persist.Timescale.DSN == "" {
		cfg.Persist.Timescale.DSN = dsn
	}
	if token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); token != "" && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = token
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://www.deribit.com/ws/api/v2"
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 5 * time.Second
	}
	if cfg.WS.PingTimeout == 0 {
		cfg.WS.PingTimeout = 2 * time.Second
	}
	if cfg.WS.ReadLimit == 0 {
		cfg.WS.ReadLimit = 16 << 20
	}
	if cfg.WS.BootstrapTimeout == 0 {
		cfg.WS.BootstrapTimeout = 30 * time.Second
	}
	if cfg.WS.QuietPeriod == 0 {
		cfg.WS.QuietPeriod = 60 * time.Second
	}
	if cfg.WS.SettleDelay == 0 {
		cfg.WS.SettleDelay = 2 * time.Second
	}
	if cfg.WS.Backoff.LowMaxErrors == 0 {
		cfg.WS.Backoff.LowMaxErrors = 3
	}
	if cfg.WS.Backoff.Low == 0 {
		cfg.WS.Backoff.Low = time.Second
	}
	if cfg.WS.Backoff.MidMaxErrors == 0 {
		cfg.WS.Backoff.MidMaxErrors = 9
	}
	if cfg.WS.Backoff.Mid == 0 {
		cfg.WS.Backoff.Mid = 5 * time.Second
	}
	if cfg.WS.Backoff.High == 0 {
		cfg.WS.Backoff.High = 15 * time.Second
	}
	if cfg.Venue.Currency == "" {
		cfg.Venue.Currency = "BTC"
	}
	if cfg.Venue.Perpetual == "" {
		cfg.Venue.Perpetual = strings.ToUpper(cfg.Venue.Currency) + "-PERPETUAL"
	}
	if cfg.Venue.SubscribeBatchSize == 0 {
		cfg.Venue.SubscribeBatchSize = 250
	}
	if cfg.Venue.PerpBookDepth == 0 {
		cfg.Venue.PerpBookDepth = 1
	}
	if cfg.Venue.PerpBookInterval == 0 {
		cfg.Venue.PerpBookInterval = 100 * time.Millisecond
	}
	if cfg.Hedge.Tolerance == 0 {
		cfg.Hedge.Tolerance = 0.025
	}
	if cfg.Hedge.Label == "" {
		cfg.Hedge.Label = "delta_hedge"
	}
	if cfg.Hedge.Trigger == "" {
		cfg.Hedge.Trigger = TriggerInsideBand
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/deribit-hedge-bot.db"
	}
	if cfg.Persist.Interval == 0 {
		cfg.Persist.Interval = 10 * time.Second
	}
	if cfg.Persist.Timescale.Schema == "" {
		cfg.Persist.Timescale.Schema = "public"
	}
	if cfg.Persist.Timescale.QueueSize == 0 {
		cfg.Persist.Timescale.QueueSize = 1024
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9102"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Hedge.Tolerance <= 0 || cfg.Hedge.Tolerance >= 1 {
		return errors.New("hedge.tolerance must be in (0, 1)")
	}
	if hour := cfg.Hedge.ExpiryHour(); hour < 0 || hour > 23 {
		return errors.New("hedge.expiry_hour_utc must be in [0, 23]")
	}
	switch cfg.Hedge.Trigger {
	case TriggerInsideBand, TriggerOutsideBand:
	default:
		return fmt.Errorf("hedge.trigger must be %s or %s", TriggerInsideBand, TriggerOutsideBand)
	}
	if cfg.Venue.SubscribeBatchSize <= 0 {
		return errors.New("venue.subscribe_batch_size must be > 0")
	}
	if cfg.Venue.PerpBookDepth <= 0 {
		return errors.New("venue.perp_book_depth must be > 0")
	}
	b := cfg.WS.Backoff
	if b.LowMaxErrors < 0 || b.MidMaxErrors < b.LowMaxErrors {
		return errors.New("ws.backoff error thresholds must be ordered")
	}
	if b.Low < 0 || b.Mid < b.Low || b.High < b.Mid {
		return errors.New("ws.backoff delays must be non-decreasing")
	}
	if cfg.WS.BootstrapTimeout < 0 {
		return errors.New("ws.bootstrap_timeout must be >= 0")
	}
	if cfg.Persist.Interval < 0 {
		return errors.New("persist.interval must be >= 0")
	}
	if cfg.Persist.Timescale.Enabled && strings.TrimSpace(cfg.Persist.Timescale.DSN) == "" {
		return errors.New("persist.timescale.dsn is required when timescale is enabled")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if _, _, _, err := cfg.Reconnect.DailyTime(); err != nil {
		return err
	}
	return nil
}
