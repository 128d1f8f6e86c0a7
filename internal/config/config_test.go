package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.WS.URL != "wss://www.deribit.com/ws/api/v2" {
		t.Fatalf("unexpected ws url %q", cfg.WS.URL)
	}
	if cfg.Venue.Perpetual != "BTC-PERPETUAL" {
		t.Fatalf("expected BTC-PERPETUAL, got %q", cfg.Venue.Perpetual)
	}
	if cfg.Hedge.Tolerance != 0.025 {
		t.Fatalf("expected tolerance 0.025, got %v", cfg.Hedge.Tolerance)
	}
	if cfg.Hedge.ExpiryHour() != 8 {
		t.Fatalf("expected expiry hour 8, got %d", cfg.Hedge.ExpiryHour())
	}
	if cfg.Hedge.Trigger != TriggerInsideBand {
		t.Fatalf("expected inside_band trigger, got %q", cfg.Hedge.Trigger)
	}
	if cfg.WS.Backoff.Low != time.Second || cfg.WS.Backoff.Mid != 5*time.Second || cfg.WS.Backoff.High != 15*time.Second {
		t.Fatalf("unexpected backoff tiers: %#v", cfg.WS.Backoff)
	}
	if cfg.WS.QuietPeriod != time.Minute {
		t.Fatalf("expected quiet period 1m, got %v", cfg.WS.QuietPeriod)
	}
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics disabled by default")
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestPerpetualDerivedFromCurrency(t *testing.T) {
	cfg := &Config{Venue: VenueConfig{Currency: "eth"}}
	applyDefaults(cfg)
	if cfg.Venue.Perpetual != "ETH-PERPETUAL" {
		t.Fatalf("expected ETH-PERPETUAL, got %q", cfg.Venue.Perpetual)
	}
}

func TestExpiryHourZeroIsExplicit(t *testing.T) {
	zero := 0
	cfg := &Config{Hedge: HedgeConfig{ExpiryHourUTC: &zero}}
	applyDefaults(cfg)
	if cfg.Hedge.ExpiryHour() != 0 {
		t.Fatalf("expected explicit expiry hour 0, got %d", cfg.Hedge.ExpiryHour())
	}
}

func TestValidateRejectsTolerance(t *testing.T) {
	cfg := &Config{Hedge: HedgeConfig{Tolerance: 1.5}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for tolerance >= 1")
	}
}

func TestValidateRejectsUnknownTrigger(t *testing.T) {
	cfg := &Config{Hedge: HedgeConfig{Trigger: "sometimes"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for unknown trigger")
	}
}

func TestValidateRejectsDecreasingBackoff(t *testing.T) {
	cfg := &Config{WS: WSConfig{Backoff: BackoffConfig{Low: 10 * time.Second, Mid: 5 * time.Second}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for decreasing backoff tiers")
	}
}

func TestValidateRejectsNonPositiveVenueSizes(t *testing.T) {
	cases := []struct {
		name string
		edit func(*VenueConfig)
	}{
		{"negative batch", func(v *VenueConfig) { v.SubscribeBatchSize = -1 }},
		{"zero batch", func(v *VenueConfig) { v.SubscribeBatchSize = 0 }},
		{"negative depth", func(v *VenueConfig) { v.PerpBookDepth = -5 }},
		{"zero depth", func(v *VenueConfig) { v.PerpBookDepth = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			tc.edit(&cfg.Venue)
			err := validate(cfg)
			if err == nil || !strings.Contains(err.Error(), "must be > 0") {
				t.Fatalf("expected must be > 0 error, got %v", err)
			}
		})
	}
}

func TestValidateRequiresTimescaleDSN(t *testing.T) {
	cfg := &Config{Persist: PersistConfig{Timescale: TimescaleConfig{Enabled: true}}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing timescale dsn")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Path: "metrics"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without slash")
	}
}

func TestDailyTime(t *testing.T) {
	hour, minute, ok, err := ReconnectConfig{DailyAt: "08:00"}.DailyTime()
	if err != nil || !ok || hour != 8 || minute != 0 {
		t.Fatalf("unexpected daily time: %d:%d ok=%v err=%v", hour, minute, ok, err)
	}
	if _, _, ok, err := (ReconnectConfig{}).DailyTime(); ok || err != nil {
		t.Fatalf("expected disabled daily time, ok=%v err=%v", ok, err)
	}
	if _, _, _, err := (ReconnectConfig{DailyAt: "25:99"}).DailyTime(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("TIMESCALE_DSN", "postgres://env")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"log:\n  level: debug\n" +
		"venue:\n  currency: BTC\n  subscribe_batch_size: 100\n" +
		"hedge:\n  tolerance: 0.05\n  expiry_hour_utc: 8\n" +
		"persist:\n  interval: 5s\n  timescale:\n    enabled: true\n" +
		"reconnect:\n  daily_at: \"08:00\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
	if cfg.Venue.SubscribeBatchSize != 100 {
		t.Fatalf("expected batch size 100, got %d", cfg.Venue.SubscribeBatchSize)
	}
	if cfg.Hedge.Tolerance != 0.05 {
		t.Fatalf("expected tolerance 0.05, got %v", cfg.Hedge.Tolerance)
	}
	if cfg.Persist.Interval != 5*time.Second {
		t.Fatalf("expected persist interval 5s, got %v", cfg.Persist.Interval)
	}
	if cfg.Persist.Timescale.DSN != "postgres://env" {
		t.Fatalf("expected dsn from env, got %q", cfg.Persist.Timescale.DSN)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Venue.Perpetual != "BTC-PERPETUAL" || cfg.WS.BootstrapTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg.Venue)
	}
}
