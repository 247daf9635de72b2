// Package config loads the mirror bot configuration from a YAML file with
// environment variable overrides. The signing key is never read from the
// file; it comes from POLYMARKET_PRIVATE_KEY only.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// MirrorConfig shapes the orders placed when copying a trade.
type MirrorConfig struct {
	SizeMultiplier float64 `yaml:"size_multiplier"` // scale applied to the target's size
	MinOrderUSDC   float64 `yaml:"min_order_usdc"`  // exchange rejects marketable buys under $1
	MaxOrderUSDC   float64 `yaml:"max_order_usdc"`  // 0 disables the cap
	DryRun         bool    `yaml:"dry_run"`
}

// Config is the full runtime configuration.
type Config struct {
	TargetAddress string `yaml:"target_address"`

	WSURL       string `yaml:"ws_url"`
	WSBackupURL string `yaml:"ws_backup_url"`

	PollIntervalMs      int `yaml:"poll_interval_ms"`
	ActivityLimit       int `yaml:"activity_limit"`
	WatermarkToleranceS int `yaml:"watermark_tolerance_s"`
	DedupCapacity       int `yaml:"dedup_capacity"`

	Mirror MirrorConfig `yaml:"mirror"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	MetricsAddr string `yaml:"metrics_addr"` // empty disables the debug listener
	ReportCSV   string `yaml:"report_csv"`   // empty disables the trade journal
}

// Load reads path (optional) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	fillDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		PollIntervalMs:      1000,
		ActivityLimit:       100,
		WatermarkToleranceS: 5,
		DedupCapacity:       10000,
		Mirror: MirrorConfig{
			SizeMultiplier: 1.0,
			MinOrderUSDC:   1.0,
		},
		LogLevel: "info",
	}
}

func applyEnv(cfg *Config) {
	if v := getEnv("TARGET_ADDRESS"); v != "" {
		cfg.TargetAddress = v
	}
	if v := getEnv("POLYGON_WS_URL"); v != "" {
		cfg.WSURL = v
	}
	if v := getEnv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getEnv("LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := getEnv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := getEnv("POLL_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollIntervalMs = n
		}
	}
	if v := getEnv("MIRROR_SIZE_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Mirror.SizeMultiplier = f
		}
	}
	if v := getEnv("MIRROR_DRY_RUN"); v != "" {
		cfg.Mirror.DryRun = v == "true" || v == "1"
	}
}

func fillDefaults(cfg *Config) {
	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = 1000
	}
	if cfg.ActivityLimit <= 0 {
		cfg.ActivityLimit = 100
	}
	if cfg.WatermarkToleranceS <= 0 {
		cfg.WatermarkToleranceS = 5
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = 10000
	}
	if cfg.Mirror.SizeMultiplier <= 0 {
		cfg.Mirror.SizeMultiplier = 1.0
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// Validate rejects configurations the bot cannot start with.
func (c *Config) Validate() error {
	if c.TargetAddress == "" {
		return fmt.Errorf("target_address is required")
	}
	if !addressPattern.MatchString(strings.TrimSpace(c.TargetAddress)) {
		return fmt.Errorf("target_address %q is not a valid 0x address", c.TargetAddress)
	}
	if c.Mirror.MaxOrderUSDC > 0 && c.Mirror.MaxOrderUSDC < c.Mirror.MinOrderUSDC {
		return fmt.Errorf("mirror.max_order_usdc %.2f is below mirror.min_order_usdc %.2f",
			c.Mirror.MaxOrderUSDC, c.Mirror.MinOrderUSDC)
	}
	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
