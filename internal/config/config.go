// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	DB         DBConfig          `mapstructure:"db"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Browser    BrowserConfig     `mapstructure:"browser"`
	Compliance ComplianceConfig  `mapstructure:"compliance"`
	AI         AIConfig          `mapstructure:"ai"`
	Discovery  DiscoveryConfig   `mapstructure:"discovery"`
	QA         QAConfig          `mapstructure:"qa"`
	Registry   RegistryConfig    `mapstructure:"registry"`
	Portals    map[string]string `mapstructure:"portals"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// BrowserConfig configures the headless browsing subsystem.
type BrowserConfig struct {
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSec     int    `mapstructure:"nav_timeout_seconds"`
	ScrollCeilingSec  int    `mapstructure:"scroll_ceiling_seconds"`
	ChallengeWaitSec  int    `mapstructure:"challenge_wait_seconds"`
	ChallengePollSec  int    `mapstructure:"challenge_poll_seconds"`
	ReferrerOverride  string `mapstructure:"referrer_override"`
	Headless          bool   `mapstructure:"headless"`
	ScreenshotOnError bool   `mapstructure:"screenshot_on_error"`
}

// ComplianceConfig governs per-host crawl etiquette.
type ComplianceConfig struct {
	UserAgent     string  `mapstructure:"user_agent"`
	MinDelaySec   float64 `mapstructure:"min_delay_seconds"`
	MaxDelaySec   float64 `mapstructure:"max_delay_seconds"`
	RespectRobots bool    `mapstructure:"respect_robots"`
}

// AIConfig holds credentials for the generative extraction service.
type AIConfig struct {
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

// DiscoveryConfig tunes URL discovery and verification.
type DiscoveryConfig struct {
	ProbeTimeoutSec   int                 `mapstructure:"probe_timeout_seconds"`
	SearchMaxResults  int                 `mapstructure:"search_max_results"`
	Patterns          map[string][]string `mapstructure:"patterns"`
	UnwantedCityTerms []string            `mapstructure:"unwanted_city_terms"`
}

// QAConfig tunes the content QA pipeline.
type QAConfig struct {
	FreshnessBufferDays int `mapstructure:"freshness_buffer_days"`
}

// RegistryConfig points at the authoritative dotgov dataset.
type RegistryConfig struct {
	DatasetURL        string `mapstructure:"dataset_url"`
	DownloadTimeoutSec int   `mapstructure:"download_timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RFP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.scroll_ceiling_seconds", 12)
	v.SetDefault("browser.challenge_wait_seconds", 120)
	v.SetDefault("browser.challenge_poll_seconds", 2)
	v.SetDefault("browser.headless", true)
	v.SetDefault("compliance.user_agent", "rfp-scraper-bot/1.0")
	v.SetDefault("compliance.min_delay_seconds", 2.0)
	v.SetDefault("compliance.max_delay_seconds", 5.0)
	v.SetDefault("compliance.respect_robots", true)
	v.SetDefault("ai.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("discovery.probe_timeout_seconds", 4)
	v.SetDefault("discovery.search_max_results", 8)
	v.SetDefault("qa.freshness_buffer_days", 2)
	v.SetDefault("registry.dataset_url",
		"https://raw.githubusercontent.com/cisagov/dotgov-data/main/current-full.csv")
	v.SetDefault("registry.download_timeout_seconds", 10)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Compliance.MinDelaySec < 0 || c.Compliance.MaxDelaySec < c.Compliance.MinDelaySec {
		return fmt.Errorf("compliance delay window is invalid")
	}
	if c.QA.FreshnessBufferDays < 0 {
		return fmt.Errorf("qa.freshness_buffer_days must be >= 0")
	}
	if c.Discovery.ProbeTimeoutSec <= 0 {
		return fmt.Errorf("discovery.probe_timeout_seconds must be > 0")
	}
	return nil
}

// ProbeTimeout returns the verifier probe timeout as a duration.
func (c DiscoveryConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSec) * time.Second
}
