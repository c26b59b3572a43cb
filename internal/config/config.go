package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yuxishi/aws-limit-checker/internal/alerts"
	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
	"github.com/yuxishi/aws-limit-checker/internal/model"
)

type Config struct {
	Region  string      `yaml:"region"`
	Profile string      `yaml:"profile"`
	Role    *RoleConfig `yaml:"role"`

	Thresholds     ThresholdConfig `yaml:"thresholds"`
	MaxConcurrency int             `yaml:"max_concurrency"`
	Services       []string        `yaml:"services"`
	SkipServices   []string        `yaml:"skip_services"`
	SkipQuotasAPI  bool            `yaml:"skip_quotas_api"`

	// Keyed by "Service/Limit name".
	LimitOverrides     map[string]float64         `yaml:"limit_overrides"`
	ThresholdOverrides map[string]ThresholdConfig `yaml:"threshold_overrides"`

	Alerts  AlertsConfig  `yaml:"alerts"`
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
	Cache   CacheConfig   `yaml:"cache"`
}

type RoleConfig struct {
	AccountID  string `yaml:"account_id"`
	RoleName   string `yaml:"role_name"`
	ExternalID string `yaml:"external_id"`
}

type ThresholdConfig struct {
	Warning  int `yaml:"warning"`
	Critical int `yaml:"critical"`
}

type AlertsConfig struct {
	AccountName string                 `yaml:"account_name"`
	Slack       *alerts.SlackConfig    `yaml:"slack"`
	SNS         *alerts.SNSConfig      `yaml:"sns"`
	Telegram    *alerts.TelegramConfig `yaml:"telegram"`
	Dummy       bool                   `yaml:"dummy"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Port                string `yaml:"port"`
	ScanIntervalMinutes int    `yaml:"scan_interval_minutes"`
}

type CacheConfig struct {
	TTLMinutes int `yaml:"ttl_minutes"`
}

// Default configuration
func Default() *Config {
	return &Config{
		Region: "us-east-1",
		Thresholds: ThresholdConfig{
			Warning:  model.DefaultWarningThreshold,
			Critical: model.DefaultCriticalThreshold,
		},
		MaxConcurrency: 10,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Port:                "8080",
			ScanIntervalMinutes: 15,
		},
		Cache: CacheConfig{
			TTLMinutes: 5,
		},
	}
}

// Load configuration from file
func Load(filename string) (*Config, error) {
	cfg := Default()

	// If file doesn't exist, return defaults
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &apperrors.ErrConfiguration{Field: filename, Reason: err.Error()}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail later at scan time.
func (c *Config) Validate() error {
	if c.Region == "" {
		return &apperrors.ErrConfiguration{Field: "region", Reason: "is required"}
	}
	if err := model.ValidateThresholds(c.Thresholds.Warning, c.Thresholds.Critical); err != nil {
		return err
	}
	if c.MaxConcurrency < 0 {
		return &apperrors.ErrConfiguration{Field: "max_concurrency", Reason: "must not be negative"}
	}
	if c.Role != nil && c.Role.RoleName != "" && c.Role.AccountID == "" {
		return &apperrors.ErrConfiguration{Field: "role.account_id", Reason: "is required with role_name"}
	}
	for key, v := range c.LimitOverrides {
		if _, _, err := SplitLimitKey(key); err != nil {
			return err
		}
		if v < 0 {
			return &apperrors.ErrConfiguration{Field: "limit_overrides", Reason: fmt.Sprintf("%s: negative limit %v", key, v)}
		}
	}
	for key, t := range c.ThresholdOverrides {
		if _, _, err := SplitLimitKey(key); err != nil {
			return err
		}
		if err := model.ValidateThresholds(t.Warning, t.Critical); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		return &apperrors.ErrConfiguration{Field: "logging.format", Reason: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	return nil
}

// SplitLimitKey splits a "Service/Limit name" override key.
func SplitLimitKey(key string) (service, limit string, err error) {
	service, limit, ok := strings.Cut(key, "/")
	if !ok || service == "" || limit == "" {
		return "", "", &apperrors.ErrConfiguration{Field: "overrides", Reason: fmt.Sprintf("key %q is not of the form Service/Limit", key)}
	}
	return service, limit, nil
}

// GetCacheTTL returns the cache TTL as a duration
func (c *Config) GetCacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// GetScanInterval returns how often serve mode rescans.
func (c *Config) GetScanInterval() time.Duration {
	return time.Duration(c.Server.ScanIntervalMinutes) * time.Minute
}

// GetPort returns the server port, checking environment variable first
func (c *Config) GetPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return c.Server.Port
}
