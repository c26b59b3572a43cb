package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/yuxishi/aws-limit-checker/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5*time.Minute, cfg.GetCacheTTL())
	assert.Equal(t, 15*time.Minute, cfg.GetScanInterval())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
region: eu-west-1
profile: audit
role:
  account_id: "123456789012"
  role_name: LimitChecker
thresholds:
  warning: 70
  critical: 85
services: [ECR, CloudTrail]
skip_quotas_api: true
limit_overrides:
  "ECR/Images per repository": 20000
threshold_overrides:
  "CloudTrail/Trails Per Region":
    warning: 50
    critical: 60
alerts:
  account_name: prod
  slack:
    target_url: https://hooks.slack.com/services/T/B/X
    report_on_success: true
    timeout: 5s
  telegram:
    bot_token: "1:x"
    chat_id: 42
server:
  port: "9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, "audit", cfg.Profile)
	require.NotNil(t, cfg.Role)
	assert.Equal(t, "LimitChecker", cfg.Role.RoleName)
	assert.Equal(t, ThresholdConfig{Warning: 70, Critical: 85}, cfg.Thresholds)
	assert.Equal(t, []string{"ECR", "CloudTrail"}, cfg.Services)
	assert.True(t, cfg.SkipQuotasAPI)
	assert.Equal(t, 20000.0, cfg.LimitOverrides["ECR/Images per repository"])
	assert.Equal(t, ThresholdConfig{Warning: 50, Critical: 60}, cfg.ThresholdOverrides["CloudTrail/Trails Per Region"])

	require.NotNil(t, cfg.Alerts.Slack)
	assert.True(t, cfg.Alerts.Slack.ReportOnSuccess)
	assert.Equal(t, 5*time.Second, cfg.Alerts.Slack.Timeout)
	require.NotNil(t, cfg.Alerts.Telegram)
	assert.Equal(t, int64(42), cfg.Alerts.Telegram.ChatID)
	assert.Nil(t, cfg.Alerts.SNS)

	// untouched defaults survive
	assert.Equal(t, 10, cfg.MaxConcurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Cache.TTLMinutes)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"thresholds", "thresholds: {warning: 95, critical: 90}", "warning_threshold"},
		{"override key", "limit_overrides: {nolimit: 3}", "overrides"},
		{"role", "role: {role_name: x}", "role.account_id"},
		{"log format", "logging: {format: xml}", "logging.format"},
		{"region", "region: ''", "region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			var cfgErr *apperrors.ErrConfiguration
			require.True(t, stderrors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "region: [unterminated"))
	var cfgErr *apperrors.ErrConfiguration
	assert.True(t, stderrors.As(err, &cfgErr))
}

func TestSplitLimitKey(t *testing.T) {
	svc, limit, err := SplitLimitKey("EC2/Running On-Demand Standard (A, C, D, H, I, M, R, T, Z) instances")
	require.NoError(t, err)
	assert.Equal(t, "EC2", svc)
	assert.Equal(t, "Running On-Demand Standard (A, C, D, H, I, M, R, T, Z) instances", limit)

	_, _, err = SplitLimitKey("/x")
	assert.Error(t, err)
}

func TestGetPort(t *testing.T) {
	cfg := Default()
	t.Setenv("PORT", "")
	assert.Equal(t, "8080", cfg.GetPort())

	t.Setenv("PORT", "3000")
	assert.Equal(t, "3000", cfg.GetPort())
}
