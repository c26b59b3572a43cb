package cli

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yuxishi/aws-limit-checker/internal/alerts"
	"github.com/yuxishi/aws-limit-checker/internal/aws"
	"github.com/yuxishi/aws-limit-checker/internal/checker"
	"github.com/yuxishi/aws-limit-checker/internal/config"
	"github.com/yuxishi/aws-limit-checker/internal/logging"
	"github.com/yuxishi/aws-limit-checker/internal/metrics"
	"github.com/yuxishi/aws-limit-checker/internal/model"
	"github.com/yuxishi/aws-limit-checker/internal/runner"
)

// newFactory creates the AWS client factory. Tests replace it.
var newFactory = func(cfg *config.Config, logger *zap.Logger) aws.ClientFactory {
	opts := aws.ConnectorOptions{
		Region:  cfg.Region,
		Profile: cfg.Profile,
		Logger:  logger,
	}
	if cfg.Role != nil {
		opts.Role = &aws.RoleOptions{
			AccountID:  cfg.Role.AccountID,
			RoleName:   cfg.Role.RoleName,
			ExternalID: cfg.Role.ExternalID,
		}
	}
	return aws.NewConnector(opts)
}

type identifier interface {
	Identity(ctx context.Context) (aws.Identity, error)
}

// app is the per-invocation environment shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	factory aws.ClientFactory
}

func (o *rootOptions) load(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.region != "" {
		cfg.Region = o.region
	}
	if o.profile != "" {
		cfg.Profile = o.profile
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	logger.Debug("Loaded configuration",
		zap.String("path", o.configPath),
		zap.String("region", cfg.Region))

	return &app{
		cfg:     cfg,
		logger:  logger,
		factory: newFactory(cfg, logger),
	}, nil
}

func (a *app) checkerOptions() checker.Options {
	return checker.Options{
		WarningThreshold:  a.cfg.Thresholds.Warning,
		CriticalThreshold: a.cfg.Thresholds.Critical,
		Region:            a.cfg.Region,
		Logger:            a.logger,
	}
}

func (a *app) registry() (*checker.Registry, error) {
	return aws.NewRegistry(a.cfg.Services, a.cfg.SkipServices, a.cfg.MaxConcurrency, a.checkerOptions(), a.factory)
}

// runnerOptions wires overrides, the quota fetcher and, when alerts is set,
// every configured provider.
func (a *app) runnerOptions(ctx context.Context, withAlerts bool, m *metrics.Metrics) (runner.Options, error) {
	opts := runner.Options{
		LimitOverrides:     a.cfg.LimitOverrides,
		ThresholdOverrides: a.cfg.ThresholdOverrides,
		Metrics:            m,
		Logger:             a.logger,
	}
	if !a.cfg.SkipQuotasAPI {
		opts.Quotas = aws.NewQuotaFetcher(a.factory, a.cfg.MaxConcurrency, a.logger)
	}
	if withAlerts {
		providers, err := a.providers(ctx)
		if err != nil {
			return runner.Options{}, err
		}
		opts.Notifier = alerts.NewDispatcher(a.logger, providers...)
	}
	return opts, nil
}

// accountName returns the configured account label, falling back to the
// caller's account id.
func (a *app) accountName(ctx context.Context) string {
	if a.cfg.Alerts.AccountName != "" {
		return a.cfg.Alerts.AccountName
	}
	id, ok := a.factory.(identifier)
	if !ok {
		return ""
	}
	identity, err := id.Identity(ctx)
	if err != nil {
		a.logger.Warn("Could not resolve account id", zap.Error(err))
		return ""
	}
	return identity.Account
}

func (a *app) providers(ctx context.Context) ([]alerts.Provider, error) {
	ac := a.cfg.Alerts
	if ac.Slack == nil && ac.SNS == nil && ac.Telegram == nil && !ac.Dummy {
		return nil, nil
	}

	account := a.accountName(ctx)
	var providers []alerts.Provider

	if ac.Slack != nil {
		cfg := *ac.Slack
		if cfg.AccountName == "" {
			cfg.AccountName = account
		}
		p, err := alerts.NewSlack(cfg, a.logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if ac.SNS != nil {
		cfg := *ac.SNS
		if cfg.AccountName == "" {
			cfg.AccountName = account
		}
		awsCfg, err := a.factory.Config(ctx)
		if err != nil {
			return nil, fmt.Errorf("sns provider: %w", err)
		}
		p, err := alerts.NewSNS(cfg, sns.NewFromConfig(awsCfg), a.logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if ac.Telegram != nil {
		cfg := *ac.Telegram
		if cfg.AccountName == "" {
			cfg.AccountName = account
		}
		p, err := alerts.NewTelegram(cfg, a.logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	if ac.Dummy {
		providers = append(providers, alerts.NewDummy(a.logger))
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	a.logger.Debug("Alert providers configured", zap.Strings("providers", names))
	return providers, nil
}

// applyThresholdFlags overrides the configured global thresholds with any
// flags the user set.
func (a *app) applyThresholdFlags(cmd *cobra.Command, warning, critical int) error {
	if cmd.Flags().Changed("warning-threshold") {
		a.cfg.Thresholds.Warning = warning
	}
	if cmd.Flags().Changed("critical-threshold") {
		a.cfg.Thresholds.Critical = critical
	}
	return model.ValidateThresholds(a.cfg.Thresholds.Warning, a.cfg.Thresholds.Critical)
}

// applyServiceFlags replaces the configured service selection when flags
// are given.
func (a *app) applyServiceFlags(cmd *cobra.Command, services, skip []string) {
	if cmd.Flags().Changed("service") {
		a.cfg.Services = services
	}
	if cmd.Flags().Changed("skip-service") {
		a.cfg.SkipServices = skip
	}
}
