package cli

import (
	"github.com/spf13/cobra"

	"github.com/yuxishi/aws-limit-checker/internal/runner"
)

type checkOptions struct {
	services          []string
	skipServices      []string
	warningThreshold  int
	criticalThreshold int
	skipQuotas        bool
	noAlerts          bool
	json              bool
}

func checkCmd(root *rootOptions) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Scan usage, report limits over threshold and send alerts",
		Long: `Scan every selected service, print the limits whose usage crossed the
warning or critical threshold and notify the configured alert providers.

Exit status is 0 when everything is below the warning threshold, 1 when
at least one limit is at warning level and 2 when one is critical.

Examples:
  # Check all services
  limitchecker check

  # Check ECR only, without Service Quotas lookups or alerts
  limitchecker check --service ECR --skip-quotas --no-alerts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, root, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.services, "service", nil, "Only check these services (repeatable)")
	cmd.Flags().StringSliceVar(&opts.skipServices, "skip-service", nil, "Skip these services (repeatable)")
	cmd.Flags().IntVar(&opts.warningThreshold, "warning-threshold", 0, "Warning threshold percentage")
	cmd.Flags().IntVar(&opts.criticalThreshold, "critical-threshold", 0, "Critical threshold percentage")
	cmd.Flags().BoolVar(&opts.skipQuotas, "skip-quotas", false, "Do not query the Service Quotas API")
	cmd.Flags().BoolVar(&opts.noAlerts, "no-alerts", false, "Do not notify alert providers")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the full report as JSON")

	return cmd
}

func runCheck(cmd *cobra.Command, root *rootOptions, opts *checkOptions) error {
	a, err := root.load(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	if err := a.applyThresholdFlags(cmd, opts.warningThreshold, opts.criticalThreshold); err != nil {
		return err
	}
	a.applyServiceFlags(cmd, opts.services, opts.skipServices)
	if opts.skipQuotas {
		a.cfg.SkipQuotasAPI = true
	}

	registry, err := a.registry()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	runOpts, err := a.runnerOptions(ctx, !opts.noAlerts, nil)
	if err != nil {
		return err
	}

	report, err := runner.New(registry, runOpts).Run(ctx)
	if err != nil {
		return err
	}

	if opts.json {
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else if err := writeReport(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	writeFailures(cmd.ErrOrStderr(), report.Failures)

	return exitFor(report.Level)
}
