// Package cli wires configuration, checkers, the scan runner and alert
// providers into the limitchecker commands.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yuxishi/aws-limit-checker/internal/model"
)

// ExitError asks main to exit with Code without printing anything else.
type ExitError struct {
	Code  int
	Level model.Severity
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("limits at %s level", e.Level)
}

// exitFor maps a scan level to the process exit status: 0 OK, 1 warning,
// 2 critical.
func exitFor(level model.Severity) error {
	switch level {
	case model.SeverityCritical:
		return &ExitError{Code: 2, Level: level}
	case model.SeverityWarning:
		return &ExitError{Code: 1, Level: level}
	default:
		return nil
	}
}

type rootOptions struct {
	configPath string
	region     string
	profile    string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the limitchecker command tree.
func NewRootCommand(version string, out, errOut io.Writer) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "limitchecker",
		Short: "Check AWS resource usage against service limits",
		Long: `limitchecker compares current AWS resource usage with the account's
service limits and raises warning and critical alerts through Slack, SNS
or Telegram when usage crosses the configured thresholds.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	flags.StringVar(&opts.region, "region", "", "AWS region to check (overrides config)")
	flags.StringVar(&opts.profile, "profile", "", "Shared credentials profile (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format: console, json")

	rootCmd.AddCommand(checkCmd(opts))
	rootCmd.AddCommand(limitsCmd(opts))
	rootCmd.AddCommand(servicesCmd(opts))
	rootCmd.AddCommand(iamPolicyCmd(opts))
	rootCmd.AddCommand(regionsCmd(opts))
	rootCmd.AddCommand(serveCmd(opts))
	rootCmd.AddCommand(versionCmd(version))

	return rootCmd
}

func versionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "limitchecker %s\n", version)
			return err
		},
	}
}
