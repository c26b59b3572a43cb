package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/yuxishi/aws-limit-checker/internal/runner"
)

type limitsOptions struct {
	services     []string
	skipServices []string
	defaults     bool
	skipQuotas   bool
	json         bool
}

func limitsCmd(root *rootOptions) *cobra.Command {
	opts := &limitsOptions{}

	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Show the effective value of every limit",
		Long: `Show each limit's effective value and where it comes from: a configured
override, the Service Quotas API or the built-in default.

Examples:
  # Effective limits, looking up current quotas
  limitchecker limits

  # Built-in defaults only, no AWS calls
  limitchecker limits --defaults`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLimits(cmd, root, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.services, "service", nil, "Only show these services (repeatable)")
	cmd.Flags().StringSliceVar(&opts.skipServices, "skip-service", nil, "Skip these services (repeatable)")
	cmd.Flags().BoolVar(&opts.defaults, "defaults", false, "Show built-in default limits without contacting AWS")
	cmd.Flags().BoolVar(&opts.skipQuotas, "skip-quotas", false, "Do not query the Service Quotas API")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")

	return cmd
}

func runLimits(cmd *cobra.Command, root *rootOptions, opts *limitsOptions) error {
	a, err := root.load(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	a.applyServiceFlags(cmd, opts.services, opts.skipServices)
	if opts.skipQuotas {
		a.cfg.SkipQuotasAPI = true
	}

	registry, err := a.registry()
	if err != nil {
		return err
	}

	if !opts.defaults {
		runOpts, err := a.runnerOptions(cmd.Context(), false, nil)
		if err != nil {
			return err
		}
		runner.New(registry, runOpts).Prepare(cmd.Context())
	}

	limits := registry.Limits()
	views := make([]limitView, 0, len(limits))
	for _, l := range limits {
		views = append(views, newLimitView(l, opts.defaults))
	}

	if opts.json {
		return writeJSON(cmd.OutOrStdout(), views)
	}
	return writeLimits(cmd.OutOrStdout(), views)
}

func servicesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List the services that can be checked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			registry, err := a.registry()
			if err != nil {
				return err
			}

			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "SERVICE\tAPI\tLIMITS")
			for _, c := range registry.Checkers() {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Name(), c.APIName(), len(c.Limits()))
			}
			return tw.Flush()
		},
	}
}

// basePermissions are needed regardless of the selected services.
var basePermissions = []string{
	"servicequotas:ListServiceQuotas",
	"sts:GetCallerIdentity",
}

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource string   `json:"Resource"`
}

type iamPolicy struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

func iamPolicyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "iam-policy",
		Short: "Print the IAM policy needed to check the selected services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			registry, err := a.registry()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), buildPolicy(registry.RequiredPermissions(), a.cfg.Alerts.SNS != nil))
		},
	}
}

func buildPolicy(checkerActions []string, withSNS bool) iamPolicy {
	seen := make(map[string]bool)
	var actions []string
	add := func(list ...string) {
		for _, a := range list {
			if !seen[a] {
				seen[a] = true
				actions = append(actions, a)
			}
		}
	}
	add(checkerActions...)
	add(basePermissions...)
	if withSNS {
		add("sns:Publish")
	}
	sort.Strings(actions)

	return iamPolicy{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:   "Allow",
			Action:   actions,
			Resource: "*",
		}},
	}
}
