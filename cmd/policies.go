// File: cmd/policies.go
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/policy"
)

// policyDump is the printable form of the effective policy table.
type policyDump struct {
	Disallow []string        `yaml:"disallow"`
	CrossApp policy.CrossApp `yaml:"cross_app"`
	Plans    []policy.Plan   `yaml:"plans"`
}

// newPoliciesCmd creates the `policies` command.
func newPoliciesCmd() *cobra.Command {
	var classify []string

	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Print the effective task policy table",
		Long: `Prints the policy table built from the current configuration as YAML.
With --classify, prints the policy each given task label would be routed to.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if len(classify) > 0 {
				return printClassification(cmd.OutOrStdout(), cfg, classify)
			}
			return printPolicies(cmd.OutOrStdout(), cfg)
		},
	}
	cmd.Flags().StringArrayVar(&classify, "classify", nil, "task label to classify (repeatable)")
	return cmd
}

func printPolicies(out io.Writer, cfg config.Interface) error {
	table := policy.NewTable(cfg.Policies())
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(policyDump{
		Disallow: table.DisallowList(),
		CrossApp: table.CrossApp(),
		Plans:    table.Plans(),
	}); err != nil {
		return fmt.Errorf("failed to encode policy table: %w", err)
	}
	return nil
}

func printClassification(out io.Writer, cfg config.Interface, labels []string) error {
	table := policy.NewTable(cfg.Policies())
	for _, label := range labels {
		if phrase, ok := table.Disallowed(label); ok {
			fmt.Fprintf(out, "%s\tskipped (disallowed: %s)\n", label, phrase)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", label, table.Classify(label))
	}
	return nil
}
