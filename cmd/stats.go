// File: cmd/stats.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/ledger"
)

// newStatsCmd creates the `stats` command.
func newStatsCmd(provider ledgerProvider) *cobra.Command {
	var (
		day    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show coins credited today and in total from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			cfg.SetLedgerEnabled(true)
			if day == "" {
				day = time.Now().Format("2006-01-02")
			} else if _, err := time.Parse("2006-01-02", day); err != nil {
				return fmt.Errorf("invalid --day %q, want YYYY-MM-DD", day)
			}
			return runStats(ctx, cfg, provider, day, format, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day to report, YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml or json")
	return cmd
}

func runStats(ctx context.Context, cfg config.Interface, provider ledgerProvider, day, format string, out io.Writer) error {
	store, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		if errors.Is(err, ledger.ErrNoStore) {
			return fmt.Errorf("%w: stats need the PostgreSQL ledger (set TASKPILOT_LEDGER_URL)", err)
		}
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	totals, err := store.Totals(ctx, day)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		data, err := json.MarshalIndent(totals, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(totals)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}
