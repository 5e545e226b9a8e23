// File: cmd/replay.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/effector"
	"github.com/xkilldash9x/taskpilot/internal/engine"
	"github.com/xkilldash9x/taskpilot/internal/observability"
	"github.com/xkilldash9x/taskpilot/internal/source"
)

type replayOptions struct {
	commands string
	realtime bool
}

// newReplayCmd creates the `replay` command.
func newReplayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay <snapshot files...>",
		Short: "Run recorded screens through the engine and print each decision",
		Long: `Loads uiautomator XML dumps, JSON snapshots or JSONL recordings and feeds
them to the engine in order, one cycle per screen. Gestures are recorded, not
performed, unless --commands is given. Rewards are never persisted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runReplay(ctx, observability.GetLogger(), cfg, args, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.commands, "commands", "", "also append the gestures to this commands file")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "honour settle and scroll waits instead of skipping them")
	return cmd
}

// runReplay replays paths and writes a transcript to out.
func runReplay(ctx context.Context, logger *zap.Logger, cfg config.Interface, paths []string, out io.Writer, opts replayOptions) error {
	snaps, err := source.LoadReplay(ctx, paths)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return errors.New("no snapshots found in the given files")
	}

	recorder := &effector.Recorder{}
	var sink effector.Sink = recorder
	if opts.commands != "" {
		jl, err := effector.OpenCommandLog(opts.commands, 0)
		if err != nil {
			return err
		}
		defer jl.Close()
		sink = teeSink{recorder, jl}
	}

	var sleeper engine.Sleeper = engine.InstantSleeper{}
	if opts.realtime {
		sleeper = engine.TimerSleeper{}
	}

	cfg.SetLedgerEnabled(false)
	reporter := &observability.MemoryReporter{}
	n := 0
	comps, err := buildComponents(ctx, logger, cfg, nil, componentDeps{
		Effector: effector.New(logger, sink),
		Sleeper:  sleeper,
		Reporter: reporter,
		ResultHook: func(res schemas.CycleResult) {
			n++
			fmt.Fprintf(out, "%3d  %-9s  %-16s  candidates=%d%s\n", n, snapshotName(snaps, n-1), res.Outcome, res.Candidates, describeReward(res))
		},
	})
	if err != nil {
		return err
	}
	defer comps.Shutdown()

	if err := comps.Runner.Run(ctx, source.Emit(ctx, snaps)); err != nil {
		return err
	}

	fmt.Fprintln(out)
	for _, msg := range reporter.Messages() {
		fmt.Fprintf(out, "  > %s\n", msg)
	}
	stats := comps.Session.Stats()
	totals := comps.Tally.Totals()
	fmt.Fprintf(out, "\n%d screens, %d acted, %d gestures, %d coins (parked: %d)\n",
		stats.Cycles, stats.ActedCycles, len(recorder.Commands()), totals.Total, stats.Parked)
	if !stats.LastScrollAt.IsZero() {
		fmt.Fprintf(out, "last fallback scroll at %s\n", stats.LastScrollAt.Format(time.RFC3339))
	}
	return nil
}

func snapshotName(snaps []*schemas.Snapshot, i int) string {
	if i < 0 || i >= len(snaps) {
		return "?"
	}
	return snaps[i].ID
}

func describeReward(res schemas.CycleResult) string {
	if res.Reward == nil {
		return ""
	}
	suffix := fmt.Sprintf("  +%d (%s)", res.Reward.Amount, res.Reward.Origin)
	if res.Reward.Label != "" {
		suffix += " " + res.Reward.Label
	}
	if errors.Is(res.Err, schemas.ErrVerificationFailed) {
		suffix += " [parked]"
	}
	return suffix
}

// teeSink records a command and forwards it.
type teeSink struct {
	first  effector.Sink
	second effector.Sink
}

func (t teeSink) Send(cmd effector.Command) error {
	if err := t.first.Send(cmd); err != nil {
		return err
	}
	return t.second.Send(cmd)
}
