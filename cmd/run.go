// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/effector"
	"github.com/xkilldash9x/taskpilot/internal/engine"
	"github.com/xkilldash9x/taskpilot/internal/observability"
	"github.com/xkilldash9x/taskpilot/internal/source"
)

// newRunCmd creates the `run` command.
func newRunCmd(provider ledgerProvider) *cobra.Command {
	var (
		feedPath    string
		follow      bool
		commands    string
		useLedger   bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Follow the device snapshot feed and work through the task list",
		Long: `Tails the JSONL snapshot feed written by the device bridge, runs one
decision cycle per screen change and writes the resulting gestures to the
commands file the bridge executes. Stop with Ctrl+C; an in-flight task is
abandoned at its next wait.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("feed") {
				cfg.SetFeedPath(feedPath)
			}
			if flags.Changed("follow") {
				cfg.SetFeedFollow(follow)
			}
			if flags.Changed("commands") {
				cfg.SetFeedCommandsPath(commands)
			}
			if flags.Changed("ledger") {
				cfg.SetLedgerEnabled(useLedger)
			}
			if flags.Changed("metrics-addr") {
				cfg.SetMetricsAddr(metricsAddr)
			}

			return runSession(ctx, logger, cfg, provider)
		},
	}

	cmd.Flags().StringVar(&feedPath, "feed", "", "JSONL snapshot feed written by the device bridge (overrides feed.path)")
	cmd.Flags().BoolVar(&follow, "follow", true, "keep following the feed for new snapshots")
	cmd.Flags().StringVar(&commands, "commands", "", "file the gesture commands are appended to; empty means dry run")
	cmd.Flags().BoolVar(&useLedger, "ledger", false, "persist credited rewards to PostgreSQL")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	return cmd
}

// runSession wires the feed, engine and runner and blocks until the feed
// ends or ctx is cancelled.
func runSession(ctx context.Context, logger *zap.Logger, cfg config.Interface, provider ledgerProvider) error {
	feed, err := source.NewFeed(logger, cfg.Feed(), nil)
	if err != nil {
		return err
	}

	var sink effector.Sink
	if path := cfg.Feed().CommandsPath; path != "" {
		jl, err := effector.OpenCommandLog(path, 0)
		if err != nil {
			return err
		}
		defer jl.Close()
		sink = jl
	} else {
		logger.Warn("No commands path configured, gestures are only logged (dry run).")
		sink = &effector.Recorder{}
	}

	comps, err := buildComponents(ctx, logger, cfg, provider, componentDeps{
		Effector: effector.New(logger, sink),
		Source:   feed.Latest(),
		Sleeper:  engine.TimerSleeper{},
		Reporter: observability.NewZapReporter(logger),
	})
	if err != nil {
		return err
	}
	defer comps.Shutdown()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error { return feed.Run(gctx) })
	g.Go(func() error {
		// The feed closing its channel ends the session and everything else.
		defer cancel()
		return comps.Runner.Run(gctx, feed.Events())
	})
	if addr := cfg.Metrics().Addr; addr != "" {
		g.Go(func() error { return serveMetrics(gctx, logger, addr, comps.Metrics) })
	}

	err = g.Wait()
	stats := comps.Session.Stats()
	totals := comps.Tally.Totals()
	logger.Info("Session finished.",
		zap.String("session_id", stats.ID),
		zap.Int("cycles", stats.Cycles),
		zap.Int("acted", stats.ActedCycles),
		zap.Int("coins", stats.Coins),
		zap.Int("parked", stats.Parked),
		zap.Time("last_scroll", stats.LastScrollAt),
		zap.Int("today", totals.Today),
		zap.Int("total", totals.Total),
	)
	return err
}

// serveMetrics exposes /metrics until ctx is done.
func serveMetrics(ctx context.Context, logger *zap.Logger, addr string, metrics *observability.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("Serving metrics.", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server did not shut down cleanly.", zap.Error(err))
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
