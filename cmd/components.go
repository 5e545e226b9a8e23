// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/engine"
	"github.com/xkilldash9x/taskpilot/internal/ledger"
	"github.com/xkilldash9x/taskpilot/internal/observability"
	"github.com/xkilldash9x/taskpilot/internal/session"
)

// componentDeps are the pieces that differ between a live run and a replay.
type componentDeps struct {
	Effector schemas.Effector
	// Source may be nil; policies then observe the cycle's own snapshot.
	Source     schemas.ScreenSource
	Sleeper    engine.Sleeper
	Reporter   schemas.Reporter
	ResultHook func(schemas.CycleResult)
}

// components holds the wired session so the commands can run and tear it down.
type components struct {
	Session *engine.SessionContext
	Engine  *engine.Engine
	Runner  *session.Runner
	Tally   *ledger.Tally
	Metrics *observability.Metrics

	cleanups []func()
}

// buildComponents wires configuration, the ledger and the engine into a
// session runner.
func buildComponents(ctx context.Context, logger *zap.Logger, cfg config.Interface, provider ledgerProvider, deps componentDeps) (*components, error) {
	c := &components{
		Session: engine.NewSessionContext(cfg.Throttle().Window, cfg.Verify().MaxParked),
		Metrics: observability.NewMetrics(),
	}

	tallyOpts := []ledger.Option{ledger.WithSessionID(c.Session.ID())}
	if cfg.Ledger().Enabled {
		store, cleanup, err := provider.Create(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		c.cleanups = append(c.cleanups, cleanup)
		tallyOpts = append(tallyOpts, ledger.WithStore(store))
	}
	c.Tally = ledger.NewTally(logger, deps.Reporter, tallyOpts...)
	if err := c.Tally.Load(ctx); err != nil {
		c.Shutdown()
		return nil, err
	}

	eng, err := engine.New(logger, cfg, c.Session, engine.Dependencies{
		Effector:   deps.Effector,
		Source:     deps.Source,
		Accountant: c.Tally,
		Reporter:   deps.Reporter,
		Metrics:    c.Metrics,
		Sleeper:    deps.Sleeper,
	})
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	c.Engine = eng

	var runnerOpts []session.Option
	if deps.ResultHook != nil {
		runnerOpts = append(runnerOpts, session.WithResultHook(deps.ResultHook))
	}
	runner, err := session.New(logger, eng, c.Session, c.Metrics, runnerOpts...)
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("failed to create session runner: %w", err)
	}
	c.Runner = runner
	return c, nil
}

// Shutdown releases external resources in reverse order.
func (c *components) Shutdown() {
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		if c.cleanups[i] != nil {
			c.cleanups[i]()
		}
	}
	c.cleanups = nil
}
