// File: internal/engine/actions.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/policy"
	"github.com/xkilldash9x/taskpilot/internal/screen"
)

// Actions are the gesture primitives policies are built from. Every wait goes
// through the sleeper, so a stop request is observed at the next suspension
// point.
type Actions struct {
	logger   *zap.Logger
	effector schemas.Effector
	source   schemas.ScreenSource
	sleeper  Sleeper
	cfg      config.EngineConfig
}

// NewActions creates the primitive set. source may be nil, in which case the
// cycle snapshot stands in for fresh observations.
func NewActions(logger *zap.Logger, cfg config.EngineConfig, effector schemas.Effector, source schemas.ScreenSource, sleeper Sleeper) *Actions {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	return &Actions{
		logger:   logger.Named("actions"),
		effector: effector,
		source:   source,
		sleeper:  sleeper,
		cfg:      cfg,
	}
}

// Observe returns a fresh snapshot, or fallback when none is available.
func (a *Actions) Observe(ctx context.Context, fallback *schemas.Snapshot) *schemas.Snapshot {
	if a.source == nil {
		return fallback
	}
	snap, err := a.source.Observe(ctx)
	if err != nil || snap.Empty() {
		if err != nil && !errors.Is(err, schemas.ErrNoSnapshot) {
			a.logger.Debug("Fresh observation failed, using cycle snapshot.", zap.Error(err))
		}
		return fallback
	}
	return snap
}

// Foreground returns the foreground app identity.
func (a *Actions) Foreground(ctx context.Context, fallback *schemas.Snapshot) string {
	if a.source != nil {
		if pkg, err := a.source.ForegroundPackage(ctx); err == nil {
			return pkg
		}
	}
	return fallback.ForegroundPackage()
}

// ClickCandidate clicks a candidate's element, or its coordinate when it was
// found by OCR.
func (a *Actions) ClickCandidate(ctx context.Context, c schemas.ActionCandidate) error {
	if c.Node == nil {
		if err := a.effector.ClickPoint(ctx, c.Point); err != nil {
			return a.clickError(ctx, err)
		}
		return nil
	}
	return a.ClickElement(ctx, c.Node)
}

// ClickElement climbs to the nearest clickable ancestor and clicks it. If no
// ancestor is clickable, or that click is rejected, it falls back to focusing
// and clicking the element itself.
func (a *Actions) ClickElement(ctx context.Context, node *schemas.ScreenNode) error {
	if node == nil {
		return schemas.ErrClickFailed
	}
	if target := screen.ClickTarget(node, a.cfg.ClickMaxHops); target != nil {
		err := a.effector.ClickNode(ctx, target)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.logger.Debug("Ancestor click rejected, trying focus and click.", zap.Error(err))
	}
	if err := a.effector.FocusNode(ctx, node); err != nil {
		return a.clickError(ctx, err)
	}
	if err := a.effector.ClickNode(ctx, node); err != nil {
		return a.clickError(ctx, err)
	}
	return nil
}

func (a *Actions) clickError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", schemas.ErrClickFailed, err)
}

// Settle waits d, or the click settle interval when d is zero.
func (a *Actions) Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = a.cfg.ClickSettle
	}
	return a.sleeper.Sleep(ctx, d)
}

// Back navigates back n times, waiting the back settle interval after each.
// A rejected back is logged and does not stop the sequence.
func (a *Actions) Back(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.effector.NavigateBack(ctx); err != nil {
			a.logger.Debug("Navigate back rejected.", zap.Int("attempt", i+1), zap.Error(err))
		}
		if err := a.sleeper.Sleep(ctx, a.cfg.BackSettle); err != nil {
			return err
		}
	}
	return nil
}

// ScrollOnce scrolls the first scrollable element, breadth first, that accepts
// the gesture. When none does it requests a generic window scroll.
func (a *Actions) ScrollOnce(ctx context.Context, root *schemas.ScreenNode) error {
	var scrollables []*schemas.ScreenNode
	root.WalkBreadthFirst(func(n *schemas.ScreenNode) bool {
		if n.Scrollable {
			scrollables = append(scrollables, n)
		}
		return true
	})
	for _, n := range scrollables {
		if err := a.effector.ScrollForward(ctx, n); err == nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := a.effector.ScrollForward(ctx, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: scroll: %v", schemas.ErrActionRejected, err)
	}
	return nil
}

// IdleScroll stays on the current screen for roughly d, nudging it forward
// once per cadence so content keeps loading.
func (a *Actions) IdleScroll(ctx context.Context, fallback *schemas.Snapshot, d time.Duration) error {
	cadence := a.cfg.ScrollCadence
	if cadence <= 0 || d <= 0 {
		return ctx.Err()
	}
	steps := int(d / cadence)
	root := a.Observe(ctx, fallback).RootOrNil()
	for i := 0; i < steps; i++ {
		if err := a.ScrollOnce(ctx, root); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if err := a.sleeper.Sleep(ctx, cadence); err != nil {
			return err
		}
	}
	return nil
}

// ClickAny clicks the first clickable element in depth-first order.
func (a *Actions) ClickAny(ctx context.Context, fallback *schemas.Snapshot) error {
	target := screen.FindClickable(a.Observe(ctx, fallback).RootOrNil())
	if target == nil {
		return fmt.Errorf("%w: no clickable element on screen", schemas.ErrClickFailed)
	}
	if err := a.effector.ClickNode(ctx, target); err != nil {
		return a.clickError(ctx, err)
	}
	return nil
}

// ClickText clicks the first element whose text contains text.
func (a *Actions) ClickText(ctx context.Context, fallback *schemas.Snapshot, text string) error {
	node := screen.FindText(a.Observe(ctx, fallback).RootOrNil(), text)
	if node == nil {
		return fmt.Errorf("%w: %q not on screen", schemas.ErrClickFailed, text)
	}
	return a.ClickElement(ctx, node)
}

// AwaitForeign polls the foreground app until it is one of the foreign apps or
// the switch timeout elapses. Elapsed time is counted in poll intervals.
func (a *Actions) AwaitForeign(ctx context.Context, fallback *schemas.Snapshot, c policy.CrossApp) (bool, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	for waited := time.Duration(0); waited < c.SwitchTimeout; waited += interval {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if c.IsForeign(a.Foreground(ctx, fallback)) {
			return true, nil
		}
		if err := a.sleeper.Sleep(ctx, interval); err != nil {
			return false, err
		}
	}
	return false, ctx.Err()
}

// ReturnHome navigates back until the home app is in the foreground, at most
// MaxBacks times.
func (a *Actions) ReturnHome(ctx context.Context, fallback *schemas.Snapshot, c policy.CrossApp) (bool, error) {
	for i := 0; i < c.MaxBacks; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if c.IsHome(a.Foreground(ctx, fallback)) {
			return true, nil
		}
		if err := a.effector.NavigateBack(ctx); err != nil {
			a.logger.Debug("Navigate back rejected while returning home.", zap.Error(err))
		}
		if err := a.sleeper.Sleep(ctx, c.BackInterval); err != nil {
			return false, err
		}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.IsHome(a.Foreground(ctx, fallback)), nil
}
