// File: internal/engine/router.go
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/detect"
	"github.com/xkilldash9x/taskpilot/internal/policy"
	"github.com/xkilldash9x/taskpilot/internal/reward"
	"github.com/xkilldash9x/taskpilot/internal/verify"
)

// Router drives one candidate through the task state machine:
// IDLE -> AWAIT_CLICK -> CLAIM_FLOW | GO_FLOW -> DONE | SKIPPED | FAILED.
// It never credits rewards itself; the outcome carries the reward event.
type Router struct {
	logger   *zap.Logger
	actions  *Actions
	table    *policy.Table
	labels   *detect.LabelResolver
	rewards  *reward.Extractor
	verifier *verify.Verifier
	reporter schemas.Reporter
}

// NewRouter assembles a router from its parts.
func NewRouter(
	logger *zap.Logger,
	actions *Actions,
	table *policy.Table,
	labels *detect.LabelResolver,
	rewards *reward.Extractor,
	verifier *verify.Verifier,
	reporter schemas.Reporter,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Router{
		logger:   logger.Named("router"),
		actions:  actions,
		table:    table,
		labels:   labels,
		rewards:  rewards,
		verifier: verifier,
		reporter: reporter,
	}
}

// routeRun accumulates the trace of one candidate.
type routeRun struct {
	out schemas.RouteOutcome
}

func (r *routeRun) enter(s schemas.RouteState) {
	r.out.State = s
	r.out.Trace = append(r.out.Trace, s)
}

func (r *routeRun) finish(s schemas.RouteState, reason string, err error) schemas.RouteOutcome {
	r.enter(s)
	r.out.Reason = reason
	r.out.Err = err
	return r.out
}

// Route handles one candidate seen on snap.
func (rt *Router) Route(ctx context.Context, snap *schemas.Snapshot, c schemas.ActionCandidate) schemas.RouteOutcome {
	run := &routeRun{out: schemas.RouteOutcome{Candidate: c}}
	run.enter(schemas.StateIdle)

	label := c.Label
	if label == "" && c.Node != nil && rt.labels != nil {
		label, _ = rt.labels.Resolve(c.Node)
	}
	run.out.Label = label
	log := rt.logger.With(zap.String("kind", string(c.Kind)), zap.String("label", label), zap.Int("top", c.Top))

	if c.Kind == schemas.KindGo && label == "" {
		log.Debug("Skipping task without a resolvable label.")
		return run.finish(schemas.StateSkipped, "label unresolved", nil)
	}
	if phrase, ok := rt.table.Disallowed(label); ok {
		rt.reporter.Report(fmt.Sprintf("跳过任务：%s", label))
		log.Info("Skipping disallowed task.", zap.String("phrase", phrase))
		return run.finish(schemas.StateSkipped, "disallowed: "+phrase, nil)
	}

	run.enter(schemas.StateAwaitClick)
	if err := rt.actions.ClickCandidate(ctx, c); err != nil {
		if isCancel(err) {
			return run.finish(schemas.StateCancelled, "stopped during click", err)
		}
		log.Info("Click failed.", zap.Error(err))
		return run.finish(schemas.StateFailed, "click failed", err)
	}
	if err := rt.actions.Settle(ctx, 0); err != nil {
		return run.finish(schemas.StateCancelled, "stopped after click", err)
	}

	if c.Kind == schemas.KindClaim {
		return rt.claimFlow(ctx, snap, run)
	}
	return rt.goFlow(ctx, snap, run, log)
}

func (rt *Router) claimFlow(ctx context.Context, snap *schemas.Snapshot, run *routeRun) schemas.RouteOutcome {
	run.enter(schemas.StateClaimFlow)
	if err := rt.actions.Back(ctx, 1); err != nil {
		return run.finish(schemas.StateCancelled, "stopped during claim", err)
	}
	ev := rt.rewards.Resolve(rt.actions.Observe(ctx, snap))
	ev.Label = run.out.Label
	run.out.Reward = &ev
	return run.finish(schemas.StateDone, "claimed", nil)
}

func (rt *Router) goFlow(ctx context.Context, snap *schemas.Snapshot, run *routeRun, log *zap.Logger) schemas.RouteOutcome {
	run.enter(schemas.StateGoFlow)
	plan := rt.table.Lookup(run.out.Label)
	run.out.Policy = string(plan.Kind)
	rt.reporter.Report(fmt.Sprintf("即将执行任务：%s", run.out.Label))
	log = log.With(zap.String("policy", string(plan.Kind)))

	for _, step := range plan.Steps {
		if err := rt.runStep(ctx, snap, step); err != nil {
			if isCancel(err) {
				return run.finish(schemas.StateCancelled, fmt.Sprintf("stopped during %s", step.Op), err)
			}
			// Step failures are local: the task may still complete.
			log.Info("Policy step did not complete.", zap.String("op", string(step.Op)), zap.Error(err))
		}
	}

	var ev schemas.RewardEvent
	if plan.FixedReward > 0 {
		ev = schemas.RewardEvent{Amount: plan.FixedReward, Origin: schemas.RewardFixed}
	} else {
		ev = rt.rewards.Resolve(rt.actions.Observe(ctx, snap))
	}
	ev.Label = run.out.Label
	run.out.Reward = &ev

	if run.out.Candidate.LowConfidence() && rt.verifier != nil {
		if !rt.verifier.Verified(rt.actions.Observe(ctx, snap)) {
			run.out.Deferred = true
			log.Info("Completion not verified, reward deferred.", zap.Int("amount", ev.Amount))
			return run.finish(schemas.StateDone, "unverified", schemas.ErrVerificationFailed)
		}
	}
	return run.finish(schemas.StateDone, "completed", nil)
}

func (rt *Router) runStep(ctx context.Context, snap *schemas.Snapshot, step policy.Step) error {
	switch step.Op {
	case policy.OpClickText:
		return rt.actions.ClickText(ctx, snap, step.Text)
	case policy.OpClickAny:
		return rt.actions.ClickAny(ctx, snap)
	case policy.OpSettle:
		return rt.actions.Settle(ctx, step.Duration)
	case policy.OpIdleScroll:
		return rt.actions.IdleScroll(ctx, snap, step.Duration)
	case policy.OpBack:
		return rt.actions.Back(ctx, step.Count)
	case policy.OpAwaitForeign:
		switched, err := rt.actions.AwaitForeign(ctx, snap, rt.table.CrossApp())
		if err == nil && !switched {
			return errors.New("foreground app did not switch")
		}
		return err
	case policy.OpReturnHome:
		home, err := rt.actions.ReturnHome(ctx, snap, rt.table.CrossApp())
		if err == nil && !home {
			return errors.New("home app not restored")
		}
		return err
	default:
		return fmt.Errorf("unknown policy step %q", step.Op)
	}
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type nopReporter struct{}

func (nopReporter) Report(string) {}
