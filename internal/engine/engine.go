// File: internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/detect"
	"github.com/xkilldash9x/taskpilot/internal/observability"
	"github.com/xkilldash9x/taskpilot/internal/policy"
	"github.com/xkilldash9x/taskpilot/internal/reward"
	"github.com/xkilldash9x/taskpilot/internal/screen"
	"github.com/xkilldash9x/taskpilot/internal/verify"
)

// Dependencies are the collaborators an Engine drives. Effector and
// Accountant are required; everything else has a working default.
type Dependencies struct {
	Effector   schemas.Effector
	Source     schemas.ScreenSource
	Accountant schemas.Accountant
	Reporter   schemas.Reporter
	Metrics    *observability.Metrics
	Sleeper    Sleeper
	Clock      Clock
	// RandSource seeds the reward estimate. Nil uses a time seeded source.
	RandSource rand.Source
}

// Engine turns one snapshot into at most one decision. Cycles must not overlap;
// the session runner serializes them.
type Engine struct {
	logger     *zap.Logger
	cfg        config.EngineConfig
	session    *SessionContext
	extractor  *detect.Extractor
	router     *Router
	actions    *Actions
	verifier   *verify.Verifier
	accountant schemas.Accountant
	reporter   schemas.Reporter
	metrics    *observability.Metrics
	clock      Clock
}

// New builds an engine from configuration and collaborators.
func New(logger *zap.Logger, cfg config.Interface, session *SessionContext, deps Dependencies) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	if session == nil {
		return nil, errors.New("session context cannot be nil")
	}
	if deps.Effector == nil {
		return nil, errors.New("effector cannot be nil")
	}
	if deps.Accountant == nil {
		return nil, errors.New("accountant cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	engineCfg := cfg.Engine()
	detectCfg := cfg.Detection()
	keywords := detect.KeywordsFromConfig(detectCfg)

	var rewards *reward.Extractor
	if deps.RandSource != nil {
		rewards = reward.NewExtractorWithSource(cfg.Reward(), deps.RandSource)
	} else {
		rewards = reward.NewExtractor(cfg.Reward())
	}

	actions := NewActions(logger, engineCfg, deps.Effector, deps.Source, deps.Sleeper)
	verifier := verify.New(cfg.Verify().Keywords)
	router := NewRouter(
		logger,
		actions,
		policy.NewTable(cfg.Policies()),
		detect.NewLabelResolver(keywords, detectCfg.LabelMaxClimb),
		rewards,
		verifier,
		deps.Reporter,
	)

	return &Engine{
		logger:     logger.With(zap.String("component", "engine")),
		cfg:        engineCfg,
		session:    session,
		extractor:  detect.NewExtractor(logger, detectCfg, engineCfg.ClickMaxHops),
		router:     router,
		actions:    actions,
		verifier:   verifier,
		accountant: deps.Accountant,
		reporter:   deps.Reporter,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
	}, nil
}

// Session returns the session context the engine mutates.
func (e *Engine) Session() *SessionContext { return e.session }

// RunCycle processes one snapshot. Precedence within a cycle is fixed:
// deferred settlement, sign-in, claim candidates, go candidates, and finally
// the throttled scroll fallback. A panic propagates to the caller without
// the cycle being counted.
func (e *Engine) RunCycle(ctx context.Context, snap *schemas.Snapshot) schemas.CycleResult {
	res := schemas.CycleResult{CycleID: uuid.NewString()}
	logger := e.logger.With(zap.String("cycle_id", res.CycleID), zap.String("session_id", e.session.ID()))

	res = e.cycle(ctx, logger, snap, res)

	e.session.RecordCycle(res.Acted)
	e.metrics.ObserveCycle(string(res.Outcome))
	e.metrics.SetParked(e.session.Parked())
	logger.Debug("Cycle finished.", zap.String("outcome", string(res.Outcome)), zap.Bool("acted", res.Acted))
	return res
}

func (e *Engine) cycle(ctx context.Context, logger *zap.Logger, snap *schemas.Snapshot, res schemas.CycleResult) schemas.CycleResult {
	if err := ctx.Err(); err != nil {
		res.Outcome, res.Err = schemas.OutcomeCancelled, err
		return res
	}
	if snap.Empty() {
		res.Outcome, res.Err = schemas.OutcomeNoSnapshot, schemas.ErrNoSnapshot
		return res
	}

	if e.session.Parked() > 0 {
		if kw, ok := e.verifier.Match(snap); ok {
			if ev, ok := e.session.TakeParked(); ok {
				logger.Info("Completion confirmed, settling deferred reward.", zap.String("keyword", kw), zap.String("label", ev.Label))
				res.Outcome, res.Acted = schemas.OutcomeSettled, true
				if err := e.credit(ctx, logger, ev); err != nil {
					res.Err = err
					return res
				}
				res.Reward = &ev
				return res
			}
		}
	}

	if !e.session.SignedIn() {
		if acted, err := e.signIn(ctx, logger, snap); acted || err != nil {
			if err != nil {
				res.Outcome, res.Err = schemas.OutcomeCancelled, err
				return res
			}
			res.Outcome, res.Acted = schemas.OutcomeSignedIn, true
			return res
		}
	}

	candidates := e.extractor.Extract(snap)
	res.Candidates = len(candidates)
	for _, c := range candidates {
		e.metrics.ObserveCandidate(string(c.Channel), string(c.Kind))
	}
	if len(candidates) == 0 {
		logger.Debug("Nothing actionable on screen.", zap.Error(schemas.ErrRecognitionEmpty))
	}

	for _, kind := range []schemas.CandidateKind{schemas.KindClaim, schemas.KindGo} {
		for _, c := range candidates {
			if c.Kind != kind {
				continue
			}
			out := e.router.Route(ctx, snap, c)
			res.Routes = append(res.Routes, out)
			e.metrics.ObserveRoute(out.Policy, string(out.State))

			switch out.State {
			case schemas.StateCancelled:
				logger.Info("Session stopped mid-task.", zap.String("label", out.Label), zap.String("reason", out.Reason))
				res.Outcome, res.Err = schemas.OutcomeCancelled, out.Err
				return res
			case schemas.StateDone:
				res.Outcome, res.Acted, res.Reward = schemas.OutcomeRouted, true, out.Reward
				if out.Deferred {
					e.park(logger, *out.Reward)
					res.Err = out.Err
				} else if out.Reward != nil {
					res.Err = e.credit(ctx, logger, *out.Reward)
				}
				return res
			case schemas.StateFailed:
				logger.Debug("Candidate failed, trying the next one.", zap.Stringer("candidate", c), zap.Error(out.Err))
			}
		}
	}

	return e.fallbackScroll(ctx, logger, snap, res)
}

func (e *Engine) fallbackScroll(ctx context.Context, logger *zap.Logger, snap *schemas.Snapshot, res schemas.CycleResult) schemas.CycleResult {
	if !e.session.Throttle().Allow(e.clock()) {
		e.metrics.ObserveScroll(false)
		res.Outcome = schemas.OutcomeThrottled
		return res
	}
	e.metrics.ObserveScroll(true)
	if err := e.actions.ScrollOnce(ctx, snap.Root); err != nil {
		if isCancel(err) {
			res.Outcome, res.Err = schemas.OutcomeCancelled, err
			return res
		}
		logger.Debug("Fallback scroll rejected.", zap.Error(err))
		res.Outcome, res.Err = schemas.OutcomeIdle, err
		return res
	}
	e.reporter.Report("未找到任务，滑动页面")
	if err := e.actions.sleeper.Sleep(ctx, e.cfg.BackSettle); err != nil {
		res.Outcome, res.Err = schemas.OutcomeCancelled, err
		return res
	}
	res.Outcome = schemas.OutcomeScrolled
	return res
}

// signIn handles the one-shot daily sign-in. It reports whether a click was
// made, in which case the snapshot is stale and the cycle must end.
func (e *Engine) signIn(ctx context.Context, logger *zap.Logger, snap *schemas.Snapshot) (bool, error) {
	if done := e.cfg.SignInDoneKeyword; done != "" {
		for _, t := range screen.Texts(snap) {
			if strings.Contains(t, done) {
				logger.Info("Daily sign-in already done.")
				e.session.MarkSignedIn()
				return false, nil
			}
		}
	}
	node := screen.FindText(snap.Root, e.cfg.SignInKeyword)
	if node == nil {
		return false, nil
	}
	if err := e.actions.ClickElement(ctx, node); err != nil {
		if isCancel(err) {
			return false, err
		}
		logger.Debug("Sign-in click failed.", zap.Error(err))
		return false, nil
	}
	e.session.MarkSignedIn()
	e.reporter.Report("签到成功")
	logger.Info("Daily sign-in clicked.")
	if err := e.actions.Settle(ctx, 0); err != nil {
		return false, err
	}
	return true, nil
}

// credit hands a reward to the accountant. The call is detached from ctx so a
// stop request after completion does not lose an earned reward. A rejected
// credit is parked and settled again on a later cycle.
func (e *Engine) credit(ctx context.Context, logger *zap.Logger, ev schemas.RewardEvent) error {
	if err := e.accountant.CreditReward(context.WithoutCancel(ctx), ev.Amount); err != nil {
		logger.Error("Failed to credit reward.", zap.Int("amount", ev.Amount), zap.Error(err))
		e.park(logger, ev)
		return fmt.Errorf("crediting %d for %q: %w", ev.Amount, ev.Label, err)
	}
	e.session.RecordCredit(ev.Amount)
	e.metrics.ObserveReward(string(ev.Origin), ev.Amount)
	e.reporter.Report(fmt.Sprintf("完成任务「%s」，获得 %d 闲鱼币", ev.Label, ev.Amount))
	logger.Info("Reward credited.", zap.Int("amount", ev.Amount), zap.String("origin", string(ev.Origin)), zap.String("label", ev.Label))
	return nil
}

func (e *Engine) park(logger *zap.Logger, ev schemas.RewardEvent) {
	if dropped, ok := e.session.ParkReward(ev); ok {
		logger.Warn("Parked reward queue full, dropping oldest.", zap.String("label", dropped.Label), zap.Int("amount", dropped.Amount))
	}
	logger.Info("Reward parked until completion is visible.", zap.String("label", ev.Label), zap.Int("amount", ev.Amount))
}
