// File: internal/session/runner.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/engine"
	"github.com/xkilldash9x/taskpilot/internal/observability"
)

// ErrAlreadyRunning is returned when Run is called on a runner that is active.
var ErrAlreadyRunning = errors.New("session is already running")

// CycleRunner processes one snapshot. *engine.Engine is the production
// implementation.
type CycleRunner interface {
	RunCycle(ctx context.Context, snap *schemas.Snapshot) schemas.CycleResult
}

// Option configures a Runner.
type Option func(*Runner)

// WithResultHook registers fn to receive every cycle result, including
// recovered panics. fn runs on the runner goroutine.
func WithResultHook(fn func(schemas.CycleResult)) Option {
	return func(r *Runner) { r.onResult = fn }
}

// Runner feeds snapshots to the engine one at a time. It owns the session
// lifecycle: Run starts the session, Stop cancels the in-flight cycle and
// ends it, Reset clears it for the next run.
type Runner struct {
	logger   *zap.Logger
	engine   CycleRunner
	session  *engine.SessionContext
	metrics  *observability.Metrics
	onResult func(schemas.CycleResult)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a runner.
func New(logger *zap.Logger, eng CycleRunner, session *engine.SessionContext, metrics *observability.Metrics, opts ...Option) (*Runner, error) {
	if eng == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if session == nil {
		return nil, errors.New("session context cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		logger:  logger.With(zap.String("component", "session_runner")),
		engine:  eng,
		session: session,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run consumes events until the channel is closed, Stop is called, or ctx is
// done. Only the last case returns an error.
func (r *Runner) Run(ctx context.Context, events <-chan *schemas.Snapshot) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.running, r.cancel = true, cancel
	r.mu.Unlock()

	r.session.Start()
	r.logger.Info("Session started.", zap.String("session_id", r.session.ID()))
	defer func() {
		cancel()
		r.session.Stop()
		r.mu.Lock()
		r.running, r.cancel = false, nil
		r.mu.Unlock()
		stats := r.session.Stats()
		r.logger.Info("Session stopped.",
			zap.String("session_id", stats.ID),
			zap.Int("cycles", stats.Cycles),
			zap.Int("rewards", stats.Rewards),
			zap.Int("coins", stats.Coins),
		)
	}()

	for {
		select {
		case <-runCtx.Done():
			return ctx.Err()
		case snap, ok := <-events:
			if !ok {
				r.logger.Info("Event stream closed.")
				return nil
			}
			r.process(runCtx, snap)
		}
	}
}

// process runs one cycle. A panic from a collaborator is contained here so
// the next event is still handled.
func (r *Runner) process(ctx context.Context, snap *schemas.Snapshot) {
	var res schemas.CycleResult
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered panic in cycle.",
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			r.metrics.ObservePanic()
			r.metrics.ObserveCycle(string(schemas.OutcomePanicked))
			r.session.RecordCycle(false)
			res = schemas.CycleResult{Outcome: schemas.OutcomePanicked, Err: fmt.Errorf("cycle panicked: %v", rec)}
		}
		if r.onResult != nil {
			r.onResult(res)
		}
	}()

	start := time.Now()
	res = r.engine.RunCycle(ctx, snap)
	r.logger.Debug("Cycle done.",
		zap.String("cycle_id", res.CycleID),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("candidates", res.Candidates),
		zap.Duration("took", time.Since(start)),
	)
}

// Running reports whether Run is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stop cancels the in-flight cycle, if any, and makes Run return. It is safe
// to call at any time.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		r.logger.Info("Stop requested.")
		cancel()
	}
}

// Reset clears the session so sign-in, throttle and parked rewards start
// fresh. It refuses while the session is running.
func (r *Runner) Reset(now time.Time) error {
	if r.Running() {
		return ErrAlreadyRunning
	}
	r.session.Reset(now)
	return nil
}
