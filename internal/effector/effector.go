// File: internal/effector/effector.go
package effector

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Sink receives gesture commands. A Sink error means the gesture was not
// dispatched.
type Sink interface {
	Send(cmd Command) error
}

// Effector implements schemas.Effector by turning every gesture into a
// Command for a Sink. It does not wait for the device to act; settle waits
// belong to the engine.
type Effector struct {
	logger *zap.Logger
	sink   Sink
	seq    atomic.Int64
	now    func() time.Time
}

var _ schemas.Effector = (*Effector)(nil)

// New creates an effector writing to sink.
func New(logger *zap.Logger, sink Sink) *Effector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Effector{
		logger: logger.Named("effector"),
		sink:   sink,
		now:    time.Now,
	}
}

// ClickPoint taps a screen coordinate.
func (e *Effector) ClickPoint(ctx context.Context, p schemas.Point) error {
	if p.X < 0 || p.Y < 0 {
		return fmt.Errorf("%w: negative coordinate %d,%d", schemas.ErrActionRejected, p.X, p.Y)
	}
	return e.send(ctx, Command{Op: OpClickPoint, Point: &p})
}

// ClickNode clicks a tree element.
func (e *Effector) ClickNode(ctx context.Context, node *schemas.ScreenNode) error {
	if node == nil {
		return fmt.Errorf("%w: click on nil node", schemas.ErrActionRejected)
	}
	return e.send(ctx, Command{Op: OpClickNode, Target: targetOf(node)})
}

// FocusNode moves accessibility focus to a tree element.
func (e *Effector) FocusNode(ctx context.Context, node *schemas.ScreenNode) error {
	if node == nil {
		return fmt.Errorf("%w: focus on nil node", schemas.ErrActionRejected)
	}
	return e.send(ctx, Command{Op: OpFocusNode, Target: targetOf(node)})
}

// ScrollForward scrolls node, or the whole window when node is nil.
func (e *Effector) ScrollForward(ctx context.Context, node *schemas.ScreenNode) error {
	return e.send(ctx, Command{Op: OpScrollForward, Target: targetOf(node), Window: node == nil})
}

// NavigateBack issues the global back action.
func (e *Effector) NavigateBack(ctx context.Context) error {
	return e.send(ctx, Command{Op: OpBack})
}

func (e *Effector) send(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd.Seq = e.seq.Add(1)
	cmd.At = e.now()
	if err := e.sink.Send(cmd); err != nil {
		e.logger.Warn("Gesture not dispatched.", zap.Stringer("command", cmd), zap.Error(err))
		return fmt.Errorf("%w: %s: %v", schemas.ErrActionRejected, cmd, err)
	}
	e.logger.Debug("Gesture dispatched.", zap.Int64("seq", cmd.Seq), zap.Stringer("command", cmd))
	return nil
}
