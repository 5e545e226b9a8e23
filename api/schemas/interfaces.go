package schemas

import (
	"context"
	"errors"
)

// -- Error Taxonomy --

var (
	// ErrNoSnapshot is returned when neither a tree root nor an image is available.
	ErrNoSnapshot = errors.New("no snapshot available")
	// ErrClickFailed means every click strategy for a target was exhausted.
	ErrClickFailed = errors.New("click target unreachable")
	// ErrRecognitionEmpty means normalization and detection produced nothing actionable.
	ErrRecognitionEmpty = errors.New("recognition yielded no candidates")
	// ErrRewardUnparsed means no in-range amount was found on screen.
	ErrRewardUnparsed = errors.New("reward amount not parsed")
	// ErrVerificationFailed means no completion keyword was visible after a low confidence flow.
	ErrVerificationFailed = errors.New("task completion not verified")
	// ErrActionRejected is returned by effectors that could not perform an action.
	ErrActionRejected = errors.New("action rejected by effector")
)

// -- External Collaborators --

// Effector performs gestures on the device. Every method returns nil on
// success; a non-nil error is a local retry-or-skip signal, never fatal.
//
//go:generate mockery --name Effector --output ../../internal/mocks --outpkg mocks
type Effector interface {
	// ClickPoint taps a screen coordinate.
	ClickPoint(ctx context.Context, p Point) error
	// ClickNode performs the click action on a tree element.
	ClickNode(ctx context.Context, node *ScreenNode) error
	// FocusNode moves accessibility focus to a tree element.
	FocusNode(ctx context.Context, node *ScreenNode) error
	// ScrollForward scrolls an element forward. A nil node requests a generic
	// scroll gesture on the whole window.
	ScrollForward(ctx context.Context, node *ScreenNode) error
	// NavigateBack issues the global back action.
	NavigateBack(ctx context.Context) error
}

// ScreenSource supplies fresh observations while a policy is executing.
type ScreenSource interface {
	// Observe returns the current screen. An absent root and image is reported
	// as an empty snapshot or ErrNoSnapshot, never a panic.
	Observe(ctx context.Context) (*Snapshot, error)
	// ForegroundPackage returns the identity of the app in the foreground.
	ForegroundPackage(ctx context.Context) (string, error)
}

// Accountant receives credited reward amounts. The core does not query or
// persist totals.
type Accountant interface {
	CreditReward(ctx context.Context, amount int) error
}

// Reporter receives human-readable progress strings. It is purely observational.
type Reporter interface {
	Report(msg string)
}
