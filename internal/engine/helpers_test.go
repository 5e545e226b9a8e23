// File: internal/engine/helpers_test.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/mocks"
	"github.com/xkilldash9x/taskpilot/internal/observability"
)

// -- Screen Fixtures --

const screenWidth = 1080

func box(l, t, r, b int) schemas.BoundingBox {
	return schemas.BoundingBox{Left: l, Top: t, Right: r, Bottom: b}
}

func newRoot() *schemas.ScreenNode {
	return &schemas.ScreenNode{
		ClassName: "android.widget.FrameLayout",
		Package:   "com.taobao.idlefish",
		Bounds:    box(0, 0, screenWidth, 2400),
	}
}

// addRow appends a task row: a title on the left, a clickable button on the right.
func addRow(root *schemas.ScreenNode, top int, title, button string) *schemas.ScreenNode {
	row := &schemas.ScreenNode{Bounds: box(0, top, screenWidth, top+160)}
	row.AddChild(&schemas.ScreenNode{Text: title, Bounds: box(40, top+20, 700, top+80)})
	btn := &schemas.ScreenNode{Text: button, Clickable: true, Bounds: box(820, top+30, 1040, top+110)}
	row.AddChild(btn)
	root.AddChild(row)
	return btn
}

func snapshotOf(root *schemas.ScreenNode) *schemas.Snapshot {
	return &schemas.Snapshot{ID: "test", Package: root.Package, Width: screenWidth, Root: root}
}

func ocrSnapshot(regions ...schemas.OCRRegion) *schemas.Snapshot {
	return &schemas.Snapshot{ID: "ocr", Width: screenWidth, Regions: regions}
}

func region(text string, l, t, r, b int) schemas.OCRRegion {
	return schemas.OCRRegion{Text: text, Box: box(l, t, r, b)}
}

// -- Fakes --

// recordingEffector logs every gesture as "op:target" and fails the ones
// listed in failures.
type recordingEffector struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error
	onCall   func(call string)
}

func newRecordingEffector() *recordingEffector {
	return &recordingEffector{failures: map[string]error{}}
}

func nodeName(n *schemas.ScreenNode) string {
	switch {
	case n == nil:
		return "<window>"
	case n.Text != "":
		return n.Text
	case n.ResourceID != "":
		return n.ResourceID
	default:
		return n.ClassName
	}
}

func (e *recordingEffector) record(call string) error {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	err := e.failures[call]
	hook := e.onCall
	e.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return err
}

func (e *recordingEffector) ClickPoint(_ context.Context, p schemas.Point) error {
	return e.record(fmt.Sprintf("point:%d,%d", p.X, p.Y))
}

func (e *recordingEffector) ClickNode(_ context.Context, n *schemas.ScreenNode) error {
	return e.record("click:" + nodeName(n))
}

func (e *recordingEffector) FocusNode(_ context.Context, n *schemas.ScreenNode) error {
	return e.record("focus:" + nodeName(n))
}

func (e *recordingEffector) ScrollForward(_ context.Context, n *schemas.ScreenNode) error {
	return e.record("scroll:" + nodeName(n))
}

func (e *recordingEffector) NavigateBack(_ context.Context) error {
	return e.record("back")
}

func (e *recordingEffector) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *recordingEffector) Count(call string) int {
	n := 0
	for _, c := range e.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// recordingSleeper never blocks. It records each requested wait and lets a
// test hook in after every one.
type recordingSleeper struct {
	mu      sync.Mutex
	waits   []time.Duration
	onSleep func(n int, d time.Duration)
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.waits = append(s.waits, d)
	n := len(s.waits)
	hook := s.onSleep
	s.mu.Unlock()
	if hook != nil {
		hook(n, d)
	}
	return ctx.Err()
}

func (s *recordingSleeper) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func (s *recordingSleeper) Total() time.Duration {
	var total time.Duration
	for _, d := range s.Waits() {
		total += d
	}
	return total
}

// scriptedSource returns a fixed snapshot and walks through a list of
// foreground packages, repeating the last one.
type scriptedSource struct {
	mu         sync.Mutex
	snap       *schemas.Snapshot
	foreground []string
	polls      int
	observeErr error
}

func (s *scriptedSource) Observe(context.Context) (*schemas.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.observeErr != nil {
		return nil, s.observeErr
	}
	if s.snap == nil {
		return nil, schemas.ErrNoSnapshot
	}
	return s.snap, nil
}

func (s *scriptedSource) ForegroundPackage(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.foreground) == 0 {
		return "", errors.New("no foreground information")
	}
	i := s.polls
	if i >= len(s.foreground) {
		i = len(s.foreground) - 1
	}
	s.polls++
	return s.foreground[i], nil
}

// manualClock is advanced explicitly by tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// -- Harness --

type harness struct {
	engine   *Engine
	session  *SessionContext
	effector *recordingEffector
	sleeper  *recordingSleeper
	source   *scriptedSource
	account  *mocks.MockAccountant
	reporter *observability.MemoryReporter
	metrics  *observability.Metrics
	registry *prometheus.Registry
	clock    *manualClock
	cfg      *config.Config
}

type harnessOption func(*harness, *Dependencies)

// withoutSource makes every fresh observation fall back to the cycle snapshot.
func withoutSource() harnessOption {
	return func(_ *harness, d *Dependencies) { d.Source = nil }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		effector: newRecordingEffector(),
		sleeper:  &recordingSleeper{},
		source:   &scriptedSource{},
		account:  new(mocks.MockAccountant),
		reporter: &observability.MemoryReporter{},
		registry: prometheus.NewRegistry(),
		clock:    newManualClock(),
		cfg:      config.NewDefaultConfig(),
	}
	h.metrics = observability.NewMetricsWithRegistry(h.registry)
	deps := Dependencies{
		Effector:   h.effector,
		Source:     h.source,
		Accountant: h.account,
		Reporter:   h.reporter,
		Metrics:    h.metrics,
		Sleeper:    h.sleeper,
		Clock:      h.clock.Now,
		RandSource: rand.NewSource(7),
	}
	for _, opt := range opts {
		opt(h, &deps)
	}
	h.session = NewSessionContext(h.cfg.Throttle().Window, h.cfg.Verify().MaxParked)
	eng, err := New(zaptest.NewLogger(t), h.cfg, h.session, deps)
	require.NoError(t, err)
	h.engine = eng
	return h
}

// expectCredit registers one expected credit matching amount.
func (h *harness) expectCredit(match func(int) bool) *mock.Call {
	return h.account.On("CreditReward", mock.Anything, mock.MatchedBy(match)).Return(nil).Once()
}

func between(lo, hi int) func(int) bool {
	return func(n int) bool { return n >= lo && n <= hi }
}

func exactly(v int) func(int) bool {
	return func(n int) bool { return n == v }
}
