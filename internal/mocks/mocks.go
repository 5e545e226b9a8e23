// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Engine() config.EngineConfig {
	args := m.Called()
	return args.Get(0).(config.EngineConfig)
}

func (m *MockConfig) Detection() config.DetectionConfig {
	args := m.Called()
	return args.Get(0).(config.DetectionConfig)
}

func (m *MockConfig) Policies() config.PoliciesConfig {
	args := m.Called()
	return args.Get(0).(config.PoliciesConfig)
}

func (m *MockConfig) Throttle() config.ThrottleConfig {
	args := m.Called()
	return args.Get(0).(config.ThrottleConfig)
}

func (m *MockConfig) Reward() config.RewardConfig {
	args := m.Called()
	return args.Get(0).(config.RewardConfig)
}

func (m *MockConfig) Verify() config.VerifyConfig {
	args := m.Called()
	return args.Get(0).(config.VerifyConfig)
}

func (m *MockConfig) Ledger() config.LedgerConfig {
	args := m.Called()
	return args.Get(0).(config.LedgerConfig)
}

func (m *MockConfig) Feed() config.FeedConfig {
	args := m.Called()
	return args.Get(0).(config.FeedConfig)
}

func (m *MockConfig) Metrics() config.MetricsConfig {
	args := m.Called()
	return args.Get(0).(config.MetricsConfig)
}

// --- Setters ---

func (m *MockConfig) SetFeedPath(p string)         { m.Called(p) }
func (m *MockConfig) SetFeedFollow(b bool)         { m.Called(b) }
func (m *MockConfig) SetFeedCommandsPath(p string) { m.Called(p) }
func (m *MockConfig) SetLedgerEnabled(b bool)      { m.Called(b) }
func (m *MockConfig) SetMetricsAddr(a string)      { m.Called(a) }

// -- Collaborator Mocks --

// MockEffector mocks schemas.Effector.
type MockEffector struct {
	mock.Mock
}

func (m *MockEffector) ClickPoint(ctx context.Context, p schemas.Point) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockEffector) ClickNode(ctx context.Context, node *schemas.ScreenNode) error {
	return m.Called(ctx, node).Error(0)
}

func (m *MockEffector) FocusNode(ctx context.Context, node *schemas.ScreenNode) error {
	return m.Called(ctx, node).Error(0)
}

func (m *MockEffector) ScrollForward(ctx context.Context, node *schemas.ScreenNode) error {
	return m.Called(ctx, node).Error(0)
}

func (m *MockEffector) NavigateBack(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockScreenSource mocks schemas.ScreenSource.
type MockScreenSource struct {
	mock.Mock
}

func (m *MockScreenSource) Observe(ctx context.Context) (*schemas.Snapshot, error) {
	args := m.Called(ctx)
	snap, _ := args.Get(0).(*schemas.Snapshot)
	return snap, args.Error(1)
}

func (m *MockScreenSource) ForegroundPackage(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// MockAccountant mocks schemas.Accountant.
type MockAccountant struct {
	mock.Mock
}

func (m *MockAccountant) CreditReward(ctx context.Context, amount int) error {
	return m.Called(ctx, amount).Error(0)
}

// MockReporter mocks schemas.Reporter. Messages are not asserted by default;
// set expectations with On("Report", ...) when a test cares.
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Report(msg string) {
	m.Called(msg)
}

// -- Sleeper Mock --

// MockSleeper records every requested wait and returns immediately unless the
// context is already done.
type MockSleeper struct {
	mock.Mock
}

func (m *MockSleeper) Sleep(ctx context.Context, d time.Duration) error {
	args := m.Called(ctx, d)
	if err := ctx.Err(); err != nil {
		return err
	}
	return args.Error(0)
}
