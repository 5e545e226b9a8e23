// File: internal/engine/engine_test.go
package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/mocks"
)

func TestNew_ValidatesDependencies(t *testing.T) {
	cfg := config.NewDefaultConfig()
	session := NewSessionContext(time.Second, 1)
	eff := newRecordingEffector()
	acct := new(mocks.MockAccountant)

	tests := []struct {
		name    string
		cfg     config.Interface
		session *SessionContext
		deps    Dependencies
		wantErr string
	}{
		{"nil config", nil, session, Dependencies{Effector: eff, Accountant: acct}, "configuration cannot be nil"},
		{"nil session", cfg, nil, Dependencies{Effector: eff, Accountant: acct}, "session context cannot be nil"},
		{"nil effector", cfg, session, Dependencies{Accountant: acct}, "effector cannot be nil"},
		{"nil accountant", cfg, session, Dependencies{Effector: eff}, "accountant cannot be nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := New(zap.NewNop(), tt.cfg, tt.session, tt.deps)
			require.Error(t, err)
			assert.Nil(t, eng)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("defaults fill optional collaborators", func(t *testing.T) {
		eng, err := New(nil, cfg, session, Dependencies{Effector: eff, Accountant: acct})
		require.NoError(t, err)
		assert.Same(t, session, eng.Session())
	})
}

func TestRunCycle_NoSnapshot(t *testing.T) {
	h := newHarness(t)

	for _, snap := range []*schemas.Snapshot{nil, {ID: "blank"}} {
		res := h.engine.RunCycle(context.Background(), snap)
		assert.Equal(t, schemas.OutcomeNoSnapshot, res.Outcome)
		assert.ErrorIs(t, res.Err, schemas.ErrNoSnapshot)
		assert.False(t, res.Acted)
		assert.NotEmpty(t, res.CycleID)
	}
	assert.Empty(t, h.effector.Calls())
	assert.Equal(t, 2, h.session.Stats().Cycles)
}

func TestRunCycle_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := newRoot()
	addRow(root, 400, "看视频赚闲鱼币", "领取奖励")
	res := h.engine.RunCycle(ctx, snapshotOf(root))

	assert.Equal(t, schemas.OutcomeCancelled, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, h.effector.Calls())
	h.account.AssertNotCalled(t, "CreditReward", mock.Anything, mock.Anything)
}

func TestRunCycle_ClaimWithoutNumberCreditsEstimate(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(between(1, 5))

	root := newRoot()
	addRow(root, 400, "看视频赚闲鱼币", "领取奖励")
	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	assert.Equal(t, schemas.OutcomeRouted, res.Outcome)
	assert.True(t, res.Acted)
	require.NotNil(t, res.Reward)
	assert.Equal(t, schemas.RewardEstimated, res.Reward.Origin)
	assert.GreaterOrEqual(t, res.Reward.Amount, 1)
	assert.LessOrEqual(t, res.Reward.Amount, 5)
	assert.Equal(t, "看视频赚闲鱼币", res.Reward.Label)

	require.Len(t, res.Routes, 1)
	assert.Equal(t, []schemas.RouteState{
		schemas.StateIdle, schemas.StateAwaitClick, schemas.StateClaimFlow, schemas.StateDone,
	}, res.Routes[0].Trace)
	assert.Equal(t, []string{"click:领取奖励", "back"}, h.effector.Calls())
	assert.Equal(t, []time.Duration{1200 * time.Millisecond, 600 * time.Millisecond}, h.sleeper.Waits())

	h.account.AssertExpectations(t)
	h.account.AssertNumberOfCalls(t, "CreditReward", 1)
	stats := h.session.Stats()
	assert.Equal(t, 1, stats.Rewards)
	assert.Equal(t, res.Reward.Amount, stats.Coins)
	assert.Equal(t, 1, stats.ActedCycles)

	n, err := testutil.GatherAndCount(h.registry, "taskpilot_engine_cycles_total", "taskpilot_reward_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunCycle_ClaimParsesOnScreenAmount(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(exactly(80))
	h.source.snap = ocrSnapshot(region("恭喜获得 +80", 200, 900, 880, 980))

	root := newRoot()
	addRow(root, 400, "看视频赚闲鱼币", "领取奖励")
	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	require.NotNil(t, res.Reward)
	assert.Equal(t, schemas.RewardParsed, res.Reward.Origin)
	assert.Equal(t, 80, res.Reward.Amount)
	h.account.AssertExpectations(t)
}

func TestRunCycle_ClaimPrecedesGo(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(between(1, 5))

	root := newRoot()
	addRow(root, 300, "浏览指定频道好物", "去完成")
	addRow(root, 800, "看视频赚闲鱼币", "领取奖励")
	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	assert.Equal(t, 2, res.Candidates)
	require.Len(t, res.Routes, 1)
	assert.Equal(t, schemas.KindClaim, res.Routes[0].Candidate.Kind)
	require.NotEmpty(t, h.effector.Calls())
	assert.Equal(t, "click:领取奖励", h.effector.Calls()[0])
	assert.Zero(t, h.effector.Count("click:去完成"))
}

func TestRunCycle_DisallowedTaskIsNeverClicked(t *testing.T) {
	h := newHarness(t)

	root := newRoot()
	addRow(root, 400, "购买宝贝得闲鱼币", "去完成")
	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	require.Len(t, res.Routes, 1)
	route := res.Routes[0]
	assert.Equal(t, schemas.StateSkipped, route.State)
	assert.Equal(t, []schemas.RouteState{schemas.StateIdle, schemas.StateSkipped}, route.Trace)
	assert.NotContains(t, route.Trace, schemas.StateAwaitClick)

	// Nothing acted, so the throttled fallback scroll runs instead.
	assert.Equal(t, schemas.OutcomeScrolled, res.Outcome)
	assert.False(t, res.Acted)
	assert.Equal(t, []string{"scroll:<window>"}, h.effector.Calls())
	assert.Contains(t, h.reporter.Messages(), "跳过任务：购买宝贝得闲鱼币")
}

func TestRunCycle_FailedClickFallsThroughToScroll(t *testing.T) {
	h := newHarness(t)
	h.effector.failures["click:领取奖励"] = errors.New("node detached")
	h.effector.failures["focus:领取奖励"] = errors.New("node detached")

	root := newRoot()
	addRow(root, 400, "看视频赚闲鱼币", "领取奖励")
	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	require.Len(t, res.Routes, 1)
	assert.Equal(t, schemas.StateFailed, res.Routes[0].State)
	assert.ErrorIs(t, res.Routes[0].Err, schemas.ErrClickFailed)
	assert.Equal(t, schemas.OutcomeScrolled, res.Outcome)
	assert.Equal(t, []string{"click:领取奖励", "focus:领取奖励", "scroll:<window>"}, h.effector.Calls())
	h.account.AssertNotCalled(t, "CreditReward", mock.Anything, mock.Anything)
}

func TestRunCycle_FallbackScrollIsThrottled(t *testing.T) {
	h := newHarness(t)

	root := newRoot()
	root.AddChild(&schemas.ScreenNode{Text: "暂无更多任务", Bounds: box(40, 400, 700, 460)})
	snap := snapshotOf(root)

	first := h.engine.RunCycle(context.Background(), snap)
	h.clock.Advance(1000 * time.Millisecond)
	second := h.engine.RunCycle(context.Background(), snap)

	assert.Equal(t, schemas.OutcomeScrolled, first.Outcome)
	assert.Equal(t, schemas.OutcomeThrottled, second.Outcome)
	assert.Equal(t, 1, h.effector.Count("scroll:<window>"))

	h.clock.Advance(2000 * time.Millisecond)
	third := h.engine.RunCycle(context.Background(), snap)
	assert.Equal(t, schemas.OutcomeScrolled, third.Outcome)
	assert.Equal(t, 2, h.effector.Count("scroll:<window>"))
}

func TestRunCycle_FallbackPrefersScrollableContainer(t *testing.T) {
	h := newHarness(t)

	root := newRoot()
	list := &schemas.ScreenNode{ResourceID: "task_list", Scrollable: true, Bounds: box(0, 200, screenWidth, 2400)}
	list.AddChild(&schemas.ScreenNode{Text: "暂无更多任务", Bounds: box(40, 400, 700, 460)})
	root.AddChild(list)

	res := h.engine.RunCycle(context.Background(), snapshotOf(root))
	assert.Equal(t, schemas.OutcomeScrolled, res.Outcome)
	assert.Equal(t, []string{"scroll:task_list"}, h.effector.Calls())
}

func TestRunCycle_BrowsePolicy(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(between(1, 5))

	root := newRoot()
	addRow(root, 400, "浏览指定频道好物", "去完成")
	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	require.Len(t, res.Routes, 1)
	assert.Equal(t, "browse", res.Routes[0].Policy)
	assert.Equal(t, schemas.StateDone, res.Routes[0].State)
	assert.Equal(t, 1, h.effector.Count("click:去完成"))
	assert.Equal(t, 6, h.effector.Count("scroll:<window>"))
	assert.Equal(t, 1, h.effector.Count("back"))

	want := []time.Duration{1200 * time.Millisecond}
	for i := 0; i < 6; i++ {
		want = append(want, 3*time.Second)
	}
	want = append(want, 600*time.Millisecond)
	assert.Equal(t, want, h.sleeper.Waits())
	h.account.AssertExpectations(t)
}

func TestRunCycle_LuckyRedpacketCreditsFixedReward(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(exactly(500))

	root := newRoot()
	addRow(root, 400, "拼手气红包 最高得80币", "去完成")
	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	require.NotNil(t, res.Reward)
	assert.Equal(t, 500, res.Reward.Amount)
	assert.Equal(t, schemas.RewardFixed, res.Reward.Origin)
	assert.Equal(t, "lucky_redpacket", res.Routes[0].Policy)
	// The secondary button is absent, so only the task button and the
	// arbitrary clickable element are clicked.
	assert.Equal(t, 2, h.effector.Count("click:去完成"))
	assert.Equal(t, 6, h.effector.Count("scroll:<window>"))
	assert.Equal(t, 3, h.effector.Count("back"))
	h.account.AssertExpectations(t)
}

func TestRunCycle_CrossAppPolicy(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(between(1, 5))
	h.source.foreground = []string{
		"com.taobao.idlefish",
		"com.eg.android.AlipayGphone",
		"com.eg.android.AlipayGphone",
		"com.taobao.idlefish",
	}

	root := newRoot()
	addRow(root, 400, "去蚂蚁森林收能量", "去完成")
	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	assert.Equal(t, schemas.OutcomeRouted, res.Outcome)
	assert.Equal(t, "cross_app", res.Routes[0].Policy)
	assert.Equal(t, 1, h.effector.Count("back"))
	assert.Equal(t, []time.Duration{
		1200 * time.Millisecond, // click settle
		500 * time.Millisecond,  // one poll before the switch
		2 * time.Second,         // post-switch settle
		800 * time.Millisecond,  // one back before home
	}, h.sleeper.Waits())
	h.account.AssertExpectations(t)
}

func TestRunCycle_StopDuringCrossAppWait(t *testing.T) {
	h := newHarness(t)
	h.source.foreground = []string{"com.taobao.idlefish"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sleeper.onSleep = func(_ int, d time.Duration) {
		if d == 500*time.Millisecond {
			cancel()
		}
	}

	root := newRoot()
	addRow(root, 400, "去八八农场种果树", "去完成")
	res := h.engine.RunCycle(ctx, snapshotOf(root))

	assert.Equal(t, schemas.OutcomeCancelled, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	require.Len(t, res.Routes, 1)
	assert.Equal(t, schemas.StateCancelled, res.Routes[0].State)
	assert.Equal(t, []time.Duration{1200 * time.Millisecond, 500 * time.Millisecond}, h.sleeper.Waits())
	assert.Zero(t, h.effector.Count("back"))
	h.account.AssertNotCalled(t, "CreditReward", mock.Anything, mock.Anything)
}

func TestRunCycle_SignInOncePerSession(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(between(1, 5))

	root := newRoot()
	root.AddChild(&schemas.ScreenNode{Text: "签到", Clickable: true, Bounds: box(860, 200, 1040, 280)})
	addRow(root, 600, "看视频赚闲鱼币", "领取奖励")
	snap := snapshotOf(root)

	first := h.engine.RunCycle(context.Background(), snap)
	assert.Equal(t, schemas.OutcomeSignedIn, first.Outcome)
	assert.True(t, first.Acted)
	assert.True(t, h.session.SignedIn())
	assert.Equal(t, []string{"click:签到"}, h.effector.Calls())

	second := h.engine.RunCycle(context.Background(), snap)
	assert.Equal(t, schemas.OutcomeRouted, second.Outcome)
	assert.Equal(t, 1, h.effector.Count("click:签到"))

	h.session.Reset(h.clock.Now())
	assert.False(t, h.session.SignedIn())
	third := h.engine.RunCycle(context.Background(), snap)
	assert.Equal(t, schemas.OutcomeSignedIn, third.Outcome)
	assert.Equal(t, 2, h.effector.Count("click:签到"))
	h.account.AssertExpectations(t)
}

func TestRunCycle_SignInAlreadyDone(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(between(1, 5))

	root := newRoot()
	root.AddChild(&schemas.ScreenNode{Text: "明日再来", Bounds: box(800, 200, 1040, 280)})
	addRow(root, 600, "看视频赚闲鱼币", "领取奖励")

	res := h.engine.RunCycle(context.Background(), snapshotOf(root))
	assert.True(t, h.session.SignedIn())
	assert.Equal(t, schemas.OutcomeRouted, res.Outcome)
	assert.Equal(t, "click:领取奖励", h.effector.Calls()[0])
}

// OCR rows share one layout: the title on the left, the button on the right.
func ocrTaskRow(top int, title, button string) []schemas.OCRRegion {
	return []schemas.OCRRegion{
		region(title, 40, top, 600, top+60),
		region(button, 860, top, 1020, top+60),
	}
}

func TestRunCycle_OCRFlowCreditsWhenVerified(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(between(1, 5))
	h.source.snap = ocrSnapshot(region("奖励到账", 300, 900, 780, 960))

	res := h.engine.RunCycle(context.Background(), ocrSnapshot(ocrTaskRow(500, "看视频赚闲鱼币奖励", "去完成")...))

	assert.Equal(t, schemas.OutcomeRouted, res.Outcome)
	require.Len(t, res.Routes, 1)
	route := res.Routes[0]
	assert.Equal(t, schemas.ChannelOCR, route.Candidate.Channel)
	assert.Equal(t, "看视频赚闲鱼币奖励", route.Label)
	assert.Equal(t, "generic", route.Policy)
	assert.False(t, route.Deferred)
	assert.Equal(t, "point:940,530", h.effector.Calls()[0])
	assert.Equal(t, 3, h.effector.Count("scroll:<window>"))
	assert.Zero(t, h.session.Parked())
	h.account.AssertExpectations(t)
}

func TestRunCycle_OCRFlowDefersUntilVerified(t *testing.T) {
	h := newHarness(t)
	h.source.snap = ocrSnapshot(region("继续浏览商品", 300, 900, 780, 960))

	first := h.engine.RunCycle(context.Background(), ocrSnapshot(ocrTaskRow(500, "看视频赚闲鱼币奖励", "去完成")...))

	assert.Equal(t, schemas.OutcomeRouted, first.Outcome)
	assert.True(t, first.Acted)
	assert.ErrorIs(t, first.Err, schemas.ErrVerificationFailed)
	require.NotNil(t, first.Reward)
	assert.True(t, first.Routes[0].Deferred)
	assert.Equal(t, 1, h.session.Parked())
	h.account.AssertNotCalled(t, "CreditReward", mock.Anything, mock.Anything)

	h.expectCredit(exactly(first.Reward.Amount))
	done := ocrSnapshot(region("任务已完成", 300, 500, 780, 560))

	second := h.engine.RunCycle(context.Background(), done)
	assert.Equal(t, schemas.OutcomeSettled, second.Outcome)
	assert.True(t, second.Acted)
	require.NotNil(t, second.Reward)
	assert.Equal(t, first.Reward.Amount, second.Reward.Amount)
	assert.Zero(t, h.session.Parked())

	// The completion marker is still visible, but nothing is left to settle.
	third := h.engine.RunCycle(context.Background(), done)
	assert.NotEqual(t, schemas.OutcomeSettled, third.Outcome)
	h.account.AssertNumberOfCalls(t, "CreditReward", 1)
}

func TestRunCycle_GoWithoutLabelIsSkipped(t *testing.T) {
	h := newHarness(t)

	// The button is the whole tree: no row around it to read a title from.
	btn := &schemas.ScreenNode{Text: "去完成", Clickable: true, Package: "com.taobao.idlefish", Bounds: box(860, 400, 1040, 480)}
	res := h.engine.RunCycle(context.Background(), snapshotOf(btn))

	require.Len(t, res.Routes, 1)
	assert.Equal(t, schemas.StateSkipped, res.Routes[0].State)
	assert.Equal(t, "label unresolved", res.Routes[0].Reason)
	assert.Zero(t, h.effector.Count("click:去完成"))
}

func TestRunCycle_NestedTitleRowRunsGenericPolicy(t *testing.T) {
	h := newHarness(t)
	h.expectCredit(between(1, 5))

	root := newRoot()
	list := &schemas.ScreenNode{ClassName: "androidx.recyclerview.widget.RecyclerView", Bounds: box(0, 300, screenWidth, 2000)}
	row := &schemas.ScreenNode{Bounds: box(0, 400, screenWidth, 560)}
	titleBox := &schemas.ScreenNode{Bounds: box(40, 420, 700, 540)}
	titleBox.AddChild(&schemas.ScreenNode{Text: "逛逛闲鱼小店领好礼", Bounds: box(40, 420, 700, 480)})
	row.AddChild(titleBox).AddChild(&schemas.ScreenNode{Text: "去完成", Clickable: true, Bounds: box(820, 430, 1040, 510)})
	list.AddChild(row)
	root.AddChild(list)

	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	require.Len(t, res.Routes, 1)
	assert.Equal(t, "去完成", res.Routes[0].Label)
	assert.Equal(t, "generic", res.Routes[0].Policy)
	assert.Equal(t, schemas.StateDone, res.Routes[0].State)
	assert.Equal(t, 1, h.effector.Count("click:去完成"))
	h.account.AssertExpectations(t)
}

func TestRunCycle_AccountantErrorParksReward(t *testing.T) {
	h := newHarness(t)
	h.account.On("CreditReward", mock.Anything, mock.Anything).Return(errors.New("ledger offline")).Once()

	root := newRoot()
	addRow(root, 400, "看视频赚闲鱼币", "领取奖励")
	res := h.engine.RunCycle(context.Background(), snapshotOf(root))

	assert.Equal(t, schemas.OutcomeRouted, res.Outcome)
	assert.ErrorContains(t, res.Err, "ledger offline")
	require.NotNil(t, res.Reward)
	assert.Zero(t, h.session.Stats().Rewards)
	assert.Equal(t, 1, h.session.Parked())

	h.expectCredit(exactly(res.Reward.Amount))
	settled := h.engine.RunCycle(context.Background(), ocrSnapshot(region("任务已完成", 300, 500, 780, 560)))
	assert.Equal(t, schemas.OutcomeSettled, settled.Outcome)
	require.NotNil(t, settled.Reward)
	assert.Equal(t, res.Reward.Amount, settled.Reward.Amount)
	assert.Zero(t, h.session.Parked())
	h.account.AssertNumberOfCalls(t, "CreditReward", 2)
}
