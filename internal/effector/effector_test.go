// File: internal/effector/effector_test.go
package effector

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

func button() *schemas.ScreenNode {
	return &schemas.ScreenNode{
		Text:       "去完成",
		ResourceID: "com.taobao.idlefish:id/task_btn",
		ClassName:  "android.widget.Button",
		Bounds:     schemas.BoundingBox{Left: 820, Top: 430, Right: 1040, Bottom: 510},
		Clickable:  true,
	}
}

func TestEffector_RecordsGesturesInOrder(t *testing.T) {
	rec := &Recorder{}
	eff := New(zap.NewNop(), rec)
	ctx := context.Background()

	require.NoError(t, eff.ClickNode(ctx, button()))
	require.NoError(t, eff.FocusNode(ctx, button()))
	require.NoError(t, eff.ClickPoint(ctx, schemas.Point{X: 940, Y: 470}))
	require.NoError(t, eff.ScrollForward(ctx, nil))
	require.NoError(t, eff.NavigateBack(ctx))

	cmds := rec.Commands()
	require.Len(t, cmds, 5)
	var names []string
	for i, c := range cmds {
		assert.Equal(t, int64(i+1), c.Seq)
		assert.False(t, c.At.IsZero())
		names = append(names, c.String())
	}
	assert.Equal(t, []string{
		"click_node:去完成",
		"focus_node:去完成",
		"click_point@940,470",
		"scroll_forward:<window>",
		"back",
	}, names)
	assert.Equal(t, 820, cmds[0].Target.Bounds.Left)
	assert.True(t, cmds[3].Window)
	assert.Nil(t, cmds[3].Target)
}

func TestEffector_Rejections(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &Recorder{Reject: func(c Command) bool { return c.Op == OpBack }}
	eff := New(zap.New(core), rec)
	ctx := context.Background()

	assert.ErrorIs(t, eff.ClickNode(ctx, nil), schemas.ErrActionRejected)
	assert.ErrorIs(t, eff.FocusNode(ctx, nil), schemas.ErrActionRejected)
	assert.ErrorIs(t, eff.ClickPoint(ctx, schemas.Point{X: -1, Y: 20}), schemas.ErrActionRejected)

	err := eff.NavigateBack(ctx)
	assert.ErrorIs(t, err, schemas.ErrActionRejected)
	assert.ErrorContains(t, err, "dry run refused back")
	assert.Equal(t, 1, logs.FilterMessage("Gesture not dispatched.").Len())
	assert.Empty(t, rec.Commands())
}

func TestEffector_CancelledContext(t *testing.T) {
	rec := &Recorder{}
	eff := New(nil, rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, eff.ClickNode(ctx, button()), context.Canceled)
	assert.Empty(t, rec.Commands())
}

func TestJSONLines_WritesOneCommandPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLines(&buf)
	eff := New(zap.NewNop(), sink)

	require.NoError(t, eff.ClickNode(context.Background(), button()))
	require.NoError(t, eff.ScrollForward(context.Background(), nil))

	sc := bufio.NewScanner(&buf)
	var got []Command
	for sc.Scan() {
		var c Command
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		got = append(got, c)
	}
	require.Len(t, got, 2)
	assert.Equal(t, OpClickNode, got[0].Op)
	assert.Equal(t, "com.taobao.idlefish:id/task_btn", got[0].Target.ResourceID)
	assert.Equal(t, OpScrollForward, got[1].Op)
	assert.True(t, got[1].Window)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.Send(Command{Op: OpBack}), ErrClosed)
	assert.ErrorIs(t, eff.NavigateBack(context.Background()), schemas.ErrActionRejected)
}

func TestOpenCommandLog(t *testing.T) {
	_, err := OpenCommandLog("", 0)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "commands.jsonl")
	sink, err := OpenCommandLog(path, 0)
	require.NoError(t, err)
	eff := New(zap.NewNop(), sink)
	require.NoError(t, eff.NavigateBack(context.Background()))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"op":"back"`)
	assert.Equal(t, byte('\n'), data[len(data)-1])
}
