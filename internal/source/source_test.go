// File: internal/source/source_test.go
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/screen"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const dumpXML = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node text="" class="android.widget.FrameLayout" package="com.taobao.idlefish" bounds="[0,0][1080,2400]" clickable="false" scrollable="false">
    <node text="浏览指定频道好物" class="android.widget.TextView" package="com.taobao.idlefish" bounds="[40,420][700,480]" clickable="false" scrollable="false" />
    <node text="去完成" class="android.widget.Button" package="com.taobao.idlefish" bounds="[820,430][1040,510]" clickable="true" scrollable="false" />
  </node>
</hierarchy>`

func jsonLine(t *testing.T, id, text string) string {
	t.Helper()
	root := &schemas.ScreenNode{Package: "com.taobao.idlefish", Bounds: schemas.BoundingBox{Right: 1080, Bottom: 2400}}
	root.AddChild(&schemas.ScreenNode{Text: text, Bounds: schemas.BoundingBox{Left: 40, Top: 400, Right: 700, Bottom: 460}})
	data, err := screen.EncodeSnapshot(&schemas.Snapshot{ID: id, Width: 1080, Root: root})
	require.NoError(t, err)
	return string(data)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

// -- Latest --

func TestLatest(t *testing.T) {
	var l Latest
	_, err := l.Observe(context.Background())
	assert.ErrorIs(t, err, schemas.ErrNoSnapshot)
	_, err = l.ForegroundPackage(context.Background())
	assert.ErrorIs(t, err, schemas.ErrNoSnapshot)

	snap := &schemas.Snapshot{Package: "com.eg.android.AlipayGphone", Regions: []schemas.OCRRegion{{Text: "蚂蚁森林"}}}
	l.Set(snap)
	got, err := l.Observe(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, got)
	pkg, err := l.ForegroundPackage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "com.eg.android.AlipayGphone", pkg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Observe(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// -- Feed --

func TestNewFeed_RequiresPath(t *testing.T) {
	_, err := NewFeed(nil, config.FeedConfig{}, nil)
	assert.EqualError(t, err, "feed.path must be configured")
}

func TestFeed_ReadsToEndAndCoalesces(t *testing.T) {
	dir := t.TempDir()
	lines := []string{
		jsonLine(t, "a", "第一屏"),
		"",
		"{not json",
		jsonLine(t, "b", "第二屏"),
		jsonLine(t, "c", "第三屏"),
	}
	path := writeFile(t, dir, "feed.jsonl", strings.Join(lines, "\n")+"\n")

	latest := &Latest{}
	feed, err := NewFeed(zaptest.NewLogger(t), config.FeedConfig{Path: path, Follow: false, Poll: true}, latest)
	require.NoError(t, err)
	require.NoError(t, feed.Run(context.Background()))

	// Nobody consumed while the file was read, so only the newest survives.
	var got []string
	for snap := range feed.Events() {
		got = append(got, snap.ID)
	}
	assert.Equal(t, []string{"c"}, got)

	cur, err := feed.Latest().Observe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c", cur.ID)
	assert.NotNil(t, cur.Root.Children[0].Parent(), "decoded trees are linked")
}

func TestFeed_FollowDeliversAppendedSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "live.jsonl", "")

	feed, err := NewFeed(zaptest.NewLogger(t), config.FeedConfig{Path: path, Follow: true, Poll: true}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx) }()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	defer f.Close()

	// The tailer may not be positioned yet, so keep appending until one lands.
	line := jsonLine(t, "live", "新页面") + "\n"
	var snap *schemas.Snapshot
	require.Eventually(t, func() bool {
		if _, werr := f.WriteString(line); werr != nil {
			return false
		}
		select {
		case snap = <-feed.Events():
			return true
		default:
			return false
		}
	}, 10*time.Second, 100*time.Millisecond)
	assert.Equal(t, "live", snap.ID)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
	for range feed.Events() {
	}
}

func TestFeed_MissingFile(t *testing.T) {
	feed, err := NewFeed(zaptest.NewLogger(t), config.FeedConfig{Path: filepath.Join(t.TempDir(), "absent.jsonl"), Poll: true}, nil)
	require.NoError(t, err)
	assert.Error(t, feed.Run(context.Background()))
	_, open := <-feed.Events()
	assert.False(t, open)
}

// -- Replay --

func TestLoadReplay_KeepsOrder(t *testing.T) {
	dir := t.TempDir()
	xmlPath := writeFile(t, dir, "01-tasks.xml", dumpXML)
	jsonlPath := writeFile(t, dir, "02-run.jsonl", jsonLine(t, "", "一")+"\n\n"+jsonLine(t, "named", "二")+"\n")
	jsonPath := writeFile(t, dir, "03-single.json", jsonLine(t, "", "三"))

	snaps, err := LoadReplay(context.Background(), []string{xmlPath, jsonlPath, jsonPath})
	require.NoError(t, err)
	require.Len(t, snaps, 4)

	assert.NotEmpty(t, snaps[0].ID)
	assert.Equal(t, "com.taobao.idlefish", snaps[0].ForegroundPackage())
	assert.NotNil(t, screen.FindText(snaps[0].Root, "去完成"))
	assert.Equal(t, "02-run.jsonl:1", snaps[1].ID)
	assert.Equal(t, "named", snaps[2].ID)
	assert.Equal(t, "03-single.json", snaps[3].ID)
}

func TestLoadReplay_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadReplay(context.Background(), []string{writeFile(t, dir, "notes.txt", "hello")})
	assert.ErrorContains(t, err, "unsupported snapshot file type")

	_, err = LoadReplay(context.Background(), []string{writeFile(t, dir, "bad.jsonl", "{oops\n")})
	assert.ErrorContains(t, err, "line 1")

	_, err = LoadReplay(context.Background(), []string{filepath.Join(dir, "missing.json")})
	assert.Error(t, err)
}

func TestEmit(t *testing.T) {
	snaps := []*schemas.Snapshot{{ID: "1"}, {ID: "2"}, {ID: "3"}}

	var got []string
	for s := range Emit(context.Background(), snaps) {
		got = append(got, s.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, got)

	ctx, cancel := context.WithCancel(context.Background())
	ch := Emit(ctx, snaps)
	first := <-ch
	assert.Equal(t, "1", first.ID)
	cancel()
	for range ch {
	}
}
