// File: internal/source/replay.go
package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/screen"
)

const maxReplayLine = 8 << 20

// LoadReplay reads recorded snapshots from .xml, .json and .jsonl files. Files
// are parsed concurrently; the result keeps argument order, and line order
// within a .jsonl file.
func LoadReplay(ctx context.Context, paths []string) ([]*schemas.Snapshot, error) {
	perFile := make([][]*schemas.Snapshot, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snaps, err := loadFile(p)
			if err != nil {
				return fmt.Errorf("replay %s: %w", p, err)
			}
			perFile[i] = snaps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []*schemas.Snapshot
	for _, snaps := range perFile {
		out = append(out, snaps...)
	}
	return out, nil
}

func loadFile(path string) ([]*schemas.Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	takenAt := info.ModTime()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return decodeLines(data, takenAt, filepath.Base(path))
	case ".xml", ".json":
		snap, err := screen.Decode(data, takenAt)
		if err != nil {
			return nil, err
		}
		if snap.ID == "" {
			snap.ID = filepath.Base(path)
		}
		return []*schemas.Snapshot{snap}, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot file type %q", filepath.Ext(path))
	}
}

func decodeLines(data []byte, takenAt time.Time, name string) ([]*schemas.Snapshot, error) {
	var out []*schemas.Snapshot
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), maxReplayLine)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		snap, err := screen.Decode(line, takenAt)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if snap.ID == "" {
			snap.ID = fmt.Sprintf("%s:%d", name, n)
		}
		out = append(out, snap)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Emit sends snaps one by one on an unbuffered channel, so the next snapshot
// is only handed over once the consumer is ready for it. The channel is
// closed once everything is sent or ctx is done.
func Emit(ctx context.Context, snaps []*schemas.Snapshot) <-chan *schemas.Snapshot {
	out := make(chan *schemas.Snapshot)
	go func() {
		defer close(out)
		for _, s := range snaps {
			select {
			case <-ctx.Done():
				return
			case out <- s:
			}
		}
	}()
	return out
}
