// File: internal/source/feed.go
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/screen"
)

// Feed tails a JSONL file where the device bridge appends one snapshot per
// screen change. Events are coalesced: if the consumer is still busy with a
// cycle, only the newest snapshot is kept.
type Feed struct {
	logger *zap.Logger
	cfg    config.FeedConfig
	latest *Latest
	events chan *schemas.Snapshot
	now    func() time.Time
}

// NewFeed creates a feed for cfg.Path. latest may be nil.
func NewFeed(logger *zap.Logger, cfg config.FeedConfig, latest *Latest) (*Feed, error) {
	if cfg.Path == "" {
		return nil, errors.New("feed.path must be configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if latest == nil {
		latest = &Latest{}
	}
	return &Feed{
		logger: logger.Named("feed"),
		cfg:    cfg,
		latest: latest,
		events: make(chan *schemas.Snapshot, 1),
		now:    time.Now,
	}, nil
}

// Events is closed when Run returns.
func (f *Feed) Events() <-chan *schemas.Snapshot { return f.events }

// Latest returns the holder updated with every decoded snapshot.
func (f *Feed) Latest() *Latest { return f.latest }

// Run tails the file until ctx is done or, when not following, until EOF.
func (f *Feed) Run(ctx context.Context) error {
	defer close(f.events)

	tailCfg := tail.Config{
		Follow:    f.cfg.Follow,
		ReOpen:    f.cfg.Follow,
		MustExist: true,
		Poll:      f.cfg.Poll,
		Logger:    tail.DiscardingLogger,
	}
	if f.cfg.Follow {
		// A live feed only cares about screens from now on.
		tailCfg.Location = &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	}
	t, err := tail.TailFile(f.cfg.Path, tailCfg)
	if err != nil {
		return fmt.Errorf("failed to tail snapshot feed: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	f.logger.Info("Following snapshot feed.", zap.String("path", f.cfg.Path), zap.Bool("follow", f.cfg.Follow))
	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Stopping snapshot feed.")
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				f.logger.Info("Snapshot feed reached its end.")
				return nil
			}
			if line.Err != nil {
				f.logger.Warn("Error reading snapshot feed.", zap.Error(line.Err))
				continue
			}
			f.handle(line.Text, line.Time)
		}
	}
}

func (f *Feed) handle(text string, at time.Time) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if at.IsZero() {
		at = f.now()
	}
	snap, err := screen.Decode([]byte(text), at)
	if err != nil {
		f.logger.Warn("Skipping undecodable snapshot.", zap.Error(err))
		return
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = at
	}
	f.latest.Set(snap)
	f.offer(snap)
}

// offer replaces any pending snapshot with snap. Feed is the only sender, so
// after draining there is always room.
func (f *Feed) offer(snap *schemas.Snapshot) {
	select {
	case f.events <- snap:
		return
	default:
	}
	select {
	case stale := <-f.events:
		f.logger.Debug("Coalescing snapshot.", zap.String("dropped", stale.ID), zap.String("kept", snap.ID))
	default:
	}
	select {
	case f.events <- snap:
	default:
	}
}
