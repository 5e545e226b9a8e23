// File: internal/source/latest.go
package source

import (
	"context"
	"sync"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Latest holds the most recent snapshot and serves it as the engine's screen
// source while a policy is running.
type Latest struct {
	mu   sync.RWMutex
	snap *schemas.Snapshot
}

// Set replaces the current snapshot.
func (l *Latest) Set(snap *schemas.Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = snap
}

// Observe returns the current snapshot.
func (l *Latest) Observe(ctx context.Context) (*schemas.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.snap.Empty() {
		return nil, schemas.ErrNoSnapshot
	}
	return l.snap, nil
}

// ForegroundPackage returns the package of the current snapshot.
func (l *Latest) ForegroundPackage(ctx context.Context) (string, error) {
	snap, err := l.Observe(ctx)
	if err != nil {
		return "", err
	}
	return snap.ForegroundPackage(), nil
}
