// File: internal/observability/reporter.go
package observability

import (
	"sync"

	"go.uber.org/zap"
)

// ZapReporter forwards progress strings to a zap logger at info level.
type ZapReporter struct {
	logger *zap.Logger
}

// NewZapReporter wraps logger. A nil logger falls back to the global one.
func NewZapReporter(logger *zap.Logger) *ZapReporter {
	if logger == nil {
		logger = GetLogger()
	}
	return &ZapReporter{logger: logger.With(zap.String("component", "reporter"))}
}

// Report logs msg.
func (r *ZapReporter) Report(msg string) {
	r.logger.Info(msg)
}

// MemoryReporter keeps every message in order. It is used by the replay
// command to print a transcript and by tests.
type MemoryReporter struct {
	mu       sync.Mutex
	messages []string
}

// Report records msg.
func (r *MemoryReporter) Report(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns a copy of the recorded messages.
func (r *MemoryReporter) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
