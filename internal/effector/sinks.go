// File: internal/effector/sinks.go
package effector

import (
	"errors"
	"fmt"
	"io"
	"sync"

	json "github.com/json-iterator/go"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ErrClosed is returned by a sink after Close.
var ErrClosed = errors.New("effector sink closed")

// Recorder keeps every command in memory. It backs dry runs and replays,
// where no device is attached.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
	// Reject, when set, refuses matching commands.
	Reject func(Command) bool
}

// Send records cmd.
func (r *Recorder) Send(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Reject != nil && r.Reject(cmd) {
		return fmt.Errorf("dry run refused %s", cmd.Op)
	}
	r.commands = append(r.commands, cmd)
	return nil
}

// Commands returns a copy of everything recorded so far.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// JSONLines writes one JSON document per command. The device bridge tails
// the output and performs the gestures.
type JSONLines struct {
	mu     sync.Mutex
	closer io.Closer
	enc    *json.Encoder
	closed bool
}

// NewJSONLines writes commands to w. If w is an io.Closer, Close closes it.
func NewJSONLines(w io.Writer) *JSONLines {
	s := &JSONLines{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenCommandLog appends commands to path, rotating the file once it passes
// maxSizeMB.
func OpenCommandLog(path string, maxSizeMB int) (*JSONLines, error) {
	if path == "" {
		return nil, errors.New("commands path must be configured")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return NewJSONLines(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 2,
	}), nil
}

// Send encodes cmd as a single line.
func (s *JSONLines) Send(cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.enc.Encode(cmd); err != nil {
		return fmt.Errorf("failed to write command: %w", err)
	}
	return nil
}

// Close stops accepting commands and closes the underlying writer.
func (s *JSONLines) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
