// File: internal/engine/session_context.go
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/throttle"
)

// SessionStats is a point-in-time copy of the session counters.
type SessionStats struct {
	ID          string    `json:"id" yaml:"id"`
	StartedAt   time.Time `json:"startedAt" yaml:"started_at"`
	Running     bool      `json:"running" yaml:"running"`
	SignedIn    bool      `json:"signedIn" yaml:"signed_in"`
	Cycles      int       `json:"cycles" yaml:"cycles"`
	ActedCycles int       `json:"actedCycles" yaml:"acted_cycles"`
	Rewards     int       `json:"rewards" yaml:"rewards"`
	Coins       int       `json:"coins" yaml:"coins"`
	Parked      int       `json:"parked" yaml:"parked"`
	// LastScrollAt is when the fallback scroll last fired, zero if never.
	LastScrollAt time.Time `json:"lastScrollAt" yaml:"last_scroll_at"`
}

// SessionContext is the per-session state of the engine: the scroll throttle,
// the one-shot sign-in flag, parked rewards and counters. It lives from Reset
// to the next Reset and is only mutated by the engine between suspension points.
type SessionContext struct {
	mu sync.Mutex

	id        string
	startedAt time.Time
	running   bool
	signedIn  bool
	throttle  *throttle.Throttle

	parked    []schemas.RewardEvent
	maxParked int

	cycles, acted, rewards, coins int
}

// NewSessionContext creates a fresh session.
func NewSessionContext(window time.Duration, maxParked int) *SessionContext {
	s := &SessionContext{throttle: throttle.New(window), maxParked: maxParked}
	s.Reset(time.Now())
	return s
}

// Reset discards all state and assigns a new session ID.
func (s *SessionContext) Reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = uuid.NewString()
	s.startedAt = now
	s.running = false
	s.signedIn = false
	s.parked = nil
	s.cycles, s.acted, s.rewards, s.coins = 0, 0, 0, 0
	s.throttle.Reset()
}

// Start marks the session running.
func (s *SessionContext) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// Stop marks the session stopped. State is kept until Reset.
func (s *SessionContext) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// ID returns the current session ID.
func (s *SessionContext) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Running reports whether the session is started.
func (s *SessionContext) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SignedIn reports whether today's sign-in was handled in this session.
func (s *SessionContext) SignedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedIn
}

// MarkSignedIn sets the one-shot sign-in flag.
func (s *SessionContext) MarkSignedIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signedIn = true
}

// Throttle returns the fallback scroll throttle.
func (s *SessionContext) Throttle() *throttle.Throttle { return s.throttle }

// ParkReward queues a reward awaiting verification. When the queue is full
// the oldest entry is dropped and returned.
func (s *SessionContext) ParkReward(ev schemas.RewardEvent) (schemas.RewardEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dropped schemas.RewardEvent
	overflow := false
	if s.maxParked > 0 && len(s.parked) >= s.maxParked {
		dropped, overflow = s.parked[0], true
		s.parked = s.parked[1:]
	}
	if s.maxParked > 0 {
		s.parked = append(s.parked, ev)
	} else {
		dropped, overflow = ev, true
	}
	return dropped, overflow
}

// TakeParked removes and returns the oldest parked reward.
func (s *SessionContext) TakeParked() (schemas.RewardEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.parked) == 0 {
		return schemas.RewardEvent{}, false
	}
	ev := s.parked[0]
	s.parked = s.parked[1:]
	return ev, true
}

// Parked returns the number of parked rewards.
func (s *SessionContext) Parked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parked)
}

// RecordCycle counts a finished cycle.
func (s *SessionContext) RecordCycle(acted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	if acted {
		s.acted++
	}
}

// RecordCredit counts a credited reward.
func (s *SessionContext) RecordCredit(amount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewards++
	s.coins += amount
}

// Stats returns a copy of the counters.
func (s *SessionContext) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStats{
		ID:          s.id,
		StartedAt:   s.startedAt,
		Running:     s.running,
		SignedIn:    s.signedIn,
		Cycles:      s.cycles,
		ActedCycles: s.acted,
		Rewards:     s.rewards,
		Coins:       s.coins,
		Parked:      len(s.parked),

		LastScrollAt: s.throttle.LastFired(),
	}
}
