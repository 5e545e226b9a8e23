// File: internal/ledger/tally.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

const dayLayout = "2006-01-02"

// ErrNoStore is returned by operations that need persistence when the
// ledger runs in memory only.
var ErrNoStore = errors.New("ledger store is not configured")

// Entry is one credited reward as persisted by a Store.
type Entry struct {
	ID         uuid.UUID
	SessionID  string
	Amount     int
	CreditedAt time.Time
	Day        string
}

// Totals is the credited sum for one day and overall.
type Totals struct {
	Day   string `json:"day" yaml:"day"`
	Today int    `json:"today" yaml:"today"`
	Total int    `json:"total" yaml:"total"`
}

// Store persists credited rewards.
type Store interface {
	Record(ctx context.Context, e Entry) error
	Totals(ctx context.Context, day string) (Totals, error)
}

// Option configures a Tally.
type Option func(*Tally)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tally) { t.now = now }
}

// WithStore persists every credit before it is counted.
func WithStore(s Store) Option {
	return func(t *Tally) { t.store = s }
}

// WithSessionID tags persisted entries.
func WithSessionID(id string) Option {
	return func(t *Tally) { t.sessionID = id }
}

// Tally is the accounting collaborator. It keeps today's and the cumulative
// sum, and resets the daily sum when the local date changes.
type Tally struct {
	mu        sync.Mutex
	logger    *zap.Logger
	reporter  schemas.Reporter
	store     Store
	now       func() time.Time
	sessionID string

	day   string
	today int
	total int
}

var _ schemas.Accountant = (*Tally)(nil)

// NewTally creates an empty tally. reporter may be nil.
func NewTally(logger *zap.Logger, reporter schemas.Reporter, opts ...Option) *Tally {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tally{
		logger:   logger.Named("ledger"),
		reporter: reporter,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.day = t.now().Format(dayLayout)
	return t
}

// Load seeds the sums from the store, if one is configured.
func (t *Tally) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.day = t.now().Format(dayLayout)
	totals, err := t.store.Totals(ctx, t.day)
	if err != nil {
		return fmt.Errorf("failed to load ledger totals: %w", err)
	}
	t.today, t.total = totals.Today, totals.Total
	t.logger.Info("Ledger totals loaded.", zap.String("day", t.day), zap.Int("today", t.today), zap.Int("total", t.total))
	return nil
}

// CreditReward counts amount. With a store, the entry is persisted first and
// nothing is counted if that fails.
func (t *Tally) CreditReward(ctx context.Context, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rollover(now)

	if t.store != nil {
		entry := Entry{
			ID:         uuid.New(),
			SessionID:  t.sessionID,
			Amount:     amount,
			CreditedAt: now,
			Day:        t.day,
		}
		if err := t.store.Record(ctx, entry); err != nil {
			return fmt.Errorf("failed to persist credit: %w", err)
		}
	}

	t.today += amount
	t.total += amount
	if t.reporter != nil {
		t.reporter.Report(fmt.Sprintf("reward credited +%d (today: %d, total: %d)", amount, t.today, t.total))
	}
	t.logger.Debug("Reward counted.", zap.Int("amount", amount), zap.Int("today", t.today), zap.Int("total", t.total))
	return nil
}

// Totals returns the current sums. The daily sum reads zero once the date
// has changed, even before the next credit.
func (t *Tally) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollover(t.now())
	return Totals{Day: t.day, Today: t.today, Total: t.total}
}

func (t *Tally) rollover(now time.Time) {
	day := now.Format(dayLayout)
	if day == t.day {
		return
	}
	t.logger.Info("New day, resetting daily reward sum.", zap.String("previous", t.day), zap.Int("previous_sum", t.today))
	t.day = day
	t.today = 0
}
