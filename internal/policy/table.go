// File: internal/policy/table.go
package policy

import (
	"strings"
	"time"

	"github.com/xkilldash9x/taskpilot/internal/config"
)

// Kind tags the completion policy chosen for a task label.
type Kind string

const (
	KindBrowse         Kind = "browse"
	KindCrossApp       Kind = "cross_app"
	KindSearch         Kind = "search"
	KindLuckyRedpacket Kind = "lucky_redpacket"
	KindGeneric        Kind = "generic"
)

// Op is one primitive a policy step performs.
type Op string

const (
	// OpClickText clicks the first element containing Step.Text.
	OpClickText Op = "click_text"
	// OpClickAny clicks the first clickable element in depth-first order.
	OpClickAny Op = "click_any"
	// OpSettle waits Step.Duration, or the click settle interval when zero.
	OpSettle Op = "settle"
	// OpIdleScroll scrolls at the idle cadence for Step.Duration.
	OpIdleScroll Op = "idle_scroll"
	// OpBack navigates back Step.Count times.
	OpBack Op = "back"
	// OpAwaitForeign polls until a foreign app is in the foreground.
	OpAwaitForeign Op = "await_foreign"
	// OpReturnHome navigates back until the home app is in the foreground.
	OpReturnHome Op = "return_home"
)

// Step is one entry of a policy's step sequence.
type Step struct {
	Op       Op            `yaml:"op"`
	Text     string        `yaml:"text,omitempty"`
	Duration time.Duration `yaml:"duration,omitempty"`
	Count    int           `yaml:"count,omitempty"`
}

// Plan is the complete, read-only description of one policy.
type Plan struct {
	Kind     Kind     `yaml:"kind"`
	Patterns []string `yaml:"patterns,omitempty"`
	Steps    []Step   `yaml:"steps"`
	// FixedReward, when positive, replaces any text-derived amount.
	FixedReward int `yaml:"fixed_reward,omitempty"`
}

// CrossApp parameterizes the foreground polling of cross-app tasks.
type CrossApp struct {
	ForeignPackages []string      `yaml:"foreign_packages"`
	HomePackage     string        `yaml:"home_package"`
	SwitchTimeout   time.Duration `yaml:"switch_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxBacks        int           `yaml:"max_backs"`
	BackInterval    time.Duration `yaml:"back_interval"`
}

// IsForeign reports whether pkg belongs to one of the foreign apps. Matching
// is a case-insensitive substring test.
func (c CrossApp) IsForeign(pkg string) bool {
	if pkg == "" || pkg == c.HomePackage {
		return false
	}
	lower := strings.ToLower(pkg)
	for _, f := range c.ForeignPackages {
		if f != "" && strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// IsHome reports whether pkg is the app the tasks live in.
func (c CrossApp) IsHome(pkg string) bool { return pkg != "" && pkg == c.HomePackage }

// Table maps task labels to policies. It is immutable after construction.
type Table struct {
	disallow []string
	// ordered is consulted front to back; the generic plan is the fallback.
	ordered  []Plan
	generic  Plan
	crossApp CrossApp
}

// NewTable builds the policy table from configuration.
func NewTable(cfg config.PoliciesConfig) *Table {
	return &Table{
		disallow: append([]string(nil), cfg.Disallow...),
		ordered: []Plan{
			{
				Kind:     KindBrowse,
				Patterns: cfg.Browse.Patterns,
				Steps: []Step{
					{Op: OpIdleScroll, Duration: cfg.Browse.Duration},
					{Op: OpBack, Count: cfg.Browse.Backs},
				},
			},
			{
				Kind:     KindCrossApp,
				Patterns: cfg.CrossApp.Patterns,
				Steps: []Step{
					{Op: OpAwaitForeign},
					{Op: OpSettle, Duration: cfg.CrossApp.Settle},
					{Op: OpReturnHome},
				},
			},
			{
				Kind:     KindSearch,
				Patterns: cfg.Search.Patterns,
				Steps: []Step{
					{Op: OpClickAny},
					{Op: OpIdleScroll, Duration: cfg.Search.Duration},
					{Op: OpBack, Count: cfg.Search.Backs},
				},
			},
			{
				Kind:     KindLuckyRedpacket,
				Patterns: cfg.LuckyRedpacket.Patterns,
				Steps: []Step{
					{Op: OpClickText, Text: cfg.LuckyRedpacket.SecondaryButton},
					{Op: OpSettle},
					{Op: OpClickAny},
					{Op: OpIdleScroll, Duration: cfg.LuckyRedpacket.Duration},
					{Op: OpBack, Count: cfg.LuckyRedpacket.Backs},
				},
				FixedReward: cfg.LuckyRedpacket.FixedReward,
			},
		},
		generic: Plan{
			Kind: KindGeneric,
			Steps: []Step{
				{Op: OpIdleScroll, Duration: cfg.Generic.Duration},
				{Op: OpBack, Count: cfg.Generic.Backs},
			},
		},
		crossApp: CrossApp{
			ForeignPackages: cfg.CrossApp.ForeignPackages,
			HomePackage:     cfg.CrossApp.HomePackage,
			SwitchTimeout:   cfg.CrossApp.SwitchTimeout,
			PollInterval:    cfg.CrossApp.PollInterval,
			MaxBacks:        cfg.CrossApp.MaxBacks,
			BackInterval:    cfg.CrossApp.BackInterval,
		},
	}
}

// DefaultTable is the table built from the default configuration.
func DefaultTable() *Table {
	return NewTable(config.NewDefaultConfig().Policies())
}

// Disallowed reports the first disallow-listed phrase found in label.
func (t *Table) Disallowed(label string) (string, bool) {
	for _, d := range t.disallow {
		if d != "" && strings.Contains(label, d) {
			return d, true
		}
	}
	return "", false
}

// Classify returns the policy kind for a label. The first plan with a
// matching pattern wins; anything else is generic.
func (t *Table) Classify(label string) Kind {
	return t.Lookup(label).Kind
}

// Lookup returns the plan for a label.
func (t *Table) Lookup(label string) Plan {
	for _, p := range t.ordered {
		for _, pat := range p.Patterns {
			if pat != "" && strings.Contains(label, pat) {
				return p
			}
		}
	}
	return t.generic
}

// planOf returns the plan of a given kind.
func (t *Table) planOf(kind Kind) (Plan, bool) {
	if kind == KindGeneric {
		return t.generic, true
	}
	for _, p := range t.ordered {
		if p.Kind == kind {
			return p, true
		}
	}
	return Plan{}, false
}

// Plans lists every plan in evaluation order, generic last.
func (t *Table) Plans() []Plan {
	out := make([]Plan, 0, len(t.ordered)+1)
	out = append(out, t.ordered...)
	return append(out, t.generic)
}

// CrossApp returns the cross-app polling parameters.
func (t *Table) CrossApp() CrossApp { return t.crossApp }

// DisallowList returns a copy of the disallow phrases.
func (t *Table) DisallowList() []string { return append([]string(nil), t.disallow...) }
