package schemas

import "fmt"

// -- Candidates --

// CandidateKind is the inferred intent of an actionable element.
type CandidateKind string

const (
	// KindClaim collects a reward that is already earned.
	KindClaim CandidateKind = "CLAIM"
	// KindGo starts a task that earns a reward once completed.
	KindGo CandidateKind = "GO"
)

// DetectionChannel names the pipeline stage that discovered a candidate.
type DetectionChannel string

const (
	ChannelKeyword DetectionChannel = "keyword"
	ChannelSpatial DetectionChannel = "spatial"
	ChannelOCR     DetectionChannel = "ocr"
)

// ActionCandidate is a discovered actionable element. Structural candidates
// target a tree node; OCR candidates target a screen coordinate.
type ActionCandidate struct {
	Kind    CandidateKind    `json:"kind"`
	Channel DetectionChannel `json:"channel"`
	// Node is the structural element that matched, nil for OCR candidates.
	Node *ScreenNode `json:"-"`
	// Point is the tap coordinate for OCR candidates.
	Point Point       `json:"point"`
	Box   BoundingBox `json:"box"`
	// Top is the ranking key (screen Y of the top edge).
	Top int `json:"top"`
	// Keyword is the label-set entry that matched, empty for spatial candidates.
	Keyword string `json:"keyword,omitempty"`
	// Label is the human readable task title, resolved lazily for structural candidates.
	Label string `json:"label,omitempty"`
	// Order is the discovery index used as the ranking tie-breaker.
	Order int `json:"order"`
}

// LowConfidence reports whether completion must be verified before crediting.
func (c ActionCandidate) LowConfidence() bool { return c.Channel == ChannelOCR }

func (c ActionCandidate) String() string {
	label := c.Label
	if label == "" {
		label = c.Keyword
	}
	return fmt.Sprintf("%s/%s top=%d %q", c.Kind, c.Channel, c.Top, label)
}

// -- Rewards --

// RewardOrigin records how an amount was obtained.
type RewardOrigin string

const (
	// RewardParsed was read from on-screen text.
	RewardParsed RewardOrigin = "parsed"
	// RewardEstimated is a bounded random stand-in used for display continuity only.
	RewardEstimated RewardOrigin = "estimated"
	// RewardFixed comes from the task policy, not from the screen.
	RewardFixed RewardOrigin = "fixed"
)

// RewardEvent is emitted at most once per completed task invocation and handed
// to the accounting collaborator. The core keeps no history of it.
type RewardEvent struct {
	Amount int          `json:"amount"`
	Origin RewardOrigin `json:"origin"`
	Label  string       `json:"label,omitempty"`
}

// -- Routing --

// RouteState is a state of the task router.
type RouteState string

const (
	StateIdle       RouteState = "IDLE"
	StateAwaitClick RouteState = "AWAIT_CLICK"
	StateClaimFlow  RouteState = "CLAIM_FLOW"
	StateGoFlow     RouteState = "GO_FLOW"
	StateDone       RouteState = "DONE"
	StateSkipped    RouteState = "SKIPPED"
	StateFailed     RouteState = "FAILED"
	// StateCancelled is entered when the session stops mid-policy.
	StateCancelled RouteState = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s RouteState) Terminal() bool {
	switch s {
	case StateDone, StateSkipped, StateFailed, StateCancelled:
		return true
	}
	return false
}

// RouteOutcome describes what the router did with one candidate.
type RouteOutcome struct {
	Candidate ActionCandidate `json:"candidate"`
	Label     string          `json:"label,omitempty"`
	Policy    string          `json:"policy,omitempty"`
	State     RouteState      `json:"state"`
	Trace     []RouteState    `json:"trace"`
	Reason    string          `json:"reason,omitempty"`
	Reward    *RewardEvent    `json:"reward,omitempty"`
	// Deferred is set when a reward exists but completion could not be verified.
	Deferred bool  `json:"deferred,omitempty"`
	Err      error `json:"-"`
}

// -- Cycles --

// CycleOutcome summarizes one snapshot-to-decision cycle.
type CycleOutcome string

const (
	OutcomeNoSnapshot CycleOutcome = "no_snapshot"
	OutcomeSignedIn   CycleOutcome = "signed_in"
	OutcomeSettled    CycleOutcome = "settled_deferred"
	OutcomeRouted     CycleOutcome = "routed"
	OutcomeScrolled   CycleOutcome = "scrolled"
	OutcomeThrottled  CycleOutcome = "throttled"
	OutcomeIdle       CycleOutcome = "idle"
	OutcomeCancelled  CycleOutcome = "cancelled"
	OutcomePanicked   CycleOutcome = "panicked"
)

// CycleResult is the engine's answer for one snapshot.
type CycleResult struct {
	CycleID    string         `json:"cycleId"`
	Outcome    CycleOutcome   `json:"outcome"`
	Acted      bool           `json:"acted"`
	Candidates int            `json:"candidates"`
	Routes     []RouteOutcome `json:"routes,omitempty"`
	// Reward is the event credited (or parked) during this cycle, if any.
	Reward *RewardEvent `json:"reward,omitempty"`
	Err    error        `json:"-"`
}
