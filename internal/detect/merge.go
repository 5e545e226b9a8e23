// File: internal/detect/merge.go
package detect

import (
	"sort"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/screen"
)

// Merge collapses candidates that represent the same physical button. Two
// candidates are the same button when they resolve to the same click target,
// share an identical box, or one's centre lies inside the other's box. The
// first candidate in input order wins.
func Merge(cands []schemas.ActionCandidate, maxHops int) []schemas.ActionCandidate {
	out := make([]schemas.ActionCandidate, 0, len(cands))
	targets := make([]*schemas.ScreenNode, 0, len(cands))
	for _, c := range cands {
		target := clickTarget(c, maxHops)
		dup := false
		for i, kept := range out {
			if sameButton(c, target, kept, targets[i]) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		out = append(out, c)
		targets = append(targets, target)
	}
	return out
}

// Rank orders candidates top to bottom. The sort is stable so ties keep the
// order in which they were discovered.
func Rank(cands []schemas.ActionCandidate) []schemas.ActionCandidate {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Top < cands[j].Top })
	return cands
}

func clickTarget(c schemas.ActionCandidate, maxHops int) *schemas.ScreenNode {
	if c.Node == nil {
		return nil
	}
	if t := screen.ClickTarget(c.Node, maxHops); t != nil {
		return t
	}
	return c.Node
}

func sameButton(a schemas.ActionCandidate, aTarget *schemas.ScreenNode, b schemas.ActionCandidate, bTarget *schemas.ScreenNode) bool {
	if aTarget != nil && aTarget == bTarget {
		return true
	}
	if a.Box.Empty() || b.Box.Empty() {
		return false
	}
	if a.Box == b.Box {
		return true
	}
	return b.Box.Contains(a.Box.CenterX(), a.Box.CenterY()) || a.Box.Contains(b.Box.CenterX(), b.Box.CenterY())
}
