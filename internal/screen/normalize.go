// File: internal/screen/normalize.go
package screen

import (
	"strings"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Observations is the normalized view of one snapshot, split by source.
type Observations struct {
	Structural []schemas.ElementObservation
	OCR        []schemas.ElementObservation
}

// Empty reports whether neither channel produced anything.
func (o Observations) Empty() bool {
	return len(o.Structural) == 0 && len(o.OCR) == 0
}

// Normalize converts a snapshot into uniform element observations. A nil or
// empty snapshot yields an empty result.
func Normalize(snap *schemas.Snapshot) Observations {
	if snap.Empty() {
		return Observations{}
	}
	return Observations{
		Structural: NormalizeTree(snap.Root),
		OCR:        NormalizeOCR(snap.Regions),
	}
}

// NormalizeTree flattens the tree in depth-first pre-order. Every node is
// emitted, including containers without text, because the spatial channel
// needs the clickable ones. Boxes are clamped so they are never negative.
func NormalizeTree(root *schemas.ScreenNode) []schemas.ElementObservation {
	if root == nil {
		return []schemas.ElementObservation{}
	}
	out := make([]schemas.ElementObservation, 0, 64)
	root.Walk(func(n *schemas.ScreenNode) bool {
		out = append(out, schemas.ElementObservation{
			Text:        strings.TrimSpace(n.Text),
			Description: strings.TrimSpace(n.Description),
			Box:         n.Bounds.Normalized(),
			Clickable:   n.Clickable,
			Source:      schemas.SourceStructural,
			Node:        n,
			Order:       len(out),
		})
		return true
	})
	return out
}

// NormalizeOCR converts recognized text regions. Blank lines are dropped;
// OCR observations are never clickable themselves.
func NormalizeOCR(regions []schemas.OCRRegion) []schemas.ElementObservation {
	out := make([]schemas.ElementObservation, 0, len(regions))
	for _, r := range regions {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		out = append(out, schemas.ElementObservation{
			Text:   text,
			Box:    r.Box.Normalized(),
			Source: schemas.SourceOCR,
			Order:  len(out),
		})
	}
	return out
}

// Texts collects every non-blank text and description in the snapshot, tree
// first, then OCR regions. It is the corpus searched for rewards and
// completion markers.
func Texts(snap *schemas.Snapshot) []string {
	if snap.Empty() {
		return nil
	}
	var out []string
	snap.Root.Walk(func(n *schemas.ScreenNode) bool {
		if t := strings.TrimSpace(n.Text); t != "" {
			out = append(out, t)
		}
		if d := strings.TrimSpace(n.Description); d != "" {
			out = append(out, d)
		}
		return true
	})
	for _, r := range snap.Regions {
		if t := strings.TrimSpace(r.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// FindText returns the first node, in pre-order, whose text or description
// contains s.
func FindText(root *schemas.ScreenNode, s string) *schemas.ScreenNode {
	var found *schemas.ScreenNode
	root.Walk(func(n *schemas.ScreenNode) bool {
		if n.HasText(s) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindClickable returns the first clickable node in pre-order.
func FindClickable(root *schemas.ScreenNode) *schemas.ScreenNode {
	var found *schemas.ScreenNode
	root.Walk(func(n *schemas.ScreenNode) bool {
		if n.Clickable {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindScrollable returns the first scrollable node in breadth-first order, so
// the outermost list wins over nested carousels.
func FindScrollable(root *schemas.ScreenNode) *schemas.ScreenNode {
	var found *schemas.ScreenNode
	root.WalkBreadthFirst(func(n *schemas.ScreenNode) bool {
		if n.Scrollable {
			found = n
			return false
		}
		return true
	})
	return found
}

// ClickTarget climbs from n to the nearest clickable ancestor, counting n as
// the first hop. It returns nil when none is found within maxHops.
func ClickTarget(n *schemas.ScreenNode, maxHops int) *schemas.ScreenNode {
	cur := n
	for i := 0; i < maxHops && cur != nil; i++ {
		if cur.Clickable {
			return cur
		}
		cur = cur.Parent()
	}
	return nil
}
