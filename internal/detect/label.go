// File: internal/detect/label.go
package detect

import (
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// LabelResolver finds the human readable title of a task row.
type LabelResolver struct {
	keywords Keywords
	maxClimb int
}

// NewLabelResolver creates a resolver. maxClimb is how many extra levels it may
// climb when a row only carries the button's own label.
func NewLabelResolver(k Keywords, maxClimb int) *LabelResolver {
	if maxClimb < 0 {
		maxClimb = 0
	}
	return &LabelResolver{keywords: k, maxClimb: maxClimb}
}

// Resolve collects the parent's text and every child's text and description,
// then picks the longest non-blank one. Ties go to the first seen. When that
// is only a button label it climbs for a better title, falling back to the
// row-level text if none turns up. It returns false when the node has no
// parent or every text is blank.
func (r *LabelResolver) Resolve(node *schemas.ScreenNode) (string, bool) {
	cur, fallback := node, ""
	for level := 0; level <= r.maxClimb; level++ {
		parent := cur.Parent()
		if parent == nil {
			break
		}
		label := longestText(parent)
		if label != "" && !r.keywords.KeywordOnly(label) {
			return label, true
		}
		if fallback == "" {
			fallback = label
		}
		cur = parent
	}
	return fallback, fallback != ""
}

// ResolveLabel applies the plain row heuristic without climbing.
func ResolveLabel(node *schemas.ScreenNode) (string, bool) {
	return (&LabelResolver{}).Resolve(node)
}

func longestText(parent *schemas.ScreenNode) string {
	best, bestLen := "", 0
	consider := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if n := utf8.RuneCountInString(s); n > bestLen {
			best, bestLen = s, n
		}
	}
	consider(parent.Text)
	for _, c := range parent.Children {
		if c == nil {
			continue
		}
		consider(c.Text)
		consider(c.Description)
	}
	return best
}
