// File: internal/verify/verifier.go
package verify

import (
	"strings"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/screen"
)

// Verifier confirms task completion by looking for completion markers.
type Verifier struct {
	keywords []string
}

// New creates a verifier for the given completion keywords.
func New(keywords []string) *Verifier {
	return &Verifier{keywords: append([]string(nil), keywords...)}
}

// Verified reports whether any completion keyword is visible in snap.
func (v *Verifier) Verified(snap *schemas.Snapshot) bool {
	_, ok := v.Match(snap)
	return ok
}

// Match returns the first completion keyword visible in snap.
func (v *Verifier) Match(snap *schemas.Snapshot) (string, bool) {
	for _, text := range screen.Texts(snap) {
		for _, kw := range v.keywords {
			if kw != "" && strings.Contains(text, kw) {
				return kw, true
			}
		}
	}
	return "", false
}
