// File: internal/detect/keywords.go
package detect

import (
	"strings"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// Keywords holds the fixed label sets used to classify button texts.
type Keywords struct {
	Go    []string
	Claim []string
	// Exclude vetoes a match outright, e.g. "已领取" must not read as "领取".
	Exclude []string
}

// KeywordsFromConfig builds the label sets from the detection configuration.
func KeywordsFromConfig(cfg config.DetectionConfig) Keywords {
	return Keywords{Go: cfg.GoKeywords, Claim: cfg.ClaimKeywords, Exclude: cfg.ExcludeKeywords}
}

// Match classifies the first of texts that contains a keyword. GO labels are
// checked before CLAIM labels; keywords are tried in list order.
func (k Keywords) Match(texts ...string) (schemas.CandidateKind, string, bool) {
	for _, t := range texts {
		if t == "" || k.excluded(t) {
			continue
		}
		if kw, ok := containsAny(t, k.Go); ok {
			return schemas.KindGo, kw, true
		}
		if kw, ok := containsAny(t, k.Claim); ok {
			return schemas.KindClaim, kw, true
		}
	}
	return "", "", false
}

// KeywordOnly reports whether t is nothing more than one of the button labels.
func (k Keywords) KeywordOnly(t string) bool {
	t = strings.TrimSpace(t)
	for _, set := range [][]string{k.Go, k.Claim, k.Exclude} {
		for _, kw := range set {
			if t == kw {
				return true
			}
		}
	}
	return false
}

// Vetoed reports whether any of texts carries an exclude marker. A vetoed
// element is never a candidate, whichever channel looks at it.
func (k Keywords) Vetoed(texts ...string) bool {
	for _, t := range texts {
		if t != "" && k.excluded(t) {
			return true
		}
	}
	return false
}

func (k Keywords) excluded(t string) bool {
	_, ok := containsAny(t, k.Exclude)
	return ok
}

func containsAny(t string, set []string) (string, bool) {
	for _, kw := range set {
		if kw != "" && strings.Contains(t, kw) {
			return kw, true
		}
	}
	return "", false
}
