// File: internal/detect/channels.go
package detect

import (
	"math"
	"unicode/utf8"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Input is everything a detection channel may look at for one snapshot.
type Input struct {
	Snapshot    *schemas.Snapshot
	Structural  []schemas.ElementObservation
	OCR         []schemas.ElementObservation
	ScreenWidth int
}

// Channel is one independent detection stage. Channels are pure: they read the
// input and return raw, unranked candidates.
type Channel func(in Input) []schemas.ActionCandidate

// KeywordChannel turns structural elements whose text or description contains
// a GO or CLAIM label into candidates of that kind.
func KeywordChannel(k Keywords) Channel {
	return func(in Input) []schemas.ActionCandidate {
		var out []schemas.ActionCandidate
		for _, o := range in.Structural {
			kind, kw, ok := k.Match(o.Text, o.Description)
			if !ok {
				continue
			}
			out = append(out, structuralCandidate(o, kind, schemas.ChannelKeyword, kw))
		}
		return out
	}
}

// SpatialChannel recovers task buttons whose label failed keyword matching: a
// clickable element in the right-hand region of the screen with a long title
// among its siblings is read as a GO affordance.
func SpatialChannel(k Keywords, rightRatio float64, minTitleRunes int) Channel {
	return func(in Input) []schemas.ActionCandidate {
		if in.ScreenWidth <= 0 {
			return nil
		}
		threshold := int(math.Ceil(float64(in.ScreenWidth) * rightRatio))
		var out []schemas.ActionCandidate
		for _, o := range in.Structural {
			if !o.Clickable || o.Node == nil || o.Box.Left < threshold {
				continue
			}
			if k.Vetoed(o.Text, o.Description) || subtreeVetoed(k, o.Node) {
				continue
			}
			// Elements already resolved by the keyword channel are skipped.
			if _, _, ok := k.Match(o.Text, o.Description); ok {
				continue
			}
			if !hasLongSibling(o.Node, minTitleRunes) {
				continue
			}
			out = append(out, structuralCandidate(o, schemas.KindGo, schemas.ChannelSpatial, ""))
		}
		return out
	}
}

// OCRChannel matches recognized regions against the label sets and attaches
// the nearest qualifying text on the left as the label.
func OCRChannel(k Keywords, minLabelRunes, maxVerticalOffset int, horizontalWeight float64) Channel {
	return func(in Input) []schemas.ActionCandidate {
		var out []schemas.ActionCandidate
		for i, o := range in.OCR {
			kind, kw, ok := k.Match(o.Text)
			if !ok {
				continue
			}
			out = append(out, schemas.ActionCandidate{
				Kind:    kind,
				Channel: schemas.ChannelOCR,
				Point:   schemas.Point{X: o.Box.CenterX(), Y: o.Box.CenterY()},
				Box:     o.Box,
				Top:     o.Box.Top,
				Keyword: kw,
				Label:   nearestTitle(in.OCR, i, minLabelRunes, maxVerticalOffset, horizontalWeight),
				Order:   o.Order,
			})
		}
		return out
	}
}

// nearestTitle scores every region strictly left of the reference by
// vertical centre distance plus a weighted horizontal gap. Lowest wins.
func nearestTitle(all []schemas.ElementObservation, ref, minRunes, maxDy int, weight float64) string {
	r := all[ref].Box
	best, bestScore := "", math.MaxFloat64
	for i, t := range all {
		if i == ref {
			continue
		}
		dx := r.Left - t.Box.Right
		if dx <= 0 {
			continue
		}
		if utf8.RuneCountInString(t.Text) < minRunes {
			continue
		}
		dy := r.CenterY() - t.Box.CenterY()
		if dy < 0 {
			dy = -dy
		}
		if maxDy > 0 && dy > maxDy {
			continue
		}
		score := float64(dy) + float64(dx)*weight
		if score < bestScore {
			best, bestScore = t.Text, score
		}
	}
	return best
}

// subtreeVetoed catches clickable containers whose label sits in a child.
func subtreeVetoed(k Keywords, n *schemas.ScreenNode) bool {
	vetoed := false
	n.Walk(func(c *schemas.ScreenNode) bool {
		vetoed = k.Vetoed(c.Text, c.Description)
		return !vetoed
	})
	return vetoed
}

func hasLongSibling(n *schemas.ScreenNode, minRunes int) bool {
	for _, s := range n.Siblings() {
		if utf8.RuneCountInString(s.Text) >= minRunes || utf8.RuneCountInString(s.Description) >= minRunes {
			return true
		}
	}
	return false
}

func structuralCandidate(o schemas.ElementObservation, kind schemas.CandidateKind, ch schemas.DetectionChannel, kw string) schemas.ActionCandidate {
	return schemas.ActionCandidate{
		Kind:    kind,
		Channel: ch,
		Node:    o.Node,
		Point:   schemas.Point{X: o.Box.CenterX(), Y: o.Box.CenterY()},
		Box:     o.Box,
		Top:     o.Box.Top,
		Keyword: kw,
		Order:   o.Order,
	}
}
