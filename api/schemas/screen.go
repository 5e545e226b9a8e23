package schemas

import (
	"strings"
	"time"
)

// -- Geometry --

// BoundingBox is an axis aligned rectangle in screen pixels.
type BoundingBox struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns the horizontal extent of the box, never negative.
func (b BoundingBox) Width() int {
	if b.Right < b.Left {
		return 0
	}
	return b.Right - b.Left
}

// Height returns the vertical extent of the box, never negative.
func (b BoundingBox) Height() int {
	if b.Bottom < b.Top {
		return 0
	}
	return b.Bottom - b.Top
}

// CenterX returns the horizontal midpoint.
func (b BoundingBox) CenterX() int { return b.Left + b.Width()/2 }

// CenterY returns the vertical midpoint.
func (b BoundingBox) CenterY() int { return b.Top + b.Height()/2 }

// Empty reports whether the box covers no pixels.
func (b BoundingBox) Empty() bool { return b.Width() == 0 || b.Height() == 0 }

// Contains reports whether the point lies inside the box (edges inclusive).
func (b BoundingBox) Contains(x, y int) bool {
	return x >= b.Left && x <= b.Right && y >= b.Top && y <= b.Bottom
}

// Normalized returns a copy whose right and bottom edges are clamped so the
// box never has a negative area.
func (b BoundingBox) Normalized() BoundingBox {
	if b.Right < b.Left {
		b.Right = b.Left
	}
	if b.Bottom < b.Top {
		b.Bottom = b.Top
	}
	return b
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// -- Structural Tree --

// ScreenNode is one element of a structural UI tree as supplied by the screen
// source. Parent links are not serialized; call Link after decoding.
type ScreenNode struct {
	Text        string        `json:"text,omitempty"`
	Description string        `json:"desc,omitempty"`
	ResourceID  string        `json:"resourceId,omitempty"`
	ClassName   string        `json:"class,omitempty"`
	Package     string        `json:"package,omitempty"`
	Bounds      BoundingBox   `json:"bounds"`
	Clickable   bool          `json:"clickable,omitempty"`
	Scrollable  bool          `json:"scrollable,omitempty"`
	Children    []*ScreenNode `json:"children,omitempty"`

	parent *ScreenNode
}

// Parent returns the node's parent, or nil for the root.
func (n *ScreenNode) Parent() *ScreenNode {
	if n == nil {
		return nil
	}
	return n.parent
}

// AddChild appends a child and links it back to n.
func (n *ScreenNode) AddChild(child *ScreenNode) *ScreenNode {
	if child == nil {
		return n
	}
	child.parent = n
	n.Children = append(n.Children, child)
	return n
}

// Link (re)establishes parent pointers for the whole subtree rooted at n.
func (n *ScreenNode) Link() {
	if n == nil {
		return
	}
	stack := []*ScreenNode{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range cur.Children {
			if c == nil {
				continue
			}
			c.parent = cur
			stack = append(stack, c)
		}
	}
}

// Walk visits the subtree in depth-first pre-order. Returning false from fn
// stops the walk.
func (n *ScreenNode) Walk(fn func(*ScreenNode) bool) {
	if n == nil {
		return
	}
	stack := []*ScreenNode{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			return
		}
		// Push in reverse so the first child is visited first.
		for i := len(cur.Children) - 1; i >= 0; i-- {
			if c := cur.Children[i]; c != nil {
				stack = append(stack, c)
			}
		}
	}
}

// WalkBreadthFirst visits the subtree level by level. Returning false from fn
// stops the walk.
func (n *ScreenNode) WalkBreadthFirst(fn func(*ScreenNode) bool) {
	if n == nil {
		return
	}
	queue := []*ScreenNode{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !fn(cur) {
			return
		}
		for _, c := range cur.Children {
			if c != nil {
				queue = append(queue, c)
			}
		}
	}
}

// Siblings returns the other children of the node's parent.
func (n *ScreenNode) Siblings() []*ScreenNode {
	p := n.Parent()
	if p == nil {
		return nil
	}
	out := make([]*ScreenNode, 0, len(p.Children))
	for _, c := range p.Children {
		if c != nil && c != n {
			out = append(out, c)
		}
	}
	return out
}

// HasText reports whether the node's text or description contains s.
func (n *ScreenNode) HasText(s string) bool {
	if n == nil || s == "" {
		return false
	}
	return strings.Contains(n.Text, s) || strings.Contains(n.Description, s)
}

// -- Visual Channel --

// OCRRegion is one recognized line of text with its bounding box.
type OCRRegion struct {
	Text string      `json:"text"`
	Box  BoundingBox `json:"box"`
}

// -- Normalized Observations --

// ObservationSource identifies which channel produced an observation.
type ObservationSource string

const (
	SourceStructural ObservationSource = "STRUCTURAL"
	SourceOCR        ObservationSource = "OCR"
)

// ElementObservation is one UI element or OCR region in the uniform shape the
// detection pipeline consumes. It is created fresh for every snapshot.
type ElementObservation struct {
	Text        string            `json:"text"`
	Description string            `json:"desc,omitempty"`
	Box         BoundingBox       `json:"box"`
	Clickable   bool              `json:"clickable"`
	Source      ObservationSource `json:"source"`
	// Node points back into the structural tree; nil for OCR observations.
	// Its parent chain is the ancestor chain used for click-target resolution.
	Node *ScreenNode `json:"-"`
	// Order is the discovery index within the snapshot.
	Order int `json:"order"`
}

// -- Snapshot --

// Snapshot is one point-in-time observation of the screen. Either Root, Regions,
// or both may be present.
type Snapshot struct {
	ID      string      `json:"id,omitempty"`
	TakenAt time.Time   `json:"takenAt"`
	Package string      `json:"package,omitempty"`
	Width   int         `json:"width,omitempty"`
	Height  int         `json:"height,omitempty"`
	Root    *ScreenNode `json:"root,omitempty"`
	Regions []OCRRegion `json:"regions,omitempty"`
}

// Empty reports whether the snapshot carries neither a tree nor OCR regions.
func (s *Snapshot) Empty() bool {
	return s == nil || (s.Root == nil && len(s.Regions) == 0)
}

// RootOrNil returns the structural root, tolerating a nil snapshot.
func (s *Snapshot) RootOrNil() *ScreenNode {
	if s == nil {
		return nil
	}
	return s.Root
}

// ScreenWidth returns the declared width, falling back to the root bounds and
// then to the widest OCR region.
func (s *Snapshot) ScreenWidth() int {
	if s == nil {
		return 0
	}
	if s.Width > 0 {
		return s.Width
	}
	if s.Root != nil && s.Root.Bounds.Right > 0 {
		return s.Root.Bounds.Right
	}
	w := 0
	for _, r := range s.Regions {
		if r.Box.Right > w {
			w = r.Box.Right
		}
	}
	return w
}

// ForegroundPackage returns the snapshot's package, falling back to the root node's.
func (s *Snapshot) ForegroundPackage() string {
	if s == nil {
		return ""
	}
	if s.Package != "" {
		return s.Package
	}
	if s.Root != nil {
		return s.Root.Package
	}
	return ""
}
