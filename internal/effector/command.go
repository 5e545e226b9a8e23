// File: internal/effector/command.go
package effector

import (
	"strconv"
	"time"

	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// Op names a gesture understood by the device bridge.
type Op string

const (
	OpClickPoint    Op = "click_point"
	OpClickNode     Op = "click_node"
	OpFocusNode     Op = "focus_node"
	OpScrollForward Op = "scroll_forward"
	OpBack          Op = "back"
)

// Target identifies a tree element for the bridge. The bridge matches on
// bounds first and uses the remaining fields to disambiguate.
type Target struct {
	Text        string              `json:"text,omitempty"`
	Description string              `json:"desc,omitempty"`
	ResourceID  string              `json:"resourceId,omitempty"`
	ClassName   string              `json:"class,omitempty"`
	Bounds      schemas.BoundingBox `json:"bounds"`
}

// Command is one gesture request, written as a single JSON line.
type Command struct {
	Seq    int64          `json:"seq"`
	Op     Op             `json:"op"`
	At     time.Time      `json:"at"`
	Point  *schemas.Point `json:"point,omitempty"`
	Target *Target        `json:"target,omitempty"`
	// Window is set for a scroll with no target element.
	Window bool `json:"window,omitempty"`
}

func targetOf(node *schemas.ScreenNode) *Target {
	if node == nil {
		return nil
	}
	return &Target{
		Text:        node.Text,
		Description: node.Description,
		ResourceID:  node.ResourceID,
		ClassName:   node.ClassName,
		Bounds:      node.Bounds,
	}
}

// String gives a compact form for logs.
func (c Command) String() string {
	switch {
	case c.Point != nil:
		return string(c.Op) + "@" + strconv.Itoa(c.Point.X) + "," + strconv.Itoa(c.Point.Y)
	case c.Target != nil:
		name := c.Target.Text
		if name == "" {
			name = c.Target.ResourceID
		}
		if name == "" {
			name = c.Target.ClassName
		}
		return string(c.Op) + ":" + name
	case c.Window:
		return string(c.Op) + ":<window>"
	default:
		return string(c.Op)
	}
}
