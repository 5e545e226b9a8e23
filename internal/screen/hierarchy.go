// File: internal/screen/hierarchy.go
package screen

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/xkilldash9x/taskpilot/api/schemas"
)

// boundsRegex matches the uiautomator bounds attribute, e.g. "[0,84][1080,264]".
var boundsRegex = regexp.MustCompile(`^\[(-?\d+),(-?\d+)\]\[(-?\d+),(-?\d+)\]$`)

// ParseBounds parses a uiautomator bounds attribute.
func ParseBounds(s string) (schemas.BoundingBox, error) {
	m := boundsRegex.FindStringSubmatch(s)
	if m == nil {
		return schemas.BoundingBox{}, fmt.Errorf("malformed bounds %q", s)
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return schemas.BoundingBox{}, fmt.Errorf("malformed bounds %q: %w", s, err)
		}
		v[i] = n
	}
	return schemas.BoundingBox{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}

// ParseHierarchyXML reads a uiautomator window dump and returns the root of the
// structural tree. When the dump wraps several top-level nodes in <hierarchy>
// a synthetic root spanning all of them is returned.
func ParseHierarchyXML(r io.Reader) (*schemas.ScreenNode, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("failed to read hierarchy dump: %w", err)
	}
	top := doc.Root()
	if top == nil {
		return nil, fmt.Errorf("hierarchy dump has no root element")
	}

	if top.Tag == "node" {
		return convertElement(top)
	}

	nodes := top.SelectElements("node")
	switch len(nodes) {
	case 0:
		return nil, fmt.Errorf("hierarchy dump contains no nodes")
	case 1:
		return convertElement(nodes[0])
	}

	root := &schemas.ScreenNode{ClassName: top.Tag}
	for i, el := range nodes {
		child, err := convertElement(el)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			root.Bounds = child.Bounds
			root.Package = child.Package
		} else {
			root.Bounds = union(root.Bounds, child.Bounds)
		}
		root.AddChild(child)
	}
	return root, nil
}

// SnapshotFromHierarchy parses a dump into a snapshot stamped with the given time.
func SnapshotFromHierarchy(r io.Reader, takenAt time.Time) (*schemas.Snapshot, error) {
	root, err := ParseHierarchyXML(r)
	if err != nil {
		return nil, err
	}
	return &schemas.Snapshot{
		ID:      uuid.NewString(),
		TakenAt: takenAt,
		Package: root.Package,
		Width:   root.Bounds.Right,
		Height:  root.Bounds.Bottom,
		Root:    root,
	}, nil
}

func convertElement(el *etree.Element) (*schemas.ScreenNode, error) {
	node := &schemas.ScreenNode{
		Text:        el.SelectAttrValue("text", ""),
		Description: el.SelectAttrValue("content-desc", ""),
		ResourceID:  el.SelectAttrValue("resource-id", ""),
		ClassName:   el.SelectAttrValue("class", ""),
		Package:     el.SelectAttrValue("package", ""),
		Clickable:   el.SelectAttrValue("clickable", "false") == "true",
		Scrollable:  el.SelectAttrValue("scrollable", "false") == "true",
	}
	if raw := el.SelectAttrValue("bounds", ""); raw != "" {
		box, err := ParseBounds(raw)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", el.GetPath(), err)
		}
		node.Bounds = box
	}
	for _, childEl := range el.SelectElements("node") {
		child, err := convertElement(childEl)
		if err != nil {
			return nil, err
		}
		node.AddChild(child)
	}
	return node, nil
}

func union(a, b schemas.BoundingBox) schemas.BoundingBox {
	return schemas.BoundingBox{
		Left:   min(a.Left, b.Left),
		Top:    min(a.Top, b.Top),
		Right:  max(a.Right, b.Right),
		Bottom: max(a.Bottom, b.Bottom),
	}
}
