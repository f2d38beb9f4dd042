// Package visual describes what the host should draw as a tree of plain
// nodes. Controllers rebuild the tree from their state every frame; nothing
// here is retained between frames.
package visual

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/ruler/internal/core/models"
)

type Kind string

const (
	KindGroup     Kind = "group"
	KindTransform Kind = "transform"
	KindModel     Kind = "model"
	KindLabel     Kind = "label"
	KindLine      Kind = "line"
	KindGrabbable Kind = "grabbable"
	KindAnchor    Kind = "anchor"
)

// GrabStyle mirrors how the host's grab primitive treats a grabbable.
type GrabStyle string

const (
	GrabGadget    GrabStyle = "gadget"
	GrabLocalItem GrabStyle = "local_item"
)

// Color names or hex strings are passed through to the host untouched.
type Color string

const (
	ColorRed  Color = "red"
	ColorBlue Color = "blue"
)

type Transform struct {
	Translate  mgl64.Vec3 `json:"translate"`
	RotateDeg  mgl64.Vec3 `json:"rotate_deg"`
	Scale      mgl64.Vec3 `json:"scale"`
	HeadFacing bool       `json:"head_facing,omitempty"`
}

type Model struct {
	URI   string `json:"uri"`
	Color Color  `json:"color,omitempty"`
}

type Label struct {
	Text        string  `json:"text"`
	WidthMeters float64 `json:"width_m"`
}

// Line connects the node's origin to another entity's origin.
type Line struct {
	End      models.EntityID `json:"end"`
	StartGap float64         `json:"start_gap"`
	EndGap   float64         `json:"end_gap"`
}

type Grab struct {
	Style  GrabStyle `json:"style"`
	Radius float64   `json:"radius"`
	// ChildrenWhenGrabbed hides Children unless the grabbable is held.
	ChildrenWhenGrabbed bool  `json:"children_when_grabbed"`
	Appearance          *Node `json:"appearance,omitempty"`
}

// Anchor marks a node as the origin of a registered spatial entity.
type Anchor struct {
	Receives []string `json:"receives,omitempty"`
}

type Node struct {
	Kind      Kind            `json:"kind"`
	Name      string          `json:"name,omitempty"`
	Entity    models.EntityID `json:"entity,omitempty"`
	Hidden    bool            `json:"hidden,omitempty"`
	Transform *Transform      `json:"transform,omitempty"`
	Model     *Model          `json:"model,omitempty"`
	Label     *Label          `json:"label,omitempty"`
	Line      *Line           `json:"line,omitempty"`
	Grab      *Grab           `json:"grab,omitempty"`
	Anchor    *Anchor         `json:"anchor,omitempty"`
	Children  []*Node         `json:"children,omitempty"`
}

// Add appends non-nil children and returns n.
func (n *Node) Add(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// Named sets the node name and returns n.
func (n *Node) Named(name string) *Node {
	n.Name = name
	return n
}

// Hide marks the subtree hidden when hidden is true and returns n.
func (n *Node) Hide(hidden bool) *Node {
	n.Hidden = hidden
	return n
}

// Walk visits n and its descendants depth first. Returning false from fn
// skips the node's children.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	if n.Grab != nil && n.Grab.Appearance != nil {
		Walk(n.Grab.Appearance, fn)
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// Visible collects every node that would be drawn, skipping hidden subtrees.
func Visible(root *Node) []*Node {
	var out []*Node
	Walk(root, func(n *Node) bool {
		if n.Hidden {
			return false
		}
		out = append(out, n)
		return true
	})
	return out
}

// FindVisible returns the first visible node matching pred.
func FindVisible(root *Node, pred func(*Node) bool) (*Node, bool) {
	for _, n := range Visible(root) {
		if pred(n) {
			return n, true
		}
	}
	return nil, false
}
