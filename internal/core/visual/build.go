package visual

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/zeusync/ruler/internal/core/models"
)

var unitScale = mgl64.Vec3{1, 1, 1}

func Group(children ...*Node) *Node {
	return (&Node{Kind: KindGroup}).Add(children...)
}

// TransformOpt adjusts a Transform under construction.
type TransformOpt func(*Transform)

func Translate(x, y, z float64) TransformOpt {
	return func(t *Transform) { t.Translate = mgl64.Vec3{x, y, z} }
}

func RotateX(deg float64) TransformOpt {
	return func(t *Transform) { t.RotateDeg[0] = deg }
}

func RotateY(deg float64) TransformOpt {
	return func(t *Transform) { t.RotateDeg[1] = deg }
}

func Scale(x, y, z float64) TransformOpt {
	return func(t *Transform) { t.Scale = mgl64.Vec3{x, y, z} }
}

func UniformScale(s float64) TransformOpt {
	return Scale(s, s, s)
}

func HeadFacing() TransformOpt {
	return func(t *Transform) { t.HeadFacing = true }
}

// Xform builds a transform node. Scale defaults to one.
func Xform(opts []TransformOpt, children ...*Node) *Node {
	t := &Transform{Scale: unitScale}
	for _, opt := range opts {
		opt(t)
	}
	return (&Node{Kind: KindTransform, Transform: t}).Add(children...)
}

// With is shorthand for a transform option list.
func With(opts ...TransformOpt) []TransformOpt {
	return opts
}

func ModelNode(uri string, color Color) *Node {
	return &Node{Kind: KindModel, Model: &Model{URI: uri, Color: color}}
}

// Cone draws the unit cone model scaled to radius and height, tip down.
func Cone(uri string, radius, height float64, color Color) *Node {
	return Xform(With(Scale(radius*10, height*10, radius*10), RotateX(180)), ModelNode(uri, color)).Named("cone")
}

func LabelNode(text string, widthMeters float64) *Node {
	return &Node{Kind: KindLabel, Label: &Label{Text: text, WidthMeters: widthMeters}}
}

func LineTo(end models.EntityID, startGap, endGap float64) *Node {
	return &Node{Kind: KindLine, Line: &Line{End: end, StartGap: startGap, EndGap: endGap}}
}

func Grabbable(entity models.EntityID, g Grab, children ...*Node) *Node {
	return (&Node{Kind: KindGrabbable, Entity: entity, Grab: &g}).Add(children...)
}

func AnchorNode(entity models.EntityID, receives ...string) *Node {
	return &Node{Kind: KindAnchor, Entity: entity, Anchor: &Anchor{Receives: receives}}
}
