package ruler

import (
	"github.com/zeusync/ruler/internal/config"
	"github.com/zeusync/ruler/internal/core/visual"
)

const (
	// base and indicator markers share one cone size
	markerRadius = 0.01
	markerHeight = 0.02
	labelWidth   = 0.08
	lineGap      = 0.02
)

// Render builds the tool's visual tree from its current state.
func (t *Tool) Render() *visual.Node {
	held := t.state.HeldByUser
	grab := visual.Grab{
		Style:               visual.GrabGadget,
		Radius:              t.cfg.Tool.GrabRadius,
		ChildrenWhenGrabbed: true,
	}
	if t.state.Mode() == ModeNeutral {
		grab.Appearance = t.renderHandle()
	}

	heads := visual.Xform(visual.With(visual.RotateX(t.cfg.Tool.HeadsRotateX))).Named("heads")
	for _, h := range t.heads {
		heads.Add(h.render(t.cfg.Models, t.state.ActiveHead))
	}

	return visual.Grabbable(t.entity, grab,
		heads.Hide(!held),
		t.renderBase().Hide(!held),
	).Named("ruler")
}

func (t *Tool) renderHandle() *visual.Node {
	s := t.cfg.Tool.HandleScale
	return visual.Xform(
		visual.With(visual.UniformScale(s), visual.RotateX(90)),
		visual.ModelNode(t.cfg.Models.Square, ""),
	).Named("handle")
}

func (t *Tool) renderBase() *visual.Node {
	off := t.cfg.Tool.BaseOffset
	base := visual.Xform(visual.With(visual.Translate(off[0], off[1], off[2])),
		visual.AnchorNode(t.base, t.interfaces()...),
	).Named("base")
	if t.state.ActiveHead != HeadNone {
		base.Add(visual.Cone(t.cfg.Models.Cone, markerRadius, markerHeight, visual.ColorRed))
	}
	return base
}

func (t *Tool) interfaces() []string {
	out := make([]string, 0, len(t.heads))
	for _, h := range t.heads {
		out = append(out, h.cfg.Interface)
	}
	return out
}

// render draws the head in its slot. Only the active head is shown while one
// is active, so a hidden head cannot be grabbed by the host.
func (h *Head) render(assets config.Models, active HeadKind) *visual.Node {
	off := h.cfg.Offset
	grab := visual.Grab{Style: visual.GrabLocalItem, Radius: h.cfg.GrabRadius}
	if !h.deployed {
		grab.Appearance = visual.Xform(
			visual.With(visual.UniformScale(h.cfg.ModelScale)),
			visual.ModelNode(assets.Square, ""),
		).Named("model")
	}
	g := visual.Grabbable(h.entity, grab, h.renderIndicator(assets)).Named("head:" + h.cfg.Name)
	return visual.Xform(visual.With(visual.Translate(off[0], off[1], off[2])), g).
		Named("slot:" + h.cfg.Name).
		Hide(active != HeadNone && active != h.kind)
}

// renderIndicator returns nil when there is no readout to show.
func (h *Head) renderIndicator(assets config.Models) *visual.Node {
	text, ok := h.Readout()
	if !ok || !h.deployed {
		return nil
	}
	off := h.cfg.IndicatorOffset
	return visual.Xform(visual.With(visual.Translate(off[0], off[1], off[2])),
		visual.AnchorNode(h.indicator),
		visual.Xform(visual.With(visual.HeadFacing(), visual.Translate(0, 0.02, 0.01)),
			visual.LabelNode(text, labelWidth),
		),
		visual.Xform(visual.With(visual.RotateX(-90)),
			visual.Cone(assets.Cone, markerRadius, markerHeight, visual.ColorBlue),
		),
		visual.LineTo(h.base, lineGap, lineGap),
	).Named("indicator:" + h.cfg.Name)
}
