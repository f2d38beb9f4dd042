package ruler

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/ruler/internal/config"
	"github.com/zeusync/ruler/internal/core/events/bus"
	"github.com/zeusync/ruler/internal/core/iface"
	"github.com/zeusync/ruler/internal/core/models"
	"github.com/zeusync/ruler/internal/core/observability/log"
	"github.com/zeusync/ruler/internal/core/spatial"
	"github.com/zeusync/ruler/internal/core/system"
	"github.com/zeusync/ruler/internal/core/visual"
)

const caliper HeadKind = "caliper"

type rig struct {
	world *system.World
	bus   bus.EventBus
	tool  *Tool
}

func newRig(t *testing.T, cfg *config.Config) *rig {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	events := bus.New()
	w := system.NewWorld(log.NewNop(), events)
	tool, err := NewTool(w, cfg, log.NewNop())
	require.NoError(t, err)
	return &rig{world: w, bus: events, tool: tool}
}

func twoHeads() *config.Config {
	cfg := config.Default()
	cfg.Heads = append(cfg.Heads, config.HeadConfig{
		Name:            string(caliper),
		Interface:       "ruler-caliper@1",
		Offset:          config.Vec3{0.09, 0, -0.10},
		GrabRadius:      0.02,
		IndicatorOffset: config.Vec3{0, 0.10, 0},
		ModelScale:      0.3,
	})
	return cfg
}

func (r *rig) head(t *testing.T, kind HeadKind) *Head {
	t.Helper()
	h, ok := r.tool.Head(kind)
	require.True(t, ok, "head %s", kind)
	return h
}

func (r *rig) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, r.world.Tick(time.Second/90))
}

// place moves the head so its indicator sits at offset in the base frame.
func (r *rig) place(t *testing.T, h *Head, x, y, z float64) {
	t.Helper()
	g := r.world.Scene()
	base, ok := g.World(r.tool.Base())
	require.True(t, ok)
	local, ok := g.Local(h.Indicator())
	require.True(t, ok)
	indicator := base.Mul(spatial.Translation(x, y, z))
	require.NoError(t, g.SetWorld(h.Entity(), indicator.Mul(local.Inverse())))
}

func labelText(root *visual.Node) (string, bool) {
	n, ok := visual.FindVisible(root, func(n *visual.Node) bool { return n.Kind == visual.KindLabel })
	if !ok {
		return "", false
	}
	return n.Label.Text, true
}

func handleVisible(root *visual.Node) bool {
	_, ok := visual.FindVisible(root, func(n *visual.Node) bool { return n.Name == "handle" })
	return ok
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "5.0cm", Readout(spatial.Translation(0.03, 0.04, 0)))
	assert.Equal(t, "10.0cm", FormatDistance(0.1))
	assert.Equal(t, "0.0cm", FormatDistance(0))
	assert.Equal(t, "12.3cm", FormatDistance(0.12345))
}

func TestEndToEndScenario(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)

	root := r.tool.Render()
	assert.True(t, handleVisible(root))
	assert.Equal(t, ModeNeutral, r.tool.State().Mode())

	r.tool.GrabTool()
	assert.Equal(t, ModeHeld, r.tool.State().Mode())
	assert.False(t, handleVisible(r.tool.Render()))

	square.OnGrabStart()
	assert.Equal(t, ToolState{HeldByUser: true, ActiveHead: HeadSquare}, r.tool.State())
	require.NotNil(t, square.Session())
	assert.True(t, square.Session().Live())

	r.place(t, square, 0, 0, 0.1)
	r.tick(t)
	text, ok := labelText(r.tool.Render())
	require.True(t, ok)
	assert.Equal(t, "10.0cm", text)

	session := square.Session()
	square.OnGrabEnd()
	assert.Equal(t, iface.StateTerminated, session.State())
	assert.Equal(t, ToolState{HeldByUser: true}, r.tool.State())
	_, ok = labelText(r.tool.Render())
	assert.False(t, ok)

	r.tool.ReleaseTool()
	assert.Equal(t, ModeNeutral, r.tool.State().Mode())
	assert.True(t, handleVisible(r.tool.Render()))
}

func TestLabelTracksTransform(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)
	r.tool.GrabTool()
	square.OnGrabStart()

	r.place(t, square, 0.03, 0.04, 0)
	r.tick(t)
	text, _ := labelText(r.tool.Render())
	assert.Equal(t, "5.0cm", text)

	r.place(t, square, 0, 0.2, 0)
	r.tick(t)
	text, _ = labelText(r.tool.Render())
	assert.Equal(t, "20.0cm", text)
}

func TestToolReleaseDominates(t *testing.T) {
	t.Run("release tool first", func(t *testing.T) {
		r := newRig(t, nil)
		square := r.head(t, HeadSquare)
		r.tool.GrabTool()
		square.OnGrabStart()
		session := square.Session()
		require.NotNil(t, session)

		r.tool.ReleaseTool()
		assert.Equal(t, ToolState{}, r.tool.State())
		assert.Equal(t, iface.StateTerminated, session.State())
		assert.False(t, square.Deployed())

		square.OnGrabEnd()
		assert.Equal(t, ToolState{}, r.tool.State())
		_, live := r.world.Registry().Active(square.Indicator(), square.Interface())
		assert.False(t, live)
	})

	t.Run("release head first", func(t *testing.T) {
		r := newRig(t, nil)
		square := r.head(t, HeadSquare)
		r.tool.GrabTool()
		square.OnGrabStart()
		session := square.Session()

		square.OnGrabEnd()
		r.tool.ReleaseTool()
		assert.Equal(t, ToolState{}, r.tool.State())
		assert.Equal(t, iface.StateTerminated, session.State())
	})

	t.Run("no updates after release", func(t *testing.T) {
		r := newRig(t, nil)
		square := r.head(t, HeadSquare)
		r.tool.GrabTool()
		square.OnGrabStart()
		updates := 0
		square.Session().OnTransformUpdated(func(spatial.Pose) { updates++ })

		r.tool.ReleaseTool()
		r.place(t, square, 0, 0, 0.3)
		r.tick(t)
		assert.Zero(t, updates)
	})
}

func TestHeadExclusivity(t *testing.T) {
	r := newRig(t, twoHeads())
	square := r.head(t, HeadSquare)
	other := r.head(t, caliper)
	r.tool.GrabTool()

	root := r.tool.Render()
	for _, name := range []string{"slot:square", "slot:caliper"} {
		_, ok := visual.FindVisible(root, func(n *visual.Node) bool { return n.Name == name })
		assert.True(t, ok, name)
	}

	square.OnGrabStart()
	other.OnGrabStart()
	assert.False(t, other.Deployed())
	assert.Nil(t, other.Session())
	assert.False(t, r.tool.HeadGrabbed(caliper))
	assert.Equal(t, HeadSquare, r.tool.State().ActiveHead)

	root = r.tool.Render()
	_, ok := visual.FindVisible(root, func(n *visual.Node) bool { return n.Name == "slot:caliper" })
	assert.False(t, ok)
	_, ok = visual.FindVisible(root, func(n *visual.Node) bool { return n.Entity == other.Entity() })
	assert.False(t, ok)

	square.OnGrabEnd()
	other.OnGrabStart()
	assert.True(t, other.Deployed())
	assert.Equal(t, caliper, r.tool.State().ActiveHead)
	assert.Equal(t, "ruler-caliper@1", other.Session().Interface())
}

func TestHeadReleasedWithdrawsHead(t *testing.T) {
	r := newRig(t, twoHeads())
	square := r.head(t, HeadSquare)
	other := r.head(t, caliper)
	r.tool.GrabTool()
	square.OnGrabStart()
	session := square.Session()
	require.NotNil(t, session)

	r.tool.HeadReleased(HeadSquare)
	assert.Equal(t, iface.StateTerminated, session.State())
	assert.False(t, square.Deployed())
	assert.Nil(t, square.Session())
	assert.Equal(t, ToolState{HeldByUser: true}, r.tool.State())
	_, locked := r.world.Registry().LockOf(square.Indicator(), square.Interface())
	assert.False(t, locked)

	other.OnGrabStart()
	assert.True(t, other.Deployed())
	assert.False(t, square.Deployed())
	assert.Equal(t, caliper, r.tool.State().ActiveHead)
	assert.Len(t, r.world.Registry().Sessions(), 1)

	// releasing a head that is not active leaves the active one alone
	r.tool.HeadReleased(HeadSquare)
	assert.True(t, other.Deployed())
	assert.Equal(t, caliper, r.tool.State().ActiveHead)
}

func TestHeadGrabIgnoredWhileToolNotHeld(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)

	square.OnGrabStart()
	assert.False(t, square.Deployed())
	assert.Nil(t, square.Session())
	assert.Equal(t, ToolState{}, r.tool.State())

	assert.False(t, r.tool.HeadGrabbed("protractor"))
	r.tool.HeadReleased(HeadSquare)
	assert.Equal(t, ToolState{}, r.tool.State())
}

func TestSessionLostReturnsToHeld(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)
	r.tool.GrabTool()
	square.OnGrabStart()
	require.NotNil(t, square.Session())

	r.world.Registry().SetEngagement(func(_, _ models.EntityID) bool { return false })
	r.tick(t)

	assert.Equal(t, ToolState{HeldByUser: true}, r.tool.State())
	assert.False(t, square.Deployed())
	assert.Nil(t, square.Session())
	_, ok := labelText(r.tool.Render())
	assert.False(t, ok)

	// still grabbed by the user: letting go is harmless
	square.OnGrabEnd()
	assert.Equal(t, ToolState{HeldByUser: true}, r.tool.State())
}

func TestHeadOpenRefused(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)
	r.world.Registry().StopListening(r.tool.Base(), square.Interface())
	r.tool.GrabTool()

	square.OnGrabStart()
	assert.False(t, square.Deployed())
	assert.Equal(t, ToolState{HeldByUser: true}, r.tool.State())
	_, locked := r.world.Registry().LockOf(square.Indicator(), square.Interface())
	assert.False(t, locked)
}

func TestHeadReturnsToRestPose(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)
	rest, ok := r.world.Scene().Local(square.Entity())
	require.True(t, ok)

	r.tool.GrabTool()
	square.OnGrabStart()
	r.place(t, square, 0.2, 0, 0)
	square.OnGrabEnd()

	got, _ := r.world.Scene().Local(square.Entity())
	assert.True(t, rest.ApproxEqual(got, spatial.DefaultEpsilon), "got %s want %s", got, rest)
}

func TestRenderLayout(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)
	cone := func(root *visual.Node, color visual.Color) bool {
		_, ok := visual.FindVisible(root, func(n *visual.Node) bool {
			return n.Kind == visual.KindModel && n.Model.Color == color
		})
		return ok
	}

	root := r.tool.Render()
	require.Equal(t, visual.KindGrabbable, root.Kind)
	assert.Equal(t, r.tool.Entity(), root.Entity)
	assert.Equal(t, visual.GrabGadget, root.Grab.Style)
	assert.InDelta(t, 0.015, root.Grab.Radius, 1e-12)
	assert.False(t, cone(root, visual.ColorRed))

	r.tool.GrabTool()
	root = r.tool.Render()
	assert.Nil(t, root.Grab.Appearance)
	head, ok := visual.FindVisible(root, func(n *visual.Node) bool { return n.Entity == square.Entity() })
	require.True(t, ok)
	assert.Equal(t, visual.GrabLocalItem, head.Grab.Style)
	assert.InDelta(t, 0.03, head.Grab.Radius, 1e-12)
	require.NotNil(t, head.Grab.Appearance)

	anchor, ok := visual.FindVisible(root, func(n *visual.Node) bool {
		return n.Kind == visual.KindAnchor && n.Entity == r.tool.Base()
	})
	require.True(t, ok)
	assert.Equal(t, []string{config.SquareInterface}, anchor.Anchor.Receives)

	square.OnGrabStart()
	root = r.tool.Render()
	assert.True(t, cone(root, visual.ColorRed))
	assert.True(t, cone(root, visual.ColorBlue))
	head, _ = visual.FindVisible(root, func(n *visual.Node) bool { return n.Entity == square.Entity() })
	assert.Nil(t, head.Grab.Appearance)
	line, ok := visual.FindVisible(root, func(n *visual.Node) bool { return n.Kind == visual.KindLine })
	require.True(t, ok)
	assert.Equal(t, r.tool.Base(), line.Line.End)
	label, ok := visual.FindVisible(root, func(n *visual.Node) bool { return n.Kind == visual.KindLabel })
	require.True(t, ok)
	assert.InDelta(t, 0.08, label.Label.WidthMeters, 1e-12)

	var cones []*visual.Node
	for _, n := range visual.Visible(root) {
		if n.Name == "cone" {
			cones = append(cones, n)
		}
	}
	require.Len(t, cones, 2)
	for _, c := range cones {
		assert.InDelta(t, 0, c.Transform.Scale.Sub(mgl64.Vec3{0.1, 0.2, 0.1}).Len(), 1e-12, "cone scale %v", c.Transform.Scale)
	}
}

func TestGrabEdgesFromBus(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)
	var states []ToolState
	_, err := r.bus.Subscribe(EventToolState, func(e bus.Event) error {
		states = append(states, e.Data().(ToolState))
		return nil
	})
	require.NoError(t, err)

	publish := func(typ string, id models.EntityID) {
		require.NoError(t, r.bus.Publish(bus.NewEvent(typ, "test", GrabEdge{Entity: id}, nil)))
	}
	publish(EventGrabStart, r.tool.Entity())
	publish(EventGrabStart, square.Entity())
	publish(EventGrabEnd, square.Entity())
	publish(EventGrabEnd, r.tool.Entity())

	assert.Equal(t, []ToolState{
		{HeldByUser: true},
		{HeldByUser: true, ActiveHead: HeadSquare},
		{HeldByUser: true},
		{},
	}, states)

	err = r.bus.Publish(bus.NewEvent(EventGrabStart, "test", "not an edge", nil))
	assert.Error(t, err)
	assert.False(t, r.tool.HandleGrab(models.EntityID(1<<60), true))
}

func TestRenderSinkRunsAfterSessionPhase(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)
	var frames []uint64
	var last string
	r.tool.OnRender(func(f system.Frame, root *visual.Node) {
		frames = append(frames, f.Number)
		last, _ = labelText(root)
	})

	r.tool.GrabTool()
	square.OnGrabStart()
	r.place(t, square, 0, 0.05, 0)
	r.tick(t)
	r.tick(t)

	assert.Equal(t, []uint64{1, 2}, frames)
	assert.Equal(t, "5.0cm", last)
}

func TestCloseRemovesEntities(t *testing.T) {
	r := newRig(t, nil)
	square := r.head(t, HeadSquare)
	r.tool.GrabTool()
	square.OnGrabStart()
	session := square.Session()

	require.NoError(t, r.tool.Close())
	assert.Equal(t, iface.StateTerminated, session.State())
	assert.False(t, r.world.Scene().Present(r.tool.Entity()))
	assert.False(t, r.world.Scene().Present(r.tool.Base()))
	assert.Empty(t, r.world.Registry().Sessions())

	require.NoError(t, r.bus.Publish(bus.NewEvent(EventGrabStart, "test", GrabEdge{Entity: r.tool.Entity()}, nil)))
	assert.Equal(t, ToolState{}, r.tool.State())
}
