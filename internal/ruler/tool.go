package ruler

import (
	"errors"
	"fmt"

	"github.com/zeusync/ruler/internal/config"
	"github.com/zeusync/ruler/internal/core/events/bus"
	"github.com/zeusync/ruler/internal/core/iface"
	"github.com/zeusync/ruler/internal/core/models"
	"github.com/zeusync/ruler/internal/core/observability/log"
	"github.com/zeusync/ruler/internal/core/scene"
	"github.com/zeusync/ruler/internal/core/spatial"
	"github.com/zeusync/ruler/internal/core/system"
	"github.com/zeusync/ruler/internal/core/visual"
)

const renderSystemName = "ruler.render"

// Tool is the top-level state machine of the gadget. It owns ToolState, the
// base anchor and the heads.
type Tool struct {
	cfg      *config.Config
	log      log.Log
	scene    *scene.Graph
	registry *iface.Registry
	events   bus.EventBus

	entity models.EntityID
	base   models.EntityID
	heads  []*Head
	byKind map[HeadKind]*Head
	state  ToolState

	subs     []bus.Subscription
	onRender []func(system.Frame, *visual.Node)
}

// NewTool builds the tool's entities in world, declares the base anchor as a
// receiver for every head interface and registers the render system.
func NewTool(world *system.World, cfg *config.Config, logger log.Log) (*Tool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tool config: %w", err)
	}
	g := world.Scene()
	t := &Tool{
		cfg:      cfg,
		log:      logger.With(log.String("component", "ruler")),
		scene:    g,
		registry: world.Registry(),
		events:   world.Events(),
		byKind:   make(map[HeadKind]*Head, len(cfg.Heads)),
	}

	var err error
	if t.entity, err = g.Create("ruler", models.NoEntity, spatial.Identity()); err != nil {
		return nil, err
	}
	off := cfg.Tool.BaseOffset
	if t.base, err = g.Create("base", t.entity, spatial.Translation(off[0], off[1], off[2])); err != nil {
		return nil, err
	}

	layout := spatial.RotationAbout(spatial.AxisX, cfg.Tool.HeadsRotateX)
	for _, hc := range cfg.Heads {
		if err = t.registry.Listen(t.base, hc.Interface); err != nil {
			return nil, fmt.Errorf("base anchor: %w", err)
		}
		rest := layout.Mul(spatial.Translation(hc.Offset[0], hc.Offset[1], hc.Offset[2]))
		h, err := newHead(hc, t.entity, t.base, rest, g, t.registry, t, logger)
		if err != nil {
			return nil, err
		}
		t.heads = append(t.heads, h)
		t.byKind[h.kind] = h
	}

	if err = world.RegisterSystem(system.Func(renderSystemName, system.PhaseRender, t.render)); err != nil {
		return nil, err
	}
	if t.events != nil {
		if err = t.subscribe(); err != nil {
			return nil, err
		}
	}
	t.log.Info("tool ready",
		log.String("entity", t.entity.String()),
		log.String("base", t.base.String()),
		log.Int("heads", len(t.heads)),
	)
	return t, nil
}

func (t *Tool) Entity() models.EntityID { return t.entity }
func (t *Tool) Base() models.EntityID   { return t.base }
func (t *Tool) State() ToolState        { return t.state }
func (t *Tool) Heads() []*Head          { return append([]*Head(nil), t.heads...) }

func (t *Tool) Head(kind HeadKind) (*Head, bool) {
	h, ok := t.byKind[kind]
	return h, ok
}

// OnRender registers fn to receive the visual tree built each frame.
func (t *Tool) OnRender(fn func(system.Frame, *visual.Node)) {
	t.onRender = append(t.onRender, fn)
}

// GrabTool: Neutral -> Held.
func (t *Tool) GrabTool() {
	if t.state.HeldByUser {
		return
	}
	t.setState(ToolState{HeldByUser: true})
}

// ReleaseTool returns to Neutral from any state. An active head is withdrawn
// first, so its session is terminated before ReleaseTool returns.
func (t *Tool) ReleaseTool() {
	if !t.state.HeldByUser && t.state.ActiveHead == HeadNone {
		return
	}
	if h, ok := t.byKind[t.state.ActiveHead]; ok {
		h.Withdraw()
	}
	t.setState(ToolState{})
}

// HeadGrabbed: Held -> Held+HeadActive(kind). It is refused while the tool is
// not held or while a different head is active.
func (t *Tool) HeadGrabbed(kind HeadKind) bool {
	if _, ok := t.byKind[kind]; !ok {
		t.log.Warn("grab for unknown head", log.String("head", kind.String()))
		return false
	}
	if !t.state.HeldByUser {
		return false
	}
	switch t.state.ActiveHead {
	case kind:
		return true
	case HeadNone:
		t.setState(ToolState{HeldByUser: true, ActiveHead: kind})
		return true
	default:
		t.log.Debug("head grab refused",
			log.String("head", kind.String()),
			log.String("active", t.state.ActiveHead.String()),
		)
		return false
	}
}

// HeadReleased: Held+HeadActive(kind) -> Held. The head is withdrawn first,
// so its session is terminated before HeadReleased returns. Anything else is
// a no-op.
func (t *Tool) HeadReleased(kind HeadKind) {
	if kind == HeadNone || t.state.ActiveHead != kind {
		return
	}
	if h, ok := t.byKind[kind]; ok {
		h.OnGrabEnd()
	}
	t.clearActive(kind)
}

func (t *Tool) clearActive(kind HeadKind) {
	if kind == HeadNone || t.state.ActiveHead != kind {
		return
	}
	t.setState(ToolState{HeldByUser: t.state.HeldByUser})
}

// HandleGrab routes a grab edge on entity to the tool or the head it belongs
// to. It reports whether the entity was recognised.
func (t *Tool) HandleGrab(entity models.EntityID, start bool) bool {
	if entity == t.entity {
		if start {
			t.GrabTool()
		} else {
			t.ReleaseTool()
		}
		return true
	}
	for _, h := range t.heads {
		if h.entity != entity {
			continue
		}
		if start {
			h.OnGrabStart()
		} else {
			h.OnGrabEnd()
		}
		return true
	}
	return false
}

// Close releases the tool, drops its bus subscriptions and removes its
// entities from the scene.
func (t *Tool) Close() error {
	t.ReleaseTool()
	var all error
	for _, s := range t.subs {
		all = errors.Join(all, s.Cancel())
	}
	t.subs = nil
	if t.scene.Present(t.entity) {
		all = errors.Join(all, t.scene.Remove(t.entity))
	}
	return all
}

func (t *Tool) subscribe() error {
	for _, edge := range []struct {
		typ   string
		start bool
	}{{EventGrabStart, true}, {EventGrabEnd, false}} {
		start := edge.start
		sub, err := t.events.Subscribe(edge.typ, func(e bus.Event) error {
			g, ok := e.Data().(GrabEdge)
			if !ok {
				return fmt.Errorf("%s: unexpected payload %T", e.Type(), e.Data())
			}
			t.HandleGrab(g.Entity, start)
			return nil
		})
		if err != nil {
			return err
		}
		t.subs = append(t.subs, sub)
	}
	return nil
}

func (t *Tool) setState(next ToolState) {
	prev := t.state
	if prev == next {
		return
	}
	t.state = next
	t.log.Info("tool state",
		log.String("from", prev.String()),
		log.String("to", next.String()),
	)
	if t.events == nil {
		return
	}
	if err := t.events.Publish(bus.NewEvent(EventToolState, t.entity.String(), next, nil)); err != nil {
		t.log.Warn("tool state handler failed", log.Error(err))
	}
}

func (t *Tool) render(frame system.Frame) error {
	if len(t.onRender) == 0 {
		return nil
	}
	root := t.Render()
	for _, fn := range t.onRender {
		fn(frame, root)
	}
	return nil
}
