package ruler

import (
	"fmt"

	"github.com/zeusync/ruler/internal/config"
	"github.com/zeusync/ruler/internal/core/iface"
	"github.com/zeusync/ruler/internal/core/models"
	"github.com/zeusync/ruler/internal/core/observability/log"
	"github.com/zeusync/ruler/internal/core/scene"
	"github.com/zeusync/ruler/internal/core/spatial"
)

// Coordinator is what a head asks of the tool that carries it.
type Coordinator interface {
	// HeadGrabbed asks to make kind the active head. False means the grab is
	// ignored.
	HeadGrabbed(kind HeadKind) bool
	// clearActive drops kind as the active head once it has withdrawn.
	clearActive(kind HeadKind)
}

// Head controls one deployable measurement surface. It owns its deployment
// state and the session it opens; the base anchor id is only borrowed.
type Head struct {
	kind     HeadKind
	cfg      config.HeadConfig
	log      log.Log
	scene    *scene.Graph
	registry *iface.Registry
	tool     Coordinator

	entity    models.EntityID
	indicator models.EntityID
	base      models.EntityID
	rest      spatial.Pose

	deployed  bool
	session   *iface.Session
	transform spatial.Pose
}

func newHead(cfg config.HeadConfig, parent, base models.EntityID, rest spatial.Pose, g *scene.Graph, reg *iface.Registry, tool Coordinator, logger log.Log) (*Head, error) {
	entity, err := g.Create("head:"+cfg.Name, parent, rest)
	if err != nil {
		return nil, fmt.Errorf("create head %q: %w", cfg.Name, err)
	}
	indicator, err := g.Create("indicator:"+cfg.Name, entity, spatial.Translation(cfg.IndicatorOffset[0], cfg.IndicatorOffset[1], cfg.IndicatorOffset[2]))
	if err != nil {
		return nil, fmt.Errorf("create indicator %q: %w", cfg.Name, err)
	}
	return &Head{
		kind:      HeadKind(cfg.Name),
		cfg:       cfg,
		log:       logger.With(log.String("head", cfg.Name)),
		scene:     g,
		registry:  reg,
		tool:      tool,
		entity:    entity,
		indicator: indicator,
		base:      base,
		rest:      rest,
	}, nil
}

func (h *Head) Kind() HeadKind             { return h.kind }
func (h *Head) Interface() string          { return h.cfg.Interface }
func (h *Head) Entity() models.EntityID    { return h.entity }
func (h *Head) Indicator() models.EntityID { return h.indicator }
func (h *Head) Deployed() bool             { return h.deployed }
func (h *Head) Session() *iface.Session    { return h.session }
func (h *Head) Config() config.HeadConfig  { return h.cfg }

// OnGrabStart deploys the head: it becomes the tool's active head and opens
// a session locked to the base anchor. If the tool refuses, or no session can
// be opened, the head stays undeployed.
func (h *Head) OnGrabStart() {
	if h.deployed {
		return
	}
	if !h.tool.HeadGrabbed(h.kind) {
		h.log.Debug("grab ignored, another head is active or the tool is not held")
		return
	}
	h.deployed = true

	if err := h.registry.Lock(h.indicator, h.cfg.Interface, h.base); err != nil {
		h.log.Error("lock interface", log.Error(err))
		h.undeploy()
		return
	}
	s := h.registry.Open(h.indicator, h.base, h.cfg.Interface)
	if s == nil {
		h.undeploy()
		return
	}
	h.session = s
	h.transform = s.Transform()
	s.OnTransformUpdated(h.transformUpdated)
	s.OnEnded(h.sessionEnded)
	h.log.Info("head deployed", log.String("session", s.ID().String()))
}

// OnGrabEnd closes the session and returns the tool to its held state.
func (h *Head) OnGrabEnd() {
	if !h.deployed {
		h.resetPose()
		return
	}
	h.Withdraw()
	h.tool.clearActive(h.kind)
}

// Withdraw tears the head down without notifying the tool. The tool calls it
// when it is itself released. When Withdraw returns the session is
// terminated.
func (h *Head) Withdraw() {
	if !h.deployed && h.session == nil {
		return
	}
	h.deployed = false
	if h.session != nil {
		h.session.Close()
	}
	h.registry.Unlock(h.indicator, h.cfg.Interface)
	h.resetPose()
	h.log.Info("head withdrawn")
}

// Distance returns the last delivered distance to the base anchor.
func (h *Head) Distance() (float64, bool) {
	if h.session == nil {
		return 0, false
	}
	return h.transform.Distance(), true
}

// Readout returns the label text, or false when nothing should be shown.
func (h *Head) Readout() (string, bool) {
	d, ok := h.Distance()
	if !ok {
		return "", false
	}
	return FormatDistance(d), true
}

func (h *Head) transformUpdated(rel spatial.Pose) {
	h.transform = rel
}

func (h *Head) sessionEnded(reason iface.EndReason) {
	h.session = nil
	h.transform = spatial.Pose{}
	if !h.deployed {
		return
	}
	// withdrawn from the other side: the readout is gone, so the head is no
	// longer active even if the user still holds it
	h.log.Info("session lost", log.String("reason", reason.String()))
	h.undeploy()
}

// resetPose puts the head back on the tool after the grab primitive moved it.
func (h *Head) resetPose() {
	if err := h.scene.SetLocal(h.entity, h.rest); err != nil {
		h.log.Warn("reset head pose", log.Error(err))
	}
}

func (h *Head) undeploy() {
	h.deployed = false
	h.registry.Unlock(h.indicator, h.cfg.Interface)
	h.tool.clearActive(h.kind)
}
