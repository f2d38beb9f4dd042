package script

import (
	"fmt"
	"time"

	"github.com/zeusync/ruler/internal/core/models"
	"github.com/zeusync/ruler/internal/core/observability/log"
	"github.com/zeusync/ruler/internal/core/spatial"
	"github.com/zeusync/ruler/internal/core/system"
	"github.com/zeusync/ruler/internal/core/visual"
	"github.com/zeusync/ruler/internal/ruler"
)

// Runner plays scenarios against one world and tool.
type Runner struct {
	world *system.World
	tool  *ruler.Tool
	delta time.Duration
	log   log.Log
}

// Report summarises a finished run.
type Report struct {
	Name   string
	Steps  int
	Frame  uint64
	State  ruler.ToolState
	Label  string
	Shown  bool
	Failed int
}

// NewRunner steps world by delta on every tick step.
func NewRunner(world *system.World, tool *ruler.Tool, delta time.Duration, logger log.Log) *Runner {
	return &Runner{
		world: world,
		tool:  tool,
		delta: delta,
		log:   logger.With(log.String("component", "script")),
	}
}

// Run executes every step in order and stops at the first failing one. The
// report reflects the state after the last step that ran.
func (r *Runner) Run(s *Script) (Report, error) {
	rep := Report{Name: s.Name}
	for i, step := range s.Steps {
		err := r.step(step)
		rep.Steps = i + 1
		if err != nil {
			rep.Failed = i + 1
			r.fill(&rep)
			r.log.Warn("step failed",
				log.Int("step", i+1),
				log.String("op", step.String()),
				log.Error(err),
			)
			return rep, fmt.Errorf("step %d (%s): %w", i+1, step, err)
		}
		r.log.Debug("step done", log.Int("step", i+1), log.String("op", step.String()))
	}
	r.fill(&rep)
	r.log.Info("script finished",
		log.String("name", s.Name),
		log.Int("steps", rep.Steps),
		log.String("state", rep.State.String()),
	)
	return rep, nil
}

func (r *Runner) fill(rep *Report) {
	rep.Frame = r.world.Frame().Number
	rep.State = r.tool.State()
	rep.Label, rep.Shown = Label(r.tool.Render())
}

func (r *Runner) step(s Step) error {
	switch s.Op {
	case OpGrabTool:
		r.tool.GrabTool()
	case OpReleaseTool:
		r.tool.ReleaseTool()
	case OpGrabHead, OpReleaseHead:
		h, ok := r.tool.Head(ruler.HeadKind(s.Head))
		if !ok {
			return fmt.Errorf("no head %q", s.Head)
		}
		r.tool.HandleGrab(h.Entity(), s.Op == OpGrabHead)
	case OpPose:
		return r.pose(s)
	case OpTick:
		for i := 0; i < s.ticks(); i++ {
			if err := r.world.Tick(r.delta); err != nil {
				return err
			}
		}
	case OpExpectLabel:
		got, shown := Label(r.tool.Render())
		switch {
		case s.Label == "" && shown:
			return fmt.Errorf("%w: label %q shown, want none", ErrExpectation, got)
		case s.Label != "" && got != s.Label:
			return fmt.Errorf("%w: label %q, want %q", ErrExpectation, got, s.Label)
		}
	case OpExpectState:
		if got := r.tool.State().String(); got != s.State {
			return fmt.Errorf("%w: state %s, want %s", ErrExpectation, got, s.State)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, s.Op)
	}
	return nil
}

// pose places the named entity at Position, in world space or in
// RelativeTo's frame. Posing an indicator moves the head that carries it.
func (r *Runner) pose(s Step) error {
	g := r.world.Scene()
	id, ok := g.Find(s.Entity)
	if !ok {
		return fmt.Errorf("no entity %q", s.Entity)
	}
	frame := spatial.Identity()
	if s.RelativeTo != "" {
		ref, ok := g.Find(s.RelativeTo)
		if !ok {
			return fmt.Errorf("no entity %q", s.RelativeTo)
		}
		frame, _ = g.World(ref)
	}
	target := frame.Mul(spatial.Translation(s.Position[0], s.Position[1], s.Position[2]))

	moved, offset := r.carrier(id)
	return g.SetWorld(moved, target.Mul(offset.Inverse()))
}

// carrier returns the entity to move for id and id's pose relative to it.
// Indicators are fixed to their head, so the head is moved instead.
func (r *Runner) carrier(id models.EntityID) (models.EntityID, spatial.Pose) {
	for _, h := range r.tool.Heads() {
		if h.Indicator() == id {
			local, _ := r.world.Scene().Local(id)
			return h.Entity(), local
		}
	}
	return id, spatial.Identity()
}

// Label returns the visible readout text in a rendered tree.
func Label(root *visual.Node) (string, bool) {
	n, ok := visual.FindVisible(root, func(n *visual.Node) bool { return n.Kind == visual.KindLabel })
	if !ok {
		return "", false
	}
	return n.Label.Text, true
}
