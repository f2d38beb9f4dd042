// Package system runs the cooperative frame loop. Every session update,
// state transition and render happens on the goroutine that calls Tick; no
// work runs in parallel and nothing blocks waiting for a frame.
package system

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zeusync/ruler/internal/core/events/bus"
	"github.com/zeusync/ruler/internal/core/iface"
	"github.com/zeusync/ruler/internal/core/observability/log"
	"github.com/zeusync/ruler/internal/core/scene"
)

const sessionSystemName = "iface.sessions"

var (
	ErrSystemExists   = errors.New("system already registered")
	ErrSystemNotFound = errors.New("system not found")
)

type entry struct {
	system System
	seq    int
}

// World owns the scene graph, the interface registry and the ordered systems
// that run each frame. Sessions always update in PhaseUpdate, before anything
// in a render phase reads them.
type World struct {
	log      log.Log
	events   bus.EventBus
	scene    *scene.Graph
	registry *iface.Registry

	systems []entry
	nextSeq int
	frame   Frame
	paused  bool
}

func NewWorld(logger log.Log, events bus.EventBus) *World {
	graph := scene.New()
	w := &World{
		log:      logger.With(log.String("component", "world")),
		events:   events,
		scene:    graph,
		registry: iface.NewRegistry(graph, logger, events),
	}
	_ = w.RegisterSystem(Func(sessionSystemName, PhaseUpdate, func(f Frame) error {
		w.registry.Tick(f.Number)
		return nil
	}))
	return w
}

func (w *World) Scene() *scene.Graph       { return w.scene }
func (w *World) Registry() *iface.Registry { return w.registry }
func (w *World) Events() bus.EventBus      { return w.events }
func (w *World) Log() log.Log              { return w.log }
func (w *World) Frame() Frame              { return w.frame }
func (w *World) IsPaused() bool            { return w.paused }
func (w *World) SetPaused(paused bool)     { w.paused = paused }

// RegisterSystem adds s. Systems run by phase, then in registration order.
func (w *World) RegisterSystem(s System) error {
	if w.HasSystem(s.Name()) {
		return fmt.Errorf("register %q: %w", s.Name(), ErrSystemExists)
	}
	w.systems = append(w.systems, entry{system: s, seq: w.nextSeq})
	w.nextSeq++
	sort.SliceStable(w.systems, func(i, j int) bool {
		a, b := w.systems[i], w.systems[j]
		if a.system.Phase() != b.system.Phase() {
			return a.system.Phase() < b.system.Phase()
		}
		return a.seq < b.seq
	})
	return nil
}

func (w *World) UnregisterSystem(name string) error {
	for i, e := range w.systems {
		if e.system.Name() == name {
			w.systems = append(w.systems[:i], w.systems[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("unregister %q: %w", name, ErrSystemNotFound)
}

func (w *World) HasSystem(name string) bool {
	for _, e := range w.systems {
		if e.system.Name() == name {
			return true
		}
	}
	return false
}

// ExecutionOrder lists system names in the order Tick runs them.
func (w *World) ExecutionOrder() []string {
	out := make([]string, len(w.systems))
	for i, e := range w.systems {
		out[i] = e.system.Name()
	}
	return out
}

// Tick advances one frame. A failing system is logged and the remaining
// systems still run; the joined error is returned.
func (w *World) Tick(delta time.Duration) error {
	if w.paused {
		return nil
	}
	w.frame.Number++
	w.frame.Delta = delta
	w.frame.Total += delta

	var all error
	for _, e := range w.systems {
		if err := e.system.Update(w.frame); err != nil {
			w.log.Error("system update failed",
				log.String("system", e.system.Name()),
				log.String("phase", e.system.Phase().String()),
				log.Uint64("frame", w.frame.Number),
				log.Error(err),
			)
			all = errors.Join(all, fmt.Errorf("%s: %w", e.system.Name(), err))
		}
	}
	return all
}
