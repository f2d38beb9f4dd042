package system

import (
	"fmt"
	"time"
)

// ExecutionPhase defines when a system runs within a frame.
type ExecutionPhase uint8

const (
	PhasePreUpdate ExecutionPhase = iota
	PhaseUpdate
	PhasePostUpdate
	PhaseLateUpdate
	PhasePreRender
	PhaseRender
	PhasePostRender
)

func (p ExecutionPhase) String() string {
	switch p {
	case PhasePreUpdate:
		return "pre_update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post_update"
	case PhaseLateUpdate:
		return "late_update"
	case PhasePreRender:
		return "pre_render"
	case PhaseRender:
		return "render"
	case PhasePostRender:
		return "post_render"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Frame describes the tick being processed.
type Frame struct {
	Number uint64
	Delta  time.Duration
	Total  time.Duration
}

// System is a unit of per-frame work.
type System interface {
	Name() string
	Phase() ExecutionPhase
	Update(frame Frame) error
}

// Func adapts a function to the System interface.
func Func(name string, phase ExecutionPhase, fn func(Frame) error) System {
	return funcSystem{name: name, phase: phase, fn: fn}
}

type funcSystem struct {
	name  string
	phase ExecutionPhase
	fn    func(Frame) error
}

func (s funcSystem) Name() string             { return s.name }
func (s funcSystem) Phase() ExecutionPhase    { return s.phase }
func (s funcSystem) Update(frame Frame) error { return s.fn(frame) }
