// Package script runs YAML scenarios against a world and tool without a host.
// A scenario is a list of steps: grab and release edges, pose updates, frame
// ticks and expectations on the rendered readout and tool state.
package script

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/ruler/internal/config"
)

// Step ops.
const (
	OpGrabTool    = "grab_tool"
	OpReleaseTool = "release_tool"
	OpGrabHead    = "grab_head"
	OpReleaseHead = "release_head"
	OpPose        = "pose"
	OpTick        = "tick"
	OpExpectLabel = "expect_label"
	OpExpectState = "expect_state"
)

var (
	ErrUnknownOp   = errors.New("unknown step op")
	ErrExpectation = errors.New("expectation failed")
)

type Script struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Step is one scenario action. Which fields apply depends on Op:
// grab_head and release_head use Head, pose uses Entity, Position and
// RelativeTo, tick uses Count, expect_label uses Label (empty means no label
// is shown) and expect_state uses State.
type Step struct {
	Op         string      `json:"op" yaml:"op"`
	Head       string      `json:"head,omitempty" yaml:"head,omitempty"`
	Entity     string      `json:"entity,omitempty" yaml:"entity,omitempty"`
	Position   config.Vec3 `json:"position,omitempty" yaml:"position,omitempty"`
	RelativeTo string      `json:"relative_to,omitempty" yaml:"relative_to,omitempty"`
	Count      int         `json:"count,omitempty" yaml:"count,omitempty"`
	Label      string      `json:"label,omitempty" yaml:"label,omitempty"`
	State      string      `json:"state,omitempty" yaml:"state,omitempty"`
}

func (s Step) String() string {
	switch s.Op {
	case OpGrabHead, OpReleaseHead:
		return s.Op + " " + s.Head
	case OpPose:
		if s.RelativeTo != "" {
			return fmt.Sprintf("pose %s %v from %s", s.Entity, s.Position, s.RelativeTo)
		}
		return fmt.Sprintf("pose %s %v", s.Entity, s.Position)
	case OpTick:
		return fmt.Sprintf("tick %d", s.ticks())
	case OpExpectLabel:
		return fmt.Sprintf("expect_label %q", s.Label)
	case OpExpectState:
		return "expect_state " + s.State
	default:
		return s.Op
	}
}

func (s Step) ticks() int {
	if s.Count <= 0 {
		return 1
	}
	return s.Count
}

func (s Step) validate() error {
	switch s.Op {
	case OpGrabTool, OpReleaseTool, OpTick, OpExpectLabel:
		return nil
	case OpGrabHead, OpReleaseHead:
		if s.Head == "" {
			return fmt.Errorf("%s: head is required", s.Op)
		}
	case OpPose:
		if s.Entity == "" {
			return fmt.Errorf("pose: entity is required")
		}
	case OpExpectState:
		if s.State == "" {
			return fmt.Errorf("expect_state: state is required")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, s.Op)
	}
	return nil
}

// Load decodes a scenario from YAML and checks every step.
func Load(r io.Reader) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	for i, step := range s.Steps {
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &s, nil
}

// LoadFile reads a scenario from path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return Load(f)
}
