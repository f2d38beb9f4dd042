// Package ruler implements the measuring gadget: a grabbable tool with a fixed
// base anchor and deployable measurement heads. A deployed head locks its
// interface onto the base anchor and shows the live distance between them.
package ruler

import (
	"fmt"

	"github.com/zeusync/ruler/internal/config"
	"github.com/zeusync/ruler/internal/core/models"
)

// HeadKind names a measurement head. HeadNone means no head is deployed.
type HeadKind string

const (
	HeadNone   HeadKind = ""
	HeadSquare HeadKind = config.SquareHead
)

func (k HeadKind) String() string {
	if k == HeadNone {
		return "none"
	}
	return string(k)
}

// Mode is the coarse state of the tool.
type Mode uint8

const (
	ModeNeutral Mode = iota
	ModeHeld
	ModeHeadActive
)

func (m Mode) String() string {
	switch m {
	case ModeNeutral:
		return "neutral"
	case ModeHeld:
		return "held"
	case ModeHeadActive:
		return "active"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ToolState is owned by Tool. ActiveHead is only set while the head's
// session is live, and releasing the tool always clears it.
type ToolState struct {
	HeldByUser bool     `json:"held_by_user"`
	ActiveHead HeadKind `json:"active_head"`
}

// Mode collapses the state into Neutral, Held or HeadActive.
func (s ToolState) Mode() Mode {
	switch {
	case !s.HeldByUser:
		return ModeNeutral
	case s.ActiveHead != HeadNone:
		return ModeHeadActive
	default:
		return ModeHeld
	}
}

func (s ToolState) String() string {
	if s.Mode() == ModeHeadActive {
		return "active:" + string(s.ActiveHead)
	}
	return s.Mode().String()
}

// Bus event types. Grab edges come from the host's grab primitive; state
// changes are published by the tool.
const (
	EventGrabStart = "grab.start"
	EventGrabEnd   = "grab.end"
	EventToolState = "ruler.state"
)

// GrabEdge is the payload of EventGrabStart and EventGrabEnd.
type GrabEdge struct {
	Entity models.EntityID
}
