// Package iface negotiates locked, point-to-point pose channels between
// spatial entities. A receiver listens for a named interface; a transmitter
// locks that interface onto one receiver id and opens a Session, which then
// streams the transmitter's pose in the receiver's frame once per frame tick
// until either side withdraws.
package iface

import (
	"errors"

	"github.com/google/uuid"

	"github.com/zeusync/ruler/internal/core/models"
	"github.com/zeusync/ruler/internal/core/spatial"
)

var (
	ErrUnknownEntity  = errors.New("unknown entity")
	ErrEmptyInterface = errors.New("interface name is empty")
)

// Bus event types published by the registry.
const (
	EventSessionOpened = "iface.session.opened"
	EventSessionEnded  = "iface.session.ended"
)

// Scene is the slice of the scene graph the registry depends on.
type Scene interface {
	Present(models.EntityID) bool
	World(models.EntityID) (spatial.Pose, bool)
	OnRemoved(func(models.EntityID))
}

// EngagementFunc reports whether a transmitter and receiver are spatially
// engaged this frame. The host decides what that means (contact, proximity).
type EngagementFunc func(transmitter, receiver models.EntityID) bool

// State is the session lifecycle: Unopened -> Active -> Terminated.
type State uint8

const (
	StateUnopened State = iota
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// EndReason says why a session terminated.
type EndReason uint8

const (
	EndClosed EndReason = iota + 1
	EndTransmitterWithdrawn
	EndReceiverWithdrawn
	EndDisengaged
)

func (r EndReason) String() string {
	switch r {
	case EndClosed:
		return "closed"
	case EndTransmitterWithdrawn:
		return "transmitter_withdrawn"
	case EndReceiverWithdrawn:
		return "receiver_withdrawn"
	case EndDisengaged:
		return "disengaged"
	default:
		return "none"
	}
}

// Refusal explains why Open did not create a session. Refusals model physical
// conditions and are never reported as errors.
type Refusal uint8

const (
	RefusalNone Refusal = iota
	RefusalEmptyInterface
	RefusalTransmitterAbsent
	RefusalReceiverAbsent
	RefusalNoLock
	RefusalLockMismatch
	RefusalNotListening
	RefusalBusy
	RefusalDisengaged
)

func (r Refusal) String() string {
	switch r {
	case RefusalNone:
		return "none"
	case RefusalEmptyInterface:
		return "empty_interface"
	case RefusalTransmitterAbsent:
		return "transmitter_absent"
	case RefusalReceiverAbsent:
		return "receiver_absent"
	case RefusalNoLock:
		return "no_lock"
	case RefusalLockMismatch:
		return "lock_mismatch"
	case RefusalNotListening:
		return "not_listening"
	case RefusalBusy:
		return "busy"
	case RefusalDisengaged:
		return "disengaged"
	default:
		return "unknown"
	}
}

// Lock binds an interface on a transmitter to a single receiver.
type Lock struct {
	Interface string
	Receiver  models.EntityID
}

// SessionInfo is a point-in-time snapshot of a session.
type SessionInfo struct {
	ID          uuid.UUID
	Transmitter models.EntityID
	Receiver    models.EntityID
	Interface   string
	Transform   spatial.Pose
	Live        bool
	Reason      EndReason
}

type slotKey struct {
	transmitter models.EntityID
	iface       string
}
