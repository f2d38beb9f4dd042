package iface

import (
	"github.com/google/uuid"

	"github.com/zeusync/ruler/internal/core/models"
	"github.com/zeusync/ruler/internal/core/spatial"
)

// Session is the handle for one open channel. It is owned by whoever opened
// it; the registry only drives its frame updates and withdrawal detection.
type Session struct {
	id          uuid.UUID
	registry    *Registry
	transmitter models.EntityID
	receiver    models.EntityID
	iface       string

	state     State
	reason    EndReason
	transform spatial.Pose
	delivered bool
	lastFrame uint64

	updated []func(spatial.Pose)
	ended   []func(EndReason)
}

func (s *Session) ID() uuid.UUID                { return s.id }
func (s *Session) Transmitter() models.EntityID { return s.transmitter }
func (s *Session) Receiver() models.EntityID    { return s.receiver }
func (s *Session) Interface() string            { return s.iface }
func (s *Session) State() State                 { return s.state }
func (s *Session) Live() bool                   { return s.state == StateActive }

// Transform returns the most recent relative transform: the transmitter's
// pose in the receiver's frame.
func (s *Session) Transform() spatial.Pose { return s.transform }

// Info is a snapshot of the session for logs and lifecycle events.
func (s *Session) Info() SessionInfo {
	return SessionInfo{
		ID:          s.id,
		Transmitter: s.transmitter,
		Receiver:    s.receiver,
		Interface:   s.iface,
		Transform:   s.transform,
		Live:        s.Live(),
		Reason:      s.reason,
	}
}

// OnTransformUpdated registers fn to run on every frame where the relative
// pose changed, at most once per frame. The first call comes on the frame
// after Open. Registering on a terminated session does nothing.
func (s *Session) OnTransformUpdated(fn func(spatial.Pose)) {
	if fn == nil || s.state != StateActive {
		return
	}
	s.updated = append(s.updated, fn)
}

// OnEnded registers fn to run exactly once when the session terminates. On a
// session that already terminated fn runs immediately.
func (s *Session) OnEnded(fn func(EndReason)) {
	if fn == nil {
		return
	}
	if s.state == StateTerminated {
		fn(s.reason)
		return
	}
	s.ended = append(s.ended, fn)
}

// Close terminates the session. It is idempotent, and by the time it returns
// every OnEnded callback has run and no further updates will be delivered.
func (s *Session) Close() {
	s.end(EndClosed)
}

func (s *Session) deliver(frame uint64, rel spatial.Pose) {
	if s.state != StateActive || (s.delivered && s.lastFrame == frame) {
		return
	}
	if s.delivered && rel.ApproxEqual(s.transform, spatial.DefaultEpsilon) {
		return
	}
	s.transform = rel
	s.delivered = true
	s.lastFrame = frame
	for _, fn := range s.updated {
		// an update callback may close the session
		if s.state != StateActive {
			return
		}
		fn(rel)
	}
}

func (s *Session) end(reason EndReason) {
	if s.state != StateActive {
		return
	}
	s.state = StateTerminated
	s.reason = reason
	ended := s.ended
	s.updated = nil
	s.ended = nil
	for _, fn := range ended {
		fn(reason)
	}
	s.registry.release(s)
}
