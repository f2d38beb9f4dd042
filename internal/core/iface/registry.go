package iface

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/zeusync/ruler/internal/core/events/bus"
	"github.com/zeusync/ruler/internal/core/models"
	"github.com/zeusync/ruler/internal/core/observability/log"
	"github.com/zeusync/ruler/internal/core/spatial"
)

// Registry matches transmitters against listening receivers under lock
// constraints and drives every open session once per frame. It belongs to the
// frame loop and is not safe for concurrent use.
type Registry struct {
	scene   Scene
	log     log.Log
	events  bus.EventBus
	engaged EngagementFunc

	receivers map[models.EntityID]map[string]struct{}
	locks     map[models.EntityID]map[string]models.EntityID

	sessions map[slotKey]*Session
	// open order, so that Tick visits sessions deterministically
	order []*Session
	frame uint64
}

// NewRegistry creates a registry over scene. events may be nil.
func NewRegistry(scene Scene, logger log.Log, events bus.EventBus) *Registry {
	r := &Registry{
		scene:     scene,
		log:       logger.With(log.String("component", "iface")),
		events:    events,
		receivers: make(map[models.EntityID]map[string]struct{}),
		locks:     make(map[models.EntityID]map[string]models.EntityID),
		sessions:  make(map[slotKey]*Session),
	}
	scene.OnRemoved(r.entityRemoved)
	return r
}

// SetEngagement installs the host's engagement predicate. With none set, two
// present entities are always engaged.
func (r *Registry) SetEngagement(fn EngagementFunc) {
	r.engaged = fn
}

// Listen declares receiver as accepting sessions for iface.
func (r *Registry) Listen(receiver models.EntityID, iface string) error {
	if iface == "" {
		return fmt.Errorf("listen on %s: %w", receiver, ErrEmptyInterface)
	}
	if !r.scene.Present(receiver) {
		return fmt.Errorf("listen on %s: %w", receiver, ErrUnknownEntity)
	}
	if r.receivers[receiver] == nil {
		r.receivers[receiver] = make(map[string]struct{})
	}
	r.receivers[receiver][iface] = struct{}{}
	return nil
}

// StopListening withdraws receiver from iface, ending its sessions on it.
func (r *Registry) StopListening(receiver models.EntityID, iface string) {
	if ifaces, ok := r.receivers[receiver]; ok {
		delete(ifaces, iface)
		if len(ifaces) == 0 {
			delete(r.receivers, receiver)
		}
	}
	for _, s := range r.snapshot() {
		if s.receiver == receiver && s.iface == iface {
			s.end(EndReceiverWithdrawn)
		}
	}
}

// Listening reports whether receiver accepts sessions for iface.
func (r *Registry) Listening(receiver models.EntityID, iface string) bool {
	_, ok := r.receivers[receiver][iface]
	return ok
}

// Lock binds iface on transmitter to receiver. A later Lock replaces an
// earlier one and ends any session bound to the old receiver.
func (r *Registry) Lock(transmitter models.EntityID, iface string, receiver models.EntityID) error {
	if iface == "" {
		return fmt.Errorf("lock on %s: %w", transmitter, ErrEmptyInterface)
	}
	if !r.scene.Present(transmitter) {
		return fmt.Errorf("lock on %s: %w", transmitter, ErrUnknownEntity)
	}
	if !receiver.Valid() {
		return fmt.Errorf("lock %s onto %s: %w", transmitter, receiver, ErrUnknownEntity)
	}
	if r.locks[transmitter] == nil {
		r.locks[transmitter] = make(map[string]models.EntityID)
	}
	if prev, ok := r.locks[transmitter][iface]; ok && prev != receiver {
		if s := r.sessions[slotKey{transmitter, iface}]; s != nil {
			s.end(EndTransmitterWithdrawn)
		}
	}
	r.locks[transmitter][iface] = receiver
	return nil
}

// Unlock removes the lock and ends the session it guarded, if any.
func (r *Registry) Unlock(transmitter models.EntityID, iface string) {
	if locks, ok := r.locks[transmitter]; ok {
		delete(locks, iface)
		if len(locks) == 0 {
			delete(r.locks, transmitter)
		}
	}
	if s := r.sessions[slotKey{transmitter, iface}]; s != nil {
		s.end(EndTransmitterWithdrawn)
	}
}

// LockOf returns the lock transmitter holds for iface.
func (r *Registry) LockOf(transmitter models.EntityID, iface string) (Lock, bool) {
	rx, ok := r.locks[transmitter][iface]
	if !ok {
		return Lock{}, false
	}
	return Lock{Interface: iface, Receiver: rx}, true
}

// Check reports why Open would be refused, or RefusalNone.
func (r *Registry) Check(transmitter, receiver models.EntityID, iface string) Refusal {
	switch {
	case iface == "":
		return RefusalEmptyInterface
	case !r.scene.Present(transmitter):
		return RefusalTransmitterAbsent
	case !r.scene.Present(receiver):
		return RefusalReceiverAbsent
	}
	locked, ok := r.locks[transmitter][iface]
	switch {
	case !ok:
		return RefusalNoLock
	case locked != receiver:
		return RefusalLockMismatch
	case !r.Listening(receiver, iface):
		return RefusalNotListening
	case r.sessions[slotKey{transmitter, iface}] != nil:
		return RefusalBusy
	case !r.isEngaged(transmitter, receiver):
		return RefusalDisengaged
	}
	return RefusalNone
}

// Open starts a session when transmitter holds a lock for (iface, receiver)
// and receiver is listening. Otherwise it returns nil: a refused open is a
// physical condition, not a fault.
func (r *Registry) Open(transmitter, receiver models.EntityID, iface string) *Session {
	if refusal := r.Check(transmitter, receiver, iface); refusal != RefusalNone {
		r.log.Debug("session refused",
			log.String("transmitter", transmitter.String()),
			log.String("receiver", receiver.String()),
			log.String("interface", iface),
			log.String("reason", refusal.String()),
		)
		return nil
	}

	s := &Session{
		id:          uuid.New(),
		registry:    r,
		transmitter: transmitter,
		receiver:    receiver,
		iface:       iface,
		state:       StateActive,
	}
	s.transform, _ = r.relative(transmitter, receiver)
	r.sessions[slotKey{transmitter, iface}] = s
	r.order = append(r.order, s)

	r.log.Info("session opened",
		log.String("session", s.id.String()),
		log.String("transmitter", transmitter.String()),
		log.String("receiver", receiver.String()),
		log.String("interface", iface),
	)
	r.publish(EventSessionOpened, s)
	return s
}

// Active returns the live session for (transmitter, iface), if any.
func (r *Registry) Active(transmitter models.EntityID, iface string) (*Session, bool) {
	s, ok := r.sessions[slotKey{transmitter, iface}]
	return s, ok
}

// Sessions returns snapshots of every live session in open order.
func (r *Registry) Sessions() []SessionInfo {
	out := make([]SessionInfo, 0, len(r.order))
	for _, s := range r.order {
		out = append(out, s.Info())
	}
	return out
}

// Tick advances every live session by one frame: withdrawals are detected
// first, then changed transforms are delivered.
func (r *Registry) Tick(frame uint64) {
	r.frame = frame
	for _, s := range r.snapshot() {
		if !s.Live() {
			continue
		}
		if reason, withdrawn := r.withdrawn(s); withdrawn {
			s.end(reason)
			continue
		}
		rel, ok := r.relative(s.transmitter, s.receiver)
		if !ok {
			continue
		}
		s.deliver(frame, rel)
	}
}

// Frame is the last frame passed to Tick.
func (r *Registry) Frame() uint64 {
	return r.frame
}

func (r *Registry) withdrawn(s *Session) (EndReason, bool) {
	switch {
	case !r.scene.Present(s.transmitter):
		return EndTransmitterWithdrawn, true
	case !r.scene.Present(s.receiver):
		return EndReceiverWithdrawn, true
	case !r.Listening(s.receiver, s.iface):
		return EndReceiverWithdrawn, true
	}
	if lock, ok := r.LockOf(s.transmitter, s.iface); !ok || lock.Receiver != s.receiver {
		return EndTransmitterWithdrawn, true
	}
	if !r.isEngaged(s.transmitter, s.receiver) {
		return EndDisengaged, true
	}
	return 0, false
}

func (r *Registry) isEngaged(transmitter, receiver models.EntityID) bool {
	if r.engaged == nil {
		return true
	}
	return r.engaged(transmitter, receiver)
}

func (r *Registry) relative(transmitter, receiver models.EntityID) (spatial.Pose, bool) {
	tw, ok := r.scene.World(transmitter)
	if !ok {
		return spatial.Pose{}, false
	}
	rw, ok := r.scene.World(receiver)
	if !ok {
		return spatial.Pose{}, false
	}
	return spatial.Relative(rw, tw), true
}

// release frees the slot of a terminated session. Called after its OnEnded
// callbacks have run, so the slot cannot be reused before they finish.
func (r *Registry) release(s *Session) {
	key := slotKey{s.transmitter, s.iface}
	if r.sessions[key] == s {
		delete(r.sessions, key)
	}
	for i, cur := range r.order {
		if cur == s {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.log.Info("session ended",
		log.String("session", s.id.String()),
		log.String("reason", s.reason.String()),
	)
	r.publish(EventSessionEnded, s)
}

func (r *Registry) entityRemoved(id models.EntityID) {
	delete(r.receivers, id)
	delete(r.locks, id)
	for _, s := range r.snapshot() {
		switch id {
		case s.transmitter:
			s.end(EndTransmitterWithdrawn)
		case s.receiver:
			s.end(EndReceiverWithdrawn)
		}
	}
}

func (r *Registry) snapshot() []*Session {
	out := make([]*Session, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) publish(eventType string, s *Session) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(bus.NewEvent(eventType, s.transmitter.String(), s.Info(), nil)); err != nil {
		r.log.Warn("session event handler failed", log.String("event", eventType), log.Error(err))
	}
}
