// Package hostlink bridges a world to an external host runtime over a
// WebSocket. The host drives frames and reports grab edges and tracked poses;
// the bridge answers with the tool's visual tree whenever it changes.
package hostlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"github.com/zeusync/ruler/internal/config"
	"github.com/zeusync/ruler/internal/core/events/bus"
	"github.com/zeusync/ruler/internal/core/observability/log"
	"github.com/zeusync/ruler/internal/core/spatial"
	"github.com/zeusync/ruler/internal/core/system"
	"github.com/zeusync/ruler/internal/core/visual"
	"github.com/zeusync/ruler/internal/ruler"
)

var ErrBusy = errors.New("a host is already connected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Server accepts one host connection at a time. All world access happens on
// the goroutine serving that connection. Once Run or Serve has returned the
// server accepts no further hosts.
type Server struct {
	cfg   config.HostlinkConfig
	delta time.Duration
	world *system.World
	tool  *ruler.Tool
	log   log.Log

	busy atomic.Bool

	mu      sync.Mutex
	closing bool
	conn    *websocket.Conn
	done    chan struct{}

	// set by the render sink during Tick, read right after it
	rendered *visual.Node
	digest   uint64
}

// NewServer registers a render sink on tool to capture each frame's tree.
func NewServer(cfg *config.Config, world *system.World, tool *ruler.Tool, logger log.Log) *Server {
	s := &Server{
		cfg:   cfg.Hostlink,
		delta: cfg.FrameDelta(),
		world: world,
		tool:  tool,
		log:   logger.With(log.String("component", "hostlink")),
	}
	tool.OnRender(func(_ system.Frame, root *visual.Node) { s.rendered = root })
	return s
}

// Handler serves the WebSocket endpoint at the configured path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handle)
	return mux
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("hostlink: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts hosts on ln until ctx is cancelled. When it returns the
// host connection is closed and its handler has finished, so the world and
// tool are no longer touched from another goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("hostlink listening", log.String("addr", ln.Addr().String()), log.String("path", s.cfg.Path))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.disconnect()
		return fmt.Errorf("hostlink: %w", err)
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// Shutdown does not track hijacked connections, so the host is closed
	// separately.
	err := srv.Shutdown(shutdown)
	s.disconnect()
	if err != nil {
		return fmt.Errorf("hostlink shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("hostlink: %w", err)
	}
	return nil
}

// attach records conn as the live host. It fails once the server is closing.
func (s *Server) attach(conn *websocket.Conn) (chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return nil, false
	}
	s.conn = conn
	s.done = make(chan struct{})
	return s.done, true
}

func (s *Server) detach(done chan struct{}) {
	s.mu.Lock()
	s.conn = nil
	s.done = nil
	s.mu.Unlock()
	close(done)
}

// disconnect refuses new hosts, closes the live one and waits for its
// handler to return.
func (s *Server) disconnect() {
	s.mu.Lock()
	s.closing = true
	conn, done := s.conn, s.done
	s.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.Close()
	<-done
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if !s.busy.CompareAndSwap(false, true) {
		s.log.Warn("connection refused", log.String("remote", r.RemoteAddr), log.Error(ErrBusy))
		http.Error(w, ErrBusy.Error(), http.StatusConflict)
		return
	}
	defer s.busy.Store(false)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", log.String("remote", r.RemoteAddr), log.Error(err))
		return
	}
	done, ok := s.attach(conn)
	if !ok {
		_ = conn.Close()
		return
	}
	defer s.detach(done)
	defer conn.Close()

	l := s.log.With(log.String("remote", r.RemoteAddr))
	l.Info("host connected")
	s.digest = 0
	defer func() {
		// a vanished host cannot send the matching grab ends
		s.tool.ReleaseTool()
		l.Info("host disconnected")
	}()

	if err := s.write(conn, s.entities()); err != nil {
		l.Warn("send entities", log.Error(err))
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.Warn("read", log.Error(err))
			}
			return
		}
		reply, err := s.dispatch(data)
		if err != nil {
			l.Debug("bad message", log.Error(err))
			reply = Error{Type: TypeError, Message: err.Error()}
		}
		if reply == nil {
			continue
		}
		if err := s.write(conn, reply); err != nil {
			l.Warn("write", log.Error(err))
			return
		}
	}
}

// dispatch applies one host message. A nil reply means nothing is sent back.
func (s *Server) dispatch(data []byte) (any, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch msg.Type {
	case TypeTick:
		return s.tick(msg)
	case TypeGrab:
		return nil, s.grab(msg)
	case TypePose:
		return nil, s.pose(msg)
	default:
		return nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (s *Server) tick(msg Inbound) (any, error) {
	delta := s.delta
	if msg.DeltaMs > 0 {
		delta = time.Duration(msg.DeltaMs * float64(time.Millisecond))
	}
	s.rendered = nil
	if err := s.world.Tick(delta); err != nil {
		return nil, err
	}
	if s.rendered == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(s.rendered)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	digest := xxhash.Sum64(encoded)
	if digest == s.digest {
		return nil, nil
	}
	s.digest = digest
	return Frame{Type: TypeFrame, Frame: s.world.Frame().Number, Root: s.rendered}, nil
}

func (s *Server) grab(msg Inbound) error {
	var typ string
	switch msg.Edge {
	case EdgeStart:
		typ = ruler.EventGrabStart
	case EdgeEnd:
		typ = ruler.EventGrabEnd
	default:
		return fmt.Errorf("grab: unknown edge %q", msg.Edge)
	}
	if !s.world.Scene().Present(msg.Entity) {
		return fmt.Errorf("grab: unknown entity %s", msg.Entity)
	}
	events := s.world.Events()
	if events == nil {
		s.tool.HandleGrab(msg.Entity, msg.Edge == EdgeStart)
		return nil
	}
	return events.Publish(bus.NewEvent(typ, "hostlink", ruler.GrabEdge{Entity: msg.Entity}, nil))
}

func (s *Server) pose(msg Inbound) error {
	if msg.Position == nil {
		return errors.New("pose: position is required")
	}
	p := spatial.Pose{Position: mgl64.Vec3(*msg.Position), Rotation: mgl64.QuatIdent()}
	if r := msg.Rotation; r != nil {
		p.Rotation = mgl64.Quat{W: r[0], V: mgl64.Vec3{r[1], r[2], r[3]}}.Normalize()
	}
	if err := s.world.Scene().SetWorld(msg.Entity, p); err != nil {
		return fmt.Errorf("pose: %w", err)
	}
	return nil
}

func (s *Server) entities() Entities {
	out := Entities{Type: TypeEntities, Tool: s.tool.Entity(), Base: s.tool.Base()}
	for _, h := range s.tool.Heads() {
		out.Heads = append(out.Heads, HeadEntity{
			Name:      string(h.Kind()),
			Interface: h.Interface(),
			Entity:    h.Entity(),
			Indicator: h.Indicator(),
		})
	}
	return out
}

func (s *Server) write(conn *websocket.Conn, v any) error {
	if s.cfg.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			return err
		}
	}
	return conn.WriteJSON(v)
}
