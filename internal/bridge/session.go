package bridge

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/resobridge/internal/protocol"
	"github.com/desertthunder/resobridge/internal/shared"
	"github.com/gorilla/websocket"
)

// outboundBuffer bounds the per-session broadcast queue. Delivery is
// best-effort: a client that cannot keep up misses frames rather than
// stalling the bridge.
const outboundBuffer = 16

// Session owns one WebSocket connection's lifecycle: the init snapshot, the
// inbound message loop, and the outbound write pump. It holds no other
// state; all commands mutate the single shared upstream account.
type Session struct {
	id     string
	conn   *websocket.Conn
	bridge *Bridge
	logger *log.Logger
	out    chan string
}

// newSession wraps an upgraded connection.
func newSession(conn *websocket.Conn, b *Bridge, logger *log.Logger) *Session {
	id := shared.GenerateID()
	return &Session{
		id:     id,
		conn:   conn,
		bridge: b,
		logger: shared.WithLogger(logger, "session", id),
		out:    make(chan string, outboundBuffer),
	}
}

// HandleConnection runs a session over conn until the client disconnects or
// ctx is cancelled. It blocks for the lifetime of the connection and always
// closes it on exit.
func (b *Bridge) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	s := newSession(conn, b, b.logger)

	select {
	case b.register <- s:
	case <-ctx.Done():
		conn.Close()
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writePump(sessionCtx)
	s.readLoop(sessionCtx)

	cancel()
	conn.Close()

	select {
	case b.unregister <- s:
	case <-ctx.Done():
	}
}

// readLoop sends the init snapshot, then processes inbound frames one at a
// time: decode, dispatch through the bridge loop, queue the reply. A bad
// message produces a status reply, never a dropped connection; only a
// transport error ends the loop.
func (s *Session) readLoop(ctx context.Context) {
	// Best-effort init snapshot; a failure downgrades to an initError
	// frame and the session continues.
	s.enqueue(ctx, s.bridge.submit(ctx, protocol.Command{Name: "init"}))

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed", "error", err)
			}
			return
		}

		reply := s.bridge.submit(ctx, protocol.Decode(string(data)))
		if reply == "" {
			// Bridge is shutting down.
			return
		}
		s.enqueue(ctx, reply)
	}
}

// enqueue queues a command reply. Replies block (preserving per-session
// order) while broadcasts from the monitor use Push and may drop.
func (s *Session) enqueue(ctx context.Context, frame string) {
	if frame == "" {
		return
	}
	select {
	case s.out <- frame:
	case <-ctx.Done():
	}
}

// Push queues a broadcast frame without blocking the bridge loop. Frames to
// a full buffer are dropped; there is no replay log.
func (s *Session) Push(frame string) {
	select {
	case s.out <- frame:
	default:
		s.logger.Debug("dropped broadcast frame, client too slow")
	}
}

// writePump serializes all writes to the connection. On cancellation it
// closes the connection so a readLoop blocked in ReadMessage unblocks; an
// idle client must not outlive the bridge that owns it.
func (s *Session) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.conn.Close()
			return
		case frame := <-s.out:
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				s.logger.Warn("write failed", "error", err)
				s.conn.Close()
				return
			}
		}
	}
}
