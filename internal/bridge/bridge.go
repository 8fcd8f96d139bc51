// package bridge reconciles three asynchronous timelines (client commands,
// upstream polling, best-effort canvas lookups) into one ordered output
// stream per client.
//
// All shared mutable state (the search cache, the session set, the last
// observed playback key) is owned by a single loop goroutine; sessions and
// the monitor communicate with it over channels, so nothing here needs a
// lock.
package bridge

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/resobridge/internal/protocol"
	"github.com/desertthunder/resobridge/internal/services"
)

// HistoryRecorder persists playback transitions. Recording is best-effort:
// failures are logged and dropped.
type HistoryRecorder interface {
	Record(ctx context.Context, state *services.PlaybackState, canvasURL string) error
}

// request is one inbound command funneled from a session to the bridge loop.
type request struct {
	cmd   protocol.Command
	reply chan string
}

// Bridge owns the dispatcher, the monitor event stream, and the set of
// active sessions. One Bridge exists per supervisor incarnation.
type Bridge struct {
	dispatcher *Dispatcher
	history    HistoryRecorder
	logger     *log.Logger

	requests   chan request
	events     chan ChangeEvent
	register   chan *Session
	unregister chan *Session

	sessions map[*Session]struct{}
}

// New creates a bridge over the given dispatcher. history may be nil.
func New(dispatcher *Dispatcher, history HistoryRecorder, logger *log.Logger) *Bridge {
	return &Bridge{
		dispatcher: dispatcher,
		history:    history,
		logger:     logger,
		requests:   make(chan request),
		events:     make(chan ChangeEvent),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		sessions:   make(map[*Session]struct{}),
	}
}

// Events returns the channel the monitor delivers change events to.
func (b *Bridge) Events() chan<- ChangeEvent {
	return b.events
}

// Run executes the bridge loop until ctx is cancelled. Commands are
// dispatched one at a time in arrival order; within one session that
// preserves command order because the session waits for each reply before
// reading the next frame.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-b.requests:
			req.reply <- b.dispatcher.Dispatch(ctx, req.cmd)

		case event := <-b.events:
			b.handleEvent(ctx, event)

		case s := <-b.register:
			b.sessions[s] = struct{}{}
			b.logger.Info("client connected", "session", s.id, "active", len(b.sessions))

		case s := <-b.unregister:
			delete(b.sessions, s)
			b.logger.Info("client disconnected", "session", s.id, "active", len(b.sessions))
		}
	}
}

// handleEvent encodes a monitor transition and fans it out to every active
// session, then records it.
func (b *Bridge) handleEvent(ctx context.Context, event ChangeEvent) {
	frame := encodeEvent(event)
	for s := range b.sessions {
		s.Push(frame)
	}

	if b.history != nil {
		if err := b.history.Record(ctx, event.State, event.CanvasURL); err != nil {
			b.logger.Warn("history record failed", "error", err)
		}
	}
}

// encodeEvent renders a change event as the frame clients receive: a full
// current payload, or the none marker when playback stopped.
func encodeEvent(event ChangeEvent) string {
	if event.State == nil {
		return protocol.EncodeCurrentNone()
	}
	return protocol.EncodeCurrent(protocol.CurrentPayload{
		Artists:     strings.Join(event.State.ArtistNames, ", "),
		Album:       event.State.AlbumName,
		AlbumArtURL: event.State.AlbumArtURL,
		Track:       event.State.TrackName,
		Volume:      event.State.VolumePercent,
		ProgressMs:  event.State.ProgressMs,
		DurationMs:  event.State.DurationMs,
		IsPlaying:   event.State.IsPlaying,
		CanvasURL:   event.CanvasURL,
	})
}

// submit funnels one command through the loop and waits for its reply.
// Returns "" when the bridge is shutting down.
func (b *Bridge) submit(ctx context.Context, cmd protocol.Command) string {
	req := request{cmd: cmd, reply: make(chan string, 1)}

	select {
	case b.requests <- req:
	case <-ctx.Done():
		return ""
	}

	select {
	case reply := <-req.reply:
		return reply
	case <-ctx.Done():
		return ""
	}
}
