package bridge

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/resobridge/internal/protocol"
	"github.com/desertthunder/resobridge/internal/services"
)

type recordedTransition struct {
	state     *services.PlaybackState
	canvasURL string
}

type fakeHistory struct {
	recorded []recordedTransition
	err      error
}

func (f *fakeHistory) Record(ctx context.Context, state *services.PlaybackState, canvasURL string) error {
	f.recorded = append(f.recorded, recordedTransition{state: state, canvasURL: canvasURL})
	return f.err
}

func runBridge(t *testing.T, b *Bridge) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)
	return ctx
}

func TestBridgeSubmit(t *testing.T) {
	t.Run("Dispatches Through Loop", func(t *testing.T) {
		player := newFakePlayer()
		b := New(testDispatcher(player), nil, log.New(io.Discard))
		ctx := runBridge(t, b)

		reply := b.submit(ctx, protocol.Decode("pause"))
		if reply != "!statusPaused" {
			t.Errorf("unexpected reply %q", reply)
		}
		if player.calls["pause"] != 1 {
			t.Errorf("expected one pause call, got %d", player.calls["pause"])
		}
	})

	t.Run("Serializes Cache Access", func(t *testing.T) {
		player := newFakePlayer()
		player.results = []services.TrackSummary{
			{ID: "t1", URI: "spotify:track:t1", Name: "One More Time"},
		}
		b := New(testDispatcher(player), nil, log.New(io.Discard))
		ctx := runBridge(t, b)

		b.submit(ctx, protocol.Decode("search;daft punk;;nameartistcover"))
		reply := b.submit(ctx, protocol.Decode("addqueue;0;fromsearch"))
		if reply != "!statusAdded to queue: One More Time" {
			t.Errorf("unexpected reply %q", reply)
		}
	})

	t.Run("Returns Empty After Shutdown", func(t *testing.T) {
		b := New(testDispatcher(newFakePlayer()), nil, log.New(io.Discard))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if reply := b.submit(ctx, protocol.Decode("pause")); reply != "" {
			t.Errorf("expected empty reply after cancellation, got %q", reply)
		}
	})
}

func TestBridgeEvents(t *testing.T) {
	t.Run("Fans Out To All Sessions", func(t *testing.T) {
		b := New(testDispatcher(newFakePlayer()), nil, log.New(io.Discard))
		runBridge(t, b)

		var sessions []*Session
		for i := 0; i < 3; i++ {
			s := &Session{id: fmt.Sprintf("s%d", i), logger: log.New(io.Discard), out: make(chan string, outboundBuffer)}
			select {
			case b.register <- s:
			case <-time.After(time.Second):
				t.Fatal("register blocked")
			}
			sessions = append(sessions, s)
		}

		state := playingState()
		select {
		case b.Events() <- ChangeEvent{State: state, CanvasURL: "https://cdn/canvas.mp4"}:
		case <-time.After(time.Second):
			t.Fatal("event delivery blocked")
		}

		for _, s := range sessions {
			select {
			case frame := <-s.out:
				if !strings.HasPrefix(frame, protocol.TagCurrent) {
					t.Errorf("session %s: expected current frame, got %q", s.id, frame)
				}
				if !strings.Contains(frame, "https://cdn/canvas.mp4") {
					t.Errorf("session %s: expected canvas URL in %q", s.id, frame)
				}
			case <-time.After(time.Second):
				t.Fatalf("session %s received no frame", s.id)
			}
		}
	})

	t.Run("Stop Event Encodes As None", func(t *testing.T) {
		b := New(testDispatcher(newFakePlayer()), nil, log.New(io.Discard))
		runBridge(t, b)

		s := &Session{id: "s1", logger: log.New(io.Discard), out: make(chan string, outboundBuffer)}
		b.register <- s
		b.Events() <- ChangeEvent{}

		select {
		case frame := <-s.out:
			if frame != protocol.TagCurrentNone {
				t.Errorf("expected %q, got %q", protocol.TagCurrentNone, frame)
			}
		case <-time.After(time.Second):
			t.Fatal("no frame received")
		}
	})

	t.Run("Unregistered Session Receives Nothing", func(t *testing.T) {
		b := New(testDispatcher(newFakePlayer()), nil, log.New(io.Discard))
		runBridge(t, b)

		s := &Session{id: "s1", logger: log.New(io.Discard), out: make(chan string, outboundBuffer)}
		b.register <- s
		b.unregister <- s
		b.Events() <- ChangeEvent{State: playingState()}

		// The event lands on the loop before this submit returns, so an
		// empty buffer here means the fan-out skipped the session.
		b.submit(context.Background(), protocol.Decode("current"))
		select {
		case frame := <-s.out:
			t.Errorf("unexpected frame %q after unregister", frame)
		default:
		}
	})

	t.Run("Records History", func(t *testing.T) {
		history := &fakeHistory{}
		b := New(testDispatcher(newFakePlayer()), history, log.New(io.Discard))
		runBridge(t, b)

		b.Events() <- ChangeEvent{State: playingState(), CanvasURL: "https://cdn/c.mp4"}
		b.Events() <- ChangeEvent{}
		// Synchronize on the loop: both events precede this reply.
		b.submit(context.Background(), protocol.Decode("current"))

		if len(history.recorded) != 2 {
			t.Fatalf("expected 2 recorded transitions, got %d", len(history.recorded))
		}
		if history.recorded[0].state == nil || history.recorded[0].canvasURL != "https://cdn/c.mp4" {
			t.Errorf("unexpected first transition %+v", history.recorded[0])
		}
		if history.recorded[1].state != nil {
			t.Error("second transition should be the stop marker")
		}
	})

	t.Run("History Failure Does Not Stop The Loop", func(t *testing.T) {
		history := &fakeHistory{err: fmt.Errorf("disk full")}
		b := New(testDispatcher(newFakePlayer()), history, log.New(io.Discard))
		runBridge(t, b)

		b.Events() <- ChangeEvent{State: playingState()}
		reply := b.submit(context.Background(), protocol.Decode("pause"))
		if reply != "!statusPaused" {
			t.Errorf("loop should survive a history failure, got %q", reply)
		}
	})
}

func TestSessionPush(t *testing.T) {
	t.Run("Drops When Full", func(t *testing.T) {
		s := &Session{id: "s1", logger: log.New(io.Discard), out: make(chan string, 2)}

		s.Push("a")
		s.Push("b")
		s.Push("c") // dropped

		if got := len(s.out); got != 2 {
			t.Fatalf("expected 2 buffered frames, got %d", got)
		}
		if first := <-s.out; first != "a" {
			t.Errorf("expected oldest frame retained, got %q", first)
		}
	})

	t.Run("Enqueue Skips Empty Frames", func(t *testing.T) {
		s := &Session{id: "s1", logger: log.New(io.Discard), out: make(chan string, 2)}
		s.enqueue(context.Background(), "")
		if len(s.out) != 0 {
			t.Error("empty frames must not be queued")
		}
	})
}
