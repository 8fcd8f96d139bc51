package bridge

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/resobridge/internal/services"
	"github.com/desertthunder/resobridge/internal/shared"
)

func testMonitor(player services.Player, events chan ChangeEvent) *Monitor {
	return NewMonitor(player, nil, events, log.New(io.Discard), time.Second, 5*time.Second)
}

func drain(events chan ChangeEvent) []ChangeEvent {
	var got []ChangeEvent
	for {
		select {
		case e := <-events:
			got = append(got, e)
		default:
			return got
		}
	}
}

func TestMonitorTick(t *testing.T) {
	ctx := context.Background()

	t.Run("First Observation Emits", func(t *testing.T) {
		player := newFakePlayer()
		player.state = playingState()
		events := make(chan ChangeEvent, 4)
		m := testMonitor(player, events)

		if err := m.tick(ctx); err != nil {
			t.Fatalf("tick failed: %v", err)
		}

		got := drain(events)
		if len(got) != 1 {
			t.Fatalf("expected 1 event, got %d", len(got))
		}
		if got[0].State == nil || got[0].State.TrackID != "t1" {
			t.Errorf("unexpected event state %+v", got[0].State)
		}
	})

	t.Run("Identical Key Stays Silent", func(t *testing.T) {
		player := newFakePlayer()
		player.state = playingState()
		events := make(chan ChangeEvent, 4)
		m := testMonitor(player, events)

		for i := 0; i < 3; i++ {
			if err := m.tick(ctx); err != nil {
				t.Fatalf("tick %d failed: %v", i, err)
			}
		}

		if got := drain(events); len(got) != 1 {
			t.Errorf("expected 1 event over 3 identical polls, got %d", len(got))
		}
	})

	t.Run("Progress Drift Is Not A Change", func(t *testing.T) {
		player := newFakePlayer()
		player.state = playingState()
		events := make(chan ChangeEvent, 4)
		m := testMonitor(player, events)

		m.tick(ctx)
		player.state.ProgressMs += 1000
		player.state.VolumePercent = 30
		m.tick(ctx)

		if got := drain(events); len(got) != 1 {
			t.Errorf("expected progress and volume drift to be silent, got %d events", len(got))
		}
	})

	t.Run("Pause Flip Emits Once", func(t *testing.T) {
		player := newFakePlayer()
		player.state = playingState()
		events := make(chan ChangeEvent, 4)
		m := testMonitor(player, events)

		m.tick(ctx)
		player.state.IsPlaying = false
		m.tick(ctx)
		m.tick(ctx)

		got := drain(events)
		if len(got) != 2 {
			t.Fatalf("expected exactly 2 events, got %d", len(got))
		}
		if got[1].State.IsPlaying {
			t.Error("second event should carry the paused state")
		}
	})

	t.Run("Track Change Emits", func(t *testing.T) {
		player := newFakePlayer()
		player.state = playingState()
		events := make(chan ChangeEvent, 4)
		m := testMonitor(player, events)

		m.tick(ctx)
		player.state = playingState()
		player.state.TrackID = "t2"
		player.state.TrackURI = "spotify:track:t2"
		m.tick(ctx)

		got := drain(events)
		if len(got) != 2 {
			t.Fatalf("expected 2 events, got %d", len(got))
		}
		if got[1].State.TrackID != "t2" {
			t.Errorf("expected new track in second event, got %q", got[1].State.TrackID)
		}
	})

	t.Run("Stop Transition", func(t *testing.T) {
		player := newFakePlayer()
		player.state = playingState()
		events := make(chan ChangeEvent, 4)
		m := testMonitor(player, events)

		m.tick(ctx)
		player.state = nil
		m.tick(ctx)
		m.tick(ctx)

		got := drain(events)
		if len(got) != 2 {
			t.Fatalf("expected 2 events, got %d", len(got))
		}
		if got[1].State != nil {
			t.Error("stop event must carry a nil state")
		}
	})

	t.Run("Idle Start Stays Silent", func(t *testing.T) {
		player := newFakePlayer()
		events := make(chan ChangeEvent, 4)
		m := testMonitor(player, events)

		m.tick(ctx)
		m.tick(ctx)

		if got := drain(events); len(got) != 0 {
			t.Errorf("expected no events while idle, got %d", len(got))
		}
	})

	t.Run("Poll Error Keeps Last Key", func(t *testing.T) {
		player := newFakePlayer()
		player.state = playingState()
		events := make(chan ChangeEvent, 4)
		m := testMonitor(player, events)

		m.tick(ctx)
		player.stateErr = fmt.Errorf("%w: transient", shared.ErrAPIRequest)
		if err := m.tick(ctx); err == nil {
			t.Fatal("expected tick to surface the poll error")
		}

		// Recovery with the same track must not re-announce it.
		player.stateErr = nil
		m.tick(ctx)

		if got := drain(events); len(got) != 1 {
			t.Errorf("expected 1 event across the error window, got %d", len(got))
		}
	})
}

func TestMonitorRun(t *testing.T) {
	t.Run("Stops On Cancellation", func(t *testing.T) {
		player := newFakePlayer()
		events := make(chan ChangeEvent, 4)
		m := testMonitor(player, events)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- m.Run(ctx) }()

		cancel()
		select {
		case err := <-done:
			if err != context.Canceled {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("monitor did not stop after cancellation")
		}
	})
}
