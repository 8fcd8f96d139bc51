package bridge

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/resobridge/internal/services"
)

// playbackKey is the comparison key for change detection. Progress ticks and
// volume/shuffle/repeat drift do not trigger a push; clients refresh those
// via current and init.
type playbackKey struct {
	isPlaying bool
	trackID   string
	trackURI  string
}

func keyOf(state *services.PlaybackState) playbackKey {
	return playbackKey{
		isPlaying: state.IsPlaying,
		trackID:   state.TrackID,
		trackURI:  state.TrackURI,
	}
}

// ChangeEvent is emitted by the monitor when the playback key transitions.
// A nil State means playback stopped.
type ChangeEvent struct {
	State     *services.PlaybackState
	CanvasURL string
}

// Monitor polls the upstream player on a fixed interval, diffs against the
// last observed playback key, and emits change events. Poll errors back off
// to a longer interval but never terminate the loop; only context
// cancellation stops it.
type Monitor struct {
	player  services.Player
	canvas  *services.CanvasService
	logger  *log.Logger
	events  chan<- ChangeEvent
	poll    time.Duration
	backoff time.Duration

	// last observed key; nil while idle (no playback)
	last *playbackKey
}

// NewMonitor creates a monitor that delivers change events to events.
// Intervals fall back to 1s poll / 5s backoff when zero-valued.
func NewMonitor(player services.Player, canvas *services.CanvasService, events chan<- ChangeEvent, logger *log.Logger, poll, backoff time.Duration) *Monitor {
	if poll <= 0 {
		poll = time.Second
	}
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Monitor{
		player:  player,
		canvas:  canvas,
		logger:  logger,
		events:  events,
		poll:    poll,
		backoff: backoff,
	}
}

// Run executes the poll loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		interval := m.poll
		if err := m.tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("playback poll failed", "error", err)
			interval = m.backoff
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tick performs one poll and emits at most one change event.
func (m *Monitor) tick(ctx context.Context) error {
	state, err := m.player.CurrentPlayback(ctx)
	if err != nil {
		return err
	}

	if state == nil {
		if m.last != nil {
			m.logger.Info("playback stopped")
			m.last = nil
			m.emit(ctx, ChangeEvent{})
		}
		return nil
	}

	key := keyOf(state)
	if m.last != nil && *m.last == key {
		return nil
	}

	canvasURL := ""
	if m.canvas != nil {
		canvasURL = m.canvas.ResolveDownloadURL(ctx, state.TrackURI)
	}

	m.logger.Info("playback changed",
		"track", state.TrackName,
		"playing", state.IsPlaying,
		"canvas", canvasURL != "")
	m.last = &key
	m.emit(ctx, ChangeEvent{State: state, CanvasURL: canvasURL})
	return nil
}

func (m *Monitor) emit(ctx context.Context, event ChangeEvent) {
	select {
	case m.events <- event:
	case <-ctx.Done():
	}
}
