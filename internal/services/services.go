// package services defines the [Player] interface for the upstream playback
// service and implements it for the Spotify Web API.
package services

import (
	"context"
)

// RepeatMode names a repeat setting on the upstream player.
type RepeatMode string

const (
	RepeatOff     RepeatMode = "off"
	RepeatContext RepeatMode = "context"
	RepeatTrack   RepeatMode = "track"
)

// PlaybackState is an immutable snapshot of the upstream player, produced by
// polling. Compared by value to detect change.
type PlaybackState struct {
	IsPlaying     bool
	TrackID       string
	TrackURI      string
	TrackName     string
	ArtistNames   []string
	AlbumName     string
	AlbumArtURL   string
	ProgressMs    int
	DurationMs    int
	VolumePercent int
	ShuffleOn     bool
	RepeatMode    RepeatMode
}

// TrackSummary is one search hit: the subset of track fields the client
// protocol carries.
type TrackSummary struct {
	ID          string
	URI         string
	Name        string
	ArtistNames []string
	CoverURL    string
}

// Playlist is one entry of the user's playlist collection.
type Playlist struct {
	ID      string
	URI     string
	Name    string
	IconURL string
}

// Player defines the operations the bridge needs from the upstream playback
// service. All calls take a context and surface upstream failures as plain
// errors; the dispatcher converts them to wire status messages per command.
type Player interface {
	// CurrentPlayback returns the current playback snapshot, or (nil, nil)
	// when nothing is playing on any device.
	CurrentPlayback(ctx context.Context) (*PlaybackState, error)

	// Next skips to the next track.
	Next(ctx context.Context) error

	// Previous skips to the previous track.
	Previous(ctx context.Context) error

	// Pause pauses playback.
	Pause(ctx context.Context) error

	// Resume resumes playback.
	Resume(ctx context.Context) error

	// SetVolume sets the playback volume (0-100).
	SetVolume(ctx context.Context, percent int) error

	// SetShuffle turns shuffle on or off.
	SetShuffle(ctx context.Context, on bool) error

	// SetRepeat sets the repeat mode.
	SetRepeat(ctx context.Context, mode RepeatMode) error

	// Search returns up to limit track matches for the query.
	Search(ctx context.Context, query string, limit int) ([]TrackSummary, error)

	// AddToQueue appends a track to the playback queue.
	AddToQueue(ctx context.Context, trackURI string) error

	// PlayContext starts playback of a context (playlist, album) by URI.
	PlayContext(ctx context.Context, contextURI string) error

	// Seek moves the playhead of the current track.
	Seek(ctx context.Context, positionMs int) error

	// Playlists returns the user's playlists.
	Playlists(ctx context.Context) ([]Playlist, error)
}
