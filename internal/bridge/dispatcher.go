package bridge

import (
	"context"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/resobridge/internal/protocol"
	"github.com/desertthunder/resobridge/internal/services"
)

// commandKind is the closed set of commands the bridge accepts. Adding a
// command means adding a kind here and a case to Dispatch; the compiler
// keeps the two in sync.
type commandKind int

const (
	cmdUnknown commandKind = iota
	cmdInit
	cmdCurrent
	cmdPlaylists
	cmdNext
	cmdPrev
	cmdPause
	cmdResume
	cmdVolume
	cmdShuffle
	cmdRepeat
	cmdSearch
	cmdAddQueue
	cmdPlayPlaylist
	cmdSeek
)

// searchModeTriples is the only recognized search mode: name, artist and
// cover per result row.
const searchModeTriples = "nameartistcover"

// searchLimit caps how many results a search stores and returns.
const searchLimit = 25

func kindOf(name string) commandKind {
	switch name {
	case "init":
		return cmdInit
	case "current":
		return cmdCurrent
	case "playlists":
		return cmdPlaylists
	case "next":
		return cmdNext
	case "prev":
		return cmdPrev
	case "pause":
		return cmdPause
	case "resume":
		return cmdResume
	case "volume":
		return cmdVolume
	case "shuffle":
		return cmdShuffle
	case "repeat":
		return cmdRepeat
	case "search":
		return cmdSearch
	case "addqueue":
		return cmdAddQueue
	case "playplaylist":
		return cmdPlayPlaylist
	case "seek":
		return cmdSeek
	default:
		return cmdUnknown
	}
}

// Dispatcher maps decoded commands to upstream player actions and converts
// every failure into a wire status message. It owns the search result cache:
// one cache process-wide, overwritten by each search, read by addqueue.
//
// Dispatch runs only on the bridge loop goroutine, so the cache needs no
// locking.
type Dispatcher struct {
	player      services.Player
	canvas      *services.CanvasService
	logger      *log.Logger
	searchCache []services.TrackSummary
}

// NewDispatcher creates a dispatcher over the given player and canvas
// resolver.
func NewDispatcher(player services.Player, canvas *services.CanvasService, logger *log.Logger) *Dispatcher {
	return &Dispatcher{player: player, canvas: canvas, logger: logger}
}

// Dispatch executes one command and returns the response frame. It never
// returns an error: upstream failures and malformed input become status
// frames, keeping the session loop alive.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd protocol.Command) string {
	switch kindOf(cmd.Name) {
	case cmdInit:
		return d.handleInit(ctx)
	case cmdCurrent:
		return d.handleCurrent(ctx)
	case cmdPlaylists:
		return d.handlePlaylists(ctx)
	case cmdNext:
		return d.simple(ctx, d.player.Next, "Playing next track", "Error playing next track")
	case cmdPrev:
		return d.simple(ctx, d.player.Previous, "Playing previous track", "Error playing previous track")
	case cmdPause:
		return d.simple(ctx, d.player.Pause, "Paused", "Error pausing playback")
	case cmdResume:
		return d.simple(ctx, d.player.Resume, "Resumed", "Error resuming playback")
	case cmdVolume:
		return d.handleVolume(ctx, cmd.Args[0])
	case cmdShuffle:
		return d.handleShuffle(ctx, cmd.Args[0])
	case cmdRepeat:
		return d.handleRepeat(ctx, cmd.Args[0])
	case cmdSearch:
		return d.handleSearch(ctx, cmd.Args[0], cmd.Args[2])
	case cmdAddQueue:
		return d.handleAddQueue(ctx, cmd.Args[0], cmd.Args[1])
	case cmdPlayPlaylist:
		return d.handlePlayPlaylist(ctx, cmd.Args[0])
	case cmdSeek:
		return d.handleSeek(ctx, cmd.Args[0])
	case cmdUnknown:
		return protocol.EncodeStatus("Unknown Command")
	default:
		return protocol.EncodeStatus("Unknown Command")
	}
}

// simple wraps the one-call commands: a single upstream operation, a fixed
// success message, a fixed failure message. No retries.
func (d *Dispatcher) simple(ctx context.Context, op func(context.Context) error, ok, fail string) string {
	if err := op(ctx); err != nil {
		d.logger.Warn("command failed", "error", err)
		return protocol.EncodeStatus(fail)
	}
	return protocol.EncodeStatus(ok)
}

func (d *Dispatcher) handleInit(ctx context.Context) string {
	state, err := d.player.CurrentPlayback(ctx)
	if err != nil {
		d.logger.Warn("init snapshot failed", "error", err)
		return protocol.EncodeInitError()
	}
	if state == nil {
		return protocol.EncodeInit(false, string(services.RepeatOff), false)
	}
	return protocol.EncodeInit(state.ShuffleOn, string(state.RepeatMode), state.IsPlaying)
}

func (d *Dispatcher) handleCurrent(ctx context.Context) string {
	state, err := d.player.CurrentPlayback(ctx)
	if err != nil {
		d.logger.Warn("current playback failed", "error", err)
		return protocol.EncodeStatus("Error fetching current playback")
	}
	if state == nil {
		return protocol.EncodeCurrentNone()
	}

	canvasURL := ""
	if d.canvas != nil {
		canvasURL = d.canvas.ResolveDownloadURL(ctx, state.TrackURI)
	}

	return protocol.EncodeCurrent(protocol.CurrentPayload{
		Artists:     strings.Join(state.ArtistNames, ", "),
		Album:       state.AlbumName,
		AlbumArtURL: state.AlbumArtURL,
		Track:       state.TrackName,
		Volume:      state.VolumePercent,
		ProgressMs:  state.ProgressMs,
		DurationMs:  state.DurationMs,
		IsPlaying:   state.IsPlaying,
		CanvasURL:   canvasURL,
	})
}

func (d *Dispatcher) handlePlaylists(ctx context.Context) string {
	playlists, err := d.player.Playlists(ctx)
	if err != nil {
		d.logger.Warn("playlist fetch failed", "error", err)
		return protocol.EncodeStatus("Error fetching playlists")
	}

	entries := make([]protocol.PlaylistEntry, 0, len(playlists))
	for _, p := range playlists {
		entries = append(entries, protocol.PlaylistEntry{Name: p.Name, IconURL: p.IconURL})
	}
	return protocol.EncodePlaylists(entries)
}

func (d *Dispatcher) handleVolume(ctx context.Context, arg string) string {
	percent, err := strconv.Atoi(arg)
	if err != nil {
		return protocol.EncodeStatus("Invalid volume")
	}

	// Out-of-range values are forwarded; the upstream rejection (e.g.
	// unsupported device) surfaces as a status message.
	if err := d.player.SetVolume(ctx, percent); err != nil {
		d.logger.Warn("volume change failed", "percent", percent, "error", err)
		return protocol.EncodeStatus("Error setting volume")
	}
	return protocol.EncodeStatus("Volume set to " + strconv.Itoa(percent))
}

func (d *Dispatcher) handleShuffle(ctx context.Context, arg string) string {
	var on bool
	switch strings.ToLower(arg) {
	case "on", "true", "1":
		on = true
	case "off", "false", "0", "":
		on = false
	default:
		return protocol.EncodeStatus("Invalid shuffle state")
	}

	if err := d.player.SetShuffle(ctx, on); err != nil {
		d.logger.Warn("shuffle change failed", "error", err)
		return protocol.EncodeStatus("Error setting shuffle")
	}
	if on {
		return protocol.EncodeStatus("Shuffle on")
	}
	return protocol.EncodeStatus("Shuffle off")
}

func (d *Dispatcher) handleRepeat(ctx context.Context, arg string) string {
	var mode services.RepeatMode
	switch strings.ToLower(arg) {
	case "off", "0":
		mode = services.RepeatOff
	case "context", "1":
		mode = services.RepeatContext
	case "track", "2":
		mode = services.RepeatTrack
	default:
		return protocol.EncodeStatus("Invalid repeat mode")
	}

	if err := d.player.SetRepeat(ctx, mode); err != nil {
		d.logger.Warn("repeat change failed", "error", err)
		return protocol.EncodeStatus("Error setting repeat")
	}
	return protocol.EncodeStatus("Repeat " + string(mode))
}

func (d *Dispatcher) handleSearch(ctx context.Context, query, mode string) string {
	if mode != searchModeTriples {
		// Unrecognized modes yield the trimmed bare tag; documented
		// behavior of the original client pairing, not an error.
		return protocol.EncodeSearch(nil)
	}

	results, err := d.player.Search(ctx, query, searchLimit)
	if err != nil {
		d.logger.Warn("search failed", "query", query, "error", err)
		return protocol.EncodeStatus("Error searching")
	}

	// Last search wins: the cache is global to the upstream account, not
	// per client.
	d.searchCache = results

	entries := make([]protocol.SearchEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, protocol.SearchEntry{
			Name:    r.Name,
			Artists: strings.Join(r.ArtistNames, ", "),
			Cover:   r.CoverURL,
		})
	}
	return protocol.EncodeSearch(entries)
}

func (d *Dispatcher) handleAddQueue(ctx context.Context, indexArg, source string) string {
	if source != "fromsearch" {
		return protocol.EncodeStatus("No results")
	}

	index, err := strconv.Atoi(indexArg)
	if err != nil || index < 0 || index >= len(d.searchCache) {
		// Stale or out-of-range indices after a new search fail cleanly
		// instead of resolving to the wrong track.
		return protocol.EncodeStatus("No results")
	}

	track := d.searchCache[index]
	if err := d.player.AddToQueue(ctx, track.URI); err != nil {
		d.logger.Warn("queue add failed", "track", track.ID, "error", err)
		return protocol.EncodeStatus("Error adding to queue")
	}
	return protocol.EncodeStatus("Added to queue: " + track.Name)
}

func (d *Dispatcher) handlePlayPlaylist(ctx context.Context, indexArg string) string {
	index, err := strconv.Atoi(indexArg)
	if err != nil || index < 0 {
		return protocol.EncodeStatus("Invalid playlist")
	}

	// Re-fetch fresh instead of trusting an index from a previous
	// listing; costs a round trip, avoids stale indices.
	playlists, err := d.player.Playlists(ctx)
	if err != nil {
		d.logger.Warn("playlist fetch failed", "error", err)
		return protocol.EncodeStatus("Error fetching playlists")
	}
	if index >= len(playlists) {
		return protocol.EncodeStatus("Invalid playlist")
	}

	playlist := playlists[index]
	if err := d.player.PlayContext(ctx, playlist.URI); err != nil {
		d.logger.Warn("playlist start failed", "playlist", playlist.ID, "error", err)
		return protocol.EncodeStatus("Error playing playlist")
	}
	return protocol.EncodeStatus("Playing playlist: " + playlist.Name)
}

func (d *Dispatcher) handleSeek(ctx context.Context, arg string) string {
	positionMs, err := strconv.Atoi(arg)
	if err != nil {
		return protocol.EncodeStatus("Invalid seek position")
	}

	if err := d.player.Seek(ctx, positionMs); err != nil {
		d.logger.Warn("seek failed", "position", positionMs, "error", err)
		return protocol.EncodeStatus("Error seeking")
	}
	return protocol.EncodeStatus("Seeked to " + strconv.Itoa(positionMs) + "ms")
}
