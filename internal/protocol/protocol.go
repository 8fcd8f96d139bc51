// package protocol implements the delimited text wire format spoken by the
// Resonite client.
//
// Inbound frames are semicolon-separated command words with fixed positional
// argument slots. Outbound frames start with a "!" tag followed by a
// kind-specific payload. Fields inside a record use the backspace control
// character so free text (track and playlist names) can never collide with
// the delimiter.
package protocol

import (
	"strconv"
	"strings"
)

const (
	// ArgDelimiter separates a command word from its positional arguments.
	ArgDelimiter = ";"
	// RecordDelimiter separates fields inside one record (name, artist, cover).
	RecordDelimiter = "\b"

	// ArgSlots is the number of positional argument slots per command frame.
	ArgSlots = 3

	// padding appended to playlists and init frames; the client parser reads
	// fixed-width fields and expects exactly two trailing tabs.
	framePadding = "\t\t"
)

// Outbound frame tags.
const (
	TagCurrent     = "!current"
	TagCurrentNone = "!currentNone"
	TagPlaylists   = "!playlists"
	TagSearch      = "!search"
	TagStatus      = "!status"
	TagInit        = "!init"
	TagInitError   = "!initError"
)

// Command is one decoded inbound frame.
type Command struct {
	Name string
	Args [ArgSlots]string
}

// Decode splits an inbound frame into a command word and its positional
// argument slots. Missing trailing arguments default to the empty string.
// Decode never fails: an empty frame decodes to a Command with an empty name,
// which the dispatcher reports as unknown.
func Decode(frame string) Command {
	parts := strings.Split(frame, ArgDelimiter)

	cmd := Command{Name: parts[0]}
	for i := 0; i < ArgSlots && i+1 < len(parts); i++ {
		cmd.Args[i] = parts[i+1]
	}
	return cmd
}

// CurrentPayload carries the fields of a current-playback frame in the tab
// order the client parser expects.
type CurrentPayload struct {
	Artists     string // comma-joined artist names
	Album       string
	AlbumArtURL string
	Track       string
	Volume      int
	ProgressMs  int
	DurationMs  int
	IsPlaying   bool
	CanvasURL   string // empty when resolution failed
}

// EncodeCurrent assembles a current-playback frame. Field order is fixed and
// fields are tab-joined.
func EncodeCurrent(p CurrentPayload) string {
	fields := []string{
		p.Artists,
		p.Album,
		p.AlbumArtURL,
		p.Track,
		strconv.Itoa(p.Volume),
		strconv.Itoa(p.ProgressMs),
		strconv.Itoa(p.DurationMs),
		encodeBool(p.IsPlaying),
		p.CanvasURL,
	}
	return TagCurrent + strings.Join(fields, "\t")
}

// EncodeCurrentNone returns the frame sent when nothing is playing.
func EncodeCurrentNone() string {
	return TagCurrentNone
}

// PlaylistEntry is one row of a playlists frame.
type PlaylistEntry struct {
	Name    string
	IconURL string
}

// EncodePlaylists assembles a playlists frame: newline-joined
// name/icon records plus the client parser's trailing padding.
func EncodePlaylists(entries []PlaylistEntry) string {
	var sb strings.Builder
	sb.WriteString(TagPlaylists)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(e.Name)
		sb.WriteString(RecordDelimiter)
		sb.WriteString(e.IconURL)
	}
	sb.WriteString(framePadding)
	return sb.String()
}

// SearchEntry is one row of a search frame.
type SearchEntry struct {
	Name    string
	Artists string // comma-joined
	Cover   string
}

// EncodeSearch assembles a search frame: newline-joined name/artist/cover
// records. The assembled frame is unconditionally trimmed of its final two
// bytes before send, matching the client parser the original bridge shipped
// against. For empty result sets this eats into the tag itself
// ("!search" becomes "!sear"); clients treat any "!sear" prefix as an empty
// result. See DESIGN.md.
func EncodeSearch(entries []SearchEntry) string {
	var sb strings.Builder
	sb.WriteString(TagSearch)
	for _, e := range entries {
		sb.WriteString(e.Name)
		sb.WriteString(RecordDelimiter)
		sb.WriteString(e.Artists)
		sb.WriteString(RecordDelimiter)
		sb.WriteString(e.Cover)
		sb.WriteString("\n")
	}

	s := sb.String()
	if len(s) < 2 {
		return s
	}
	return s[:len(s)-2]
}

// RepeatCode maps a repeat mode name to the small integer code the client
// expects: off=0, context=1, track=2. Unknown modes map to 0.
func RepeatCode(mode string) int {
	switch mode {
	case "context":
		return 1
	case "track":
		return 2
	default:
		return 0
	}
}

// EncodeInit assembles the snapshot frame sent when a session connects:
// shuffle flag, repeat code, playing flag, then padding.
func EncodeInit(shuffle bool, repeatMode string, isPlaying bool) string {
	fields := []string{
		encodeBool(shuffle),
		strconv.Itoa(RepeatCode(repeatMode)),
		encodeBool(isPlaying),
	}
	return TagInit + strings.Join(fields, "\t") + framePadding
}

// EncodeInitError returns the frame sent when the init snapshot could not be
// produced. The session stays open.
func EncodeInitError() string {
	return TagInitError
}

// EncodeStatus assembles a status frame carrying a human-readable message.
func EncodeStatus(message string) string {
	return TagStatus + message
}

func encodeBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
