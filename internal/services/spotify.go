// Spotify Web API implementation of [Player]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/resobridge/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify allows bursts but sustained polling should stay polite.
	requestsPerSecond = 10
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
	URI    string         `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	URI        string          `json:"uri"`
}

type spotifyDevice struct {
	ID            string `json:"id"`
	VolumePercent int    `json:"volume_percent"`
}

// SpotifyPlayback represents the /me/player response.
type SpotifyPlayback struct {
	Device       spotifyDevice `json:"device"`
	ShuffleState bool          `json:"shuffle_state"`
	RepeatState  string        `json:"repeat_state"` // off, context, track
	ProgressMS   int           `json:"progress_ms"`
	IsPlaying    bool          `json:"is_playing"`
	Item         *SpotifyTrack `json:"item"`
}

type spotifySearchResponse struct {
	Tracks struct {
		Items []SpotifyTrack `json:"items"`
	} `json:"tracks"`
}

type simplePlaylist struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	URI    string         `json:"uri"`
	Images []SpotifyImage `json:"images"`
}

type spotifyPaginatedPlaylists struct {
	Items []simplePlaylist `json:"items"`
	Next  *string          `json:"next"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// OAuthService is implemented by services that authenticate through a
// server-side OAuth2 authorization-code flow.
type OAuthService interface {
	GetAuthURL(state string) string
	GetOAuthConfig() *oauth2.Config
	Authenticate(ctx context.Context, credentials map[string]string) error
}

// SpotifyService implements the [Player] interface against the Spotify Web
// API. Uses [oauth2] for authentication with automatic token refresh and a
// [rate.Limiter] to keep the monitor's polling polite.
type SpotifyService struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2
// credentials. Requires client_id and client_secret; redirect_uri and scopes
// fall back to defaults covering playback control.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:8765/callback"
	}

	scopes := []string{
		"user-read-playback-state",
		"user-modify-playback-state",
		"playlist-read-private",
	}
	if s, ok := credentials["scopes"]; ok && s != "" {
		scopes = strings.Fields(s)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		baseURL:    spotifyBaseURL,
	}, nil
}

// Authenticate establishes an authenticated HTTP client. Accepts an
// "auth_code" from the authorization flow, or a previously stored
// "access_token"/"refresh_token" pair; a refresh token alone is enough, the
// [oauth2] client refreshes on first use.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
		s.SetToken(ctx, token)
		return nil
	}

	accessToken := credentials["access_token"]
	refreshToken := credentials["refresh_token"]
	if accessToken == "" && refreshToken == "" {
		return fmt.Errorf("%w: missing auth_code, access_token or refresh_token", shared.ErrMissingCredentials)
	}

	s.SetToken(ctx, &oauth2.Token{AccessToken: accessToken, RefreshToken: refreshToken})
	return nil
}

// SetToken installs a token and rebuilds the refreshing HTTP client.
func (s *SpotifyService) SetToken(ctx context.Context, token *oauth2.Token) {
	s.token = token
	s.httpClient = s.config.Client(ctx, token)
}

// Token returns the currently installed token, or nil before authentication.
func (s *SpotifyService) Token() *oauth2.Token {
	return s.token
}

// GetAuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) GetAuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// GetOAuthConfig returns the service's OAuth2 configuration for the callback
// handler.
func (s *SpotifyService) GetOAuthConfig() *oauth2.Config {
	return s.config
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs an authenticated, rate-limited request to the Spotify
// API. A non-nil body is JSON-encoded; a nil result skips response decoding.
// Returns the HTTP status code so callers can distinguish 204 (no playback)
// from 200.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) (int, error) {
	if s.token == nil {
		return 0, shared.ErrNotAuthenticated
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, s.apiError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

// apiError maps a non-2xx Spotify response to a sentinel-wrapped error.
func (s *SpotifyService) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed spotifyErrorBody
	message := ""
	if err := json.Unmarshal(body, &parsed); err == nil {
		message = parsed.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrNotAuthenticated, message)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", shared.ErrRateLimited, message)
	case resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(message), "device"):
		return fmt.Errorf("%w: %s", shared.ErrNoActiveDevice, message)
	default:
		return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, resp.StatusCode, message)
	}
}

// CurrentPlayback returns the current playback snapshot. A 204 from
// /me/player means no active playback and yields (nil, nil).
func (s *SpotifyService) CurrentPlayback(ctx context.Context) (*PlaybackState, error) {
	var playback SpotifyPlayback
	status, err := s.doRequest(ctx, http.MethodGet, "/me/player", nil, &playback)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent || playback.Item == nil {
		return nil, nil
	}

	state := &PlaybackState{
		IsPlaying:     playback.IsPlaying,
		TrackID:       playback.Item.ID,
		TrackURI:      playback.Item.URI,
		TrackName:     playback.Item.Name,
		AlbumName:     playback.Item.Album.Name,
		ProgressMs:    playback.ProgressMS,
		DurationMs:    playback.Item.DurationMS,
		VolumePercent: playback.Device.VolumePercent,
		ShuffleOn:     playback.ShuffleState,
		RepeatMode:    RepeatMode(playback.RepeatState),
	}
	for _, artist := range playback.Item.Artists {
		state.ArtistNames = append(state.ArtistNames, artist.Name)
	}
	if len(playback.Item.Album.Images) > 0 {
		state.AlbumArtURL = playback.Item.Album.Images[0].URL
	}

	return state, nil
}

// Next skips to the next track.
func (s *SpotifyService) Next(ctx context.Context) error {
	_, err := s.doRequest(ctx, http.MethodPost, "/me/player/next", nil, nil)
	return err
}

// Previous skips to the previous track.
func (s *SpotifyService) Previous(ctx context.Context) error {
	_, err := s.doRequest(ctx, http.MethodPost, "/me/player/previous", nil, nil)
	return err
}

// Pause pauses playback.
func (s *SpotifyService) Pause(ctx context.Context) error {
	_, err := s.doRequest(ctx, http.MethodPut, "/me/player/pause", nil, nil)
	return err
}

// Resume resumes playback on the active device.
func (s *SpotifyService) Resume(ctx context.Context) error {
	_, err := s.doRequest(ctx, http.MethodPut, "/me/player/play", nil, nil)
	return err
}

// SetVolume sets the playback volume. Out-of-range values are forwarded to
// the API; its rejection surfaces as an error for the dispatcher to report.
func (s *SpotifyService) SetVolume(ctx context.Context, percent int) error {
	endpoint := "/me/player/volume?volume_percent=" + strconv.Itoa(percent)
	_, err := s.doRequest(ctx, http.MethodPut, endpoint, nil, nil)
	return err
}

// SetShuffle turns shuffle on or off.
func (s *SpotifyService) SetShuffle(ctx context.Context, on bool) error {
	endpoint := "/me/player/shuffle?state=" + strconv.FormatBool(on)
	_, err := s.doRequest(ctx, http.MethodPut, endpoint, nil, nil)
	return err
}

// SetRepeat sets the repeat mode (off, context, track).
func (s *SpotifyService) SetRepeat(ctx context.Context, mode RepeatMode) error {
	endpoint := "/me/player/repeat?state=" + url.QueryEscape(string(mode))
	_, err := s.doRequest(ctx, http.MethodPut, endpoint, nil, nil)
	return err
}

// Search returns up to limit track matches for the query.
func (s *SpotifyService) Search(ctx context.Context, query string, limit int) ([]TrackSummary, error) {
	if limit <= 0 || limit > 50 {
		limit = 25
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=%d", url.QueryEscape(query), limit)

	var response spotifySearchResponse
	if _, err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	results := make([]TrackSummary, 0, len(response.Tracks.Items))
	for _, track := range response.Tracks.Items {
		summary := TrackSummary{
			ID:   track.ID,
			URI:  track.URI,
			Name: track.Name,
		}
		for _, artist := range track.Artists {
			summary.ArtistNames = append(summary.ArtistNames, artist.Name)
		}
		if len(track.Album.Images) > 0 {
			summary.CoverURL = track.Album.Images[0].URL
		}
		results = append(results, summary)
	}

	return results, nil
}

// AddToQueue appends a track to the playback queue.
func (s *SpotifyService) AddToQueue(ctx context.Context, trackURI string) error {
	endpoint := "/me/player/queue?uri=" + url.QueryEscape(trackURI)
	_, err := s.doRequest(ctx, http.MethodPost, endpoint, nil, nil)
	return err
}

// PlayContext starts playback of a playlist or album by context URI.
func (s *SpotifyService) PlayContext(ctx context.Context, contextURI string) error {
	body := map[string]string{"context_uri": contextURI}
	_, err := s.doRequest(ctx, http.MethodPut, "/me/player/play", body, nil)
	return err
}

// Seek moves the playhead of the current track.
func (s *SpotifyService) Seek(ctx context.Context, positionMs int) error {
	endpoint := "/me/player/seek?position_ms=" + strconv.Itoa(positionMs)
	_, err := s.doRequest(ctx, http.MethodPut, endpoint, nil, nil)
	return err
}

// Playlists returns all of the user's playlists, following pagination.
func (s *SpotifyService) Playlists(ctx context.Context) ([]Playlist, error) {
	var all []Playlist
	limit := 50
	offset := 0

	for {
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

		var response spotifyPaginatedPlaylists
		if _, err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, err
		}

		for _, item := range response.Items {
			playlist := Playlist{
				ID:   item.ID,
				URI:  item.URI,
				Name: item.Name,
			}
			if len(item.Images) > 0 {
				playlist.IconURL = item.Images[0].URL
			}
			all = append(all, playlist)
		}

		if response.Next == nil {
			break
		}
		offset += limit
	}

	return all, nil
}
