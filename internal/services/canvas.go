package services

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultCanvasBaseURL = "https://spotify-canvas-api-weld.vercel.app/spotify"
	defaultCanvasTimeout = 4 * time.Second

	// maximum page size the resolver is willing to scan
	canvasBodyLimit = 1 << 20
)

// CanvasService resolves a best-effort canvas clip URL for a track by
// scraping a third-party lookup page. Failures of any kind (network, timeout,
// markup change) resolve to an empty string; the bridge must never break
// because the scraping target is unreachable.
type CanvasService struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// NewCanvasService creates a canvas resolver. baseURL and timeout fall back
// to defaults when zero-valued; logger may be nil to silence failures.
func NewCanvasService(baseURL string, timeout time.Duration, logger *log.Logger) *CanvasService {
	if baseURL == "" {
		baseURL = defaultCanvasBaseURL
	}
	if timeout <= 0 {
		timeout = defaultCanvasTimeout
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &CanvasService{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// ResolveDownloadURL looks up the canvas clip for a track URI and returns its
// URL, or the empty string when no canvas exists or the lookup failed. The
// failure reason is logged at debug level only.
func (c *CanvasService) ResolveDownloadURL(ctx context.Context, trackURI string) string {
	id := TrackIDFromURI(trackURI)
	if id == "" {
		c.logger.Debug("canvas lookup skipped", "uri", trackURI)
		return ""
	}

	lookupURL := c.baseURL + "?id=" + url.QueryEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		c.logger.Debug("canvas request build failed", "error", err)
		return ""
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("canvas lookup failed", "track", id, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("canvas lookup rejected", "track", id, "status", resp.StatusCode)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, canvasBodyLimit))
	if err != nil {
		c.logger.Debug("canvas body read failed", "track", id, "error", err)
		return ""
	}

	clip := extractVideoSrc(string(body))
	if clip == "" {
		c.logger.Debug("canvas marker not found", "track", id)
	}
	return clip
}

// TrackIDFromURI extracts the bare track id from a spotify:track:<id> URI.
// Bare ids pass through unchanged.
func TrackIDFromURI(uri string) string {
	if uri == "" {
		return ""
	}
	if idx := strings.LastIndex(uri, ":"); idx >= 0 {
		return uri[idx+1:]
	}
	return uri
}

// extractVideoSrc scans an HTML document for the first <video element and
// returns its src attribute, or "" when the expected structure is absent.
func extractVideoSrc(body string) string {
	idx := strings.Index(body, "<video")
	if idx < 0 {
		return ""
	}

	tail := body[idx:]
	end := strings.Index(tail, ">")
	if end < 0 {
		return ""
	}
	tag := tail[:end]

	marker := `src="`
	srcIdx := strings.Index(tag, marker)
	if srcIdx < 0 {
		return ""
	}

	rest := tag[srcIdx+len(marker):]
	closing := strings.Index(rest, `"`)
	if closing < 0 {
		return ""
	}

	return rest[:closing]
}
