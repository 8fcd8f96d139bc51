package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/resobridge/internal/services"
)

// PlaybackEntry is one recorded playback transition.
type PlaybackEntry struct {
	ID         int64
	TrackID    string
	TrackURI   string
	TrackName  string
	Artists    string
	IsPlaying  bool
	CanvasURL  string
	ObservedAt time.Time
}

// HistoryRepository records playback transitions observed by the monitor.
// Implements the bridge's HistoryRecorder interface.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a history repository over an open database.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Record appends one transition. A nil state records a stop marker (empty
// track fields, is_playing false).
func (r *HistoryRepository) Record(ctx context.Context, state *services.PlaybackState, canvasURL string) error {
	entry := PlaybackEntry{CanvasURL: canvasURL}
	if state != nil {
		entry.TrackID = state.TrackID
		entry.TrackURI = state.TrackURI
		entry.TrackName = state.TrackName
		entry.Artists = strings.Join(state.ArtistNames, ", ")
		entry.IsPlaying = state.IsPlaying
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playback_history
			(track_id, track_uri, track_name, artists, is_playing, canvas_url)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.TrackID, entry.TrackURI, entry.TrackName, entry.Artists,
		entry.IsPlaying, entry.CanvasURL)
	if err != nil {
		return fmt.Errorf("failed to record playback transition: %w", err)
	}

	return nil
}

// Recent returns the latest transitions, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]PlaybackEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, track_id, track_uri, track_name, artists, is_playing, canvas_url, observed_at
		FROM playback_history
		ORDER BY observed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []PlaybackEntry
	for rows.Next() {
		var entry PlaybackEntry
		if err := rows.Scan(&entry.ID, &entry.TrackID, &entry.TrackURI, &entry.TrackName,
			&entry.Artists, &entry.IsPlaying, &entry.CanvasURL, &entry.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
