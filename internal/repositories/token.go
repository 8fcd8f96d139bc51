package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenRepository persists a single OAuth token, the bridge's equivalent of
// the original token cache file. One upstream account, one row.
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a token repository over an open database.
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Save upserts the stored token.
func (r *TokenRepository) Save(ctx context.Context, token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("refusing to save empty token")
	}

	var expiry any
	if !token.Expiry.IsZero() {
		expiry = token.Expiry.UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tokens (id, access_token, refresh_token, expiry)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry = excluded.expiry`,
		token.AccessToken, token.RefreshToken, expiry)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	return nil
}

// Load returns the stored token, or (nil, nil) when none has been saved.
func (r *TokenRepository) Load(ctx context.Context) (*oauth2.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expiry FROM tokens WHERE id = 1`)

	var token oauth2.Token
	var expiry sql.NullTime
	if err := row.Scan(&token.AccessToken, &token.RefreshToken, &expiry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if expiry.Valid {
		token.Expiry = expiry.Time.UTC()
	}
	return &token, nil
}

// Clear deletes the stored token.
func (r *TokenRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
