package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/resobridge/internal/repositories"
	"github.com/desertthunder/resobridge/internal/server"
	"github.com/desertthunder/resobridge/internal/services"
	"github.com/desertthunder/resobridge/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "auth",
		Usage:  "Authorize with Spotify and save tokens",
		Flags:  []cli.Flag{configFlag(), verboseFlag()},
		Action: r.Auth,
	}
}

// Auth performs the OAuth2 authorization flow for Spotify.
//
// Starts a local HTTP server on the bridge's listen address, opens the browser
// for user authorization, exchanges the auth code for tokens, and persists
// them to the config file and the token cache.
func (r *Runner) Auth(ctx context.Context, cmd *cli.Command) error {
	r.applyVerbosity(cmd)
	configPath := cmd.String("config")

	config, err := r.resolveConfig(configPath)
	if err != nil {
		return err
	}

	if config.Spotify.ClientID == "" || config.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in config.toml", shared.ErrMissingCredentials)
	}

	spotify, err := services.NewSpotifyService(config.Spotify.Map())
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	token, err := r.doOAuth(config, spotify)
	if err != nil {
		return err
	}

	if err := config.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if err := shared.SaveConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.cacheToken(ctx, config, token)

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", configPath)
	r.writePlain("You can now run: resobridge serve\n")

	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server.
func (r *Runner) doOAuth(config *shared.Config, oauthSrv services.OAuthService) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := oauthSrv.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthSrv.GetOAuthConfig(), state)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	httpServer := &http.Server{
		Addr:    config.Server.Addr(),
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	return result.Token, nil
}

// cacheToken persists the token to the database so the bridge survives
// restarts without re-authorization. Best-effort: the config file already
// holds the tokens.
func (r *Runner) cacheToken(ctx context.Context, config *shared.Config, token *oauth2.Token) {
	if config.Database.Path == "" {
		return
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		r.logger.Warn("failed to open database, token not cached", "error", err)
		return
	}
	defer db.Close()

	if err := repositories.Setup(db); err != nil {
		r.logger.Warn("failed to initialize database, token not cached", "error", err)
		return
	}

	if err := repositories.NewTokenRepository(db).Save(ctx, token); err != nil {
		r.logger.Warn("failed to cache token", "error", err)
		return
	}

	r.logger.Info("token cached", "path", config.Database.Path)
}
