package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/resobridge/internal/bridge"
	"github.com/desertthunder/resobridge/internal/repositories"
	"github.com/desertthunder/resobridge/internal/shared"
	"github.com/urfave/cli/v3"
)

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the bridge: WebSocket listener, playback monitor, restart loop",
		Flags:  []cli.Flag{configFlag(), verboseFlag()},
		Action: r.Serve,
	}
}

// Serve runs the bridge supervisor until the process receives an interrupt or
// termination signal. Every internal failure restarts the bridge; only the
// signal stops it.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	r.applyVerbosity(cmd)
	config, err := r.resolveConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	if config.Spotify.ClientID == "" || config.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in config.toml", shared.ErrMissingCredentials)
	}

	var tokens bridge.TokenStore
	var history bridge.HistoryRecorder

	if config.Database.Path != "" {
		db, err := shared.NewDatabase(config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := repositories.Setup(db); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		tokens = repositories.NewTokenRepository(db)
		history = repositories.NewHistoryRepository(db)
	} else {
		r.logger.Warn("no database configured, tokens and history will not persist")
	}

	supervisor := bridge.NewSupervisor(config, tokens, history, r.logger)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("starting bridge", "addr", config.Server.Addr())

	if err := supervisor.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bridge stopped: %w", err)
	}

	r.logger.Info("bridge stopped")
	return nil
}
