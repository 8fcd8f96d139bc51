package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/resobridge/internal/repositories"
	"github.com/desertthunder/resobridge/internal/shared"
	"github.com/urfave/cli/v3"
)

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file and initialize the database",
		Flags:  []cli.Flag{configFlag(), verboseFlag()},
		Action: r.Setup,
	}
}

// Setup creates the config file from the embedded template when missing and
// initializes the database schema.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	r.applyVerbosity(cmd)
	configPath := cmd.String("config")

	var config *shared.Config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			config = shared.DefaultConfig()
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}

	if config.Database.Path != "" {
		r.logger.Info("initializing database", "path", config.Database.Path)

		db, err := shared.NewDatabase(config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer db.Close()

		if err := repositories.Setup(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		r.logger.Infof("setup complete for database: %v", config.Database.Path)
	}

	r.writePlain("✓ Setup complete\n\n")
	r.writePlain("Next steps:\n")
	r.writePlain("1. Add your Spotify client_id and client_secret to %s\n", configPath)
	r.writePlain("2. Run 'resobridge auth' to authorize with Spotify\n")
	r.writePlain("3. Run 'resobridge serve' to start the bridge\n")

	return nil
}
