package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/resobridge/internal/shared"
	"github.com/urfave/cli/v3"
)

func testApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:     "resobridge",
		Commands: r.register(),
	}
}

func writeTestConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(io.Discard)
			output := &bytes.Buffer{}

			runner := NewRunner(RunnerOpts{
				Config: config,
				Logger: logger,
				Output: output,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
		})

		t.Run("with nil config stays unresolved", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config != nil {
				t.Error("expected config to stay nil until an action resolves it")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard)})
		commands := runner.register()

		if len(commands) != 3 {
			t.Fatalf("expected 3 commands, got %d", len(commands))
		}

		names := map[string]bool{}
		for _, c := range commands {
			names[c.Name] = true
		}
		for _, want := range []string{"setup", "auth", "serve"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})

	t.Run("resolveConfig", func(t *testing.T) {
		t.Run("injected config wins", func(t *testing.T) {
			config := shared.DefaultConfig()
			runner := NewRunner(RunnerOpts{Config: config, Logger: shared.NewLogger(io.Discard)})

			resolved, err := runner.resolveConfig("does-not-exist.toml")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resolved != config {
				t.Error("expected injected config to be returned")
			}
		})

		t.Run("missing file", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard)})

			_, err := runner.resolveConfig(filepath.Join(t.TempDir(), "missing.toml"))
			if !errors.Is(err, shared.ErrMissingConfig) {
				t.Errorf("expected ErrMissingConfig, got %v", err)
			}
		})

		t.Run("loads from file", func(t *testing.T) {
			path := writeTestConfig(t, t.TempDir(), `
[spotify]
client_id = "id"
client_secret = "secret"

[server]
host = "localhost"
port = 9001
`)
			runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard)})

			config, err := runner.resolveConfig(path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Spotify.ClientID != "id" {
				t.Errorf("unexpected client id %q", config.Spotify.ClientID)
			}
			if config.Server.Addr() != "localhost:9001" {
				t.Errorf("unexpected addr %q", config.Server.Addr())
			}
		})
	})

	t.Run("verbose flag", func(t *testing.T) {
		t.Run("lowers log level to debug", func(t *testing.T) {
			logger := shared.NewLogger(io.Discard)
			runner := NewRunner(RunnerOpts{Logger: logger, Output: &bytes.Buffer{}})

			app := testApp(runner)
			// The action fails on missing credentials, but verbosity is
			// applied before any other work.
			app.Run(context.Background(), []string{
				"resobridge", "serve", "--verbose",
				"--config", filepath.Join(t.TempDir(), "missing.toml"),
			})

			if logger.GetLevel() != log.DebugLevel {
				t.Errorf("expected debug level, got %v", logger.GetLevel())
			}
		})

		t.Run("default level stays put", func(t *testing.T) {
			logger := shared.NewLogger(io.Discard)
			runner := NewRunner(RunnerOpts{Logger: logger, Output: &bytes.Buffer{}})

			app := testApp(runner)
			app.Run(context.Background(), []string{
				"resobridge", "serve",
				"--config", filepath.Join(t.TempDir(), "missing.toml"),
			})

			if logger.GetLevel() == log.DebugLevel {
				t.Error("expected log level to stay at its default without --verbose")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output})

		runner.writePlain("hello %s\n", "world")
		runner.writePlainln("done")

		got := output.String()
		if !strings.Contains(got, "hello world\n") {
			t.Errorf("expected formatted output, got %q", got)
		}
		if !strings.Contains(got, "\ndone\n") {
			t.Errorf("expected surrounded line, got %q", got)
		}
	})
}

func TestSetupCommand(t *testing.T) {
	t.Run("creates config and database", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "config.toml")

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output})

		// The template's database path is relative; run from the temp dir
		// so the sqlite file lands there.
		cwd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Chdir(dir); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chdir(cwd) })

		app := testApp(runner)
		if err := app.Run(context.Background(), []string{"resobridge", "setup", "--config", configPath}); err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Errorf("expected config file to be created: %v", err)
		}
		if !strings.Contains(output.String(), "Setup complete") {
			t.Errorf("expected completion message, got %q", output.String())
		}
	})

	t.Run("keeps existing config", func(t *testing.T) {
		dir := t.TempDir()
		dbPath := filepath.Join(dir, "bridge.db")
		configPath := writeTestConfig(t, dir, `
[spotify]
client_id = "existing"
client_secret = "secret"

[database]
path = "`+dbPath+`"
`)

		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})

		app := testApp(runner)
		if err := app.Run(context.Background(), []string{"resobridge", "setup", "--config", configPath}); err != nil {
			t.Fatalf("setup failed: %v", err)
		}

		config, err := shared.LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to reload config: %v", err)
		}
		if config.Spotify.ClientID != "existing" {
			t.Error("setup must not overwrite an existing config")
		}
		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("expected database file to be created: %v", err)
		}
	})
}

func TestServeCommand(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		configPath := writeTestConfig(t, t.TempDir(), `
[spotify]
client_id = ""
client_secret = ""
`)
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})

		app := testApp(runner)
		err := app.Run(context.Background(), []string{"resobridge", "serve", "--config", configPath})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("missing config file", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})

		app := testApp(runner)
		err := app.Run(context.Background(), []string{
			"resobridge", "serve", "--config", filepath.Join(t.TempDir(), "missing.toml"),
		})
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}

func TestAuthCommand(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		configPath := writeTestConfig(t, t.TempDir(), `
[spotify]
client_id = ""
client_secret = ""
`)
		runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: &bytes.Buffer{}})

		app := testApp(runner)
		err := app.Run(context.Background(), []string{"resobridge", "auth", "--config", configPath})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})
}
