package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/resobridge/internal/server"
	"github.com/desertthunder/resobridge/internal/services"
	"github.com/desertthunder/resobridge/internal/shared"
	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"
)

// restartDelay is how long the supervisor waits before rebuilding the bridge
// after a fatal error.
const restartDelay = 5 * time.Second

// TokenStore persists OAuth tokens across supervisor restarts.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, token *oauth2.Token) error
}

// Supervisor is the top-level process loop: it constructs the whole bridge
// (auth, HTTP client, listener, monitor), blocks until any of them fails,
// tears everything down, and rebuilds from scratch after a fixed delay.
//
// Whole-bridge restart instead of component-level recovery is deliberate:
// the upstream auth session and HTTP client are cheap to recreate, and
// coupled failures like auth expiry are most reliably fixed by a full reset.
type Supervisor struct {
	config  *shared.Config
	tokens  TokenStore
	history HistoryRecorder
	logger  *log.Logger
}

// NewSupervisor creates a supervisor. tokens and history may be nil; the
// bridge then runs from config-stored credentials without persistence.
func NewSupervisor(config *shared.Config, tokens TokenStore, history HistoryRecorder, logger *log.Logger) *Supervisor {
	return &Supervisor{
		config:  config,
		tokens:  tokens,
		history: history,
		logger:  logger,
	}
}

// Run restarts the bridge until ctx is cancelled. Only context cancellation
// (an external signal) stops the process; every other failure logs and
// restarts.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Error("bridge failed, restarting", "error", err, "delay", restartDelay)

		timer := time.NewTimer(restartDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runOnce builds and runs one bridge incarnation, returning the error that
// brought it down.
func (s *Supervisor) runOnce(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	player, err := s.connect(runCtx)
	if err != nil {
		return err
	}

	canvas := services.NewCanvasService(
		s.config.Canvas.BaseURL,
		time.Duration(s.config.Canvas.Timeout)*time.Second,
		shared.WithLogger(s.logger, "component", "canvas"),
	)

	dispatcher := NewDispatcher(player, canvas, shared.WithLogger(s.logger, "component", "dispatcher"))
	b := New(dispatcher, s.history, shared.WithLogger(s.logger, "component", "bridge"))

	monitor := NewMonitor(
		player, canvas, b.Events(),
		shared.WithLogger(s.logger, "component", "monitor"),
		time.Duration(s.config.Monitor.PollInterval)*time.Second,
		time.Duration(s.config.Monitor.BackoffInterval)*time.Second,
	)

	router := server.NewBasicRouter()
	router.Use(server.LoggingMiddleware(s.logger))
	router.Handler(server.NewWSHandler(s.logger, func(conn *websocket.Conn) {
		b.HandleConnection(runCtx, conn)
	}))

	httpServer := &http.Server{
		Addr:    s.config.Server.Addr(),
		Handler: router,
	}

	fatal := make(chan error, 3)

	go func() {
		if err := b.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			fatal <- fmt.Errorf("bridge loop: %w", err)
		}
	}()
	go func() {
		if err := monitor.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			fatal <- fmt.Errorf("monitor: %w", err)
		}
	}()
	go func() {
		s.logger.Info("listening for clients", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal <- fmt.Errorf("%w: %v", shared.ErrListenerStopped, err)
		}
	}()

	var cause error
	select {
	case <-ctx.Done():
		cause = ctx.Err()
	case cause = <-fatal:
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("listener shutdown failed", "error", err)
	}

	return cause
}

// connect builds an authenticated player and probes it once, matching the
// original bridge's startup check.
func (s *Supervisor) connect(ctx context.Context) (services.Player, error) {
	spotify, err := services.NewSpotifyService(s.config.Spotify.Map())
	if err != nil {
		return nil, err
	}

	token := s.storedToken(ctx)
	if token != nil {
		spotify.SetToken(ctx, token)
	} else if err := spotify.Authenticate(ctx, s.config.Spotify.Map()); err != nil {
		return nil, fmt.Errorf("%w: run the auth command first: %v", shared.ErrNotAuthenticated, err)
	}

	if _, err := spotify.CurrentPlayback(ctx); err != nil {
		return nil, fmt.Errorf("spotify connection check failed: %w", err)
	}
	s.logger.Info("connected to Spotify")

	return spotify, nil
}

// storedToken loads the persisted token, preferring the token store over
// config-embedded credentials.
func (s *Supervisor) storedToken(ctx context.Context) *oauth2.Token {
	if s.tokens == nil {
		return nil
	}

	token, err := s.tokens.Load(ctx)
	if err != nil {
		s.logger.Warn("token load failed", "error", err)
		return nil
	}
	return token
}
