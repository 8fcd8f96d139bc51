package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest      = fmt.Errorf("API request failed")
	ErrNoActiveDevice  = fmt.Errorf("no active playback device")
	ErrRateLimited     = fmt.Errorf("rate limited by upstream")
	ErrListenerStopped = fmt.Errorf("listener stopped")
)
