// Package services defines the [Player] interface for the upstream playback
// service and implements it for the Spotify Web API, plus the best-effort
// canvas resolver.
//
// # Player Interface
//
// The bridge talks to the upstream player exclusively through [Player], so
// the dispatcher and monitor are testable against fakes.
//
// # Spotify Implementation
//
// [SpotifyService] uses OAuth2 for authentication with automatic token
// refresh; the [oauth2] client refreshes expired tokens transparently.
// Outbound calls go through a [rate.Limiter] so the monitor's 1s polling
// cannot trip Spotify's rate limits when commands arrive in bursts.
//
// # Canvas Resolver
//
// [CanvasService] scrapes a third-party lookup page for a track's canvas
// clip. It is deliberately failure-silent: any error resolves to an empty
// URL and is logged at debug level, because canvas art is a non-essential
// garnish and the scraping target changes markup without notice.
//
// # Error Handling
//
// Spotify failures map to sentinel errors from the shared package:
//   - [shared.ErrNotAuthenticated] : missing or expired token (401)
//   - [shared.ErrNoActiveDevice] : player command with no active device (404)
//   - [shared.ErrRateLimited] : 429 from the API
//   - [shared.ErrAPIRequest] : any other non-2xx response
package services
