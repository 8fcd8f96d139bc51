// Package server provides HTTP routing, middleware, and the two endpoints
// the bridge exposes: the WebSocket listener and the OAuth callback.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers so the first registered middleware runs
// outermost, following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally.
//
// # WebSocket Endpoint
//
// [WSHandler] upgrades requests on the root path and hands connections to
// the bridge, which owns the session lifecycle from there. The endpoint is
// plaintext and unauthenticated: it binds to localhost and the Resonite
// client has no HTTP auth stack.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the OAuth2 authorization code callback flow.
// The handler validates the state parameter (CSRF protection), exchanges the
// authorization code for tokens, and sends the result through a channel. It
// only processes one callback to prevent replay attacks. The callback server
// runs only during the auth CLI command, on the same listen address the
// WebSocket endpoint uses while serving.
package server
