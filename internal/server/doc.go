// Package server runs the short-lived local HTTP server that receives the
// Spotify authorization callback.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] records each callback request without its query string.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter (CSRF protection) and hands the
// authorization code to its caller through a channel. It only processes one
// callback to prevent replay attacks. Exchanging the code for tokens belongs
// to the session manager in the services package.
//
// # Browser Authorizer
//
// [BrowserAuthorizer] implements services.Authorizer. For each login it
// listens on the redirect URI's port, opens the authorization URL in a browser
// (printing it when no browser is available), waits for the callback or for
// the context to end, and shuts the listener down.
package server
