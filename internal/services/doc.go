// Package services talks to the Spotify Web API on behalf of the sync engine.
//
// # Layers
//
// A [Transport] performs exactly one HTTP exchange. [HTTPTransport] is backed by resty
// over the oauth2 client, so access tokens are refreshed transparently.
//
// A [Client] wraps a transport with pacing (golang.org/x/time/rate), bounded retries
// and typed errors. [SpotifyService] maps Web API endpoints onto the [Library] interface
// the engine consumes; lists are exposed lazily through [Paginate].
//
// # Retries
//
// Throttling (429) is retried for every method after Retry-After, at most
// MaxRateLimitRetries times. Server errors and network failures are retried only for
// idempotent methods. A POST that fails ambiguously is surfaced at once: replaying
// a playlist create could leave a duplicate behind.
//
// # Sessions
//
// [SessionManager] maps account identities to [AuthSession]s. Tokens persist in a
// [TokenCache], one file per identity. Authenticating a different identity discards
// the previous session, and a session runs at most one operation at a time.
//
// # Errors
//
// Failures unwrap to the sentinels in the shared package:
//   - [shared.ErrTokenExpired], [shared.ErrPermissionDenied] : members of the [shared.ErrAuth] family
//   - [shared.ErrRateLimitExceeded] : still throttled after the retry ceiling
//   - [shared.ErrTransientProvider] : 5xx or network failure
//   - [shared.ErrNotFound], [shared.ErrAPIRequest] : other rejected requests
package services
