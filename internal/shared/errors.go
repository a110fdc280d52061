package shared

import "github.com/cockroachdb/errors"

var (
	// Configuration errors
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing credentials")

	// Authentication errors. Every one of them wraps [ErrAuth].
	ErrAuth             = errors.New("authentication failed")
	ErrNotAuthenticated = errors.Wrap(ErrAuth, "not authenticated")
	ErrTokenExpired     = errors.Wrap(ErrAuth, "access token expired")
	ErrPermissionDenied = errors.Wrap(ErrAuth, "permission denied")
	ErrAuthTimeout      = errors.Wrap(ErrAuth, "authorization timed out")
	ErrStateMismatch    = errors.Wrap(ErrAuth, "invalid state parameter")

	// API and provider errors
	ErrAPIRequest        = errors.New("API request failed")
	ErrRateLimitExceeded = errors.New("rate limit retries exhausted")
	ErrTransientProvider = errors.New("provider temporarily unavailable")
	ErrNotFound          = errors.New("resource not found")

	// Engine errors
	ErrSelection            = errors.New("invalid selection")
	ErrPartialOperation     = errors.New("operation partially failed")
	ErrConfirmationRequired = errors.New("confirmation token missing or does not match")
	ErrSessionBusy          = errors.New("another operation is running on this session")

	// Snapshot file errors
	ErrIO = errors.New("snapshot I/O failed")

	// Input validation errors
	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Hints collects every user-facing hint attached to err with [errors.WithHint].
func Hints(err error) []string {
	if err == nil {
		return nil
	}
	return errors.GetAllHints(err)
}

// IsRetryable reports whether err describes a condition that may clear on its own.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimitExceeded) || errors.Is(err, ErrTransientProvider)
}
