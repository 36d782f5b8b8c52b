package session

import "errors"

// Client-visible taxonomy. Anything outside this set surfaces to callers as
// a generic server error; the detail goes to the log sink only.
var (
	// ErrEmailTaken: registration against an existing email.
	ErrEmailTaken = errors.New("email already in use")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases are indistinguishable to callers on purpose.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidRole: registration with a role outside the self-service set.
	ErrInvalidRole = errors.New("invalid role")

	// ErrMissingToken: no refresh token was presented at all.
	ErrMissingToken = errors.New("missing refresh token")

	// ErrInvalidRefreshToken covers not-found and expired tokens. The
	// distinction exists internally (expired entries get cleaned up) but is
	// never surfaced.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrUserNotFound: profile lookup for an id that resolves to nothing.
	ErrUserNotFound = errors.New("user not found")
)
