package services

import "errors"

// Verification and lifecycle errors. At the HTTP boundary every verification
// failure collapses into a single 401 so callers cannot probe which stage
// rejected them; the distinction exists for internal logging only.
var (
	// ErrMalformedToken: the presented credential is structurally invalid
	// (too short to contain a lookup key plus secret material).
	ErrMalformedToken = errors.New("malformed token")

	// ErrTokenNotFound: no stored record shares the credential's lookup key.
	ErrTokenNotFound = errors.New("token not found")

	// ErrInvalidToken: candidate records exist for the lookup key but none
	// matched the credential's digest.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired: the digest matched but the record is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenLimitExceeded is user-visible and actionable: revoke an old
	// token and retry.
	ErrTokenLimitExceeded = errors.New("maximum amount of tokens allowed per user exceeded")

	// ErrStorageUnavailable wraps transient persistence failures. The caller
	// of the engine decides whether to retry; the engine itself retries only
	// the single digest-collision case.
	ErrStorageUnavailable = errors.New("token storage unavailable")

	// errDuplicateRecord: digest or salt uniqueness violation on insert.
	// Astronomically rare; handled by regenerating the token once.
	errDuplicateRecord = errors.New("duplicate token record")
)

// IsVerifyFailure reports whether err is one of the credential verification
// failures that must be indistinguishable to external callers.
func IsVerifyFailure(err error) bool {
	return errors.Is(err, ErrMalformedToken) ||
		errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired)
}
