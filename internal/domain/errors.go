package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether the username or the password failed.
	// Missing, inactive and mismatched accounts all collapse into this error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidCode covers both rejected TOTP codes and unknown backup codes.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrInvalidToken is returned for bad signatures, expired tokens and tokens of the wrong class.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionInvalid signals a well-formed refresh token with no live session behind it.
	ErrSessionInvalid = errors.New("session invalid or expired")
	// ErrAccountDisabled is returned when a deactivated account reaches an authenticated path.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	ErrAccountLocked = errors.New("account locked")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrConflict maps to "username or email already taken" on registration and
	// to an already-enabled second factor on setup.
	ErrConflict = errors.New("conflict")
)
