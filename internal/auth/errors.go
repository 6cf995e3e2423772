package auth

import "errors"

// Failure kinds returned by Service. Callers branch with errors.Is; the
// transport maps each kind to a status code in one place.
var (
	ErrInvalidInput            = errors.New("invalid input")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrDuplicateAccount        = errors.New("username or email already registered")
	ErrPasswordMismatch        = errors.New("password confirmation does not match")
	ErrPasswordTooShort        = errors.New("password too short")
	ErrTokenExpiredOrUnknown   = errors.New("refresh token expired or unknown")
	ErrMalformedOrInvalidToken = errors.New("malformed or invalid token")
	ErrUnknownAccount          = errors.New("unknown account")
	ErrStoreUnavailable        = errors.New("user store unavailable")
	ErrInternal                = errors.New("internal error")
)
