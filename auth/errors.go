package auth

import "errors"

// Sentinel errors for authentication.
var (
	ErrMissingCredentials  = errors.New("auth: missing credentials")
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrTokenExpired        = errors.New("auth: token expired")
	ErrTokenMalformed      = errors.New("auth: token malformed")
	ErrKeyNotFound         = errors.New("auth: signing key not found")
	ErrMissingSecret       = errors.New("auth: signing secret not configured")
	ErrInvalidPasswordHash = errors.New("auth: invalid password hash")
)
