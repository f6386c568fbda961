package secret

import "errors"

var (
	// ErrMissingEnv indicates ${VAR} referenced a variable that is not set.
	ErrMissingEnv = errors.New("secret: missing required environment variables")

	// ErrProviderNotRegistered indicates a secretref named an unknown provider.
	ErrProviderNotRegistered = errors.New("secret: provider is not registered")

	// ErrEmptySecret indicates a strict resolver received an empty value.
	ErrEmptySecret = errors.New("secret: provider returned empty value")

	// ErrInvalidRef indicates a malformed or disallowed reference.
	ErrInvalidRef = errors.New("secret: invalid reference")
)
