package secret

import "errors"

var (
	// ErrMissingEnv indicates a ${VAR} reference to an unset variable.
	ErrMissingEnv = errors.New("secret: missing environment variable")

	// ErrUnknownProvider indicates a secretref names an unregistered provider.
	ErrUnknownProvider = errors.New("secret: provider not registered")

	// ErrNotFound indicates a provider has no secret for a ref.
	ErrNotFound = errors.New("secret: not found")

	// ErrEmpty indicates a strict resolver got an empty secret.
	ErrEmpty = errors.New("secret: empty value")

	// ErrInvalidRef indicates a malformed ref.
	ErrInvalidRef = errors.New("secret: invalid ref")
)
