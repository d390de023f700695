package auth

import "errors"

// Sentinel errors for token minting and verification.
var (
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrMissingSigningKey  = errors.New("auth: signing key is empty")
	ErrForbidden          = errors.New("auth: access denied")
)
