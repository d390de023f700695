package auth

import (
	"slices"
	"time"
)

// Identity is a verified token subject.
type Identity struct {
	// Principal is the token subject (sub claim).
	Principal string

	// Issuer is the token issuer (iss claim).
	Issuer string

	// Roles are the roles granted by the token.
	Roles []string

	// ExpiresAt is when the token expires.
	ExpiresAt time.Time

	// IssuedAt is when the token was minted.
	IssuedAt time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// IsExpired reports whether the identity has expired at now.
func (id *Identity) IsExpired(now time.Time) bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return now.After(id.ExpiresAt)
}
