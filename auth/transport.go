package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// Transport is an http.RoundTripper that adds a bearer token from Tokens to
// every request.
type Transport struct {
	// Base is the underlying transport. Nil means http.DefaultTransport.
	Base http.RoundTripper

	// Tokens supplies the bearer token.
	Tokens TokenProvider
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.Tokens.Token(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("auth: obtain token: %w", err)
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", bearerPrefix+token)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(out)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// RequireBearer is HTTP middleware that verifies the request's bearer token
// and attaches the identity to the request context. A non-empty role must be
// held by the identity.
//
// Usage:
//
//	mux.Handle("DELETE /cache/{namespace}", auth.RequireBearer(v, "cache-admin")(h))
func RequireBearer(v *Verifier, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, ErrMissingCredentials)
				return
			}

			id, err := v.Verify(r.Context(), token)
			if err != nil {
				unauthorized(w, err)
				return
			}
			if role != "" && !id.HasRole(role) {
				http.Error(w, ErrForbidden.Error(), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	msg := ErrInvalidCredentials.Error()
	switch {
	case errors.Is(err, ErrMissingCredentials):
		msg = ErrMissingCredentials.Error()
	case errors.Is(err, ErrTokenExpired):
		msg = ErrTokenExpired.Error()
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="staffcache"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
