// Package auth mints and verifies the bearer tokens staffcache uses.
//
// A TokenSource signs short-lived HS256 service tokens for requests to the
// staffing backend and reuses each token until it nears expiry. Transport
// attaches those tokens to outgoing HTTP requests. A Verifier validates
// tokens on the way in, and RequireBearer guards the cache admin endpoints.
package auth
