package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token defaults.
const (
	DefaultTokenTTL      = 15 * time.Minute
	DefaultRefreshMargin = time.Minute
)

// Claims is the JWT payload of a service token.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig configures a TokenSource.
type TokenConfig struct {
	// Issuer is written to the iss claim.
	Issuer string

	// Subject is written to the sub claim.
	Subject string

	// Audience is written to the aud claim when set.
	Audience string

	// Roles are written to the roles claim.
	Roles []string

	// TTL is the token lifetime.
	// Default: 15 minutes
	TTL time.Duration

	// RefreshMargin is how long before expiry a new token is minted.
	// Default: 1 minute, capped at half the TTL
	RefreshMargin time.Duration
}

// TokenProvider supplies bearer tokens.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenSource mints HS256 service tokens and caches the current one.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - A token is reused until it is within RefreshMargin of expiry.
type TokenSource struct {
	cfg TokenConfig
	key []byte
	now func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource creates a token source that signs with key.
func NewTokenSource(cfg TokenConfig, key []byte) (*TokenSource, error) {
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	if cfg.RefreshMargin > cfg.TTL/2 {
		cfg.RefreshMargin = cfg.TTL / 2
	}
	return &TokenSource{cfg: cfg, key: key, now: time.Now}, nil
}

// Token returns a valid signed token, minting a new one when needed.
func (s *TokenSource) Token(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Before(s.expires.Add(-s.cfg.RefreshMargin)) {
		return s.token, nil
	}

	expires := now.Add(s.cfg.TTL)
	claims := Claims{
		Roles: s.cfg.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   s.cfg.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if s.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	s.token = signed
	s.expires = expires
	return signed, nil
}

// KeyProvider retrieves signing keys for JWT validation.
type KeyProvider interface {
	// GetKey returns the key for the given key ID.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider provides a static signing key.
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider creates a static key provider.
func NewStaticKeyProvider(key []byte) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	if len(p.key) == 0 {
		return nil, ErrMissingSigningKey
	}
	return p.key, nil
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	cfg  VerifierConfig
	keys KeyProvider
	now  func() time.Time
}

// NewVerifier creates a new Verifier.
func NewVerifier(cfg VerifierConfig, keys KeyProvider) *Verifier {
	return &Verifier{cfg: cfg, keys: keys, now: time.Now}
}

// Verify parses and validates token, returning the identity it carries.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingCredentials
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithTimeFunc(v.now),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}
	if v.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.cfg.Audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.GetKey(ctx, kid)
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
	}
	if !parsed.Valid {
		return nil, ErrInvalidCredentials
	}

	id := &Identity{
		Principal: claims.Subject,
		Issuer:    claims.Issuer,
		Roles:     claims.Roles,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	return id, nil
}

var (
	_ TokenProvider = (*TokenSource)(nil)
	_ KeyProvider   = (*StaticKeyProvider)(nil)
)
