package cache

import (
	"fmt"
	"time"
)

// Policy defaults.
const (
	DefaultExpireAfter = 5 * time.Minute
	DefaultStaleAfter  = 1 * time.Minute
	DefaultMaxEntries  = 100
)

// Policy configures freshness and capacity for one namespace.
//
// A zero field takes its default, so a zero StaleAfter cannot mean "always
// stale". For revalidation on every hit use a positive StaleAfter shorter than
// any real gap between reads, such as time.Nanosecond.
type Policy struct {
	// ExpireAfter is the age after which an entry must not be served without
	// a fresh fetch. Zero means DefaultExpireAfter.
	ExpireAfter time.Duration `yaml:"expire_after"`

	// StaleAfter is the age after which an entry is served but revalidated in
	// the background. Zero means DefaultStaleAfter, clamped to ExpireAfter.
	StaleAfter time.Duration `yaml:"stale_after"`

	// MaxEntries bounds the entry count. Zero means DefaultMaxEntries.
	MaxEntries int `yaml:"max_entries"`
}

// DefaultPolicy returns the default namespace policy.
// ExpireAfter: 5 minutes, StaleAfter: 1 minute, MaxEntries: 100
func DefaultPolicy() Policy {
	return Policy{
		ExpireAfter: DefaultExpireAfter,
		StaleAfter:  DefaultStaleAfter,
		MaxEntries:  DefaultMaxEntries,
	}
}

// WithDefaults returns p with zero fields replaced by defaults.
func (p Policy) WithDefaults() Policy {
	if p.ExpireAfter == 0 {
		p.ExpireAfter = DefaultExpireAfter
	}
	if p.StaleAfter == 0 {
		p.StaleAfter = DefaultStaleAfter
		if p.StaleAfter > p.ExpireAfter {
			p.StaleAfter = p.ExpireAfter
		}
	}
	if p.MaxEntries == 0 {
		p.MaxEntries = DefaultMaxEntries
	}
	return p
}

// Validate checks p after defaults are applied.
func (p Policy) Validate() error {
	p = p.WithDefaults()
	if p.ExpireAfter < 0 || p.StaleAfter < 0 || p.MaxEntries < 0 {
		return fmt.Errorf("%w: negative value in %+v", ErrInvalidPolicy, p)
	}
	if p.StaleAfter > p.ExpireAfter {
		return fmt.Errorf("%w: stale_after %s exceeds expire_after %s", ErrInvalidPolicy, p.StaleAfter, p.ExpireAfter)
	}
	return nil
}

// Freshness classifies a cache entry relative to now.
type Freshness int

const (
	// Fresh entries are served without further action.
	Fresh Freshness = iota
	// Stale entries are served immediately and revalidated in the background.
	Stale
	// Expired entries, and missing ones, require a blocking fetch.
	Expired
)

// String returns the string representation of the freshness.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Classify returns the freshness of an entry fetched at fetchedAt.
// A zero fetchedAt (no entry) is Expired.
func (p Policy) Classify(fetchedAt, now time.Time) Freshness {
	if fetchedAt.IsZero() {
		return Expired
	}
	age := now.Sub(fetchedAt)
	switch {
	case age > p.ExpireAfter:
		return Expired
	case age > p.StaleAfter:
		return Stale
	default:
		return Fresh
	}
}
