package cache

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for cache operations.
var (
	ErrInvalidKey       = errors.New("cache: key is invalid")
	ErrInvalidPolicy    = errors.New("cache: policy is invalid")
	ErrInvalidNamespace = errors.New("cache: namespace name is invalid")
	ErrNamespaceType    = errors.New("cache: namespace already open with a different type")
	ErrNamespaceUnknown = errors.New("cache: namespace not found")
	ErrNilFetch         = errors.New("cache: fetch function is nil")
	ErrFetchPanic       = errors.New("cache: fetch function panicked")
	ErrClosed           = errors.New("cache: manager is closed")
)

// FetchFunc loads the value for one argument tuple from the backing store.
//
// Contract:
// - Concurrency: may be called concurrently for different keys.
// - Context: the context is detached from the caller's cancellation; retries
//   and timeouts are the fetch function's own responsibility.
// - Errors: any error leaves previously cached data untouched.
type FetchFunc[T any] func(ctx context.Context, args ...any) (T, error)

// Clock supplies the current time. Tests substitute a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}
