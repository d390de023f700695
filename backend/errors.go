package backend

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrInvalidConfig indicates an unusable client configuration.
	ErrInvalidConfig = errors.New("backend: invalid config")

	// ErrInvalidMonth indicates a month that is not YYYY-MM.
	ErrInvalidMonth = errors.New("backend: invalid month")

	// ErrDecode indicates a response body that does not match the API.
	ErrDecode = errors.New("backend: decode response")
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 1 << 10

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string

	// Wait is the server's Retry-After hint, if any.
	Wait time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend: %s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// RetryAfter returns Wait. Retry uses it as the minimum delay.
func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

// Temporary reports whether retrying may help: 429 and 5xx.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
