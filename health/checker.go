package health

import (
	"context"
	"time"
)

// Status represents the health status of a component.
type Status int

const (
	// StatusHealthy indicates the component is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the component serves requests with reduced quality.
	StatusDegraded
	// StatusUnhealthy indicates the component cannot serve requests.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its string form.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worse returns the more severe of s and o.
func (s Status) Worse(o Status) Status {
	if o > s {
		return o
	}
	return s
}

// Result contains the outcome of a health check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err}
}

// WithDetails adds details to a result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is the interface for health checks.
type Checker interface {
	// Name identifies the checker in reports. Names are unique per Aggregator.
	Name() string

	// Check reports the current status. It should return promptly once ctx ends.
	Check(ctx context.Context) Result
}

type funcChecker struct {
	name string
	fn   func(context.Context) Result
}

func (f funcChecker) Name() string                     { return f.name }
func (f funcChecker) Check(ctx context.Context) Result { return f.fn(ctx) }

// CheckerFunc adapts fn into a Checker called name.
func CheckerFunc(name string, fn func(context.Context) Result) Checker {
	return funcChecker{name: name, fn: fn}
}
