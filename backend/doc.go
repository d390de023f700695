// Package backend is the HTTP/JSON client for the hosted staffing data store.
//
// A Client's methods are the fetch functions behind the cache namespaces:
// Projects, ProjectsByMonth, Candidates and PaymentBatches. Every request
// carries a service token from an auth.TokenProvider and runs through a
// resilience.Executor. 4xx responses other than 429 are marked permanent so
// they are neither retried nor counted by the circuit breaker.
//
// NewStubHandler serves the same API from an in-memory Dataset for local
// development and tests.
package backend
