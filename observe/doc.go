// Package observe provides observability primitives for the data cache.
//
// It is a pure instrumentation library: no caching, no transport, no I/O
// beyond exporter setup. The cache manager consumes a Logger, Metrics and
// Tracer; the service binary builds them from an Observer.
package observe
