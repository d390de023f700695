// Package cache provides a namespaced, stale-while-revalidate data cache.
//
// A Manager owns any number of namespaces. Each namespace is opened with a
// fetch function and a Policy and exposes GetData, Prefetch, Put and
// Invalidate. Concurrent callers asking for the same key share one in-flight
// fetch. Stale entries are served immediately while a detached revalidation
// runs; failed revalidations keep the previous data. Namespaces are bounded by
// an LRU trim after every insert and by a periodic sweep of expired entries.
package cache
