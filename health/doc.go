// Package health reports whether the staffing cache service can serve data.
//
// A Checker reports one component as Healthy, Degraded or Unhealthy. The
// Aggregator runs every registered checker concurrently under a shared
// timeout and folds the results into one Report.
//
// The cache itself drives the interesting states: a closed manager is
// Unhealthy, and a namespace whose latest background refresh failed is
// Degraded because callers are being served stale data.
//
//	agg := health.NewAggregator(5 * time.Second)
//	agg.Register(health.NewCacheChecker(manager))
//	agg.Register(health.NewCircuitChecker("backend", client.Breaker()))
//	health.RegisterHandlers(mux, agg)
//
// RegisterHandlers mounts /healthz (liveness), /readyz (readiness) and
// /health (JSON report).
package health
