// Package preload warms cache namespaces at application start.
//
// A Preloader runs a fixed list of tasks in parallel with bounded concurrency.
// Each task may schedule follow-up tasks after a delay; follow-ups run
// detached and are drained by Wait or cancelled by Close. A failing task is
// logged and reported but never stops its siblings.
//
// Seed builds the common task: call a fetch function directly and store the
// result in a namespace with a fresh timestamp.
package preload
