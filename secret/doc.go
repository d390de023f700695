// Package secret resolves credentials referenced from configuration.
//
// Two forms are understood:
//   - ${VAR} expands from the environment and fails if VAR is unset. $$ is a literal $.
//   - secretref:<provider>:<ref> asks a Provider, either as the whole value
//     or inline, as in "Bearer secretref:file:backend-token".
//
// The env provider is always available. Other providers are built from the
// DefaultRegistry by name, such as "file" for mounted secret directories.
package secret
