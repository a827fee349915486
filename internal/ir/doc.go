// Package ir defines the symbolic data model shared by the interpreter,
// the policy algebra and the persistence layers.
//
// The package holds types and small pure helpers only. It imports canon for
// rendering and nothing else internal, so every other package can depend on
// it without cycles.
//
// Key design constraints:
//   - QualifiedName is an atomic token; equality is exact string equality
//   - Value and PolicyEvent are closed variant sets (unexported marker method)
//   - Containers are the only mutable values; everything else is immutable
//   - Trace is append-only
package ir
