// Package host is the runtime the enforcement gate resolves symbols
// against: a registry of Go-side modules exposing classes, functions and
// nested namespaces under their Python names.
//
// Nothing in this package consults a policy. The gate decides whether a
// name may be acquired; the registry only answers what the name denotes.
package host
