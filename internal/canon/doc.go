// Package canon produces RFC 8785 canonical JSON for documents that need a
// stable byte form: golden traces, stored samples and content digests.
//
// Documents are built from a small sealed value model (String, Int, Bool,
// Array, Object). Floats and null are not representable, so two runs that
// observe the same events always produce the same bytes.
package canon
