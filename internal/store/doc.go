// Package store provides SQLite-backed durable storage for corpus trace
// runs.
//
// A run records one invocation of corpus tracing for a class id:
//   - runs: run id (UUIDv7), class id, corpus root and the unioned policy
//   - samples: per-sample status, error text, trace digest and the trace
//     events encoded as canonical CBOR
//
// # Ordering
//
// Queries order by run id and sample seq, never by timestamps. Run ids are
// UUIDv7, so lexical order is creation order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Policies are stored as canonical JSON with their pickleball/policy/v1
// digest, so two runs that inferred the same policy store identical bytes.
package store
