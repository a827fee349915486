// Package engine implements the pickle stack machine in its two modes.
//
// The machine interprets one opcode at a time over an operand stack, a mark
// stack and a memo table. Everything that touches the outside world goes
// through a mode:
//
// Trace mode (Trace, TraceStacked):
// Symbolic and side-effect free. Every global acquisition and every call is
// recorded as an ir.PolicyEvent; nothing is looked up and nothing runs.
//
// Enforce mode (Gate):
// Real resolution and construction against a host.Registry, gated on a
// policy.Entry. The first disallowed symbol stops the load with a
// *PolicyViolation and no partial object escapes.
//
// ARCHITECTURE:
//
// One Acquisition Path:
// GLOBAL, STACK_GLOBAL and the INST header all call mode.acquire with the
// same (module, name) pair. The gate checks the joined qualified name and
// then resolves exactly that pair, so the name that was checked and the
// name that was resolved can never differ. "os.environ.items" is checked
// as a whole, never as "os" followed by attribute walks.
//
// Reduce Provenance:
// Every accepted acquisition gets a provenance id from the run's Sequence.
// REDUCE and the instantiation opcodes only accept a Reference whose id
// was issued in this run.
//
// Bounded Execution:
// Each run owns a Budget (instructions and a wall-clock deadline read from
// an injectable Clock) and Limits on stack, mark, memo and container sizes. Exceeding any of them ends the run with a RuntimeError;
// a hostile stream can never hang the caller.
//
// Runs share no mutable state. Callers wanting parallelism start one run
// per goroutine.
package engine
