// Package harness runs conformance scenarios against the tracer and the
// enforcement gate.
//
// # Scenario Format
//
// Scenarios are YAML files. The stream is assembled step by step with the
// pickle builder, then traced; when a policy is present the same bytes are
// loaded through the gate against a host registry whose os stand-in
// records every dangerous call.
//
//	name: call_system_torch_serialization
//	description: "os.system reached through torch.serialization.os"
//	protocol: 4
//	stream:
//	  - global: [torch, serialization.os.system]
//	  - op: MARK
//	  - short_binstring: touch test.txt
//	  - op: TUPLE
//	  - op: REDUCE
//	policy:
//	  globals: [torch.serialization.os.system]
//	  reduces: []
//	assertions:
//	  - type: trace_contains
//	    kind: global
//	    name: torch.serialization.os.system
//	  - type: gate_rejects
//	    kind: reduce
//	  - type: host_calls
//
// # Assertion Types
//
//   - trace_contains: an event of kind with name appears in the trace
//   - trace_order: globals resolve in the listed order
//   - trace_count: events of kind (and optionally name) occur count times
//   - trace_error: tracing fails with the given error code
//   - gate_allows: the gate loads the stream
//   - gate_rejects: the gate reports a violation of kind (on name)
//   - gate_error: the gate fails with a runtime error code
//   - host_calls: exactly the listed recording host functions ran
//
// # Golden Snapshots
//
// RunWithGolden renders the trace and gate outcome as canonical JSON and
// compares it with testdata/golden/<name>.golden using goldie.
package harness
