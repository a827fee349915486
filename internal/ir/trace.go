package ir

import (
	"fmt"

	"github.com/roach88/pickleball/internal/canon"
)

// Trace is the ordered sequence of policy events a stream produced.
// Events are appended, never retracted.
type Trace []PolicyEvent

// Globals returns the resolved global names in trace order, duplicates
// included.
func (t Trace) Globals() []QualifiedName {
	var out []QualifiedName
	for _, ev := range t {
		if g, ok := ev.(GlobalResolved); ok {
			out = append(out, g.Name)
		}
	}
	return out
}

// Reduces returns the reduce events in trace order.
func (t Trace) Reduces() []ReduceInvoked {
	var out []ReduceInvoked
	for _, ev := range t {
		if r, ok := ev.(ReduceInvoked); ok {
			out = append(out, r)
		}
	}
	return out
}

// Records flattens the trace for serialization.
func (t Trace) Records() []EventRecord {
	out := make([]EventRecord, len(t))
	for i, ev := range t {
		out[i] = ev.Record()
	}
	return out
}

// TraceFromRecords rebuilds a trace from serialized records.
func TraceFromRecords(records []EventRecord) (Trace, error) {
	t := make(Trace, 0, len(records))
	for i, r := range records {
		ev, err := r.Event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		t = append(t, ev)
	}
	return t, nil
}

// Canonical renders {"events":[...]} as a canonical document.
func (t Trace) Canonical() canon.Object {
	events := make(canon.Array, len(t))
	for i, ev := range t {
		events[i] = ev.Record().canonical()
	}
	return canon.Object{"events": events}
}

// MarshalCanonical returns the canonical JSON bytes of the trace.
func (t Trace) MarshalCanonical() ([]byte, error) {
	return canon.Marshal(t.Canonical())
}

// Digest returns the domain-separated content digest of the trace.
func (t Trace) Digest() (string, error) {
	return canon.Digest(canon.DomainTrace, t.Canonical())
}
