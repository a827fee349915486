package ir

import (
	"fmt"

	"github.com/roach88/pickleball/internal/canon"
)

// PolicyEvent is a sealed interface over the observations the interpreter
// makes that matter for policy. Implementations:
//   - GlobalResolved
//   - ReduceInvoked
type PolicyEvent interface {
	policyEvent()
	Record() EventRecord
}

// GlobalResolved records the acquisition of a global symbol.
type GlobalResolved struct {
	Name QualifiedName
}

func (GlobalResolved) policyEvent() {}

func (e GlobalResolved) Record() EventRecord {
	return EventRecord{Kind: EventKindGlobal, Name: string(e.Name)}
}

// ReduceInvoked records the invocation of a callable.
// Callable is empty when the callable was not a resolved global; Bare is
// the short name the callable reports.
type ReduceInvoked struct {
	Callable QualifiedName
	Bare     string
	Argc     int
}

func (ReduceInvoked) policyEvent() {}

func (e ReduceInvoked) Record() EventRecord {
	return EventRecord{Kind: EventKindReduce, Callable: string(e.Callable), Bare: e.Bare, Argc: e.Argc}
}

// Event kinds used in serialized records.
const (
	EventKindGlobal = "global"
	EventKindReduce = "reduce"
)

// EventRecord is the flat serialized form of a PolicyEvent, shared by
// scenario files, the store and canonical rendering.
type EventRecord struct {
	Kind     string `json:"kind" yaml:"kind" cbor:"1,keyasint"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty" cbor:"2,keyasint,omitempty"`
	Callable string `json:"callable,omitempty" yaml:"callable,omitempty" cbor:"3,keyasint,omitempty"`
	Bare     string `json:"bare,omitempty" yaml:"bare,omitempty" cbor:"4,keyasint,omitempty"`
	Argc     int    `json:"argc,omitempty" yaml:"argc,omitempty" cbor:"5,keyasint,omitempty"`
}

// Event converts a record back into a PolicyEvent.
func (r EventRecord) Event() (PolicyEvent, error) {
	switch r.Kind {
	case EventKindGlobal:
		if r.Name == "" {
			return nil, fmt.Errorf("global event has no name")
		}
		return GlobalResolved{Name: QualifiedName(r.Name)}, nil
	case EventKindReduce:
		if r.Argc < 0 {
			return nil, fmt.Errorf("reduce event has negative argc %d", r.Argc)
		}
		return ReduceInvoked{Callable: QualifiedName(r.Callable), Bare: r.Bare, Argc: r.Argc}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", r.Kind)
	}
}

func (r EventRecord) canonical() canon.Object {
	obj := canon.Object{"kind": canon.String(r.Kind)}
	switch r.Kind {
	case EventKindGlobal:
		obj["name"] = canon.String(r.Name)
	case EventKindReduce:
		obj["callable"] = canon.String(r.Callable)
		obj["bare"] = canon.String(r.Bare)
		obj["argc"] = canon.Int(r.Argc)
	}
	return obj
}
