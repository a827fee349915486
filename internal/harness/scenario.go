package harness

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pickleball/internal/pickle"
)

// DefaultClass is the class id scenarios load under when they name none.
const DefaultClass = "lib"

// Scenario defines a conformance scenario.
// A scenario assembles one pickle stream, traces it, optionally loads it
// through the enforcement gate under an allow-list, and asserts on the
// trace and the gate outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Protocol selects the encodings the builder picks and the PROTO
	// header. Protocols below 2 have no header.
	Protocol int `yaml:"protocol"`

	// Stream lists the builder steps, in order. STOP is appended.
	Stream []Step `yaml:"stream"`

	// Class is the class id used for the gate and for fragment extraction.
	// Defaults to DefaultClass.
	Class string `yaml:"class,omitempty"`

	// Policy is the allow-list for Class. If nil the gate is not run.
	Policy *PolicySpec `yaml:"policy,omitempty"`

	// Assertions validate the trace and the gate outcome.
	Assertions []Assertion `yaml:"assertions"`
}

// PolicySpec is the allow-list entry a scenario loads under.
type PolicySpec struct {
	Globals []string `yaml:"globals"`
	Reduces []string `yaml:"reduces"`
}

// Step is one builder instruction. Exactly one field must be set.
//
//	- stack_global: [os, environ.items]
//	- op: MARK
//	- short_binstring: touch test.txt
//	- op: TUPLE
//	- op: REDUCE
type Step struct {
	Op             string   `yaml:"op,omitempty"`
	Global         []string `yaml:"global,omitempty"`
	StackGlobal    []string `yaml:"stack_global,omitempty"`
	Inst           []string `yaml:"inst,omitempty"`
	Str            *string  `yaml:"str,omitempty"`
	ShortBinString *string  `yaml:"short_binstring,omitempty"`
	Int            *int64   `yaml:"int,omitempty"`
	Put            *int64   `yaml:"put,omitempty"`
	Get            *int64   `yaml:"get,omitempty"`
	Raw            string   `yaml:"raw,omitempty"`
}

// Assertion validates the trace or the gate outcome.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event with Kind and Name appears in the trace
	// - "trace_order": globals in Names resolve in this order
	// - "trace_count": events of Kind (optionally with Name) occur Count times
	// - "trace_error": tracing fails with Code
	// - "gate_allows": the gate loads the stream
	// - "gate_rejects": the gate fails with a violation of Kind on Name
	// - "gate_error": the gate fails with runtime error Code
	// - "host_calls": the host functions that ran are exactly Names
	Type string `yaml:"type"`

	// Kind is an event kind (global, reduce) or a violation kind.
	Kind string `yaml:"kind,omitempty"`

	// Name is a qualified name. For reduce events it matches the callable,
	// or the bare name when the callable is unresolved.
	Name string `yaml:"name,omitempty"`

	// Names lists qualified names (used by trace_order and host_calls).
	Names []string `yaml:"names,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Code is a runtime error code such as MALFORMED_STREAM (used by
	// trace_error and gate_error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertTraceError    = "trace_error"
	AssertGateAllows    = "gate_allows"
	AssertGateRejects   = "gate_rejects"
	AssertGateError     = "gate_error"
	AssertHostCalls     = "host_calls"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Class == "" {
		scenario.Class = DefaultClass
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Protocol < 0 || s.Protocol > pickle.HighestProtocol {
		return fmt.Errorf("protocol %d out of range 0..%d", s.Protocol, pickle.HighestProtocol)
	}
	if len(s.Stream) == 0 {
		return fmt.Errorf("stream list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Stream {
		if err := step.validate(); err != nil {
			return fmt.Errorf("stream[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, s.Policy != nil); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion, gated bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Kind == "" || a.Name == "" {
			return fmt.Errorf("assertions[%d]: trace_contains requires kind and name", index)
		}
	case AssertTraceOrder:
		if len(a.Names) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order requires at least 2 names", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: trace_count requires kind", index)
		}
	case AssertTraceError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: trace_error requires code", index)
		}
	case AssertGateError:
		if !gated {
			return fmt.Errorf("assertions[%d]: gate_error requires a policy", index)
		}
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: gate_error requires code", index)
		}
	case AssertGateAllows, AssertHostCalls:
		if !gated {
			return fmt.Errorf("assertions[%d]: %s requires a policy", index, a.Type)
		}
	case AssertGateRejects:
		if !gated {
			return fmt.Errorf("assertions[%d]: gate_rejects requires a policy", index)
		}
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: gate_rejects requires kind", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func (s Step) validate() error {
	set := 0
	for _, present := range []bool{
		s.Op != "", s.Global != nil, s.StackGlobal != nil, s.Inst != nil,
		s.Str != nil, s.ShortBinString != nil, s.Int != nil,
		s.Put != nil, s.Get != nil, s.Raw != "",
	} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one instruction per step, got %d", set)
	}

	for _, pair := range [][]string{s.Global, s.StackGlobal, s.Inst} {
		if pair != nil && len(pair) != 2 {
			return fmt.Errorf("expected [module, name], got %d elements", len(pair))
		}
	}
	if s.Op != "" {
		if _, ok := pickle.OpcodeByName(s.Op); !ok {
			return fmt.Errorf("unknown opcode %q", s.Op)
		}
	}
	if s.Raw != "" {
		if _, err := hex.DecodeString(s.Raw); err != nil {
			return fmt.Errorf("raw: %w", err)
		}
	}
	return nil
}

func (s Step) apply(b *pickle.Builder) {
	switch {
	case s.Op != "":
		op, _ := pickle.OpcodeByName(s.Op)
		b.Emit(op)
	case s.Global != nil:
		b.Global(s.Global[0], s.Global[1])
	case s.StackGlobal != nil:
		b.StackGlobal(s.StackGlobal[0], s.StackGlobal[1])
	case s.Inst != nil:
		b.Inst(s.Inst[0], s.Inst[1])
	case s.Str != nil:
		b.Str(*s.Str)
	case s.ShortBinString != nil:
		b.ShortBinString(*s.ShortBinString)
	case s.Int != nil:
		b.Int(*s.Int)
	case s.Put != nil:
		b.Put(*s.Put)
	case s.Get != nil:
		b.Get(*s.Get)
	case s.Raw != "":
		raw, _ := hex.DecodeString(s.Raw)
		b.Raw(raw...)
	}
}

// Assemble builds the scenario's pickle stream.
func (s *Scenario) Assemble() []byte {
	b := pickle.NewBuilder(s.Protocol)
	for _, step := range s.Stream {
		step.apply(b)
	}
	return b.Assemble()
}
