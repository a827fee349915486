package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/roach88/pickleball/internal/canon"
	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/policy"
)

var eventEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: cbor enc mode: %v", err))
	}
	eventEncMode = em
}

// marshalEvents encodes a trace as canonical CBOR for the events BLOB.
// A nil trace stores NULL.
func marshalEvents(t ir.Trace) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	data, err := eventEncMode.Marshal(t.Records())
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}
	return data, nil
}

// unmarshalEvents decodes an events BLOB back into a trace.
func unmarshalEvents(data []byte) (ir.Trace, error) {
	if data == nil {
		return nil, nil
	}
	var records []ir.EventRecord
	if err := cbor.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	t, err := ir.TraceFromRecords(records)
	if err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return t, nil
}

// marshalPolicy converts a policy to canonical JSON TEXT plus its digest.
func marshalPolicy(p policy.Policy) (string, string, error) {
	data, err := canon.Marshal(p.Canonical())
	if err != nil {
		return "", "", fmt.Errorf("marshal policy: %w", err)
	}
	digest, err := p.Digest()
	if err != nil {
		return "", "", fmt.Errorf("marshal policy: %w", err)
	}
	return string(data), digest, nil
}

// unmarshalPolicy parses stored policy TEXT.
func unmarshalPolicy(text string) (policy.Policy, error) {
	p, err := policy.Unmarshal([]byte(text))
	if err != nil {
		return policy.Policy{}, fmt.Errorf("unmarshal policy: %w", err)
	}
	return p, nil
}
