package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Marshal renders p in the policy file format: class ids and names sorted,
// two-space indent, trailing newline.
func Marshal(p Policy) ([]byte, error) {
	entries := p.entries
	if entries == nil {
		entries = map[string]Entry{}
	}
	return marshalIndent(entries)
}

// MarshalEntry renders a single entry in the flat trace format.
func MarshalEntry(e Entry) ([]byte, error) {
	return marshalIndent(e)
}

func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes p to w in the policy file format.
func Write(w io.Writer, p Policy) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteFile writes p to path.
func WriteFile(path string, p Policy) error {
	data, err := Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Unmarshal decodes a policy file. The document is checked against the
// schema first; names may repeat and appear in any order.
func Unmarshal(data []byte) (Policy, error) {
	return decodePolicy("policy", data)
}

// UnmarshalEntry decodes a flat {"globals": [...], "reduces": [...]} file.
func UnmarshalEntry(data []byte) (Entry, error) {
	return decodeEntry("policy", data)
}

// Decode accepts either format. A flat document becomes a fragment for
// classID.
func Decode(source string, data []byte, classID string) (Policy, error) {
	if !IsFlat(data) {
		return decodePolicy(source, data)
	}
	e, err := decodeEntry(source, data)
	if err != nil {
		return Policy{}, err
	}
	return Fragment(classID, e)
}

// ReadFile reads a policy or flat trace file; see Decode.
func ReadFile(path, classID string) (Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	return Decode(path, data, classID)
}

// IsFlat reports whether data looks like a flat trace file: a top-level
// "globals" or "reduces" key holding an array.
func IsFlat(data []byte) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return false
	}
	for _, key := range []string{"globals", "reduces"} {
		if raw, ok := top[key]; ok && len(bytes.TrimSpace(raw)) > 0 && bytes.TrimSpace(raw)[0] == '[' {
			return true
		}
	}
	return false
}

func decodePolicy(source string, data []byte) (Policy, error) {
	if err := validate(source, data, "#Policy"); err != nil {
		return Policy{}, err
	}
	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return Policy{}, fmt.Errorf("%s: %w", source, err)
	}
	p, err := New(entries)
	if err != nil {
		return Policy{}, fmt.Errorf("%s: %w", source, err)
	}
	return p, nil
}

func decodeEntry(source string, data []byte) (Entry, error) {
	if err := validate(source, data, "#Flat"); err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("%s: %w", source, err)
	}
	if err := e.validate(); err != nil {
		return Entry{}, fmt.Errorf("%s: %w", source, err)
	}
	return e, nil
}
