package policy

import (
	"encoding/json"
	"slices"

	"github.com/roach88/pickleball/internal/ir"
)

// NameSet is an immutable sorted set of qualified names. The zero value is
// the empty set.
type NameSet struct {
	names []ir.QualifiedName
}

// NewNameSet builds a set, dropping duplicates.
func NewNameSet(names ...ir.QualifiedName) NameSet {
	if len(names) == 0 {
		return NameSet{}
	}
	out := slices.Clone(names)
	slices.Sort(out)
	return NameSet{names: slices.Compact(out)}
}

// Strings builds a set from plain strings.
func Strings(names ...string) NameSet {
	return NewNameSet(ir.Names(names...)...)
}

// Contains reports exact membership.
func (s NameSet) Contains(name ir.QualifiedName) bool {
	_, ok := slices.BinarySearch(s.names, name)
	return ok
}

// Len returns the number of names.
func (s NameSet) Len() int {
	return len(s.names)
}

// Names returns the names in sorted order. The slice is a copy.
func (s NameSet) Names() []ir.QualifiedName {
	return slices.Clone(s.names)
}

// Strings returns the names in sorted order as strings.
func (s NameSet) Strings() []string {
	out := make([]string, len(s.names))
	for i, n := range s.names {
		out[i] = string(n)
	}
	return out
}

// Equal reports whether both sets hold the same names.
func (s NameSet) Equal(o NameSet) bool {
	return slices.Equal(s.names, o.names)
}

// Union returns the names in either set.
func (s NameSet) Union(o NameSet) NameSet {
	out := make([]ir.QualifiedName, 0, len(s.names)+len(o.names))
	i, j := 0, 0
	for i < len(s.names) && j < len(o.names) {
		switch {
		case s.names[i] < o.names[j]:
			out = append(out, s.names[i])
			i++
		case s.names[i] > o.names[j]:
			out = append(out, o.names[j])
			j++
		default:
			out = append(out, s.names[i])
			i++
			j++
		}
	}
	out = append(out, s.names[i:]...)
	out = append(out, o.names[j:]...)
	if len(out) == 0 {
		return NameSet{}
	}
	return NameSet{names: out}
}

// Intersect returns the names in both sets.
func (s NameSet) Intersect(o NameSet) NameSet {
	var out []ir.QualifiedName
	for _, n := range s.names {
		if o.Contains(n) {
			out = append(out, n)
		}
	}
	return NameSet{names: out}
}

// Difference returns the names in s that are not in o.
func (s NameSet) Difference(o NameSet) NameSet {
	var out []ir.QualifiedName
	for _, n := range s.names {
		if !o.Contains(n) {
			out = append(out, n)
		}
	}
	return NameSet{names: out}
}

// SubsetOf reports whether every name in s is in o.
func (s NameSet) SubsetOf(o NameSet) bool {
	for _, n := range s.names {
		if !o.Contains(n) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the sorted names as an array, never null.
func (s NameSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON reads an array of names in any order, dropping duplicates.
func (s *NameSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = Strings(names...)
	return nil
}
