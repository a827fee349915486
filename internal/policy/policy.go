package policy

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/pickleball/internal/canon"
	"github.com/roach88/pickleball/internal/ir"
)

// Entry is the allow-list for one class id.
type Entry struct {
	Globals NameSet `json:"globals"`
	Reduces NameSet `json:"reduces"`
}

// AllowsGlobal reports whether name may be resolved. Membership is exact:
// allowing "os.getcwd" says nothing about "os.environ.items".
func (e Entry) AllowsGlobal(name ir.QualifiedName) bool {
	return e.Globals.Contains(name)
}

// AllowsReduce reports whether name may be invoked.
func (e Entry) AllowsReduce(name ir.QualifiedName) bool {
	return e.Reduces.Contains(name)
}

// Equal reports whether both entries allow the same names.
func (e Entry) Equal(o Entry) bool {
	return e.Globals.Equal(o.Globals) && e.Reduces.Equal(o.Reduces)
}

// Union merges two entries.
func (e Entry) Union(o Entry) Entry {
	return Entry{Globals: e.Globals.Union(o.Globals), Reduces: e.Reduces.Union(o.Reduces)}
}

// Empty reports whether the entry allows nothing.
func (e Entry) Empty() bool {
	return e.Globals.Len() == 0 && e.Reduces.Len() == 0
}

func (e Entry) validate() error {
	for _, set := range []NameSet{e.Globals, e.Reduces} {
		for _, n := range set.names {
			if !n.Valid() {
				return ErrEmptyName
			}
		}
	}
	return nil
}

func (e Entry) canonical() canon.Object {
	return canon.Object{
		"globals": canon.Strings(e.Globals.Strings()),
		"reduces": canon.Strings(e.Reduces.Strings()),
	}
}

// Validation errors returned by New.
var (
	ErrEmptyClassID = errors.New("policy: empty class id")
	ErrEmptyName    = errors.New("policy: empty qualified name")
)

// Policy maps class ids to entries. The zero value is the empty policy.
type Policy struct {
	entries map[string]Entry
}

// New builds a policy from entries after validating them.
func New(entries map[string]Entry) (Policy, error) {
	out := make(map[string]Entry, len(entries))
	for class, e := range entries {
		if class == "" {
			return Policy{}, ErrEmptyClassID
		}
		if err := e.validate(); err != nil {
			return Policy{}, fmt.Errorf("class %q: %w", class, err)
		}
		out[class] = e
	}
	return Policy{entries: out}, nil
}

// Must is like New but panics on invalid input. For fixtures and literals.
func Must(entries map[string]Entry) Policy {
	p, err := New(entries)
	if err != nil {
		panic(err)
	}
	return p
}

// Fragment is a single-class policy.
func Fragment(classID string, e Entry) (Policy, error) {
	return New(map[string]Entry{classID: e})
}

// Entry returns the entry for classID. A missing class yields the empty
// entry, which allows nothing.
func (p Policy) Entry(classID string) (Entry, bool) {
	e, ok := p.entries[classID]
	return e, ok
}

// Classes returns the class ids in sorted order.
func (p Policy) Classes() []string {
	return slices.Sorted(maps.Keys(p.entries))
}

// Len returns the number of classes.
func (p Policy) Len() int {
	return len(p.entries)
}

// Equal reports whether both policies have the same classes and entries.
func (p Policy) Equal(o Policy) bool {
	return maps.EqualFunc(p.entries, o.entries, Entry.Equal)
}

// Canonical renders the policy as a canonical document.
func (p Policy) Canonical() canon.Object {
	obj := make(canon.Object, len(p.entries))
	for class, e := range p.entries {
		obj[class] = e.canonical()
	}
	return obj
}

// Digest returns the domain-separated content digest of the policy.
func (p Policy) Digest() (string, error) {
	return canon.Digest(canon.DomainPolicy, p.Canonical())
}
