package host

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strconv"
	"strings"
)

// Tuple is an immutable sequence.
type Tuple []Object

// List is a mutable sequence.
type List struct {
	Items []Object
}

// NewList creates a list holding items.
func NewList(items ...Object) *List {
	return &List{Items: append([]Object(nil), items...)}
}

// Append adds an item.
func (l *List) Append(item Object) error {
	l.Items = append(l.Items, item)
	return nil
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(l.Items)
}

// ByteArray is a mutable byte buffer.
type ByteArray struct {
	Data []byte
}

// Dict is an insertion-ordered mapping with Python key semantics.
type Dict struct {
	keys  []Object
	vals  []Object
	index map[string]int
}

// NewDict creates an empty dict.
func NewDict() *Dict {
	return &Dict{index: make(map[string]int)}
}

// SetItem inserts or replaces a key. Insertion order is kept on replace.
func (d *Dict) SetItem(key, value Object) error {
	k, err := hashKey(key)
	if err != nil {
		return err
	}
	if i, ok := d.index[k]; ok {
		d.vals[i] = value
		return nil
	}
	d.index[k] = len(d.keys)
	d.keys = append(d.keys, key)
	d.vals = append(d.vals, value)
	return nil
}

// Get returns the value for key. Unhashable keys are never present.
func (d *Dict) Get(key Object) (Object, bool) {
	k, err := hashKey(key)
	if err != nil {
		return nil, false
	}
	i, ok := d.index[k]
	if !ok {
		return nil, false
	}
	return d.vals[i], true
}

// Update copies every entry of other into d.
func (d *Dict) Update(other *Dict) error {
	for i, k := range other.keys {
		if err := d.SetItem(k, other.vals[i]); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.keys)
}

// Keys returns keys in insertion order.
func (d *Dict) Keys() []Object {
	return append([]Object(nil), d.keys...)
}

// Each calls fn for every entry in insertion order.
func (d *Dict) Each(fn func(key, value Object)) {
	for i, k := range d.keys {
		fn(k, d.vals[i])
	}
}

// Set is a set or frozenset.
type Set struct {
	Frozen bool
	items  []Object
	index  map[string]struct{}
}

// NewSet creates an empty set.
func NewSet(frozen bool) *Set {
	return &Set{Frozen: frozen, index: make(map[string]struct{})}
}

// Add inserts an item. Frozen sets accept items only while being built.
func (s *Set) Add(item Object) error {
	k, err := hashKey(item)
	if err != nil {
		return err
	}
	if _, ok := s.index[k]; ok {
		return nil
	}
	s.index[k] = struct{}{}
	s.items = append(s.items, item)
	return nil
}

// Contains reports membership.
func (s *Set) Contains(item Object) bool {
	k, err := hashKey(item)
	if err != nil {
		return false
	}
	_, ok := s.index[k]
	return ok
}

// Len returns the number of items.
func (s *Set) Len() int {
	return len(s.items)
}

// Items returns the items in insertion order.
func (s *Set) Items() []Object {
	return append([]Object(nil), s.items...)
}

// Key construction is bounded: shared tuples can make a small stream
// describe a key with exponentially many nodes.
const (
	maxKeyNodes = 1 << 16
	maxKeyBytes = 1 << 26
	digestAbove = 64
)

// hashKey maps a hashable object to a string that is equal exactly when
// Python would consider the keys equal. Numbers that compare equal
// (True, 1, 1.0) share a key. Long keys are replaced by their SHA-256.
func hashKey(v Object) (string, error) {
	kw := &keyWriter{}
	if err := kw.write(v); err != nil {
		return "", err
	}
	if kw.sb.Len() <= digestAbove {
		return kw.sb.String(), nil
	}
	sum := sha256.Sum256([]byte(kw.sb.String()))
	return "h" + hex.EncodeToString(sum[:]), nil
}

type keyWriter struct {
	sb    strings.Builder
	nodes int
}

// reserve accounts for one node of n bytes.
func (kw *keyWriter) reserve(n int) error {
	kw.nodes++
	if kw.nodes > maxKeyNodes {
		return fmt.Errorf("%w: more than %d nodes", ErrKeyTooLarge, maxKeyNodes)
	}
	if kw.sb.Len()+n > maxKeyBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrKeyTooLarge, maxKeyBytes)
	}
	return nil
}

func (kw *keyWriter) writeInt(n *big.Int) error {
	// Hex is linear in the size of n; decimal is not.
	if err := kw.reserve(n.BitLen()/4 + 4); err != nil {
		return err
	}
	kw.sb.WriteString("i" + n.Text(16) + ";")
	return nil
}

func (kw *keyWriter) write(v Object) error {
	switch o := v.(type) {
	case nil:
		if err := kw.reserve(2); err != nil {
			return err
		}
		kw.sb.WriteString("n;")
	case bool:
		if err := kw.reserve(3); err != nil {
			return err
		}
		if o {
			kw.sb.WriteString("i1;")
		} else {
			kw.sb.WriteString("i0;")
		}
	case int64:
		if err := kw.reserve(19); err != nil {
			return err
		}
		kw.sb.WriteString("i" + strconv.FormatInt(o, 16) + ";")
	case *big.Int:
		return kw.writeInt(o)
	case float64:
		if o == math.Trunc(o) && !math.IsInf(o, 0) {
			n, _ := new(big.Float).SetFloat64(o).Int(nil)
			return kw.writeInt(n)
		}
		if err := kw.reserve(26); err != nil {
			return err
		}
		kw.sb.WriteString("f" + strconv.FormatFloat(o, 'g', -1, 64) + ";")
	case string:
		if err := kw.reserve(len(o) + 21); err != nil {
			return err
		}
		kw.sb.WriteString("s" + strconv.Itoa(len(o)) + ":" + o)
	case []byte:
		if err := kw.reserve(len(o) + 21); err != nil {
			return err
		}
		kw.sb.WriteString("b" + strconv.Itoa(len(o)) + ":")
		kw.sb.Write(o)
	case Tuple:
		if err := kw.reserve(22); err != nil {
			return err
		}
		kw.sb.WriteString("t" + strconv.Itoa(len(o)) + "(")
		for _, item := range o {
			if err := kw.write(item); err != nil {
				return err
			}
		}
		kw.sb.WriteString(")")
	case *Set:
		if !o.Frozen {
			return fmt.Errorf("%w: %s", ErrUnhashable, TypeName(v))
		}
		// Order-independent: frozensets with equal members are equal.
		keys := make([]string, 0, len(o.index))
		size := 22
		for k := range o.index {
			keys = append(keys, k)
			size += len(k)
		}
		if err := kw.reserve(size); err != nil {
			return err
		}
		slices.Sort(keys)
		kw.sb.WriteString("F" + strconv.Itoa(len(keys)) + "(" + strings.Join(keys, "") + ")")
	case *List, *Dict, *ByteArray:
		return fmt.Errorf("%w: %s", ErrUnhashable, TypeName(v))
	default:
		if err := kw.reserve(20); err != nil {
			return err
		}
		// Functions, classes and instances hash by identity.
		fmt.Fprintf(&kw.sb, "p%p;", v)
	}
	return nil
}
