package ir

// ContainerKind identifies the shape of a Container.
type ContainerKind uint8

const (
	KindList ContainerKind = iota + 1
	KindDict
	KindTuple
	KindSet
	KindFrozenSet
)

var containerKindNames = map[ContainerKind]string{
	KindList:      "list",
	KindDict:      "dict",
	KindTuple:     "tuple",
	KindSet:       "set",
	KindFrozenSet: "frozenset",
}

func (k ContainerKind) String() string {
	if s, ok := containerKindNames[k]; ok {
		return s
	}
	return "container"
}

// Mutable reports whether container opcodes may add items to this kind.
func (k ContainerKind) Mutable() bool {
	return k == KindList || k == KindDict || k == KindSet
}

// Container is a list, dict, tuple, set or frozenset built by container
// opcodes. It is the only mutable Value: APPEND, SETITEM and ADDITEMS
// mutate it in place, so every memo slot and stack slot that shares the
// pointer observes the change, matching pickle's aliasing semantics.
//
// Dict items are stored flat as key, value, key, value.
type Container struct {
	Kind  ContainerKind
	Items []Value
}

func (*Container) irValue() {}

// NewContainer returns a container holding a copy of items.
func NewContainer(kind ContainerKind, items ...Value) *Container {
	c := &Container{Kind: kind}
	if len(items) > 0 {
		c.Items = append(make([]Value, 0, len(items)), items...)
	}
	return c
}

// Add appends items.
func (c *Container) Add(items ...Value) {
	c.Items = append(c.Items, items...)
}

// Len returns the number of stored slots (two per dict entry).
func (c *Container) Len() int {
	return len(c.Items)
}

// Pairs returns dict entries as key/value pairs.
func (c *Container) Pairs() [][2]Value {
	out := make([][2]Value, 0, len(c.Items)/2)
	for i := 0; i+1 < len(c.Items); i += 2 {
		out = append(out, [2]Value{c.Items[i], c.Items[i+1]})
	}
	return out
}
