package engine

import (
	"math/big"

	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/pickle"
)

// step executes one instruction. done is true after STOP, with top holding
// the value STOP returned.
func (m *machine) step(op pickle.Op) (top ir.Value, done bool, err error) {
	s := m.state
	h := op.Head()
	off := h.Offset

	switch o := op.(type) {
	case pickle.Proto:
		s.proto = o.Version
	case pickle.Frame:
	case pickle.Stop:
		if s.Marks() > 0 {
			return nil, false, malformed(off, "STOP with %d unclosed marks", s.Marks())
		}
		v, err := s.pop(off)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil

	case pickle.Mark:
		err = s.mark(off)
	case pickle.Pop:
		err = s.discard(off)
	case pickle.PopMark:
		_, err = s.popMark(off)
	case pickle.Dup:
		var v ir.Value
		if v, err = s.peek(off); err == nil {
			err = s.push(off, v)
		}

	case pickle.Global:
		err = m.acquireAndPush(h, o.Module, o.Name)
	case pickle.StackGlobal:
		err = m.stackGlobal(h)
	case pickle.Inst:
		err = m.inst(h, o)
	case pickle.Obj:
		err = m.obj(h)
	case pickle.NewObj:
		err = m.newObj(h)
	case pickle.NewObjEx:
		err = m.newObjEx(h)
	case pickle.Reduce:
		err = m.reduce(h)
	case pickle.Build:
		err = m.build(h)

	case pickle.MemoPut:
		var v ir.Value
		if v, err = s.peek(off); err == nil {
			id := o.ID
			if o.Auto {
				id = int64(s.MemoSize())
			}
			err = s.memoPut(off, id, v)
		}
	case pickle.MemoGet:
		var v ir.Value
		if v, err = s.memoGet(off, o.ID); err == nil {
			err = s.push(off, v)
		}

	case pickle.EmptyDict:
		err = s.push(off, ir.NewContainer(ir.KindDict))
	case pickle.EmptyList:
		err = s.push(off, ir.NewContainer(ir.KindList))
	case pickle.EmptyTuple:
		err = s.push(off, ir.NewContainer(ir.KindTuple))
	case pickle.EmptySet:
		err = s.push(off, ir.NewContainer(ir.KindSet))
	case pickle.Dict:
		err = m.fromMark(h, ir.KindDict)
	case pickle.List:
		err = m.fromMark(h, ir.KindList)
	case pickle.FrozenSet:
		err = m.fromMark(h, ir.KindFrozenSet)
	case pickle.Tuple:
		err = m.tuple(h, o.Arity)
	case pickle.SetItem:
		err = m.extend(h, 2, false)
	case pickle.SetItems:
		err = m.extend(h, 2, true)
	case pickle.Append:
		err = m.extend(h, 1, false)
	case pickle.Appends, pickle.AddItems:
		err = m.extend(h, 1, true)

	case pickle.Int:
		if o.Big != nil {
			err = s.push(off, ir.Primitive{V: new(big.Int).Set(o.Big)})
		} else {
			err = s.push(off, ir.Primitive{V: o.Small})
		}
	case pickle.Float:
		err = s.push(off, ir.Primitive{V: o.Value})
	case pickle.Bool:
		err = s.push(off, ir.Primitive{V: o.Value})
	case pickle.None:
		err = s.push(off, ir.None)
	case pickle.Str:
		err = s.push(off, ir.Primitive{V: o.Value})
	case pickle.Bytes:
		if o.Mutable {
			err = s.push(off, ir.Primitive{V: ir.ByteArray(o.Value)})
		} else {
			err = s.push(off, ir.Primitive{V: ir.Bytes(o.Value)})
		}

	case pickle.PersistentID:
		err = m.persistent(h, ir.Primitive{V: o.ID})
	case pickle.BinPersistentID:
		var pid ir.Value
		if pid, err = s.pop(off); err == nil {
			err = m.persistent(h, pid)
		}

	case pickle.Ext:
		err = newRuntimeError(ErrCodeUnsupportedOpcode, off, "%s: extension registry lookups are not supported", h.Code)
	case pickle.Buffer:
		err = newRuntimeError(ErrCodeUnsupportedOpcode, off, "%s: out-of-band buffers are not supported", h.Code)
	case pickle.UnknownOpcode:
		err = malformed(off, "unknown opcode 0x%02x", o.Byte)
	default:
		err = malformed(off, "unhandled instruction %s", h.Code)
	}
	return nil, false, err
}

func (m *machine) acquireAndPush(h pickle.Header, module, name string) error {
	v, err := m.mode.acquire(h, module, name)
	if err != nil {
		return err
	}
	return m.state.push(h.Offset, v)
}

func (m *machine) stackGlobal(h pickle.Header) error {
	items, err := m.state.popN(h.Offset, 2)
	if err != nil {
		return err
	}
	module, ok1 := stringOf(items[0])
	name, ok2 := stringOf(items[1])
	if !ok1 || !ok2 {
		return malformed(h.Offset, "STACK_GLOBAL requires two strings")
	}
	return m.acquireAndPush(h, module, name)
}

func stringOf(v ir.Value) (string, bool) {
	p, ok := v.(ir.Primitive)
	if !ok {
		return "", false
	}
	return p.Str()
}

func (m *machine) inst(h pickle.Header, o pickle.Inst) error {
	args, err := m.state.popMark(h.Offset)
	if err != nil {
		return err
	}
	cls, err := m.mode.acquire(h, o.Module, o.Name)
	if err != nil {
		return err
	}
	return m.instantiate(h, cls, args, nil, instINST)
}

func (m *machine) obj(h pickle.Header) error {
	items, err := m.state.popMark(h.Offset)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return malformed(h.Offset, "OBJ without a class")
	}
	return m.instantiate(h, items[0], items[1:], nil, instOBJ)
}

func (m *machine) newObj(h pickle.Header) error {
	items, err := m.state.popN(h.Offset, 2)
	if err != nil {
		return err
	}
	args, ok := tupleOf(items[1])
	if !ok {
		return malformed(h.Offset, "NEWOBJ args must be a tuple")
	}
	return m.instantiate(h, items[0], args.Items, nil, instNEWOBJ)
}

func (m *machine) newObjEx(h pickle.Header) error {
	items, err := m.state.popN(h.Offset, 3)
	if err != nil {
		return err
	}
	args, ok := tupleOf(items[1])
	if !ok {
		return malformed(h.Offset, "NEWOBJ_EX args must be a tuple")
	}
	if kw, ok := items[2].(*ir.Container); !ok || kw.Kind != ir.KindDict {
		return malformed(h.Offset, "NEWOBJ_EX kwargs must be a dict")
	}
	return m.instantiate(h, items[0], args.Items, items[2], instNEWOBJEX)
}

func (m *machine) instantiate(h pickle.Header, cls ir.Value, args []ir.Value, kwargs ir.Value, kind instKind) error {
	v, err := m.mode.instantiate(h, cls, args, kwargs, kind)
	if err != nil {
		return err
	}
	return m.state.push(h.Offset, v)
}

func tupleOf(v ir.Value) (*ir.Container, bool) {
	c, ok := v.(*ir.Container)
	if !ok || c.Kind != ir.KindTuple {
		return nil, false
	}
	return c, true
}

func (m *machine) reduce(h pickle.Header) error {
	items, err := m.state.popN(h.Offset, 2)
	if err != nil {
		return err
	}
	args, ok := tupleOf(items[1])
	if !ok {
		return malformed(h.Offset, "REDUCE args must be a tuple")
	}
	v, err := m.mode.invoke(h, items[0], args)
	if err != nil {
		return err
	}
	return m.state.push(h.Offset, v)
}

func (m *machine) build(h pickle.Header) error {
	state, err := m.state.pop(h.Offset)
	if err != nil {
		return err
	}
	target, err := m.state.pop(h.Offset)
	if err != nil {
		return err
	}
	v, err := m.mode.build(h, target, state)
	if err != nil {
		return err
	}
	return m.state.push(h.Offset, v)
}

func (m *machine) persistent(h pickle.Header, pid ir.Value) error {
	v, err := m.mode.persistentLoad(h, pid)
	if err != nil {
		return err
	}
	return m.state.push(h.Offset, v)
}

func (m *machine) fromMark(h pickle.Header, kind ir.ContainerKind) error {
	items, err := m.state.popMark(h.Offset)
	if err != nil {
		return err
	}
	if kind == ir.KindDict && len(items)%2 != 0 {
		return malformed(h.Offset, "DICT with odd number of items")
	}
	if err := m.state.checkItems(h.Offset, len(items)); err != nil {
		return err
	}
	return m.state.push(h.Offset, ir.NewContainer(kind, items...))
}

func (m *machine) tuple(h pickle.Header, arity int) error {
	if arity == pickle.MarkArity {
		return m.fromMark(h, ir.KindTuple)
	}
	items, err := m.state.popN(h.Offset, arity)
	if err != nil {
		return err
	}
	return m.state.push(h.Offset, ir.NewContainer(ir.KindTuple, items...))
}

// extend implements SETITEM(S), APPEND(S) and ADDITEMS. width is 2 for
// key/value pairs. fromMark selects the batch form.
func (m *machine) extend(h pickle.Header, width int, fromMark bool) error {
	var (
		items []ir.Value
		err   error
	)
	if fromMark {
		items, err = m.state.popMark(h.Offset)
	} else {
		items, err = m.state.popN(h.Offset, width)
	}
	if err != nil {
		return err
	}
	if len(items)%width != 0 {
		return malformed(h.Offset, "%s with odd number of items", h.Code)
	}
	target, err := m.state.peek(h.Offset)
	if err != nil {
		return err
	}

	c, ok := target.(*ir.Container)
	if !ok {
		return m.mode.mutate(h, target, items, h.Code)
	}
	if want := containerFor(h.Code); c.Kind != want {
		return malformed(h.Offset, "%s on %s", h.Code, c.Kind)
	}
	if err := m.state.checkItems(h.Offset, c.Len()+len(items)); err != nil {
		return err
	}
	c.Add(items...)
	return m.mode.added(h, c, items)
}

func containerFor(code pickle.Opcode) ir.ContainerKind {
	switch code {
	case pickle.SETITEM, pickle.SETITEMS:
		return ir.KindDict
	case pickle.ADDITEMS:
		return ir.KindSet
	}
	return ir.KindList
}
