package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/roach88/pickleball/internal/host"
	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/pickle"
	"github.com/roach88/pickleball/internal/policy"
)

// Gate loads pickles against a host registry, resolving and constructing
// only what a policy allows. Anything else fails closed: the first
// disallowed global, call or instantiation stops the load and no partial
// object is returned.
//
// A Gate is safe for concurrent use; each Load owns its own machine state.
type Gate struct {
	registry *host.Registry
	opts     []Option
}

// NewGate creates a gate over registry.
func NewGate(registry *host.Registry, opts ...Option) *Gate {
	return &Gate{registry: registry, opts: opts}
}

// Load interprets a single pickle under the policy entry for classID and
// returns the reconstructed object. Errors are *PolicyViolation or
// *RuntimeError.
func (g *Gate) Load(ctx context.Context, data []byte, p policy.Policy, classID string) (host.Object, error) {
	objs, err := g.load(ctx, data, p, classID, false)
	if err != nil {
		return nil, err
	}
	return objs[0], nil
}

// LoadStacked loads consecutive pickles while the remainder after each STOP
// starts with PROTO, returning one object per pickle.
func (g *Gate) LoadStacked(ctx context.Context, data []byte, p policy.Policy, classID string) ([]host.Object, error) {
	return g.load(ctx, data, p, classID, true)
}

func (g *Gate) load(ctx context.Context, data []byte, p policy.Policy, classID string, stacked bool) ([]host.Object, error) {
	cfg := newConfig(g.opts)
	runID := cfg.runIDs.Generate()
	entry, _ := p.Entry(classID)
	gm := newGateMode(g.registry, entry, classID, cfg.loader)
	m := newMachine(cfg, gm, runID)

	cfg.logger.Debug("load starting",
		slog.String("run_id", runID),
		slog.String("class", classID),
		slog.Int("bytes", len(data)))

	var out []host.Object
	for {
		top, rest, err := m.run(ctx, data)
		if err == nil {
			var obj host.Object
			if obj, err = gm.realize(-1, top); err == nil {
				out = append(out, obj)
			}
		}
		if err != nil {
			var pv *PolicyViolation
			if errors.As(err, &pv) {
				cfg.logger.Warn("load rejected",
					slog.String("run_id", runID),
					slog.String("class", classID),
					slog.String("name", string(pv.Name)),
					slog.String("kind", string(pv.Kind)),
					slog.Int64("offset", pv.Offset))
			} else {
				cfg.logger.Debug("load failed", slog.String("run_id", runID), slog.Any("error", err))
			}
			return nil, err
		}
		if !stacked || !startsPickle(rest) {
			break
		}
		data = rest
	}

	cfg.logger.Debug("load finished",
		slog.String("run_id", runID),
		slog.Int("objects", len(out)),
		slog.Int("steps", m.steps()),
		slog.Int("acquisitions", len(gm.accepted)))
	return out, nil
}

// gateMode performs real resolution and construction for allowed symbols.
type gateMode struct {
	registry *host.Registry
	entry    policy.Entry
	classID  string
	loader   host.PersistentLoader

	seq      *Sequence
	accepted map[uint64]ir.QualifiedName
	realized map[*ir.Container]host.Object
	cycles   *CycleDetector
}

func newGateMode(r *host.Registry, entry policy.Entry, classID string, loader host.PersistentLoader) *gateMode {
	return &gateMode{
		registry: r,
		entry:    entry,
		classID:  classID,
		loader:   loader,
		seq:      NewSequence(),
		accepted: make(map[uint64]ir.QualifiedName),
		realized: make(map[*ir.Container]host.Object),
		cycles:   NewCycleDetector(),
	}
}

func (g *gateMode) violation(h pickle.Header, name ir.QualifiedName, kind ViolationKind) *PolicyViolation {
	return &PolicyViolation{ClassID: g.classID, Name: name, Kind: kind, Offset: h.Offset}
}

// acquire checks the full qualified name, then performs exactly one
// registry lookup. There is no other path from a name to an object.
func (g *gateMode) acquire(h pickle.Header, module, name string) (ir.Value, error) {
	qn := ir.Qualify(module, name)
	if !g.entry.AllowsGlobal(qn) {
		return nil, g.violation(h, qn, ViolationGlobal)
	}
	obj, err := g.registry.Resolve(module, name)
	if err != nil {
		return nil, &RuntimeError{Code: ErrCodeResolveFailed, Message: fmt.Sprintf("resolve %s", qn), Offset: h.Offset, Err: err}
	}
	id := g.seq.Next()
	g.accepted[id] = qn
	return ir.Reference{Name: qn, Module: module, Attr: name, Provenance: id, Real: obj}, nil
}

// authorize requires v to be a Reference issued by an accepted acquisition
// in this run.
func (g *gateMode) authorize(h pickle.Header, v ir.Value) (ir.Reference, error) {
	ref, ok := v.(ir.Reference)
	if !ok {
		return ir.Reference{}, g.violation(h, ir.QualifiedName(ir.BareName(v)), ViolationProvenance)
	}
	if name, ok := g.accepted[ref.Provenance]; !ok || name != ref.Name {
		return ir.Reference{}, g.violation(h, ref.Name, ViolationProvenance)
	}
	return ref, nil
}

func (g *gateMode) invoke(h pickle.Header, callable ir.Value, args *ir.Container) (ir.Value, error) {
	ref, err := g.authorize(h, callable)
	if err != nil {
		return nil, err
	}
	if !g.entry.AllowsReduce(ref.Name) {
		return nil, g.violation(h, ref.Name, ViolationReduce)
	}
	fn, ok := ref.Real.(host.Callable)
	if !ok {
		return nil, newRuntimeError(ErrCodeCallFailed, h.Offset, "%s is not callable", ref.Name)
	}
	argv, err := g.realizeAll(h.Offset, args.Items)
	if err != nil {
		return nil, err
	}
	res, err := fn.Call(argv, nil)
	if err != nil {
		return nil, hostError(ErrCodeCallFailed, h.Offset, fmt.Sprintf("call %s", ref.Name), err)
	}
	return ir.Invocation{Callable: ref, Bare: ref.Name.Tail(), Argc: args.Len(), Real: res}, nil
}

func (g *gateMode) instantiate(h pickle.Header, cls ir.Value, args []ir.Value, kwargs ir.Value, kind instKind) (ir.Value, error) {
	ref, err := g.authorize(h, cls)
	if err != nil {
		return nil, err
	}
	argv, err := g.realizeAll(h.Offset, args)
	if err != nil {
		return nil, err
	}

	var obj host.Object
	switch target := ref.Real.(type) {
	case *host.Class:
		switch kind {
		case instNEWOBJ:
			obj, err = target.NewObject(argv, nil)
		case instNEWOBJEX:
			var kw *host.Dict
			if kw, err = g.kwargs(h.Offset, kwargs); err == nil {
				obj, err = target.NewObject(argv, kw)
			}
		default:
			if len(argv) > 0 {
				obj, err = target.Call(argv, nil)
			} else {
				obj, err = target.NewObject(nil, nil)
			}
		}
	default:
		if kind == instNEWOBJ || kind == instNEWOBJEX {
			return nil, g.violation(h, ref.Name, ViolationNotAClass)
		}
		// INST and OBJ on a non-class are calls and need reduce permission.
		if !g.entry.AllowsReduce(ref.Name) {
			return nil, g.violation(h, ref.Name, ViolationReduce)
		}
		fn, ok := target.(host.Callable)
		if !ok {
			return nil, newRuntimeError(ErrCodeCallFailed, h.Offset, "%s is not callable", ref.Name)
		}
		obj, err = fn.Call(argv, nil)
	}
	if err != nil {
		var re *RuntimeError
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, hostError(ErrCodeCallFailed, h.Offset, fmt.Sprintf("%s %s", kind, ref.Name), err)
	}
	return ir.Instance{Class: ref, Real: obj}, nil
}

func (g *gateMode) kwargs(off int64, v ir.Value) (*host.Dict, error) {
	obj, err := g.realize(off, v)
	if err != nil {
		return nil, err
	}
	kw, ok := obj.(*host.Dict)
	if !ok {
		return nil, malformed(off, "kwargs must be a dict")
	}
	return kw, nil
}

func (g *gateMode) build(h pickle.Header, target, state ir.Value) (ir.Value, error) {
	obj, err := g.realize(h.Offset, target)
	if err != nil {
		return nil, err
	}
	st, err := g.realize(h.Offset, state)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return target, nil
	}
	setter, ok := obj.(host.StateSetter)
	if !ok {
		return nil, newRuntimeError(ErrCodeCallFailed, h.Offset, "%s does not accept BUILD state", host.TypeName(obj))
	}
	if err := setter.SetState(st); err != nil {
		return nil, hostError(ErrCodeCallFailed, h.Offset, "BUILD", err)
	}
	if inst, ok := target.(ir.Instance); ok {
		inst.State = state
		return inst, nil
	}
	return target, nil
}

func (g *gateMode) mutate(h pickle.Header, target ir.Value, items []ir.Value, code pickle.Opcode) error {
	obj, err := g.realize(h.Offset, target)
	if err != nil {
		return err
	}
	return g.apply(h, obj, items, code)
}

func (g *gateMode) added(h pickle.Header, c *ir.Container, items []ir.Value) error {
	obj, ok := g.realized[c]
	if !ok {
		return nil
	}
	return g.apply(h, obj, items, h.Code)
}

// apply forwards container opcodes to a realized host object.
func (g *gateMode) apply(h pickle.Header, obj host.Object, items []ir.Value, code pickle.Opcode) error {
	vals, err := g.realizeAll(h.Offset, items)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		return hostError(ErrCodeCallFailed, h.Offset, code.String(), err)
	}

	switch code {
	case pickle.SETITEM, pickle.SETITEMS:
		setter, ok := obj.(host.ItemSetter)
		if !ok {
			return newRuntimeError(ErrCodeCallFailed, h.Offset, "%s does not support item assignment", host.TypeName(obj))
		}
		for i := 0; i+1 < len(vals); i += 2 {
			if err := setter.SetItem(vals[i], vals[i+1]); err != nil {
				return fail(err)
			}
		}
	case pickle.ADDITEMS:
		adder, ok := obj.(host.Adder)
		if !ok {
			return newRuntimeError(ErrCodeCallFailed, h.Offset, "%s does not support add", host.TypeName(obj))
		}
		for _, v := range vals {
			if err := adder.Add(v); err != nil {
				return fail(err)
			}
		}
	default:
		app, ok := obj.(host.Appender)
		if !ok {
			return newRuntimeError(ErrCodeCallFailed, h.Offset, "%s does not support append", host.TypeName(obj))
		}
		for _, v := range vals {
			if err := app.Append(v); err != nil {
				return fail(err)
			}
		}
	}
	return nil
}

func (g *gateMode) persistentLoad(h pickle.Header, pid ir.Value) (ir.Value, error) {
	if g.loader == nil {
		return nil, newRuntimeError(ErrCodeCallFailed, h.Offset, "persistent id without a persistent loader")
	}
	id, err := g.realize(h.Offset, pid)
	if err != nil {
		return nil, err
	}
	obj, err := g.loader.PersistentLoad(id)
	if err != nil {
		return nil, hostError(ErrCodeCallFailed, h.Offset, "persistent_load", err)
	}
	return ir.Persistent{ID: pid, Real: obj}, nil
}

func (g *gateMode) realizeAll(off int64, vals []ir.Value) ([]host.Object, error) {
	out := make([]host.Object, len(vals))
	for i, v := range vals {
		obj, err := g.realize(off, v)
		if err != nil {
			return nil, err
		}
		out[i] = obj
	}
	return out, nil
}

// realize maps a symbolic value to its host object. Containers are built
// on first use and cached by identity, so shared and self-referential
// lists, dicts and sets keep their aliasing.
func (g *gateMode) realize(off int64, v ir.Value) (host.Object, error) {
	switch val := v.(type) {
	case ir.Primitive:
		return primitiveObject(val), nil
	case ir.Reference:
		return val.Real, nil
	case ir.Invocation:
		return val.Real, nil
	case ir.Instance:
		return val.Real, nil
	case ir.Persistent:
		return val.Real, nil
	case *ir.Container:
		return g.realizeContainer(off, val)
	}
	return nil, malformed(off, "cannot realize %T", v)
}

func (g *gateMode) realizeContainer(off int64, c *ir.Container) (host.Object, error) {
	if obj, ok := g.realized[c]; ok {
		return obj, nil
	}

	switch c.Kind {
	case ir.KindList:
		l := host.NewList()
		g.realized[c] = l
		items, err := g.realizeAll(off, c.Items)
		if err != nil {
			return nil, err
		}
		l.Items = append(l.Items, items...)
		return l, nil

	case ir.KindDict:
		d := host.NewDict()
		g.realized[c] = d
		for _, kv := range c.Pairs() {
			k, err := g.realize(off, kv[0])
			if err != nil {
				return nil, err
			}
			v, err := g.realize(off, kv[1])
			if err != nil {
				return nil, err
			}
			if err := d.SetItem(k, v); err != nil {
				return nil, hostError(ErrCodeMalformedStream, off, "dict key", err)
			}
		}
		return d, nil

	case ir.KindSet:
		s := host.NewSet(false)
		g.realized[c] = s
		if err := g.fillSet(off, s, c.Items); err != nil {
			return nil, err
		}
		return s, nil

	case ir.KindTuple, ir.KindFrozenSet:
		if g.cycles.WouldCycle(c) {
			return nil, malformed(off, "self-referential %s", c.Kind)
		}
		g.cycles.Record(c)
		defer g.cycles.Clear(c)

		if c.Kind == ir.KindFrozenSet {
			s := host.NewSet(true)
			if err := g.fillSet(off, s, c.Items); err != nil {
				return nil, err
			}
			g.realized[c] = s
			return s, nil
		}
		items, err := g.realizeAll(off, c.Items)
		if err != nil {
			return nil, err
		}
		t := host.Tuple(items)
		g.realized[c] = t
		return t, nil
	}
	return nil, malformed(off, "unknown container kind %d", c.Kind)
}

func (g *gateMode) fillSet(off int64, s *host.Set, items []ir.Value) error {
	for _, it := range items {
		obj, err := g.realize(off, it)
		if err != nil {
			return err
		}
		if err := s.Add(obj); err != nil {
			return hostError(ErrCodeMalformedStream, off, "set item", err)
		}
	}
	return nil
}

func primitiveObject(p ir.Primitive) host.Object {
	switch v := p.V.(type) {
	case ir.Bytes:
		return append([]byte(nil), v...)
	case ir.ByteArray:
		return &host.ByteArray{Data: append([]byte(nil), v...)}
	case *big.Int:
		return new(big.Int).Set(v)
	}
	return p.V
}
