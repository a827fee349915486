package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/pickle"
)

// traceMode interprets symbolically: no lookups, no calls. It records a
// GlobalResolved for every acquisition and a ReduceInvoked for every call.
type traceMode struct {
	events ir.Trace
	seq    *Sequence
}

func (t *traceMode) acquire(_ pickle.Header, module, name string) (ir.Value, error) {
	qn := ir.Qualify(module, name)
	t.events = append(t.events, ir.GlobalResolved{Name: qn})
	return ir.Reference{Name: qn, Module: module, Attr: name, Provenance: t.seq.Next()}, nil
}

func (t *traceMode) invoke(_ pickle.Header, callable ir.Value, args *ir.Container) (ir.Value, error) {
	ev := ir.ReduceInvoked{Bare: ir.BareName(callable), Argc: args.Len()}
	if ref, ok := callable.(ir.Reference); ok {
		ev.Callable = ref.Name
	}
	t.events = append(t.events, ev)
	return ir.Invocation{Callable: callable, Bare: ev.Bare, Argc: ev.Argc}, nil
}

func (t *traceMode) instantiate(_ pickle.Header, cls ir.Value, _ []ir.Value, _ ir.Value, _ instKind) (ir.Value, error) {
	return ir.Instance{Class: cls}, nil
}

func (t *traceMode) build(_ pickle.Header, target, state ir.Value) (ir.Value, error) {
	if inst, ok := target.(ir.Instance); ok {
		inst.State = state
		return inst, nil
	}
	return target, nil
}

func (t *traceMode) mutate(pickle.Header, ir.Value, []ir.Value, pickle.Opcode) error {
	return nil
}

func (t *traceMode) added(pickle.Header, *ir.Container, []ir.Value) error {
	return nil
}

func (t *traceMode) persistentLoad(_ pickle.Header, pid ir.Value) (ir.Value, error) {
	return ir.Persistent{ID: pid}, nil
}

// Trace interprets a single pickle symbolically and returns every global
// resolution and callable invocation it would perform, in stream order.
//
// No symbol is looked up and nothing is called. Bytes after STOP are
// ignored; use TraceStacked for files that hold consecutive pickles.
func Trace(ctx context.Context, data []byte, opts ...Option) (ir.Trace, error) {
	return trace(ctx, data, false, opts)
}

// TraceStacked traces consecutive pickles while the remainder after each
// STOP starts with a PROTO opcode, and returns the concatenated trace.
// Legacy PyTorch files store several pickles back to back.
func TraceStacked(ctx context.Context, data []byte, opts ...Option) (ir.Trace, error) {
	return trace(ctx, data, true, opts)
}

func trace(ctx context.Context, data []byte, stacked bool, opts []Option) (ir.Trace, error) {
	cfg := newConfig(opts)
	runID := cfg.runIDs.Generate()
	tm := &traceMode{seq: NewSequence()}
	m := newMachine(cfg, tm, runID)

	cfg.logger.Debug("trace starting",
		slog.String("run_id", runID),
		slog.Int("bytes", len(data)),
		slog.Bool("stacked", stacked))

	pickles := 0
	for {
		_, rest, err := m.run(ctx, data)
		if err != nil {
			cfg.logger.Debug("trace failed",
				slog.String("run_id", runID),
				slog.Int("steps", m.steps()),
				slog.Any("error", err))
			return nil, err
		}
		pickles++
		if !stacked || !startsPickle(rest) {
			break
		}
		data = rest
	}

	cfg.logger.Debug("trace finished",
		slog.String("run_id", runID),
		slog.Int("pickles", pickles),
		slog.Int("steps", m.steps()),
		slog.Int("events", len(tm.events)))
	return tm.events, nil
}

func startsPickle(b []byte) bool {
	return len(b) > 0 && b[0] == byte(pickle.PROTO)
}
