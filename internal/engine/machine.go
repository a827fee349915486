package engine

import (
	"context"
	"errors"

	"github.com/roach88/pickleball/internal/ir"
	"github.com/roach88/pickleball/internal/pickle"
)

// instKind distinguishes the instantiation opcodes.
type instKind uint8

const (
	instINST instKind = iota + 1
	instOBJ
	instNEWOBJ
	instNEWOBJEX
)

func (k instKind) String() string {
	switch k {
	case instINST:
		return "INST"
	case instOBJ:
		return "OBJ"
	case instNEWOBJ:
		return "NEWOBJ"
	case instNEWOBJEX:
		return "NEWOBJ_EX"
	}
	return "instantiate"
}

// mode is the closed set of behaviours that differ between tracing and
// enforcement. Everything else (stack, marks, memo, containers, literals)
// is shared and lives in step.go.
type mode interface {
	// acquire is the single acquisition path for GLOBAL, STACK_GLOBAL and
	// the INST header.
	acquire(h pickle.Header, module, name string) (ir.Value, error)
	// invoke handles REDUCE.
	invoke(h pickle.Header, callable ir.Value, args *ir.Container) (ir.Value, error)
	// instantiate handles INST, OBJ, NEWOBJ and NEWOBJ_EX.
	instantiate(h pickle.Header, cls ir.Value, args []ir.Value, kwargs ir.Value, kind instKind) (ir.Value, error)
	// build handles BUILD.
	build(h pickle.Header, target, state ir.Value) (ir.Value, error)
	// mutate applies SETITEM(S), APPEND(S) and ADDITEMS to a target that is
	// not a symbolic container.
	mutate(h pickle.Header, target ir.Value, items []ir.Value, code pickle.Opcode) error
	// added is told about items appended to a symbolic container.
	added(h pickle.Header, c *ir.Container, items []ir.Value) error
	// persistentLoad handles PERSID and BINPERSID.
	persistentLoad(h pickle.Header, pid ir.Value) (ir.Value, error)
}

// machine interprets one pickle stream. It owns its State and is
// discarded when the run ends.
type machine struct {
	cfg    *config
	mode   mode
	state  *State
	budget *Budget
	runID  string
}

func newMachine(cfg *config, m mode, runID string) *machine {
	return &machine{
		cfg:    cfg,
		mode:   m,
		state:  NewState(&cfg.limits),
		budget: NewBudget(cfg.limits.MaxSteps, cfg.limits.Timeout, cfg.clock),
		runID:  runID,
	}
}

// run interprets data up to and including STOP. It returns the top of
// stack at STOP and the unread remainder of data.
func (m *machine) run(ctx context.Context, data []byte) (ir.Value, []byte, error) {
	dec := pickle.NewDecoder(data,
		pickle.WithMaxOperandSize(m.cfg.limits.MaxOperandSize),
		pickle.WithMaxIntDigits(m.cfg.limits.MaxIntDigits),
	)
	m.state = NewState(&m.cfg.limits)

	for {
		if err := m.checkBudget(ctx, dec.Offset()); err != nil {
			return nil, nil, err
		}
		op, err := dec.Next()
		if err != nil {
			return nil, nil, m.decodeFailure(err, dec.Offset())
		}
		top, done, err := m.step(op)
		if err != nil {
			return nil, nil, m.annotate(err)
		}
		if done {
			return top, dec.Rest(), nil
		}
	}
}

func (m *machine) checkBudget(ctx context.Context, off int64) error {
	if err := ctx.Err(); err != nil {
		return &RuntimeError{Code: ErrCodeTraceTimeout, Message: "run cancelled", RunID: m.runID, Offset: off, Err: err}
	}
	if err := m.budget.Spend(m.runID); err != nil {
		var be *BudgetExceededError
		errors.As(err, &be)
		return &RuntimeError{Code: ErrCodeTraceTimeout, Message: string(be.Resource) + " budget exhausted", RunID: m.runID, Offset: off, Err: err}
	}
	return nil
}

func (m *machine) decodeFailure(err error, off int64) error {
	var de *pickle.DecodeError
	if errors.As(err, &de) {
		off = de.Offset
	}
	if errors.Is(err, pickle.ErrIntTooLong) {
		return &RuntimeError{Code: ErrCodeResourceLimit, Message: "integer literal too long", RunID: m.runID, Offset: off, Err: err}
	}
	return &RuntimeError{Code: ErrCodeMalformedStream, Message: "decode failed", RunID: m.runID, Offset: off, Err: err}
}

func (m *machine) annotate(err error) error {
	var re *RuntimeError
	if errors.As(err, &re) && re.RunID == "" {
		re.RunID = m.runID
	}
	return err
}

// steps returns the number of instructions interpreted so far.
func (m *machine) steps() int {
	return m.budget.Used()
}
